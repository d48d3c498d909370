package billing

import (
	"context"
	"time"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	"github.com/nandutech/sifen-api/pkg/logger"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// BatchSummary resultado de una corrida del procesador de eventos.
type BatchSummary struct {
	Pulled   int    // eventos tomados de la cola
	Approved int    // aprobados por la SET
	Rejected int    // rechazados por la SET
	Sent     int    // entregados sin desenlace itemizado
	Errored  int    // fallo de transporte (reencolables)
	Protocol string // protocolo compartido del lote
}

// EventBatchProcessor envía los eventos pendientes en lotes FIFO de hasta 15.
// Un fallo de transporte deja a todos los eventos del lote en error con el
// detalle registrado; siguen elegibles para una corrida futura. No hay
// reintento automático dentro del procesador: lo dispara el scheduler.
type EventBatchProcessor struct {
	eventRepo repository.DocumentEventRepository
	transport Transport
	batchSize int
	log       *logger.Logger
	now       func() time.Time
}

// NewEventBatchProcessor construye el procesador. batchSize se acota a 1..15.
func NewEventBatchProcessor(eventRepo repository.DocumentEventRepository, transport Transport, batchSize int, log *logger.Logger) *EventBatchProcessor {
	if batchSize < 1 || batchSize > sifencat.MaxBatchSize {
		batchSize = sifencat.MaxBatchSize
	}
	return &EventBatchProcessor{
		eventRepo: eventRepo,
		transport: transport,
		batchSize: batchSize,
		log:       log,
		now:       time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (p *EventBatchProcessor) WithClock(now func() time.Time) *EventBatchProcessor {
	p.now = now
	return p
}

// ProcessPending toma hasta batchSize eventos pendientes con XML firmado
// (más antiguos primero) y los envía en una única llamada a siRecepEvento.
func (p *EventBatchProcessor) ProcessPending(ctx context.Context) (*BatchSummary, error) {
	events, err := p.eventRepo.ListPending(ctx, p.batchSize)
	if err != nil {
		return nil, err
	}
	summary := &BatchSummary{Pulled: len(events)}
	if len(events) == 0 {
		p.log.Debug().Msg("sin eventos pendientes")
		return summary, nil
	}

	payloads := make([][]byte, 0, len(events))
	for _, ev := range events {
		payloads = append(payloads, []byte(ev.XMLSigned))
	}

	resp, err := p.transport.SubmitEvents(ctx, payloads)
	if err != nil {
		p.failAll(ctx, events, err, summary)
		return summary, err
	}

	p.applyOutcomes(ctx, events, resp, summary)
	p.log.Info().
		Int("enviados", summary.Pulled).
		Int("aprobados", summary.Approved).
		Int("rechazados", summary.Rejected).
		Str("protocolo", summary.Protocol).
		Msg("lote de eventos procesado")
	return summary, nil
}

// RequeueErrored reencola los eventos en error (acción del operador).
func (p *EventBatchProcessor) RequeueErrored(ctx context.Context) (int64, error) {
	return p.eventRepo.RequeueErrored(ctx)
}

// Stats expone el conteo de eventos por estado.
func (p *EventBatchProcessor) Stats(ctx context.Context) (map[string]int64, error) {
	return p.eventRepo.Stats(ctx)
}

// applyOutcomes distribuye el resultado: por ítem si la SET itemizó el lote,
// uniforme con el protocolo compartido si no.
func (p *EventBatchProcessor) applyOutcomes(ctx context.Context, events []*entity.DocumentEvent, resp *infrasifen.Response, summary *BatchSummary) {
	summary.Protocol = resp.Protocol
	processed := p.now()

	byID := make(map[string]infrasifen.ItemResult, len(resp.Items))
	for _, item := range resp.Items {
		byID[item.ID] = item
	}

	for _, ev := range events {
		ev.ProcessedAt = &processed
		if item, ok := byID[ev.ID]; ok {
			ev.ResponseCode = item.Code
			ev.ResponseMessage = item.Message
			ev.Protocol = item.Protocol
			if sifencat.ResponseCodeOK[item.Code] {
				ev.Status = entity.EventStatusApproved
				summary.Approved++
			} else {
				ev.Status = entity.EventStatusRejected
				summary.Rejected++
			}
		} else {
			ev.Status = entity.EventStatusSent
			ev.ResponseCode = resp.Code
			ev.ResponseMessage = resp.Message
			ev.Protocol = resp.Protocol
			summary.Sent++
		}
		if err := p.eventRepo.Update(ctx, ev); err != nil {
			p.log.Error().Err(err).Str("evento_id", ev.ID).Msg("no se pudo persistir el desenlace del evento")
		}
	}
}

// failAll marca todo el lote en error con el detalle del fallo de transporte.
// Los eventos no se descartan: una corrida futura puede reintentarlos.
func (p *EventBatchProcessor) failAll(ctx context.Context, events []*entity.DocumentEvent, cause error, summary *BatchSummary) {
	p.log.Error().Err(cause).Int("eventos", len(events)).Msg("fallo de transporte del lote de eventos")
	processed := p.now()
	for _, ev := range events {
		ev.Status = entity.EventStatusError
		ev.ErrorDetail = cause.Error()
		ev.ProcessedAt = &processed
		summary.Errored++
		if err := p.eventRepo.Update(ctx, ev); err != nil {
			p.log.Error().Err(err).Str("evento_id", ev.ID).Msg("no se pudo persistir el estado de error")
		}
	}
}
