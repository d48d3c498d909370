package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	"github.com/nandutech/sifen-api/pkg/logger"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// CreditNoteInput datos para emitir una NCE sobre un documento aprobado.
type CreditNoteInput struct {
	CompanyID   string
	OriginalCDC string
	Motive      string // E401 (devolución) o E402 (ajuste); obligatorio
	Serie       string
	Items       []entity.DocumentItem
}

// CreditNoteService emite notas de crédito electrónicas. La NCE es un
// sub-flujo custodiado de la emisión: exige original aprobado, total
// estrictamente menor y motivo del catálogo. Al emitirla dispara el evento
// automático (692/693) de forma no bloqueante.
type CreditNoteService struct {
	docRepo      repository.DocumentRepository
	eventRepo    repository.DocumentEventRepository
	companyRepo  repository.CompanyRepository
	issueService *IssueService
	eventBuilder *infrasifen.EventXMLBuilder
	signer       Signer
	transport    Transport
	certLoader   CertLoader
	log          *logger.Logger
	now          func() time.Time
}

// NewCreditNoteService construye el servicio.
func NewCreditNoteService(
	docRepo repository.DocumentRepository,
	eventRepo repository.DocumentEventRepository,
	companyRepo repository.CompanyRepository,
	issueService *IssueService,
	eventBuilder *infrasifen.EventXMLBuilder,
	signer Signer,
	transport Transport,
	certLoader CertLoader,
	log *logger.Logger,
) *CreditNoteService {
	return &CreditNoteService{
		docRepo:      docRepo,
		eventRepo:    eventRepo,
		companyRepo:  companyRepo,
		issueService: issueService,
		eventBuilder: eventBuilder,
		signer:       signer,
		transport:    transport,
		certLoader:   certLoader,
		log:          log,
		now:          time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *CreditNoteService) WithClock(now func() time.Time) *CreditNoteService {
	s.now = now
	return s
}

// Create valida las reglas de negocio de la NCE, la emite y dispara el evento
// automático. Un fallo del evento no revierte la nota: queda registrado.
func (s *CreditNoteService) Create(ctx context.Context, input CreditNoteInput) (*entity.Document, error) {
	eventCode, ok := sifencat.NCEEventForMotive[input.Motive]
	if !ok {
		return nil, &siferr.InvalidBusinessRuleError{
			Rule:   "nce_motivo",
			Detail: "motivo inválido (admitidos: E401 devolución, E402 ajuste): " + input.Motive,
		}
	}

	original, err := s.docRepo.GetByCDC(ctx, input.OriginalCDC)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, siferr.NewValidation("cdc", "documento original no encontrado: "+input.OriginalCDC)
	}
	if original.Status != entity.StatusApproved {
		return nil, &siferr.InvalidBusinessRuleError{
			Rule:   "nce_original_aprobado",
			Detail: "el documento original debe estar aprobado, está " + original.Status,
		}
	}

	currency := original.Currency
	if currency == "" {
		currency = sifencat.CurrencyGuarani
	}
	totals, err := infrasifen.ComputeTotals(input.Items, currency)
	if err != nil {
		return nil, err
	}
	if totals.GrandTotal.GreaterThan(original.GrandTotal) {
		return nil, &siferr.InvalidBusinessRuleError{
			Rule:   "nce_total",
			Detail: "el total de la NCE no puede superar al del original",
		}
	}
	if totals.GrandTotal.Equal(original.GrandTotal) {
		// Anular el total completo es una cancelación, no una nota.
		return nil, &siferr.InvalidBusinessRuleError{
			Rule:   "nce_total_igual",
			Detail: "una NCE por el total del original corresponde a una cancelación",
		}
	}

	serie := input.Serie
	if serie == "" {
		serie = original.Serie
	}

	nce, err := s.issueService.Issue(ctx, IssueInput{
		CompanyID:    input.CompanyID,
		DocType:      sifencat.DocTypeNotaCredito,
		Serie:        serie,
		ReceiverRUC:  original.ReceiverRUC,
		ReceiverName: original.ReceiverName,
		ReceiverDir:  original.ReceiverDir,
		Items:        input.Items,
		Currency:     original.Currency,
		LinkedCDC:    original.CDC,
		NCEMotive:    input.Motive,
	})
	if err != nil {
		return nce, err
	}

	// Evento automático 692/693. No bloqueante: la NCE ya quedó emitida.
	s.sendCompanionEvent(ctx, nce, original, eventCode)
	return nce, nil
}

// sendCompanionEvent encola, firma y envía el evento de devolución/ajuste.
// Cualquier fallo queda en el registro del evento para el lote de reintento.
func (s *CreditNoteService) sendCompanionEvent(ctx context.Context, nce, original *entity.Document, eventCode string) {
	now := s.now()
	ev := &entity.DocumentEvent{
		ID:          uuid.New().String(),
		CompanyID:   nce.CompanyID,
		DocumentID:  nce.ID,
		EventType:   sifencat.EventNames[eventCode],
		EventCode:   eventCode,
		Description: "Evento automático por NCE " + nce.CDC,
		Status:      entity.EventStatusPending,
		CreatedAt:   now,
	}

	fail := func(stage string, cause error) {
		s.log.Error().
			Err(cause).
			Str("cdc_nce", nce.CDC).
			Str("evento", eventCode).
			Str("etapa", stage).
			Msg("fallo en evento automático de NCE")
		ev.Status = entity.EventStatusError
		ev.ErrorDetail = stage + ": " + cause.Error()
		if uerr := s.eventRepo.Update(ctx, ev); uerr != nil {
			s.log.Error().Err(uerr).Str("evento_id", ev.ID).Msg("no se pudo persistir el evento")
		}
	}

	xmlBytes, err := s.eventBuilder.BuildNCECompanion(ev.ID, eventCode, original.CDC, nce.CDC, now)
	if err != nil {
		ev.Status = entity.EventStatusError
		ev.ErrorDetail = "generación: " + err.Error()
	}
	issuerWS := s.transport
	if ev.Status == entity.EventStatusPending && xmlBytes != nil {
		company, cerr := s.companyRepo.GetByID(ctx, nce.CompanyID)
		if cerr != nil || company == nil {
			ev.Status = entity.EventStatusError
			ev.ErrorDetail = "empresa no disponible para firmar el evento"
		} else {
			cert, lerr := s.certLoader(company.CertPath, company.CertPassword)
			if lerr != nil {
				ev.Status = entity.EventStatusError
				ev.ErrorDetail = "certificado: " + lerr.Error()
			} else if signed, serr := s.signer.Sign(xmlBytes, ev.ID, cert); serr != nil {
				ev.Status = entity.EventStatusError
				ev.ErrorDetail = "firma: " + serr.Error()
			} else {
				ev.XMLSigned = string(signed)
				issuerWS = s.transport.ForIssuer(cert, company.Production)
			}
		}
	}

	if err := s.eventRepo.Create(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("cdc_nce", nce.CDC).Msg("no se pudo registrar el evento automático")
		return
	}
	if ev.Status != entity.EventStatusPending {
		return
	}

	resp, err := issuerWS.SubmitEvents(ctx, [][]byte{[]byte(ev.XMLSigned)})
	if err != nil {
		fail("transporte", err)
		return
	}
	ev.Status = entity.EventStatusApproved
	ev.ResponseCode = resp.Code
	ev.ResponseMessage = resp.Message
	ev.Protocol = resp.Protocol
	processed := s.now()
	ev.ProcessedAt = &processed
	if uerr := s.eventRepo.Update(ctx, ev); uerr != nil {
		s.log.Error().Err(uerr).Str("evento_id", ev.ID).Msg("no se pudo persistir el evento")
	}
}
