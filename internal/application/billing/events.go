package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	"github.com/nandutech/sifen-api/pkg/logger"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// validNullifyMotives motivos admitidos para inutilización de rango.
var validNullifyMotives = map[string]bool{
	sifencat.NullifyMotiveNumeracion:   true,
	sifencat.NullifyMotiveFallaSistema: true,
	sifencat.NullifyMotiveOtros:        true,
}

// EventService gestiona los eventos sobre documentos: cancelación (690),
// inutilización de rangos (691), notificaciones del receptor (694-696) y
// las consultas a la SET.
type EventService struct {
	docRepo      repository.DocumentRepository
	eventRepo    repository.DocumentEventRepository
	companyRepo  repository.CompanyRepository
	eventBuilder *infrasifen.EventXMLBuilder
	signer       Signer
	transport    Transport
	lifecycle    *Lifecycle
	certLoader   CertLoader
	log          *logger.Logger
	now          func() time.Time
}

// NewEventService construye el servicio.
func NewEventService(
	docRepo repository.DocumentRepository,
	eventRepo repository.DocumentEventRepository,
	companyRepo repository.CompanyRepository,
	eventBuilder *infrasifen.EventXMLBuilder,
	signer Signer,
	transport Transport,
	lifecycle *Lifecycle,
	certLoader CertLoader,
	log *logger.Logger,
) *EventService {
	return &EventService{
		docRepo:      docRepo,
		eventRepo:    eventRepo,
		companyRepo:  companyRepo,
		eventBuilder: eventBuilder,
		signer:       signer,
		transport:    transport,
		lifecycle:    lifecycle,
		certLoader:   certLoader,
		log:          log,
		now:          time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *EventService) WithClock(now func() time.Time) *EventService {
	s.now = now
	return s
}

// CancelDocument cancela un DE aprobado dentro de la ventana de 48h desde la
// emisión. Si la SET acepta el evento 690, el documento pasa a cancelado.
func (s *EventService) CancelDocument(ctx context.Context, cdc, reason string) (*entity.DocumentEvent, error) {
	doc, err := s.docRepo.GetByCDC(ctx, cdc)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, siferr.NewValidation("cdc", "documento no encontrado: "+cdc)
	}

	lock := s.lifecycle.LockFor(doc.CDC)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	if doc.Status != entity.StatusApproved {
		return nil, &siferr.InvalidStateTransitionError{
			CDC:  doc.CDC,
			From: doc.Status,
			To:   entity.StatusCancelled,
			Why:  "solo se cancelan documentos aprobados",
		}
	}
	if !doc.CanBeCancelled(now) {
		return nil, &siferr.InvalidStateTransitionError{
			CDC:  doc.CDC,
			From: doc.Status,
			To:   entity.StatusCancelled,
			Why:  fmt.Sprintf("la ventana de cancelación de %s venció (emitido %s)", entity.CancellationWindow, doc.IssueDate.Format(time.RFC3339)),
		}
	}

	ev := &entity.DocumentEvent{
		ID:          uuid.New().String(),
		CompanyID:   doc.CompanyID,
		DocumentID:  doc.ID,
		EventType:   sifencat.EventNames[sifencat.EventCancelacion],
		EventCode:   sifencat.EventCancelacion,
		Description: reason,
		Status:      entity.EventStatusPending,
		CreatedAt:   now,
	}

	xmlBytes, err := s.eventBuilder.BuildCancellation(ev.ID, doc.CDC, reason, now)
	if err != nil {
		return nil, err
	}
	signed, issuerWS, err := s.signAndRegister(ctx, ev, doc.CompanyID, xmlBytes)
	if err != nil {
		return ev, err
	}

	resp, err := issuerWS.SubmitEvents(ctx, [][]byte{signed})
	if err != nil {
		return ev, s.recordOutcome(ctx, ev, nil, err)
	}
	if rerr := s.recordOutcome(ctx, ev, resp, nil); rerr != nil {
		return ev, rerr
	}

	if err := s.lifecycle.Transition(doc, entity.StatusCancelled, "cancelado por evento "+ev.ID, s.now()); err != nil {
		return ev, err
	}
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return ev, err
	}
	s.log.Info().Str("cdc", doc.CDC).Str("evento_id", ev.ID).Msg("documento cancelado")
	return ev, nil
}

// NullifyRange inutiliza un rango de numeración nunca emitido (evento 691).
// Un rango con documentos ya emitidos es un conflicto, no un caso de borde.
func (s *EventService) NullifyRange(ctx context.Context, companyID, serie string, start, end int64, motive, reason string) (*entity.DocumentEvent, error) {
	if start < 1 || end < start {
		return nil, siferr.NewValidation("rango", fmt.Sprintf("rango inválido: %d..%d", start, end))
	}
	if !validNullifyMotives[motive] {
		return nil, siferr.NewValidation("motivo", "motivo de inutilización inválido (E501..E503): "+motive)
	}

	occupied, err := s.docRepo.ExistsInRange(ctx, companyID, serie, start, end)
	if err != nil {
		return nil, err
	}
	if occupied {
		return nil, &siferr.RangeConflictError{Serie: serie, Start: start, End: end}
	}

	now := s.now()
	ev := &entity.DocumentEvent{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		EventType:   sifencat.EventNames[sifencat.EventInutilizacion],
		EventCode:   sifencat.EventInutilizacion,
		Description: fmt.Sprintf("%s: %s (serie %s, %d..%d)", motive, reason, serie, start, end),
		Status:      entity.EventStatusPending,
		CreatedAt:   now,
	}

	xmlBytes, err := s.eventBuilder.BuildNullification(ev.ID, serie, start, end, reason, now)
	if err != nil {
		return nil, err
	}
	signed, issuerWS, err := s.signAndRegister(ctx, ev, companyID, xmlBytes)
	if err != nil {
		return ev, err
	}

	resp, err := issuerWS.SubmitEvents(ctx, [][]byte{signed})
	if err := s.recordOutcome(ctx, ev, resp, err); err != nil {
		return ev, err
	}
	s.log.Info().
		Str("serie", serie).
		Int64("desde", start).
		Int64("hasta", end).
		Msg("rango inutilizado")
	return ev, nil
}

// NotifyReceiver registra una notificación del receptor (694/695/696) sobre
// un documento y la envía a la SET.
func (s *EventService) NotifyReceiver(ctx context.Context, cdc, eventCode, receiverRUC, details string) (*entity.DocumentEvent, error) {
	doc, err := s.docRepo.GetByCDC(ctx, cdc)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, siferr.NewValidation("cdc", "documento no encontrado: "+cdc)
	}

	now := s.now()
	ev := &entity.DocumentEvent{
		ID:          uuid.New().String(),
		CompanyID:   doc.CompanyID,
		DocumentID:  doc.ID,
		EventType:   sifencat.EventNames[eventCode],
		EventCode:   eventCode,
		Description: details,
		Status:      entity.EventStatusPending,
		CreatedAt:   now,
	}

	xmlBytes, err := s.eventBuilder.BuildReceiverNotification(ev.ID, eventCode, cdc, receiverRUC, details, now)
	if err != nil {
		return nil, err
	}
	signed, issuerWS, err := s.signAndRegister(ctx, ev, doc.CompanyID, xmlBytes)
	if err != nil {
		return ev, err
	}

	resp, err := issuerWS.SubmitEvents(ctx, [][]byte{signed})
	if err := s.recordOutcome(ctx, ev, resp, err); err != nil {
		return ev, err
	}
	return ev, nil
}

// QueryDocument consulta el estado de un CDC directamente en la SET.
func (s *EventService) QueryDocument(ctx context.Context, cdc string) (*infrasifen.Response, error) {
	return s.transport.QueryDocument(ctx, cdc)
}

// QueryRUC consulta los datos de un contribuyente en la SET.
func (s *EventService) QueryRUC(ctx context.Context, ruc string) (*infrasifen.Response, error) {
	return s.transport.QueryRUC(ctx, sifencat.NormalizeRUC(ruc))
}

// signAndRegister firma el rEvento, persiste el evento en pendiente y devuelve
// el canal hacia la SET derivado del perfil del emisor (su certificado y su
// flag producción).
func (s *EventService) signAndRegister(ctx context.Context, ev *entity.DocumentEvent, companyID string, xmlBytes []byte) ([]byte, Transport, error) {
	company, err := s.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return nil, nil, err
	}
	if company == nil {
		return nil, nil, siferr.NewValidation("empresa", "empresa no encontrada: "+companyID)
	}
	cert, err := s.certLoader(company.CertPath, company.CertPassword)
	if err != nil {
		return nil, nil, err
	}
	signed, err := s.signer.Sign(xmlBytes, ev.ID, cert)
	if err != nil {
		return nil, nil, err
	}
	ev.XMLSigned = string(signed)
	if err := s.eventRepo.Create(ctx, ev); err != nil {
		return nil, nil, err
	}
	return signed, s.transport.ForIssuer(cert, company.Production), nil
}

// recordOutcome persiste el desenlace del envío: aprobado, rechazado o error.
// El evento nunca sale de pendiente sin un resultado de transporte registrado.
func (s *EventService) recordOutcome(ctx context.Context, ev *entity.DocumentEvent, resp *infrasifen.Response, callErr error) error {
	processed := s.now()
	ev.ProcessedAt = &processed

	switch {
	case callErr == nil && resp != nil:
		ev.Status = entity.EventStatusApproved
		ev.ResponseCode = resp.Code
		ev.ResponseMessage = resp.Message
		ev.Protocol = resp.Protocol
	default:
		var rejected *siferr.RemoteRejectedError
		if errors.As(callErr, &rejected) {
			ev.Status = entity.EventStatusRejected
			ev.ResponseCode = rejected.Status
			ev.ResponseMessage = rejected.Message
		} else {
			ev.Status = entity.EventStatusError
			ev.ErrorDetail = callErr.Error()
		}
	}

	if uerr := s.eventRepo.Update(ctx, ev); uerr != nil {
		s.log.Error().Err(uerr).Str("evento_id", ev.ID).Msg("no se pudo persistir el desenlace del evento")
		if callErr == nil {
			return uerr
		}
	}
	return callErr
}
