package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nandutech/sifen-api/internal/application/billing"
	"github.com/nandutech/sifen-api/internal/application/dto"
	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
	"github.com/nandutech/sifen-api/pkg/sifen"
)

// DocumentHandler maneja las peticiones HTTP de documentos electrónicos.
type DocumentHandler struct {
	issue   *billing.IssueService
	notes   *billing.CreditNoteService
	events  *billing.EventService
	docRepo repository.DocumentRepository
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(issue *billing.IssueService, notes *billing.CreditNoteService, events *billing.EventService, docRepo repository.DocumentRepository) *DocumentHandler {
	return &DocumentHandler{issue: issue, notes: notes, events: events, docRepo: docRepo}
}

// Issue emite un documento de punta a punta (CDC → XML → firma → envío).
// POST /api/v1/documents
func (h *DocumentHandler) Issue(c *fiber.Ctx) error {
	var in dto.IssueDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	input := billing.IssueInput{
		CompanyID:    in.CompanyID,
		DocType:      in.DocType,
		Serie:        in.Serie,
		Number:       in.Number,
		ReceiverRUC:  in.ReceiverRUC,
		ReceiverName: in.ReceiverName,
		ReceiverDir:  in.ReceiverDir,
		Currency:     in.Currency,
		Items:        toItems(in.Items),
	}
	if in.IssueDate != nil {
		input.IssueDate = *in.IssueDate
	}

	doc, err := h.issue.Issue(c.Context(), input)
	if err != nil {
		// El documento puede haber quedado persistido en rechazado/error:
		// lo incluimos en la respuesta de error cuando existe.
		if doc != nil && doc.Status == entity.StatusRejected {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.FromDocument(doc))
		}
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromDocument(doc))
}

// GetByCDC obtiene el documento local por CDC, con su historial.
// GET /api/v1/documents/:cdc
func (h *DocumentHandler) GetByCDC(c *fiber.Ctx) error {
	cdc := c.Params("cdc")
	doc, err := h.docRepo.GetByCDC(c.Context(), cdc)
	if err != nil {
		return respondError(c, err)
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento no encontrado"})
	}
	return c.JSON(dto.FromDocument(doc))
}

// DownloadXML descarga el rDE firmado tal como viajó a la SET.
// GET /api/v1/documents/:cdc/xml
func (h *DocumentHandler) DownloadXML(c *fiber.Ctx) error {
	cdc := c.Params("cdc")
	doc, err := h.docRepo.GetByCDC(c.Context(), cdc)
	if err != nil {
		return respondError(c, err)
	}
	if doc == nil || doc.XMLSigned == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "el documento no tiene XML firmado"})
	}

	fields, err := sifen.ParseCDC(doc.CDC)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+sifen.ArtifactName(fields.RUC, doc.CDC, "xml")+`"`)
	return c.SendString(doc.XMLSigned)
}

// QueryRemote consulta el estado del CDC directamente en la SET.
// GET /api/v1/documents/:cdc/remote
func (h *DocumentHandler) QueryRemote(c *fiber.Ctx) error {
	resp, err := h.events.QueryDocument(c.Context(), c.Params("cdc"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Cancel cancela un documento aprobado (evento 690, ventana 48h).
// POST /api/v1/documents/:cdc/cancel
func (h *DocumentHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "el motivo es obligatorio"})
	}
	ev, err := h.events.CancelDocument(c.Context(), c.Params("cdc"), in.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromEvent(ev))
}

// CreditNote emite una NCE sobre un documento aprobado.
// POST /api/v1/documents/:cdc/credit-note
func (h *DocumentHandler) CreditNote(c *fiber.Ctx) error {
	var in dto.CreditNoteRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	nce, err := h.notes.Create(c.Context(), billing.CreditNoteInput{
		CompanyID:   in.CompanyID,
		OriginalCDC: c.Params("cdc"),
		Motive:      in.Motive,
		Serie:       in.Serie,
		Items:       toItems(in.Items),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromDocument(nce))
}

// Notify registra una notificación del receptor sobre el documento.
// POST /api/v1/documents/:cdc/notify
func (h *DocumentHandler) Notify(c *fiber.Ctx) error {
	var in dto.NotifyReceiverRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	ev, err := h.events.NotifyReceiver(c.Context(), c.Params("cdc"), in.EventCode, in.ReceiverRUC, in.Details)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromEvent(ev))
}

// QueryRUC consulta un contribuyente en la SET.
// GET /api/v1/ruc/:ruc
func (h *DocumentHandler) QueryRUC(c *fiber.Ctx) error {
	resp, err := h.events.QueryRUC(c.Context(), c.Params("ruc"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func toItems(in []dto.DocumentItemRequest) []entity.DocumentItem {
	items := make([]entity.DocumentItem, 0, len(in))
	for _, r := range in {
		items = append(items, r.ToEntity())
	}
	return items
}
