package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nandutech/sifen-api/internal/application/billing"
	"github.com/nandutech/sifen-api/internal/application/dto"
)

// EventHandler maneja las peticiones HTTP de eventos.
type EventHandler struct {
	events    *billing.EventService
	processor *billing.EventBatchProcessor
}

// NewEventHandler construye el handler.
func NewEventHandler(events *billing.EventService, processor *billing.EventBatchProcessor) *EventHandler {
	return &EventHandler{events: events, processor: processor}
}

// Nullify inutiliza un rango de numeración nunca emitido.
// POST /api/v1/events/nullify
func (h *EventHandler) Nullify(c *fiber.Ctx) error {
	var in dto.NullifyRangeRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	ev, err := h.events.NullifyRange(c.Context(), in.CompanyID, in.Serie, in.Start, in.End, in.Motive, in.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromEvent(ev))
}

// ProcessBatch dispara una corrida del procesador de eventos pendientes.
// POST /api/v1/events/process-batch
func (h *EventHandler) ProcessBatch(c *fiber.Ctx) error {
	summary, err := h.processor.ProcessPending(c.Context())
	if err != nil && summary == nil {
		return respondError(c, err)
	}
	// Con fallo de transporte el resumen igual informa cuántos quedaron en error.
	return c.JSON(dto.BatchSummaryResponse{
		Pulled:   summary.Pulled,
		Approved: summary.Approved,
		Rejected: summary.Rejected,
		Sent:     summary.Sent,
		Errored:  summary.Errored,
		Protocol: summary.Protocol,
	})
}

// Requeue reencola los eventos en error para una corrida futura.
// POST /api/v1/events/requeue
func (h *EventHandler) Requeue(c *fiber.Ctx) error {
	moved, err := h.processor.RequeueErrored(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"requeued": moved})
}

// Stats conteo de eventos por estado.
// GET /api/v1/events/stats
func (h *EventHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.processor.Stats(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}
