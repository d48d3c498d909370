package entity

import "time"

// Estados del evento. Un evento solo sale de pendiente cuando hay un resultado
// de transporte registrado; nunca se borra (traza de auditoría append-only).
const (
	EventStatusPending  = "pendiente"
	EventStatusSent     = "enviado"
	EventStatusApproved = "aprobado"
	EventStatusRejected = "rechazado"
	EventStatusError    = "error"
)

// DocumentEvent evento SIFEN (cancelación, inutilización, devolución, ajuste,
// notificaciones del receptor). Los de inutilización no refieren a un documento.
type DocumentEvent struct {
	ID         string
	CompanyID  string
	DocumentID string // vacío para inutilización de rango

	EventType string // nombre del catálogo ("cancelacion", "inutilizacion", ...)
	EventCode string // rTEv numérico ("690", "691", ...)

	Description string // motivo / detalle libre
	XMLSigned   string // rEvento firmado listo para enviar

	Status          string
	ResponseCode    string
	ResponseMessage string
	Protocol        string
	ErrorDetail     string // detalle del último fallo de transporte, para reconciliar

	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// Resolved indica si el evento ya tiene un desenlace registrado.
func (e *DocumentEvent) Resolved() bool {
	return e.Status == EventStatusApproved || e.Status == EventStatusRejected
}
