// Package dto define los contratos JSON de la API HTTP.
package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nandutech/sifen-api/internal/domain/entity"
)

// ErrorResponse respuesta de error uniforme de la API.
type ErrorResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Fields  []FieldErrorDTO `json:"fields,omitempty"`
}

// FieldErrorDTO error de campo reportado por la SET.
type FieldErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// DocumentItemRequest línea del documento a emitir.
type DocumentItemRequest struct {
	Description string          `json:"description"`
	UnitCode    string          `json:"unit_code,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	IVARate     int64           `json:"iva_rate"`
	Exempt      bool            `json:"exempt,omitempty"`
}

// ToEntity convierte la línea al modelo de dominio.
func (r DocumentItemRequest) ToEntity() entity.DocumentItem {
	return entity.DocumentItem{
		Description: r.Description,
		UnitCode:    r.UnitCode,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		IVARate:     r.IVARate,
		Exempt:      r.Exempt,
	}
}

// IssueDocumentRequest petición de emisión de un documento electrónico.
type IssueDocumentRequest struct {
	CompanyID    string                `json:"company_id"`
	DocType      string                `json:"doc_type,omitempty"`
	Serie        string                `json:"serie"`
	Number       int64                 `json:"number,omitempty"`
	IssueDate    *time.Time            `json:"issue_date,omitempty"`
	ReceiverRUC  string                `json:"receiver_ruc,omitempty"`
	ReceiverName string                `json:"receiver_name"`
	ReceiverDir  string                `json:"receiver_dir,omitempty"`
	Currency     string                `json:"currency,omitempty"`
	Items        []DocumentItemRequest `json:"items"`
}

// CancelDocumentRequest petición de cancelación (evento 690).
type CancelDocumentRequest struct {
	Reason string `json:"reason"`
}

// CreditNoteRequest petición de NCE sobre un documento aprobado.
type CreditNoteRequest struct {
	CompanyID string                `json:"company_id"`
	Motive    string                `json:"motive"` // E401 o E402
	Serie     string                `json:"serie,omitempty"`
	Items     []DocumentItemRequest `json:"items"`
}

// NullifyRangeRequest petición de inutilización de rango (evento 691).
type NullifyRangeRequest struct {
	CompanyID string `json:"company_id"`
	Serie     string `json:"serie"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Motive    string `json:"motive"` // E501..E503
	Reason    string `json:"reason"`
}

// NotifyReceiverRequest notificación del receptor (eventos 694-696).
type NotifyReceiverRequest struct {
	EventCode   string `json:"event_code"`
	ReceiverRUC string `json:"receiver_ruc"`
	Details     string `json:"details,omitempty"`
}

// DocumentResponse vista JSON de un documento.
type DocumentResponse struct {
	ID              string          `json:"id"`
	CDC             string          `json:"cdc"`
	DocType         string          `json:"doc_type"`
	Serie           string          `json:"serie"`
	Number          int64           `json:"number"`
	IssueDate       time.Time       `json:"issue_date"`
	ReceiverRUC     string          `json:"receiver_ruc,omitempty"`
	ReceiverName    string          `json:"receiver_name"`
	Status          string          `json:"status"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	IVA5            decimal.Decimal `json:"iva_5"`
	IVA10           decimal.Decimal `json:"iva_10"`
	Currency        string          `json:"currency"`
	ResponseCode    string          `json:"response_code,omitempty"`
	ResponseMessage string          `json:"response_message,omitempty"`
	Protocol        string          `json:"protocol,omitempty"`
	LinkedCDC       string          `json:"linked_cdc,omitempty"`
	NCEMotive       string          `json:"nce_motive,omitempty"`

	History []entity.StatusChange `json:"history,omitempty"`
}

// FromDocument arma la vista desde el modelo de dominio.
func FromDocument(d *entity.Document) DocumentResponse {
	currency := d.Currency
	if currency == "" {
		currency = "PYG"
	}
	return DocumentResponse{
		ID:              d.ID,
		CDC:             d.CDC,
		DocType:         d.DocType,
		Serie:           d.Serie,
		Number:          d.Number,
		IssueDate:       d.IssueDate,
		ReceiverRUC:     d.ReceiverRUC,
		ReceiverName:    d.ReceiverName,
		Status:          d.Status,
		GrandTotal:      d.GrandTotal,
		IVA5:            d.IVA5,
		IVA10:           d.IVA10,
		Currency:        currency,
		ResponseCode:    d.ResponseCode,
		ResponseMessage: d.ResponseMessage,
		Protocol:        d.Protocol,
		LinkedCDC:       d.LinkedCDC,
		NCEMotive:       d.NCEMotive,
		History:         d.EventHistory,
	}
}

// EventResponse vista JSON de un evento.
type EventResponse struct {
	ID              string     `json:"id"`
	DocumentID      string     `json:"document_id,omitempty"`
	EventType       string     `json:"event_type"`
	EventCode       string     `json:"event_code"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	ResponseCode    string     `json:"response_code,omitempty"`
	ResponseMessage string     `json:"response_message,omitempty"`
	Protocol        string     `json:"protocol,omitempty"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// FromEvent arma la vista desde el modelo de dominio.
func FromEvent(e *entity.DocumentEvent) EventResponse {
	return EventResponse{
		ID:              e.ID,
		DocumentID:      e.DocumentID,
		EventType:       e.EventType,
		EventCode:       e.EventCode,
		Description:     e.Description,
		Status:          e.Status,
		ResponseCode:    e.ResponseCode,
		ResponseMessage: e.ResponseMessage,
		Protocol:        e.Protocol,
		ErrorDetail:     e.ErrorDetail,
		ProcessedAt:     e.ProcessedAt,
		CreatedAt:       e.CreatedAt,
	}
}

// BatchSummaryResponse resultado de una corrida del procesador de eventos.
type BatchSummaryResponse struct {
	Pulled   int    `json:"pulled"`
	Approved int    `json:"approved"`
	Rejected int    `json:"rejected"`
	Sent     int    `json:"sent"`
	Errored  int    `json:"errored"`
	Protocol string `json:"protocol,omitempty"`
}
