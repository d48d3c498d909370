package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida del documento electrónico.
const (
	StatusPending   = "pendiente" // creado, sin XML
	StatusGenerated = "generado"  // XML construido
	StatusSigned    = "firmado"   // XML firmado
	StatusSent      = "enviado"   // entregado al WS, respuesta pendiente
	StatusApproved  = "aprobado"  // aprobado por la SET
	StatusRejected  = "rechazado" // rechazado por la SET
	StatusCancelled = "cancelado" // cancelado por evento posterior
	StatusError     = "error"     // fallo no recuperable en la etapa actual
)

// CancellationWindow ventana desde la emisión dentro de la cual la SET admite
// la cancelación de un DE aprobado.
const CancellationWindow = 48 * time.Hour

// StatusChange entrada del historial de auditoría de un documento.
type StatusChange struct {
	Timestamp time.Time `json:"timestamp"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Detail    string    `json:"detail,omitempty"`
}

// DocumentItem línea del documento con su tratamiento tributario.
type DocumentItem struct {
	Description string
	UnitCode    string // cUniMed; vacío = unidad
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	IVARate     int64 // 0, 5 o 10 (porcentaje)
	Exempt      bool  // true = iAfecIVA 3
}

// GrossAmount total bruto de la línea (cantidad × precio unitario, IVA incluido).
func (i DocumentItem) GrossAmount() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// Document documento electrónico (factura, autofactura, NCE, NDE, remisión).
// El CDC es inmutable una vez asignado y lo identifica de forma única.
type Document struct {
	ID        string
	CompanyID string

	CDC       string
	DocType   string // catálogo iTiDE
	Serie     string
	Number    int64
	IssueDate time.Time

	// Receptor. RUC opcional (consumidor final sin RUC).
	ReceiverRUC  string
	ReceiverName string
	ReceiverDir  string

	Items []DocumentItem

	// Totales calculados por el encoder (suma de valores exactos por línea,
	// redondeo único por total).
	ExemptTotal decimal.Decimal
	TaxedBase5  decimal.Decimal
	TaxedBase10 decimal.Decimal
	IVA5        decimal.Decimal
	IVA10       decimal.Decimal
	GrandTotal  decimal.Decimal

	Currency string // vacío = PYG

	Status    string
	XMLSigned string // payload firmado tal como viajó (o viajará) a la SET

	// Metadatos de la respuesta de la SET
	ResponseCode    string // dCodRes
	ResponseMessage string // dMsgRes
	Protocol        string // dProtDTE / dProtAut

	// Para NCE/NDE: CDC del documento original al que corrigen.
	LinkedCDC string
	NCEMotive string // E401 / E402, solo notas de crédito

	EventHistory []StatusChange

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanBeCancelled ventana de 48h desde la emisión y estado aprobado.
func (d *Document) CanBeCancelled(now time.Time) bool {
	if d.Status != StatusApproved {
		return false
	}
	return now.Sub(d.IssueDate) <= CancellationWindow
}

// IsNotaCredito indica si el documento es una NCE.
func (d *Document) IsNotaCredito() bool {
	return d.DocType == "05"
}

// AppendHistory registra un cambio de estado en el historial de auditoría.
func (d *Document) AppendHistory(now time.Time, oldStatus, newStatus, detail string) {
	d.EventHistory = append(d.EventHistory, StatusChange{
		Timestamp: now,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Detail:    detail,
	})
}
