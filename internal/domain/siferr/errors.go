// Package siferr define la taxonomía de errores del motor de documentos
// electrónicos. Cada clase se distingue con errors.As para que los llamadores
// decidan reintentos, correcciones o eventos compensatorios.
package siferr

import (
	"fmt"
	"strings"
)

// ValidationError entrada local malformada o incompleta. Nunca viaja al WS.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validación: " + e.Reason
	}
	return fmt.Sprintf("validación: campo %s: %s", e.Field, e.Reason)
}

// NewValidation crea un ValidationError para un campo concreto.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateTransitionError transición de estado no permitida por la máquina
// de estados del documento (p. ej. cancelar un documento no aprobado).
type InvalidStateTransitionError struct {
	CDC  string
	From string
	To   string
	Why  string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("transición inválida %s -> %s", e.From, e.To)
	if e.CDC != "" {
		msg += " (CDC " + e.CDC + ")"
	}
	if e.Why != "" {
		msg += ": " + e.Why
	}
	return msg
}

// InvalidBusinessRuleError violación de una regla de negocio local
// (p. ej. NCE con total igual al documento original).
type InvalidBusinessRuleError struct {
	Rule   string
	Detail string
}

func (e *InvalidBusinessRuleError) Error() string {
	return fmt.Sprintf("regla de negocio %s: %s", e.Rule, e.Detail)
}

// RangeConflictError el rango de numeración a inutilizar contiene documentos ya emitidos.
type RangeConflictError struct {
	Serie string
	Start int64
	End   int64
}

func (e *RangeConflictError) Error() string {
	return fmt.Sprintf("rango en conflicto: existen documentos emitidos en serie %s, rango %d-%d", e.Serie, e.Start, e.End)
}

// CertificateError el contenedor P12 no pudo abrirse o el certificado no es utilizable.
type CertificateError struct {
	Path string
	Err  error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("certificado %s: %v", e.Path, e.Err)
}

func (e *CertificateError) Unwrap() error { return e.Err }

// SigningError fallo criptográfico durante la firma (llave/digest). No se reintenta.
type SigningError struct {
	Step string
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("firma digital (%s): %v", e.Step, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// TransportError fallo de red/timeout tras agotar el presupuesto de reintentos,
// o respuesta HTTP no-2xx sin payload de negocio parseable.
type TransportError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transporte %s: %d intento(s) fallidos: %v", e.Operation, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FieldError error de campo devuelto por la SET dentro de un rechazo estructurado.
type FieldError struct {
	Code    string // dCodErr
	Message string // dMsgErr
	Field   string // dCamErr
}

func (e FieldError) String() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (campo %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// RemoteRejectedError la SET devolvió un rechazo de negocio estructurado.
// Terminal: requiere datos nuevos o un evento correctivo, nunca reintento automático.
type RemoteRejectedError struct {
	Operation string
	Status    string // dCodRes
	Message   string // dMsgRes
	Errors    []FieldError
}

func (e *RemoteRejectedError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	msg := fmt.Sprintf("rechazo SET en %s [%s]: %s", e.Operation, e.Status, e.Message)
	if len(parts) > 0 {
		msg += " — " + strings.Join(parts, "; ")
	}
	return msg
}
