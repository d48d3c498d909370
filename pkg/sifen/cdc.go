// Cálculo del CDC (Código de Control del Documento) según el Manual Técnico SIFEN.
//
// Estructura (44 caracteres, campos de ancho fijo rellenados con ceros):
//
//	pos 01-02 tipo de documento
//	pos 03-10 RUC del emisor sin dígito verificador
//	pos 11-13 punto de expedición
//	pos 14-20 número del documento
//	pos 21    tipo de emisión (1=normal, 2=contingencia)
//	pos 22-29 fecha de emisión AAAAMMDD
//	pos 30-37 número de seguridad
//	pos 38-44 dígito verificador (módulo 11, relleno a la izquierda)

package sifen

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
)

// CDCParams datos de entrada para construir el CDC. El número de seguridad lo
// provee el llamador (no se genera aquí) para que el cálculo sea reproducible.
type CDCParams struct {
	DocType      string    // iTiDE, 2 dígitos ("01", "05", ...)
	RUC          string    // RUC del emisor; se admite con DV ("80123456-7") y se recorta
	Expedition   string    // punto de expedición, hasta 3 dígitos
	Sequence     int64     // número del documento, 1..9999999
	EmissionType string    // "1" normal, "2" contingencia; vacío = normal
	IssueDate    time.Time // fecha de emisión (solo la fecha participa)
	SecurityCode string    // número de seguridad, hasta 8 dígitos
}

// BuildCDC genera el CDC de 44 caracteres. Determinista: mismos parámetros,
// mismo código.
func BuildCDC(p CDCParams) (string, error) {
	docType := p.DocType
	if docType == "" {
		docType = DocTypeFactura
	}
	if !ValidDocType(docType) {
		return "", siferr.NewValidation("tipoDocumento", fmt.Sprintf("código desconocido %q", docType))
	}

	ruc := rucWithoutDV(p.RUC)
	if ruc == "" || len(ruc) > 8 {
		return "", siferr.NewValidation("ruc", fmt.Sprintf("no se pudo normalizar %q a 8 dígitos", p.RUC))
	}

	if p.Sequence < 1 || p.Sequence > 9999999 {
		return "", siferr.NewValidation("numero", fmt.Sprintf("secuencia %d fuera de rango (1..9999999)", p.Sequence))
	}

	expedition := onlyDigits(p.Expedition)
	if expedition == "" {
		expedition = "1"
	}
	if len(expedition) > 3 {
		return "", siferr.NewValidation("puntoExpedicion", fmt.Sprintf("%q excede 3 dígitos", p.Expedition))
	}

	emission := p.EmissionType
	if emission == "" {
		emission = EmissionNormal
	}
	if emission != EmissionNormal && emission != EmissionContingency {
		return "", siferr.NewValidation("tipoEmision", fmt.Sprintf("valor %q (usar 1 o 2)", p.EmissionType))
	}

	security := onlyDigits(p.SecurityCode)
	if security == "" || len(security) > 8 {
		return "", siferr.NewValidation("numeroSeguridad", fmt.Sprintf("%q no normaliza a 8 dígitos", p.SecurityCode))
	}

	base := fmt.Sprintf("%02s%08s%03s%07d%s%s%08s",
		docType,
		ruc,
		expedition,
		p.Sequence,
		emission,
		p.IssueDate.Format("20060102"),
		security,
	)

	dv := CheckDigit(base)
	return fmt.Sprintf("%s%07d", base, dv), nil
}

// CheckDigit calcula el dígito verificador módulo 11 sobre la cadena de dígitos.
// Los pesos ciclan 2..7 desde el dígito de más a la derecha; si el resto es
// menor a 2 el dígito es el resto, si no 11 menos el resto.
func CheckDigit(base string) int {
	sum := 0
	weight := 2
	for i := len(base) - 1; i >= 0; i-- {
		sum += int(base[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	remainder := sum % 11
	if remainder < 2 {
		return remainder
	}
	return 11 - remainder
}

// ValidateCDC verifica longitud, que todos los caracteres sean dígitos y que el
// dígito verificador se re-derive de los primeros 37.
func ValidateCDC(cdc string) error {
	if len(cdc) != CDCLength {
		return siferr.NewValidation("cdc", fmt.Sprintf("longitud %d, se esperan %d", len(cdc), CDCLength))
	}
	for _, r := range cdc {
		if !unicode.IsDigit(r) {
			return siferr.NewValidation("cdc", "contiene caracteres no numéricos")
		}
	}
	base := cdc[:37]
	want := fmt.Sprintf("%07d", CheckDigit(base))
	if cdc[37:] != want {
		return siferr.NewValidation("cdc", fmt.Sprintf("dígito verificador %s, se esperaba %s", cdc[37:], want))
	}
	return nil
}

// CDCFields campos decodificados de un CDC válido.
type CDCFields struct {
	DocType      string
	RUC          string
	Expedition   string
	Sequence     string
	EmissionType string
	IssueDate    string // AAAAMMDD
	SecurityCode string
	CheckDigit   string
}

// ParseCDC descompone un CDC válido en sus campos.
func ParseCDC(cdc string) (CDCFields, error) {
	if err := ValidateCDC(cdc); err != nil {
		return CDCFields{}, err
	}
	return CDCFields{
		DocType:      cdc[0:2],
		RUC:          cdc[2:10],
		Expedition:   cdc[10:13],
		Sequence:     cdc[13:20],
		EmissionType: cdc[20:21],
		IssueDate:    cdc[21:29],
		SecurityCode: cdc[29:37],
		CheckDigit:   cdc[37:44],
	}, nil
}

// rucWithoutDV recorta el dígito verificador ("80123456-7" -> "80123456") y
// deja solo dígitos.
func rucWithoutDV(ruc string) string {
	if idx := strings.Index(ruc, "-"); idx != -1 {
		ruc = ruc[:idx]
	}
	return onlyDigits(ruc)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
