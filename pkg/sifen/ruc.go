package sifen

import (
	"fmt"
	"strings"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
)

// ComputeRUCCheckDigit calcula el dígito verificador del RUC paraguayo
// (módulo 11, base 2, pesos ascendentes desde el dígito de la derecha).
// Acepta el RUC con o sin guiones/puntos; usa solo la parte base.
func ComputeRUCCheckDigit(ruc string) (int, error) {
	digits := rucWithoutDV(ruc)
	if digits == "" {
		return 0, siferr.NewValidation("ruc", fmt.Sprintf("%q no contiene dígitos", ruc))
	}
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 11 {
			weight = 2
		}
	}
	remainder := sum % 11
	if remainder > 1 {
		return 11 - remainder, nil
	}
	return 0, nil
}

// ValidateRUC valida que un RUC en formato "base-DV" tenga el dígito
// verificador correcto.
func ValidateRUC(ruc string) error {
	idx := strings.Index(ruc, "-")
	if idx == -1 || idx == len(ruc)-1 {
		return siferr.NewValidation("ruc", fmt.Sprintf("%q debe tener formato base-DV", ruc))
	}
	dv := onlyDigits(ruc[idx+1:])
	if len(dv) != 1 {
		return siferr.NewValidation("ruc", fmt.Sprintf("dígito verificador %q inválido", ruc[idx+1:]))
	}
	want, err := ComputeRUCCheckDigit(ruc[:idx])
	if err != nil {
		return err
	}
	if int(dv[0]-'0') != want {
		return siferr.NewValidation("ruc", fmt.Sprintf("dígito verificador %s, se esperaba %d", dv, want))
	}
	return nil
}

// NormalizeRUC devuelve la parte base del RUC, solo dígitos, sin DV.
func NormalizeRUC(ruc string) string {
	return rucWithoutDV(ruc)
}
