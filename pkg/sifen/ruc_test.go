package sifen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandutech/sifen-api/pkg/sifen"
)

// Vector calculado a mano: RUC 80123456, pesos 2..11 desde la derecha,
// suma = 149, 149 % 11 = 6, DV = 11 - 6 = 5.
func TestComputeRUCCheckDigit_VectorExacto(t *testing.T) {
	dv, err := sifen.ComputeRUCCheckDigit("80123456")
	require.NoError(t, err)
	assert.Equal(t, 5, dv, "el DV de 80123456 debe ser 5")
}

func TestComputeRUCCheckDigit_IgnoraPuntuacion(t *testing.T) {
	dv1, err1 := sifen.ComputeRUCCheckDigit("80123456")
	dv2, err2 := sifen.ComputeRUCCheckDigit("80.123.456")
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, dv1, dv2, "la puntuación no debe alterar el cálculo")
}

func TestComputeRUCCheckDigit_ErrorSinDigitos(t *testing.T) {
	_, err := sifen.ComputeRUCCheckDigit("---")
	assert.Error(t, err, "una cadena sin dígitos debe rechazarse")
}

func TestValidateRUC_Correcto(t *testing.T) {
	assert.NoError(t, sifen.ValidateRUC("80123456-5"))
}

func TestValidateRUC_DVIncorrecto(t *testing.T) {
	err := sifen.ValidateRUC("80123456-7")
	assert.Error(t, err, "un DV distinto al calculado debe rechazarse")
}

func TestValidateRUC_FormatoSinGuion(t *testing.T) {
	assert.Error(t, sifen.ValidateRUC("80123456"), "se exige el formato base-DV")
	assert.Error(t, sifen.ValidateRUC("80123456-"), "el DV no puede estar vacío")
}

func TestNormalizeRUC(t *testing.T) {
	assert.Equal(t, "80123456", sifen.NormalizeRUC("80123456-5"))
	assert.Equal(t, "80123456", sifen.NormalizeRUC("80.123.456"))
	assert.Equal(t, "80123456", sifen.NormalizeRUC("80123456"))
}

func TestArtifactName(t *testing.T) {
	name := sifen.ArtifactName("80123456-5", "0180123456", "xml")
	assert.Equal(t, "80123456_0180123456.xml", name)

	// La extensión se admite con o sin punto inicial.
	assert.Equal(t, name, sifen.ArtifactName("80123456-5", "0180123456", ".xml"))
}

func TestRemoveDiacritics(t *testing.T) {
	assert.Equal(t, "Nanduti", sifen.RemoveDiacritics("Ñandutí"))
	assert.Equal(t, "Asuncion SA", sifen.RemoveDiacritics("Asunción SA"))
	assert.Equal(t, "sin-cambios", sifen.RemoveDiacritics("sin-cambios"))
}
