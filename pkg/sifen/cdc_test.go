package sifen_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
	"github.com/nandutech/sifen-api/pkg/sifen"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestBuildCDC valida la generación del CDC de 44 caracteres contra un vector
// calculado a mano con el algoritmo módulo 11 del Manual Técnico SIFEN.
//
// Vector de referencia:
//
//	base = "01" + "80123456" + "001" + "0000001" + "1" + "20240501" + "12345678"
//	suma ponderada (pesos 2..7 desde la derecha) = 370, 370 % 11 = 7, DV = 11-7 = 4
//	CDC  = base + "0000004"
// ──────────────────────────────────────────────────────────────────────────────

const testCDCExpected = "01801234560010000001120240501123456780000004"

func buildTestCDCParams() sifen.CDCParams {
	return sifen.CDCParams{
		DocType:      sifen.DocTypeFactura,
		RUC:          "80123456-5",
		Expedition:   "001",
		Sequence:     1,
		EmissionType: sifen.EmissionNormal,
		IssueDate:    time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		SecurityCode: "12345678",
	}
}

func TestBuildCDC_VectorExacto(t *testing.T) {
	cdc, err := sifen.BuildCDC(buildTestCDCParams())
	require.NoError(t, err, "BuildCDC no debe fallar con parámetros válidos")
	assert.Equal(t, testCDCExpected, cdc,
		"el CDC debe coincidir con el vector de referencia módulo 11")
}

func TestBuildCDC_Longitud44SoloDigitos(t *testing.T) {
	cdc, err := sifen.BuildCDC(buildTestCDCParams())
	require.NoError(t, err)
	assert.Len(t, cdc, sifen.CDCLength, "el CDC siempre mide 44 caracteres")
	for _, r := range cdc {
		assert.True(t, r >= '0' && r <= '9', "el CDC solo contiene dígitos")
	}
}

// TestBuildCDC_Determinista verifica que el cálculo sea reproducible: mismos
// parámetros siempre producen el mismo código (el número de seguridad entra
// como parámetro, no se genera adentro).
func TestBuildCDC_Determinista(t *testing.T) {
	cdc1, err1 := sifen.BuildCDC(buildTestCDCParams())
	cdc2, err2 := sifen.BuildCDC(buildTestCDCParams())
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, cdc1, cdc2, "mismos parámetros deben producir el mismo CDC")
}

func TestBuildCDC_RUCConDVSeRecorta(t *testing.T) {
	p := buildTestCDCParams()
	p.RUC = "80123456" // sin DV
	sinDV, err := sifen.BuildCDC(p)
	require.NoError(t, err)

	p.RUC = "80123456-5" // con DV
	conDV, err := sifen.BuildCDC(p)
	require.NoError(t, err)

	assert.Equal(t, sinDV, conDV, "el DV del RUC no participa en el CDC")
}

func TestBuildCDC_CambioDeSecuenciaCambiaCodigo(t *testing.T) {
	p1 := buildTestCDCParams()
	p2 := buildTestCDCParams()
	p2.Sequence = 2

	cdc1, _ := sifen.BuildCDC(p1)
	cdc2, _ := sifen.BuildCDC(p2)
	assert.NotEqual(t, cdc1, cdc2, "documentos con números distintos deben tener CDCs distintos")
}

func TestBuildCDC_DefaultsDeEmisionYExpedicion(t *testing.T) {
	p := buildTestCDCParams()
	p.EmissionType = ""
	p.Expedition = ""
	cdc, err := sifen.BuildCDC(p)
	require.NoError(t, err)

	fields, err := sifen.ParseCDC(cdc)
	require.NoError(t, err)
	assert.Equal(t, sifen.EmissionNormal, fields.EmissionType, "emisión vacía equivale a normal")
	assert.Equal(t, "001", fields.Expedition, "expedición vacía equivale al punto 1")
}

// ── Errores de validación ─────────────────────────────────────────────────────

func TestBuildCDC_ErrorTipoDocumentoDesconocido(t *testing.T) {
	p := buildTestCDCParams()
	p.DocType = "99"
	_, err := sifen.BuildCDC(p)
	var verr *siferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tipoDocumento", verr.Field)
}

func TestBuildCDC_ErrorSecuenciaFueraDeRango(t *testing.T) {
	for _, seq := range []int64{0, -1, 10_000_000} {
		p := buildTestCDCParams()
		p.Sequence = seq
		_, err := sifen.BuildCDC(p)
		var verr *siferr.ValidationError
		require.ErrorAs(t, err, &verr, "secuencia %d debe rechazarse", seq)
		assert.Equal(t, "numero", verr.Field)
	}
}

func TestBuildCDC_ErrorRUCInvalido(t *testing.T) {
	p := buildTestCDCParams()
	p.RUC = "sin-numeros"
	_, err := sifen.BuildCDC(p)
	var verr *siferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ruc", verr.Field)
}

func TestBuildCDC_ErrorNumeroSeguridadVacio(t *testing.T) {
	p := buildTestCDCParams()
	p.SecurityCode = ""
	_, err := sifen.BuildCDC(p)
	assert.Error(t, err, "el número de seguridad es obligatorio")
}

// ── ValidateCDC / ParseCDC ────────────────────────────────────────────────────

func TestValidateCDC_VectorValido(t *testing.T) {
	assert.NoError(t, sifen.ValidateCDC(testCDCExpected))
}

func TestValidateCDC_RederivaDigitoVerificador(t *testing.T) {
	// Alterar el último dígito invalida el DV que se re-deriva de los
	// primeros 37 caracteres.
	corrupto := testCDCExpected[:43] + "9"
	err := sifen.ValidateCDC(corrupto)
	var verr *siferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cdc", verr.Field)
}

func TestValidateCDC_LongitudIncorrecta(t *testing.T) {
	assert.Error(t, sifen.ValidateCDC("123"), "menos de 44 caracteres")
	assert.Error(t, sifen.ValidateCDC(testCDCExpected+"0"), "más de 44 caracteres")
}

func TestValidateCDC_CaracteresNoNumericos(t *testing.T) {
	corrupto := "X" + testCDCExpected[1:]
	assert.Error(t, sifen.ValidateCDC(corrupto))
}

func TestParseCDC_RoundTrip(t *testing.T) {
	fields, err := sifen.ParseCDC(testCDCExpected)
	require.NoError(t, err)

	assert.Equal(t, sifen.DocTypeFactura, fields.DocType)
	assert.Equal(t, "80123456", fields.RUC)
	assert.Equal(t, "001", fields.Expedition)
	assert.Equal(t, "0000001", fields.Sequence)
	assert.Equal(t, sifen.EmissionNormal, fields.EmissionType)
	assert.Equal(t, "20240501", fields.IssueDate)
	assert.Equal(t, "12345678", fields.SecurityCode)
	assert.Equal(t, "0000004", fields.CheckDigit)
}

func TestParseCDC_RechazaCDCInvalido(t *testing.T) {
	_, err := sifen.ParseCDC("no-es-un-cdc")
	assert.Error(t, err)
}

func TestCheckDigit_VectorConocido(t *testing.T) {
	// suma = 370, 370 % 11 = 7, DV = 11 - 7 = 4
	assert.Equal(t, 4, sifen.CheckDigit(testCDCExpected[:37]))
}
