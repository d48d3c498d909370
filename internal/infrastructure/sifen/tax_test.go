package sifen_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
)

// ──────────────────────────────────────────────────────────────────────────────
// Vectores de referencia (PYG, 0 decimales, half-away-from-zero):
//
//	bruto 100.000 Gs al 10%: base = 100000/1.10 = 90909,09... → 90909, IVA 9091
//	bruto  50.000 Gs al  5%: base =  50000/1.05 = 47619,04... → 47619, IVA 2381
// ──────────────────────────────────────────────────────────────────────────────

func itemGravado(gross int64, rate int64) entity.DocumentItem {
	return entity.DocumentItem{
		Description: "producto de prueba",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.NewFromInt(gross),
		IVARate:     rate,
	}
}

func TestComputeLineTax_Vector10PorCiento(t *testing.T) {
	lt, err := infrasifen.ComputeLineTax(itemGravado(100_000, 10), "PYG")
	require.NoError(t, err)

	assert.Equal(t, "100000", lt.Gross.String(), "bruto de la línea")
	assert.Equal(t, "90909", lt.Base.String(), "base gravada 10%")
	assert.Equal(t, "9091", lt.Tax.String(), "IVA liquidado 10%")
}

func TestComputeLineTax_Vector5PorCiento(t *testing.T) {
	lt, err := infrasifen.ComputeLineTax(itemGravado(50_000, 5), "PYG")
	require.NoError(t, err)

	assert.Equal(t, "47619", lt.Base.String(), "base gravada 5%")
	assert.Equal(t, "2381", lt.Tax.String(), "IVA liquidado 5%")
}

// La base más el IVA redondeados pueden diferir del bruto en 1 Gs por el
// redondeo; los valores exactos en cambio siempre suman el bruto exacto.
func TestComputeLineTax_ExactosSumanElBruto(t *testing.T) {
	lt, err := infrasifen.ComputeLineTax(itemGravado(100_000, 10), "PYG")
	require.NoError(t, err)
	assert.True(t, lt.ExactBase.Add(lt.ExactTax).Equal(lt.ExactGross),
		"base exacta + IVA exacto = bruto exacto")
}

func TestComputeLineTax_Exenta(t *testing.T) {
	item := itemGravado(75_000, 10)
	item.Exempt = true
	lt, err := infrasifen.ComputeLineTax(item, "PYG")
	require.NoError(t, err)

	assert.Equal(t, "75000", lt.Gross.String())
	assert.True(t, lt.Base.IsZero(), "una línea exenta no tiene base gravada")
	assert.True(t, lt.Tax.IsZero(), "una línea exenta no liquida IVA")
}

func TestComputeLineTax_TasaCeroEquivaleAExenta(t *testing.T) {
	lt, err := infrasifen.ComputeLineTax(itemGravado(75_000, 0), "PYG")
	require.NoError(t, err)
	assert.True(t, lt.Tax.IsZero())
}

func TestComputeLineTax_TasaInvalida(t *testing.T) {
	_, err := infrasifen.ComputeLineTax(itemGravado(1000, 19), "PYG")
	var verr *siferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "iva_rate", verr.Field)
}

func TestComputeLineTax_CantidadFraccionaria(t *testing.T) {
	item := entity.DocumentItem{
		Description: "gasoil",
		Quantity:    decimal.RequireFromString("2.5"),
		UnitPrice:   decimal.NewFromInt(10_000),
		IVARate:     10,
	}
	lt, err := infrasifen.ComputeLineTax(item, "PYG")
	require.NoError(t, err)
	assert.Equal(t, "25000", lt.Gross.String(), "2.5 × 10000")
}

// ── ComputeTotals ─────────────────────────────────────────────────────────────

func TestComputeTotals_MixtoPorTasa(t *testing.T) {
	exenta := itemGravado(30_000, 10)
	exenta.Exempt = true

	totals, err := infrasifen.ComputeTotals([]entity.DocumentItem{
		itemGravado(100_000, 10),
		itemGravado(50_000, 5),
		exenta,
	}, "PYG")
	require.NoError(t, err)

	assert.Equal(t, "30000", totals.Exempt.String())
	assert.Equal(t, "47619", totals.Base5.String())
	assert.Equal(t, "90909", totals.Base10.String())
	assert.Equal(t, "2381", totals.IVA5.String())
	assert.Equal(t, "9091", totals.IVA10.String())
	assert.Equal(t, "180000", totals.GrandTotal.String())
}

// TestComputeTotals_SinDerivaDeDobleRedondeo verifica que los totales se
// redondean una sola vez sobre la suma de valores exactos, no sobre los
// valores ya redondeados por línea. Tres líneas de 16 Gs al 10%: IVA exacto
// por línea 1,4545..., la suma 4,3636... redondea a 4; sumar los redondeados
// daría 1+1+1 = 3.
func TestComputeTotals_SinDerivaDeDobleRedondeo(t *testing.T) {
	items := []entity.DocumentItem{
		itemGravado(16, 10),
		itemGravado(16, 10),
		itemGravado(16, 10),
	}
	totals, err := infrasifen.ComputeTotals(items, "PYG")
	require.NoError(t, err)

	// IVA exacto por línea: 16 − 16/1.1 = 1,4545...; suma 4,3636... → 4.
	assert.Equal(t, "4", totals.IVA10.String(),
		"el total se redondea una vez sobre la suma exacta")
	assert.Equal(t, "48", totals.GrandTotal.String())
}

func TestComputeTotals_SinItems(t *testing.T) {
	_, err := infrasifen.ComputeTotals(nil, "PYG")
	var verr *siferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)
}

func TestComputeTotals_PropagaTasaInvalida(t *testing.T) {
	_, err := infrasifen.ComputeTotals([]entity.DocumentItem{itemGravado(1000, 7)}, "PYG")
	assert.Error(t, err)
}
