package sifen

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// ComputeLineTax calcula el tratamiento tributario de una línea. Los precios
// incluyen IVA: base = bruto / (1 + tasa/100), IVA = bruto − base. El redondeo
// es half-away-from-zero a la precisión de la moneda (PYG = 0 decimales).
func ComputeLineTax(item entity.DocumentItem, currency string) (LineTax, error) {
	exp := sifencat.CurrencyExponent(currency)
	gross := item.GrossAmount()

	if item.Exempt || item.IVARate == 0 {
		return LineTax{
			Gross:      gross.Round(exp),
			Base:       decimal.Zero,
			Tax:        decimal.Zero,
			ExactGross: gross,
			ExactBase:  decimal.Zero,
			ExactTax:   decimal.Zero,
		}, nil
	}

	if !validIVARate(item.IVARate) {
		return LineTax{}, siferr.NewValidation("iva_rate", fmt.Sprintf("tasa de IVA inválida: %d (admitidas: 0, 5, 10)", item.IVARate))
	}

	divisor := decimal.NewFromInt(1).Add(decimal.NewFromInt(item.IVARate).Div(decimal.NewFromInt(100)))
	base := gross.DivRound(divisor, 16)
	tax := gross.Sub(base)

	return LineTax{
		Gross:      gross.Round(exp),
		Base:       base.Round(exp),
		Tax:        tax.Round(exp),
		ExactGross: gross,
		ExactBase:  base,
		ExactTax:   tax,
	}, nil
}

// ComputeTotals acumula los valores exactos de cada línea y redondea una sola
// vez por total. No recalcula desde los valores ya redondeados por línea.
func ComputeTotals(items []entity.DocumentItem, currency string) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, siferr.NewValidation("items", "el documento debe tener al menos un ítem")
	}
	exp := sifencat.CurrencyExponent(currency)

	var exempt, base5, base10, iva5, iva10, grand decimal.Decimal
	for _, item := range items {
		lt, err := ComputeLineTax(item, currency)
		if err != nil {
			return Totals{}, err
		}
		grand = grand.Add(lt.ExactGross)
		switch {
		case item.Exempt || item.IVARate == 0:
			exempt = exempt.Add(lt.ExactGross)
		case item.IVARate == 5:
			base5 = base5.Add(lt.ExactBase)
			iva5 = iva5.Add(lt.ExactTax)
		case item.IVARate == 10:
			base10 = base10.Add(lt.ExactBase)
			iva10 = iva10.Add(lt.ExactTax)
		}
	}

	return Totals{
		Exempt:     exempt.Round(exp),
		Base5:      base5.Round(exp),
		Base10:     base10.Round(exp),
		IVA5:       iva5.Round(exp),
		IVA10:      iva10.Round(exp),
		GrandTotal: grand.Round(exp),
	}, nil
}

func validIVARate(rate int64) bool {
	return sifencat.ValidIVARates[rate]
}
