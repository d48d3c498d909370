// Package sifen implementa la generación de XML rDE/rEvento y el transporte
// SOAP hacia los web services de la SET (e-Kuatia, Paraguay).
package sifen

import (
	"github.com/shopspring/decimal"

	"github.com/nandutech/sifen-api/internal/domain/entity"
)

// Namespaces oficiales SIFEN (Manual Técnico v150).
const (
	// Namespace de todos los payloads e-Kuatia
	NsSifen = "http://ekuatia.set.gov.py/sifen/xsd"
	// XML Schema Instance (para schemaLocation)
	nsXsi = "http://www.w3.org/2001/XMLSchema-instance"
	// Schema location del rDE
	schemaLocationRDE = "http://ekuatia.set.gov.py/sifen/xsd siRecepDE_v150.xsd"
	// Schema location del rEvento
	schemaLocationEvento = "http://ekuatia.set.gov.py/sifen/xsd siRecepEvento_v150.xsd"
)

// DocumentBuildContext datos necesarios para construir el rDE de un documento.
type DocumentBuildContext struct {
	Document *entity.Document
	Company  *entity.Company // Emisor (gDatEmi)
}

// Totals agregados tributarios del documento. Cada total es la suma de los
// valores exactos por línea con un único redondeo final, para evitar la
// deriva de doble redondeo.
type Totals struct {
	Exempt     decimal.Decimal // dSubExe
	Base5      decimal.Decimal // dBaseGrav5
	Base10     decimal.Decimal // dBaseGrav10
	IVA5       decimal.Decimal // dIVA5
	IVA10      decimal.Decimal // dIVA10
	GrandTotal decimal.Decimal // dTotalGs (bruto, IVA incluido)
}

// LineTax tratamiento tributario calculado de una línea.
type LineTax struct {
	Gross decimal.Decimal // dTotBruOpeItem (redondeado)
	Base  decimal.Decimal // dBasGravIVA (redondeado)
	Tax   decimal.Decimal // dLiqIVAItem (redondeado)

	// Valores exactos, sin redondear, para acumular en los totales.
	ExactGross decimal.Decimal
	ExactBase  decimal.Decimal
	ExactTax   decimal.Decimal
}
