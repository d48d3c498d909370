// Package sifen contiene catálogos, el CDC y validaciones alineados al
// Manual Técnico SIFEN / e-Kuatia (SET, Paraguay), versión de formato 150.
package sifen

// Versión del formato XML declarada en todo payload (dVerFor).
const FormatVersion = "150"

// Longitud fija del CDC (Código de Control del Documento).
const CDCLength = 44

// MaxBatchSize documentos/eventos por lote admitidos por siRecepLoteDE.
const MaxBatchSize = 15

// =============================================================================
// Tipos de Documento Electrónico (iTiDE / C002)
// =============================================================================

const (
	DocTypeFactura     = "01" // Factura electrónica
	DocTypeAutofactura = "04" // Autofactura electrónica
	DocTypeNotaCredito = "05" // Nota de crédito electrónica (NCE)
	DocTypeNotaDebito  = "06" // Nota de débito electrónica (NDE)
	DocTypeRemision    = "07" // Nota de remisión electrónica
)

// DocTypeNames descripciones oficiales por tipo (dDesTiDE).
var DocTypeNames = map[string]string{
	DocTypeFactura:     "Factura electrónica",
	DocTypeAutofactura: "Autofactura electrónica",
	DocTypeNotaCredito: "Nota de crédito electrónica",
	DocTypeNotaDebito:  "Nota de débito electrónica",
	DocTypeRemision:    "Nota de remisión electrónica",
}

// ValidDocType indica si el código de tipo de documento pertenece al catálogo.
func ValidDocType(code string) bool {
	_, ok := DocTypeNames[code]
	return ok
}

// =============================================================================
// Tipos de emisión (iTipEmi)
// =============================================================================

const (
	EmissionNormal      = "1" // Emisión normal
	EmissionContingency = "2" // Emisión en contingencia
)

// =============================================================================
// Eventos (rTEv) y motivos
// =============================================================================

const (
	EventCancelacion    = "690" // Cancelación de DE (ventana 48h)
	EventInutilizacion  = "691" // Inutilización de rango de numeración
	EventDevolucion     = "692" // Devolución (evento automático por NCE E401)
	EventAjuste         = "693" // Ajuste (evento automático por NCE E402)
	EventNotificacion   = "694" // Notificación del receptor
	EventConformidad    = "695" // Conformidad del receptor
	EventDisconformidad = "696" // Disconformidad del receptor
)

// EventNames descripciones por código de evento (dDesTEv).
var EventNames = map[string]string{
	EventCancelacion:    "Cancelación",
	EventInutilizacion:  "Inutilización",
	EventDevolucion:     "Devolución",
	EventAjuste:         "Ajuste",
	EventNotificacion:   "Notificación Receptor",
	EventConformidad:    "Conformidad",
	EventDisconformidad: "Disconformidad",
}

// Motivos de NCE (grupo E400). E401 genera evento de devolución, E402 de ajuste.
const (
	NCEMotiveDevolucion = "E401" // Devolución de mercaderías
	NCEMotiveAjuste     = "E402" // Ajuste en precio, cantidad o descuento
)

// NCEMotiveNames descripciones por motivo de NCE.
var NCEMotiveNames = map[string]string{
	NCEMotiveDevolucion: "Devolución de mercaderías",
	NCEMotiveAjuste:     "Ajuste en precio, cantidad o descuento",
}

// NCEEventForMotive mapea el motivo de la NCE al evento automático que dispara.
// El motivo es obligatorio: no existe evento por defecto.
var NCEEventForMotive = map[string]string{
	NCEMotiveDevolucion: EventDevolucion,
	NCEMotiveAjuste:     EventAjuste,
}

// Motivos de inutilización de rango.
const (
	NullifyMotiveNumeracion   = "E501" // Error en la numeración
	NullifyMotiveFallaSistema = "E502" // Falla en el sistema
	NullifyMotiveOtros        = "E503" // Otros motivos técnicos
)

// =============================================================================
// Afectación tributaria del ítem (iAfecIVA) y tasas admitidas
// =============================================================================

const (
	IVAGravado   = "1" // Gravado IVA
	IVAExonerado = "2" // Exonerado
	IVAExento    = "3" // Exento
)

// ValidIVARates tasas de IVA admitidas en Paraguay (porcentaje).
var ValidIVARates = map[int64]bool{0: true, 5: true, 10: true}

// =============================================================================
// Unidades de medida (cUniMed) de uso frecuente
// =============================================================================

const (
	UnitUnidad   = "77" // Unidad
	UnitKilogram = "83" // Kilogramo
	UnitLitro    = "88" // Litro
	UnitMetro    = "86" // Metro
)

// =============================================================================
// Monedas y precisión (exponente de la unidad menor)
// =============================================================================

// CurrencyGuarani moneda por defecto de los DE.
const CurrencyGuarani = "PYG"

// CurrencyExponents decimales de la unidad menor por moneda.
// El guaraní no tiene unidad menor: los montos se redondean a entero.
var CurrencyExponents = map[string]int32{
	"PYG": 0,
	"USD": 2,
	"BRL": 2,
	"ARS": 2,
}

// CurrencyExponent devuelve la precisión de redondeo para la moneda (PYG por defecto).
func CurrencyExponent(code string) int32 {
	if exp, ok := CurrencyExponents[code]; ok {
		return exp
	}
	return 0
}

// =============================================================================
// Códigos de respuesta de la SET
// =============================================================================

// ResponseCodeOK códigos dCodRes que la SET emite para procesamiento exitoso.
var ResponseCodeOK = map[string]bool{
	"0260": true, // DE recibido y aprobado
	"0261": true, // Lote recibido
	"0262": true, // Evento registrado
}

// =============================================================================
// Códigos geográficos de Paraguay (departamentos)
// =============================================================================

// Departments códigos de departamento (cDepEmi/cDepRec) y sus descripciones.
var Departments = map[string]string{
	"01": "Concepción",
	"02": "San Pedro",
	"03": "Cordillera",
	"04": "Guairá",
	"05": "Caaguazú",
	"06": "Caazapá",
	"07": "Itapúa",
	"08": "Misiones",
	"09": "Paraguarí",
	"10": "Central",
	"11": "Alto Paraguay",
	"12": "Alto Paraná",
	"13": "Amambay",
	"14": "Boquerón",
	"15": "Caaguazú",
	"16": "Caazapá",
	"17": "Canindeyú",
	"18": "Presidente Hayes",
	"19": "Asunción",
}

// Valores por defecto cuando la empresa no tiene geografía cargada.
const (
	DefaultDepartmentCode = "11"
	DefaultDistrictCode   = "1"
	DefaultCityCode       = "1"
)
