package sifen

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// XMLBuilderService construye el rDE canónico del documento (sin firma).
// El orden de los elementos es el del esquema siRecepDE_v150: la firma
// canonicaliza el documento, por lo que el orden no es negociable.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el []byte del rDE. El atributo Id del elemento DE lleva el CDC:
// es el destino de la Reference de la firma XMLDSig.
func (s *XMLBuilderService) Build(ctx *DocumentBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Document == nil || ctx.Company == nil {
		return nil, siferr.NewValidation("contexto", "faltan documento o empresa en el contexto")
	}
	doc := ctx.Document
	company := ctx.Company

	if err := validateIssuer(company); err != nil {
		return nil, err
	}
	if doc.CDC == "" {
		return nil, siferr.NewValidation("cdc", "el documento no tiene CDC asignado")
	}
	if len(doc.Items) == 0 {
		return nil, siferr.NewValidation("items", "el documento debe tener al menos un ítem")
	}

	currency := doc.Currency
	if currency == "" {
		currency = sifencat.CurrencyGuarani
	}
	exp := sifencat.CurrencyExponent(currency)

	totals, err := ComputeTotals(doc.Items, currency)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "rDE"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: NsSifen},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: nsXsi},
			{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: schemaLocationRDE},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	writeEl(enc, "dVerFor", sifencat.FormatVersion)

	de := xml.StartElement{
		Name: xml.Name{Local: "DE"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "Id"}, Value: doc.CDC}},
	}
	_ = enc.EncodeToken(de)

	// ---- gDatGener: identificación del documento
	startEl(enc, "gDatGener")
	writeEl(enc, "dTiDE", doc.DocType)
	writeEl(enc, "dDesTiDE", sifencat.DocTypeNames[doc.DocType])
	writeEl(enc, "dNumTim", company.Timbrado)
	writeEl(enc, "dSerie", doc.Serie)
	writeEl(enc, "dNroDoc", strconv.FormatInt(doc.Number, 10))
	writeEl(enc, "dFeEmiDE", doc.IssueDate.Format("2006-01-02T15:04:05"))
	writeEl(enc, "dSalSeg", "0")
	writeEl(enc, "dCDC", doc.CDC)
	endEl(enc, "gDatGener")

	// ---- gDatEmi: emisor y su jerarquía de dirección
	s.writeIssuer(enc, company)

	// ---- gDatRec: receptor (RUC opcional: consumidor final)
	s.writeReceiver(enc, doc)

	// ---- gCamItem: una por línea, con su subgrupo tributario
	for i, item := range doc.Items {
		lt, err := ComputeLineTax(item, currency)
		if err != nil {
			return nil, err
		}
		s.writeItem(enc, i+1, item, lt, exp)
	}

	// ---- gCamNCDE / gCamDEAsoc: solo notas de crédito
	if doc.IsNotaCredito() {
		s.writeCreditNoteGroups(enc, doc)
	}

	// ---- gTotGener: agregados (suma de valores exactos, redondeo único)
	s.writeTotals(enc, totals, exp)

	endEl(enc, "DE")
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateIssuer(company *entity.Company) error {
	if company.RUC == "" {
		return siferr.NewValidation("emisor.ruc", "el emisor no tiene RUC")
	}
	if company.RazonSocial == "" {
		return siferr.NewValidation("emisor.razon_social", "el emisor no tiene razón social")
	}
	if company.Direccion == "" {
		return siferr.NewValidation("emisor.direccion", "el emisor no tiene dirección")
	}
	if company.Timbrado == "" {
		return siferr.NewValidation("emisor.timbrado", "el emisor no tiene timbrado vigente")
	}
	return nil
}

func (s *XMLBuilderService) writeIssuer(enc *xml.Encoder, company *entity.Company) {
	startEl(enc, "gDatEmi")
	writeEl(enc, "dRucEmi", company.RUC)
	writeEl(enc, "dRazSocEmi", company.RazonSocial)
	if company.NombreFantasia != "" {
		writeEl(enc, "dNomFanEmi", company.NombreFantasia)
	}
	startEl(enc, "gDirEmi")
	writeEl(enc, "dDirEmi", company.Direccion)
	if company.NumeroCasa != "" {
		writeEl(enc, "dNumCas", company.NumeroCasa)
	}
	depCode := orDefault(company.DeptoCode, sifencat.DefaultDepartmentCode)
	writeEl(enc, "cDepEmi", depCode)
	writeEl(enc, "dDesDepEmi", orDefault(company.Depto, sifencat.Departments[depCode]))
	writeEl(enc, "cDisEmi", orDefault(company.DistritoCode, sifencat.DefaultDistrictCode))
	writeEl(enc, "dDesDisEmi", orDefault(company.Distrito, "Asunción"))
	writeEl(enc, "cCiuEmi", orDefault(company.CiudadCode, sifencat.DefaultCityCode))
	writeEl(enc, "dDesCiuEmi", orDefault(company.Ciudad, "Asunción"))
	endEl(enc, "gDirEmi")
	endEl(enc, "gDatEmi")
}

func (s *XMLBuilderService) writeReceiver(enc *xml.Encoder, doc *entity.Document) {
	startEl(enc, "gDatRec")
	if doc.ReceiverRUC != "" {
		writeEl(enc, "iTiContRec", "1")
		writeEl(enc, "dRucRec", doc.ReceiverRUC)
	} else {
		// Consumidor final sin RUC
		writeEl(enc, "iTiContRec", "2")
	}
	writeEl(enc, "dRazSocRec", doc.ReceiverName)
	if doc.ReceiverDir != "" {
		startEl(enc, "gDirRec")
		writeEl(enc, "dDirRec", doc.ReceiverDir)
		endEl(enc, "gDirRec")
	}
	endEl(enc, "gDatRec")
}

func (s *XMLBuilderService) writeItem(enc *xml.Encoder, seq int, item entity.DocumentItem, lt LineTax, exp int32) {
	unitCode := item.UnitCode
	if unitCode == "" {
		unitCode = sifencat.UnitUnidad
	}
	startEl(enc, "gCamItem")
	writeEl(enc, "dSecItem", strconv.Itoa(seq))
	writeEl(enc, "dDesProSer", item.Description)
	writeEl(enc, "cUniMed", unitCode)
	writeEl(enc, "dCantProSer", item.Quantity.String())
	writeEl(enc, "dPUniProSer", item.UnitPrice.String())
	writeEl(enc, "dTotBruOpeItem", lt.Gross.StringFixed(exp))

	startEl(enc, "gValorItem")
	if item.Exempt || item.IVARate == 0 {
		writeEl(enc, "iAfecIVA", sifencat.IVAExento)
		writeEl(enc, "dPropIVA", "0")
		writeEl(enc, "dTasaIVA", "0")
		writeEl(enc, "dBasGravIVA", "0")
		writeEl(enc, "dLiqIVAItem", "0")
	} else {
		writeEl(enc, "iAfecIVA", sifencat.IVAGravado)
		writeEl(enc, "dPropIVA", "100")
		writeEl(enc, "dTasaIVA", strconv.FormatInt(item.IVARate, 10))
		writeEl(enc, "dBasGravIVA", lt.Base.StringFixed(exp))
		writeEl(enc, "dLiqIVAItem", lt.Tax.StringFixed(exp))
	}
	endEl(enc, "gValorItem")
	endEl(enc, "gCamItem")
}

func (s *XMLBuilderService) writeCreditNoteGroups(enc *xml.Encoder, doc *entity.Document) {
	startEl(enc, "gCamNCDE")
	writeEl(enc, "iMotEmi", doc.NCEMotive)
	writeEl(enc, "dDesMotEmi", sifencat.NCEMotiveNames[doc.NCEMotive])
	endEl(enc, "gCamNCDE")
	if doc.LinkedCDC != "" {
		startEl(enc, "gCamDEAsoc")
		writeEl(enc, "dCDCDEAsoc", doc.LinkedCDC)
		endEl(enc, "gCamDEAsoc")
	}
}

func (s *XMLBuilderService) writeTotals(enc *xml.Encoder, t Totals, exp int32) {
	totalIVA := t.IVA5.Add(t.IVA10)
	totalBase := t.Base5.Add(t.Base10)
	totalOpe := t.GrandTotal.Sub(totalIVA)

	startEl(enc, "gTotGener")
	writeEl(enc, "dSubExe", t.Exempt.StringFixed(exp))
	writeEl(enc, "dSubExo", zeroStr(exp))
	writeEl(enc, "dSub5", t.Base5.StringFixed(exp))
	writeEl(enc, "dSub10", t.Base10.StringFixed(exp))
	writeEl(enc, "dTotOpe", totalOpe.StringFixed(exp))
	writeEl(enc, "dTotGralOpe", totalOpe.StringFixed(exp))
	writeEl(enc, "dIVA5", t.IVA5.StringFixed(exp))
	writeEl(enc, "dIVA10", t.IVA10.StringFixed(exp))
	writeEl(enc, "dLiqTotIVA5", t.IVA5.StringFixed(exp))
	writeEl(enc, "dLiqTotIVA10", t.IVA10.StringFixed(exp))
	writeEl(enc, "dIVATotOpe", totalIVA.StringFixed(exp))
	writeEl(enc, "dBaseGrav5", t.Base5.StringFixed(exp))
	writeEl(enc, "dBaseGrav10", t.Base10.StringFixed(exp))
	writeEl(enc, "dTBasGraIVA", totalBase.StringFixed(exp))
	writeEl(enc, "dTotalGs", t.GrandTotal.StringFixed(exp))
	endEl(enc, "gTotGener")
}

func zeroStr(exp int32) string {
	return decimal.Zero.StringFixed(exp)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func startEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func endEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeEl(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}
