package sifen

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"time"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// EventXMLBuilder construye los rEvento (cancelación, inutilización, eventos
// automáticos por NCE y notificaciones del receptor). El atributo Id de la
// raíz lleva el id del evento: es la Reference de la firma.
type EventXMLBuilder struct{}

// NewEventXMLBuilder crea el builder.
func NewEventXMLBuilder() *EventXMLBuilder {
	return &EventXMLBuilder{}
}

// BuildCancellation rEvento 690 para cancelar un DE aprobado.
func (b *EventXMLBuilder) BuildCancellation(eventID, cdc, reason string, now time.Time) ([]byte, error) {
	if cdc == "" {
		return nil, siferr.NewValidation("cdc", "la cancelación requiere el CDC del documento")
	}
	if reason == "" {
		return nil, siferr.NewValidation("motivo", "la cancelación requiere un motivo")
	}
	return b.build(eventID, sifencat.EventCancelacion, now, func(enc *xml.Encoder) {
		writeEl(enc, "dCDCPE", cdc)
		writeEl(enc, "dDescEv", reason)
	})
}

// BuildNullification rEvento 691 para inutilizar un rango de numeración nunca emitido.
func (b *EventXMLBuilder) BuildNullification(eventID, serie string, start, end int64, reason string, now time.Time) ([]byte, error) {
	if serie == "" {
		return nil, siferr.NewValidation("serie", "la inutilización requiere la serie")
	}
	if start < 1 || end < start {
		return nil, siferr.NewValidation("rango", "rango de numeración inválido")
	}
	return b.build(eventID, sifencat.EventInutilizacion, now, func(enc *xml.Encoder) {
		writeEl(enc, "dSerie", serie)
		writeEl(enc, "dNumIni", strconv.FormatInt(start, 10))
		writeEl(enc, "dNumFin", strconv.FormatInt(end, 10))
		writeEl(enc, "dDescEv", reason)
	})
}

// BuildNCECompanion rEvento 692/693 generado automáticamente al emitir una NCE.
// eventCode se deriva del motivo de la nota (E401 → devolución, E402 → ajuste).
func (b *EventXMLBuilder) BuildNCECompanion(eventID, eventCode, originalCDC, nceCDC string, now time.Time) ([]byte, error) {
	if eventCode != sifencat.EventDevolucion && eventCode != sifencat.EventAjuste {
		return nil, siferr.NewValidation("evento", "código de evento de NCE inválido: "+eventCode)
	}
	return b.build(eventID, eventCode, now, func(enc *xml.Encoder) {
		writeEl(enc, "dCDCPE", originalCDC)
		writeEl(enc, "dCDCNCE", nceCDC)
		writeEl(enc, "dDescEv", "Evento automático por NCE")
	})
}

// BuildReceiverNotification rEvento 694/695/696 emitido por el receptor del DE.
func (b *EventXMLBuilder) BuildReceiverNotification(eventID, eventCode, cdc, receiverRUC, details string, now time.Time) ([]byte, error) {
	if _, ok := sifencat.EventNames[eventCode]; !ok {
		return nil, siferr.NewValidation("evento", "código de evento inválido: "+eventCode)
	}
	if cdc == "" {
		return nil, siferr.NewValidation("cdc", "la notificación requiere el CDC del documento")
	}
	return b.build(eventID, eventCode, now, func(enc *xml.Encoder) {
		writeEl(enc, "dCDCPE", cdc)
		writeEl(enc, "dRUCRec", receiverRUC)
		if details != "" {
			writeEl(enc, "dDescEv", details)
		}
	})
}

func (b *EventXMLBuilder) build(eventID, eventCode string, now time.Time, body func(enc *xml.Encoder)) ([]byte, error) {
	if eventID == "" {
		return nil, siferr.NewValidation("evento", "falta el id del evento")
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "rEvento"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "Id"}, Value: eventID},
			{Name: xml.Name{Local: "xmlns"}, Value: NsSifen},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: nsXsi},
			{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: schemaLocationEvento},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	writeEl(enc, "dFecFirma", now.Format("2006-01-02T15:04:05"))
	writeEl(enc, "dVerFor", sifencat.FormatVersion)

	startEl(enc, "gGroupTiEvt")
	writeEl(enc, "rTEv", eventCode)
	writeEl(enc, "dDesTEv", sifencat.EventNames[eventCode])
	endEl(enc, "gGroupTiEvt")

	startEl(enc, "gGroupEv")
	body(enc)
	endEl(enc, "gGroupEv")

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
