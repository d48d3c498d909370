package sifen_test

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

var eventTestNow = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

func parseEvent(t *testing.T, raw []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(raw), "el rEvento generado debe parsear")
	return doc
}

func TestBuildCancellation_Estructura(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()
	raw, err := b.BuildCancellation("ev-1", testBuildCDC, "error en los datos del receptor", eventTestNow)
	require.NoError(t, err)

	doc := parseEvent(t, raw)
	root := doc.Root()
	assert.Equal(t, "rEvento", root.Tag)
	assert.Equal(t, "ev-1", root.SelectAttrValue("Id", ""),
		"el Id de la raíz es la Reference de la firma del evento")

	assert.Equal(t, "2024-05-02T09:00:00", textOf(t, doc, "//dFecFirma"))
	assert.Equal(t, "150", textOf(t, doc, "//dVerFor"))
	assert.Equal(t, sifencat.EventCancelacion, textOf(t, doc, "//gGroupTiEvt/rTEv"))
	assert.Equal(t, "Cancelación", textOf(t, doc, "//gGroupTiEvt/dDesTEv"))
	assert.Equal(t, testBuildCDC, textOf(t, doc, "//gGroupEv/dCDCPE"))
	assert.Equal(t, "error en los datos del receptor", textOf(t, doc, "//gGroupEv/dDescEv"))
}

func TestBuildCancellation_Validaciones(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()

	_, err := b.BuildCancellation("ev-1", "", "motivo", eventTestNow)
	assert.Error(t, err, "sin CDC no hay cancelación")

	_, err = b.BuildCancellation("ev-1", testBuildCDC, "", eventTestNow)
	assert.Error(t, err, "el motivo es obligatorio")

	_, err = b.BuildCancellation("", testBuildCDC, "motivo", eventTestNow)
	assert.Error(t, err, "el id del evento es obligatorio")
}

func TestBuildNullification_Estructura(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()
	raw, err := b.BuildNullification("ev-2", "001-001", 100, 150, "talonario dañado", eventTestNow)
	require.NoError(t, err)

	doc := parseEvent(t, raw)
	assert.Equal(t, sifencat.EventInutilizacion, textOf(t, doc, "//gGroupTiEvt/rTEv"))
	assert.Equal(t, "001-001", textOf(t, doc, "//gGroupEv/dSerie"))
	assert.Equal(t, "100", textOf(t, doc, "//gGroupEv/dNumIni"))
	assert.Equal(t, "150", textOf(t, doc, "//gGroupEv/dNumFin"))
}

func TestBuildNullification_RangoInvalido(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()

	_, err := b.BuildNullification("ev-2", "001-001", 0, 10, "x", eventTestNow)
	assert.Error(t, err, "el rango arranca en 1")

	_, err = b.BuildNullification("ev-2", "001-001", 10, 5, "x", eventTestNow)
	assert.Error(t, err, "el fin no puede ser menor al inicio")

	_, err = b.BuildNullification("ev-2", "", 1, 10, "x", eventTestNow)
	assert.Error(t, err, "la serie es obligatoria")
}

func TestBuildNCECompanion_Estructura(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()
	nceCDC := "05801234560010000002120240502876543210000009"

	raw, err := b.BuildNCECompanion("ev-3", sifencat.EventDevolucion, testBuildCDC, nceCDC, eventTestNow)
	require.NoError(t, err)

	doc := parseEvent(t, raw)
	assert.Equal(t, sifencat.EventDevolucion, textOf(t, doc, "//gGroupTiEvt/rTEv"))
	assert.Equal(t, testBuildCDC, textOf(t, doc, "//gGroupEv/dCDCPE"))
	assert.Equal(t, nceCDC, textOf(t, doc, "//gGroupEv/dCDCNCE"))
}

func TestBuildNCECompanion_SoloDevolucionOAjuste(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()

	_, err := b.BuildNCECompanion("ev-3", sifencat.EventCancelacion, testBuildCDC, testBuildCDC, eventTestNow)
	assert.Error(t, err, "una cancelación no es evento automático de NCE")

	_, err = b.BuildNCECompanion("ev-3", sifencat.EventAjuste, testBuildCDC, testBuildCDC, eventTestNow)
	assert.NoError(t, err, "el ajuste (693) sí es válido")
}

func TestBuildReceiverNotification_Estructura(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()
	raw, err := b.BuildReceiverNotification("ev-4", sifencat.EventConformidad, testBuildCDC, "80099999-2", "recibido conforme", eventTestNow)
	require.NoError(t, err)

	doc := parseEvent(t, raw)
	assert.Equal(t, sifencat.EventConformidad, textOf(t, doc, "//gGroupTiEvt/rTEv"))
	assert.Equal(t, "80099999-2", textOf(t, doc, "//gGroupEv/dRUCRec"))
	assert.Equal(t, "recibido conforme", textOf(t, doc, "//gGroupEv/dDescEv"))
}

func TestBuildReceiverNotification_Validaciones(t *testing.T) {
	b := infrasifen.NewEventXMLBuilder()

	_, err := b.BuildReceiverNotification("ev-4", "999", testBuildCDC, "80099999-2", "", eventTestNow)
	assert.Error(t, err, "código de evento fuera de catálogo")

	_, err = b.BuildReceiverNotification("ev-4", sifencat.EventConformidad, "", "80099999-2", "", eventTestNow)
	assert.Error(t, err, "el CDC es obligatorio")
}
