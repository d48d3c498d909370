package billing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandutech/sifen-api/internal/application/billing"
	"github.com/nandutech/sifen-api/internal/domain/entity"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

func seedPendingEvents(t *testing.T, repo *fakeEventRepo, n int) []*entity.DocumentEvent {
	t.Helper()
	out := make([]*entity.DocumentEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := &entity.DocumentEvent{
			ID:        fmt.Sprintf("ev-%d", i+1),
			CompanyID: "emp-1",
			EventCode: sifencat.EventCancelacion,
			Status:    entity.EventStatusPending,
			XMLSigned: fmt.Sprintf("<rEvento Id=\"ev-%d\"/>", i+1),
		}
		require.NoError(t, repo.Create(context.Background(), ev))
		out = append(out, ev)
	}
	return out
}

func newProcessor(repo *fakeEventRepo, transport *fakeTransport, batchSize int) *billing.EventBatchProcessor {
	now := time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC)
	return billing.NewEventBatchProcessor(repo, transport, batchSize, quietLogger()).
		WithClock(func() time.Time { return now })
}

func TestProcessPending_SinEventos(t *testing.T) {
	repo := newFakeEventRepo()
	transport := &fakeTransport{}

	summary, err := newProcessor(repo, transport, 15).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Pulled)
	assert.Equal(t, 0, transport.eventsCalls, "sin eventos no hay llamada a la SET")
}

// Desenlace itemizado: la SET responde gResProc por evento.
func TestProcessPending_DesenlacePorItem(t *testing.T) {
	repo := newFakeEventRepo()
	events := seedPendingEvents(t, repo, 3)
	transport := &fakeTransport{eventsResp: &infrasifen.Response{
		Code:     "0261",
		Message:  "Lote recibido",
		Protocol: "lote-1",
		Items: []infrasifen.ItemResult{
			{ID: "ev-1", Code: "0262", Message: "Evento registrado", Protocol: "p-1"},
			{ID: "ev-2", Code: "0301", Message: "Evento rechazado"},
			// ev-3 sin ítem: queda enviado con la respuesta compartida
		},
	}}

	summary, err := newProcessor(repo, transport, 15).ProcessPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Pulled)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, "lote-1", summary.Protocol)

	assert.Equal(t, entity.EventStatusApproved, events[0].Status)
	assert.Equal(t, "p-1", events[0].Protocol)
	assert.Equal(t, entity.EventStatusRejected, events[1].Status)
	assert.Equal(t, "0301", events[1].ResponseCode)
	assert.Equal(t, entity.EventStatusSent, events[2].Status)
	assert.Equal(t, "lote-1", events[2].Protocol, "el ítem sin desenlace toma el protocolo del lote")

	for _, ev := range events {
		require.NotNil(t, ev.ProcessedAt)
	}
}

// Un fallo de transporte deja todo el lote en error, reencolable.
func TestProcessPending_FalloDeTransporte(t *testing.T) {
	repo := newFakeEventRepo()
	events := seedPendingEvents(t, repo, 2)
	transport := &fakeTransport{eventsErr: errors.New("timeout hacia la SET")}

	processor := newProcessor(repo, transport, 15)
	summary, err := processor.ProcessPending(context.Background())
	require.Error(t, err)
	require.NotNil(t, summary, "el resumen se devuelve aun con fallo")
	assert.Equal(t, 2, summary.Errored)

	for _, ev := range events {
		assert.Equal(t, entity.EventStatusError, ev.Status)
		assert.Contains(t, ev.ErrorDetail, "timeout hacia la SET")
	}

	// El operador reencola y los eventos vuelven a ser elegibles.
	moved, err := processor.RequeueErrored(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	pending, err := repo.ListPending(context.Background(), 15)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "los eventos reencolados vuelven a la cola FIFO")
}

func TestProcessPending_RespetaElTamanoDeLote(t *testing.T) {
	repo := newFakeEventRepo()
	seedPendingEvents(t, repo, 5)
	transport := &fakeTransport{eventsResp: okResponse("0261", "lote-2")}

	summary, err := newProcessor(repo, transport, 3).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Pulled, "solo se toman batchSize eventos")
	assert.Len(t, transport.lastEvents, 3)
}

func TestNewEventBatchProcessor_AcotaElTamano(t *testing.T) {
	repo := newFakeEventRepo()
	seedPendingEvents(t, repo, 16)
	transport := &fakeTransport{eventsResp: okResponse("0261", "")}

	// 100 excede el máximo de la SET: se acota a 15.
	summary, err := newProcessor(repo, transport, 100).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sifencat.MaxBatchSize, summary.Pulled)
}

func TestStats_DelegaEnElRepositorio(t *testing.T) {
	repo := newFakeEventRepo()
	seedPendingEvents(t, repo, 2)

	stats, err := newProcessor(repo, &fakeTransport{}, 15).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[entity.EventStatusPending])
}
