package repository

import (
	"context"

	"github.com/nandutech/sifen-api/internal/domain/entity"
)

// DocumentEventRepository define el puerto de persistencia para eventos
// (cancelación, inutilización, conformidad, etc.).
type DocumentEventRepository interface {
	Create(ctx context.Context, ev *entity.DocumentEvent) error
	Update(ctx context.Context, ev *entity.DocumentEvent) error
	GetByID(ctx context.Context, id string) (*entity.DocumentEvent, error)
	// ListPending devuelve eventos pendientes con XML firmado, en orden FIFO
	// de creación, hasta limit elementos.
	ListPending(ctx context.Context, limit int) ([]*entity.DocumentEvent, error)
	// RequeueErrored vuelve a pendiente los eventos en error (disparo manual
	// del operador; el procesador no reintenta solo). Devuelve cuántos movió.
	RequeueErrored(ctx context.Context) (int64, error)
	// Stats conteo de eventos por estado.
	Stats(ctx context.Context) (map[string]int64, error)
}
