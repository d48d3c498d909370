package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
)

var _ repository.DocumentEventRepository = (*DocumentEventRepo)(nil)

// DocumentEventRepo implementación de DocumentEventRepository (usable con pool o tx).
type DocumentEventRepo struct {
	q Querier
}

// NewDocumentEventRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentEventRepository(q Querier) *DocumentEventRepo {
	return &DocumentEventRepo{q: q}
}

const eventColumns = `
	id, company_id, document_id, event_type, event_code, description, xml_signed,
	status, response_code, response_message, protocol, error_detail,
	processed_at, created_at`

// Create persiste el evento recién encolado.
func (r *DocumentEventRepo) Create(ctx context.Context, ev *entity.DocumentEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	query := `
		INSERT INTO document_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query,
		ev.ID, ev.CompanyID, nullIfEmpty(ev.DocumentID), ev.EventType, ev.EventCode,
		ev.Description, nullIfEmpty(ev.XMLSigned),
		ev.Status, nullIfEmpty(ev.ResponseCode), nullIfEmpty(ev.ResponseMessage),
		nullIfEmpty(ev.Protocol), nullIfEmpty(ev.ErrorDetail),
		ev.ProcessedAt, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evento: %w", err)
	}
	return nil
}

// Update registra el desenlace del evento tras el lote. Los eventos nunca se
// borran: el estado final queda como traza de auditoría.
func (r *DocumentEventRepo) Update(ctx context.Context, ev *entity.DocumentEvent) error {
	query := `
		UPDATE document_events
		SET status           = $2,
		    response_code    = COALESCE($3, response_code),
		    response_message = COALESCE($4, response_message),
		    protocol         = COALESCE($5, protocol),
		    error_detail     = COALESCE($6, error_detail),
		    processed_at     = COALESCE($7, processed_at)
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		ev.ID, ev.Status,
		nullIfEmpty(ev.ResponseCode), nullIfEmpty(ev.ResponseMessage),
		nullIfEmpty(ev.Protocol), nullIfEmpty(ev.ErrorDetail),
		ev.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("update evento: %w", err)
	}
	return nil
}

// GetByID obtiene un evento por ID. Devuelve nil si no existe.
func (r *DocumentEventRepo) GetByID(ctx context.Context, id string) (*entity.DocumentEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM document_events WHERE id = $1`
	ev, err := r.scanEvent(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ev, nil
}

// ListPending eventos pendientes con XML firmado listos para enviar, en orden
// FIFO de creación, hasta limit elementos (el lote SET admite 15).
func (r *DocumentEventRepo) ListPending(ctx context.Context, limit int) ([]*entity.DocumentEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM document_events
		WHERE status = $1 AND xml_signed IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, entity.EventStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("listar eventos pendientes: %w", err)
	}
	defer rows.Close()
	var list []*entity.DocumentEvent
	for rows.Next() {
		ev, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// RequeueErrored vuelve a pendiente los eventos en error para una corrida
// futura del procesador. Conserva error_detail como traza del último fallo.
func (r *DocumentEventRepo) RequeueErrored(ctx context.Context) (int64, error) {
	const query = `
		UPDATE document_events
		SET status = $1, processed_at = NULL
		WHERE status = $2 AND xml_signed IS NOT NULL`
	tag, err := r.q.Exec(ctx, query, entity.EventStatusPending, entity.EventStatusError)
	if err != nil {
		return 0, fmt.Errorf("reencolar eventos: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats conteo de eventos por estado.
func (r *DocumentEventRepo) Stats(ctx context.Context) (map[string]int64, error) {
	const query = `SELECT status, COUNT(*) FROM document_events GROUP BY status`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stats eventos: %w", err)
	}
	defer rows.Close()
	stats := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *DocumentEventRepo) scanEvent(row pgx.Row) (*entity.DocumentEvent, error) {
	var ev entity.DocumentEvent
	var documentID, xmlSigned, respCode, respMsg, protocol, errDetail *string
	err := row.Scan(
		&ev.ID, &ev.CompanyID, &documentID, &ev.EventType, &ev.EventCode,
		&ev.Description, &xmlSigned,
		&ev.Status, &respCode, &respMsg, &protocol, &errDetail,
		&ev.ProcessedAt, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan evento: %w", err)
	}
	ev.DocumentID = derefStr(documentID)
	ev.XMLSigned = derefStr(xmlSigned)
	ev.ResponseCode = derefStr(respCode)
	ev.ResponseMessage = derefStr(respMsg)
	ev.Protocol = derefStr(protocol)
	ev.ErrorDetail = derefStr(errDetail)
	return &ev, nil
}
