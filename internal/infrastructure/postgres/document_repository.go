package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
// Items e historial de estados se guardan como JSONB.
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

const documentColumns = `
	id, company_id, cdc, doc_type, serie, number, issue_date,
	receiver_ruc, receiver_name, receiver_dir, items,
	exempt_total, taxed_base_5, taxed_base_10, iva_5, iva_10, grand_total, currency,
	status, xml_signed, response_code, response_message, protocol,
	linked_cdc, nce_motive, event_history, created_at, updated_at`

// Create persiste el documento. El par (empresa, tipo, serie, número) y el CDC
// tienen constraints únicos en la tabla.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	items, err := json.Marshal(doc.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	history, err := json.Marshal(doc.EventHistory)
	if err != nil {
		return fmt.Errorf("marshal historial: %w", err)
	}
	query := `
		INSERT INTO electronic_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err = r.q.Exec(ctx, query,
		doc.ID, doc.CompanyID, nullIfEmpty(doc.CDC), doc.DocType, doc.Serie, doc.Number, doc.IssueDate,
		nullIfEmpty(doc.ReceiverRUC), doc.ReceiverName, nullIfEmpty(doc.ReceiverDir), items,
		doc.ExemptTotal, doc.TaxedBase5, doc.TaxedBase10, doc.IVA5, doc.IVA10, doc.GrandTotal, doc.Currency,
		doc.Status, nullIfEmpty(doc.XMLSigned), nullIfEmpty(doc.ResponseCode), nullIfEmpty(doc.ResponseMessage), nullIfEmpty(doc.Protocol),
		nullIfEmpty(doc.LinkedCDC), nullIfEmpty(doc.NCEMotive), history, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("documento duplicado (cdc o número ya emitido): %w", err)
		}
		return fmt.Errorf("insert documento: %w", err)
	}
	return nil
}

// Update persiste estado, XML, metadatos de respuesta e historial. El CDC solo
// se escribe si aún no estaba asignado (COALESCE preserva el existente).
func (r *DocumentRepo) Update(ctx context.Context, doc *entity.Document) error {
	history, err := json.Marshal(doc.EventHistory)
	if err != nil {
		return fmt.Errorf("marshal historial: %w", err)
	}
	query := `
		UPDATE electronic_documents
		SET cdc              = COALESCE(cdc, $2),
		    exempt_total     = $3,
		    taxed_base_5     = $4,
		    taxed_base_10    = $5,
		    iva_5            = $6,
		    iva_10           = $7,
		    grand_total      = $8,
		    status           = $9,
		    xml_signed       = COALESCE($10, xml_signed),
		    response_code    = COALESCE($11, response_code),
		    response_message = COALESCE($12, response_message),
		    protocol         = COALESCE($13, protocol),
		    event_history    = $14,
		    updated_at       = $15
		WHERE id = $1`
	_, err = r.q.Exec(ctx, query,
		doc.ID,
		nullIfEmpty(doc.CDC),
		doc.ExemptTotal, doc.TaxedBase5, doc.TaxedBase10, doc.IVA5, doc.IVA10, doc.GrandTotal,
		doc.Status,
		nullIfEmpty(doc.XMLSigned),
		nullIfEmpty(doc.ResponseCode),
		nullIfEmpty(doc.ResponseMessage),
		nullIfEmpty(doc.Protocol),
		history,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update documento: %w", err)
	}
	return nil
}

// GetByID obtiene un documento completo por ID. Devuelve nil si no existe.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM electronic_documents WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetByCDC obtiene un documento completo por CDC. Devuelve nil si no existe.
func (r *DocumentRepo) GetByCDC(ctx context.Context, cdc string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM electronic_documents WHERE cdc = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, cdc))
}

// NextNumber devuelve el siguiente correlativo para (empresa, tipo, serie).
// MAX+1 dentro de la tx del emisor; la unicidad la garantiza el constraint.
func (r *DocumentRepo) NextNumber(ctx context.Context, companyID, docType, serie string) (int64, error) {
	const query = `
		SELECT COALESCE(MAX(number), 0) + 1
		FROM electronic_documents
		WHERE company_id = $1 AND doc_type = $2 AND serie = $3`
	var next int64
	if err := r.q.QueryRow(ctx, query, companyID, docType, serie).Scan(&next); err != nil {
		return 0, fmt.Errorf("siguiente número: %w", err)
	}
	return next, nil
}

// NumberExists comprueba si ya se emitió el número en (empresa, tipo, serie).
func (r *DocumentRepo) NumberExists(ctx context.Context, companyID, docType, serie string, number int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM electronic_documents
			WHERE company_id = $1 AND doc_type = $2 AND serie = $3 AND number = $4
		)`
	var exists bool
	if err := r.q.QueryRow(ctx, query, companyID, docType, serie, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("existe número: %w", err)
	}
	return exists, nil
}

// ExistsInRange comprueba si hay documentos emitidos en (empresa, serie, [start, end]).
// Se usa para validar inutilizaciones: no se puede inutilizar un rango ya ocupado.
func (r *DocumentRepo) ExistsInRange(ctx context.Context, companyID, serie string, start, end int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM electronic_documents
			WHERE company_id = $1 AND serie = $2 AND number BETWEEN $3 AND $4
		)`
	var exists bool
	if err := r.q.QueryRow(ctx, query, companyID, serie, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("existe rango: %w", err)
	}
	return exists, nil
}

// ListByStatus lista documentos de la empresa en un estado, más antiguos primero.
func (r *DocumentRepo) ListByStatus(ctx context.Context, companyID, status string, limit int) ([]*entity.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM electronic_documents
		WHERE company_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3`
	rows, err := r.q.Query(ctx, query, companyID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listar documentos: %w", err)
	}
	defer rows.Close()
	var list []*entity.Document
	for rows.Next() {
		doc, err := r.scanDoc(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// StatusStats conteo de documentos por estado.
func (r *DocumentRepo) StatusStats(ctx context.Context, companyID string) (map[string]int64, error) {
	const query = `
		SELECT status, COUNT(*)
		FROM electronic_documents
		WHERE company_id = $1
		GROUP BY status`
	rows, err := r.q.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("stats documentos: %w", err)
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

func (r *DocumentRepo) scanOne(row pgx.Row) (*entity.Document, error) {
	doc, err := r.scanDoc(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) scanDoc(row pgx.Row) (*entity.Document, error) {
	var doc entity.Document
	var cdc, receiverRUC, receiverDir, xmlSigned, respCode, respMsg, protocol, linkedCDC, nceMotive *string
	var items, history []byte
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &cdc, &doc.DocType, &doc.Serie, &doc.Number, &doc.IssueDate,
		&receiverRUC, &doc.ReceiverName, &receiverDir, &items,
		&doc.ExemptTotal, &doc.TaxedBase5, &doc.TaxedBase10, &doc.IVA5, &doc.IVA10, &doc.GrandTotal, &doc.Currency,
		&doc.Status, &xmlSigned, &respCode, &respMsg, &protocol,
		&linkedCDC, &nceMotive, &history, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan documento: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &doc.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &doc.EventHistory); err != nil {
			return nil, fmt.Errorf("unmarshal historial: %w", err)
		}
	}
	doc.CDC = derefStr(cdc)
	doc.ReceiverRUC = derefStr(receiverRUC)
	doc.ReceiverDir = derefStr(receiverDir)
	doc.XMLSigned = derefStr(xmlSigned)
	doc.ResponseCode = derefStr(respCode)
	doc.ResponseMessage = derefStr(respMsg)
	doc.Protocol = derefStr(protocol)
	doc.LinkedCDC = derefStr(linkedCDC)
	doc.NCEMotive = derefStr(nceMotive)
	return &doc, nil
}
