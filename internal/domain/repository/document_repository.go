package repository

import (
	"context"

	"github.com/nandutech/sifen-api/internal/domain/entity"
)

// DocumentRepository define el puerto de persistencia para documentos electrónicos.
// La implementación vive en infrastructure.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	// Update persiste estado, XML firmado, metadatos de respuesta e historial.
	Update(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetByCDC(ctx context.Context, cdc string) (*entity.Document, error)
	// NextNumber devuelve el siguiente correlativo para (empresa, tipo, serie).
	NextNumber(ctx context.Context, companyID, docType, serie string) (int64, error)
	// NumberExists comprueba si ya se emitió el número en (empresa, tipo, serie).
	NumberExists(ctx context.Context, companyID, docType, serie string, number int64) (bool, error)
	// ExistsInRange comprueba si hay documentos emitidos en (empresa, serie, [start, end]).
	ExistsInRange(ctx context.Context, companyID, serie string, start, end int64) (bool, error)
	ListByStatus(ctx context.Context, companyID, status string, limit int) ([]*entity.Document, error)
	// StatusStats conteo de documentos por estado (para colaboradores de dashboard).
	StatusStats(ctx context.Context, companyID string) (map[string]int64, error)
}
