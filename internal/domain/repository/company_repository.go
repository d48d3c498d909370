package repository

import (
	"context"

	"github.com/nandutech/sifen-api/internal/domain/entity"
)

// CompanyRepository define el puerto de lectura de empresas emisoras.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
	GetByRUC(ctx context.Context, ruc string) (*entity.Company, error)
}
