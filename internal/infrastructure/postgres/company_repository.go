package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implementación de CompanyRepository sobre PostgreSQL.
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

const companyColumns = `
	id, ruc, razon_social, nombre_fantasia,
	direccion, numero_casa, depto_code, depto, distrito_code, distrito, ciudad_code, ciudad,
	punto_expedicion, timbrado, cert_path, cert_password, cert_valid_from, cert_valid_to,
	production, created_at, updated_at`

// GetByID obtiene la empresa por ID. Devuelve nil si no existe.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	return r.scanCompany(r.q.QueryRow(ctx, query, id))
}

// GetByRUC obtiene la empresa por RUC (formato base-DV). Devuelve nil si no existe.
func (r *CompanyRepo) GetByRUC(ctx context.Context, ruc string) (*entity.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE ruc = $1`
	return r.scanCompany(r.q.QueryRow(ctx, query, ruc))
}

func (r *CompanyRepo) scanCompany(row pgx.Row) (*entity.Company, error) {
	var c entity.Company
	var fantasia, numeroCasa, certPath, certPassword *string
	err := row.Scan(
		&c.ID, &c.RUC, &c.RazonSocial, &fantasia,
		&c.Direccion, &numeroCasa, &c.DeptoCode, &c.Depto, &c.DistritoCode, &c.Distrito, &c.CiudadCode, &c.Ciudad,
		&c.PuntoExpedicion, &c.Timbrado, &certPath, &certPassword, &c.CertValidFrom, &c.CertValidTo,
		&c.Production, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get empresa: %w", err)
	}
	c.NombreFantasia = derefStr(fantasia)
	c.NumeroCasa = derefStr(numeroCasa)
	c.CertPath = derefStr(certPath)
	c.CertPassword = derefStr(certPassword)
	return &c, nil
}
