package entity

import "time"

// Company perfil del emisor. Se consume como configuración de solo lectura:
// el motor nunca lo modifica, salvo los metadatos del certificado que carga
// la capa administrativa.
type Company struct {
	ID             string
	RUC            string // formato base-DV, ej. "80123456-7"
	RazonSocial    string
	NombreFantasia string

	// Jerarquía de dirección (códigos SIFEN + descripciones)
	Direccion    string
	NumeroCasa   string
	DeptoCode    string
	Depto        string
	DistritoCode string
	Distrito     string
	CiudadCode   string
	Ciudad       string

	PuntoExpedicion string // código del punto de expedición (3 dígitos)
	Timbrado        string // número de timbrado vigente

	CertPath      string // ruta al contenedor PKCS#12
	CertPassword  string
	CertValidFrom *time.Time
	CertValidTo   *time.Time

	Production bool // true = ambiente productivo SET

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasValidCertificate indica si hay certificado cargado y vigente.
func (c *Company) HasValidCertificate(now time.Time) bool {
	return c.CertPath != "" && c.CertValidTo != nil && c.CertValidTo.After(now)
}
