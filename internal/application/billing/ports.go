// Package billing orquesta el ciclo de vida completo del documento electrónico:
//
//	CDC → XML rDE → Firma XMLDSig → Envío SOAP → Estado + auditoría en DB
//
// y los flujos de eventos (cancelación, inutilización, NCE, lotes).
package billing

import (
	"context"
	"crypto/tls"

	"github.com/nandutech/sifen-api/internal/domain/repository"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
)

// Signer define el puerto de firma XMLDSig. referenceID es el Id del elemento
// firmado (el CDC en los rDE, el id del evento en los rEvento).
type Signer interface {
	Sign(xmlBytes []byte, referenceID string, cert tls.Certificate) ([]byte, error)
}

// CertLoader carga el certificado del emisor desde su contenedor PKCS#12.
// Se inyecta como función para que los tests usen certificados generados.
type CertLoader func(path, password string) (tls.Certificate, error)

// TxRunner ejecuta un callback con repos atados a una transacción.
// La asignación de número y la creación del documento son atómicas.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		docRepo repository.DocumentRepository,
		eventRepo repository.DocumentEventRepository,
	) error) error
}

// Transport alias del puerto SOAP hacia la SET.
type Transport = infrasifen.TransportClient
