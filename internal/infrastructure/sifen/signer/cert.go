// Carga y validación del certificado del emisor desde .p12 (PKCS#12).

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el contenedor no está protegido. El buffer
// del archivo se sobreescribe antes de retornar: contiene la llave privada.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, &siferr.CertificateError{Path: path, Err: fmt.Errorf("leer p12: %w", err)}
	}
	defer wipe(data)

	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, &siferr.CertificateError{Path: path, Err: fmt.Errorf("decodificar p12: %w", err)}
	}
	if _, ok := priv.(*rsa.PrivateKey); !ok {
		return tls.Certificate{}, &siferr.CertificateError{Path: path, Err: fmt.Errorf("la llave privada debe ser RSA")}
	}
	// pkcs12.Decode devuelve solo el certificado hoja; para la SET es suficiente.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// ValidateCertificate verifica la vigencia del certificado hoja.
func ValidateCertificate(cert tls.Certificate, now time.Time) error {
	if cert.Leaf == nil {
		return &siferr.CertificateError{Err: fmt.Errorf("certificado sin hoja parseada")}
	}
	if now.Before(cert.Leaf.NotBefore) {
		return &siferr.CertificateError{Err: fmt.Errorf("certificado aún no vigente (NotBefore %s)", cert.Leaf.NotBefore.Format(time.RFC3339))}
	}
	if now.After(cert.Leaf.NotAfter) {
		return &siferr.CertificateError{Err: fmt.Errorf("certificado vencido (NotAfter %s)", cert.Leaf.NotAfter.Format(time.RFC3339))}
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
