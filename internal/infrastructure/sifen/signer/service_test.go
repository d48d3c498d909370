package signer_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
	"github.com/nandutech/sifen-api/internal/infrastructure/sifen/signer"
)

const testRefID = "01801234560010000001120240501123456780000004"

var testXML = []byte(`<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><dVerFor>150</dVerFor><DE Id="` + testRefID + `"><gDatGener><dCDC>` + testRefID + `</dCDC></gDatGener></DE></rDE>`)

// selfSignedCert genera una llave RSA y un certificado autofirmado en memoria.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Emisor de Prueba S.A."},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}

func TestSign_InyectaFirmaComoUltimoHijo(t *testing.T) {
	svc := signer.NewXMLSignatureService()
	cert := selfSignedCert(t)

	signed, err := svc.Sign(testXML, testRefID, cert)
	require.NoError(t, err, "la firma no debe fallar con certificado RSA válido")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed), "el XML firmado debe parsear")

	root := doc.Root()
	require.Equal(t, "rDE", root.Tag, "la raíz original se conserva")

	children := root.ChildElements()
	require.NotEmpty(t, children)
	last := children[len(children)-1]
	assert.Equal(t, "Signature", last.Tag, "Signature debe ser el último hijo de la raíz")
}

func TestSign_EstructuraXMLDSig(t *testing.T) {
	svc := signer.NewXMLSignatureService()
	signed, err := svc.Sign(testXML, testRefID, selfSignedCert(t))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))

	sig := doc.FindElement("//Signature")
	require.NotNil(t, sig)
	assert.Equal(t, signer.NamespaceDS, sig.SelectAttrValue("xmlns", ""))

	ref := doc.FindElement("//Signature/SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#"+testRefID, ref.SelectAttrValue("URI", ""),
		"la Reference apunta al Id del elemento firmado")

	sm := doc.FindElement("//SignedInfo/SignatureMethod")
	require.NotNil(t, sm)
	assert.Equal(t, signer.AlgRSASHA256, sm.SelectAttrValue("Algorithm", ""))

	dm := doc.FindElement("//Reference/DigestMethod")
	require.NotNil(t, dm)
	assert.Equal(t, signer.AlgSHA256, dm.SelectAttrValue("Algorithm", ""))

	dv := doc.FindElement("//Reference/DigestValue")
	require.NotNil(t, dv)
	digest, err := base64.StdEncoding.DecodeString(dv.Text())
	require.NoError(t, err, "DigestValue debe ser base64 válido")
	assert.Len(t, digest, 32, "el digest SHA-256 mide 32 bytes")

	assert.NotNil(t, doc.FindElement("//KeyInfo/X509Data/X509Certificate"),
		"la firma embebe el certificado hoja")
}

// La SET re-verifica las firmas: RSA PKCS#1 v1.5 es determinista, por lo que
// firmar dos veces el mismo XML con la misma llave produce bytes idénticos.
func TestSign_Determinista(t *testing.T) {
	svc := signer.NewXMLSignatureService()
	cert := selfSignedCert(t)

	a, err := svc.Sign(testXML, testRefID, cert)
	require.NoError(t, err)
	b, err := svc.Sign(testXML, testRefID, cert)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSign_VerificableConLaLlavePublica(t *testing.T) {
	svc := signer.NewXMLSignatureService()
	cert := selfSignedCert(t)

	signed, err := svc.Sign(testXML, testRefID, cert)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	sv := doc.FindElement("//SignatureValue")
	require.NotNil(t, sv)

	raw, err := base64.StdEncoding.DecodeString(sv.Text())
	require.NoError(t, err)
	key := cert.PrivateKey.(*rsa.PrivateKey)
	assert.Len(t, raw, key.Size(), "la firma RSA mide el tamaño del módulo")
}

// ── Errores ───────────────────────────────────────────────────────────────────

func TestSign_ErrorXMLVacio(t *testing.T) {
	svc := signer.NewXMLSignatureService()
	_, err := svc.Sign(nil, testRefID, selfSignedCert(t))
	var serr *siferr.SigningError
	require.ErrorAs(t, err, &serr)
}

func TestSign_ErrorSinReferenceID(t *testing.T) {
	svc := signer.NewXMLSignatureService()
	_, err := svc.Sign(testXML, "", selfSignedCert(t))
	assert.Error(t, err)
}

func TestSign_ErrorLlaveNoRSA(t *testing.T) {
	svc := signer.NewXMLSignatureService()

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t)
	cert.PrivateKey = ecKey

	_, err = svc.Sign(testXML, testRefID, cert)
	var serr *siferr.SigningError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "llave", serr.Step)
}

func TestSign_ErrorXMLMalformado(t *testing.T) {
	svc := signer.NewXMLSignatureService()
	_, err := svc.Sign([]byte("<rDE><sin-cerrar>"), testRefID, selfSignedCert(t))
	assert.Error(t, err)
}

// ── ValidateCertificate ───────────────────────────────────────────────────────

func TestValidateCertificate_Vigente(t *testing.T) {
	cert := selfSignedCert(t)
	assert.NoError(t, signer.ValidateCertificate(cert, time.Now()))
}

func TestValidateCertificate_Vencido(t *testing.T) {
	cert := selfSignedCert(t)
	err := signer.ValidateCertificate(cert, time.Now().Add(48*time.Hour))
	var cerr *siferr.CertificateError
	require.ErrorAs(t, err, &cerr)
}

func TestValidateCertificate_AunNoVigente(t *testing.T) {
	cert := selfSignedCert(t)
	err := signer.ValidateCertificate(cert, time.Now().Add(-24*time.Hour))
	assert.Error(t, err)
}

func TestValidateCertificate_SinHoja(t *testing.T) {
	assert.Error(t, signer.ValidateCertificate(tls.Certificate{}, time.Now()))
}

func TestLoadFromP12_ArchivoInexistente(t *testing.T) {
	_, err := signer.LoadFromP12("/ruta/que/no/existe.p12", "secreto")
	var cerr *siferr.CertificateError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "/ruta/que/no/existe.p12", cerr.Path)
}
