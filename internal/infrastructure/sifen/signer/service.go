// Servicio de firma XMLDSig enveloped para documentos y eventos SIFEN.
// Inyecta <Signature> como último hijo del elemento raíz (rDE / rEvento),
// con Reference al Id del elemento firmado (el CDC en los DE).

package signer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
)

// XMLSignatureService implementa la firma XMLDSig. No guarda estado: recibe
// el certificado por llamada, lo que permite un servicio compartido entre
// emisores con certificados distintos.
type XMLSignatureService struct{}

// NewXMLSignatureService crea el servicio.
func NewXMLSignatureService() *XMLSignatureService {
	return &XMLSignatureService{}
}

// Sign firma el XML y devuelve el documento con <Signature> inyectado como
// último hijo de la raíz. referenceID es el Id del elemento firmado (sin '#').
// La firma es determinista: mismo XML y misma llave producen el mismo resultado.
func (s *XMLSignatureService) Sign(xmlBytes []byte, referenceID string, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, &siferr.SigningError{Step: "entrada", Err: fmt.Errorf("XML vacío")}
	}
	if referenceID == "" {
		return nil, &siferr.SigningError{Step: "entrada", Err: fmt.Errorf("falta el Id de referencia")}
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, &siferr.SigningError{Step: "llave", Err: fmt.Errorf("el certificado debe incluir llave privada RSA")}
	}
	if len(cert.Certificate) == 0 {
		return nil, &siferr.SigningError{Step: "llave", Err: fmt.Errorf("certificado sin cadena")}
	}

	// 1) Digest del documento canonicalizado (C14N 1.0).
	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		return nil, &siferr.SigningError{Step: "c14n documento", Err: err}
	}
	docDigest := sha256.Sum256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo canonicalizado y firmado con RSA PKCS#1 v1.5 / SHA-256.
	signedInfoXML := buildSignedInfo(referenceID, docDigestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		return nil, &siferr.SigningError{Step: "c14n SignedInfo", Err: err}
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, &siferr.SigningError{Step: "firmar SignedInfo", Err: err}
	}
	signatureValueB64 := base64.StdEncoding.EncodeToString(signatureValue)

	// 3) KeyInfo con el certificado hoja.
	certB64 := base64.StdEncoding.EncodeToString(cert.Certificate[0])
	signatureXML := buildSignature(signedInfoXML, signatureValueB64, certB64)

	// 4) Inyectar como último hijo de la raíz.
	return injectSignature(xmlBytes, signatureXML)
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(referenceID, docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<Reference URI="#` + referenceID + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<DigestValue>` + docDigestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

func injectSignature(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &siferr.SigningError{Step: "parsear XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &siferr.SigningError{Step: "parsear XML", Err: fmt.Errorf("documento sin raíz")}
	}
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, &siferr.SigningError{Step: "parsear Signature", Err: err}
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		root.AddChild(sigRoot)
	}
	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, &siferr.SigningError{Step: "serializar", Err: err}
	}
	return out.Bytes(), nil
}
