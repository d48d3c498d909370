package sifen

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/nandutech/sifen-api/internal/domain/siferr"
	"github.com/nandutech/sifen-api/pkg/config"
	"github.com/nandutech/sifen-api/pkg/logger"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// ── Operaciones SOAP de la SET ────────────────────────────────────────────────

const (
	OpRecepDE     = "siRecepDE"
	OpRecepLote   = "siRecepLoteDE"
	OpResultLote  = "siResultLoteDE"
	OpConsDE      = "siConsDE"
	OpConsRUC     = "siConsRUC"
	OpRecepEvento = "siRecepEvento"

	soapEnvNS = "http://www.w3.org/2003/05/soap-envelope"

	maxResponseBytes = 4 << 20 // 4 MB
)

// endpoints ruta relativa de cada operación sobre la URL base del ambiente.
var endpoints = map[string]string{
	OpRecepDE:     "sync/siRecepDE.wsdl",
	OpRecepLote:   "sync/siRecepLoteDE.wsdl",
	OpResultLote:  "sync/siResultLoteDE.wsdl",
	OpConsDE:      "sync/siConsDE.wsdl",
	OpConsRUC:     "sync/siConsRUC.wsdl",
	OpRecepEvento: "sync/siRecepEvento.wsdl",
}

// ── Resultados ────────────────────────────────────────────────────────────────

// Response respuesta parseada de un WS de la SET.
type Response struct {
	Code     string // dCodRes
	Message  string // dMsgRes
	Protocol string // dProtAut / dProtDTE / nro. de lote

	// Errores de campo reportados por la SET (gCamErr).
	FieldErrors []siferr.FieldError

	// Resultados por ítem cuando la operación es de lote y la SET itemiza.
	Items []ItemResult
}

// OK indica si dCodRes es un código de procesamiento exitoso.
func (r *Response) OK() bool {
	return sifencat.ResponseCodeOK[r.Code]
}

// ItemResult desenlace individual de un elemento dentro de un lote.
type ItemResult struct {
	ID       string // CDC o Id del evento
	Code     string
	Message  string
	Protocol string
}

// ── Puerto ────────────────────────────────────────────────────────────────────

// TransportClient define el puerto de salida hacia los WS de la SET.
// Para tests se inyecta un doble.
type TransportClient interface {
	SubmitDocument(ctx context.Context, signedXML []byte) (*Response, error)
	SubmitBatch(ctx context.Context, signedXMLs [][]byte) (*Response, error)
	QueryBatchResult(ctx context.Context, batchProtocol string) (*Response, error)
	QueryDocument(ctx context.Context, cdc string) (*Response, error)
	QueryRUC(ctx context.Context, ruc string) (*Response, error)
	SubmitEvents(ctx context.Context, signedEventXMLs [][]byte) (*Response, error)

	// ForIssuer deriva un cliente con el certificado y el ambiente del emisor:
	// el flag producción vive en el perfil de cada empresa, no en la config global.
	ForIssuer(cert tls.Certificate, production bool) TransportClient
}

// ── Cliente SOAP ──────────────────────────────────────────────────────────────

// SOAPClient implementa TransportClient contra los WS SOAP 1.2 de la SET.
// Autenticación mutua TLS con el certificado del emisor.
type SOAPClient struct {
	cfg        config.SIFENConfig
	production bool
	rootCAs    *x509.CertPool
	httpClient *http.Client
	log        *logger.Logger
}

var _ TransportClient = (*SOAPClient)(nil)

// NewSOAPClient construye el cliente base con mTLS. El certificado por defecto
// sale de la config global; las llamadas por emisor se derivan con ForIssuer.
// En producción la cadena del servidor se verifica contra la raíz fijada en
// SIFEN_ROOT_CA_PATH; en habilitación no se verifica (la SET usa CA propia).
func NewSOAPClient(cfg config.SIFENConfig, cert tls.Certificate, log *logger.Logger) (*SOAPClient, error) {
	var rootCAs *x509.CertPool
	if cfg.RootCAPath != "" {
		pem, err := os.ReadFile(cfg.RootCAPath)
		if err != nil {
			return nil, fmt.Errorf("leer raíz de confianza SET %s: %w", cfg.RootCAPath, err)
		}
		rootCAs = x509.NewCertPool()
		if !rootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("la raíz de confianza SET %s no contiene certificados PEM", cfg.RootCAPath)
		}
	}
	if cfg.IsProduction() && rootCAs == nil {
		return nil, fmt.Errorf("producción requiere SIFEN_ROOT_CA_PATH con la raíz de la SET")
	}
	return &SOAPClient{
		cfg:        cfg,
		production: cfg.IsProduction(),
		rootCAs:    rootCAs,
		httpClient: newHTTPClient(cfg, cert, cfg.IsProduction(), rootCAs),
		log:        log,
	}, nil
}

// ForIssuer deriva un cliente que llama al ambiente del emisor (su flag
// Production) autenticándose con su certificado.
func (c *SOAPClient) ForIssuer(cert tls.Certificate, production bool) TransportClient {
	return &SOAPClient{
		cfg:        c.cfg,
		production: production,
		rootCAs:    c.rootCAs,
		httpClient: newHTTPClient(c.cfg, cert, production, c.rootCAs),
		log:        c.log,
	}
}

func newHTTPClient(cfg config.SIFENConfig, cert tls.Certificate, production bool, rootCAs *x509.CertPool) *http.Client {
	tlsConfig := &tls.Config{}
	if len(cert.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if production {
		tlsConfig.RootCAs = rootCAs
	} else {
		tlsConfig.InsecureSkipVerify = true
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}
}

// baseURL resuelve la URL base según el ambiente efectivo del cliente.
func (c *SOAPClient) baseURL() string {
	if c.production {
		return c.cfg.ProdURL
	}
	return c.cfg.TestURL
}

// SubmitDocument envía un rDE firmado vía siRecepDE.
func (c *SOAPClient) SubmitDocument(ctx context.Context, signedXML []byte) (*Response, error) {
	if len(signedXML) == 0 {
		return nil, siferr.NewValidation("xml", "el XML firmado está vacío")
	}
	body := buildSingleBody("rEnviDe", "xDE", signedXML)
	return c.call(ctx, OpRecepDE, body)
}

// SubmitBatch envía hasta 15 rDE firmados en un único siRecepLoteDE.
// El límite se valida antes de tocar la red.
func (c *SOAPClient) SubmitBatch(ctx context.Context, signedXMLs [][]byte) (*Response, error) {
	if len(signedXMLs) == 0 {
		return nil, siferr.NewValidation("lote", "el lote está vacío")
	}
	if len(signedXMLs) > sifencat.MaxBatchSize {
		return nil, siferr.NewValidation("lote", fmt.Sprintf("el lote admite hasta %d documentos, se recibieron %d", sifencat.MaxBatchSize, len(signedXMLs)))
	}
	body := buildBatchBody("rEnvioLote", "xDE", signedXMLs)
	return c.call(ctx, OpRecepLote, body)
}

// QueryBatchResult consulta el resultado de un lote vía siResultLoteDE.
func (c *SOAPClient) QueryBatchResult(ctx context.Context, batchProtocol string) (*Response, error) {
	if batchProtocol == "" {
		return nil, siferr.NewValidation("protocolo", "falta el número de lote")
	}
	body := buildFieldBody("rEnviConsLoteDe", "dProtConsLote", batchProtocol)
	return c.call(ctx, OpResultLote, body)
}

// QueryDocument consulta el estado de un DE por CDC vía siConsDE.
func (c *SOAPClient) QueryDocument(ctx context.Context, cdc string) (*Response, error) {
	if err := sifencat.ValidateCDC(cdc); err != nil {
		return nil, err
	}
	body := buildFieldBody("rEnviConsDe", "dCDC", cdc)
	return c.call(ctx, OpConsDE, body)
}

// QueryRUC consulta los datos de un contribuyente vía siConsRUC.
func (c *SOAPClient) QueryRUC(ctx context.Context, ruc string) (*Response, error) {
	if ruc == "" {
		return nil, siferr.NewValidation("ruc", "falta el RUC a consultar")
	}
	body := buildFieldBody("rEnviConsRUC", "dRUCCons", ruc)
	return c.call(ctx, OpConsRUC, body)
}

// SubmitEvents envía hasta 15 rEvento firmados en un único siRecepEvento.
func (c *SOAPClient) SubmitEvents(ctx context.Context, signedEventXMLs [][]byte) (*Response, error) {
	if len(signedEventXMLs) == 0 {
		return nil, siferr.NewValidation("lote", "el lote de eventos está vacío")
	}
	if len(signedEventXMLs) > sifencat.MaxBatchSize {
		return nil, siferr.NewValidation("lote", fmt.Sprintf("el lote admite hasta %d eventos, se recibieron %d", sifencat.MaxBatchSize, len(signedEventXMLs)))
	}
	body := buildBatchBody("rEnviEventoDe", "rGesEve", signedEventXMLs)
	return c.call(ctx, OpRecepEvento, body)
}

// ── Armado del envelope ───────────────────────────────────────────────────────

// buildSingleBody arma el cuerpo de una operación con el payload firmado en
// base64, como lo exige la SET. Base64 preserva los bytes, así que la firma
// del documento llega intacta.
func buildSingleBody(rootLocal, payloadLocal string, signedXML []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<` + rootLocal + ` xmlns="` + NsSifen + `">`)
	buf.WriteString(`<dId>` + uuid.New().String() + `</dId>`)
	buf.WriteString(`<` + payloadLocal + `>`)
	buf.WriteString(base64.StdEncoding.EncodeToString(stripXMLDeclaration(signedXML)))
	buf.WriteString(`</` + payloadLocal + `>`)
	buf.WriteString(`</` + rootLocal + `>`)
	return buf.Bytes()
}

func buildBatchBody(rootLocal, payloadLocal string, signedXMLs [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<` + rootLocal + ` xmlns="` + NsSifen + `">`)
	buf.WriteString(`<dId>` + uuid.New().String() + `</dId>`)
	for _, x := range signedXMLs {
		buf.WriteString(`<` + payloadLocal + `>`)
		buf.WriteString(base64.StdEncoding.EncodeToString(stripXMLDeclaration(x)))
		buf.WriteString(`</` + payloadLocal + `>`)
	}
	buf.WriteString(`</` + rootLocal + `>`)
	return buf.Bytes()
}

func buildFieldBody(rootLocal, fieldLocal, value string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<` + rootLocal + ` xmlns="` + NsSifen + `">`)
	buf.WriteString(`<dId>` + uuid.New().String() + `</dId>`)
	buf.WriteString(`<` + fieldLocal + `>` + value + `</` + fieldLocal + `>`)
	buf.WriteString(`</` + rootLocal + `>`)
	return buf.Bytes()
}

func stripXMLDeclaration(x []byte) []byte {
	trimmed := bytes.TrimSpace(x)
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		if idx := bytes.Index(trimmed, []byte("?>")); idx >= 0 {
			return bytes.TrimSpace(trimmed[idx+2:])
		}
	}
	return trimmed
}

func wrapEnvelope(body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + soapEnvNS + `">`)
	buf.WriteString(`<soap:Header/><soap:Body>`)
	buf.Write(body)
	buf.WriteString(`</soap:Body></soap:Envelope>`)
	return buf.Bytes()
}

// ── Llamada con reintentos ────────────────────────────────────────────────────

// call ejecuta la operación con presupuesto de reintentos. Solo se reintenta
// ante fallos transitorios (error de red o 5xx); un rechazo de la SET es
// definitivo y se devuelve como RemoteRejectedError.
func (c *SOAPClient) call(ctx context.Context, operation string, body []byte) (*Response, error) {
	url := c.baseURL() + endpoints[operation]
	payload := wrapEnvelope(body)

	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, &siferr.TransportError{Operation: operation, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			c.log.Warn().Str("operacion", operation).Int("intento", attempt).Msg("reintentando llamada a la SET")
		}

		resp, transient, err := c.doOnce(ctx, operation, url, payload)
		if err == nil {
			return c.interpret(operation, resp)
		}
		lastErr = err
		if !transient {
			return nil, &siferr.TransportError{Operation: operation, Attempts: attempt, Err: err}
		}
	}
	return nil, &siferr.TransportError{Operation: operation, Attempts: attempts, Err: lastErr}
}

// doOnce hace una llamada HTTP. transient indica si el fallo amerita reintento.
func (c *SOAPClient) doOnce(ctx context.Context, operation, url string, payload []byte) (*Response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("llamada HTTP fallida: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("leer respuesta: %w", err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("HTTP %d de la SET", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("HTTP %d de la SET: %s", httpResp.StatusCode, truncate(raw, 200))
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		return nil, false, err
	}
	return parsed, false, nil
}

// interpret convierte un dCodRes de rechazo en RemoteRejectedError.
func (c *SOAPClient) interpret(operation string, resp *Response) (*Response, error) {
	if resp.OK() {
		c.log.Info().
			Str("operacion", operation).
			Str("codigo", resp.Code).
			Str("protocolo", resp.Protocol).
			Msg("respuesta exitosa de la SET")
		return resp, nil
	}
	c.log.Warn().
		Str("operacion", operation).
		Str("codigo", resp.Code).
		Str("mensaje", resp.Message).
		Int("errores_campo", len(resp.FieldErrors)).
		Msg("rechazo de la SET")
	return nil, &siferr.RemoteRejectedError{
		Operation: operation,
		Status:    resp.Code,
		Message:   resp.Message,
		Errors:    resp.FieldErrors,
	}
}

// ── Parseo de respuestas ──────────────────────────────────────────────────────

// parseResponse extrae dCodRes/dMsgRes/protocolo, gCamErr y resultados por
// ítem del cuerpo SOAP. Busca por nombre local: la SET varía los prefijos.
func parseResponse(raw []byte) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parsear respuesta SOAP: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("respuesta SOAP sin raíz")
	}

	if fault := findByLocal(root, "Fault"); fault != nil {
		code := textOfChild(fault, "Code", "faultcode", "Value")
		reason := textOfChild(fault, "Reason", "faultstring", "Text")
		return nil, fmt.Errorf("SOAP Fault [%s]: %s", code, reason)
	}

	resp := &Response{
		Code:    firstText(root, "dCodRes"),
		Message: firstText(root, "dMsgRes"),
	}
	for _, local := range []string{"dProtAut", "dProtDTE", "dProtConsLote", "dNumLote"} {
		if v := firstText(root, local); v != "" {
			resp.Protocol = v
			break
		}
	}

	// Errores de campo
	for _, camErr := range findAllByLocal(root, "gCamErr") {
		resp.FieldErrors = append(resp.FieldErrors, siferr.FieldError{
			Code:    textOfChild(camErr, "dCodErr"),
			Message: textOfChild(camErr, "dMsgErr"),
			Field:   textOfChild(camErr, "dCamErr"),
		})
	}

	// Resultados itemizados de lote (gResProc por DE/evento)
	for _, item := range findAllByLocal(root, "gResProc") {
		id := textOfChild(item, "dCDC")
		if id == "" {
			id = textOfChild(item, "dId", "Id")
		}
		resp.Items = append(resp.Items, ItemResult{
			ID:       id,
			Code:     textOfChild(item, "dCodRes"),
			Message:  textOfChild(item, "dMsgRes"),
			Protocol: textOfChild(item, "dProtAut", "dProtDTE"),
		})
	}

	if resp.Code == "" {
		return nil, fmt.Errorf("respuesta de la SET sin dCodRes: %s", truncate(raw, 200))
	}
	return resp, nil
}

// findByLocal primer descendiente con ese nombre local (DFS).
func findByLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
		if found := findByLocal(child, local); found != nil {
			return found
		}
	}
	return nil
}

func findAllByLocal(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			out = append(out, child)
			continue
		}
		out = append(out, findAllByLocal(child, local)...)
	}
	return out
}

func firstText(el *etree.Element, local string) string {
	if found := findByLocal(el, local); found != nil {
		return found.Text()
	}
	return ""
}

// textOfChild texto del primer descendiente que matchee alguno de los nombres.
func textOfChild(el *etree.Element, locals ...string) string {
	for _, local := range locals {
		if found := findByLocal(el, local); found != nil {
			return found.Text()
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
