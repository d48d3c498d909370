package billing_test

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nandutech/sifen-api/internal/application/billing"
	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	"github.com/nandutech/sifen-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles en memoria de los puertos del paquete
// ──────────────────────────────────────────────────────────────────────────────

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "development", Level: "error"})
}

var (
	_ repository.CompanyRepository       = (*fakeCompanyRepo)(nil)
	_ repository.DocumentRepository      = (*fakeDocRepo)(nil)
	_ repository.DocumentEventRepository = (*fakeEventRepo)(nil)
	_ billing.TxRunner                   = (*fakeTxRunner)(nil)
	_ billing.Transport                  = (*fakeTransport)(nil)
)

// fakeCompanyRepo empresas en memoria, indexadas por id.
type fakeCompanyRepo struct {
	companies map[string]*entity.Company
}

func newFakeCompanyRepo(companies ...*entity.Company) *fakeCompanyRepo {
	m := make(map[string]*entity.Company, len(companies))
	for _, c := range companies {
		m[c.ID] = c
	}
	return &fakeCompanyRepo{companies: m}
}

func (r *fakeCompanyRepo) GetByID(_ context.Context, id string) (*entity.Company, error) {
	return r.companies[id], nil
}

func (r *fakeCompanyRepo) GetByRUC(_ context.Context, ruc string) (*entity.Company, error) {
	for _, c := range r.companies {
		if c.RUC == ruc {
			return c, nil
		}
	}
	return nil, nil
}

// fakeDocRepo documentos en memoria. Numeración por (empresa, tipo, serie).
type fakeDocRepo struct {
	mu     sync.Mutex
	byCDC  map[string]*entity.Document
	nextID int
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{byCDC: make(map[string]*entity.Document)}
}

func (r *fakeDocRepo) Create(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byCDC[doc.CDC]; dup {
		return errors.New("documento duplicado")
	}
	if doc.ID == "" {
		r.nextID++
		doc.ID = fmt.Sprintf("doc-%d", r.nextID)
	}
	r.byCDC[doc.CDC] = doc
	return nil
}

func (r *fakeDocRepo) Update(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCDC[doc.CDC] = doc
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.byCDC {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocRepo) GetByCDC(_ context.Context, cdc string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byCDC[cdc], nil
}

func (r *fakeDocRepo) NextNumber(_ context.Context, companyID, docType, serie string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, d := range r.byCDC {
		if d.CompanyID == companyID && d.DocType == docType && d.Serie == serie && d.Number > max {
			max = d.Number
		}
	}
	return max + 1, nil
}

func (r *fakeDocRepo) NumberExists(_ context.Context, companyID, docType, serie string, number int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.byCDC {
		if d.CompanyID == companyID && d.DocType == docType && d.Serie == serie && d.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDocRepo) ExistsInRange(_ context.Context, companyID, serie string, start, end int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.byCDC {
		if d.CompanyID == companyID && d.Serie == serie && d.Number >= start && d.Number <= end {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDocRepo) ListByStatus(_ context.Context, companyID, status string, limit int) ([]*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Document
	for _, d := range r.byCDC {
		if d.CompanyID == companyID && d.Status == status {
			out = append(out, d)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeDocRepo) StatusStats(_ context.Context, companyID string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make(map[string]int64)
	for _, d := range r.byCDC {
		if d.CompanyID == companyID {
			stats[d.Status]++
		}
	}
	return stats, nil
}

// fakeEventRepo eventos en memoria, en orden de creación.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []*entity.DocumentEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (r *fakeEventRepo) Create(_ context.Context, ev *entity.DocumentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeEventRepo) Update(_ context.Context, ev *entity.DocumentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.events {
		if existing.ID == ev.ID {
			r.events[i] = ev
			return nil
		}
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeEventRepo) GetByID(_ context.Context, id string) (*entity.DocumentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, nil
}

func (r *fakeEventRepo) ListPending(_ context.Context, limit int) ([]*entity.DocumentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DocumentEvent
	for _, ev := range r.events {
		if ev.Status == entity.EventStatusPending && ev.XMLSigned != "" {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeEventRepo) RequeueErrored(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var moved int64
	for _, ev := range r.events {
		if ev.Status == entity.EventStatusError && ev.XMLSigned != "" {
			ev.Status = entity.EventStatusPending
			moved++
		}
	}
	return moved, nil
}

func (r *fakeEventRepo) Stats(_ context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make(map[string]int64)
	for _, ev := range r.events {
		stats[ev.Status]++
	}
	return stats, nil
}

// fakeTxRunner ejecuta el callback directo sobre los repos en memoria.
type fakeTxRunner struct {
	docs   *fakeDocRepo
	events *fakeEventRepo
}

func (t *fakeTxRunner) Run(ctx context.Context, fn func(
	docRepo repository.DocumentRepository,
	eventRepo repository.DocumentEventRepository,
) error) error {
	return fn(t.docs, t.events)
}

// fakeTransport doble del puerto SOAP. Respuestas configurables por operación.
type fakeTransport struct {
	mu sync.Mutex

	submitResp *infrasifen.Response
	submitErr  error

	eventsResp *infrasifen.Response
	eventsErr  error

	queryResp *infrasifen.Response
	queryErr  error

	submitCalls int
	eventsCalls int
	lastEvents  [][]byte

	issuerCalls      int
	lastIssuerProd   bool
	forIssuerApplied bool
}

// ForIssuer registra el ambiente solicitado y devuelve el mismo doble: los
// contadores cubren todas las llamadas sin importar el emisor.
func (f *fakeTransport) ForIssuer(_ tls.Certificate, production bool) billing.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issuerCalls++
	f.lastIssuerProd = production
	f.forIssuerApplied = true
	return f
}

func (f *fakeTransport) SubmitDocument(_ context.Context, _ []byte) (*infrasifen.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return f.submitResp, f.submitErr
}

func (f *fakeTransport) SubmitBatch(_ context.Context, _ [][]byte) (*infrasifen.Response, error) {
	return f.submitResp, f.submitErr
}

func (f *fakeTransport) QueryBatchResult(_ context.Context, _ string) (*infrasifen.Response, error) {
	return f.queryResp, f.queryErr
}

func (f *fakeTransport) QueryDocument(_ context.Context, _ string) (*infrasifen.Response, error) {
	return f.queryResp, f.queryErr
}

func (f *fakeTransport) QueryRUC(_ context.Context, _ string) (*infrasifen.Response, error) {
	return f.queryResp, f.queryErr
}

func (f *fakeTransport) SubmitEvents(_ context.Context, xmls [][]byte) (*infrasifen.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventsCalls++
	f.lastEvents = xmls
	return f.eventsResp, f.eventsErr
}

// stubSigner antepone un marcador; los tests de firma real viven en signer.
func stubSigner(xmlBytes []byte, _ string, _ tls.Certificate) ([]byte, error) {
	return append([]byte("<!--firmado-->"), xmlBytes...), nil
}

type signerFunc func(xmlBytes []byte, referenceID string, cert tls.Certificate) ([]byte, error)

func (f signerFunc) Sign(xmlBytes []byte, referenceID string, cert tls.Certificate) ([]byte, error) {
	return f(xmlBytes, referenceID, cert)
}

func stubCertLoader(_, _ string) (tls.Certificate, error) {
	return tls.Certificate{}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

func okResponse(code, protocol string) *infrasifen.Response {
	return &infrasifen.Response{Code: code, Message: "ok", Protocol: protocol}
}

func validCompany(now time.Time) *entity.Company {
	validTo := now.Add(365 * 24 * time.Hour)
	return &entity.Company{
		ID:              "emp-1",
		RUC:             "80123456-5",
		RazonSocial:     "Ñandutí Tech S.A.",
		Direccion:       "Avda. Mcal. López 1234",
		PuntoExpedicion: "001",
		Timbrado:        "12345678",
		CertPath:        "/certs/emp-1.p12",
		CertValidTo:     &validTo,
	}
}

func lineItems(gross int64) []entity.DocumentItem {
	return []entity.DocumentItem{{
		Description: "servicio",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.NewFromInt(gross),
		IVARate:     10,
	}}
}
