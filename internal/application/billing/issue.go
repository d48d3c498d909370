package billing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/repository"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	"github.com/nandutech/sifen-api/pkg/logger"
	sifencat "github.com/nandutech/sifen-api/pkg/sifen"
)

// IssueInput datos para emitir un documento electrónico.
type IssueInput struct {
	CompanyID string
	DocType   string // vacío = factura (01)
	Serie     string
	Number    int64     // 0 = asignar el siguiente correlativo
	IssueDate time.Time // cero = ahora

	ReceiverRUC  string
	ReceiverName string
	ReceiverDir  string

	Items    []entity.DocumentItem
	Currency string // vacío = PYG

	// Solo notas de crédito (las llena el flujo de NCE).
	LinkedCDC string
	NCEMotive string
}

// IssueService emite documentos: numeración y CDC en transacción, luego
// XML → firma → envío, persistiendo el estado tras cada etapa para que un
// fallo deje al documento retomable desde donde quedó.
type IssueService struct {
	companyRepo repository.CompanyRepository
	docRepo     repository.DocumentRepository
	txRunner    TxRunner
	xmlBuilder  *infrasifen.XMLBuilderService
	signer      Signer
	transport   Transport
	lifecycle   *Lifecycle
	certLoader  CertLoader
	log         *logger.Logger
	now         func() time.Time
}

// NewIssueService construye el servicio con todas sus dependencias.
func NewIssueService(
	companyRepo repository.CompanyRepository,
	docRepo repository.DocumentRepository,
	txRunner TxRunner,
	xmlBuilder *infrasifen.XMLBuilderService,
	signer Signer,
	transport Transport,
	lifecycle *Lifecycle,
	certLoader CertLoader,
	log *logger.Logger,
) *IssueService {
	return &IssueService{
		companyRepo: companyRepo,
		docRepo:     docRepo,
		txRunner:    txRunner,
		xmlBuilder:  xmlBuilder,
		signer:      signer,
		transport:   transport,
		lifecycle:   lifecycle,
		certLoader:  certLoader,
		log:         log,
		now:         time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *IssueService) WithClock(now func() time.Time) *IssueService {
	s.now = now
	return s
}

// Issue emite el documento de punta a punta. Devuelve el documento con su
// estado final (aprobado, rechazado o error) ya persistido.
func (s *IssueService) Issue(ctx context.Context, input IssueInput) (*entity.Document, error) {
	company, err := s.companyRepo.GetByID(ctx, input.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, siferr.NewValidation("empresa", "empresa no encontrada: "+input.CompanyID)
	}

	now := s.now()
	if !company.HasValidCertificate(now) {
		return nil, &siferr.CertificateError{Path: company.CertPath, Err: fmt.Errorf("la empresa no tiene certificado vigente")}
	}

	doc, err := s.createWithCDC(ctx, input, company, now)
	if err != nil {
		return nil, err
	}

	// Serialización por CDC: ninguna otra operación toca este documento
	// mientras avanza por el pipeline.
	lock := s.lifecycle.LockFor(doc.CDC)
	lock.Lock()
	defer lock.Unlock()

	if err := s.Pipeline(ctx, doc, company); err != nil {
		return doc, err
	}
	return doc, nil
}

// createWithCDC asigna número y CDC, y persiste el documento en pendiente.
// Todo dentro de una transacción: dos emisiones concurrentes no pueden
// quedarse con el mismo correlativo.
func (s *IssueService) createWithCDC(ctx context.Context, input IssueInput, company *entity.Company, now time.Time) (*entity.Document, error) {
	docType := input.DocType
	if docType == "" {
		docType = sifencat.DocTypeFactura
	}
	if !sifencat.ValidDocType(docType) {
		return nil, siferr.NewValidation("tipoDocumento", "código desconocido: "+docType)
	}
	if input.Serie == "" {
		return nil, siferr.NewValidation("serie", "falta la serie del documento")
	}
	if len(input.Items) == 0 {
		return nil, siferr.NewValidation("items", "el documento debe tener al menos un ítem")
	}
	if input.ReceiverName == "" {
		return nil, siferr.NewValidation("receptor", "falta la razón social del receptor")
	}

	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = now
	}

	securityCode, err := randomSecurityCode()
	if err != nil {
		return nil, err
	}

	var doc *entity.Document
	err = s.txRunner.Run(ctx, func(docRepo repository.DocumentRepository, _ repository.DocumentEventRepository) error {
		number := input.Number
		if number == 0 {
			next, err := docRepo.NextNumber(ctx, input.CompanyID, docType, input.Serie)
			if err != nil {
				return err
			}
			number = next
		} else {
			exists, err := docRepo.NumberExists(ctx, input.CompanyID, docType, input.Serie, number)
			if err != nil {
				return err
			}
			if exists {
				return siferr.NewValidation("numero", fmt.Sprintf("el número %d ya fue emitido en la serie %s", number, input.Serie))
			}
		}

		cdc, err := sifencat.BuildCDC(sifencat.CDCParams{
			DocType:      docType,
			RUC:          company.RUC,
			Expedition:   company.PuntoExpedicion,
			Sequence:     number,
			EmissionType: sifencat.EmissionNormal,
			IssueDate:    issueDate,
			SecurityCode: securityCode,
		})
		if err != nil {
			return err
		}

		doc = &entity.Document{
			CompanyID:    input.CompanyID,
			CDC:          cdc,
			DocType:      docType,
			Serie:        input.Serie,
			Number:       number,
			IssueDate:    issueDate,
			ReceiverRUC:  input.ReceiverRUC,
			ReceiverName: input.ReceiverName,
			ReceiverDir:  input.ReceiverDir,
			Items:        input.Items,
			Currency:     input.Currency,
			Status:       entity.StatusPending,
			LinkedCDC:    input.LinkedCDC,
			NCEMotive:    input.NCEMotive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		doc.AppendHistory(now, "", entity.StatusPending, "documento creado")
		return docRepo.Create(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("cdc", doc.CDC).
		Str("tipo", docType).
		Str("serie", doc.Serie).
		Int64("numero", doc.Number).
		Msg("documento creado")
	return doc, nil
}

// Pipeline lleva un documento pendiente hasta su desenlace con la SET:
// generado → firmado → enviado → aprobado|rechazado. Cada etapa persiste.
// También retoma documentos en error (el estado error es recuperable).
func (s *IssueService) Pipeline(ctx context.Context, doc *entity.Document, company *entity.Company) error {
	now := s.now()
	if doc.Status == entity.StatusError {
		if err := s.lifecycle.Transition(doc, entity.StatusPending, "reintento tras error", now); err != nil {
			return err
		}
	}

	// Etapa 1: XML canónico
	currency := doc.Currency
	if currency == "" {
		currency = sifencat.CurrencyGuarani
	}
	totals, err := infrasifen.ComputeTotals(doc.Items, currency)
	if err != nil {
		return s.fail(ctx, doc, "generación", err)
	}
	doc.ExemptTotal = totals.Exempt
	doc.TaxedBase5 = totals.Base5
	doc.TaxedBase10 = totals.Base10
	doc.IVA5 = totals.IVA5
	doc.IVA10 = totals.IVA10
	doc.GrandTotal = totals.GrandTotal

	xmlBytes, err := s.xmlBuilder.Build(&infrasifen.DocumentBuildContext{Document: doc, Company: company})
	if err != nil {
		return s.fail(ctx, doc, "generación", err)
	}
	if err := s.advance(ctx, doc, entity.StatusGenerated, "XML generado"); err != nil {
		return err
	}

	// Etapa 2: firma
	cert, err := s.certLoader(company.CertPath, company.CertPassword)
	if err != nil {
		return s.fail(ctx, doc, "firma", err)
	}
	signed, err := s.signer.Sign(xmlBytes, doc.CDC, cert)
	if err != nil {
		return s.fail(ctx, doc, "firma", err)
	}
	doc.XMLSigned = string(signed)
	if err := s.advance(ctx, doc, entity.StatusSigned, "XML firmado"); err != nil {
		return err
	}

	// Etapa 3: envío
	if err := s.advance(ctx, doc, entity.StatusSent, "entregado a siRecepDE"); err != nil {
		return err
	}
	resp, err := s.transport.ForIssuer(cert, company.Production).SubmitDocument(ctx, signed)
	if err != nil {
		var rejected *siferr.RemoteRejectedError
		if errors.As(err, &rejected) {
			doc.ResponseCode = rejected.Status
			doc.ResponseMessage = rejected.Message
			if uerr := s.advance(ctx, doc, entity.StatusRejected, "rechazado por la SET: "+rejected.Message); uerr != nil {
				return uerr
			}
			return err
		}
		return s.fail(ctx, doc, "transporte", err)
	}

	doc.ResponseCode = resp.Code
	doc.ResponseMessage = resp.Message
	doc.Protocol = resp.Protocol
	if err := s.advance(ctx, doc, entity.StatusApproved, "aprobado por la SET"); err != nil {
		return err
	}

	s.log.Info().
		Str("cdc", doc.CDC).
		Str("protocolo", doc.Protocol).
		Msg("documento aprobado")
	return nil
}

// advance aplica la transición y persiste.
func (s *IssueService) advance(ctx context.Context, doc *entity.Document, to, detail string) error {
	if err := s.lifecycle.Transition(doc, to, detail, s.now()); err != nil {
		return err
	}
	return s.docRepo.Update(ctx, doc)
}

// fail marca el documento en error (recuperable) con el detalle y lo persiste.
func (s *IssueService) fail(ctx context.Context, doc *entity.Document, stage string, cause error) error {
	s.log.Error().
		Err(cause).
		Str("cdc", doc.CDC).
		Str("etapa", stage).
		Msg("fallo en el pipeline de emisión")
	if terr := s.lifecycle.Transition(doc, entity.StatusError, stage+": "+cause.Error(), s.now()); terr == nil {
		if uerr := s.docRepo.Update(ctx, doc); uerr != nil {
			s.log.Error().Err(uerr).Str("cdc", doc.CDC).Msg("no se pudo persistir el estado de error")
		}
	}
	return cause
}

// randomSecurityCode código de seguridad de 8 dígitos (dCodSeg) con
// aleatoriedad criptográfica, nunca derivado de datos del documento.
func randomSecurityCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return "", fmt.Errorf("generar código de seguridad: %w", err)
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}
