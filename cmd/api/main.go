package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nandutech/sifen-api/internal/application/billing"
	"github.com/nandutech/sifen-api/internal/infrastructure/postgres"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	"github.com/nandutech/sifen-api/internal/infrastructure/sifen/signer"
	httpRouter "github.com/nandutech/sifen-api/internal/interfaces/http"
	"github.com/nandutech/sifen-api/pkg/config"
	"github.com/nandutech/sifen-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("ambiente_sifen", cfg.SIFEN.Environment).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	docRepo := postgres.NewDocumentRepository(pool)
	eventRepo := postgres.NewDocumentEventRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Certificado de transporte (mTLS). El de firma se carga por empresa.
	var transportCert tls.Certificate
	if cfg.SIFEN.CertPath != "" {
		transportCert, err = signer.LoadFromP12(cfg.SIFEN.CertPath, cfg.SIFEN.CertPassword)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SIFEN.CertPath).Msg("certificado de transporte")
		}
		if err := signer.ValidateCertificate(transportCert, time.Now()); err != nil {
			log.Fatal().Err(err).Msg("certificado de transporte vencido o no vigente")
		}
	} else {
		log.Warn().Msg("SIFEN_CERT_PATH vacío: el canal hacia la SET irá sin certificado de cliente")
	}

	xmlBuilder := infrasifen.NewXMLBuilderService()
	eventBuilder := infrasifen.NewEventXMLBuilder()
	signerSvc := signer.NewXMLSignatureService()
	transport, err := infrasifen.NewSOAPClient(cfg.SIFEN, transportCert, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cliente SOAP hacia la SET")
	}
	lifecycle := billing.NewLifecycle()

	issueSvc := billing.NewIssueService(
		companyRepo, docRepo, txRunner,
		xmlBuilder, signerSvc, transport,
		lifecycle, signer.LoadFromP12, log,
	)
	eventSvc := billing.NewEventService(
		docRepo, eventRepo, companyRepo,
		eventBuilder, signerSvc, transport,
		lifecycle, signer.LoadFromP12, log,
	)
	noteSvc := billing.NewCreditNoteService(
		docRepo, eventRepo, companyRepo, issueSvc,
		eventBuilder, signerSvc, transport,
		signer.LoadFromP12, log,
	)
	processor := billing.NewEventBatchProcessor(eventRepo, transport, cfg.SIFEN.BatchSize, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 60, // la SET puede tardar en responder
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Issue:      issueSvc,
		CreditNote: noteSvc,
		Events:     eventSvc,
		Processor:  processor,
		DocRepo:    docRepo,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
}
