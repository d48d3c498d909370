package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nandutech/sifen-api/internal/application/billing"
	"github.com/nandutech/sifen-api/internal/infrastructure/postgres"
	infrasifen "github.com/nandutech/sifen-api/internal/infrastructure/sifen"
	"github.com/nandutech/sifen-api/internal/infrastructure/sifen/signer"
	"github.com/nandutech/sifen-api/pkg/config"
	"github.com/nandutech/sifen-api/pkg/logger"
)

var processEventsCmd = &cobra.Command{
	Use:   "process-events",
	Short: "Envía los eventos pendientes a la SET en un lote",
	Long: `Toma hasta 15 eventos pendientes con XML firmado (los más antiguos
primero) y los entrega en una única llamada a siRecepEvento. Pensado para
correr bajo un scheduler (cron); no reintenta por sí solo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("cargar configuración: %w", err)
		}
		log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		defer pool.Close()

		var cert tls.Certificate
		if cfg.SIFEN.CertPath != "" {
			cert, err = signer.LoadFromP12(cfg.SIFEN.CertPath, cfg.SIFEN.CertPassword)
			if err != nil {
				return err
			}
		}

		eventRepo := postgres.NewDocumentEventRepository(pool)
		transport, err := infrasifen.NewSOAPClient(cfg.SIFEN, cert, log)
		if err != nil {
			return fmt.Errorf("cliente SOAP hacia la SET: %w", err)
		}
		processor := billing.NewEventBatchProcessor(eventRepo, transport, cfg.SIFEN.BatchSize, log)

		summary, err := processor.ProcessPending(ctx)
		if summary != nil {
			fmt.Printf("tomados=%d aprobados=%d rechazados=%d enviados=%d error=%d protocolo=%s\n",
				summary.Pulled, summary.Approved, summary.Rejected, summary.Sent, summary.Errored, summary.Protocol)
		}
		return err
	},
}

var requeueEventsCmd = &cobra.Command{
	Use:   "requeue-events",
	Short: "Reencola los eventos en error para una corrida futura",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("cargar configuración: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		defer pool.Close()

		moved, err := postgres.NewDocumentEventRepository(pool).RequeueErrored(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("eventos reencolados: %d\n", moved)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processEventsCmd)
	rootCmd.AddCommand(requeueEventsCmd)
}
