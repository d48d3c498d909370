package cmd

import (
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "sifenctl",
	Short: "Herramientas operativas para facturación electrónica SIFEN (e-Kuatia)",
	Long: `sifenctl agrupa las tareas operativas del motor de facturación
electrónica SIFEN que no pasan por la API HTTP.

Comandos:
  - process-events: envía los eventos pendientes a la SET en lotes de hasta 15
  - requeue-events: reencola los eventos en error para una corrida futura
  - validate-cert:  valida un certificado .p12 de emisor

Ejemplos:
  # Procesar eventos pendientes (lo invoca el scheduler cada pocos minutos)
  sifenctl process-events

  # Reencolar eventos que quedaron en error por un corte de red
  sifenctl requeue-events

  # Revisar la vigencia de un certificado
  sifenctl validate-cert --cert /certs/emisor.p12 --password secreto`,
	Version: version,
}

// Execute ejecuta el comando raíz.
func Execute() error {
	return rootCmd.Execute()
}
