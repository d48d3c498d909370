package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nandutech/sifen-api/internal/infrastructure/sifen/signer"
)

var (
	certPath     string
	certPassword string
)

var validateCertCmd = &cobra.Command{
	Use:   "validate-cert",
	Short: "Valida un certificado .p12 de emisor (llave RSA y vigencia)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if certPath == "" {
			return fmt.Errorf("falta --cert")
		}
		cert, err := signer.LoadFromP12(certPath, certPassword)
		if err != nil {
			return err
		}
		if err := signer.ValidateCertificate(cert, time.Now()); err != nil {
			return err
		}
		leaf := cert.Leaf
		fmt.Printf("certificado válido\n")
		fmt.Printf("  sujeto:  %s\n", leaf.Subject)
		fmt.Printf("  emisor:  %s\n", leaf.Issuer)
		fmt.Printf("  vigente: %s al %s\n",
			leaf.NotBefore.Format("2006-01-02"), leaf.NotAfter.Format("2006-01-02"))
		return nil
	},
}

func init() {
	validateCertCmd.Flags().StringVar(&certPath, "cert", "", "Ruta al archivo .p12/.pfx")
	validateCertCmd.Flags().StringVar(&certPassword, "password", "", "Contraseña del contenedor (vacía si no tiene)")
	rootCmd.AddCommand(validateCertCmd)
}
