package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"verge-hq/verge/pkg/certs"
)

var certsFlags struct {
	dir  string
	sans []string
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage TLS certificates",
	Long: `Manage the TLS certificates the proxy serves by SNI.

Certificates live as <domain>.crt/<domain>.key pairs in the certificate
directory. The running proxy watches the directory and reloads changed
pairs, so certificates generated or dropped in by an external ACME client
take effect without a restart.`,
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate <domain>",
	Short: "Generate a self-signed certificate",
	Long: `Generate a self-signed certificate and key pair for a domain.

Self-signed certificates are for development and testing; production
deployments should drop CA-issued pairs into the certificate directory
instead.

Examples:
  # Generate a certificate for a domain
  verge certs generate example.com

  # Cover additional names
  verge certs generate example.com --san www.example.com --san api.example.com

  # Wildcard certificate (stored as wildcard.example.com.crt)
  verge certs generate "*.example.com"`,
	Args: cobra.ExactArgs(1),
	RunE: runCertsGenerate,
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsGenerateCmd)

	certsCmd.PersistentFlags().StringVar(&certsFlags.dir, "dir", "./certs", "certificate directory")
	certsGenerateCmd.Flags().StringArrayVar(&certsFlags.sans, "san", nil, "additional subject alternative name (repeatable)")
}

func runCertsGenerate(cmd *cobra.Command, args []string) error {
	domain := args[0]

	manager, err := certs.NewManager(certsFlags.dir, "")
	if err != nil {
		return fmt.Errorf("failed to initialize certificate manager: %w", err)
	}

	// The domain is always its own subject alternative name; verifiers
	// ignore the common name.
	sans := append([]string{domain}, certsFlags.sans...)
	if err := manager.GenerateSelfSigned(domain, sans); err != nil {
		return fmt.Errorf("failed to generate certificate: %w", err)
	}

	name := certs.SanitizeDomain(domain)
	fmt.Printf("Generated %s/%s.crt and %s/%s.key\n", certsFlags.dir, name, certsFlags.dir, name)
	return nil
}
