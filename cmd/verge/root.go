package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "verge",
	Short: "Verge - domain-based HTTP/HTTPS reverse proxy",
	Long: `Verge is a reverse proxy that routes requests by domain and path prefix.

Routing rules live in a SQLite database and are matched per request, so
mappings added or changed while the proxy is running take effect immediately.
Each rule maps a (domain, path prefix) pair to a local port or an external
server, with independent frontend and backend path namespaces.

Beyond plain HTTP forwarding, Verge tunnels WebSocket upgrades as opaque
byte streams, serves ACME HTTP-01 challenges for certificate issuance, and
terminates TLS with certificates selected per handshake by SNI.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
