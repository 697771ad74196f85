// Verge is a domain-based HTTP/HTTPS reverse proxy.
//
// It routes requests by Host header and longest-matching path prefix to
// local ports or external servers, rewrites paths between the two
// namespaces, tunnels WebSocket upgrades, and manages TLS certificates
// including ACME HTTP-01 challenge responses.
//
// Usage:
//
//	# Start the proxy with default configuration
//	verge run
//
//	# Start with a custom configuration file
//	verge run --config /etc/verge/config.yaml
//
//	# Manage domain mappings
//	verge mapping add api.example.com 3000 --frontend api --backend v1
//	verge mapping list --json
//
//	# Replicate mappings from another database
//	verge sync ./data/current.db ./export.db
//
//	# Generate a self-signed certificate
//	verge certs generate example.com
//
//	# Show version information
//	verge version
package main

func main() {
	Execute()
}
