package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager owns the certificate directory and the ephemeral ACME state.
//
// It guarantees a default self-signed localhost pair exists, generates
// self-signed certificates on demand, serves as the HTTP-01 challenge
// registry, and tracks per-domain request rate limits. A single Manager is
// shared by every connection-handling goroutine; all its state is safe for
// concurrent use.
type Manager struct {
	dir              string
	acmeDirectoryURL string

	// challenges maps token -> ACME challenge. rateLimits maps
	// domain -> *rateLimitState. Both permit independent per-key access.
	challenges sync.Map
	rateLimits sync.Map

	// loaded certificate pairs by domain, for SNI lookup.
	mu    sync.RWMutex
	certs map[string]*tls.Certificate

	logger *slog.Logger
}

const selfSignedValidity = 365 * 24 * time.Hour

// NewManager creates a certificate manager rooted at dir, creating the
// directory and a default self-signed localhost pair if either is missing.
// Failure to establish the default pair is returned as an error; callers
// must not serve HTTPS without it.
func NewManager(dir, acmeDirectoryURL string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	m := &Manager{
		dir:              dir,
		acmeDirectoryURL: acmeDirectoryURL,
		certs:            make(map[string]*tls.Certificate),
		logger:           slog.Default().With("component", "certs"),
	}

	if err := m.ensureDefaultCert(); err != nil {
		return nil, fmt.Errorf("failed to ensure default certificate: %w", err)
	}

	if err := m.loadAll(); err != nil {
		return nil, err
	}

	return m, nil
}

// Dir returns the certificate directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// ACMEDirectoryURL returns the configured ACME directory endpoint.
func (m *Manager) ACMEDirectoryURL() string {
	return m.acmeDirectoryURL
}

// ensureDefaultCert generates the localhost pair if either file is missing.
func (m *Manager) ensureDefaultCert() error {
	certPath := filepath.Join(m.dir, "localhost.crt")
	keyPath := filepath.Join(m.dir, "localhost.key")

	if fileExists(certPath) && fileExists(keyPath) {
		return nil
	}

	m.logger.Info("generating default self-signed certificate")
	return m.GenerateSelfSigned("localhost", []string{"localhost"})
}

// GenerateSelfSigned produces a self-signed certificate and private key for
// domain and persists both to the certificate directory under a sanitized
// filename. The pair is also loaded for SNI lookup.
func (m *Manager) GenerateSelfSigned(domain string, subjectAltNames []string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	var dnsNames []string
	var ipAddresses []net.IP
	for _, san := range subjectAltNames {
		if ip := net.ParseIP(san); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else {
			dnsNames = append(dnsNames, san)
		}
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Verge"},
			CommonName:   domain,
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	name := SanitizeDomain(domain)
	certPath := filepath.Join(m.dir, name+".crt")
	keyPath := filepath.Join(m.dir, name+".key")

	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	m.logger.Info("generated self-signed certificate", "domain", domain)

	return m.loadPair(name)
}

// SanitizeDomain makes a domain safe for use as a filename. Wildcard labels
// are not filesystem-safe, so any '*' becomes "wildcard".
func SanitizeDomain(domain string) string {
	return strings.ReplaceAll(domain, "*", "wildcard")
}

// loadAll loads every cert/key pair present in the directory.
func (m *Manager) loadAll() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read certificate directory: %w", err)
	}

	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".crt")
		if !ok {
			continue
		}
		if err := m.loadPair(name); err != nil {
			// A broken pair must not prevent startup; the default
			// localhost pair is validated separately.
			m.logger.Warn("skipping unloadable certificate pair", "name", name, "error", err)
		}
	}

	return nil
}

// loadPair loads the named cert/key pair from disk into the SNI table.
func (m *Manager) loadPair(name string) error {
	certPath := filepath.Join(m.dir, name+".crt")
	keyPath := filepath.Join(m.dir, name+".key")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("failed to load key pair %s: %w", name, err)
	}

	m.mu.Lock()
	m.certs[name] = &cert
	m.mu.Unlock()

	return nil
}

// GetCertificate selects a certificate for a TLS handshake by SNI name,
// falling back to the wildcard entry for the parent domain and finally to
// the default localhost pair. It satisfies tls.Config.GetCertificate.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := strings.ToLower(hello.ServerName)
	if cert, ok := m.certs[name]; ok {
		return cert, nil
	}

	// wildcard.example.com.crt covers *.example.com
	if _, rest, found := strings.Cut(name, "."); found {
		if cert, ok := m.certs["wildcard."+rest]; ok {
			return cert, nil
		}
	}

	if cert, ok := m.certs["localhost"]; ok {
		return cert, nil
	}

	return nil, fmt.Errorf("no certificate available for %q", hello.ServerName)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
