// Package tlsconf builds the broker TLS configuration from file paths.
//
// Encryption here is transport-level only: the broker connection is
// protected, message payloads are not. A CA certificate pins the broker,
// an optional client certificate/key pair enables mutual TLS, and the
// insecure toggle disables peer verification for lab setups with
// self-signed broker certs.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Config holds the recognized TLS options. The zero value means "no TLS".
type Config struct {
	// Enabled turns on TLS even when no certificate paths are set, using the
	// system root pool.
	Enabled bool

	// CACert is the path to a PEM CA certificate used to verify the broker.
	CACert string

	// ClientCert and ClientKey are paths to a PEM client certificate/key
	// pair for mutual TLS. Both must be set together.
	ClientCert string
	ClientKey  string

	// Insecure disables broker certificate verification.
	Insecure bool
}

// Active reports whether any TLS option is set.
func (c Config) Active() bool {
	return c.Enabled || c.CACert != "" || c.ClientCert != "" || c.Insecure
}

// Build returns a *tls.Config for the broker connection, or nil when TLS is
// not requested.
func Build(c Config) (*tls.Config, error) {
	if !c.Active() {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.Insecure, //nolint:gosec
	}

	if c.CACert != "" {
		pem, err := os.ReadFile(c.CACert)
		if err != nil {
			return nil, fmt.Errorf("tlsconf: read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tlsconf: no certificates found in %s", c.CACert)
		}
		cfg.RootCAs = pool
	}

	if c.ClientCert != "" || c.ClientKey != "" {
		if c.ClientCert == "" || c.ClientKey == "" {
			return nil, fmt.Errorf("tlsconf: client cert and key must be set together")
		}
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("tlsconf: load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
