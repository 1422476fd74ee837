package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSConfig holds certificate paths.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// TLSFromEnv reads NARRATIVE_TLS_CERT and NARRATIVE_TLS_KEY. It returns nil
// unless both are set.
func TLSFromEnv() *TLSConfig {
	certFile := os.Getenv("NARRATIVE_TLS_CERT")
	keyFile := os.Getenv("NARRATIVE_TLS_KEY")
	if certFile == "" || keyFile == "" {
		return nil
	}
	return &TLSConfig{CertFile: certFile, KeyFile: keyFile}
}

// Enabled returns true if both files are configured.
func (c *TLSConfig) Enabled() bool {
	return c != nil && c.CertFile != "" && c.KeyFile != ""
}

// Load reads the key pair.
func (c *TLSConfig) Load() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
