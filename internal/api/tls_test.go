package api

import (
	"testing"
)

func TestTLSFromEnv_NoEnvVars(t *testing.T) {
	t.Setenv("NARRATIVE_TLS_CERT", "")
	t.Setenv("NARRATIVE_TLS_KEY", "")

	cfg := TLSFromEnv()
	if cfg.Enabled() {
		t.Error("TLS should not be enabled when env vars are not set")
	}
}

func TestTLSFromEnv_OnlyCert(t *testing.T) {
	t.Setenv("NARRATIVE_TLS_CERT", "/path/to/cert.pem")
	t.Setenv("NARRATIVE_TLS_KEY", "")

	if TLSFromEnv() != nil {
		t.Error("TLS should not be enabled when only cert is set")
	}
}

func TestTLSFromEnv_OnlyKey(t *testing.T) {
	t.Setenv("NARRATIVE_TLS_CERT", "")
	t.Setenv("NARRATIVE_TLS_KEY", "/path/to/key.pem")

	if TLSFromEnv() != nil {
		t.Error("TLS should not be enabled when only key is set")
	}
}

func TestTLSFromEnv_BothSet(t *testing.T) {
	t.Setenv("NARRATIVE_TLS_CERT", "/path/to/cert.pem")
	t.Setenv("NARRATIVE_TLS_KEY", "/path/to/key.pem")

	cfg := TLSFromEnv()
	if !cfg.Enabled() {
		t.Fatal("TLS should be enabled when both cert and key are set")
	}
	if cfg.CertFile != "/path/to/cert.pem" {
		t.Errorf("CertFile = %q, want %q", cfg.CertFile, "/path/to/cert.pem")
	}
	if cfg.KeyFile != "/path/to/key.pem" {
		t.Errorf("KeyFile = %q, want %q", cfg.KeyFile, "/path/to/key.pem")
	}
}

func TestTLSLoad_NotEnabled(t *testing.T) {
	var cfg *TLSConfig
	tlsCfg, err := cfg.Load()
	if err != nil || tlsCfg != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", tlsCfg, err)
	}
}

func TestTLSLoad_InvalidFiles(t *testing.T) {
	cfg := &TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	}
	if _, err := cfg.Load(); err == nil {
		t.Error("Load should fail when cert files don't exist")
	}
}
