package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "HOLD_TTL", "OFFER_TTL", "TAX_RATE", "REDIS_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.HoldTTL != 15*time.Minute || cfg.OfferTTL != 10*time.Minute {
		t.Fatalf("unexpected TTL defaults: hold=%v offer=%v", cfg.HoldTTL, cfg.OfferTTL)
	}
	if cfg.TaxRate.String() != "0.15" {
		t.Fatalf("expected default tax rate, got %s", cfg.TaxRate)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected in-process bus default, got %q", cfg.RedisAddr)
	}
}

func TestLoadEnvFile_ParsesDotEnv(t *testing.T) {
	dir := t.TempDir()
	// Leading BOM, comments, export prefix, and quoted values all appear in
	// real .env files.
	content := "\uFEFFPORT=9191\n# local overrides\nexport HOLD_TTL=20m\nENVIRONMENT=\"staging\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Chdir(dir)
	for _, key := range []string{"PORT", "HOLD_TTL", "ENVIRONMENT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Port != "9191" {
		t.Fatalf("expected port from env file, got %q", cfg.Port)
	}
	if cfg.HoldTTL != 20*time.Minute {
		t.Fatalf("expected hold TTL from env file, got %v", cfg.HoldTTL)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("expected unquoted environment, got %q", cfg.Environment)
	}
}

func TestLoadEnvFile_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9191\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("PORT", "7070")

	cfg := Load()

	if cfg.Port != "7070" {
		t.Fatalf("expected real environment to win, got %q", cfg.Port)
	}
}
