package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Engine.Workers != 1 {
		t.Fatalf("expected 1 default worker, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.Resolver != "external_wins" {
		t.Fatalf("expected external_wins resolver, got %q", cfg.Engine.Resolver)
	}
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Logging.Service != "syncbridge" {
		t.Fatalf("expected default service name, got %q", cfg.Logging.Service)
	}
}

func TestLoadFromHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
engine:
  workers: 3
logging:
  level: "debug"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SYNCBRIDGE_PORT", "7070")
	t.Setenv("SYNCBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("SYNCBRIDGE_ENGINE_POLL_INTERVAL", "100ms")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env to win, got port %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
	if cfg.Engine.Workers != 3 {
		t.Fatalf("expected yaml workers 3, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.PollInterval != 100*time.Millisecond {
		t.Fatalf("expected env poll interval, got %v", cfg.Engine.PollInterval)
	}
}

func TestLoadFromRejectsBadEngineConfig(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
engine:
  workers: 0
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(yamlPath); err == nil {
		t.Fatal("expected validation error for zero workers")
	}
}

func TestLoadFromRejectsUnknownResolver(t *testing.T) {
	t.Setenv("SYNCBRIDGE_ENGINE_RESOLVER", "coin_flip")

	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected validation error for unknown resolver")
	}
}
