package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STINKMAP_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoint.Timeout != 15*time.Second {
		t.Fatalf("expected 15s endpoint timeout, got %s", cfg.Endpoint.Timeout)
	}
	if cfg.Gate.Cooldown != 3*time.Minute {
		t.Fatalf("expected 3m cooldown, got %s", cfg.Gate.Cooldown)
	}
	if cfg.Timezone != "UTC" || cfg.Prefs.Backend != BackendMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stinkmap.yaml")
	body := `endpoint:
  url: https://script.example.com/exec
  timeout: 5s
gate:
  cooldown: 1m
prefs:
  backend: sqlite
  sqlitePath: /tmp/p.db
timezone: America/New_York
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("STINKMAP_ACCESS_KEY", "secret")
	t.Setenv("STINKMAP_GATE_COOLDOWN", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoint.URL != "https://script.example.com/exec" || cfg.Endpoint.Timeout != 5*time.Second {
		t.Fatalf("endpoint not loaded: %+v", cfg.Endpoint)
	}
	if cfg.Gate.Cooldown != 90*time.Second {
		t.Fatalf("env override not applied: %s", cfg.Gate.Cooldown)
	}
	if cfg.Admin.AccessKey != "secret" {
		t.Fatalf("access key not applied")
	}
	if cfg.Prefs.Backend != BackendSQLite || cfg.Timezone != "America/New_York" {
		t.Fatalf("unexpected prefs/timezone %+v", cfg)
	}
	// Defaults survive partial files.
	if cfg.Admin.GracefulTimeout != 10*time.Second {
		t.Fatalf("expected default graceful timeout, got %s", cfg.Admin.GracefulTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STINKMAP_PREFS_BACKEND", "etcd")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
