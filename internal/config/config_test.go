package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedcheck.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/tmp/soak.db"

[loop]
short_wait = "250ms"
long_wait = "2s"
seed = 42

[workload]
enabled = true
ops_per_commit = 8

[status]
listen = "127.0.0.1:9090"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/soak.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Loop.ShortWait.Std() != 250*time.Millisecond {
		t.Errorf("ShortWait = %v, want 250ms", cfg.Loop.ShortWait.Std())
	}
	if cfg.Loop.LongWait.Std() != 2*time.Second {
		t.Errorf("LongWait = %v, want 2s", cfg.Loop.LongWait.Std())
	}
	if cfg.Loop.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Loop.Seed)
	}
	if !cfg.Workload.Enabled || cfg.Workload.Ops != 8 {
		t.Errorf("Workload = %+v", cfg.Workload)
	}
	// Untouched sections keep defaults.
	if cfg.Workload.Keys != 64 {
		t.Errorf("Workload.Keys = %d, want default 64", cfg.Workload.Keys)
	}
	if cfg.Status.Listen != "127.0.0.1:9090" {
		t.Errorf("Status.Listen = %q", cfg.Status.Listen)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[loop]
shortwait = "1s"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Errorf("Load() = %v, want unknown key error", err)
	}
}

func TestLoadRejectsBadProbability(t *testing.T) {
	path := writeConfig(t, `
[workload]
clear_probability = 1.5
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted clear_probability > 1")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load() on a missing file should fail")
	}
}
