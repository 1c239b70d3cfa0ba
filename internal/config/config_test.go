package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultNodeConfig(t *testing.T) {
	cfg := DefaultNodeConfig()
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("logging defaults = %s/%s, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodelet.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9090\"\nworkers: 8\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultNodeConfig()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	// Keys absent from the file keep their defaults.
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultNodeConfig()
	if err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Error("LoadFile on a missing file did not fail")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [oops\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := DefaultNodeConfig()
	if err := LoadFile(path, &cfg); err == nil {
		t.Error("LoadFile on malformed YAML did not fail")
	}
}
