// Copyright 2025 Certen Protocol

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.BlockInterval != 10*time.Second {
		t.Fatalf("BlockInterval = %v, want 10s", cfg.BlockInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadYamlOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /srv/rollup\nrpc_url: 0.0.0.0:9999\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/srv/rollup" {
		t.Fatalf("DataDir = %q, want /srv/rollup", cfg.DataDir)
	}
	if cfg.RPCURL != "0.0.0.0:9999" {
		t.Fatalf("RPCURL = %q, want 0.0.0.0:9999", cfg.RPCURL)
	}
}

func TestLoadEnvOverridesYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /srv/rollup\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("MIDEN_NODE_DATA_DIRECTORY", "/env/override")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/env/override" {
		t.Fatalf("DataDir = %q, want /env/override", cfg.DataDir)
	}
}

func TestValidateRejectsMissingDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty data dir")
	}
}
