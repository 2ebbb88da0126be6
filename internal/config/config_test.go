package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsInvalidWithoutPoolAndUser(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Errorf("Default().Validate() should fail without a pool/username")
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Pool = "pool.example:9998"
	cfg.Username = "RAddress.worker1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsNonPositiveThreads(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Pool = "pool.example:9998"
	cfg.Username = "RAddress.worker1"
	cfg.Threads = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate() should reject zero threads")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, "info")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	data, _ := json.Marshal(map[string]interface{}{
		"pool":     "pool.example:9998",
		"username": "RAddress.worker1",
		"threads":  8,
	})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pool != "pool.example:9998" {
		t.Errorf("Pool = %q, want pool.example:9998", cfg.Pool)
	}
	if cfg.Threads != 8 {
		t.Errorf("Threads = %d, want 8", cfg.Threads)
	}
	if cfg.Password != "x" {
		t.Errorf("Password = %q, want default %q", cfg.Password, "x")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("Load should reject malformed JSON")
	}
}
