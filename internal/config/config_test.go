package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Root != DefaultRoot() {
		t.Errorf("storage root = %q, want default %q", cfg.Storage.Root, DefaultRoot())
	}
	if !cfg.Storage.Index {
		t.Error("index should default to enabled")
	}
	if cfg.Replay.Speed != 1.0 {
		t.Errorf("replay speed = %v, want 1.0", cfg.Replay.Speed)
	}
	if cfg.Replay.PreserveTiming {
		t.Error("preserve timing should default to off")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  root: /var/lib/recorder
  index: false
redaction:
  extra_terms:
    - ssn
replay:
  speed: 2.0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Root != "/var/lib/recorder" {
		t.Errorf("storage root = %q", cfg.Storage.Root)
	}
	if cfg.Storage.Index {
		t.Error("index should be disabled by the file")
	}
	if len(cfg.Redaction.ExtraTerms) != 1 || cfg.Redaction.ExtraTerms[0] != "ssn" {
		t.Errorf("extra terms = %v", cfg.Redaction.ExtraTerms)
	}
	if cfg.Replay.Speed != 2.0 {
		t.Errorf("replay speed = %v, want 2.0", cfg.Replay.Speed)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  root: /from/file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FLIGHT_STORAGE_ROOT", "/from/env")
	t.Setenv("FLIGHT_REPLAY_SPEED", "2.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Root != "/from/env" {
		t.Errorf("storage root = %q, env must win over file", cfg.Storage.Root)
	}
	if cfg.Replay.Speed != 2.5 {
		t.Errorf("replay speed = %v, want 2.5", cfg.Replay.Speed)
	}
}

func TestLoadEnvCompoundKeys(t *testing.T) {
	t.Setenv("FLIGHT_REPLAY_PRESERVE_TIMING", "true")
	t.Setenv("FLIGHT_REDACTION_EXTRA_TERMS", "ssn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Replay.PreserveTiming {
		t.Error("FLIGHT_REPLAY_PRESERVE_TIMING did not reach replay.preserve_timing")
	}
	if len(cfg.Redaction.ExtraTerms) != 1 || cfg.Redaction.ExtraTerms[0] != "ssn" {
		t.Errorf("FLIGHT_REDACTION_EXTRA_TERMS did not reach redaction.extra_terms: %v", cfg.Redaction.ExtraTerms)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("a missing config file must not be an error: %v", err)
	}
	if cfg.Storage.Root != DefaultRoot() {
		t.Errorf("storage root = %q, want default", cfg.Storage.Root)
	}
}
