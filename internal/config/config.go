// Package config loads the flight recorder configuration from an optional
// YAML file and FLIGHT_-prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Redaction RedactionConfig `koanf:"redaction"`
	Replay    ReplayConfig    `koanf:"replay"`
}

type StorageConfig struct {
	// Root is the directory holding every storage namespace
	Root string `koanf:"root"`

	// Index enables the sqlite record index under indexes/
	Index bool `koanf:"index"`
}

type RedactionConfig struct {
	// ExtraTerms extends the built-in sensitive-field terms
	ExtraTerms []string `koanf:"extra_terms"`
}

type ReplayConfig struct {
	// Speed is the default playback speed multiplier
	Speed float64 `koanf:"speed"`

	// PreserveTiming replays recorded inter-event gaps by default
	PreserveTiming bool `koanf:"preserve_timing"`
}

// Load reads configuration from path (skipped when empty or missing) and
// the environment, with defaults for everything else.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("FLIGHT_", ".", envKeyMapper), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("storage.root") {
		k.Set("storage.root", DefaultRoot())
	}
	if !k.Exists("storage.index") {
		k.Set("storage.index", true)
	}
	if !k.Exists("replay.speed") {
		k.Set("replay.speed", 1.0)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// compoundKeys are config keys whose names contain an underscore; the env
// mapper must not split those into nested keys.
var compoundKeys = map[string]string{
	"redaction.extra.terms":  "redaction.extra_terms",
	"replay.preserve.timing": "replay.preserve_timing",
}

// envKeyMapper turns FLIGHT_STORAGE_ROOT into storage.root and
// FLIGHT_REDACTION_EXTRA_TERMS into redaction.extra_terms.
func envKeyMapper(s string) string {
	key := strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FLIGHT_")), "_", ".", -1)
	if fixed, ok := compoundKeys[key]; ok {
		return fixed
	}
	return key
}

// DefaultRoot is the per-user application-data directory used when no
// storage root is configured.
func DefaultRoot() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "./flight-recorder"
	}
	return filepath.Join(base, "polyglot-flight-recorder")
}
