package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, expands environment variable
// references, overlays it on the defaults, resolves credential fallbacks
// from the environment, and validates the result.
//
// An empty path or a missing file yields the defaults (still validated),
// so the service can run from environment variables alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Fall through to env-only configuration.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decodeStrict(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict decodes a single YAML document, rejecting unknown fields
// and trailing documents. Environment references are expanded first.
func decodeStrict(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("expected single YAML document")
	}
	return nil
}

// applyEnv resolves environment-first settings the file did not provide.
func applyEnv(cfg *Config) {
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if v := os.Getenv("DEEPSEEK_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("DEEPSEEK_MODEL"); v != "" {
		cfg.AI.Model = v
	}
}
