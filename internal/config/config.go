package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. Nested keys use a double underscore:
// FIXLOOP_SERVER__ADDR -> server.addr.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("FIXLOOP_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "FIXLOOP_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.SeedPath == "" {
		return fmt.Errorf("storage.seed_path is required")
	}

	if !validProviders[c.Provider.Embedding] {
		return fmt.Errorf("invalid provider.embedding %q: must be openai or ollama", c.Provider.Embedding)
	}

	if c.Diagnosis.Alpha < 0 || c.Diagnosis.Alpha > 1 {
		return fmt.Errorf("diagnosis.alpha must be in [0,1]")
	}
	if c.Diagnosis.ConfidenceThreshold <= 0 || c.Diagnosis.ConfidenceThreshold > 1 {
		return fmt.Errorf("diagnosis.confidence_threshold must be in (0,1]")
	}
	if c.Diagnosis.MaxQuestions < 1 {
		return fmt.Errorf("diagnosis.max_questions must be at least 1")
	}

	if c.Retrieval.VectorWeight < 0 || c.Retrieval.VectorWeight > 1 {
		return fmt.Errorf("retrieval.vector_weight must be in [0,1]")
	}
	if c.Retrieval.TutorialLimit < 1 {
		return fmt.Errorf("retrieval.tutorial_limit must be at least 1")
	}

	if c.Learning.N0 <= 0 {
		return fmt.Errorf("learning.n0 must be positive")
	}
	if c.Learning.MinSupport < 1 {
		return fmt.Errorf("learning.min_support must be at least 1")
	}
	if c.Learning.MinSuccessRate < 0 || c.Learning.MinSuccessRate > 1 {
		return fmt.Errorf("learning.min_success_rate must be in [0,1]")
	}
	if c.Learning.MinConfidence < 0 || c.Learning.MinConfidence > 1 {
		return fmt.Errorf("learning.min_confidence must be in [0,1]")
	}
	if c.Learning.AutoApprove && c.Learning.AutoApproveConfidence <= c.Learning.MinConfidence {
		return fmt.Errorf("learning.auto_approve_confidence must exceed learning.min_confidence")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for the
// API key of the given provider. Ollama needs none.
func APIKeyEnvVar(provider ProviderType) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
