// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything the serve and scan commands need.
type Config struct {
	// Provider selects the vision backend: gemini, openai or ollama.
	Provider string `yaml:"provider"`
	// Model overrides the provider's default model.
	Model string `yaml:"model"`
	// AnalysisTimeout bounds one analysis round trip.
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`
	// FocusDwell is how long an advisory focus highlight lasts.
	FocusDwell time.Duration `yaml:"focus_dwell"`
	// SimFrame is the image served by the simulated sensor.
	SimFrame string `yaml:"sim_frame"`

	Firestore FirestoreConfig `yaml:"firestore"`
	COS       COSConfig       `yaml:"cos"`
}

// FirestoreConfig selects the ledger backend. An empty project id selects
// the in-memory ledger.
type FirestoreConfig struct {
	ProjectID string `yaml:"project_id"`
}

// COSConfig selects the object storage backend. An empty bucket selects
// the in-memory store.
type COSConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	SecretID     string `yaml:"secret_id"`
	SecretKey    string `yaml:"secret_key"`
	PublicDomain string `yaml:"public_domain"`
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist) and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Config{
		Provider:        "gemini",
		AnalysisTimeout: 45 * time.Second,
		FocusDwell:      time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; env + defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Provider, "ANALYSIS_PROVIDER")
	setString(&cfg.Model, "ANALYSIS_MODEL")
	setString(&cfg.SimFrame, "SIM_FRAME")
	setString(&cfg.Firestore.ProjectID, "FIRESTORE_PROJECT_ID")
	setString(&cfg.COS.Bucket, "COS_BUCKET")
	setString(&cfg.COS.Region, "COS_REGION")
	setString(&cfg.COS.SecretID, "COS_SECRET_ID")
	setString(&cfg.COS.SecretKey, "COS_SECRET_KEY")
	setString(&cfg.COS.PublicDomain, "COS_PUBLIC_DOMAIN")

	if v := os.Getenv("ANALYSIS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AnalysisTimeout = d
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
