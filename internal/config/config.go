// Package config handles loading and validation of clearsky.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ddbstore "github.com/clearsky-systems/clearsky/internal/store/dynamodb"
	mongostore "github.com/clearsky-systems/clearsky/internal/store/mongo"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// ConfigurationError is fatal at startup; the process does not serve with
// an invalid configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func confErr(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// StageConfig tunes one pipeline stage.
type StageConfig struct {
	Schedule      string `yaml:"schedule"`
	Limit         int    `yaml:"limit,omitempty"`
	MaxRetries    int    `yaml:"maxRetries,omitempty"`
	PacingSeconds int    `yaml:"pacingSeconds,omitempty"`
}

// Pacing returns the inter-record delay for external calls.
func (s StageConfig) Pacing() time.Duration {
	return time.Duration(s.PacingSeconds) * time.Second
}

// StagesConfig holds the per-stage sections.
type StagesConfig struct {
	Promote       StageConfig `yaml:"promote"`
	Verify        StageConfig `yaml:"verify"`
	DeriveDaily   StageConfig `yaml:"deriveDaily"`
	DeriveMonthly StageConfig `yaml:"deriveMonthly"`
}

// ServiceConfig points at an external collaborator endpoint.
type ServiceConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey,omitempty"`
}

// Config is the full clearsky.yaml document.
type Config struct {
	Provider  string             `yaml:"provider"`
	DynamoDB  *ddbstore.Config   `yaml:"dynamodb,omitempty"`
	Mongo     *mongostore.Config `yaml:"mongo,omitempty"`
	DeviceDir string             `yaml:"deviceDir"`

	Stages StagesConfig `yaml:"stages"`

	Anchor    ServiceConfig `yaml:"anchor"`
	Narrative struct {
		ServiceConfig `yaml:",inline"`
		Model         string  `yaml:"model,omitempty"`
		Temperature   float64 `yaml:"temperature,omitempty"`
		MaxTokens     int     `yaml:"maxTokens,omitempty"`
	} `yaml:"narrative"`

	Alerts []types.AlertConfig `yaml:"alerts,omitempty"`

	Server struct {
		Addr string `yaml:"addr,omitempty"`
	} `yaml:"server"`

	HashAlgorithm  string            `yaml:"hashAlgorithm,omitempty"`
	LockTTLSeconds int               `yaml:"lockTtlSeconds,omitempty"`
	RetryPolicy    types.RetryPolicy `yaml:"retryPolicy,omitempty"`
}

// Defaults applied after parsing.
const (
	defaultAddr          = ":8080"
	defaultHashAlgorithm = "sha256"
	defaultDeviceDir     = "devices"
)

var defaultStages = StagesConfig{
	Promote:       StageConfig{Schedule: "*/5 * * * *"},
	Verify:        StageConfig{Schedule: "*/10 * * * *", Limit: 50, MaxRetries: 3, PacingSeconds: 1},
	DeriveDaily:   StageConfig{Schedule: "30 2 * * *", Limit: 500, MaxRetries: 3, PacingSeconds: 2},
	DeriveMonthly: StageConfig{Schedule: "0 4 1 * *", MaxRetries: 3},
}

// Load reads and parses clearsky.yaml from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "clearsky.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = defaultHashAlgorithm
	}
	if cfg.DeviceDir == "" {
		cfg.DeviceDir = defaultDeviceDir
	}
	if cfg.Stages.Promote.Schedule == "" {
		cfg.Stages.Promote = defaultStages.Promote
	}
	if cfg.Stages.Verify.Schedule == "" {
		cfg.Stages.Verify = defaultStages.Verify
	}
	if cfg.Stages.DeriveDaily.Schedule == "" {
		cfg.Stages.DeriveDaily = defaultStages.DeriveDaily
	}
	if cfg.Stages.DeriveMonthly.Schedule == "" {
		cfg.Stages.DeriveMonthly = defaultStages.DeriveMonthly
	}
	if cfg.RetryPolicy.MaxAttempts <= 0 {
		cfg.RetryPolicy = types.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 5, BackoffMultiplier: 2.0}
	}
}

// applyEnvOverrides lets deployments keep secrets out of the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLEARSKY_ANCHOR_ENDPOINT"); v != "" {
		cfg.Anchor.Endpoint = v
	}
	if v := os.Getenv("CLEARSKY_ANCHOR_API_KEY"); v != "" {
		cfg.Anchor.APIKey = v
	}
	if v := os.Getenv("CLEARSKY_NARRATIVE_ENDPOINT"); v != "" {
		cfg.Narrative.Endpoint = v
	}
	if v := os.Getenv("CLEARSKY_NARRATIVE_API_KEY"); v != "" {
		cfg.Narrative.APIKey = v
	}
	if v := os.Getenv("CLEARSKY_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Provider {
	case "memory":
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return confErr("dynamodb", "section required when provider is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return confErr("dynamodb.tableName", "required")
		}
	case "mongo":
		if cfg.Mongo == nil {
			return confErr("mongo", "section required when provider is mongo")
		}
		if cfg.Mongo.URI == "" {
			return confErr("mongo.uri", "required")
		}
		if cfg.Mongo.Database == "" {
			return confErr("mongo.database", "required")
		}
	case "":
		return confErr("provider", "required (memory|dynamodb|mongo)")
	default:
		return confErr("provider", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}

	// The proof format is pinned to SHA-256; any other value would silently
	// break verifiability of previously pinned payloads.
	if cfg.HashAlgorithm != "sha256" {
		return confErr("hashAlgorithm", fmt.Sprintf("must be \"sha256\", got %q", cfg.HashAlgorithm))
	}

	if cfg.Anchor.Endpoint == "" {
		return confErr("anchor.endpoint", "required")
	}
	if cfg.Narrative.Endpoint == "" {
		return confErr("narrative.endpoint", "required")
	}

	for _, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertConsole:
		case types.AlertWebhook:
			if a.URL == "" {
				return confErr("alerts", "webhook sink requires url")
			}
		case types.AlertFile:
			if a.Path == "" {
				return confErr("alerts", "file sink requires path")
			}
		default:
			return confErr("alerts", fmt.Sprintf("unknown sink type %q", a.Type))
		}
	}
	return nil
}

// LockTTL returns the scheduler lock TTL.
func (c *Config) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}
