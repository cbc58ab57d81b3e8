// Package config loads the engine configuration from YAML files layered with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment names a deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the full engine configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`

	Store       Store       `yaml:"store"`
	Versioning  Versioning  `yaml:"versioning"`
	Dedup       Dedup       `yaml:"dedup"`
	Bulk        Bulk        `yaml:"bulk"`
	Events      Events      `yaml:"events"`
	Telemetry   Telemetry   `yaml:"telemetry"`

	// LoadedFrom records which sources contributed, for diagnostics.
	LoadedFrom []string `yaml:"-"`
}

// Store selects and configures the persistence backend.
type Store struct {
	// Driver is "memory" or "dynamodb".
	Driver    string `yaml:"driver" validate:"required,oneof=memory dynamodb"`
	Region    string `yaml:"region"`
	TableName string `yaml:"table_name"`
}

// Versioning configures the version manager.
type Versioning struct {
	MaxRetries       int      `yaml:"max_retries" validate:"min=1,max=20"`
	ComparableFields []string `yaml:"comparable_fields"`
	EdgeAllowList    []string `yaml:"edge_allow_list"`
}

// Dedup configures the window deduplicator.
type Dedup struct {
	WindowMillis int `yaml:"window_millis" validate:"min=0"`
}

// Window returns the configured window as a duration.
func (d Dedup) Window() time.Duration {
	return time.Duration(d.WindowMillis) * time.Millisecond
}

// Bulk configures the batched mutation executor defaults.
type Bulk struct {
	BatchSize      int  `yaml:"batch_size" validate:"min=1"`
	Parallel       bool `yaml:"parallel"`
	MaxConcurrency int  `yaml:"max_concurrency" validate:"min=1"`
}

// Events configures outbound event publishing.
type Events struct {
	// Provider is "eventbridge" or "noop".
	Provider     string `yaml:"provider" validate:"oneof=eventbridge noop"`
	EventBusName string `yaml:"event_bus_name"`
}

// Telemetry configures metrics and tracing.
type Telemetry struct {
	MetricsNamespace string `yaml:"metrics_namespace"`
	TracingEnabled   bool   `yaml:"tracing_enabled"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`
	ServiceName      string `yaml:"service_name"`
}

var validate = validator.New()

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if c.Store.Driver == "dynamodb" {
		if c.Store.Region == "" || c.Store.TableName == "" {
			return fmt.Errorf("dynamodb store requires region and table_name")
		}
	}
	if c.Events.Provider == "eventbridge" && c.Events.EventBusName == "" {
		return fmt.Errorf("eventbridge events require event_bus_name")
	}
	return nil
}

// Default returns a configuration with sensible defaults for the given
// environment. The engine runs without any config file.
func Default(env Environment) *Config {
	return &Config{
		Environment: env,
		Store: Store{
			Driver:    "memory",
			Region:    "us-east-1",
			TableName: "chronograph-" + strings.ToLower(string(env)),
		},
		Versioning: Versioning{
			MaxRetries:    3,
			EdgeAllowList: []string{"LINKED_TO"},
		},
		Dedup: Dedup{
			WindowMillis: 60_000,
		},
		Bulk: Bulk{
			BatchSize:      500,
			Parallel:       false,
			MaxConcurrency: 4,
		},
		Events: Events{
			Provider:     "noop",
			EventBusName: "default",
		},
		Telemetry: Telemetry{
			MetricsNamespace: "chronograph",
			TracingEnabled:   false,
			OTLPEndpoint:     "localhost:4317",
			ServiceName:      "chronograph-backend",
		},
	}
}

// Load builds the configuration from defaults, then base.yaml and
// <environment>.yaml under basePath, then environment variables, lowest to
// highest priority.
func Load(basePath string) (*Config, error) {
	env := environmentFromEnv()
	cfg := Default(env)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "defaults")

	if basePath == "" {
		basePath = "config"
	}
	for _, name := range []string{"base", strings.ToLower(string(env))} {
		path := filepath.Join(basePath, name+".yaml")
		if err := loadFile(path, cfg); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	applyEnvOverrides(cfg)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad loads the configuration and panics on error. Use only in main().
func MustLoad(basePath string) *Config {
	cfg, err := Load(basePath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func environmentFromEnv() Environment {
	switch strings.ToLower(os.Getenv("APP_ENV")) {
	case "production":
		return Production
	case "staging":
		return Staging
	default:
		return Development
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("STORE_DRIVER"); val != "" {
		cfg.Store.Driver = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.Store.Region = val
	}
	if val := os.Getenv("TABLE_NAME"); val != "" {
		cfg.Store.TableName = val
	}
	if val := os.Getenv("EVENT_BUS_NAME"); val != "" {
		cfg.Events.EventBusName = val
		cfg.Events.Provider = "eventbridge"
	}
	if val := os.Getenv("VERSIONING_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Versioning.MaxRetries = n
		}
	}
	if val := os.Getenv("DEDUP_WINDOW_MILLIS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.Dedup.WindowMillis = n
		}
	}
	if val := os.Getenv("OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
		cfg.Telemetry.TracingEnabled = true
	}
}
