// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "TSHOP_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig             `yaml:"server"        envPrefix:"SERVER_"`
	Definitions   DefinitionsConfig        `yaml:"definitions"   envPrefix:"DEFINITIONS_"`
	Specs         SpecsConfig              `yaml:"specs"`
	Services      map[string]ServiceConfig `yaml:"services"`
	UI            UIConfig                 `yaml:"ui"            envPrefix:"UI_"`
	Sessions      SessionsConfig           `yaml:"sessions"      envPrefix:"SESSIONS_"`
	Observability ObservabilityConfig      `yaml:"observability" envPrefix:"OBSERVABILITY_"`

	// BackendURL is the base URL used by every service that does not set its
	// own base_url.
	BackendURL string `yaml:"backend_url" env:"BACKEND_URL"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"             env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"WRITE_TIMEOUT"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"  env:"HANDLER_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// DefinitionsConfig describes where to find screen definition YAML files.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories" env:"DIRS" envSeparator:","`
}

// SpecsConfig describes where to find the backend's OpenAPI documents. When
// no sources are configured the REST contract is not checked at startup.
type SpecsConfig struct {
	Directory string       `yaml:"directory"`
	Sources   []SpecSource `yaml:"sources"`
}

// SpecSource maps a service ID to an OpenAPI spec file.
type SpecSource struct {
	ServiceID string `yaml:"service_id"`
	SpecFile  string `yaml:"spec_file"`
}

// ServiceConfig describes a backend service.
type ServiceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	AcceptLanguage string               `yaml:"accept_language"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings per service.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`
}

// RetryConfig describes retry settings per service.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	IdempotentOnly    bool          `yaml:"idempotent_only"`
}

// UIConfig describes screen behaviour.
type UIConfig struct {
	// Locale drives thousands grouping of numeric fields.
	Locale string `yaml:"locale" env:"LOCALE"`
	// SettleMax bounds a random pause before a save releases the
	// screen. Zero disables it.
	SettleMax time.Duration `yaml:"settle_max" env:"SETTLE_MAX"`
	// MinBusy is the minimum time a flow keeps the screen busy.
	MinBusy time.Duration `yaml:"min_busy" env:"MIN_BUSY"`
}

// SessionsConfig describes screen session lifetime.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"            env:"TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	MaxSessions   int           `yaml:"max_sessions"   env:"MAX"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level" env:"LOG_LEVEL"`
	Tracing  TracingConfig `yaml:"tracing"   envPrefix:"TRACING_"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"       env:"ENABLED"`
	Exporter     string  `yaml:"exporter"      env:"EXPORTER"`
	Endpoint     string  `yaml:"endpoint"      env:"ENDPOINT"`
	SamplingRate float64 `yaml:"sampling_rate" env:"SAMPLING_RATE"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultServiceID is the service every shipped screen definition binds to.
const DefaultServiceID = "tshop"

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Accept-Language", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"definitions"},
		},
		BackendURL: "http://localhost:8080/api/v1",
		Services: map[string]ServiceConfig{
			DefaultServiceID: {
				Timeout:        10 * time.Second,
				AcceptLanguage: "vi",
				Retry: RetryConfig{
					MaxAttempts:    1,
					IdempotentOnly: true,
				},
			},
		},
		UI: UIConfig{
			Locale: "vi",
		},
		Sessions: SessionsConfig{
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
			MaxSessions:   1000,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.resolveServices()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if len(c.Definitions.Directories) == 0 {
		errs = append(errs, "definitions.directories must not be empty")
	}
	if len(c.Services) == 0 {
		errs = append(errs, "at least one service is required")
	}
	for id, svc := range c.Services {
		base := svc.BaseURL
		if base == "" {
			base = c.BackendURL
		}
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("services.%s.base_url must be an absolute URL", id))
		}
	}
	if c.UI.SettleMax < 0 || c.UI.MinBusy < 0 {
		errs = append(errs, "ui.settle_max and ui.min_busy must not be negative")
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, "sessions.ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// resolveServices fills per-service defaults from the top-level settings.
func (c *Config) resolveServices() {
	for id, svc := range c.Services {
		if svc.BaseURL == "" {
			svc.BaseURL = c.BackendURL
		}
		svc.BaseURL = strings.TrimRight(svc.BaseURL, "/")
		if svc.AcceptLanguage == "" {
			svc.AcceptLanguage = "vi"
		}
		c.Services[id] = svc
	}
}

// applyEnvOverrides reads TSHOP_* environment variables and overrides config
// values. Only fields tagged with env are supported.
func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}
