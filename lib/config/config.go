// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Provider kinds.
const (
	ProviderML     = "ml"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Provider ProviderConfig `koanf:"provider"`
	TMDB     TMDBConfig     `koanf:"tmdb"`
	Import   ImportConfig   `koanf:"import"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	Host              string        `koanf:"host"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ProviderConfig selects and tunes the primary recommender.
type ProviderConfig struct {
	Kind               string        `koanf:"kind" validate:"oneof=ml openai none"`
	URL                string        `koanf:"url" validate:"required_if=Kind ml"`
	Timeout            time.Duration `koanf:"timeout" validate:"gt=0"`
	NumRecommendations int           `koanf:"num_recommendations" validate:"min=0,max=100"`
	OpenAI             OpenAIConfig  `koanf:"openai"`
	Breaker            BreakerConfig `koanf:"breaker"`
}

type OpenAIConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxRequests  uint32        `koanf:"max_requests" validate:"min=1"`
	Interval     time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	MinRequests  uint32        `koanf:"min_requests" validate:"min=1"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
}

type TMDBConfig struct {
	APIKey       string `koanf:"api_key"`
	BaseURL      string `koanf:"base_url" validate:"required,url"`
	ImageBaseURL string `koanf:"image_base_url" validate:"required,url"`
}

// ImportConfig tunes the catalog import.
type ImportConfig struct {
	CSVPath string `koanf:"csv_path"`
	// Interval is the minimum gap between TMDB lookups.
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
	LockDir  string        `koanf:"lock_dir"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Host:              "",
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Path: "cinemate.db",
		},
		Provider: ProviderConfig{
			Kind:    ProviderML,
			URL:     "http://localhost:8000/recommend",
			Timeout: 5 * time.Second,
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		TMDB: TMDBConfig{
			BaseURL:      "https://api.themoviedb.org/3",
			ImageBaseURL: "https://image.tmdb.org/t/p/w500",
		},
		Import: ImportConfig{
			CSVPath:  "movies_metadata.csv",
			Interval: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration. An explicit path wins over CONFIG_PATH and
// the default search paths; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Provider.Kind == ProviderOpenAI && c.Provider.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required when the openai provider is selected")
	}
	return nil
}

func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// sliceConfigPaths may be set from comma-separated environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

var envMappings = map[string]string{
	"port":                "server.port",
	"http_host":           "server.host",
	"request_timeout":     "server.request_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"db_path": "database.path",

	"recommender_provider":  "provider.kind",
	"ml_service_url":        "provider.url",
	"ml_service_timeout":    "provider.timeout",
	"num_recommendations":   "provider.num_recommendations",
	"openai_api_key":        "provider.openai.api_key",
	"openai_model":          "provider.openai.model",
	"openai_base_url":       "provider.openai.base_url",
	"breaker_enabled":       "provider.breaker.enabled",
	"breaker_max_requests":  "provider.breaker.max_requests",
	"breaker_interval":      "provider.breaker.interval",
	"breaker_timeout":       "provider.breaker.timeout",
	"breaker_min_requests":  "provider.breaker.min_requests",
	"breaker_failure_ratio": "provider.breaker.failure_ratio",

	"tmdb_api_key":        "tmdb.api_key",
	"tmdb_base_url":       "tmdb.base_url",
	"tmdb_image_base_url": "tmdb.image_base_url",

	"import_csv_path": "import.csv_path",
	"import_interval": "import.interval",
	"import_lock_dir": "import.lock_dir",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc maps known environment variables onto config keys and
// drops everything else.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
