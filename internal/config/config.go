// Package config loads and validates environment-based configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	DBDSN string `env:"DB_DSN"`
	Port  int    `env:"PORT" envDefault:"8080"`

	LogLevel zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`

	// GoogleAPIKey is the last-resort Maps key when no override is stored.
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`

	// MapsKeyURL, when set, makes the provider loader fetch its key from
	// another instance of the key endpoint instead of resolving in-process.
	MapsKeyURL   string `env:"MAPS_KEY_URL"`
	MapsKeyToken string `env:"MAPS_KEY_TOKEN"`
	MapsRegion   string `env:"MAPS_REGION"`

	PlacesCountry       string        `env:"PLACES_COUNTRY" envDefault:"br"`
	RoutesLanguage      string        `env:"ROUTES_LANGUAGE" envDefault:"pt-BR"`
	ProviderLoadTimeout time.Duration `env:"PROVIDER_LOAD_TIMEOUT" envDefault:"15s"`

	// JWTSecret signs access tokens. Auth endpoints fail if unset.
	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`

	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	PositionIdleTimeout time.Duration `env:"POSITION_IDLE_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from the process environment and validates it.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, &ConfigError{Field: "environment", Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate re-checks required fields on an already-constructed Config.
func (c *Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, &ConfigError{Field: "DB_DSN", Message: "required but not set"})
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "PORT", Message: "must be between 1 and 65535"})
	}
	if c.MapsKeyURL != "" {
		if u, err := url.Parse(c.MapsKeyURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ConfigError{Field: "MAPS_KEY_URL", Message: "must be an absolute URL"})
		}
	}
	for name, d := range map[string]time.Duration{
		"PROVIDER_LOAD_TIMEOUT": c.ProviderLoadTimeout,
		"ACCESS_TOKEN_TTL":      c.AccessTokenTTL,
		"REQUEST_TIMEOUT":       c.RequestTimeout,
	} {
		if d <= 0 {
			errs = append(errs, &ConfigError{Field: name, Message: "must be positive"})
		}
	}
	return errors.Join(errs...)
}
