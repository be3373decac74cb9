// Package config loads runtime configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile           = ".env"
	defaultHTTPAddr          = ":8080"
	defaultEnvironment       = "development"
	defaultScoringBaseURL    = "http://localhost:8000"
	defaultScoringTimeout    = 30 * time.Second
	defaultFormIdleTimeout   = 30 * time.Minute
	defaultFormSweepInterval = time.Minute
	defaultTokenLifetime     = 12 * time.Hour
	defaultLocale            = "en"
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 60 * time.Second

	minTokenKeyLength = 32
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Scoring     ScoringConfig
	Forms       FormConfig
	Security    SecurityConfig
	I18n        I18nConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ScoringConfig points at the lead scoring service.
type ScoringConfig struct {
	BaseURL string
	Timeout time.Duration
}

// FormConfig controls the lifetime of mounted forms.
type FormConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// SecurityConfig groups form token and CSRF settings.
type SecurityConfig struct {
	// TokenHashKey signs form tokens. Empty means a random key per process.
	TokenHashKey     string
	TokenLifetime    time.Duration
	CSRFCookieSecure bool
}

// I18nConfig selects the fallback locale.
type I18nConfig struct {
	DefaultLocale string
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides. An empty
// path disables the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration by combining defaults, .env overrides,
// environment variables and the explicit map, in increasing precedence.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	durations := func(key, field string, fallback time.Duration) time.Duration {
		d, ok := durationWithDefault(lookup, key, fallback)
		if !ok {
			invalid = append(invalid, field)
		}
		return d
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "LEADSCORE_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Addr:         stringWithDefault(lookup, "LEADSCORE_HTTP_ADDR", defaultHTTPAddr),
			ReadTimeout:  durations("LEADSCORE_READ_TIMEOUT", "Server.ReadTimeout", defaultReadTimeout),
			WriteTimeout: durations("LEADSCORE_WRITE_TIMEOUT", "Server.WriteTimeout", defaultWriteTimeout),
			IdleTimeout:  durations("LEADSCORE_IDLE_TIMEOUT", "Server.IdleTimeout", defaultIdleTimeout),
		},
		Scoring: ScoringConfig{
			BaseURL: stringWithDefault(lookup, "LEADSCORE_SCORING_BASE_URL", defaultScoringBaseURL),
			Timeout: durations("LEADSCORE_SCORING_TIMEOUT", "Scoring.Timeout", defaultScoringTimeout),
		},
		Forms: FormConfig{
			IdleTimeout:   durations("LEADSCORE_FORM_IDLE_TIMEOUT", "Forms.IdleTimeout", defaultFormIdleTimeout),
			SweepInterval: durations("LEADSCORE_FORM_SWEEP_INTERVAL", "Forms.SweepInterval", defaultFormSweepInterval),
		},
		Security: SecurityConfig{
			TokenHashKey:     stringWithDefault(lookup, "LEADSCORE_TOKEN_HASH_KEY", ""),
			TokenLifetime:    durations("LEADSCORE_TOKEN_LIFETIME", "Security.TokenLifetime", defaultTokenLifetime),
			CSRFCookieSecure: boolWithDefault(lookup, "LEADSCORE_CSRF_COOKIE_SECURE", false),
		},
		I18n: I18nConfig{
			DefaultLocale: strings.ToLower(stringWithDefault(lookup, "LEADSCORE_DEFAULT_LOCALE", defaultLocale)),
		},
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	switch cfg.Environment {
	case "development", "staging", "production", "test":
	default:
		missing = append(missing, "Environment")
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		missing = append(missing, "Server.Addr")
	}
	if u, err := url.Parse(cfg.Scoring.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		missing = append(missing, "Scoring.BaseURL")
	}
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"Server.ReadTimeout", cfg.Server.ReadTimeout},
		{"Server.WriteTimeout", cfg.Server.WriteTimeout},
		{"Server.IdleTimeout", cfg.Server.IdleTimeout},
		{"Scoring.Timeout", cfg.Scoring.Timeout},
		{"Forms.IdleTimeout", cfg.Forms.IdleTimeout},
		{"Forms.SweepInterval", cfg.Forms.SweepInterval},
		{"Security.TokenLifetime", cfg.Security.TokenLifetime},
	}
	for _, p := range positive {
		if p.value <= 0 && !contains(missing, p.name) {
			missing = append(missing, p.name)
		}
	}
	// The response carrying the settled result must be written before the
	// server gives up on the connection.
	if cfg.Scoring.Timeout >= cfg.Server.WriteTimeout && !contains(missing, "Scoring.Timeout") {
		missing = append(missing, "Scoring.Timeout")
	}
	if key := cfg.Security.TokenHashKey; key != "" && len(key) < minTokenKeyLength {
		missing = append(missing, "Security.TokenHashKey")
	}
	if cfg.IsProduction() && cfg.Security.TokenHashKey == "" {
		missing = append(missing, "Security.TokenHashKey")
	}
	if strings.TrimSpace(cfg.I18n.DefaultLocale) == "" {
		missing = append(missing, "I18n.DefaultLocale")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// durationWithDefault reports false when a value is present but unparsable.
func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, bool) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, true
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback, false
	}
	return d, true
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return fallback
}
