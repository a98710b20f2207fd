package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/engineroom-pricing/internal/notify"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	WebhookURL              string
	WebhookSecret           string
	WebhookTimeout          time.Duration
	WebhookAllowInsecureTLS bool
	BreakerMinRequests      int
	BreakerFailureRatio     float64
	BreakerOpenFor          time.Duration

	MinClients       int
	MaxClients       int
	StatusClearAfter time.Duration

	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool

	SubmitRateLimitMax    int
	SubmitRateLimitWindow time.Duration
	IdempotencyTTL        time.Duration

	BodyLimitBytes         int64
	SecurityHeadersEnabled bool
	CSRFEnabled            bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	appEnv := valueOrDefault(k.String("APP_ENV"), "development")
	cfg := &Config{
		AppEnv:             appEnv,
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		WebhookURL:              strings.TrimSpace(k.String("WEBHOOK_URL")),
		WebhookSecret:           k.String("WEBHOOK_SECRET"),
		WebhookTimeout:          parseDuration(k.String("WEBHOOK_TIMEOUT"), "30s"),
		WebhookAllowInsecureTLS: parseBool(k.String("WEBHOOK_ALLOW_INSECURE_TLS"), false),
		BreakerMinRequests:      parseInt(k.String("WEBHOOK_BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio:     parseFloat(k.String("WEBHOOK_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:          parseDuration(k.String("WEBHOOK_BREAKER_OPEN_FOR"), "30s"),

		MinClients:       parseInt(k.String("QUOTE_MIN_CLIENTS"), 1),
		MaxClients:       parseInt(k.String("QUOTE_MAX_CLIENTS"), 50),
		StatusClearAfter: parseDuration(k.String("STATUS_CLEAR_AFTER"), "3s"),

		SessionTTL:          parseDuration(k.String("SESSION_TTL"), "24h"),
		SessionCookieName:   valueOrDefault(k.String("SESSION_COOKIE_NAME"), "quote_session"),
		SessionCookieSecure: parseBool(k.String("SESSION_COOKIE_SECURE"), appEnv == "production"),

		SubmitRateLimitMax:    parseInt(k.String("SUBMIT_RATE_LIMIT_MAX"), 10),
		SubmitRateLimitWindow: parseDuration(k.String("SUBMIT_RATE_LIMIT_WINDOW"), "1m"),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		BodyLimitBytes:         int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeadersEnabled: parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		CSRFEnabled:            parseBool(k.String("CSRF_ENABLED"), false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.WebhookURL != "" {
		if err := notify.ValidateURL(c.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("WEBHOOK_URL: %w", err))
		}
	}
	if c.MinClients < 1 {
		errs = append(errs, errors.New("QUOTE_MIN_CLIENTS must be at least 1"))
	}
	if c.MaxClients < c.MinClients {
		errs = append(errs, errors.New("QUOTE_MAX_CLIENTS must not be below QUOTE_MIN_CLIENTS"))
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		errs = append(errs, errors.New("WEBHOOK_BREAKER_FAILURE_RATIO must be within (0, 1]"))
	}
	if c.WebhookTimeout <= 0 {
		errs = append(errs, errors.New("WEBHOOK_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// WebhookConfigured reports whether quote submission has an endpoint.
func (c *Config) WebhookConfigured() bool {
	return c.WebhookURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
