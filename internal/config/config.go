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
)

// Config holds process-level settings loaded from the environment. Gateway
// credentials are not part of it; they are resolved per request by EnvResolver.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string

	UpstreamTimeout     time.Duration
	BreakerEnabled      bool
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	OrderPrefix         string

	EventsForwardURL     string
	EventsForwardSecret  string
	EventsForwardTopics  []string
	EventsForwardTimeout time.Duration

	InitiateRateMax    int
	InitiateRateWindow time.Duration
	BodyLimitBytes     int64
	SecurityHeaders    bool
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	k, err := loadEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "fills"),
		MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:   parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		PprofEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),

		UpstreamTimeout:     parseDuration(k.String("PHONEPE_HTTP_TIMEOUT"), "30s"),
		BreakerEnabled:      parseBoolDefault(k.String("PHONEPE_BREAKER_ENABLED"), true),
		BreakerMinRequests:  parseInt(k.String("PHONEPE_BREAKER_MIN_REQUESTS"), 20),
		BreakerFailureRatio: parseFloat(k.String("PHONEPE_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("PHONEPE_BREAKER_OPEN_FOR"), "30s"),
		OrderPrefix:         valueOrDefault(k.String("PHONEPE_ORDER_PREFIX"), "ORDER"),

		EventsForwardURL:     strings.TrimSpace(k.String("PAYMENT_EVENTS_FORWARD_URL")),
		EventsForwardSecret:  strings.TrimSpace(k.String("PAYMENT_EVENTS_FORWARD_SECRET")),
		EventsForwardTopics:  splitAndTrim(k.String("PAYMENT_EVENTS_FORWARD_TOPICS")),
		EventsForwardTimeout: parseDuration(k.String("PAYMENT_EVENTS_FORWARD_TIMEOUT"), "5s"),

		InitiateRateMax:    parseInt(k.String("RATE_LIMIT_INITIATE_MAX"), 30),
		InitiateRateWindow: parseDuration(k.String("RATE_LIMIT_INITIATE_WINDOW"), "1m"),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 64<<10)),
		SecurityHeaders:    parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		ShutdownTimeout:    parseDuration(k.String("HTTP_SHUTDOWN_TIMEOUT"), "10s"),
	}

	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		return nil, fmt.Errorf("PHONEPE_BREAKER_FAILURE_RATIO must be within (0,1], got %v", cfg.BreakerFailureRatio)
	}
	if cfg.EventsForwardURL != "" && cfg.EventsForwardSecret == "" {
		return nil, errors.New("PAYMENT_EVENTS_FORWARD_SECRET is required when PAYMENT_EVENTS_FORWARD_URL is set")
	}
	if cfg.InitiateRateMax < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_INITIATE_MAX must not be negative, got %d", cfg.InitiateRateMax)
	}

	return cfg, nil
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

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func loadEnv() (*koanf.Koanf, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
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

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
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
