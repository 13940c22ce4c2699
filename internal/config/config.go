// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	APIKey          string // Optional bearer token required on /v1 and /mcp.

	// Storage settings.
	Store       string // "sqlite" or "postgres"
	SQLitePath  string
	DatabaseURL string

	// Text generation settings.
	LLMProvider       string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	Temperature       float64
	OllamaURL         string
	OllamaModel       string
	GenerationTimeout time.Duration

	// Proactive engine settings.
	ProactiveEnabled  bool
	ProactiveInterval time.Duration
	RulesFile         string
	CooldownBackend   string // "file" or "store"
	CooldownFile      string
	Timezone          string
	PersonaName       string
	PendingCapacity   int

	// Web Push settings.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTitle       string

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint       string
	OTELInsecure       bool
	OTELSampleRatio    float64
	OTELMetricInterval time.Duration
	ServiceName        string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		APIKey:          envStr("XIAOBAN_API_KEY", ""),
		Store:           envStr("XIAOBAN_STORE", "sqlite"),
		SQLitePath:      envStr("XIAOBAN_SQLITE_PATH", "data/conversations.db"),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LLMProvider:     envStr("XIAOBAN_LLM_PROVIDER", "auto"),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   envStr("OPENAI_BASE_URL", ""),
		OpenAIModel:     envStr("XIAOBAN_OPENAI_MODEL", "gpt-4o-mini"),
		OllamaURL:       envStr("OLLAMA_URL", ""),
		OllamaModel:     envStr("OLLAMA_MODEL", "qwen2.5:7b"),
		RulesFile:       envStr("XIAOBAN_RULES_FILE", ""),
		CooldownBackend: envStr("XIAOBAN_COOLDOWN_BACKEND", "file"),
		CooldownFile:    envStr("XIAOBAN_COOLDOWN_FILE", "data/trigger_history.json"),
		Timezone:        envStr("XIAOBAN_TIMEZONE", ""),
		PersonaName:     envStr("XIAOBAN_PERSONA_NAME", "小伴"),
		VAPIDPublicKey:  envStr("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: envStr("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    envStr("VAPID_SUBJECT", "mailto:admin@localhost"),
		PushTitle:       envStr("XIAOBAN_PUSH_TITLE", "AI 陪伴助手"),
		OTELEndpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     envStr("OTEL_SERVICE_NAME", "xiaoban"),
		LogLevel:        envStr("XIAOBAN_LOG_LEVEL", "info"),
	}

	var err error
	cfg.Port, err = envInt("XIAOBAN_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("XIAOBAN_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("XIAOBAN_WRITE_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.ShutdownTimeout, err = envDuration("XIAOBAN_SHUTDOWN_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.Temperature, err = envFloat("XIAOBAN_TEMPERATURE", 0.8)
	collect(err)
	cfg.GenerationTimeout, err = envDuration("XIAOBAN_GENERATION_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.ProactiveEnabled, err = envBool("XIAOBAN_PROACTIVE_ENABLED", true)
	collect(err)
	cfg.ProactiveInterval, err = envDuration("XIAOBAN_PROACTIVE_INTERVAL", 5*time.Minute)
	collect(err)
	cfg.PendingCapacity, err = envInt("XIAOBAN_PENDING_CAPACITY", 64)
	collect(err)
	cfg.RateLimitEnabled, err = envBool("XIAOBAN_RATE_LIMIT_ENABLED", true)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("XIAOBAN_RATE_LIMIT_RPS", 10)
	collect(err)
	cfg.RateLimitBurst, err = envInt("XIAOBAN_RATE_LIMIT_BURST", 20)
	collect(err)
	cfg.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)
	cfg.OTELSampleRatio, err = envFloat("XIAOBAN_OTEL_SAMPLE_RATIO", 1)
	collect(err)
	cfg.OTELMetricInterval, err = envDuration("XIAOBAN_OTEL_METRIC_INTERVAL", 15*time.Second)
	collect(err)
	maxBody, err := envInt("XIAOBAN_MAX_REQUEST_BODY_BYTES", 1*1024*1024) // 1 MB default
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("XIAOBAN_SQLITE_PATH is required when XIAOBAN_STORE=sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when XIAOBAN_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("XIAOBAN_STORE must be sqlite or postgres (got %q)", c.Store))
	}

	switch c.LLMProvider {
	case "auto", "noop", "ollama":
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when XIAOBAN_LLM_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("XIAOBAN_LLM_PROVIDER must be auto, openai, ollama, or noop (got %q)", c.LLMProvider))
	}

	switch c.CooldownBackend {
	case "store":
	case "file":
		if c.CooldownFile == "" {
			errs = append(errs, errors.New("XIAOBAN_COOLDOWN_FILE is required when XIAOBAN_COOLDOWN_BACKEND=file"))
		}
	default:
		errs = append(errs, fmt.Errorf("XIAOBAN_COOLDOWN_BACKEND must be file or store (got %q)", c.CooldownBackend))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("XIAOBAN_PORT must be in 1..65535 (got %d)", c.Port))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("XIAOBAN_TEMPERATURE must be in [0,2] (got %v)", c.Temperature))
	}
	if c.ProactiveInterval <= 0 {
		errs = append(errs, errors.New("XIAOBAN_PROACTIVE_INTERVAL must be positive"))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, errors.New("XIAOBAN_GENERATION_TIMEOUT must be positive"))
	}
	if c.PendingCapacity <= 0 {
		errs = append(errs, errors.New("XIAOBAN_PENDING_CAPACITY must be positive"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("XIAOBAN_RATE_LIMIT_RPS and XIAOBAN_RATE_LIMIT_BURST must be positive"))
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("XIAOBAN_OTEL_SAMPLE_RATIO must be in [0,1] (got %v)", c.OTELSampleRatio))
	}
	if c.OTELEndpoint != "" && c.OTELMetricInterval <= 0 {
		errs = append(errs, errors.New("XIAOBAN_OTEL_METRIC_INTERVAL must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("XIAOBAN_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves Timezone. Empty means the process's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("XIAOBAN_TIMEZONE=%q is not a known time zone", c.Timezone)
	}
	return loc, nil
}

// PushEnabled reports whether VAPID keys are configured.
func (c Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func envStr(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
