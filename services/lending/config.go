package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	telemetry "lendcore/observability/otel"
)

// Config captures the runtime settings for lendingd.
type Config struct {
	Listen      string              `yaml:"listen"`
	Environment string              `yaml:"environment"`
	DataDir     string              `yaml:"data_dir"`
	InMemory    bool                `yaml:"in_memory"`
	MarketFile  string              `yaml:"market_file"`
	Log         LogConfig           `yaml:"log"`
	Telemetry   TelemetryConfig     `yaml:"telemetry"`
	Auth        AuthConfig          `yaml:"auth"`
	Roles       map[string][]string `yaml:"roles"`
	RateLimit   RateLimitConfig     `yaml:"rate_limit"`

	// Bootstrap is the configurator identity used to apply the market file at
	// startup. It is granted every role for that step only.
	Bootstrap       string        `yaml:"bootstrap_admin"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Metrics     bool              `yaml:"metrics"`
	Traces      bool              `yaml:"traces"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

type AuthConfig struct {
	Disabled   bool          `yaml:"disabled"`
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

const (
	envListen      = "LENDINGD_LISTEN"
	envEnvironment = "LENDINGD_ENV"
	envDataDir     = "LENDINGD_DATA_DIR"
	envMarketFile  = "LENDINGD_MARKET_FILE"
	envLogLevel    = "LENDINGD_LOG_LEVEL"
	envAuthSecret  = "LENDINGD_AUTH_HMAC_SECRET"
	envAuthOff     = "LENDINGD_AUTH_DISABLED"
	envRatePerMin  = "LENDINGD_RATE_PER_MIN"
	envOTLPEnd     = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPInsec   = "OTEL_EXPORTER_OTLP_INSECURE"
	envOTLPHeaders = "OTEL_EXPORTER_OTLP_HEADERS"

	defaultListen          = "0.0.0.0:9444"
	defaultDataDir         = "./data/lendingd"
	defaultMarketFile      = "./config/market.toml"
	defaultRatePerMin      = 600
	defaultShutdownTimeout = 5 * time.Second
)

func defaultConfig() Config {
	return Config{
		Listen:          defaultListen,
		DataDir:         defaultDataDir,
		MarketFile:      defaultMarketFile,
		Log:             LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		RateLimit:       RateLimitConfig{RequestsPerMinute: defaultRatePerMin, Burst: 20},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// loadConfig reads the YAML file at path, when given, over the defaults and
// then applies environment overrides.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path = strings.TrimSpace(path); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.Listen = stringFromEnv(envListen, cfg.Listen)
	cfg.Environment = stringFromEnv(envEnvironment, cfg.Environment)
	cfg.DataDir = stringFromEnv(envDataDir, cfg.DataDir)
	cfg.MarketFile = stringFromEnv(envMarketFile, cfg.MarketFile)
	cfg.Log.Level = stringFromEnv(envLogLevel, cfg.Log.Level)
	cfg.Auth.HMACSecret = stringFromEnv(envAuthSecret, cfg.Auth.HMACSecret)
	cfg.Auth.Disabled = boolFromEnv(envAuthOff, cfg.Auth.Disabled)
	cfg.RateLimit.RequestsPerMinute = floatFromEnv(envRatePerMin, cfg.RateLimit.RequestsPerMinute)
	cfg.Telemetry.Endpoint = stringFromEnv(envOTLPEnd, cfg.Telemetry.Endpoint)
	cfg.Telemetry.Insecure = boolFromEnv(envOTLPInsec, cfg.Telemetry.Insecure)
	if raw := strings.TrimSpace(os.Getenv(envOTLPHeaders)); raw != "" {
		if cfg.Telemetry.Headers == nil {
			cfg.Telemetry.Headers = map[string]string{}
		}
		for k, v := range telemetry.ParseHeaders(raw) {
			cfg.Telemetry.Headers[k] = v
		}
	}
}

// Sanitized returns a copy of the Config with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	clone.Auth.HMACSecret = maskSecret(clone.Auth.HMACSecret)
	if len(cfg.Telemetry.Headers) > 0 {
		clone.Telemetry.Headers = make(map[string]string, len(cfg.Telemetry.Headers))
		for k, v := range cfg.Telemetry.Headers {
			clone.Telemetry.Headers[k] = maskSecret(v)
		}
	}
	return clone
}

// Validate ensures the configuration is internally consistent.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return errors.New("listen address required")
	}
	if !cfg.InMemory && strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir required unless in_memory is set")
	}
	if strings.TrimSpace(cfg.MarketFile) == "" {
		return errors.New("market_file required")
	}
	if !cfg.Auth.Disabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return errors.New("auth.hmac_secret required unless auth.disabled is true")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return errors.New("rate limit per minute must be non-negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0, 1]")
	}
	if cfg.ShutdownTimeout < 0 {
		return errors.New("shutdown_timeout must be non-negative")
	}
	return nil
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "***"
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func boolFromEnv(key string, fallback bool) bool {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatFromEnv(key string, fallback float64) float64 {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
