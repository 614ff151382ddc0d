package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/sitepulse/pkg/observability"
	"github.com/platinummonkey/sitepulse/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Redis         storage.RedisConfig `yaml:"redis"`
	GA4           GA4Config           `yaml:"ga4"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// GA4Config holds the Google Analytics Data API credentials.
// Missing credentials leave the adapter unconfigured; that is not an error.
type GA4Config struct {
	PropertyID      string        `yaml:"property_id"`
	ClientEmail     string        `yaml:"client_email"`
	PrivateKey      string        `yaml:"private_key"`
	CredentialsFile string        `yaml:"credentials_file"`
	Endpoint        string        `yaml:"endpoint"`
	TokenURL        string        `yaml:"token_url"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheSize       int           `yaml:"cache_size"`
}

// Configured reports whether a property and some form of credentials are present
func (g GA4Config) Configured() bool {
	if g.PropertyID == "" {
		return false
	}
	return g.CredentialsFile != "" || (g.ClientEmail != "" && g.PrivateKey != "")
}

// RateLimitConfig holds per-route fixed-window limits
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	EventsRequests    int           `yaml:"events_requests"`
	EventsWindow      time.Duration `yaml:"events_window"`
	AnalyticsRequests int           `yaml:"analytics_requests"`
	AnalyticsWindow   time.Duration `yaml:"analytics_window"`
	// CleanupSchedule is a cron spec for pruning in-memory windows
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// AnalyticsConfig holds aggregation settings
type AnalyticsConfig struct {
	// DisplayFloors smooths empty fallback summaries for presentation
	DisplayFloors    bool `yaml:"display_floors"`
	DefaultRangeDays int  `yaml:"default_range_days"`
	MaxRangeDays     int  `yaml:"max_range_days"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitTracing
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    45 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
			MaxBodyBytes:    64 << 10,
		},
		GA4: GA4Config{
			Endpoint:  "https://analyticsdata.googleapis.com/v1beta",
			TokenURL:  "https://oauth2.googleapis.com/token",
			Timeout:   30 * time.Second,
			CacheTTL:  5 * time.Minute,
			CacheSize: 256,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			EventsRequests:    120,
			EventsWindow:      time.Minute,
			AnalyticsRequests: 30,
			AnalyticsWindow:   time.Minute,
			CleanupSchedule:   "@every 1m",
		},
		Analytics: AnalyticsConfig{
			DefaultRangeDays: 30,
			MaxRangeDays:     730,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "sitepulse",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadDotEnv loads .env style files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig builds the configuration from defaults, then the YAML file named by
// SITEPULSE_CONFIG_FILE (if any), then environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("SITEPULSE_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("SITEPULSE_HOST", s.Host)
	s.Port = getEnv("SITEPULSE_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("SITEPULSE_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("SITEPULSE_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("SITEPULSE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SITEPULSE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.AllowedOrigins = getEnvList("SITEPULSE_ALLOWED_ORIGINS", s.AllowedOrigins)
	s.MaxBodyBytes = getEnvInt64("SITEPULSE_MAX_BODY_BYTES", s.MaxBodyBytes)

	r := &c.Redis
	r.URL = getEnv("SITEPULSE_REDIS_URL", r.URL)
	r.Password = getEnv("SITEPULSE_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("SITEPULSE_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("SITEPULSE_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("SITEPULSE_REDIS_POOL_SIZE", r.PoolSize)

	g := &c.GA4
	g.PropertyID = getEnv("SITEPULSE_GA4_PROPERTY_ID", g.PropertyID)
	g.ClientEmail = getEnv("SITEPULSE_GA4_CLIENT_EMAIL", g.ClientEmail)
	g.PrivateKey = normalizePrivateKey(getEnv("SITEPULSE_GA4_PRIVATE_KEY", g.PrivateKey))
	g.CredentialsFile = getEnv("SITEPULSE_GA4_CREDENTIALS_FILE", g.CredentialsFile)
	g.Endpoint = getEnv("SITEPULSE_GA4_ENDPOINT", g.Endpoint)
	g.TokenURL = getEnv("SITEPULSE_GA4_TOKEN_URL", g.TokenURL)
	g.Timeout = getEnvDuration("SITEPULSE_GA4_TIMEOUT", g.Timeout)
	g.CacheTTL = getEnvDuration("SITEPULSE_GA4_CACHE_TTL", g.CacheTTL)
	g.CacheSize = getEnvInt("SITEPULSE_GA4_CACHE_SIZE", g.CacheSize)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("SITEPULSE_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.EventsRequests = getEnvInt("SITEPULSE_RATE_LIMIT_EVENTS", rl.EventsRequests)
	rl.EventsWindow = getEnvDuration("SITEPULSE_RATE_LIMIT_EVENTS_WINDOW", rl.EventsWindow)
	rl.AnalyticsRequests = getEnvInt("SITEPULSE_RATE_LIMIT_ANALYTICS", rl.AnalyticsRequests)
	rl.AnalyticsWindow = getEnvDuration("SITEPULSE_RATE_LIMIT_ANALYTICS_WINDOW", rl.AnalyticsWindow)
	rl.CleanupSchedule = getEnv("SITEPULSE_RATE_LIMIT_CLEANUP", rl.CleanupSchedule)

	a := &c.Analytics
	a.DisplayFloors = getEnvBool("SITEPULSE_DISPLAY_FLOORS", a.DisplayFloors)
	a.DefaultRangeDays = getEnvInt("SITEPULSE_DEFAULT_RANGE_DAYS", a.DefaultRangeDays)
	a.MaxRangeDays = getEnvInt("SITEPULSE_MAX_RANGE_DAYS", a.MaxRangeDays)

	o := &c.Observability
	o.LogLevel = getEnv("SITEPULSE_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("SITEPULSE_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("SITEPULSE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("SITEPULSE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("SITEPULSE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("SITEPULSE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("SITEPULSE_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	if c.Redis.URL != "" {
		if _, err := url.Parse(c.Redis.URL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
	}

	if c.GA4.CacheTTL <= 0 {
		return fmt.Errorf("GA4 cache TTL must be positive")
	}
	if c.GA4.Configured() && c.GA4.Endpoint == "" {
		return fmt.Errorf("GA4 endpoint is required when GA4 is configured")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.EventsRequests <= 0 || c.RateLimit.EventsWindow <= 0 {
			return fmt.Errorf("events rate limit must have a positive limit and window")
		}
		if c.RateLimit.AnalyticsRequests <= 0 || c.RateLimit.AnalyticsWindow <= 0 {
			return fmt.Errorf("analytics rate limit must have a positive limit and window")
		}
		if _, err := cron.ParseStandard(c.RateLimit.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid rate limit cleanup schedule %q: %w", c.RateLimit.CleanupSchedule, err)
		}
	}

	if c.Analytics.DefaultRangeDays <= 0 {
		return fmt.Errorf("default range days must be positive")
	}
	if c.Analytics.MaxRangeDays < c.Analytics.DefaultRangeDays {
		return fmt.Errorf("max range days must be at least the default range")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// normalizePrivateKey turns escaped newlines from single-line env values into real ones
func normalizePrivateKey(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
