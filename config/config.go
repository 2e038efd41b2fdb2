package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrInvalidWorkers      = errors.New("dispatch.workers must be at least 1")
	ErrInvalidBackend      = errors.New("browser.backend must be 'rod' or 'http'")
	ErrInvalidStageTimeout = errors.New("registry.stage_timeout must be positive")
	ErrInvalidPollInterval = errors.New("registry.poll_interval must be positive and below stage_timeout")
	ErrMissingBaseURL      = errors.New("registry.base_url is required")
	ErrInvalidLogLevel     = errors.New("log.level must be one of: debug, info, warn, error")
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Registry  RegistryConfig  `yaml:"registry"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP status API.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how each worker's session is built.
type BrowserConfig struct {
	// Backend selects the session implementation: "rod" (headless Chromium)
	// or "http" (static fetch + DOM parse).
	Backend string `yaml:"backend"` // default: "rod"

	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"`

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	Proxy string `yaml:"proxy"`

	// ControlURL attaches workers to an already running Chrome (DevTools
	// websocket URL) instead of launching one browser per worker. Each
	// worker then owns a tab, and closing the session leaves Chrome alive.
	ControlURL string `yaml:"control_url"`

	// Stealth injects navigator.webdriver masking into every page.
	Stealth bool `yaml:"stealth"` // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// BlockTrackers fails requests to analytics and ad hosts.
	BlockTrackers bool `yaml:"block_trackers"` // default: true
}

// RegistryConfig describes the charity register and the stage wait budget.
type RegistryConfig struct {
	// BaseURL is the register origin used to resolve relative links.
	BaseURL string `yaml:"base_url"` // default: "https://www.acnc.gov.au"

	// SearchPath is the charity search endpoint; the ABN goes in ?search=.
	SearchPath string `yaml:"search_path"` // default: "/charity/charities"

	// StageTimeout is the ceiling of every bounded wait.
	StageTimeout time.Duration `yaml:"stage_timeout"` // default: 2s

	// PollInterval is how often a bounded wait re-checks its condition.
	PollInterval time.Duration `yaml:"poll_interval"` // default: 200ms

	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 30s
}

// SearchURL returns the absolute search endpoint.
func (r RegistryConfig) SearchURL() string {
	return strings.TrimRight(r.BaseURL, "/") + r.SearchPath
}

// DispatchConfig controls the worker pool.
type DispatchConfig struct {
	// Workers is the default number of parallel sessions.
	Workers int `yaml:"workers"` // default: 10

	// RecordBuffer is the capacity of the results channel.
	RecordBuffer int `yaml:"record_buffer"` // default: 0
}

// ThrottleConfig spaces out navigations within one worker.
type ThrottleConfig struct {
	// RequestsPerSecond per worker; 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 0

	Burst int `yaml:"burst"` // default: 1
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting of the API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5
	Burst             int     `yaml:"burst"`               // default: 10
}

// CacheConfig controls the latest-record cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"` // default: 50000
	TTL        time.Duration `yaml:"ttl"`         // default: 24h
}

// WebhookConfig is the default run-completion webhook.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Browser: BrowserConfig{
			Backend:              "rod",
			Headless:             true,
			Stealth:              true,
			BlockedResourceTypes: []string{"Image", "Stylesheet", "Font", "Media"},
			BlockTrackers:        true,
		},
		Registry: RegistryConfig{
			BaseURL:           "https://www.acnc.gov.au",
			SearchPath:        "/charity/charities",
			StageTimeout:      2 * time.Second,
			PollInterval:      200 * time.Millisecond,
			NavigationTimeout: 30 * time.Second,
		},
		Dispatch: DispatchConfig{
			Workers: 10,
		},
		Throttle: ThrottleConfig{
			Burst: 1,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5.0,
			Burst:             10,
		},
		Cache: CacheConfig{
			MaxEntries: 50000,
			TTL:        24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CHARITYBOT_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CHARITYBOT_CONFIG"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks the values the dispatcher and extractor depend on.
func (c *Config) Validate() error {
	if c.Dispatch.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Browser.Backend != "rod" && c.Browser.Backend != "http" {
		return ErrInvalidBackend
	}
	if c.Registry.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.Registry.StageTimeout <= 0 {
		return ErrInvalidStageTimeout
	}
	if c.Registry.PollInterval <= 0 || c.Registry.PollInterval >= c.Registry.StageTimeout {
		return ErrInvalidPollInterval
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

func applyEnv(c *Config) {
	c.Server.Host = envOr("CHARITYBOT_HOST", c.Server.Host)
	c.Server.Port = envIntOr("CHARITYBOT_PORT", c.Server.Port)
	c.Server.Mode = envOr("CHARITYBOT_MODE", c.Server.Mode)

	c.Browser.Backend = envOr("CHARITYBOT_BACKEND", c.Browser.Backend)
	c.Browser.Headless = envBoolOr("CHARITYBOT_HEADLESS", c.Browser.Headless)
	c.Browser.NoSandbox = envBoolOr("CHARITYBOT_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("CHARITYBOT_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.Proxy = envOr("CHARITYBOT_PROXY", c.Browser.Proxy)
	c.Browser.Stealth = envBoolOr("CHARITYBOT_STEALTH", c.Browser.Stealth)
	c.Browser.ControlURL = envOr("CHARITYBOT_CONTROL_URL", c.Browser.ControlURL)
	c.Browser.BlockedResourceTypes = envSliceOr("CHARITYBOT_BLOCKED_RESOURCES", c.Browser.BlockedResourceTypes)
	c.Browser.BlockTrackers = envBoolOr("CHARITYBOT_BLOCK_TRACKERS", c.Browser.BlockTrackers)

	c.Registry.BaseURL = envOr("CHARITYBOT_REGISTRY_URL", c.Registry.BaseURL)
	c.Registry.SearchPath = envOr("CHARITYBOT_SEARCH_PATH", c.Registry.SearchPath)
	c.Registry.StageTimeout = envDurationOr("CHARITYBOT_STAGE_TIMEOUT", c.Registry.StageTimeout)
	c.Registry.PollInterval = envDurationOr("CHARITYBOT_POLL_INTERVAL", c.Registry.PollInterval)
	c.Registry.NavigationTimeout = envDurationOr("CHARITYBOT_NAV_TIMEOUT", c.Registry.NavigationTimeout)

	c.Dispatch.Workers = envIntOr("CHARITYBOT_WORKERS", c.Dispatch.Workers)
	c.Dispatch.RecordBuffer = envIntOr("CHARITYBOT_RECORD_BUFFER", c.Dispatch.RecordBuffer)

	c.Throttle.RequestsPerSecond = envFloatOr("CHARITYBOT_THROTTLE_RPS", c.Throttle.RequestsPerSecond)
	c.Throttle.Burst = envIntOr("CHARITYBOT_THROTTLE_BURST", c.Throttle.Burst)

	c.Auth.Enabled = envBoolOr("CHARITYBOT_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("CHARITYBOT_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("CHARITYBOT_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("CHARITYBOT_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("CHARITYBOT_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = envDurationOr("CHARITYBOT_CACHE_TTL", c.Cache.TTL)

	c.Webhook.URL = envOr("CHARITYBOT_WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Secret = envOr("CHARITYBOT_WEBHOOK_SECRET", c.Webhook.Secret)

	c.Log.Level = envOr("CHARITYBOT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("CHARITYBOT_LOG_FORMAT", c.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
