package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/tukibridge/models"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Site      SiteConfig
	Session   SessionConfig
	Waits     WaitConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Probe     ProbeConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 5000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is an optional proxy URL for all browser traffic.
	Proxy string

	// Stealth injects the go-rod/stealth evasions into the session page.
	Stealth bool // default: true

	// UserAgent overrides the browser user agent.
	UserAgent string

	// AcceptLanguage is sent as an extra header on every page request.
	AcceptLanguage string // default: "vi-VN,vi;q=0.9,en;q=0.8"

	// WindowSize is passed to Chrome as --window-size.
	WindowSize string // default: "1280,900"

	// BlockedResourceTypes lists resource types the session page never loads.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// SiteConfig describes the automated website.
type SiteConfig struct {
	// URL is the entry page of the target site. Required.
	URL string

	// DefaultIdentifier is typed into the optional identifier step.
	DefaultIdentifier string

	// ConditionsFile optionally replaces the built-in condition tables.
	ConditionsFile string

	// StrictCondition fails a fetch when the condition control exists but
	// none of the candidate values or labels could be selected.
	StrictCondition bool // default: true

	// Conditions maps a kind ("login_code", "verify_link") to the site's
	// option values and visible labels, tried in order.
	Conditions map[string]ConditionChoices
}

// SessionConfig controls the persistent automation session.
type SessionConfig struct {
	// IdleRefresh reloads the page before reuse after this much inactivity.
	IdleRefresh time.Duration // default: 300s

	// MaxAge restarts the session after it has been alive this long. 0 disables.
	MaxAge time.Duration // default: 2h

	// MaxUses restarts the session after this many fetches. 0 disables.
	MaxUses int // default: 0

	// Timezone is the IANA location used for server-sourced timestamps.
	Timezone string // default: "Local"

	// WarmUp starts the browser at boot instead of on the first fetch.
	WarmUp bool // default: true
}

// WaitConfig holds the ceilings of every bounded wait.
type WaitConfig struct {
	Short    time.Duration // default: 4s
	Medium   time.Duration // default: 10s
	Long     time.Duration // default: 20s
	Result   time.Duration // default: 15s
	PageLoad time.Duration // default: 30s
	Poll     time.Duration // default: 200ms
}

// StoreConfig controls the customer database.
type StoreConfig struct {
	// Path is the SQLite database path or DSN.
	Path string // default: "data.db"
}

// AuthConfig controls API key authentication of the admin endpoints.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid admin API keys.
	APIKeys []string
}

// RateLimitConfig controls per-client rate limiting of the fetch endpoint.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client.
	RequestsPerSecond float64 // default: 0.5

	// Burst is the maximum burst size per client.
	Burst int // default: 3
}

// CacheConfig controls the fetch response cache.
type CacheConfig struct {
	// TTL is how long a successful response is reused. 0 disables caching.
	TTL time.Duration // default: 10s

	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 500
}

// WebhookConfig controls event delivery for session restarts and failures.
type WebhookConfig struct {
	// URL receives the events. Empty disables webhooks.
	URL string

	// Secret signs payloads with HMAC-SHA256 when non-empty.
	Secret string
}

// ProbeConfig controls the upstream reachability probe used by /health.
type ProbeConfig struct {
	Enabled bool          // default: true
	TTL     time.Duration // default: 30s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("TUKI_HOST", "0.0.0.0"),
			Port: envIntOr("TUKI_PORT", 5000),
			Mode: envOr("TUKI_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("TUKI_HEADLESS", true),
			NoSandbox:      envBoolOr("TUKI_NO_SANDBOX", true),
			BrowserBin:     os.Getenv("TUKI_BROWSER_BIN"),
			Proxy:          os.Getenv("TUKI_PROXY"),
			Stealth:        envBoolOr("TUKI_STEALTH", true),
			UserAgent:      os.Getenv("TUKI_USER_AGENT"),
			AcceptLanguage: envOr("TUKI_ACCEPT_LANGUAGE", "vi-VN,vi;q=0.9,en;q=0.8"),
			WindowSize:     envOr("TUKI_WINDOW_SIZE", "1280,900"),
			BlockedResourceTypes: envSliceOr("TUKI_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Site: SiteConfig{
			URL:               strings.TrimSpace(os.Getenv("TUKI_URL")),
			DefaultIdentifier: os.Getenv("TUKI_USERNAME"),
			ConditionsFile:    os.Getenv("TUKI_CONDITIONS_FILE"),
			StrictCondition:   envBoolOr("TUKI_STRICT_CONDITION", true),
			Conditions:        DefaultConditions(),
		},
		Session: SessionConfig{
			IdleRefresh: envDurationOr("TUKI_IDLE_REFRESH", 300*time.Second),
			MaxAge:      envDurationOr("TUKI_SESSION_MAX_AGE", 2*time.Hour),
			MaxUses:     envIntOr("TUKI_SESSION_MAX_USES", 0),
			Timezone:    envOr("TUKI_TIMEZONE", "Local"),
			WarmUp:      envBoolOr("TUKI_WARM_UP", true),
		},
		Waits: WaitConfig{
			Short:    envDurationOr("TUKI_WAIT_SHORT", 4*time.Second),
			Medium:   envDurationOr("TUKI_WAIT_MEDIUM", 10*time.Second),
			Long:     envDurationOr("TUKI_WAIT_LONG", 20*time.Second),
			Result:   envDurationOr("TUKI_WAIT_RESULT", 15*time.Second),
			PageLoad: envDurationOr("TUKI_PAGE_LOAD_TIMEOUT", 30*time.Second),
			Poll:     envDurationOr("TUKI_WAIT_POLL", 200*time.Millisecond),
		},
		Store: StoreConfig{
			Path: envOr("TUKI_DATABASE", "data.db"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("TUKI_AUTH_ENABLED", true),
			APIKeys: envSliceOr("TUKI_ADMIN_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("TUKI_RATE_RPS", 0.5),
			Burst:             envIntOr("TUKI_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			TTL:        envDurationOr("TUKI_CACHE_TTL", 10*time.Second),
			MaxEntries: envIntOr("TUKI_CACHE_MAX_ENTRIES", 500),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("TUKI_WEBHOOK_URL"),
			Secret: os.Getenv("TUKI_WEBHOOK_SECRET"),
		},
		Probe: ProbeConfig{
			Enabled: envBoolOr("TUKI_PROBE_ENABLED", true),
			TTL:     envDurationOr("TUKI_PROBE_TTL", 30*time.Second),
		},
		Log: LogConfig{
			Level:  envOr("TUKI_LOG_LEVEL", "info"),
			Format: envOr("TUKI_LOG_FORMAT", "json"),
		},
	}
}

// Validate checks required settings and loads the conditions file if one is
// configured. It returns a CONFIGURATION_ERROR FetchError on failure.
func (c *Config) Validate() error {
	if c.Site.URL == "" {
		return models.NewFetchError(models.ErrCodeConfiguration, "TUKI_URL is required", nil)
	}
	if c.Site.ConditionsFile != "" {
		conds, err := LoadConditions(c.Site.ConditionsFile)
		if err != nil {
			return models.NewFetchError(models.ErrCodeConfiguration, "invalid conditions file", err)
		}
		c.Site.Conditions = conds
	}
	if _, err := c.Session.Location(); err != nil {
		return models.NewFetchError(models.ErrCodeConfiguration, "invalid TUKI_TIMEZONE", err)
	}
	return nil
}

// Location resolves Timezone to a *time.Location.
func (s SessionConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
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
