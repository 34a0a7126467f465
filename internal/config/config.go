// Package config provides configuration management for Pinpoint.
// It loads settings from environment variables with the PINPOINT_ prefix
// (after reading an optional .env file) and provides sensible defaults for
// all configuration options.
//
// Provider credentials gate which providers are active: a provider whose key
// is empty is simply not used. An empty remote cache URL means local-only
// caching.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/scrypster/pinpoint/internal/ratelimit"
)

// Config holds all configuration settings for the Pinpoint service.
type Config struct {
	Server    ServerConfig
	Providers ProvidersConfig
	Cache     CacheConfig
	Limits    LimitsConfig
	Resolver  ResolverConfig
	Preview   PreviewConfig
	Media     MediaConfig
	Gateway   GatewayConfig
	Features  FeaturesConfig
	Log       LogConfig
}

// FeaturesConfig contains feature flags.
type FeaturesConfig struct {
	EnableWebSocket bool // Enable the /ws pin event stream (default: true)
	EnableMetrics   bool // Expose /metrics (default: true)
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int           // Server port (default: 8088)
	Host           string        // Server host (default: 127.0.0.1)
	PublicBaseURL  string        // Base URL used for hosted media links (default: http://{host}:{port})
	IdleTimeout    time.Duration // Keep-alive idle timeout (default: 120s)
	AllowedOrigins []string      // CORS origins (default: *)
	GlobalRPS      float64       // Process-wide request rate guard (default: 50)
	GlobalBurst    int           // Burst for the process-wide guard (default: 100)
	TrustedProxies []string      // Addresses or CIDRs whose X-Forwarded-For is believed (default: none)
}

// ProvidersConfig contains third-party provider credentials and endpoints.
type ProvidersConfig struct {
	FoursquareAPIKey  string        // Foursquare Places API key; empty disables POI search
	FoursquareBaseURL string        // default: https://api.foursquare.com/v3
	MapboxToken       string        // Mapbox access token; empty disables reverse geocoding
	MapboxBaseURL     string        // default: https://api.mapbox.com
	WikidataBaseURL   string        // default: https://www.wikidata.org/w/api.php
	WikipediaBaseURL  string        // default: https://en.wikipedia.org/api/rest_v1
	UserAgent         string        // User-Agent for all outbound requests
	Timeout           time.Duration // Per-call provider timeout (default: 5s)
	RetryDelay        time.Duration // Fixed delay before the single timeout retry (default: 250ms)
}

// CacheConfig contains cache sizing, TTL and remote-tier settings.
type CacheConfig struct {
	LocalSize     int           // Max entries in the in-process LRU (default: 5000)
	RemoteURL     string        // postgres://... or sqlite://path; empty means local only
	CommercialTTL time.Duration // restaurants, shops, hotels (default: 24h)
	LandmarkTTL   time.Duration // monuments, parks, museums (default: 720h)
	DefaultTTL    time.Duration // unknown categories (default: 168h)
}

// LimitsConfig contains per-client rate limits and the idempotency window.
type LimitsConfig struct {
	PerMinute         int           // default: 5
	PerHour           int           // default: 60
	IdempotencyWindow time.Duration // default: 30s
	SweepInterval     time.Duration // how often stale limiter/idempotency records are dropped (default: 5m)
}

// ResolverConfig contains place-resolution tuning knobs.
type ResolverConfig struct {
	SearchRadius        float64 // meters (default: 150)
	MaxHintDistance     float64 // meters (default: 350)
	AcceptanceThreshold float64 // minimum candidate score (default: 0.55)
}

// PreviewConfig contains website/social fetch settings.
type PreviewConfig struct {
	WebsiteTimeout  time.Duration // default: 6.5s
	SocialTimeout   time.Duration // default: 3.5s
	WebsiteMaxBytes int64         // default: 1.5 MB
	SocialMaxBytes  int64         // default: 1 MB
	DomainInterval  time.Duration // minimum gap between requests to one domain (default: 1s)
}

// MediaConfig contains image hosting settings.
type MediaConfig struct {
	DataPath     string        // Directory hosted images are written to (default: ./data/media)
	MaxBytes     int64         // Max image size (default: 8 MB)
	Timeout      time.Duration // Per-image download timeout (default: 8s)
	EnrichBudget time.Duration // Upper bound for one enrichment run (default: 25s)
}

// GatewayConfig contains intelligence-gateway settings.
type GatewayConfig struct {
	CategoryRulesPath string        // Optional YAML override for POI category rules
	POITTL            time.Duration // default: 2h
	GeocodeTTL        time.Duration // default: 6h
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string // debug, info, warn, error (default: info)
	Format string // console or json (default: console)
}

// LoadConfig loads configuration from an optional .env file and environment
// variables with sensible defaults. Variables already present in the
// environment take precedence over the .env file.
func LoadConfig() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Limits.PerMinute <= 0 || c.Limits.PerHour <= 0 {
		return fmt.Errorf("config: rate limits must be positive (minute=%d, hour=%d)", c.Limits.PerMinute, c.Limits.PerHour)
	}
	if err := ratelimit.ParseProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Cache.LocalSize <= 0 {
		return fmt.Errorf("config: cache size must be positive, got %d", c.Cache.LocalSize)
	}
	if c.Cache.RemoteURL != "" && !IsSupportedRemoteURL(c.Cache.RemoteURL) {
		return fmt.Errorf("config: unsupported remote cache URL scheme (want postgres:// or sqlite://)")
	}
	return nil
}

// IsSupportedRemoteURL reports whether the remote cache URL names a backend
// Pinpoint knows how to open.
func IsSupportedRemoteURL(u string) bool {
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") || strings.HasPrefix(u, "sqlite://")
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	host := getEnv("PINPOINT_HOST", "127.0.0.1")
	port := getEnvInt("PINPOINT_PORT", 8088)

	return &Config{
		Server: ServerConfig{
			Port:           port,
			Host:           host,
			PublicBaseURL:  strings.TrimRight(getEnv("PINPOINT_PUBLIC_BASE_URL", fmt.Sprintf("http://%s:%d", host, port)), "/"),
			IdleTimeout:    getEnvDuration("PINPOINT_IDLE_TIMEOUT", 120*time.Second),
			AllowedOrigins: getEnvList("PINPOINT_ALLOWED_ORIGINS", []string{"*"}),
			GlobalRPS:      getEnvFloat("PINPOINT_GLOBAL_RPS", 50),
			GlobalBurst:    getEnvInt("PINPOINT_GLOBAL_BURST", 100),
			TrustedProxies: getEnvList("PINPOINT_TRUSTED_PROXIES", nil),
		},
		Providers: ProvidersConfig{
			FoursquareAPIKey:  getEnv("PINPOINT_FOURSQUARE_API_KEY", ""),
			FoursquareBaseURL: getEnv("PINPOINT_FOURSQUARE_BASE_URL", "https://api.foursquare.com/v3"),
			MapboxToken:       getEnv("PINPOINT_MAPBOX_TOKEN", ""),
			MapboxBaseURL:     getEnv("PINPOINT_MAPBOX_BASE_URL", "https://api.mapbox.com"),
			WikidataBaseURL:   getEnv("PINPOINT_WIKIDATA_BASE_URL", "https://www.wikidata.org/w/api.php"),
			WikipediaBaseURL:  getEnv("PINPOINT_WIKIPEDIA_BASE_URL", "https://en.wikipedia.org/api/rest_v1"),
			UserAgent:         getEnv("PINPOINT_USER_AGENT", "pinpoint/1.0 (+https://github.com/scrypster/pinpoint)"),
			Timeout:           getEnvDuration("PINPOINT_PROVIDER_TIMEOUT", 5*time.Second),
			RetryDelay:        getEnvDuration("PINPOINT_RETRY_DELAY", 250*time.Millisecond),
		},
		Cache: CacheConfig{
			LocalSize:     getEnvInt("PINPOINT_CACHE_SIZE", 5000),
			RemoteURL:     getEnv("PINPOINT_REMOTE_CACHE_URL", ""),
			CommercialTTL: getEnvDuration("PINPOINT_TTL_COMMERCIAL", 24*time.Hour),
			LandmarkTTL:   getEnvDuration("PINPOINT_TTL_LANDMARK", 30*24*time.Hour),
			DefaultTTL:    getEnvDuration("PINPOINT_TTL_DEFAULT", 7*24*time.Hour),
		},
		Limits: LimitsConfig{
			PerMinute:         getEnvInt("PINPOINT_LIMIT_PER_MINUTE", 5),
			PerHour:           getEnvInt("PINPOINT_LIMIT_PER_HOUR", 60),
			IdempotencyWindow: getEnvDuration("PINPOINT_IDEMPOTENCY_WINDOW", 30*time.Second),
			SweepInterval:     getEnvDuration("PINPOINT_SWEEP_INTERVAL", 5*time.Minute),
		},
		Resolver: ResolverConfig{
			SearchRadius:        getEnvFloat("PINPOINT_SEARCH_RADIUS", 150),
			MaxHintDistance:     getEnvFloat("PINPOINT_MAX_HINT_DISTANCE", 350),
			AcceptanceThreshold: getEnvFloat("PINPOINT_ACCEPTANCE_THRESHOLD", 0.55),
		},
		Preview: PreviewConfig{
			WebsiteTimeout:  getEnvDuration("PINPOINT_WEBSITE_TIMEOUT", 6500*time.Millisecond),
			SocialTimeout:   getEnvDuration("PINPOINT_SOCIAL_TIMEOUT", 3500*time.Millisecond),
			WebsiteMaxBytes: int64(getEnvInt("PINPOINT_WEBSITE_MAX_BYTES", 1536*1024)),
			SocialMaxBytes:  int64(getEnvInt("PINPOINT_SOCIAL_MAX_BYTES", 1024*1024)),
			DomainInterval:  getEnvDuration("PINPOINT_DOMAIN_INTERVAL", time.Second),
		},
		Media: MediaConfig{
			DataPath:     getEnv("PINPOINT_MEDIA_PATH", "./data/media"),
			MaxBytes:     int64(getEnvInt("PINPOINT_MEDIA_MAX_BYTES", 8*1024*1024)),
			Timeout:      getEnvDuration("PINPOINT_MEDIA_TIMEOUT", 8*time.Second),
			EnrichBudget: getEnvDuration("PINPOINT_ENRICH_BUDGET", 25*time.Second),
		},
		Gateway: GatewayConfig{
			CategoryRulesPath: getEnv("PINPOINT_CATEGORY_RULES", ""),
			POITTL:            getEnvDuration("PINPOINT_POI_TTL", 2*time.Hour),
			GeocodeTTL:        getEnvDuration("PINPOINT_GEOCODE_TTL", 6*time.Hour),
		},
		Features: FeaturesConfig{
			EnableWebSocket: getEnvBool("PINPOINT_ENABLE_WEBSOCKET", true),
			EnableMetrics:   getEnvBool("PINPOINT_ENABLE_METRICS", true),
		},
		Log: LogConfig{
			Level:  getEnv("PINPOINT_LOG_LEVEL", "info"),
			Format: getEnv("PINPOINT_LOG_FORMAT", "console"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration parses a Go duration string ("250ms", "6h") or returns the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
