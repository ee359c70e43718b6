package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode tells whether code runs inside a static build or serves live requests.
type Mode string

const (
	ModeBuild   Mode = "build"
	ModeRuntime Mode = "runtime"
)

// Config holds pipeline configuration.
type Config struct {
	BaseURL        string
	BuildAPIKey    string
	RuntimeAPIKey  string
	Mode           Mode
	CI             bool
	BuildTimeout   time.Duration
	RuntimeTimeout time.Duration

	Parallelism  int
	ChunkSize    int
	ChunkPause   time.Duration
	RequestDelay time.Duration
	CacheSize    int

	SnapshotPath    string
	ReportPath      string
	StaleAfter      time.Duration
	MaxFailureRatio float64
	MinRequests     int

	CMS    CMSConfig
	Server ServerConfig

	UserAgent   string
	MetricsAddr string
	Verbose     bool
}

// CMSConfig points at the headless CMS query API.
type CMSConfig struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	BaseURL    string
	Timeout    time.Duration
}

// ServerConfig configures the /api/places proxy.
type ServerConfig struct {
	Addr            string
	GoogleAPIKey    string
	GoogleBaseURL   string
	ResponseTTL     time.Duration
	RatePerMinute   int
	UpstreamTimeout time.Duration
}

// DefaultConfig returns conservative defaults for a local build.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://localhost:3000",
		Mode:            ModeRuntime,
		BuildTimeout:    30 * time.Second,
		RuntimeTimeout:  8 * time.Second,
		Parallelism:     8,
		ChunkSize:       10,
		ChunkPause:      time.Second,
		RequestDelay:    100 * time.Millisecond,
		CacheSize:       2048,
		SnapshotPath:    "data/places-data.json",
		StaleAfter:      30 * 24 * time.Hour,
		MaxFailureRatio: 0.5,
		MinRequests:     1,
		CMS: CMSConfig{
			Dataset:    "production",
			APIVersion: "2024-01-01",
			Timeout:    20 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			GoogleBaseURL:   "https://maps.googleapis.com/maps/api/place",
			ResponseTTL:     24 * time.Hour,
			RatePerMinute:   120,
			UpstreamTimeout: 10 * time.Second,
		},
		UserAgent: "places-prefetch/1.0",
	}
}

// Load reads configuration from the environment on top of DefaultConfig.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	v.SetDefault("PLACES_API_BASE_URL", cfg.BaseURL)
	v.SetDefault("PLACES_BUILD_TIMEOUT", cfg.BuildTimeout)
	v.SetDefault("PLACES_RUNTIME_TIMEOUT", cfg.RuntimeTimeout)
	v.SetDefault("PLACES_PARALLELISM", cfg.Parallelism)
	v.SetDefault("PLACES_CHUNK_SIZE", cfg.ChunkSize)
	v.SetDefault("PLACES_CHUNK_PAUSE", cfg.ChunkPause)
	v.SetDefault("PLACES_REQUEST_DELAY", cfg.RequestDelay)
	v.SetDefault("PLACES_CACHE_SIZE", cfg.CacheSize)
	v.SetDefault("PLACES_SNAPSHOT_PATH", cfg.SnapshotPath)
	v.SetDefault("PLACES_STALE_AFTER", cfg.StaleAfter)
	v.SetDefault("PLACES_MAX_FAILURE_RATIO", cfg.MaxFailureRatio)
	v.SetDefault("PLACES_MIN_REQUESTS_FOR_POLICY", cfg.MinRequests)
	v.SetDefault("SANITY_DATASET", cfg.CMS.Dataset)
	v.SetDefault("SANITY_API_VERSION", cfg.CMS.APIVersion)
	v.SetDefault("GOOGLE_PLACES_BASE_URL", cfg.Server.GoogleBaseURL)
	v.SetDefault("SERVER_ADDR", cfg.Server.Addr)
	v.SetDefault("PLACES_RESPONSE_TTL", cfg.Server.ResponseTTL)
	v.SetDefault("PLACES_RATE_PER_MINUTE", cfg.Server.RatePerMinute)

	cfg.BaseURL = strings.TrimSuffix(v.GetString("PLACES_API_BASE_URL"), "/")
	cfg.BuildAPIKey = v.GetString("PLACES_BUILD_API_KEY")
	cfg.RuntimeAPIKey = v.GetString("PLACES_API_KEY")
	cfg.CI = DetectCI(v)
	cfg.Mode = DetectMode(v)
	cfg.BuildTimeout = v.GetDuration("PLACES_BUILD_TIMEOUT")
	cfg.RuntimeTimeout = v.GetDuration("PLACES_RUNTIME_TIMEOUT")
	cfg.Parallelism = v.GetInt("PLACES_PARALLELISM")
	cfg.ChunkSize = v.GetInt("PLACES_CHUNK_SIZE")
	cfg.ChunkPause = v.GetDuration("PLACES_CHUNK_PAUSE")
	cfg.RequestDelay = v.GetDuration("PLACES_REQUEST_DELAY")
	cfg.CacheSize = v.GetInt("PLACES_CACHE_SIZE")
	cfg.SnapshotPath = v.GetString("PLACES_SNAPSHOT_PATH")
	cfg.ReportPath = v.GetString("PLACES_REPORT_PATH")
	cfg.StaleAfter = v.GetDuration("PLACES_STALE_AFTER")
	cfg.MaxFailureRatio = v.GetFloat64("PLACES_MAX_FAILURE_RATIO")
	cfg.MinRequests = v.GetInt("PLACES_MIN_REQUESTS_FOR_POLICY")

	cfg.CMS.ProjectID = v.GetString("SANITY_PROJECT_ID")
	cfg.CMS.Dataset = v.GetString("SANITY_DATASET")
	cfg.CMS.APIVersion = v.GetString("SANITY_API_VERSION")
	cfg.CMS.Token = v.GetString("SANITY_TOKEN")
	cfg.CMS.BaseURL = strings.TrimSuffix(v.GetString("CMS_BASE_URL"), "/")

	cfg.Server.Addr = v.GetString("SERVER_ADDR")
	cfg.Server.GoogleAPIKey = v.GetString("GOOGLE_PLACES_API_KEY")
	cfg.Server.GoogleBaseURL = strings.TrimSuffix(v.GetString("GOOGLE_PLACES_BASE_URL"), "/")
	cfg.Server.ResponseTTL = v.GetDuration("PLACES_RESPONSE_TTL")
	cfg.Server.RatePerMinute = v.GetInt("PLACES_RATE_PER_MINUTE")

	cfg.MetricsAddr = v.GetString("METRICS_ADDR")

	return cfg, nil
}

// DetectMode resolves the execution mode once, at the entry point.
func DetectMode(v *viper.Viper) Mode {
	switch Mode(strings.ToLower(v.GetString("PLACES_MODE"))) {
	case ModeBuild:
		return ModeBuild
	case ModeRuntime:
		return ModeRuntime
	}
	if v.GetString("NEXT_PHASE") == "phase-production-build" || v.GetBool("BUILD_PHASE") {
		return ModeBuild
	}
	return ModeRuntime
}

// DetectCI reports whether a CI provider flag is set.
func DetectCI(v *viper.Viper) bool {
	for _, key := range []string{"CI", "GITHUB_ACTIONS", "VERCEL", "NETLIFY"} {
		if v.GetBool(key) {
			return true
		}
	}
	return false
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Mode != ModeBuild && c.Mode != ModeRuntime {
		return fmt.Errorf("mode must be build or runtime")
	}
	if c.BuildTimeout <= 0 || c.RuntimeTimeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.ChunkPause < 0 {
		return fmt.Errorf("chunk pause cannot be negative")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.SnapshotPath == "" {
		return fmt.Errorf("snapshot path cannot be empty")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale after must be positive")
	}
	if c.MaxFailureRatio < 0 || c.MaxFailureRatio > 1 {
		return fmt.Errorf("max failure ratio must be between 0 and 1")
	}
	if c.MinRequests < 0 {
		return fmt.Errorf("min requests cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// ValidateCMS checks the settings needed by the offline prefetch command.
func (c *Config) ValidateCMS() error {
	if c.CMS.BaseURL == "" && c.CMS.ProjectID == "" {
		return fmt.Errorf("CMS project ID or base URL is required")
	}
	if c.CMS.Dataset == "" {
		return fmt.Errorf("CMS dataset cannot be empty")
	}
	if c.CMS.APIVersion == "" {
		return fmt.Errorf("CMS API version cannot be empty")
	}
	return nil
}

// ValidateServer checks the settings needed by the proxy server.
func (c *Config) ValidateServer() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.Server.GoogleAPIKey == "" {
		return fmt.Errorf("google places API key is required")
	}
	if _, err := url.Parse(c.Server.GoogleBaseURL); err != nil || c.Server.GoogleBaseURL == "" {
		return fmt.Errorf("invalid google places base URL")
	}
	if c.Server.ResponseTTL <= 0 {
		return fmt.Errorf("response ttl must be positive")
	}
	if c.Server.RatePerMinute <= 0 {
		return fmt.Errorf("rate per minute must be positive")
	}
	if len(c.ClientKeys()) == 0 {
		return fmt.Errorf("at least one client API key is required")
	}
	return nil
}

// ClientKeys lists the credentials the proxy accepts.
func (c *Config) ClientKeys() []string {
	var keys []string
	for _, k := range []string{c.BuildAPIKey, c.RuntimeAPIKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
