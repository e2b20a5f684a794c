package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SiteConfig is a named scan target used by batch runs and the watch mode.
type SiteConfig struct {
	URL                 string   `yaml:"url"`
	Depth               string   `yaml:"depth,omitempty"` // lite|medium|deep|enterprise, falls back to scan.default_depth
	ExcludePathPatterns []string `yaml:"exclude_path_patterns,omitempty"`
}

// ScanConfig controls the crawl frontier and scheduler.
type ScanConfig struct {
	DefaultDepth        string   `yaml:"default_depth"`
	BucketDivisor       int      `yaml:"bucket_divisor,omitempty"`   // bucketLimit = max(min_bucket_limit, ceil(maxPages/bucket_divisor))
	MinBucketLimit      int      `yaml:"min_bucket_limit,omitempty"` // lower bound for bucketLimit
	ExcludePathPatterns []string `yaml:"exclude_path_patterns,omitempty"`
	PriorityKeywords    []string `yaml:"priority_keywords,omitempty"`
	CaptureScreenshot   *bool    `yaml:"capture_screenshot,omitempty"`
	ScreenshotQuality   int      `yaml:"screenshot_quality,omitempty"`
}

// BrowserConfig holds headless browser session settings.
type BrowserConfig struct {
	Headless           *bool         `yaml:"headless,omitempty"`
	ExecPath           string        `yaml:"exec_path,omitempty"`
	UserAgent          string        `yaml:"user_agent,omitempty"`
	ViewportWidth      int           `yaml:"viewport_width,omitempty"`
	ViewportHeight     int           `yaml:"viewport_height,omitempty"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout,omitempty"`
	EntryIdleTime      time.Duration `yaml:"entry_idle_time,omitempty"`      // quiet period that counts as network idle
	EntryIdleTimeout   time.Duration `yaml:"entry_idle_timeout,omitempty"`   // cap on the entry-page idle wait
	ClickIdleTimeout   time.Duration `yaml:"click_idle_timeout,omitempty"`   // cap on the idle wait after a consent click
	CollectIdleTimeout time.Duration `yaml:"collect_idle_timeout,omitempty"` // cap on the idle wait after scrolling
	SoakDuration       time.Duration `yaml:"soak_duration,omitempty"`        // extra time for late trackers before reading state
}

// DetectionConfig tunes the banner/policy heuristic.
type DetectionConfig struct {
	BannerThreshold int           `yaml:"banner_threshold,omitempty"`
	SettleDelay     time.Duration `yaml:"settle_delay,omitempty"`
}

// OracleConfig configures the classification oracle and its serial queue.
type OracleConfig struct {
	Provider        string        `yaml:"provider"` // googleai
	Model           string        `yaml:"model"`
	APIKeyEnv       string        `yaml:"api_key_env,omitempty"`
	BatchSize       int           `yaml:"batch_size,omitempty"`
	MinInterval     time.Duration `yaml:"min_interval,omitempty"` // spacing between completion of one call and dispatch of the next
	MaxRetries      *int          `yaml:"max_retries,omitempty"`  // unset means 3, 0 disables retries
	BackoffBase     time.Duration `yaml:"backoff_base,omitempty"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens,omitempty"` // negative disables token-based batch splitting
	TokenEncoding   string        `yaml:"token_encoding,omitempty"`
	RiskAssessment  *bool         `yaml:"risk_assessment,omitempty"`
}

// SitemapConfig controls sitemap discovery.
type SitemapConfig struct {
	Enabled        *bool         `yaml:"enabled,omitempty"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout,omitempty"`
	MaxConcurrency int           `yaml:"max_concurrency,omitempty"`
	MaxIndexDepth  int           `yaml:"max_index_depth,omitempty"`
	MaxURLs        int           `yaml:"max_urls,omitempty"` // 0 = unlimited
	DelayPerHost   time.Duration `yaml:"delay_per_host,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
}

// MCPConfig holds MCP server defaults.
type MCPConfig struct {
	Transport string `yaml:"transport,omitempty"` // stdio|sse
	Port      int    `yaml:"port,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	LogLevel           string                `yaml:"log_level,omitempty"`
	LogFormat          string                `yaml:"log_format,omitempty"` // text|json
	StorageDir         string                `yaml:"storage_dir"`
	OutputDir          string                `yaml:"output_dir"`
	OutputFormat       string                `yaml:"output_format,omitempty"` // json|yaml
	MaxConcurrentScans int                   `yaml:"max_concurrent_scans,omitempty"`
	WatchInterval      time.Duration         `yaml:"watch_interval,omitempty"`
	Scan               ScanConfig            `yaml:"scan"`
	Browser            BrowserConfig         `yaml:"browser"`
	Detection          DetectionConfig       `yaml:"detection"`
	Oracle             OracleConfig          `yaml:"oracle"`
	Sitemap            SitemapConfig         `yaml:"sitemap"`
	MCP                MCPConfig             `yaml:"mcp,omitempty"`
	HTTPClientSettings HTTPClientConfig      `yaml:"http_client_settings,omitempty"`
	Sites              map[string]SiteConfig `yaml:"sites,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client used for robots.txt and sitemaps
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Load reads and parses a YAML config file. Defaults are not applied; call Validate.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	_, _ = cfg.Validate()
	return cfg
}

// BoolOr dereferences b, returning def when b is nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// IntOr dereferences n, returning def when n is nil.
func IntOr(n *int, def int) int {
	if n == nil {
		return def
	}
	return *n
}

// APIKey reads the oracle API key from the configured environment variable.
func (o OracleConfig) APIKey() string {
	return os.Getenv(o.APIKeyEnv)
}

// EffectiveDepth resolves a site's depth preset, falling back to the scan default.
func (c *AppConfig) EffectiveDepth(site SiteConfig) string {
	if site.Depth != "" {
		return site.Depth
	}
	return c.Scan.DefaultDepth
}

// EffectiveExcludePatterns merges global and site exclusion patterns.
func (c *AppConfig) EffectiveExcludePatterns(site SiteConfig) []string {
	out := make([]string, 0, len(c.Scan.ExcludePathPatterns)+len(site.ExcludePathPatterns))
	out = append(out, c.Scan.ExcludePathPatterns...)
	return append(out, site.ExcludePathPatterns...)
}
