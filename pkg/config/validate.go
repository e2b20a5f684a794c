package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// DefaultPriorityKeywords raise a discovered link to priority 1 when found in its href or text.
var DefaultPriorityKeywords = []string{
	"privacy", "policy", "terms", "conditions", "cookie",
	"contact", "about", "legal", "login", "signin", "signup",
	"pricing", "dpa", "data-processing", "security", "disclaimer",
	"imprint", "impressum", "user-agreement", "terms-of-service", "terms-of-use",
}

const (
	// DefaultOracleRetries applies when max_retries is unset.
	DefaultOracleRetries = 3
	// DefaultMaxPromptTokens is half of Gemini's input window, leaving room
	// for the gap between the local encoding and the model's tokenizer.
	DefaultMaxPromptTokens = 1 << 19
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogFormat {
	case "", "text", "json":
		if c.LogFormat == "" {
			c.LogFormat = "text"
		}
	default:
		warnings = append(warnings, fmt.Sprintf("log_format %q unknown, defaulting to 'text'", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.StorageDir == "" {
		warnings = append(warnings, "storage_dir is empty, defaulting to './scanner_state'")
		c.StorageDir = "./scanner_state"
	}
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './reports'")
		c.OutputDir = "./reports"
	}
	switch c.OutputFormat {
	case "":
		c.OutputFormat = "json"
	case "json", "yaml":
	default:
		warnings = append(warnings, fmt.Sprintf("output_format %q unknown, defaulting to 'json'", c.OutputFormat))
		c.OutputFormat = "json"
	}
	if c.MaxConcurrentScans <= 0 {
		c.MaxConcurrentScans = 2
	}
	if c.WatchInterval < 0 {
		warnings = append(warnings, "watch_interval cannot be negative, defaulting to 24h")
		c.WatchInterval = 0
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = 24 * time.Hour
	}

	w, err := c.validateScan()
	warnings = append(warnings, w...)
	if err != nil {
		return warnings, err
	}
	c.validateBrowser()
	warnings = append(warnings, c.validateDetection()...)
	warnings = append(warnings, c.validateOracle()...)
	c.validateSitemap()
	c.validateHTTPClientSettings()
	if c.MCP.Transport == "" {
		c.MCP.Transport = "stdio"
	}
	if c.MCP.Port <= 0 {
		c.MCP.Port = 8080
	}

	for key, site := range c.Sites {
		siteWarnings, siteErr := site.Validate()
		for _, sw := range siteWarnings {
			warnings = append(warnings, fmt.Sprintf("site %q: %s", key, sw))
		}
		if siteErr != nil {
			return warnings, fmt.Errorf("site %q: %w", key, siteErr)
		}
		c.Sites[key] = site
	}

	return warnings, nil
}

func (c *AppConfig) validateScan() (warnings []string, err error) {
	s := &c.Scan
	depth, err := ParseDepth(s.DefaultDepth)
	if err != nil {
		return nil, err
	}
	s.DefaultDepth = string(depth)
	if s.BucketDivisor <= 0 {
		s.BucketDivisor = 25
	}
	if s.MinBucketLimit <= 0 {
		s.MinBucketLimit = 2
	}
	if len(s.PriorityKeywords) == 0 {
		s.PriorityKeywords = append([]string(nil), DefaultPriorityKeywords...)
	}
	if _, err := utils.CompileRegexPatterns(s.ExcludePathPatterns); err != nil {
		return nil, err
	}
	if s.ScreenshotQuality <= 0 || s.ScreenshotQuality > 100 {
		if s.ScreenshotQuality != 0 {
			warnings = append(warnings, "screenshot_quality must be 1-100, defaulting to 70")
		}
		s.ScreenshotQuality = 70
	}
	return warnings, nil
}

func (c *AppConfig) validateBrowser() {
	b := &c.Browser
	if b.UserAgent == "" {
		b.UserAgent = defaultUserAgent
	}
	if b.ViewportWidth <= 0 {
		b.ViewportWidth = 1920
	}
	if b.ViewportHeight <= 0 {
		b.ViewportHeight = 1080
	}
	if b.NavigationTimeout <= 0 {
		b.NavigationTimeout = 30 * time.Second
	}
	if b.EntryIdleTime <= 0 {
		b.EntryIdleTime = 500 * time.Millisecond
	}
	if b.EntryIdleTimeout <= 0 {
		b.EntryIdleTimeout = 7 * time.Second
	}
	if b.ClickIdleTimeout <= 0 {
		b.ClickIdleTimeout = 3 * time.Second
	}
	if b.CollectIdleTimeout <= 0 {
		b.CollectIdleTimeout = 2 * time.Second
	}
	if b.SoakDuration < 0 {
		b.SoakDuration = 0
	} else if b.SoakDuration == 0 {
		b.SoakDuration = 4 * time.Second
	}
}

func (c *AppConfig) validateDetection() (warnings []string) {
	d := &c.Detection
	if d.BannerThreshold <= 0 {
		d.BannerThreshold = 8
	}
	if d.SettleDelay < 0 {
		warnings = append(warnings, "detection.settle_delay cannot be negative, defaulting to 3s")
		d.SettleDelay = 0
	}
	if d.SettleDelay == 0 {
		d.SettleDelay = 3 * time.Second
	}
	return warnings
}

func (c *AppConfig) validateOracle() (warnings []string) {
	o := &c.Oracle
	if o.Provider == "" {
		o.Provider = "googleai"
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GEMINI_API_KEY"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.MinInterval < 0 {
		warnings = append(warnings, "oracle.min_interval cannot be negative, setting to 0")
		o.MinInterval = 0
	} else if o.MinInterval == 0 {
		o.MinInterval = 6100 * time.Millisecond
	}
	retries := IntOr(o.MaxRetries, DefaultOracleRetries)
	if retries < 0 {
		warnings = append(warnings, "oracle.max_retries cannot be negative, setting to 0")
		retries = 0
	}
	o.MaxRetries = &retries
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.MaxPromptTokens == 0 {
		o.MaxPromptTokens = DefaultMaxPromptTokens
	}
	if o.TokenEncoding == "" {
		o.TokenEncoding = "cl100k_base"
	}
	return warnings
}

func (c *AppConfig) validateSitemap() {
	s := &c.Sitemap
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = 10 * time.Second
	}
	if s.MaxConcurrency <= 0 {
		s.MaxConcurrency = 8
	}
	if s.MaxIndexDepth <= 0 {
		s.MaxIndexDepth = 5
	}
	if s.MaxURLs < 0 {
		s.MaxURLs = 0
	}
	if s.UserAgent == "" {
		s.UserAgent = c.Browser.UserAgent
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 20 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks SiteConfig fields.
// Returns collected warnings and any fatal error.
func (c *SiteConfig) Validate() (warnings []string, err error) {
	if c.URL == "" {
		return nil, fmt.Errorf("%w: site has no url", utils.ErrConfigValidation)
	}
	if !strings.Contains(c.URL, "://") {
		warnings = append(warnings, fmt.Sprintf("url %q has no scheme, assuming https", c.URL))
		c.URL = "https://" + c.URL
	}
	u, parseErr := url.Parse(c.URL)
	if parseErr != nil || u.Hostname() == "" {
		return warnings, fmt.Errorf("%w: site url %q is not a valid absolute URL", utils.ErrConfigValidation, c.URL)
	}
	if c.Depth != "" {
		d, depthErr := ParseDepth(c.Depth)
		if depthErr != nil {
			return warnings, depthErr
		}
		c.Depth = string(d)
	}
	if _, err := utils.CompileRegexPatterns(c.ExcludePathPatterns); err != nil {
		return warnings, err
	}
	return warnings, nil
}
