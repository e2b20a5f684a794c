package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "./scanner_state", cfg.StorageDir)
	assert.Equal(t, "./reports", cfg.OutputDir)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 2, cfg.MaxConcurrentScans)
	assert.Equal(t, 24*time.Hour, cfg.WatchInterval)

	assert.Equal(t, "lite", cfg.Scan.DefaultDepth)
	assert.Equal(t, 25, cfg.Scan.BucketDivisor)
	assert.Equal(t, 2, cfg.Scan.MinBucketLimit)
	assert.Equal(t, DefaultPriorityKeywords, cfg.Scan.PriorityKeywords)
	assert.Equal(t, 70, cfg.Scan.ScreenshotQuality)

	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.EntryIdleTime)
	assert.Equal(t, 7*time.Second, cfg.Browser.EntryIdleTimeout)
	assert.Equal(t, 3*time.Second, cfg.Browser.ClickIdleTimeout)
	assert.Equal(t, 2*time.Second, cfg.Browser.CollectIdleTimeout)
	assert.Equal(t, 4*time.Second, cfg.Browser.SoakDuration)
	assert.NotEmpty(t, cfg.Browser.UserAgent)

	assert.Equal(t, 8, cfg.Detection.BannerThreshold)
	assert.Equal(t, 3*time.Second, cfg.Detection.SettleDelay)

	assert.Equal(t, "googleai", cfg.Oracle.Provider)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Oracle.APIKeyEnv)
	assert.Equal(t, 25, cfg.Oracle.BatchSize)
	assert.Equal(t, 6100*time.Millisecond, cfg.Oracle.MinInterval)
	assert.Equal(t, 3, *cfg.Oracle.MaxRetries)
	assert.Equal(t, DefaultMaxPromptTokens, cfg.Oracle.MaxPromptTokens)
	assert.Equal(t, time.Second, cfg.Oracle.BackoffBase)
	assert.Equal(t, "cl100k_base", cfg.Oracle.TokenEncoding)

	assert.Equal(t, 10*time.Second, cfg.Sitemap.FetchTimeout)
	assert.Equal(t, 8, cfg.Sitemap.MaxConcurrency)
	assert.Equal(t, cfg.Browser.UserAgent, cfg.Sitemap.UserAgent)

	assert.Equal(t, 20*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, "stdio", cfg.MCP.Transport)

	assert.True(t, containsWarning(warnings, "storage_dir is empty"))
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
}

func TestAppConfig_Validate_PreservesValues(t *testing.T) {
	cfg := AppConfig{
		StorageDir:   "/state",
		OutputDir:    "/out",
		OutputFormat: "yaml",
		Scan:         ScanConfig{DefaultDepth: "Deep", PriorityKeywords: []string{"privacy"}},
		Oracle:       OracleConfig{BatchSize: 10, MinInterval: time.Second, MaxRetries: intPtr(1), MaxPromptTokens: -1},
		Detection:    DetectionConfig{BannerThreshold: 12},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "deep", cfg.Scan.DefaultDepth)
	assert.Equal(t, []string{"privacy"}, cfg.Scan.PriorityKeywords)
	assert.Equal(t, 10, cfg.Oracle.BatchSize)
	assert.Equal(t, time.Second, cfg.Oracle.MinInterval)
	assert.Equal(t, 1, *cfg.Oracle.MaxRetries)
	assert.Equal(t, -1, cfg.Oracle.MaxPromptTokens, "negative keeps token splitting off")
	assert.Equal(t, 12, cfg.Detection.BannerThreshold)
	assert.Equal(t, "yaml", cfg.OutputFormat)
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	cfg := AppConfig{
		StorageDir: "/s",
		OutputDir:  "/o",
		Oracle:     OracleConfig{MinInterval: -time.Second, MaxRetries: intPtr(-1)},
		Detection:  DetectionConfig{SettleDelay: -time.Second},
		Browser:    BrowserConfig{SoakDuration: -time.Second},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Oracle.MinInterval)
	assert.Equal(t, 0, *cfg.Oracle.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Detection.SettleDelay)
	assert.Equal(t, time.Duration(0), cfg.Browser.SoakDuration)
	assert.True(t, containsWarning(warnings, "min_interval cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_retries cannot be negative"))
}

func TestAppConfig_Validate_UnknownFormats(t *testing.T) {
	cfg := AppConfig{StorageDir: "/s", OutputDir: "/o", LogFormat: "xml", OutputFormat: "csv"}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.True(t, containsWarning(warnings, "log_format"))
	assert.True(t, containsWarning(warnings, "output_format"))
}

func TestAppConfig_Validate_InvalidDepth(t *testing.T) {
	cfg := AppConfig{Scan: ScanConfig{DefaultDepth: "bottomless"}}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Validate_InvalidExcludePattern(t *testing.T) {
	cfg := AppConfig{Scan: ScanConfig{ExcludePathPatterns: []string{"[bad"}}}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Validate_Sites(t *testing.T) {
	cfg := AppConfig{
		StorageDir: "/s",
		OutputDir:  "/o",
		Sites: map[string]SiteConfig{
			"shop": {URL: "shop.example.com", Depth: "MEDIUM"},
		},
	}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", cfg.Sites["shop"].URL)
	assert.Equal(t, "medium", cfg.Sites["shop"].Depth)
	assert.True(t, containsWarning(warnings, `site "shop"`))

	cfg.Sites["broken"] = SiteConfig{}
	_, err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestSiteConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		site    SiteConfig
		wantErr bool
	}{
		{"valid", SiteConfig{URL: "https://example.com"}, false},
		{"missing url", SiteConfig{}, true},
		{"bad depth", SiteConfig{URL: "https://example.com", Depth: "huge"}, true},
		{"bad pattern", SiteConfig{URL: "https://example.com", ExcludePathPatterns: []string{"("}}, true},
		{"no host", SiteConfig{URL: "https://"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.site.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
