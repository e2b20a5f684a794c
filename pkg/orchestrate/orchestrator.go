// Package orchestrate runs persisted scans: one at a time through a Runner,
// or many configured sites concurrently through an Orchestrator.
package orchestrate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/crawler"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// SiteResult contains the result of scanning a single configured site
type SiteResult struct {
	SiteKey      string
	ScanID       string
	Success      bool
	Error        error
	PagesScanned int
	GDPRRisk     models.RiskLevel
	CCPARisk     models.RiskLevel
	ReportPath   string
	Duration     time.Duration
}

// Orchestrator scans several configured sites concurrently. All scans go
// through one Runner, so they share its scanner and therefore one oracle queue.
type Orchestrator struct {
	appCfg   *config.AppConfig
	log      *logrus.Entry
	siteKeys []string
	runner   *Runner

	// Caps concurrent browser sessions
	scanSemaphore *semaphore.Weighted

	results   []SiteResult
	resultsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator for the given site keys
func NewOrchestrator(appCfg *config.AppConfig, runner *Runner, siteKeys []string, log *logrus.Entry) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	limit := appCfg.MaxConcurrentScans
	if limit <= 0 {
		limit = 1
	}
	return &Orchestrator{
		appCfg:        appCfg,
		log:           log,
		siteKeys:      siteKeys,
		runner:        runner,
		scanSemaphore: semaphore.NewWeighted(int64(limit)),
		results:       make([]SiteResult, 0, len(siteKeys)),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run scans all sites and waits for completion. Results are sorted by site key.
func (o *Orchestrator) Run() []SiteResult {
	startTime := time.Now()
	o.log.Infof("Starting scans of %d sites: %v", len(o.siteKeys), o.siteKeys)

	var wg sync.WaitGroup
	for _, siteKey := range o.siteKeys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			result := o.scanSite(key)
			o.resultsMu.Lock()
			o.results = append(o.results, result)
			o.resultsMu.Unlock()
		}(siteKey)
	}
	wg.Wait()

	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()
	sort.Slice(o.results, func(i, j int) bool { return o.results[i].SiteKey < o.results[j].SiteKey })
	o.logSummary(time.Since(startTime))
	return append([]SiteResult(nil), o.results...)
}

// scanSite scans one configured site once a scan slot is free
func (o *Orchestrator) scanSite(siteKey string) SiteResult {
	startTime := time.Now()
	result := SiteResult{SiteKey: siteKey}
	siteLog := o.log.WithField("site", siteKey)

	siteCfg, exists := o.appCfg.Sites[siteKey]
	if !exists {
		result.Error = fmt.Errorf("site '%s' not found in configuration", siteKey)
		siteLog.Error("Site not found in configuration")
		return result
	}

	if err := o.scanSemaphore.Acquire(o.ctx, 1); err != nil {
		result.Error = fmt.Errorf("site '%s' not started: %w", siteKey, err)
		return result
	}
	defer o.scanSemaphore.Release(1)

	req := crawler.Request{
		URL:             siteCfg.URL,
		Depth:           o.appCfg.EffectiveDepth(siteCfg),
		ExcludePatterns: siteCfg.ExcludePathPatterns,
	}
	siteLog.Infof("Starting scan of %s", siteCfg.URL)
	outcome, err := o.runner.Run(o.ctx, siteKey, req, func(line string) {
		siteLog.Info(line)
	})
	if outcome != nil {
		result.ScanID = outcome.ScanID
		result.ReportPath = outcome.ReportPath
		if outcome.Result != nil {
			result.PagesScanned = outcome.Result.PagesScannedCount
			result.GDPRRisk = outcome.Result.Compliance.GDPR.RiskLevel
			result.CCPARisk = outcome.Result.Compliance.CCPA.RiskLevel
		}
	}
	if err != nil {
		result.Error = err
		siteLog.Errorf("Scan failed: %v", err)
	} else {
		result.Success = true
		siteLog.Infof("Scan completed (GDPR: %s, CCPA: %s)", result.GDPRRisk, result.CCPARisk)
	}
	result.Duration = time.Since(startTime)
	return result
}

// Cancel cancels all running scans
func (o *Orchestrator) Cancel() {
	o.log.Info("Cancelling all scans...")
	o.cancel()
}

// logSummary logs a summary of all scan results. Caller holds resultsMu.
func (o *Orchestrator) logSummary(totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Scans completed in %v", totalDuration.Round(time.Millisecond))

	totalPages := 0
	successCount := 0
	for _, r := range o.results {
		status := "SUCCESS"
		if r.Success {
			successCount++
		} else {
			status = "FAILED"
		}
		totalPages += r.PagesScanned
		o.log.Infof("  %s: %s - %d pages, GDPR %s, CCPA %s in %v",
			r.SiteKey, status, r.PagesScanned, r.GDPRRisk, r.CCPARisk, r.Duration.Round(time.Millisecond))
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d sites (%d success, %d failed), %d pages scanned",
		len(o.results), successCount, len(o.results)-successCount, totalPages)
	o.log.Info("============================================")
}

// ValidateSiteKeys checks that all provided site keys exist in the config
func ValidateSiteKeys(appCfg *config.AppConfig, siteKeys []string) error {
	for _, key := range siteKeys {
		if _, exists := appCfg.Sites[key]; !exists {
			return fmt.Errorf("site '%s' not found. Available sites: %v", key, GetAllSiteKeys(appCfg))
		}
	}
	return nil
}

// GetAllSiteKeys returns all site keys from the config, sorted
func GetAllSiteKeys(appCfg *config.AppConfig) []string {
	keys := make([]string, 0, len(appCfg.Sites))
	for k := range appCfg.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
