package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/crawler"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
	"github.com/Sriram-PR/cookie-scanner/pkg/report"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

const (
	defaultLogLines  = 20
	defaultListLimit = 20
	maxListLimit     = 200
)

// handleListSites handles the list_sites tool
func (s *Server) handleListSites(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appCfg := s.cfg.AppConfig

	// Most recent record per site key; ListScans is newest first
	lastScan := make(map[string]models.ScanRecord)
	records, err := s.cfg.Store.ListScans(0)
	if err != nil {
		s.log.Warnf("list_sites: could not read scan records: %v", err)
	}
	for _, rec := range records {
		if rec.SiteKey == "" {
			continue
		}
		if _, seen := lastScan[rec.SiteKey]; !seen {
			lastScan[rec.SiteKey] = rec
		}
	}

	keys := orchestrate.GetAllSiteKeys(appCfg)
	sites := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		siteCfg := appCfg.Sites[key]
		siteInfo := map[string]interface{}{
			"key":              key,
			"url":              siteCfg.URL,
			"depth":            appCfg.EffectiveDepth(siteCfg),
			"exclude_patterns": len(appCfg.EffectiveExcludePatterns(siteCfg)),
		}
		if rec, ok := lastScan[key]; ok {
			siteInfo["last_scan_id"] = rec.ID
			siteInfo["last_scan_status"] = rec.Status
			siteInfo["last_scanned"] = rec.StartedAt.Format(time.RFC3339)
			if rec.GDPRRisk != "" {
				siteInfo["gdpr_risk"] = rec.GDPRRisk
				siteInfo["ccpa_risk"] = rec.CCPARisk
			}
		}
		if s.jobManager.IsRunning(siteCfg.URL) {
			siteInfo["status"] = "running"
		}
		sites = append(sites, siteInfo)
	}

	result := map[string]interface{}{
		"sites":       sites,
		"config_path": s.cfg.ConfigPath,
		"total_sites": len(sites),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleScanSite handles the scan_site tool
func (s *Server) handleScanSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := request.GetString("url", "")
	siteKey := request.GetString("site_key", "")
	depth := request.GetString("depth", "")
	appCfg := s.cfg.AppConfig

	var excludes []string
	switch {
	case siteKey != "":
		siteCfg, exists := appCfg.Sites[siteKey]
		if !exists {
			return mcp.NewToolResultError(fmt.Sprintf("site '%s' not found. Available sites: %v", siteKey, orchestrate.GetAllSiteKeys(appCfg))), nil
		}
		if target == "" {
			target = siteCfg.URL
		}
		if depth == "" {
			depth = appCfg.EffectiveDepth(siteCfg)
		}
		excludes = siteCfg.ExcludePathPatterns
	case target == "":
		return mcp.NewToolResultError("either url or site_key is required"), nil
	}
	if depth == "" {
		depth = appCfg.Scan.DefaultDepth
	}

	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL '%s': must be an absolute http or https URL", target)), nil
	}
	if _, err := config.ParseDepth(depth); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, created := s.jobManager.CreateJob(target, siteKey, depth)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A scan is already in progress for this URL",
			"job_id":  job.ID,
			"url":     target,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	req := crawler.Request{ScanID: job.ID, URL: target, Depth: depth, ExcludePatterns: excludes}
	go s.runScanJob(job.ID, siteKey, req)

	result := map[string]interface{}{
		"status":  "started",
		"message": "Scan started successfully",
		"job_id":  job.ID,
		"url":     target,
		"depth":   depth,
	}
	if siteKey != "" {
		result["site_key"] = siteKey
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runScanJob runs a scan job in the background
func (s *Server) runScanJob(jobID, siteKey string, req crawler.Request) {
	jobLog := s.log.WithField("job_id", jobID)
	defer func() {
		if r := recover(); r != nil {
			jobLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC in scan job")
			s.jobManager.UpdateStatus(jobID, models.ScanStatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.jobManager.UpdateStatus(jobID, models.ScanStatusRunning, "")
	jobCtx := s.jobManager.GetContext(jobID)

	outcome, err := s.cfg.Runner.Run(jobCtx, siteKey, req, func(line string) {
		s.jobManager.AppendLog(jobID, line)
	})
	s.jobManager.SetOutcome(jobID, outcome)

	switch {
	case err == nil:
		s.jobManager.UpdateStatus(jobID, models.ScanStatusCompleted, "")
		jobLog.Info("Scan job completed")
	case errors.Is(err, context.Canceled):
		s.jobManager.UpdateStatus(jobID, models.ScanStatusCancelled, "")
		jobLog.Info("Scan job cancelled")
	default:
		s.jobManager.UpdateStatus(jobID, models.ScanStatusFailed, err.Error())
		jobLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Scan job failed: %v", err)
	}
}

// handleGetJobStatus handles the get_job_status tool. Jobs from earlier server
// runs are answered from the scan store.
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	lines := request.GetInt("log_lines", defaultLogLines)
	if lines <= 0 {
		lines = defaultLogLines
	}
	if lines > jobLogLines {
		lines = jobLogLines
	}

	if job := s.jobManager.GetJob(jobID); job != nil {
		result := map[string]interface{}{
			"job_id":        job.ID,
			"url":           job.URL,
			"depth":         job.Depth,
			"status":        job.Status,
			"started_at":    job.StartedAt.Format(time.RFC3339),
			"pages_scanned": job.PagesScanned,
			"recent_logs":   job.RecentLogs(lines),
		}
		if job.SiteKey != "" {
			result["site_key"] = job.SiteKey
		}
		if !job.CompletedAt.IsZero() {
			result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
			result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
		}
		if job.GDPRRisk != "" {
			result["gdpr_risk"] = job.GDPRRisk
			result["ccpa_risk"] = job.CCPARisk
		}
		if job.ReportPath != "" {
			result["report_path"] = job.ReportPath
		}
		if job.ErrorMessage != "" {
			result["error_message"] = job.ErrorMessage
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	rec, err := s.cfg.Store.GetScan(jobID)
	if errors.Is(err, utils.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read scan record: %v", err)), nil
	}
	result := recordSummary(rec)
	result["job_id"] = rec.ID
	result["recent_logs"] = rec.RecentLog(lines)
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetScanReport handles the get_scan_report tool
func (s *Server) handleGetScanReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scanID := request.GetString("scan_id", "")
	if scanID == "" {
		return mcp.NewToolResultError("scan_id parameter is required"), nil
	}

	result, err := s.cfg.Store.GetReport(scanID)
	if errors.Is(err, utils.ErrNotFound) {
		if job := s.jobManager.GetJob(scanID); job != nil && !job.Status.IsTerminal() {
			return mcp.NewToolResultError(fmt.Sprintf("scan '%s' is still %s", scanID, job.Status)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("no report for scan '%s'", scanID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read report: %v", err)), nil
	}

	if !request.GetBool("include_screenshot", false) {
		result.ScreenshotBase64 = ""
	}
	data, err := report.Marshal(result, "json")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleListScans handles the list_scans tool
func (s *Server) handleListScans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	records, err := s.cfg.Store.ListScans(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list scans: %v", err)), nil
	}
	scans := make([]map[string]interface{}, 0, len(records))
	for i := range records {
		scans = append(scans, recordSummary(&records[i]))
	}
	total, _ := s.cfg.Store.GetScanCount()

	result := map[string]interface{}{
		"scans":       scans,
		"returned":    len(scans),
		"total_scans": total,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}
	if !s.jobManager.CancelJob(jobID) {
		result := map[string]interface{}{
			"job_id":  jobID,
			"status":  job.Status,
			"message": "Job is not running",
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	s.log.WithField("job_id", jobID).Info("Scan job cancelled by request")
	result := map[string]interface{}{
		"job_id":  jobID,
		"status":  models.ScanStatusCancelled,
		"message": "Cancellation requested",
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// recordSummary renders a scan record without its log lines
func recordSummary(rec *models.ScanRecord) map[string]interface{} {
	summary := map[string]interface{}{
		"scan_id":    rec.ID,
		"url":        rec.URL,
		"depth":      rec.Depth,
		"status":     rec.Status,
		"started_at": rec.StartedAt.Format(time.RFC3339),
		"pages":      rec.Pages,
	}
	if rec.SiteKey != "" {
		summary["site_key"] = rec.SiteKey
	}
	if !rec.FinishedAt.IsZero() {
		summary["finished_at"] = rec.FinishedAt.Format(time.RFC3339)
	}
	if rec.GDPRRisk != "" {
		summary["gdpr_risk"] = rec.GDPRRisk
		summary["ccpa_risk"] = rec.CCPARisk
	}
	if rec.Error != "" {
		summary["error"] = rec.Error
	}
	return summary
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
