package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/crawler"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/report"
	"github.com/Sriram-PR/cookie-scanner/pkg/storage"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// EventScanner starts a scan and streams its events. *crawler.Scanner
// implements it.
type EventScanner interface {
	Scan(ctx context.Context, req crawler.Request) <-chan models.Event
}

// Outcome is what a finished scan left behind.
type Outcome struct {
	ScanID     string
	Result     *models.ScanResult
	ReportPath string // empty when no report file was written
}

// Runner executes single scans and persists their records, logs and reports.
type Runner struct {
	scanner      EventScanner
	store        storage.Store
	defaultDepth string
	outputDir    string
	outputFormat string
	log          *logrus.Entry
}

// NewRunner creates a Runner. Reports are written to cfg.OutputDir unless it is empty.
func NewRunner(scanner EventScanner, store storage.Store, cfg *config.AppConfig, log *logrus.Entry) *Runner {
	return &Runner{
		scanner:      scanner,
		store:        store,
		defaultDepth: cfg.Scan.DefaultDepth,
		outputDir:    cfg.OutputDir,
		outputFormat: cfg.OutputFormat,
		log:          log.WithField("component", "runner"),
	}
}

// NewScanID returns a fresh scan identifier.
func NewScanID() string {
	return uuid.New().String()
}

// Run executes req to completion. siteKey is recorded for scans of configured
// sites and may be empty. onLog, if set, receives every progress line.
// The scan record ends completed, failed or cancelled, and the error says why
// it did not complete.
func (r *Runner) Run(ctx context.Context, siteKey string, req crawler.Request, onLog func(string)) (*Outcome, error) {
	if req.ScanID == "" {
		req.ScanID = NewScanID()
	}
	depth := req.Depth
	if depth == "" {
		depth = r.defaultDepth
	}
	runLog := r.log.WithFields(logrus.Fields{"scan_id": req.ScanID, "url": req.URL})

	rec := &models.ScanRecord{
		ID:        req.ScanID,
		URL:       req.URL,
		Depth:     depth,
		SiteKey:   siteKey,
		Status:    models.ScanStatusPending,
		StartedAt: time.Now(),
	}
	if err := r.store.CreateScan(rec); err != nil {
		return nil, err
	}
	r.setStatus(req.ScanID, models.ScanStatusRunning, "", runLog)

	var (
		result *models.ScanResult
		errMsg string
	)
	for ev := range r.scanner.Scan(ctx, req) {
		switch ev.Type {
		case models.EventLog:
			if err := r.store.AppendLog(req.ScanID, ev.Message); err != nil {
				runLog.Warnf("Could not persist log line: %v", err)
			}
			if onLog != nil {
				onLog(ev.Message)
			}
		case models.EventResult:
			result = ev.Payload
		case models.EventError:
			errMsg = ev.Message
		}
	}

	outcome := &Outcome{ScanID: req.ScanID, Result: result}
	if result == nil {
		status := models.ScanStatusFailed
		if ctx.Err() != nil {
			status = models.ScanStatusCancelled
		}
		if errMsg == "" {
			errMsg = "event stream ended without a result"
		}
		r.setStatus(req.ScanID, status, errMsg, runLog)
		runLog.WithField("status", status).Warnf("Scan did not complete: %s", errMsg)
		if status == models.ScanStatusCancelled {
			return outcome, fmt.Errorf("%w: %s", context.Canceled, errMsg)
		}
		return outcome, fmt.Errorf("%w: %s", utils.ErrScanFailed, errMsg)
	}

	if err := r.store.SaveReport(req.ScanID, result); err != nil {
		r.setStatus(req.ScanID, models.ScanStatusFailed, err.Error(), runLog)
		return outcome, err
	}
	if r.outputDir != "" {
		path, err := report.Write(r.outputDir, r.outputFormat, result, runLog)
		if err != nil {
			// The stored report is authoritative; a missing file is not a failed scan.
			runLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Could not write report file: %v", err)
		} else {
			outcome.ReportPath = path
		}
	}

	err := r.store.UpdateScan(req.ScanID, func(rec *models.ScanRecord) error {
		rec.Status = models.ScanStatusCompleted
		rec.FinishedAt = time.Now()
		rec.Depth = result.Depth
		rec.Pages = result.PagesScannedCount
		rec.GDPRRisk = result.Compliance.GDPR.RiskLevel
		rec.CCPARisk = result.Compliance.CCPA.RiskLevel
		return nil
	})
	if err != nil {
		runLog.Errorf("Could not mark scan completed: %v", err)
	}
	return outcome, nil
}

func (r *Runner) setStatus(id string, status models.ScanStatus, errMsg string, log *logrus.Entry) {
	err := r.store.UpdateScan(id, func(rec *models.ScanRecord) error {
		rec.Status = status
		if status.IsTerminal() {
			rec.FinishedAt = time.Now()
		}
		if errMsg != "" {
			rec.Error = errMsg
		}
		return nil
	})
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		log.Warnf("Could not set scan status to %s: %v", status, err)
	}
}
