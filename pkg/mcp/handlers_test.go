package mcp

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/crawler"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
	"github.com/Sriram-PR/cookie-scanner/pkg/storage"
)

// scriptedScanner emits one log line, then waits for release (or
// cancellation) before sending a result.
type scriptedScanner struct {
	release chan struct{}
	mu      sync.Mutex
	reqs    []crawler.Request
}

func (s *scriptedScanner) Scan(ctx context.Context, req crawler.Request) <-chan models.Event {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()

	out := make(chan models.Event, 2)
	go func() {
		defer close(out)
		out <- models.Event{Type: models.EventLog, Message: "Visiting " + req.URL}
		select {
		case <-s.release:
		case <-ctx.Done():
			return
		}
		out <- models.Event{Type: models.EventResult, Payload: &models.ScanResult{
			ScanID:            req.ScanID,
			URL:               req.URL,
			Depth:             req.Depth,
			PagesScannedCount: 1,
			ScreenshotBase64:  "/9j/",
			Compliance: models.ComplianceSummary{
				GDPR: models.ComplianceInfo{RiskLevel: models.RiskHigh},
				CCPA: models.ComplianceInfo{RiskLevel: models.RiskLow},
			},
		}}
	}()
	return out
}

func newTestServer(t *testing.T) (*Server, *scriptedScanner, storage.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.OutputDir = ""
	cfg.Sites = map[string]config.SiteConfig{
		"shop": {URL: "https://shop.example.com", Depth: "deep", ExcludePathPatterns: []string{"^/cart"}},
		"blog": {URL: "https://blog.example.com"},
	}

	store, err := storage.NewBadgerStore(t.TempDir(), logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	scanner := &scriptedScanner{release: make(chan struct{})}
	runner := orchestrate.NewRunner(scanner, store, cfg, logrus.NewEntry(logger))
	srv, err := NewServer(&ServerConfig{
		AppConfig:  cfg,
		ConfigPath: "config.yaml",
		Transport:  "stdio",
		Logger:     logger,
		Runner:     runner,
		Store:      store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, scanner, store
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func waitForStatus(t *testing.T, srv *Server, jobID string, want models.ScanStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job := srv.jobManager.GetJob(jobID); job != nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, want)
	return nil
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(&ServerConfig{})
	assert.Error(t, err)
	_, err = NewServer(&ServerConfig{AppConfig: config.Default()})
	assert.Error(t, err)
}

func TestHandleScanSite_Lifecycle(t *testing.T) {
	srv, scanner, store := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleScanSite(ctx, callTool(map[string]any{"site_key": "shop"}))
	require.NoError(t, err)
	started := decode(t, res)
	assert.Equal(t, "started", started["status"])
	assert.Equal(t, "deep", started["depth"])
	jobID := started["job_id"].(string)

	waitForStatus(t, srv, jobID, models.ScanStatusRunning)

	// A second request for the same URL joins the running job
	res, err = srv.handleScanSite(ctx, callTool(map[string]any{"url": "https://shop.example.com"}))
	require.NoError(t, err)
	again := decode(t, res)
	assert.Equal(t, "already_running", again["status"])
	assert.Equal(t, jobID, again["job_id"])

	res, err = srv.handleGetScanReport(ctx, callTool(map[string]any{"scan_id": jobID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "still running")

	close(scanner.release)
	job := waitForStatus(t, srv, jobID, models.ScanStatusCompleted)
	assert.Equal(t, models.RiskHigh, job.GDPRRisk)

	res, err = srv.handleGetJobStatus(ctx, callTool(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	status := decode(t, res)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, []any{"Visiting https://shop.example.com"}, status["recent_logs"])

	res, err = srv.handleGetScanReport(ctx, callTool(map[string]any{"scan_id": jobID}))
	require.NoError(t, err)
	rep := decode(t, res)
	assert.Equal(t, "https://shop.example.com", rep["url"])
	assert.NotContains(t, rep, "screenshot_base64", "screenshot omitted by default")

	res, err = srv.handleGetScanReport(ctx, callTool(map[string]any{"scan_id": jobID, "include_screenshot": true}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "/9j/")

	scanner.mu.Lock()
	require.Len(t, scanner.reqs, 1)
	assert.Equal(t, []string{"^/cart"}, scanner.reqs[0].ExcludePatterns)
	assert.Equal(t, jobID, scanner.reqs[0].ScanID)
	scanner.mu.Unlock()

	rec, err := store.GetScan(jobID)
	require.NoError(t, err)
	assert.Equal(t, "shop", rec.SiteKey)
	assert.Equal(t, models.ScanStatusCompleted, rec.Status)
}

func TestHandleScanSite_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	cases := []struct {
		name string
		args map[string]any
		want string
	}{
		{"nothing given", map[string]any{}, "either url or site_key"},
		{"unknown site", map[string]any{"site_key": "nope"}, "not found"},
		{"bad scheme", map[string]any{"url": "ftp://example.com"}, "invalid URL"},
		{"relative url", map[string]any{"url": "example.com"}, "invalid URL"},
		{"bad depth", map[string]any{"url": "https://example.com", "depth": "huge"}, "huge"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := srv.handleScanSite(ctx, callTool(tc.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tc.want)
		})
	}
	assert.Empty(t, srv.jobManager.ListJobs())
}

func TestHandleCancelJob(t *testing.T) {
	srv, _, store := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleScanSite(ctx, callTool(map[string]any{"url": "https://slow.example.com"}))
	require.NoError(t, err)
	jobID := decode(t, res)["job_id"].(string)
	waitForStatus(t, srv, jobID, models.ScanStatusRunning)

	res, err = srv.handleCancelJob(ctx, callTool(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	assert.Equal(t, "cancelled", decode(t, res)["status"])

	res, err = srv.handleCancelJob(ctx, callTool(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	assert.Equal(t, "Job is not running", decode(t, res)["message"])

	res, err = srv.handleCancelJob(ctx, callTool(map[string]any{"job_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := store.GetScan(jobID)
		require.NoError(t, err)
		if rec.Status == models.ScanStatusCancelled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan record status = %s, want cancelled", rec.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleGetJobStatus_FromStore(t *testing.T) {
	srv, _, store := newTestServer(t)
	ctx := context.Background()

	rec := &models.ScanRecord{
		ID:        "old-scan",
		URL:       "https://blog.example.com",
		SiteKey:   "blog",
		Status:    models.ScanStatusFailed,
		StartedAt: time.Now().Add(-time.Hour),
		Error:     "interrupted: process exited before the scan finished",
		Log:       []string{"a", "b", "c"},
	}
	require.NoError(t, store.CreateScan(rec))

	res, err := srv.handleGetJobStatus(ctx, callTool(map[string]any{"job_id": "old-scan", "log_lines": 2}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, "failed", out["status"])
	assert.Equal(t, []any{"b", "c"}, out["recent_logs"])
	assert.Contains(t, out["error"], "interrupted")

	res, err = srv.handleGetJobStatus(ctx, callTool(map[string]any{"job_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = srv.handleGetJobStatus(ctx, callTool(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleListScansAndSites(t *testing.T) {
	srv, _, store := newTestServer(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateScan(&models.ScanRecord{ID: "s1", URL: "https://blog.example.com", SiteKey: "blog", Status: models.ScanStatusCompleted, StartedAt: base, GDPRRisk: models.RiskLow, CCPARisk: models.RiskLow, Log: []string{"x"}}))
	require.NoError(t, store.CreateScan(&models.ScanRecord{ID: "s2", URL: "https://blog.example.com", SiteKey: "blog", Status: models.ScanStatusCompleted, StartedAt: base.Add(time.Hour), GDPRRisk: models.RiskHigh, CCPARisk: models.RiskMedium}))
	require.NoError(t, store.CreateScan(&models.ScanRecord{ID: "s3", URL: "https://adhoc.example.com", Status: models.ScanStatusFailed, StartedAt: base.Add(2 * time.Hour)}))

	res, err := srv.handleListScans(ctx, callTool(map[string]any{"limit": 2}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.EqualValues(t, 2, out["returned"])
	assert.EqualValues(t, 3, out["total_scans"])
	scans := out["scans"].([]any)
	assert.Equal(t, "s3", scans[0].(map[string]any)["scan_id"])
	assert.NotContains(t, scans[1].(map[string]any), "log")

	res, err = srv.handleListSites(ctx, callTool(nil))
	require.NoError(t, err)
	out = decode(t, res)
	assert.EqualValues(t, 2, out["total_sites"])
	sites := out["sites"].([]any)
	blog := sites[0].(map[string]any)
	assert.Equal(t, "blog", blog["key"])
	assert.Equal(t, "s2", blog["last_scan_id"], "newest record wins")
	assert.Equal(t, "High", blog["gdpr_risk"])
	shop := sites[1].(map[string]any)
	assert.Equal(t, "deep", shop["depth"])
	assert.NotContains(t, shop, "last_scan_id")
}

func TestFormatJSON(t *testing.T) {
	out := formatJSON(map[string]interface{}{"a": 1})
	assert.JSONEq(t, `{"a":1}`, out)

	bad := formatJSON(map[string]interface{}{"ch": make(chan int)})
	assert.Contains(t, bad, "error")
}
