package watch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/crawler"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
	"github.com/Sriram-PR/cookie-scanner/pkg/storage"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"1h", time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"1d12h", 36 * time.Hour, false},
		{"2d6h", 54 * time.Hour, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInterval(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseInterval(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseInterval(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseInterval(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h30m"},
		{24 * time.Hour, "1d"},
		{36 * time.Hour, "1d12h"},
		{7 * 24 * time.Hour, "7d"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := FormatInterval(tt.input)
			if got != tt.expected {
				t.Errorf("FormatInterval(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStateManager(t *testing.T) {
	// Create temp directory for state file
	tmpDir := t.TempDir()

	sm := NewStateManager(tmpDir)

	// Test initial state
	if err := sm.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Test ShouldRun for new site
	if !sm.ShouldRun("test_site", time.Hour) {
		t.Error("ShouldRun() should return true for new site")
	}

	// Test RecordResult
	sm.RecordResult(orchestrate.SiteResult{SiteKey: "test_site", ScanID: "scan-1", Success: true, PagesScanned: 100, GDPRRisk: models.RiskHigh})

	// Test ShouldRun after update (should not run immediately)
	if sm.ShouldRun("test_site", time.Hour) {
		t.Error("ShouldRun() should return false immediately after run")
	}

	// Test GetSiteState
	state, ok := sm.GetSiteState("test_site")
	if !ok {
		t.Error("GetSiteState() should return true for existing site")
	}
	if !state.LastRunSuccess {
		t.Error("LastRunSuccess should be true")
	}
	if state.PagesScanned != 100 {
		t.Errorf("PagesScanned = %d, want 100", state.PagesScanned)
	}
	if state.LastScanID != "scan-1" || state.GDPRRisk != models.RiskHigh {
		t.Errorf("state = %+v, want scan-1 with High GDPR risk", state)
	}

	// Test Save
	if err := sm.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// Verify state file exists
	statePath := filepath.Join(tmpDir, stateFileName)
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		t.Error("State file should exist after Save()")
	}

	// Test Load from saved state
	sm2 := NewStateManager(tmpDir)
	if err := sm2.Load(); err != nil {
		t.Fatalf("Load() from saved state failed: %v", err)
	}

	state2, ok := sm2.GetSiteState("test_site")
	if !ok {
		t.Error("GetSiteState() should return true after Load()")
	}
	if state2.PagesScanned != 100 {
		t.Errorf("Loaded PagesScanned = %d, want 100", state2.PagesScanned)
	}
}

func TestStateManagerGetAllSiteStates(t *testing.T) {
	tmpDir := t.TempDir()
	sm := NewStateManager(tmpDir)
	_ = sm.Load()

	sm.RecordResult(orchestrate.SiteResult{SiteKey: "site1", Success: true, PagesScanned: 50})
	sm.RecordResult(orchestrate.SiteResult{SiteKey: "site2", Error: errors.New("some error")})
	sm.RecordResult(orchestrate.SiteResult{SiteKey: "site3", Success: true, PagesScanned: 200})

	states := sm.GetAllSiteStates()

	if len(states) != 3 {
		t.Errorf("GetAllSiteStates() returned %d states, want 3", len(states))
	}

	if states["site1"].PagesScanned != 50 {
		t.Errorf("site1 PagesScanned = %d, want 50", states["site1"].PagesScanned)
	}

	if states["site2"].LastRunSuccess {
		t.Error("site2 LastRunSuccess should be false")
	}

	if states["site2"].ErrorMessage != "some error" {
		t.Errorf("site2 ErrorMessage = %q, want 'some error'", states["site2"].ErrorMessage)
	}
}

func TestStateManagerGetNextRunTime(t *testing.T) {
	tmpDir := t.TempDir()
	sm := NewStateManager(tmpDir)
	_ = sm.Load()

	interval := time.Hour

	// New site should return now
	nextRun := sm.GetNextRunTime("new_site", interval)
	if time.Since(nextRun) > time.Second {
		t.Error("GetNextRunTime() for new site should be approximately now")
	}

	// Update site and check next run
	sm.RecordResult(orchestrate.SiteResult{SiteKey: "existing_site", Success: true, PagesScanned: 100})
	state, _ := sm.GetSiteState("existing_site")

	expectedNextRun := state.LastRunTime.Add(interval)
	actualNextRun := sm.GetNextRunTime("existing_site", interval)

	if actualNextRun.Sub(expectedNextRun) > time.Millisecond {
		t.Errorf("GetNextRunTime() = %v, want %v", actualNextRun, expectedNextRun)
	}
}

func TestStateManagerLoadCorrupt(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, stateFileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	sm := NewStateManager(tmpDir)
	if err := sm.Load(); err == nil {
		t.Error("Load() should fail on a corrupt state file")
	}
}

// countingScanner completes every scan immediately with two pages
type countingScanner struct {
	calls chan string
}

func (c *countingScanner) Scan(ctx context.Context, req crawler.Request) <-chan models.Event {
	out := make(chan models.Event, 1)
	c.calls <- req.URL
	out <- models.Event{Type: models.EventResult, Payload: &models.ScanResult{
		ScanID:            req.ScanID,
		URL:               req.URL,
		PagesScannedCount: 2,
	}}
	close(out)
	return out
}

func TestSchedulerRunsDueSitesAndPersistsState(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	cfg := config.Default()
	cfg.StorageDir = t.TempDir()
	cfg.OutputDir = ""
	cfg.Sites = map[string]config.SiteConfig{
		"fresh":  {URL: "https://fresh.example.com"},
		"recent": {URL: "https://recent.example.com"},
	}

	// "recent" ran a moment ago and is not due for an hour
	prior := NewStateManager(cfg.StorageDir)
	prior.RecordResult(orchestrate.SiteResult{SiteKey: "recent", Success: true, PagesScanned: 7})
	if err := prior.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	store, err := storage.NewBadgerStore(t.TempDir(), entry)
	if err != nil {
		t.Fatalf("NewBadgerStore() failed: %v", err)
	}
	defer store.Close()

	scanner := &countingScanner{calls: make(chan string, 4)}
	runner := orchestrate.NewRunner(scanner, store, cfg, entry)
	sched := NewScheduler(cfg, runner, []string{"fresh", "recent"}, time.Hour, entry)

	done := make(chan error, 1)
	go func() { done <- sched.Run() }()

	select {
	case url := <-scanner.calls:
		if url != "https://fresh.example.com" {
			t.Errorf("scanned %s, want only the never-scanned site", url)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("due site was not scanned")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		st := sched.GetStatus()["fresh"]
		if !st.NeverRun && !st.Running {
			if !st.LastRunSuccess || st.PagesScanned != 2 || st.LastScanID == "" {
				t.Errorf("fresh status = %+v, want a successful 2-page scan", st)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("state was not recorded for the scanned site")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sched.Stop()
	if err := <-done; err != nil {
		t.Errorf("Run() returned %v", err)
	}

	select {
	case url := <-scanner.calls:
		t.Errorf("unexpected extra scan of %s", url)
	default:
	}

	reloaded := NewStateManager(cfg.StorageDir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if st, ok := reloaded.GetSiteState("fresh"); !ok || st.PagesScanned != 2 {
		t.Errorf("persisted fresh state = %+v (found %v)", st, ok)
	}
	if st, _ := reloaded.GetSiteState("recent"); st.PagesScanned != 7 {
		t.Errorf("recent state was overwritten: %+v", st)
	}
}
