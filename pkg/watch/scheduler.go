// Package watch re-scans configured sites on a fixed interval and remembers
// the last outcome per site across restarts.
package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
)

// Scheduler manages periodic scanning of sites
type Scheduler struct {
	appCfg       *config.AppConfig
	runner       *orchestrate.Runner
	siteKeys     []string
	interval     time.Duration
	log          *logrus.Entry
	stateManager *StateManager

	// Sites with a scan in flight are not started again
	mu       sync.Mutex
	inFlight map[string]bool
	active   []*orchestrate.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new watch scheduler. State lives in appCfg.StorageDir.
func NewScheduler(appCfg *config.AppConfig, runner *orchestrate.Runner, siteKeys []string, interval time.Duration, log *logrus.Entry) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		appCfg:       appCfg,
		runner:       runner,
		siteKeys:     siteKeys,
		interval:     interval,
		log:          log,
		stateManager: NewStateManager(appCfg.StorageDir),
		inFlight:     make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Run starts the watch scheduler and blocks until stopped
func (s *Scheduler) Run() error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d sites with interval %s", len(s.siteKeys), FormatInterval(s.interval))
	s.logSchedule()

	s.runDueSites()

	ticker := time.NewTicker(s.calculateTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.mu.Lock()
			for _, orch := range s.active {
				orch.Cancel()
			}
			s.mu.Unlock()
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDueSites()
		}
	}
}

// Stop stops the scheduler and cancels scans in progress
func (s *Scheduler) Stop() {
	s.log.Info("Stopping watch scheduler...")
	s.cancel()
}

// runDueSites starts one orchestrated batch for every due site not already running
func (s *Scheduler) runDueSites() {
	s.mu.Lock()
	var dueSites []string
	for _, siteKey := range s.siteKeys {
		if !s.inFlight[siteKey] && s.stateManager.ShouldRun(siteKey, s.interval) {
			dueSites = append(dueSites, siteKey)
			s.inFlight[siteKey] = true
		}
	}
	if len(dueSites) == 0 {
		s.mu.Unlock()
		s.logNextRun()
		return
	}
	orch := orchestrate.NewOrchestrator(s.appCfg, s.runner, dueSites, s.log)
	s.active = append(s.active, orch)
	s.mu.Unlock()

	s.log.Infof("Running scans for %d due sites: %v", len(dueSites), dueSites)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		results := orch.Run()
		for _, result := range results {
			s.stateManager.RecordResult(result)
		}
		if err := s.stateManager.Save(); err != nil {
			s.log.Errorf("Failed to save watch state: %v", err)
		}

		s.mu.Lock()
		for _, key := range dueSites {
			delete(s.inFlight, key)
		}
		for i, o := range s.active {
			if o == orch {
				s.active = append(s.active[:i], s.active[i+1:]...)
				break
			}
		}
		s.mu.Unlock()

		s.logNextRun()
	}()
}

// calculateTickInterval returns how often to check for due sites
func (s *Scheduler) calculateTickInterval() time.Duration {
	// Every 1/10th of the interval, clamped to [1m, 10m]
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, siteKey := range s.siteKeys {
		state, exists := s.stateManager.GetSiteState(siteKey)
		if !exists {
			s.log.Infof("  %s: never scanned, will scan immediately", siteKey)
			continue
		}
		status := "success"
		if !state.LastRunSuccess {
			status = "failed"
		}
		s.log.Infof("  %s: last scan %s (%s, %d pages, GDPR %s), next scan %s",
			siteKey,
			state.LastRunTime.Format(time.RFC3339),
			status,
			state.PagesScanned,
			state.GDPRRisk,
			s.stateManager.GetNextRunTime(siteKey, s.interval).Format(time.RFC3339))
	}
}

func (s *Scheduler) logNextRun() {
	type nextRun struct {
		site string
		at   time.Time
	}
	runs := make([]nextRun, 0, len(s.siteKeys))
	for _, siteKey := range s.siteKeys {
		runs = append(runs, nextRun{siteKey, s.stateManager.GetNextRunTime(siteKey, s.interval)})
	}
	if len(runs) == 0 {
		return
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].at.Before(runs[j].at) })

	next := runs[0]
	until := time.Until(next.at)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next scan: %s in %v (at %s)", next.site, until.Round(time.Second), next.at.Format("15:04:05"))
}

// GetStatus returns the current status of all watched sites
func (s *Scheduler) GetStatus() map[string]SiteStatus {
	status := make(map[string]SiteStatus, len(s.siteKeys))
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, siteKey := range s.siteKeys {
		state, exists := s.stateManager.GetSiteState(siteKey)
		status[siteKey] = SiteStatus{
			SiteState:   state,
			SiteKey:     siteKey,
			NextRunTime: s.stateManager.GetNextRunTime(siteKey, s.interval),
			NeverRun:    !exists,
			Running:     s.inFlight[siteKey],
		}
	}
	return status
}

// SiteStatus contains the status of a watched site
type SiteStatus struct {
	SiteState
	SiteKey     string
	NextRunTime time.Time
	NeverRun    bool
	Running     bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for a day suffix (7d, 1d12h)
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
