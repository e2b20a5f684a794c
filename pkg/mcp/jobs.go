package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
)

// jobLogLines is how many progress lines a job keeps in memory
const jobLogLines = 200

// Job represents a background scan. Its ID doubles as the scan ID, so a
// finished job's report is fetched with the same identifier.
type Job struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	SiteKey      string            `json:"site_key,omitempty"`
	Depth        string            `json:"depth"`
	Status       models.ScanStatus `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at,omitempty"`
	PagesScanned int               `json:"pages_scanned"`
	GDPRRisk     models.RiskLevel  `json:"gdpr_risk,omitempty"`
	CCPARisk     models.RiskLevel  `json:"ccpa_risk,omitempty"`
	ReportPath   string            `json:"report_path,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`

	logs   []string
	ctx    context.Context
	cancel context.CancelFunc
}

// RecentLogs returns up to n of the newest progress lines (all when n <= 0)
func (j *Job) RecentLogs(n int) []string {
	if n <= 0 || len(j.logs) <= n {
		return append([]string(nil), j.logs...)
	}
	return append([]string(nil), j.logs[len(j.logs)-n:]...)
}

// JobManager manages background scan jobs. At most one job per target URL
// is active at a time.
type JobManager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	byURL map[string]string // target URL -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:  make(map[string]*Job),
		byURL: make(map[string]string),
	}
}

// CreateJob registers a pending job for url. If one is already active for
// url it is returned instead and created is false.
func (m *JobManager) CreateJob(url, siteKey, depth string) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, exists := m.byURL[url]; exists {
		if existing := m.jobs[existingID]; existing != nil && !existing.Status.IsTerminal() {
			return existing.snapshot(), false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        orchestrate.NewScanID(),
		URL:       url,
		SiteKey:   siteKey,
		Depth:     depth,
		Status:    models.ScanStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[j.ID] = j
	m.byURL[url] = j.ID
	return j.snapshot(), true
}

// snapshot copies the exported state so callers can read it without the lock
func (j *Job) snapshot() *Job {
	c := *j
	c.logs = append([]string(nil), j.logs...)
	c.ctx, c.cancel = nil, nil
	return &c
}

// GetJob returns a copy of the job, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[jobID]; ok {
		return job.snapshot()
	}
	return nil
}

// GetJobByURL returns a copy of the active job for url, or nil
func (m *JobManager) GetJobByURL(url string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if jobID, exists := m.byURL[url]; exists {
		if job := m.jobs[jobID]; job != nil {
			return job.snapshot()
		}
	}
	return nil
}

// IsRunning checks if a job is active for url
func (m *JobManager) IsRunning(url string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if jobID, exists := m.byURL[url]; exists {
		job := m.jobs[jobID]
		return job != nil && !job.Status.IsTerminal()
	}
	return false
}

// AppendLog records a progress line, dropping the oldest beyond jobLogLines
func (m *JobManager) AppendLog(jobID, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return
	}
	job.logs = append(job.logs, line)
	if over := len(job.logs) - jobLogLines; over > 0 {
		job.logs = append([]string(nil), job.logs[over:]...)
	}
}

// UpdateStatus updates the status of a job. A cancelled job stays cancelled.
func (m *JobManager) UpdateStatus(jobID string, status models.ScanStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status == models.ScanStatusCancelled {
		return
	}
	job.Status = status
	if status.IsTerminal() {
		job.cancel()
		job.CompletedAt = time.Now()
		delete(m.byURL, job.URL)
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// SetOutcome copies the summary of a finished scan onto the job
func (m *JobManager) SetOutcome(jobID string, outcome *orchestrate.Outcome) {
	if outcome == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}
	job.ReportPath = outcome.ReportPath
	if r := outcome.Result; r != nil {
		job.PagesScanned = r.PagesScannedCount
		job.GDPRRisk = r.Compliance.GDPR.RiskLevel
		job.CCPARisk = r.Compliance.CCPA.RiskLevel
	}
}

// CancelJob cancels an active job. Returns false if it was not active.
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.IsTerminal() {
		return false
	}
	job.cancel()
	job.Status = models.ScanStatusCancelled
	job.CompletedAt = time.Now()
	delete(m.byURL, job.URL)
	return true
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if !job.Status.IsTerminal() {
			job.cancel()
			job.Status = models.ScanStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byURL = make(map[string]string)
}

// ListJobs returns copies of all jobs, newest first
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs
}

// GetContext returns the context for a job (for running the scan)
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
