package models

import "time"

// ScanStatus is the lifecycle state of a persisted scan record.
type ScanStatus string

const (
	ScanStatusUnset     ScanStatus = ""          // Zero value = unset/unknown
	ScanStatusPending   ScanStatus = "pending"   // Accepted, not started
	ScanStatusRunning   ScanStatus = "running"   // Browser session active
	ScanStatusCompleted ScanStatus = "completed" // Report stored
	ScanStatusFailed    ScanStatus = "failed"    // Terminal error event emitted
	ScanStatusCancelled ScanStatus = "cancelled" // Stopped by the caller
)

// String implements fmt.Stringer for logging
func (s ScanStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ScanStatus) IsValid() bool {
	switch s {
	case ScanStatusPending, ScanStatusRunning, ScanStatusCompleted, ScanStatusFailed, ScanStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true once the scan can no longer change state
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusCancelled
}

// ScanRecord is the persisted bookkeeping for one scan. The report itself is
// stored separately.
type ScanRecord struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Depth      string     `json:"depth"`
	SiteKey    string     `json:"site_key,omitempty"`
	Status     ScanStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Log        []string   `json:"log,omitempty"`
	Pages      int        `json:"pages,omitempty"`
	GDPRRisk   RiskLevel  `json:"gdpr_risk,omitempty"`
	CCPARisk   RiskLevel  `json:"ccpa_risk,omitempty"`
}

// RecentLog returns at most n of the newest log lines.
func (r *ScanRecord) RecentLog(n int) []string {
	if n <= 0 || len(r.Log) <= n {
		return append([]string(nil), r.Log...)
	}
	return append([]string(nil), r.Log[len(r.Log)-n:]...)
}
