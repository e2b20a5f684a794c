package models

import (
	"strings"
	"time"
)

// CrawlTarget is a URL waiting in the frontier. Lower priority dequeues first.
type CrawlTarget struct {
	URL      string
	Priority int
}

// ConsentPhase identifies the consent condition a capture was taken under.
type ConsentPhase string

const (
	PhasePreConsent     ConsentPhase = "pre-consent"
	PhasePostRejection  ConsentPhase = "post-rejection"
	PhasePostAcceptance ConsentPhase = "post-acceptance"
)

// AllPhases lists the phases in the order the entry page passes through them.
var AllPhases = []ConsentPhase{PhasePreConsent, PhasePostRejection, PhasePostAcceptance}

// Cookie is a browser cookie as read from the cookie jar.
type Cookie struct {
	Name     string  `json:"name" yaml:"name"`
	Value    string  `json:"value" yaml:"value"`
	Domain   string  `json:"domain" yaml:"domain"`
	Path     string  `json:"path" yaml:"path"`
	Expires  float64 `json:"expires" yaml:"expires"` // unix seconds, -1 for session cookies
	Size     int64   `json:"size" yaml:"size"`
	HTTPOnly bool    `json:"http_only" yaml:"http_only"`
	Secure   bool    `json:"secure" yaml:"secure"`
	Session  bool    `json:"session" yaml:"session"`
	SameSite string  `json:"same_site,omitempty" yaml:"same_site,omitempty"`
}

// IdentityKey is name|domain|path.
func (c Cookie) IdentityKey() string {
	return c.Name + "|" + c.Domain + "|" + c.Path
}

// NetworkRequest is a third-party request observed during a capture window.
type NetworkRequest struct {
	URL      string `json:"url" yaml:"url"`
	Hostname string `json:"hostname" yaml:"hostname"`
}

// IdentityKey is the destination URL.
func (r NetworkRequest) IdentityKey() string { return r.URL }

// StorageItem is a localStorage or sessionStorage entry.
type StorageItem struct {
	Origin  string `json:"origin" yaml:"origin"`
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	PageURL string `json:"page_url" yaml:"page_url"`
	Area    string `json:"area,omitempty" yaml:"area,omitempty"` // "local" or "session"
}

// IdentityKey is origin|key.
func (s StorageItem) IdentityKey() string { return s.Origin + "|" + s.Key }

// GoogleConsentStatus reports Google Consent Mode v2 state found on a page.
type GoogleConsentStatus struct {
	Detected bool   `json:"detected" yaml:"detected"`
	Status   string `json:"status" yaml:"status"`
}

// PageCapture is everything collected from one page view in one phase.
type PageCapture struct {
	Cookies       []Cookie
	Requests      []NetworkRequest
	Storage       []StorageItem
	GoogleConsent GoogleConsentStatus
}

// ItemType is the kind of identity sent to the classification oracle.
type ItemType string

const (
	ItemCookie           ItemType = "cookie"
	ItemNetworkRequest   ItemType = "network_request"
	ItemStorage          ItemType = "storage"
	ItemThirdPartyDomain ItemType = "third_party_domain"
)

// Category is the data-collection category assigned to an identity.
type Category string

const (
	CategoryNecessary  Category = "Necessary"
	CategoryFunctional Category = "Functional"
	CategoryAnalytics  Category = "Analytics"
	CategoryMarketing  Category = "Marketing"
	CategoryUnknown    Category = "Unknown"
)

// ParseCategory maps a free-form category string onto a known Category,
// case-insensitively. Anything unrecognised becomes CategoryUnknown.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "necessary", "strictly necessary", "essential":
		return CategoryNecessary
	case "functional", "functionality", "preferences":
		return CategoryFunctional
	case "analytics", "statistics", "performance":
		return CategoryAnalytics
	case "marketing", "advertising", "targeting":
		return CategoryMarketing
	}
	return CategoryUnknown
}

// ComplianceStatus is the resolved verdict for an identity.
type ComplianceStatus string

const (
	StatusCompliant          ComplianceStatus = "Compliant"
	StatusPreConsentIssue    ComplianceStatus = "Pre-Consent Potential Issue"
	StatusPostRejectionIssue ComplianceStatus = "Post-Rejection Potential Issue"
	StatusUnknown            ComplianceStatus = "Unknown"
)

// ClassificationResult is one oracle verdict, keyed by the true identity key
// once the synthetic batch key has been mapped back.
type ClassificationResult struct {
	Key              string           `json:"key"`
	IsTracker        bool             `json:"isTracker"`
	Category         Category         `json:"category"`
	Purpose          string           `json:"purpose"`
	ComplianceStatus ComplianceStatus `json:"complianceStatus"`
	Remediation      string           `json:"remediation"`
}

// CookieParty distinguishes first- from third-party cookies.
type CookieParty string

const (
	PartyFirst CookieParty = "First"
	PartyThird CookieParty = "Third"
)

// CookieInfo is a classified cookie in the final report.
type CookieInfo struct {
	Key                    string           `json:"key" yaml:"key"`
	Name                   string           `json:"name" yaml:"name"`
	Provider               string           `json:"provider" yaml:"provider"`
	Category               Category         `json:"category" yaml:"category"`
	Expiry                 string           `json:"expiry" yaml:"expiry"`
	Purpose                string           `json:"purpose" yaml:"purpose"`
	Party                  CookieParty      `json:"party" yaml:"party"`
	IsHTTPOnly             bool             `json:"is_http_only" yaml:"is_http_only"`
	IsSecure               bool             `json:"is_secure" yaml:"is_secure"`
	ComplianceStatus       ComplianceStatus `json:"compliance_status" yaml:"compliance_status"`
	Remediation            string           `json:"remediation" yaml:"remediation"`
	PagesFound             []string         `json:"pages_found" yaml:"pages_found"`
	States                 []ConsentPhase   `json:"states" yaml:"states"`
	OneTrustClassification string           `json:"onetrust_classification,omitempty" yaml:"onetrust_classification,omitempty"`
	DatabaseClassification string           `json:"database_classification,omitempty" yaml:"database_classification,omitempty"`
}

// TrackerInfo is a network request the oracle flagged as a tracker.
type TrackerInfo struct {
	Key                    string           `json:"key" yaml:"key"`
	Hostname               string           `json:"hostname" yaml:"hostname"`
	Category               Category         `json:"category" yaml:"category"`
	ComplianceStatus       ComplianceStatus `json:"compliance_status" yaml:"compliance_status"`
	Remediation            string           `json:"remediation" yaml:"remediation"`
	PagesFound             []string         `json:"pages_found" yaml:"pages_found"`
	States                 []ConsentPhase   `json:"states" yaml:"states"`
	DatabaseClassification string           `json:"database_classification,omitempty" yaml:"database_classification,omitempty"`
	OneTrustClassification string           `json:"onetrust_classification,omitempty" yaml:"onetrust_classification,omitempty"`
}

// StorageInfo is a classified web-storage entry.
type StorageInfo struct {
	Key                    string           `json:"key" yaml:"key"`
	Origin                 string           `json:"origin" yaml:"origin"`
	StorageKey             string           `json:"storage_key" yaml:"storage_key"`
	Category               Category         `json:"category" yaml:"category"`
	ComplianceStatus       ComplianceStatus `json:"compliance_status" yaml:"compliance_status"`
	Remediation            string           `json:"remediation" yaml:"remediation"`
	Purpose                string           `json:"purpose" yaml:"purpose"`
	PagesFound             []string         `json:"pages_found" yaml:"pages_found"`
	States                 []ConsentPhase   `json:"states" yaml:"states"`
	OneTrustClassification string           `json:"onetrust_classification,omitempty" yaml:"onetrust_classification,omitempty"`
}

// DomainInfo is a third-party hostname contacted during the scan.
type DomainInfo struct {
	Hostname               string           `json:"hostname" yaml:"hostname"`
	Count                  int              `json:"count" yaml:"count"`
	PagesFound             []string         `json:"pages_found" yaml:"pages_found"`
	Category               Category         `json:"category" yaml:"category"`
	ComplianceStatus       ComplianceStatus `json:"compliance_status" yaml:"compliance_status"`
	Remediation            string           `json:"remediation" yaml:"remediation"`
	States                 []ConsentPhase   `json:"states" yaml:"states"`
	OneTrustClassification string           `json:"onetrust_classification,omitempty" yaml:"onetrust_classification,omitempty"`
}

// RiskLevel grades regulatory exposure.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// Rank orders risk levels; unknown values rank lowest.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 0
}

// ComplianceInfo is a per-regime risk assessment.
type ComplianceInfo struct {
	RiskLevel  RiskLevel `json:"riskLevel" yaml:"risk_level"`
	Assessment string    `json:"assessment" yaml:"assessment"`
}

// ComplianceSummary holds the GDPR and CCPA assessments.
type ComplianceSummary struct {
	GDPR ComplianceInfo `json:"gdpr" yaml:"gdpr"`
	CCPA ComplianceInfo `json:"ccpa" yaml:"ccpa"`
}

// PageRef is a visited page.
type PageRef struct {
	URL string `json:"url" yaml:"url"`
}

// ScanResult is the terminal payload of a scan.
type ScanResult struct {
	ScanID                string              `json:"scan_id,omitempty" yaml:"scan_id,omitempty"`
	URL                   string              `json:"url" yaml:"url"`
	Depth                 string              `json:"depth" yaml:"depth"`
	StartedAt             time.Time           `json:"started_at" yaml:"started_at"`
	FinishedAt            time.Time           `json:"finished_at" yaml:"finished_at"`
	UniqueCookies         []CookieInfo        `json:"unique_cookies" yaml:"unique_cookies"`
	UniqueTrackers        []TrackerInfo       `json:"unique_trackers" yaml:"unique_trackers"`
	UniqueLocalStorage    []StorageInfo       `json:"unique_local_storage" yaml:"unique_local_storage"`
	ThirdPartyDomains     []DomainInfo        `json:"third_party_domains" yaml:"third_party_domains"`
	Pages                 []PageRef           `json:"pages" yaml:"pages"`
	ScreenshotBase64      string              `json:"screenshot_base64,omitempty" yaml:"screenshot_base64,omitempty"`
	Compliance            ComplianceSummary   `json:"compliance" yaml:"compliance"`
	ConsentBannerDetected bool                `json:"consent_banner_detected" yaml:"consent_banner_detected"`
	CookiePolicyDetected  bool                `json:"cookie_policy_detected" yaml:"cookie_policy_detected"`
	PagesScannedCount     int                 `json:"pages_scanned_count" yaml:"pages_scanned_count"`
	GoogleConsentV2       GoogleConsentStatus `json:"google_consent_v2" yaml:"google_consent_v2"`
	CMPProvider           string              `json:"cmp_provider" yaml:"cmp_provider"`
}

// EventType tags entries in a scan's event stream.
type EventType string

const (
	EventLog    EventType = "log"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one item of the stream a scan emits: any number of log events
// followed by exactly one result or error.
type Event struct {
	Type    EventType   `json:"type"`
	Message string      `json:"message,omitempty"`
	Payload *ScanResult `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	return e.Type == EventResult || e.Type == EventError
}
