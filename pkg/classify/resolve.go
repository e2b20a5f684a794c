package classify

import (
	"fmt"
	"strings"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// Sources are the independent classifications known for one identity.
// Empty Database or OneTrust means the source is silent.
type Sources struct {
	Oracle   models.Category
	Database string
	OneTrust string
}

// IsNecessary reports whether every available source agrees the identity is
// necessary. A source that is silent counts as agreement; any source that
// says otherwise makes the identity not necessary. The oracle's Unknown counts
// as silence, and the reference database's Functional counts as agreement.
func IsNecessary(s Sources) bool {
	if s.Oracle != models.CategoryNecessary && s.Oracle != models.CategoryUnknown && s.Oracle != "" {
		return false
	}
	if db := strings.ToLower(strings.TrimSpace(s.Database)); db != "" && db != "necessary" && db != "functional" {
		return false
	}
	if ot := strings.ToLower(s.OneTrust); ot != "" &&
		!strings.Contains(ot, "necessary") && !strings.Contains(ot, "strictly") && !strings.Contains(ot, "essential") {
		return false
	}
	return true
}

// ResolveStatus applies the states rule. Presence before consent outranks
// presence after rejection.
func ResolveStatus(necessary bool, states []models.ConsentPhase) models.ComplianceStatus {
	if necessary {
		return models.StatusCompliant
	}
	has := func(p models.ConsentPhase) bool {
		for _, s := range states {
			if s == p {
				return true
			}
		}
		return false
	}
	switch {
	case has(models.PhasePreConsent):
		return models.StatusPreConsentIssue
	case has(models.PhasePostRejection):
		return models.StatusPostRejectionIssue
	}
	return models.StatusCompliant
}

// Resolve combines IsNecessary and ResolveStatus.
func Resolve(s Sources, states []models.ConsentPhase) models.ComplianceStatus {
	return ResolveStatus(IsNecessary(s), states)
}

// Remediation returns the fixed advice for a status and category.
func Remediation(status models.ComplianceStatus, category models.Category) string {
	if category == "" {
		category = models.CategoryUnknown
	}
	switch status {
	case models.StatusPreConsentIssue:
		return fmt.Sprintf("This %s item was detected before user consent was given. Configure your consent management platform to block this script/cookie until the user explicitly opts in.", category)
	case models.StatusPostRejectionIssue:
		return fmt.Sprintf("This %s item was detected after the user rejected consent. This technology should not be loaded when consent is denied. Check your tag manager triggers and script configurations.", category)
	case models.StatusCompliant:
		return "No action needed."
	}
	return "Analysis incomplete."
}
