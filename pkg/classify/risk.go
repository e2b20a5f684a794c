package classify

import (
	"fmt"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// CountIssues tallies pre-consent and post-rejection statuses.
func CountIssues(statuses []models.ComplianceStatus) (pre, post int) {
	for _, s := range statuses {
		switch s {
		case models.StatusPreConsentIssue:
			pre++
		case models.StatusPostRejectionIssue:
			post++
		}
	}
	return pre, post
}

// RiskFloor is the lowest level the issue counts allow.
func RiskFloor(pre, post int) models.RiskLevel {
	switch {
	case pre > 0 && post > 0:
		return models.RiskCritical
	case pre > 0 || post > 0:
		return models.RiskHigh
	}
	return models.RiskLow
}

// DeterministicRisk builds an assessment from the counts alone.
func DeterministicRisk(pre, post int) models.ComplianceSummary {
	level := RiskFloor(pre, post)
	var text string
	if pre+post == 0 {
		text = "No potential compliance issues were detected."
	} else {
		text = fmt.Sprintf("Found %d pre-consent and %d post-rejection potential issues.", pre, post)
	}
	return models.ComplianceSummary{
		GDPR: models.ComplianceInfo{RiskLevel: level, Assessment: text},
		CCPA: models.ComplianceInfo{RiskLevel: level, Assessment: text},
	}
}

// EmptyScanRisk is the assessment for a scan that found nothing.
func EmptyScanRisk() models.ComplianceSummary {
	info := models.ComplianceInfo{RiskLevel: models.RiskLow, Assessment: "No cookies or trackers were detected."}
	return models.ComplianceSummary{GDPR: info, CCPA: info}
}

// applyFloor raises levels below the floor and replaces unknown levels.
func applyFloor(s models.ComplianceSummary, pre, post int) models.ComplianceSummary {
	fallback := DeterministicRisk(pre, post)
	floor := RiskFloor(pre, post)
	fix := func(info, def models.ComplianceInfo) models.ComplianceInfo {
		switch info.RiskLevel {
		case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
		default:
			return def
		}
		if info.RiskLevel.Rank() < floor.Rank() {
			info.RiskLevel = floor
		}
		if info.Assessment == "" {
			info.Assessment = def.Assessment
		}
		return info
	}
	return models.ComplianceSummary{GDPR: fix(s.GDPR, fallback.GDPR), CCPA: fix(s.CCPA, fallback.CCPA)}
}
