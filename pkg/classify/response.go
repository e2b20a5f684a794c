package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// cleanJSON strips a Markdown code fence and trims text to the outermost
// open...close pair when one exists.
func cleanJSON(text string, open, close byte) string {
	s := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	first := strings.IndexByte(s, open)
	last := strings.LastIndexByte(s, close)
	if first != -1 && last > first {
		s = s[first : last+1]
	}
	return s
}

// rawResult mirrors the oracle's response schema. Pointers distinguish
// missing fields from zero values.
type rawResult struct {
	Key              *string `json:"key"`
	IsTracker        *bool   `json:"isTracker"`
	Category         *string `json:"category"`
	Purpose          *string `json:"purpose"`
	ComplianceStatus *string `json:"complianceStatus"`
	Remediation      *string `json:"remediation"`
}

func (r rawResult) missing() []string {
	var out []string
	if r.Key == nil || *r.Key == "" {
		out = append(out, "key")
	}
	if r.IsTracker == nil {
		out = append(out, "isTracker")
	}
	if r.Category == nil {
		out = append(out, "category")
	}
	if r.Purpose == nil {
		out = append(out, "purpose")
	}
	if r.ComplianceStatus == nil {
		out = append(out, "complianceStatus")
	}
	if r.Remediation == nil {
		out = append(out, "remediation")
	}
	return out
}

// parseBatchResponse decodes and validates a batch response, restoring
// identity keys. Every item of b must come back exactly once with every
// schema field set; anything else is an ErrOracleMalformed so the batch is
// retried instead of losing verdicts.
func parseBatchResponse(text string, b *Batch) ([]models.ClassificationResult, error) {
	cleaned := cleanJSON(text, '[', ']')
	var raw []rawResult
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: batch %d: %w", utils.ErrOracleMalformed, b.Index+1, err)
	}

	out := make([]models.ClassificationResult, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		if miss := r.missing(); len(miss) > 0 {
			return nil, fmt.Errorf("%w: batch %d: result %d lacks %s", utils.ErrOracleMalformed, b.Index+1, i, strings.Join(miss, ","))
		}
		key, ok := b.Resolve(*r.Key)
		if !ok {
			return nil, fmt.Errorf("%w: batch %d: unknown key %q", utils.ErrOracleMalformed, b.Index+1, *r.Key)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: batch %d: duplicate key %q", utils.ErrOracleMalformed, b.Index+1, *r.Key)
		}
		seen[key] = true
		out = append(out, models.ClassificationResult{
			Key:              key,
			IsTracker:        *r.IsTracker,
			Category:         models.ParseCategory(*r.Category),
			Purpose:          *r.Purpose,
			ComplianceStatus: models.ComplianceStatus(*r.ComplianceStatus),
			Remediation:      *r.Remediation,
		})
	}
	if len(out) != b.Len() {
		return nil, fmt.Errorf("%w: batch %d: %d results for %d items", utils.ErrOracleMalformed, b.Index+1, len(out), b.Len())
	}
	return out, nil
}

type rawRisk struct {
	GDPR *models.ComplianceInfo `json:"gdpr"`
	CCPA *models.ComplianceInfo `json:"ccpa"`
}

func parseRiskResponse(text string) (models.ComplianceSummary, error) {
	var raw rawRisk
	if err := json.Unmarshal([]byte(cleanJSON(text, '{', '}')), &raw); err != nil {
		return models.ComplianceSummary{}, fmt.Errorf("%w: risk assessment: %w", utils.ErrOracleMalformed, err)
	}
	if raw.GDPR == nil || raw.CCPA == nil {
		return models.ComplianceSummary{}, fmt.Errorf("%w: risk assessment lacks gdpr or ccpa", utils.ErrOracleMalformed)
	}
	return models.ComplianceSummary{GDPR: *raw.GDPR, CCPA: *raw.CCPA}, nil
}
