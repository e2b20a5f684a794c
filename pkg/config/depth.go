package config

import (
	"fmt"
	"strings"

	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// ScanDepth is a named page budget.
type ScanDepth string

const (
	DepthLite       ScanDepth = "lite"
	DepthMedium     ScanDepth = "medium"
	DepthDeep       ScanDepth = "deep"
	DepthEnterprise ScanDepth = "enterprise"
)

var depthPages = map[ScanDepth]int{
	DepthLite:       10,
	DepthMedium:     50,
	DepthDeep:       100,
	DepthEnterprise: 500,
}

// ParseDepth accepts a preset name, case-insensitively. Empty means lite.
func ParseDepth(s string) (ScanDepth, error) {
	d := ScanDepth(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return DepthLite, nil
	}
	if _, ok := depthPages[d]; !ok {
		return "", fmt.Errorf("%w: unknown scan depth %q (want lite, medium, deep or enterprise)", utils.ErrConfigValidation, s)
	}
	return d, nil
}

// MaxPages is the page budget for the preset.
func (d ScanDepth) MaxPages() int {
	if n, ok := depthPages[d]; ok {
		return n
	}
	return depthPages[DepthLite]
}

// BucketLimit is the per-section visit cap: max(minLimit, ceil(maxPages/divisor)).
func BucketLimit(maxPages, divisor, minLimit int) int {
	if divisor <= 0 {
		divisor = 25
	}
	limit := (maxPages + divisor - 1) / divisor
	if limit < minLimit {
		return minLimit
	}
	return limit
}
