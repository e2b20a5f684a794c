package queue

import (
	"net/url"

	"github.com/Sriram-PR/cookie-scanner/pkg/parse"
)

// SectionBuckets caps how many pages of one site section a scan may visit.
type SectionBuckets struct {
	limit  int
	counts map[string]int
}

// NewSectionBuckets creates a counter with the given per-section limit.
func NewSectionBuckets(limit int) *SectionBuckets {
	return &SectionBuckets{limit: limit, counts: make(map[string]int)}
}

// Limit returns the per-section cap.
func (b *SectionBuckets) Limit() int { return b.limit }

// Full reports whether u's section has reached the cap, and the section name.
func (b *SectionBuckets) Full(u *url.URL) (bool, string) {
	bucket := parse.SectionBucket(u)
	return b.counts[bucket] >= b.limit, bucket
}

// Record counts a visit to u's section.
func (b *SectionBuckets) Record(u *url.URL) {
	b.counts[parse.SectionBucket(u)]++
}

// Count returns the visits recorded for a section name such as "/blog".
func (b *SectionBuckets) Count(bucket string) int {
	return b.counts[bucket]
}

// Counts returns a copy of all section counts.
func (b *SectionBuckets) Counts() map[string]int {
	out := make(map[string]int, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}
