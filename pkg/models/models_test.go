package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityKeys(t *testing.T) {
	c := Cookie{Name: "_ga", Domain: ".example.com", Path: "/"}
	assert.Equal(t, "_ga|.example.com|/", c.IdentityKey())

	r := NetworkRequest{URL: "https://www.google-analytics.com/g/collect?v=2", Hostname: "www.google-analytics.com"}
	assert.Equal(t, "https://www.google-analytics.com/g/collect?v=2", r.IdentityKey())

	s := StorageItem{Origin: "https://example.com", Key: "_hjSession"}
	assert.Equal(t, "https://example.com|_hjSession", s.IdentityKey())
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"Necessary", CategoryNecessary},
		{"  necessary ", CategoryNecessary},
		{"Strictly Necessary", CategoryNecessary},
		{"FUNCTIONAL", CategoryFunctional},
		{"Analytics", CategoryAnalytics},
		{"statistics", CategoryAnalytics},
		{"Marketing", CategoryMarketing},
		{"advertising", CategoryMarketing},
		{"", CategoryUnknown},
		{"Social", CategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCategory(tt.in), "ParseCategory(%q)", tt.in)
	}
}

func TestRiskLevel_Rank(t *testing.T) {
	assert.Less(t, RiskLow.Rank(), RiskMedium.Rank())
	assert.Less(t, RiskMedium.Rank(), RiskHigh.Rank())
	assert.Less(t, RiskHigh.Rank(), RiskCritical.Rank())
	assert.Equal(t, 0, RiskLevel("bogus").Rank())
}

func TestEvent_IsTerminal(t *testing.T) {
	assert.False(t, Event{Type: EventLog}.IsTerminal())
	assert.True(t, Event{Type: EventResult}.IsTerminal())
	assert.True(t, Event{Type: EventError}.IsTerminal())
}
