package report

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/cookie-scanner/pkg/aggregate"
	"github.com/Sriram-PR/cookie-scanner/pkg/classify"
	"github.com/Sriram-PR/cookie-scanner/pkg/cookiedb"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestHumanExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	at := func(d time.Duration) models.Cookie {
		return models.Cookie{Expires: float64(now.Add(d).Unix())}
	}
	day := 24 * time.Hour
	tests := []struct {
		c    models.Cookie
		want string
	}{
		{models.Cookie{Session: true}, "Session"},
		{models.Cookie{Expires: -1}, "Session"},
		{at(-time.Minute), "Expired"},
		{at(30 * time.Minute), "30 minutes"},
		{at(5 * time.Hour), "5 hours"},
		{at(10 * day), "10 days"},
		{at(90 * day), "3 months"},
		{at(365 * day), "1 year"},
		{at(730 * day), "2 years"},
		{at(548 * day), "1.5 years"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanExpiry(tt.c, now))
	}
}

func TestPartyOf(t *testing.T) {
	assert.Equal(t, models.PartyFirst, PartyOf(".example.com", "www.example.com"))
	assert.Equal(t, models.PartyFirst, PartyOf("example.com", "example.com"))
	assert.Equal(t, models.PartyFirst, PartyOf("shop.example.com", "www.example.com"))
	assert.Equal(t, models.PartyThird, PartyOf(".doubleclick.net", "www.example.com"))
	assert.Equal(t, models.PartyThird, PartyOf("badexample.com", "example.com"))
}

func TestHostLookup(t *testing.T) {
	m := map[string]string{"facebook.com": "Targeting", "example.com": "Strictly Necessary"}
	assert.Equal(t, "Targeting", hostLookup(m, "connect.facebook.com"))
	assert.Equal(t, "Strictly Necessary", hostLookup(m, "example.com"))
	assert.Empty(t, hostLookup(m, "com"))
	assert.Empty(t, hostLookup(m, "google.com"))
	assert.Empty(t, hostLookup(nil, "example.com"))
}

func TestBuild(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := aggregate.New()
	page := "https://www.example.com/"
	agg.Merge(models.PageCapture{
		Cookies: []models.Cookie{
			{Name: "_ga", Domain: ".example.com", Path: "/", Expires: float64(now.Add(730 * 24 * time.Hour).Unix())},
			{Name: "OptanonConsent", Domain: ".example.com", Path: "/", Session: true},
			{Name: "fr", Domain: ".facebook.com", Path: "/", Session: true},
		},
		Requests: []models.NetworkRequest{
			{URL: "https://connect.facebook.com/tr?id=1", Hostname: "connect.facebook.com"},
			{URL: "https://cdn.example.net/lib.js", Hostname: "cdn.example.net"},
		},
		Storage: []models.StorageItem{{Origin: "https://www.example.com", Key: "prefs"}},
	}, models.PhasePreConsent, page)
	agg.Merge(models.PageCapture{
		Cookies: []models.Cookie{{Name: "_fbp", Domain: ".example.com", Path: "/", Session: true}},
	}, models.PhasePostAcceptance, page)

	results := classify.Results{
		"_ga|.example.com|/":                   {Key: "_ga|.example.com|/", Category: models.CategoryAnalytics, Purpose: "Distinguishes users"},
		"OptanonConsent|.example.com|/":        {Category: models.CategoryNecessary},
		"fr|.facebook.com|/":                   {Category: models.CategoryMarketing},
		"_fbp|.example.com|/":                  {Category: models.CategoryMarketing},
		"https://connect.facebook.com/tr?id=1": {IsTracker: true, Category: models.CategoryMarketing},
		"https://cdn.example.net/lib.js":       {IsTracker: false, Category: models.CategoryFunctional},
		"https://www.example.com|prefs":        {Category: models.CategoryNecessary},
		"connect.facebook.com":                 {Category: models.CategoryMarketing},
		"cdn.example.net":                      {Category: models.CategoryNecessary},
	}

	f := Build(Input{
		TargetURL: "https://www.example.com",
		Agg:       agg,
		Results:   results,
		OneTrust:  map[string]string{"fr": "Targeting Cookies", "OptanonConsent": "Strictly Necessary Cookies"},
		DB:        cookiedb.Default(),
		Now:       now,
	})

	require.Len(t, f.Cookies, 4)
	ga := f.Cookies[0]
	assert.Equal(t, "_ga", ga.Name)
	assert.Equal(t, models.StatusPreConsentIssue, ga.ComplianceStatus)
	assert.Equal(t, "Analytics", ga.DatabaseClassification)
	assert.Equal(t, models.PartyFirst, ga.Party)
	assert.Equal(t, "2 years", ga.Expiry)
	assert.Equal(t, "Distinguishes users", ga.Purpose)
	assert.Contains(t, ga.Remediation, "This Analytics item was detected before user consent")

	optanon := f.Cookies[1]
	assert.Equal(t, models.StatusCompliant, optanon.ComplianceStatus)
	assert.Equal(t, "No purpose determined.", optanon.Purpose)

	fr := f.Cookies[2]
	assert.Equal(t, models.PartyThird, fr.Party)
	assert.Equal(t, models.StatusPreConsentIssue, fr.ComplianceStatus)

	fbp := f.Cookies[3]
	assert.Equal(t, models.StatusCompliant, fbp.ComplianceStatus)
	assert.Equal(t, []models.ConsentPhase{models.PhasePostAcceptance}, fbp.States)
	assert.Equal(t, "No action needed.", fbp.Remediation)

	require.Len(t, f.Trackers, 1, "only requests flagged as trackers")
	tr := f.Trackers[0]
	assert.Equal(t, "connect.facebook.com", tr.Hostname)
	assert.Equal(t, "Targeting Cookies", tr.OneTrustClassification)
	assert.Equal(t, models.StatusPreConsentIssue, tr.ComplianceStatus)

	require.Len(t, f.Storage, 1)
	assert.Equal(t, "prefs", f.Storage[0].StorageKey)
	assert.Equal(t, "Strictly Necessary Cookies", f.Storage[0].OneTrustClassification)
	assert.Equal(t, models.StatusCompliant, f.Storage[0].ComplianceStatus)

	require.Len(t, f.Domains, 2)
	assert.Equal(t, "connect.facebook.com", f.Domains[0].Hostname)
	assert.Equal(t, 1, f.Domains[0].Count)
	assert.Equal(t, models.StatusCompliant, f.Domains[1].ComplianceStatus)

	pre, post := classify.CountIssues(f.Statuses())
	assert.Equal(t, 4, pre)
	assert.Equal(t, 0, post)
}

func TestBuild_MissingVerdict(t *testing.T) {
	agg := aggregate.New()
	agg.Merge(models.PageCapture{
		Cookies:  []models.Cookie{{Name: "mystery", Domain: "example.com", Path: "/"}},
		Requests: []models.NetworkRequest{{URL: "https://t.example/x", Hostname: "t.example"}},
	}, models.PhasePreConsent, "https://example.com/")

	f := Build(Input{TargetURL: "https://example.com", Agg: agg})
	require.Len(t, f.Cookies, 1)
	assert.Equal(t, models.CategoryUnknown, f.Cookies[0].Category)
	assert.Equal(t, models.StatusPreConsentIssue, f.Cookies[0].ComplianceStatus, "an unclassified cookie is not presumed necessary")
	assert.Empty(t, f.Trackers)
	require.Len(t, f.Domains, 1)
	assert.Equal(t, models.CategoryUnknown, f.Domains[0].Category)
	assert.Equal(t, models.StatusPreConsentIssue, f.Domains[0].ComplianceStatus)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	res := &models.ScanResult{
		URL:           "https://www.example.com/",
		FinishedAt:    time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		UniqueCookies: []models.CookieInfo{{Name: "_ga"}},
	}

	path, err := Write(dir, "json", res, testLog())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "www.example.com_20250304-050607.json"), path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var back models.ScanResult
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "_ga", back.UniqueCookies[0].Name)

	path, err = Write(dir, "yaml", res, testLog())
	require.NoError(t, err)
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &m))
	assert.Equal(t, "https://www.example.com/", m["url"])

	_, err = Write(dir, "xml", res, testLog())
	assert.Error(t, err)
}
