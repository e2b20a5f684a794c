package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

func capture() models.PageCapture {
	return models.PageCapture{
		Cookies: []models.Cookie{
			{Name: "_ga", Domain: ".example.com", Path: "/", Value: "first"},
			{Name: "_ga", Domain: ".example.com", Path: "/shop", Value: "other-path"},
		},
		Requests: []models.NetworkRequest{
			{URL: "https://www.google-analytics.com/g/collect", Hostname: "www.google-analytics.com"},
			{URL: "https://www.google-analytics.com/analytics.js", Hostname: "www.google-analytics.com"},
			{URL: "https://connect.facebook.net/en_US/fbevents.js", Hostname: "connect.facebook.net"},
		},
		Storage: []models.StorageItem{{Origin: "https://example.com", Key: "consent", Value: "{}"}},
	}
}

func TestMerge_IdentityAndPhases(t *testing.T) {
	a := New()
	a.Merge(capture(), models.PhasePostAcceptance, "https://example.com/")
	a.Merge(capture(), models.PhasePreConsent, "https://example.com/")

	cookies := a.Cookies()
	require.Len(t, cookies, 2, "same name on a different path is a different identity")
	assert.Equal(t, "_ga|.example.com|/", cookies[0].Key)
	assert.Equal(t, []models.ConsentPhase{models.PhasePreConsent, models.PhasePostAcceptance}, cookies[0].States())
	assert.True(t, cookies[0].HasPhase(models.PhasePreConsent))
	assert.False(t, cookies[0].HasPhase(models.PhasePostRejection))

	c, r, s := a.Counts()
	assert.Equal(t, [3]int{2, 3, 1}, [3]int{c, r, s})
	assert.False(t, a.Empty())
}

func TestMerge_FirstSeenDataKept(t *testing.T) {
	a := New()
	a.Merge(capture(), models.PhasePreConsent, "https://example.com/")

	later := capture()
	later.Cookies[0].Value = "second"
	a.Merge(later, models.PhasePostAcceptance, "https://example.com/about")

	obs := a.Cookies()[0]
	assert.Equal(t, "first", obs.Data.Value)
	assert.Equal(t, []string{"https://example.com/", "https://example.com/about"}, obs.Pages())
}

func TestMerge_Idempotent(t *testing.T) {
	once, twice := New(), New()
	once.Merge(capture(), models.PhasePreConsent, "https://example.com/")
	twice.Merge(capture(), models.PhasePreConsent, "https://example.com/")
	twice.Merge(capture(), models.PhasePreConsent, "https://example.com/")

	require.Equal(t, len(once.Cookies()), len(twice.Cookies()))
	for i := range once.Cookies() {
		assert.Equal(t, once.Cookies()[i].States(), twice.Cookies()[i].States())
		assert.Equal(t, once.Cookies()[i].Pages(), twice.Cookies()[i].Pages())
	}
	assert.Equal(t, once.Requests()[0].Pages(), twice.Requests()[0].Pages())
}

func TestDomains_RegroupByHost(t *testing.T) {
	a := New()
	a.Merge(models.PageCapture{Requests: capture().Requests[:1]}, models.PhasePreConsent, "https://example.com/")
	a.Merge(models.PageCapture{Requests: capture().Requests[1:]}, models.PhasePostAcceptance, "https://example.com/pricing")

	domains := a.Domains()
	require.Len(t, domains, 2)
	ga := domains[0]
	assert.Equal(t, "www.google-analytics.com", ga.Key)
	assert.Equal(t, []models.ConsentPhase{models.PhasePreConsent, models.PhasePostAcceptance}, ga.States())
	assert.Equal(t, []string{"https://example.com/", "https://example.com/pricing"}, ga.Pages())

	fb := domains[1]
	assert.Equal(t, "connect.facebook.net", fb.Data.Hostname)
	assert.Equal(t, []models.ConsentPhase{models.PhasePostAcceptance}, fb.States())
}

func TestEmpty(t *testing.T) {
	a := New()
	assert.True(t, a.Empty())
	a.Merge(models.PageCapture{}, models.PhasePreConsent, "https://example.com/")
	assert.True(t, a.Empty())
	assert.Empty(t, a.Domains())
}
