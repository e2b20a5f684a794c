package collect

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser/browsertest"
	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestCapture(t *testing.T) {
	var scrolls []string
	fake := &browsertest.Fake{
		OnLoad: func(f *browsertest.Fake, _ string) {
			f.SetCookie(models.Cookie{Name: "_ga", Domain: ".example.com", Path: "/", Expires: -1, Session: true})
			f.FireRequest("https://www.example.com/app.js")
			f.FireRequest("https://www.google-analytics.com/g/collect?v=2")
			f.FireRequest("data:image/png;base64,AAAA")
			f.FireRequest("wss://socket.example.net/live")
		},
		Probe: func(_ *browsertest.Fake, _, name, expr string) (any, error) {
			switch name {
			case ProbeScroll:
				scrolls = append(scrolls, expr)
				return true, nil
			case ProbeStorage:
				return StorageResult{
					Storage:       []models.StorageItem{{Origin: "https://www.example.com", Key: "theme", Value: "dark", Area: "local"}},
					GoogleConsent: models.GoogleConsentStatus{Detected: true, Status: "ad_storage: denied; analytics_storage: denied"},
				}, nil
			}
			return nil, nil
		},
	}

	c := NewCollector(config.BrowserConfig{}, testLogger())
	got, err := c.Capture(context.Background(), fake, "www.example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"reload"}, fake.Calls())
	require.Len(t, got.Cookies, 1)
	assert.Equal(t, "_ga", got.Cookies[0].Name)
	assert.Equal(t, []models.NetworkRequest{{URL: "https://www.google-analytics.com/g/collect?v=2", Hostname: "www.google-analytics.com"}}, got.Requests)
	assert.Len(t, got.Storage, 1)
	assert.True(t, got.GoogleConsent.Detected)
	assert.Len(t, scrolls, 2)
}

func TestCapture_RequestsOutsideWindowIgnored(t *testing.T) {
	fake := &browsertest.Fake{}
	c := NewCollector(config.BrowserConfig{}, testLogger())

	fake.FireRequest("https://tracker.example.net/early")
	got, err := c.Capture(context.Background(), fake, "example.com")
	require.NoError(t, err)
	fake.FireRequest("https://tracker.example.net/late")

	assert.Empty(t, got.Requests)
	assert.Equal(t, models.GoogleConsentStatus{Detected: false, Status: ConsentNotDetected}, got.GoogleConsent)
}

func TestCapture_StorageProbeFailureIsPartial(t *testing.T) {
	fake := &browsertest.Fake{Probe: func(_ *browsertest.Fake, _, name, _ string) (any, error) {
		if name == ProbeStorage {
			return nil, errors.New("SecurityError")
		}
		return nil, nil
	}}
	fake.SetCookie(models.Cookie{Name: "sid", Domain: "example.com", Path: "/"})

	got, err := NewCollector(config.BrowserConfig{}, testLogger()).Capture(context.Background(), fake, "example.com")
	require.NoError(t, err)
	assert.Len(t, got.Cookies, 1)
	assert.Empty(t, got.Storage)
	assert.Equal(t, ConsentNotDetected, got.GoogleConsent.Status)
}

func TestCapture_ReloadFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCollector(config.BrowserConfig{}, testLogger()).Capture(ctx, &browsertest.Fake{}, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbesAreNamed(t *testing.T) {
	assert.Contains(t, ScrollProbe(true), `{"bottom":true}`)
	assert.Contains(t, StorageProbe(), ConsentNotDetected)
}
