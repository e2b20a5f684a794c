package detect

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
	"github.com/Sriram-PR/cookie-scanner/pkg/browser/browsertest"
	"github.com/Sriram-PR/cookie-scanner/pkg/config"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestDetector_Detect(t *testing.T) {
	var sawBanner []bool
	fake := &browsertest.Fake{Probe: func(_ *browsertest.Fake, _, name, expr string) (any, error) {
		if name != ProbeSnapshot {
			return nil, nil
		}
		var p snapshotParams
		if err := browser.ProbeParams(expr, &p); err != nil {
			return nil, err
		}
		sawBanner = append(sawBanner, p.Banner)
		return Snapshot{
			ViewportWidth: vw, ViewportHeight: vh,
			Candidates: []Candidate{bannerLike()},
			Links:      []Link{{Text: "Cookie policy", Href: "/cookies"}},
		}, nil
	}}

	d := NewDetector(config.DetectionConfig{BannerThreshold: 8}, testLogger())
	res, err := d.Detect(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, Result{BannerDetected: true, PolicyDetected: true}, res)

	found, err := d.DetectPolicy(context.Background(), fake)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []bool{true, false}, sawBanner)
}

func TestDetector_DetectCMP(t *testing.T) {
	d := NewDetector(config.DetectionConfig{}, testLogger())

	fake := &browsertest.Fake{Probe: func(_ *browsertest.Fake, _, name, expr string) (any, error) {
		if name == ProbeCMP {
			var p struct{ Markers []CMPMarker }
			require.NoError(t, browser.ProbeParams(expr, &p))
			require.Equal(t, CMPMarkers, p.Markers)
			return CMPCookiebot, nil
		}
		return nil, nil
	}}
	assert.Equal(t, CMPCookiebot, d.DetectCMP(context.Background(), fake))

	broken := &browsertest.Fake{Probe: func(*browsertest.Fake, string, string, string) (any, error) {
		return nil, errors.New("execution context was destroyed")
	}}
	assert.Equal(t, CMPUnknown, d.DetectCMP(context.Background(), broken))
	assert.Empty(t, d.OneTrustCategories(context.Background(), broken))
}

func TestDetector_OneTrustCategories(t *testing.T) {
	fake := &browsertest.Fake{Probe: func(_ *browsertest.Fake, _, name, _ string) (any, error) {
		if name == ProbeOneTrust {
			return map[string]string{"OptanonConsent": "Strictly Necessary Cookies", "_ga": "Performance Cookies"}, nil
		}
		return nil, nil
	}}
	d := NewDetector(config.DetectionConfig{}, testLogger())
	got := d.OneTrustCategories(context.Background(), fake)
	assert.Equal(t, "Performance Cookies", got["_ga"])
	assert.Len(t, got, 2)
}

func TestDetector_SettleHonoursCancel(t *testing.T) {
	d := NewDetector(config.DetectionConfig{SettleDelay: time.Hour}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, &browsertest.Fake{})
	assert.ErrorIs(t, err, context.Canceled)
}
