package detect

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
	"github.com/Sriram-PR/cookie-scanner/pkg/config"
)

// Probe names, for logs and test fakes.
const (
	ProbeSnapshot = "snapshot"
	ProbeCMP      = "cmp"
	ProbeOneTrust = "onetrust"
)

type snapshotParams struct {
	Banner    bool     `json:"banner"`
	Keywords  []string `json:"keywords"`
	Selectors []string `json:"selectors"`
}

// SnapshotProbe builds the snapshot expression. With banner false only links are collected.
func SnapshotProbe(banner bool) string {
	return browser.Probe(ProbeSnapshot, snapshotProbe, snapshotParams{
		Banner:    banner,
		Keywords:  BannerKeywords,
		Selectors: BannerSelectors,
	})
}

// CMPProbe builds the CMP detection expression.
func CMPProbe() string {
	return browser.Probe(ProbeCMP, cmpProbe, map[string]any{"markers": CMPMarkers})
}

// OneTrustProbe builds the OneTrust classification expression.
func OneTrustProbe() string {
	return browser.Probe(ProbeOneTrust, oneTrustProbe, nil)
}

// Detector runs the page heuristics through a browser driver.
type Detector struct {
	cfg config.DetectionConfig
	log *logrus.Entry
}

// NewDetector creates a Detector.
func NewDetector(cfg config.DetectionConfig, log *logrus.Entry) *Detector {
	return &Detector{cfg: cfg, log: log.WithField("component", "detect")}
}

// settle gives client-side frameworks time to mount a banner.
func (d *Detector) settle(ctx context.Context) error {
	if d.cfg.SettleDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detect looks for a consent banner and a policy link on the current page.
func (d *Detector) Detect(ctx context.Context, drv browser.Driver) (Result, error) {
	if err := d.settle(ctx); err != nil {
		return Result{}, err
	}
	var snap Snapshot
	if err := drv.Evaluate(ctx, SnapshotProbe(true), &snap); err != nil {
		return Result{}, err
	}
	res := Detect(snap, d.cfg.BannerThreshold)
	d.log.WithFields(logrus.Fields{
		"candidates": len(snap.Candidates),
		"links":      len(snap.Links),
		"banner":     res.BannerDetected,
		"policy":     res.PolicyDetected,
	}).Debug("Page heuristics evaluated")
	return res, nil
}

// DetectPolicy only looks for a policy link.
func (d *Detector) DetectPolicy(ctx context.Context, drv browser.Driver) (bool, error) {
	if err := d.settle(ctx); err != nil {
		return false, err
	}
	var snap Snapshot
	if err := drv.Evaluate(ctx, SnapshotProbe(false), &snap); err != nil {
		return false, err
	}
	return PolicyLinkDetected(snap.Links), nil
}

// DetectCMP names the consent-management platform on the page, or "Unknown".
// Probe failures are logged and read as "Unknown".
func (d *Detector) DetectCMP(ctx context.Context, drv browser.Driver) string {
	var provider string
	if err := drv.Evaluate(ctx, CMPProbe(), &provider); err != nil {
		d.log.Warnf("Could not detect CMP: %v", err)
		return CMPUnknown
	}
	if provider == "" {
		return CMPUnknown
	}
	return provider
}

// OneTrustCategories returns cookie name -> OneTrust group name. Empty when
// OneTrust is absent or its data cannot be read.
func (d *Detector) OneTrustCategories(ctx context.Context, drv browser.Driver) map[string]string {
	m := map[string]string{}
	if err := drv.Evaluate(ctx, OneTrustProbe(), &m); err != nil {
		d.log.Warnf("Failed to get OneTrust classifications: %v", err)
		return map[string]string{}
	}
	return m
}
