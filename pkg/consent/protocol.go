// Package consent drives a page through the consent conditions a scan
// compares: before any choice, after rejecting and after accepting.
package consent

import (
	"context"
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
	"github.com/Sriram-PR/cookie-scanner/pkg/collect"
	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/detect"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// Reporter receives the human-readable progress lines of a scan.
type Reporter interface {
	Logf(format string, args ...any)
}

// PhaseCapture is one capture tagged with the phase it was taken in.
type PhaseCapture struct {
	Phase   models.ConsentPhase
	Capture models.PageCapture
}

// PageOutcome is what a single page visit produced. Captures holds whatever
// was collected before any failure.
type PageOutcome struct {
	URL      string
	Captures []PhaseCapture

	BannerDetected bool
	PolicyDetected bool
	CMPProvider    string
	OneTrust       map[string]string
	Screenshot     string // base64 JPEG, entry page only
	Rejected       bool
	Accepted       bool
}

// Protocol runs the per-page consent procedure.
type Protocol struct {
	browserCfg config.BrowserConfig
	scanCfg    config.ScanConfig
	detector   *detect.Detector
	collector  *collect.Collector
	log        *logrus.Entry
}

// NewProtocol creates a Protocol.
func NewProtocol(cfg *config.AppConfig, detector *detect.Detector, collector *collect.Collector, log *logrus.Entry) *Protocol {
	return &Protocol{
		browserCfg: cfg.Browser,
		scanCfg:    cfg.Scan,
		detector:   detector,
		collector:  collector,
		log:        log.WithField("component", "consent"),
	}
}

// VisitEntry runs the full protocol on the first page of a scan:
// navigate, detect, screenshot, capture pre-consent, reject and capture,
// reload, accept and capture. A nil outcome means navigation failed; a
// non-nil outcome with an error means a later step failed.
func (p *Protocol) VisitEntry(ctx context.Context, drv browser.Driver, pageURL, rootHost string, rep Reporter) (*PageOutcome, error) {
	if err := drv.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	out := &PageOutcome{URL: pageURL, CMPProvider: detect.CMPUnknown, OneTrust: map[string]string{}}
	if !drv.WaitNetworkIdle(ctx, p.browserCfg.EntryIdleTime, p.browserCfg.EntryIdleTimeout) {
		p.log.Debug("Network did not idle on entry page, proceeding")
	}

	res, err := p.detector.Detect(ctx, drv)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		p.log.Warnf("Banner/policy detection failed: %v", err)
	}
	out.BannerDetected = res.BannerDetected
	out.PolicyDetected = res.PolicyDetected
	if out.BannerDetected {
		rep.Logf("Consent banner detected.")
	} else {
		rep.Logf("Warning: Consent banner not detected.")
	}
	if out.PolicyDetected {
		rep.Logf("Cookie/Privacy Policy link found on %s", pageURL)
	}

	out.CMPProvider = p.detector.DetectCMP(ctx, drv)
	rep.Logf("Detected Consent Management Platform: %s", out.CMPProvider)
	if out.CMPProvider == detect.CMPOneTrust {
		rep.Logf("Attempting to extract OneTrust classifications...")
		out.OneTrust = p.detector.OneTrustCategories(ctx, drv)
	}

	rep.Logf("Performing 3-stage consent analysis on entry page...")
	if config.BoolOr(p.scanCfg.CaptureScreenshot, true) {
		if shot, err := drv.Screenshot(ctx, p.scanCfg.ScreenshotQuality); err != nil {
			p.log.Warnf("Screenshot failed: %v", err)
		} else {
			out.Screenshot = base64.StdEncoding.EncodeToString(shot)
		}
	}

	if err := p.capture(ctx, drv, out, models.PhasePreConsent, rootHost); err != nil {
		return out, err
	}

	_, out.Rejected = FindAndClick(ctx, drv, ActionReject, p.browserCfg.EntryIdleTime, p.browserCfg.ClickIdleTimeout, p.log)
	if err := p.capture(ctx, drv, out, models.PhasePostRejection, rootHost); err != nil {
		return out, err
	}

	if err := drv.Reload(ctx); err != nil {
		return out, err
	}
	drv.WaitNetworkIdle(ctx, p.browserCfg.EntryIdleTime, p.browserCfg.EntryIdleTimeout)
	_, out.Accepted = FindAndClick(ctx, drv, ActionAccept, p.browserCfg.EntryIdleTime, p.browserCfg.ClickIdleTimeout, p.log)
	if err := p.capture(ctx, drv, out, models.PhasePostAcceptance, rootHost); err != nil {
		return out, err
	}
	return out, nil
}

// VisitSubsequent navigates to a later page and takes one post-acceptance
// capture. The policy heuristic runs only when checkPolicy is set.
func (p *Protocol) VisitSubsequent(ctx context.Context, drv browser.Driver, pageURL, rootHost string, checkPolicy bool, rep Reporter) (*PageOutcome, error) {
	if err := drv.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	out := &PageOutcome{URL: pageURL}

	if checkPolicy {
		found, err := p.detector.DetectPolicy(ctx, drv)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			p.log.Debugf("Policy detection failed on %s: %v", pageURL, err)
		}
		if found {
			out.PolicyDetected = true
			rep.Logf("Cookie/Privacy Policy link found on %s", pageURL)
		}
	}

	if err := p.capture(ctx, drv, out, models.PhasePostAcceptance, rootHost); err != nil {
		return out, err
	}
	return out, nil
}

func (p *Protocol) capture(ctx context.Context, drv browser.Driver, out *PageOutcome, phase models.ConsentPhase, rootHost string) error {
	c, err := p.collector.Capture(ctx, drv, rootHost)
	if err != nil {
		return err
	}
	out.Captures = append(out.Captures, PhaseCapture{Phase: phase, Capture: c})
	return nil
}
