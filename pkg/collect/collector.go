// Package collect captures the cookies, third-party requests, web storage and
// Google Consent Mode state of one page view.
package collect

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// Probe names, for logs and test fakes.
const (
	ProbeScroll  = "scroll"
	ProbeStorage = "storage"
)

// Google Consent Mode defaults.
const (
	ConsentNotDetected = "Not Detected"
	ConsentNotChecked  = "Not checked"
)

const scrollProbe = `
const el = document.scrollingElement || document.body;
window.scrollTo(0, params.bottom ? (el ? el.scrollHeight : 0) : 0);
return true;
`

// storageProbe reads both storage areas and the Google Consent Mode v2 state.
// The internal google_tag_data state is preferred; the last dataLayer
// consent default is the fallback.
const storageProbe = `
const items = [];
const origin = window.location.origin, pageUrl = window.location.href;
const readArea = (area, store) => {
  try {
    for (let i = 0; i < store.length; i++) {
      const key = store.key(i);
      if (key) items.push({ origin, key, value: store.getItem(key) || '', page_url: pageUrl, area });
    }
  } catch (e) {}
};
try { readArea('local', window.localStorage); } catch (e) {}
try { readArea('session', window.sessionStorage); } catch (e) {}

const gcm = { detected: false, status: params.notDetected };
const describe = (obj) => Object.entries(obj).map(([k, v]) => k + ': ' + v).join('; ');
try {
  const entries = window.google_tag_data && window.google_tag_data.ics && window.google_tag_data.ics.entries;
  if (entries && typeof entries === 'object' && Object.keys(entries).length > 0) {
    gcm.detected = true;
    const state = entries[Object.keys(entries)[0]];
    gcm.status = state && typeof state === 'object' ? describe(state) : 'Detected, but state format is unexpected.';
  }
} catch (e) {}
if (!gcm.detected) {
  try {
    const dl = window.dataLayer || (window.google_tag_manager && window.google_tag_manager.dataLayer);
    if (Array.isArray(dl)) {
      const def = dl.filter((i) => i && typeof i === 'object' && i.length > 2 && i[0] === 'consent' && i[1] === 'default').pop();
      if (def && typeof def[2] === 'object' && def[2] !== null) {
        gcm.detected = true;
        gcm.status = describe(def[2]);
      }
    }
  } catch (e) {}
}
return { storage: items, googleConsent: gcm };
`

// ScrollProbe builds the scroll expression.
func ScrollProbe(bottom bool) string {
	return browser.Probe(ProbeScroll, scrollProbe, map[string]bool{"bottom": bottom})
}

// StorageProbe builds the storage and consent-mode expression.
func StorageProbe() string {
	return browser.Probe(ProbeStorage, storageProbe, map[string]string{"notDetected": ConsentNotDetected})
}

// StorageResult is what StorageProbe returns.
type StorageResult struct {
	Storage       []models.StorageItem       `json:"storage"`
	GoogleConsent models.GoogleConsentStatus `json:"googleConsent"`
}

// Collector captures page data through a browser driver.
type Collector struct {
	cfg config.BrowserConfig
	log *logrus.Entry
}

// NewCollector creates a Collector.
func NewCollector(cfg config.BrowserConfig, log *logrus.Entry) *Collector {
	return &Collector{cfg: cfg, log: log.WithField("component", "collector")}
}

// requestRecorder keeps third-party requests seen during a capture window.
type requestRecorder struct {
	mu       sync.Mutex
	rootHost string
	requests []models.NetworkRequest
}

func (r *requestRecorder) record(raw string) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	host := u.Hostname()
	if host == "" || host == r.rootHost {
		return
	}
	r.mu.Lock()
	r.requests = append(r.requests, models.NetworkRequest{URL: raw, Hostname: host})
	r.mu.Unlock()
}

func (r *requestRecorder) snapshot() []models.NetworkRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.NetworkRequest(nil), r.requests...)
}

// Capture reloads the current page and records what it sets. rootHost is the
// scanned hostname; requests to any other host count as third-party.
// Only a failed reload or cookie read is an error. Scroll, idle and storage
// problems degrade to partial data.
func (c *Collector) Capture(ctx context.Context, drv browser.Driver, rootHost string) (models.PageCapture, error) {
	rec := &requestRecorder{rootHost: rootHost}
	unsubscribe := drv.SubscribeRequests(rec.record)
	defer unsubscribe()

	if err := drv.Reload(ctx); err != nil {
		return models.PageCapture{}, err
	}
	drv.WaitNetworkIdle(ctx, c.cfg.EntryIdleTime, c.cfg.EntryIdleTimeout)

	if err := drv.Evaluate(ctx, ScrollProbe(true), nil); err != nil {
		c.log.Debugf("Could not scroll to bottom: %v", err)
	}
	drv.WaitNetworkIdle(ctx, c.cfg.EntryIdleTime, c.cfg.CollectIdleTimeout)
	if err := drv.Evaluate(ctx, ScrollProbe(false), nil); err != nil {
		c.log.Debugf("Could not scroll to top: %v", err)
	}

	if c.cfg.SoakDuration > 0 {
		c.log.Debugf("Soaking page for %s to catch delayed trackers", c.cfg.SoakDuration)
		if err := sleep(ctx, c.cfg.SoakDuration); err != nil {
			return models.PageCapture{}, err
		}
	}

	cookies, err := drv.Cookies(ctx)
	if err != nil {
		return models.PageCapture{}, err
	}

	var sr StorageResult
	if err := drv.Evaluate(ctx, StorageProbe(), &sr); err != nil {
		c.log.Warnf("Could not read web storage: %v", err)
		sr = StorageResult{}
	}
	if sr.GoogleConsent.Status == "" {
		sr.GoogleConsent = models.GoogleConsentStatus{Detected: false, Status: ConsentNotDetected}
	}

	capture := models.PageCapture{
		Cookies:       cookies,
		Requests:      rec.snapshot(),
		Storage:       sr.Storage,
		GoogleConsent: sr.GoogleConsent,
	}
	c.log.WithFields(logrus.Fields{
		"cookies":  len(capture.Cookies),
		"requests": len(capture.Requests),
		"storage":  len(capture.Storage),
		"gcm":      capture.GoogleConsent.Detected,
	}).Debug("Page captured")
	return capture, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
