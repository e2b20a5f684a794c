// Package crawler runs a complete consent compliance scan of one site: it
// crawls pages in a single browser session, captures what each consent
// condition sets, classifies the findings and assembles the result.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/aggregate"
	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
	"github.com/Sriram-PR/cookie-scanner/pkg/classify"
	"github.com/Sriram-PR/cookie-scanner/pkg/collect"
	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/consent"
	"github.com/Sriram-PR/cookie-scanner/pkg/cookiedb"
	"github.com/Sriram-PR/cookie-scanner/pkg/detect"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/parse"
	"github.com/Sriram-PR/cookie-scanner/pkg/process"
	"github.com/Sriram-PR/cookie-scanner/pkg/queue"
	"github.com/Sriram-PR/cookie-scanner/pkg/report"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// SitemapSource lists the page URLs a site's sitemaps advertise.
type SitemapSource interface {
	DiscoverSitemapURLs(ctx context.Context, rootURL string) []string
}

// Deps are the collaborators a Scanner needs. Sitemaps and DB may be nil.
type Deps struct {
	Launcher   browser.Launcher
	Sitemaps   SitemapSource
	Classifier *classify.Classifier
	DB         *cookiedb.Database
}

// Request describes one scan.
type Request struct {
	ScanID          string
	URL             string
	Depth           string   // empty uses scan.default_depth
	ExcludePatterns []string // added to scan.exclude_path_patterns
}

// Scanner runs scans. It is safe for concurrent use; each scan gets its own
// browser session.
type Scanner struct {
	cfg      *config.AppConfig
	deps     Deps
	protocol *consent.Protocol
	log      *logrus.Entry
}

// NewScanner creates a Scanner.
func NewScanner(cfg *config.AppConfig, deps Deps, log *logrus.Entry) *Scanner {
	scanLog := log.WithField("component", "scanner")
	return &Scanner{
		cfg:  cfg,
		deps: deps,
		protocol: consent.NewProtocol(cfg,
			detect.NewDetector(cfg.Detection, log),
			collect.NewCollector(cfg.Browser, log),
			log),
		log: scanLog,
	}
}

// scanState is the mutable state of one scan.
type scanState struct {
	req       Request
	target    *url.URL
	rootHost  string
	depth     config.ScanDepth
	maxPages  int
	frontier  *queue.Frontier
	buckets   *queue.SectionBuckets
	links     *process.LinkExtractor
	exclude   []*regexp.Regexp
	agg       *aggregate.Aggregator
	entryDone bool

	banner     bool
	policy     bool
	cmp        string
	oneTrust   map[string]string
	screenshot string
	gcm        models.GoogleConsentStatus
}

func (s *Scanner) newState(req Request) (*scanState, error) {
	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", utils.ErrInvalidTargetURL, req.URL)
	}
	depthName := req.Depth
	if depthName == "" {
		depthName = s.cfg.Scan.DefaultDepth
	}
	depth, err := config.ParseDepth(depthName)
	if err != nil {
		return nil, err
	}
	patterns := s.cfg.EffectiveExcludePatterns(config.SiteConfig{ExcludePathPatterns: req.ExcludePatterns})
	exclude, err := utils.CompileRegexPatterns(patterns)
	if err != nil {
		return nil, err
	}

	maxPages := depth.MaxPages()
	root := parse.RootDomain(target.Hostname())
	return &scanState{
		req:      req,
		target:   target,
		rootHost: target.Hostname(),
		depth:    depth,
		maxPages: maxPages,
		frontier: queue.NewFrontier(s.log),
		buckets:  queue.NewSectionBuckets(config.BucketLimit(maxPages, s.cfg.Scan.BucketDivisor, s.cfg.Scan.MinBucketLimit)),
		links:    process.NewLinkExtractor(root, s.cfg.Scan.PriorityKeywords, exclude, s.log),
		exclude:  exclude,
		agg:      aggregate.New(),
		cmp:      detect.CMPUnknown,
		oneTrust: map[string]string{},
		gcm:      models.GoogleConsentStatus{Detected: false, Status: collect.ConsentNotChecked},
	}, nil
}

// Run performs a scan synchronously, passing every progress line to sink
// as a log event. The browser session is closed before Run returns.
func (s *Scanner) Run(ctx context.Context, req Request, sink func(models.Event)) (*models.ScanResult, error) {
	started := time.Now()
	rep := &eventReporter{sink: sink}
	scanLog := s.log.WithFields(logrus.Fields{"scan_id": req.ScanID, "url": req.URL})

	st, err := s.newState(req)
	if err != nil {
		return nil, err
	}
	rep.Logf("Scan initiated for %s (Depth: %s, up to %d pages)", req.URL, st.depth, st.maxPages)

	if s.deps.Launcher == nil {
		return nil, fmt.Errorf("%w: no browser launcher configured", utils.ErrBrowserLaunch)
	}
	drv, err := s.deps.Launcher(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrBrowserLaunch, err)
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			scanLog.Warnf("Closing browser: %v", cerr)
		}
	}()

	st.frontier.Enqueue(st.target.String(), process.PrioritySitemap)
	s.seedFromSitemaps(ctx, st, rep)

	if err := s.crawl(ctx, drv, st, rep, scanLog); err != nil {
		return nil, err
	}

	cookies, requests, storage := st.agg.Counts()
	rep.Logf("Crawl complete. Found %d unique cookies, %d unique third-party requests, and %d storage items.", cookies, requests, storage)

	result := &models.ScanResult{
		ScanID:                req.ScanID,
		URL:                   req.URL,
		Depth:                 string(st.depth),
		StartedAt:             started,
		ScreenshotBase64:      st.screenshot,
		ConsentBannerDetected: st.banner,
		CookiePolicyDetected:  st.policy,
		GoogleConsentV2:       st.gcm,
		CMPProvider:           st.cmp,
	}
	for _, p := range st.frontier.Visited() {
		result.Pages = append(result.Pages, models.PageRef{URL: p})
	}
	result.PagesScannedCount = len(result.Pages)

	if st.agg.Empty() {
		result.UniqueCookies = []models.CookieInfo{}
		result.UniqueTrackers = []models.TrackerInfo{}
		result.UniqueLocalStorage = []models.StorageInfo{}
		result.ThirdPartyDomains = []models.DomainInfo{}
		result.Compliance = classify.EmptyScanRisk()
		result.FinishedAt = time.Now()
		return result, nil
	}
	if s.deps.Classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", utils.ErrClassification)
	}

	rep.Logf("Submitting all findings to AI for analysis... (This may take a moment)")
	results, err := s.deps.Classifier.Classify(ctx, classify.ItemsFrom(st.agg), func(i, n int) {
		rep.Logf("Analyzing batch %d/%d...", i, n)
	})
	if err != nil {
		return nil, err
	}

	rep.Logf("Finalizing compliance assessment...")
	findings := report.Build(report.Input{
		TargetURL: req.URL,
		Agg:       st.agg,
		Results:   results,
		OneTrust:  st.oneTrust,
		DB:        s.deps.DB,
	})
	pre, post := classify.CountIssues(findings.Statuses())
	result.Compliance = s.deps.Classifier.AssessRisk(ctx, pre, post)
	result.UniqueCookies = findings.Cookies
	result.UniqueTrackers = nonNil(findings.Trackers)
	result.UniqueLocalStorage = findings.Storage
	result.ThirdPartyDomains = findings.Domains
	result.FinishedAt = time.Now()

	scanLog.WithFields(logrus.Fields{
		"pages":     result.PagesScannedCount,
		"cookies":   len(result.UniqueCookies),
		"trackers":  len(result.UniqueTrackers),
		"pre":       pre,
		"post":      post,
		"gdpr_risk": result.Compliance.GDPR.RiskLevel,
		"duration":  result.FinishedAt.Sub(started).String(),
	}).Info("Scan finished")
	return result, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Scanner) seedFromSitemaps(ctx context.Context, st *scanState, rep *eventReporter) {
	if s.deps.Sitemaps == nil || !config.BoolOr(s.cfg.Sitemap.Enabled, true) {
		return
	}
	rep.Logf("Searching for sitemap for comprehensive crawling...")
	urls := s.deps.Sitemaps.DiscoverSitemapURLs(ctx, st.target.Scheme+"://"+st.target.Host)
	if len(urls) == 0 {
		rep.Logf("No sitemap found. Proceeding with standard link-following crawl.")
		return
	}
	rep.Logf("Found sitemap! Added %d URLs to the crawl queue.", len(urls))
	for _, u := range urls {
		st.frontier.Enqueue(u, process.PrioritySitemap)
	}
}

// crawl drains the frontier until it is empty or maxPages pages were visited.
// Only cancellation ends it with an error; page failures are logged and skipped.
func (s *Scanner) crawl(ctx context.Context, drv browser.Driver, st *scanState, rep *eventReporter, scanLog *logrus.Entry) error {
	rootDomain := parse.RootDomain(st.rootHost)
	for st.frontier.VisitedCount() < st.maxPages {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, ok := st.frontier.Dequeue()
		if !ok {
			break
		}
		u, err := url.Parse(target.URL)
		if err != nil || !parse.IsWithinRoot(u.Hostname(), rootDomain) {
			st.frontier.Discard(target.URL)
			continue
		}
		if utils.MatchesAny(st.exclude, u.Path) {
			scanLog.Debugf("Skipping excluded URL %s", target.URL)
			st.frontier.Discard(target.URL)
			continue
		}
		if full, bucket := st.buckets.Full(u); full {
			rep.Logf("Skipping URL from full section '%s': %s", bucket, target.URL)
			st.frontier.Discard(target.URL)
			continue
		}

		rep.Logf("[%d/%d] Scanning: %s", st.frontier.VisitedCount()+1, st.maxPages, target.URL)
		pageLog := scanLog.WithFields(logrus.Fields{"page": target.URL, "priority": target.Priority})

		var outcome *consent.PageOutcome
		var visitErr error
		if !st.entryDone {
			outcome, visitErr = s.protocol.VisitEntry(ctx, drv, target.URL, st.rootHost, rep)
		} else {
			outcome, visitErr = s.protocol.VisitSubsequent(ctx, drv, target.URL, st.rootHost, !st.policy, rep)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if outcome == nil {
			pageLog.WithField("error_type", utils.CategorizeError(visitErr)).Warnf("Navigation failed: %v", visitErr)
			rep.Logf("Warning: Failed to load %s. %s", target.URL, truncate(errString(visitErr), 100))
			st.frontier.Discard(target.URL)
			continue
		}

		st.frontier.MarkVisited(target.URL)
		st.buckets.Record(u)
		s.absorb(st, outcome)
		if visitErr != nil {
			pageLog.WithField("error_type", utils.CategorizeError(visitErr)).Warnf("Page capture incomplete: %v", visitErr)
			rep.Logf("Warning: Failed to load %s. %s", target.URL, truncate(errString(visitErr), 100))
			continue
		}

		html, err := drv.HTML(ctx)
		if err != nil {
			pageLog.Debugf("Could not read page HTML for links: %v", err)
			continue
		}
		added := 0
		for _, link := range st.links.ExtractLinks(html, u) {
			if st.frontier.Enqueue(link.URL, link.Priority) {
				added++
			}
		}
		pageLog.WithField("links_added", added).Debug("Page done")
	}
	return nil
}

// absorb merges a page outcome into the scan state.
func (s *Scanner) absorb(st *scanState, out *consent.PageOutcome) {
	for _, pc := range out.Captures {
		st.agg.Merge(pc.Capture, pc.Phase, out.URL)
		if !st.gcm.Detected && pc.Capture.GoogleConsent.Detected {
			st.gcm = pc.Capture.GoogleConsent
		}
	}
	if out.PolicyDetected {
		st.policy = true
	}
	if st.entryDone {
		return
	}
	st.entryDone = true
	st.banner = out.BannerDetected
	if out.CMPProvider != "" {
		st.cmp = out.CMPProvider
	}
	for k, v := range out.OneTrust {
		st.oneTrust[k] = v
	}
	st.screenshot = out.Screenshot
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
