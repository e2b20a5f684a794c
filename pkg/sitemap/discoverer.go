package sitemap

import (
	"context"
	"net/url"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/fetch"
	"github.com/Sriram-PR/cookie-scanner/pkg/parse"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// maxSitemapBytes bounds a single sitemap download (the sitemaps.org limit is 50MB).
const maxSitemapBytes = 50 << 20

// DirectiveSource yields the Sitemap: directives for a site.
type DirectiveSource interface {
	SitemapDirectives(ctx context.Context, target *url.URL) []string
}

// Discoverer finds page URLs advertised by a site's sitemaps.
type Discoverer struct {
	fetcher     fetch.HTTPFetcher
	robots      DirectiveSource
	rateLimiter *fetch.RateLimiter
	hostSem     *fetch.HostSemaphorePool
	cfg         config.SitemapConfig
	log         *logrus.Entry
}

// NewDiscoverer creates a Discoverer. rateLimiter and hostSem may be nil.
func NewDiscoverer(
	fetcher fetch.HTTPFetcher,
	robots DirectiveSource,
	rateLimiter *fetch.RateLimiter,
	hostSem *fetch.HostSemaphorePool,
	cfg config.SitemapConfig,
	log *logrus.Entry,
) *Discoverer {
	return &Discoverer{
		fetcher:     fetcher,
		robots:      robots,
		rateLimiter: rateLimiter,
		hostSem:     hostSem,
		cfg:         cfg,
		log:         log.WithField("component", "sitemap"),
	}
}

// discovery holds the state of one DiscoverSitemapURLs call.
type discovery struct {
	mu      sync.Mutex
	fetched map[string]bool // sitemap documents already requested
	pages   map[string]bool
	full    bool
}

// DiscoverSitemapURLs returns the deduplicated, sorted page URLs listed by the
// sitemaps of rootURL. Sources come from robots.txt Sitemap: directives, or
// /sitemap.xml when there are none. Index files are followed concurrently.
// Any fetch or parse failure contributes nothing; the call itself never fails.
func (d *Discoverer) DiscoverSitemapURLs(ctx context.Context, rootURL string) []string {
	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" {
		d.log.Warnf("Cannot discover sitemaps for invalid root URL %q", rootURL)
		return nil
	}
	rootLog := d.log.WithField("root", root.Host)

	var sources []string
	if d.robots != nil {
		sources = d.robots.SitemapDirectives(ctx, root)
	}
	if len(sources) == 0 {
		fallback := url.URL{Scheme: root.Scheme, Host: root.Host, Path: "/sitemap.xml"}
		sources = []string{fallback.String()}
		rootLog.Debug("No Sitemap: directives in robots.txt, trying /sitemap.xml")
	} else {
		rootLog.Infof("Found %d sitemap directive(s) in robots.txt", len(sources))
	}

	state := &discovery{fetched: make(map[string]bool), pages: make(map[string]bool)}
	d.processAll(ctx, state, sources, 0)

	urls := make([]string, 0, len(state.pages))
	for u := range state.pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	if state.full {
		rootLog.Warnf("Sitemap URL cap of %d reached, remaining entries ignored", d.cfg.MaxURLs)
	}
	rootLog.WithField("count", len(urls)).Debug("Sitemap discovery complete")
	return urls
}

// processAll fetches every source concurrently and waits for all of them,
// including the children of any sitemap index among them.
func (d *Discoverer) processAll(ctx context.Context, state *discovery, sources []string, depth int) {
	g, gctx := errgroup.WithContext(ctx)
	if d.cfg.MaxConcurrency > 0 {
		g.SetLimit(d.cfg.MaxConcurrency)
	}
	for _, src := range sources {
		if !state.claim(src) {
			continue
		}
		g.Go(func() error {
			d.processSitemap(gctx, state, src, depth)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Discoverer) processSitemap(ctx context.Context, state *discovery, sitemapURL string, depth int) {
	smLog := d.log.WithField("sitemap_url", sitemapURL)
	defer func() {
		if r := recover(); r != nil {
			smLog.WithFields(logrus.Fields{"panic_info": r, "stack_trace": string(debug.Stack())}).Error("PANIC recovered in sitemap processing")
		}
	}()

	body, ok := d.fetchSitemap(ctx, sitemapURL, smLog)
	if !ok {
		return
	}

	locs := parse.ExtractLocs(body)
	if parse.IsSitemapIndex(body) {
		if d.cfg.MaxIndexDepth > 0 && depth >= d.cfg.MaxIndexDepth {
			smLog.Warnf("Sitemap index nesting deeper than %d, not following %d child sitemap(s)", d.cfg.MaxIndexDepth, len(locs))
			return
		}
		smLog.Debugf("Sitemap index with %d child sitemap(s)", len(locs))
		// Children run in their own group; this goroutine only waits, so the
		// parent's concurrency slot cannot starve them.
		d.processAll(ctx, state, locs, depth+1)
		return
	}

	added := state.addPages(locs, d.cfg.MaxURLs)
	smLog.Debugf("Sitemap listed %d URL(s), %d new", len(locs), added)
}

func (d *Discoverer) fetchSitemap(ctx context.Context, sitemapURL string, smLog *logrus.Entry) ([]byte, bool) {
	u, err := url.Parse(sitemapURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		smLog.Debug("Skipping non-http sitemap location")
		return nil, false
	}
	host := u.Hostname()

	if d.hostSem != nil {
		if err := d.hostSem.Acquire(ctx, host); err != nil {
			smLog.WithField("error_type", utils.CategorizeError(err)).Debugf("Sitemap skipped: %v", err)
			return nil, false
		}
		defer d.hostSem.Release(host)
	}
	if d.rateLimiter != nil {
		if err := d.rateLimiter.ApplyDelay(ctx, host, d.cfg.DelayPerHost); err != nil {
			return nil, false
		}
		defer d.rateLimiter.UpdateLastRequestTime(host)
	}

	fetchCtx := ctx
	if d.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, d.cfg.FetchTimeout)
		defer cancel()
	}

	body, err := fetch.GetBody(fetchCtx, d.fetcher, sitemapURL, d.cfg.UserAgent, maxSitemapBytes)
	if err != nil {
		smLog.Debugf("Sitemap unavailable: %v", err)
		return nil, false
	}
	return body, true
}

// claim marks a sitemap as fetched; false if it already was.
func (s *discovery) claim(sitemapURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched[sitemapURL] {
		return false
	}
	s.fetched[sitemapURL] = true
	return true
}

func (s *discovery) addPages(locs []string, maxURLs int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, loc := range locs {
		if maxURLs > 0 && len(s.pages) >= maxURLs {
			s.full = true
			break
		}
		if !s.pages[loc] {
			s.pages[loc] = true
			added++
		}
	}
	return added
}
