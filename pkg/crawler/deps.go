package crawler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
	"github.com/Sriram-PR/cookie-scanner/pkg/classify"
	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/cookiedb"
	"github.com/Sriram-PR/cookie-scanner/pkg/fetch"
	"github.com/Sriram-PR/cookie-scanner/pkg/process"
	"github.com/Sriram-PR/cookie-scanner/pkg/sitemap"
)

// NewSitemapSource wires the HTTP stack used for robots.txt and sitemap
// fetches into a sitemap discoverer.
func NewSitemapSource(cfg *config.AppConfig, log *logrus.Entry) *sitemap.Discoverer {
	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(client, fetch.NoRetry, log)
	rateLimiter := fetch.NewRateLimiter(cfg.Sitemap.DelayPerHost, log)
	robots := fetch.NewRobotsHandler(fetcher, rateLimiter, cfg.Sitemap.UserAgent, cfg.Sitemap.DelayPerHost, log)
	hostSem := fetch.NewHostSemaphorePool(cfg.Sitemap.MaxConcurrency, log)
	return sitemap.NewDiscoverer(fetcher, robots, rateLimiter, hostSem, cfg.Sitemap, log)
}

// NewDefaultDeps builds the production collaborators: headless Chrome,
// sitemap discovery, the configured oracle behind a single serial dispatcher
// and the embedded cookie database. Scans sharing the returned Deps share the
// oracle queue. Call release once no scan uses them.
func NewDefaultDeps(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (deps Deps, release func(), err error) {
	oracle, err := classify.NewGeminiOracle(ctx, cfg.Oracle, log)
	if err != nil {
		return Deps{}, nil, err
	}
	dispatcher := classify.NewDispatcher(oracle, cfg.Oracle.MinInterval, log)

	counter, err := process.NewTokenCounter(cfg.Oracle.TokenEncoding)
	if err != nil {
		log.Warnf("Token counting disabled, batches split by size only: %v", err)
		counter = nil
	}

	deps = Deps{
		Launcher:   browser.NewLauncher(cfg.Browser, log),
		Sitemaps:   NewSitemapSource(cfg, log),
		Classifier: classify.NewClassifier(dispatcher, cfg.Oracle, counter, log),
		DB:         cookiedb.Default(),
	}
	return deps, dispatcher.Close, nil
}
