package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

const maxRobotsBytes = 512 << 10

// DefaultRobotsTTL bounds how long a parsed robots.txt is reused.
const DefaultRobotsTTL = time.Hour

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// RobotsHandler fetches and caches robots.txt per host. The scanner only reads
// its Sitemap directives; page visits are not gated on Disallow rules.
// Only successfully parsed files are cached, and only for TTL.
type RobotsHandler struct {
	fetcher     HTTPFetcher
	rateLimiter *RateLimiter
	userAgent   string
	delay       time.Duration
	cache       map[string]robotsEntry
	cacheMu     sync.Mutex
	log         *logrus.Entry

	TTL time.Duration
	now func() time.Time
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher HTTPFetcher, rateLimiter *RateLimiter, userAgent string, delay time.Duration, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		userAgent:   userAgent,
		delay:       delay,
		cache:       make(map[string]robotsEntry),
		log:         log,
		TTL:         DefaultRobotsTTL,
		now:         time.Now,
	}
}

// GetRobotsData returns parsed robots.txt for the target's host, or nil when it
// is missing, unreachable or unparsable. Failures are not cached, so a host
// that recovers is read again on the next call.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host
	rh.cacheMu.Lock()
	entry, found := rh.cache[host]
	if found && rh.TTL > 0 && rh.now().Sub(entry.fetchedAt) >= rh.TTL {
		delete(rh.cache, host)
		found = false
	}
	rh.cacheMu.Unlock()
	if found {
		return entry.data
	}

	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)

	data := rh.fetch(ctx, robotsURL, target.Hostname(), robotsLog)
	if data == nil || ctx.Err() != nil {
		return data
	}
	rh.cacheMu.Lock()
	rh.cache[host] = robotsEntry{data: data, fetchedAt: rh.now()}
	rh.cacheMu.Unlock()
	return data
}

func (rh *RobotsHandler) fetch(ctx context.Context, robotsURL, hostname string, robotsLog *logrus.Entry) *robotstxt.RobotsData {
	if rh.rateLimiter != nil {
		if err := rh.rateLimiter.ApplyDelay(ctx, hostname, rh.delay); err != nil {
			return nil
		}
		defer rh.rateLimiter.UpdateLastRequestTime(hostname)
	}

	body, err := GetBody(ctx, rh.fetcher, robotsURL, rh.userAgent, maxRobotsBytes)
	if err != nil {
		robotsLog.Debugf("robots.txt unavailable: %v", err)
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Debugf("Parsed robots.txt (%d sitemap directive(s))", len(data.Sitemaps))
	return data
}

// SitemapDirectives returns the Sitemap: URLs listed in the host's robots.txt.
func (rh *RobotsHandler) SitemapDirectives(ctx context.Context, target *url.URL) []string {
	data := rh.GetRobotsData(ctx, target)
	if data == nil {
		return nil
	}
	return append([]string(nil), data.Sitemaps...)
}
