package process

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/parse"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// Link priorities assigned to discovered anchors. Sitemap URLs use PrioritySitemap.
const (
	PrioritySitemap  = 0
	PriorityKeyword  = 1
	PriorityStandard = 2
)

// LinkExtractor turns a rendered page's HTML into crawl targets on the scan's site.
type LinkExtractor struct {
	rootDomain string
	keywords   []string
	exclude    []*regexp.Regexp
	log        *logrus.Entry
}

// NewLinkExtractor creates a LinkExtractor for rootDomain (see parse.RootDomain).
// keywords are matched case-insensitively; exclude patterns are matched against the URL path.
func NewLinkExtractor(rootDomain string, keywords []string, exclude []*regexp.Regexp, log *logrus.Entry) *LinkExtractor {
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}
	return &LinkExtractor{rootDomain: rootDomain, keywords: lower, exclude: exclude, log: log}
}

// ExtractLinks returns the distinct same-site links in pageHTML, resolved against
// base, with query and fragment removed, ordered by URL. A link seen several
// times keeps its best priority.
func (le *LinkExtractor) ExtractLinks(pageHTML string, base *url.URL) []models.CrawlTarget {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		le.log.Warnf("Cannot parse page HTML for links: %v", err)
		return nil
	}

	found := make(map[string]int)
	doc.Find("a[href]").Each(func(_ int, el *goquery.Selection) {
		href, _ := el.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, parseErr := base.Parse(href)
		if parseErr != nil {
			return
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		if !parse.IsWithinRoot(linkURL.Hostname(), le.rootDomain) {
			return
		}
		if utils.MatchesAny(le.exclude, linkURL.Path) {
			le.log.Debugf("Link excluded by pattern: %s", linkURL.Path)
			return
		}

		clean := parse.StripQueryAndFragment(linkURL)
		priority := le.priorityFor(el.Text(), href)
		if prev, ok := found[clean]; !ok || priority < prev {
			found[clean] = priority
		}
	})

	targets := make([]models.CrawlTarget, 0, len(found))
	for u, p := range found {
		targets = append(targets, models.CrawlTarget{URL: u, Priority: p})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].URL < targets[j].URL })
	return targets
}

func (le *LinkExtractor) priorityFor(text, href string) int {
	haystack := strings.ToLower(text + " " + href)
	for _, k := range le.keywords {
		if strings.Contains(haystack, k) {
			return PriorityKeyword
		}
	}
	return PriorityStandard
}
