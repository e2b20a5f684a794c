// Package report turns aggregated observations and oracle verdicts into the
// per-identity findings of a scan result.
package report

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/aggregate"
	"github.com/Sriram-PR/cookie-scanner/pkg/classify"
	"github.com/Sriram-PR/cookie-scanner/pkg/cookiedb"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// Input is everything the builder needs from a finished crawl.
type Input struct {
	TargetURL string
	Agg       *aggregate.Aggregator
	Results   classify.Results
	OneTrust  map[string]string // cookie name -> OneTrust group
	DB        *cookiedb.Database
	Now       time.Time
}

// Findings are the classified identities of a scan.
type Findings struct {
	Cookies  []models.CookieInfo
	Trackers []models.TrackerInfo
	Storage  []models.StorageInfo
	Domains  []models.DomainInfo
}

// Statuses returns every resolved status, for risk counting.
func (f Findings) Statuses() []models.ComplianceStatus {
	out := make([]models.ComplianceStatus, 0, len(f.Cookies)+len(f.Trackers)+len(f.Storage)+len(f.Domains))
	for _, c := range f.Cookies {
		out = append(out, c.ComplianceStatus)
	}
	for _, t := range f.Trackers {
		out = append(out, t.ComplianceStatus)
	}
	for _, s := range f.Storage {
		out = append(out, s.ComplianceStatus)
	}
	for _, d := range f.Domains {
		out = append(out, d.ComplianceStatus)
	}
	return out
}

// Build resolves every aggregated identity.
func Build(in Input) Findings {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	host := ""
	if u, err := url.Parse(in.TargetURL); err == nil {
		host = u.Hostname()
	}

	var f Findings
	f.Cookies = buildCookies(in, host)
	hosts := oneTrustHosts(f.Cookies)
	f.Trackers = buildTrackers(in, f.Cookies, hosts)
	f.Storage = buildStorage(in, hosts)
	f.Domains = buildDomains(in, hosts)
	return f
}

func verdict(results classify.Results, key string) (models.ClassificationResult, bool) {
	r, ok := results[key]
	if !ok || r.Category == "" {
		r.Category = models.CategoryUnknown
	}
	return r, ok
}

// resolve applies the compliance rule. An identity without a verdict is
// never presumed necessary.
func resolve(classified bool, src classify.Sources, states []models.ConsentPhase) models.ComplianceStatus {
	if !classified {
		return classify.ResolveStatus(false, states)
	}
	return classify.Resolve(src, states)
}

func purposeOr(r models.ClassificationResult) string {
	if r.Purpose == "" {
		return "No purpose determined."
	}
	return r.Purpose
}

func buildCookies(in Input, host string) []models.CookieInfo {
	obs := in.Agg.Cookies()
	out := make([]models.CookieInfo, 0, len(obs))
	for _, o := range obs {
		c := o.Data
		r, classified := verdict(in.Results, o.Key)
		dbCategory := ""
		if e, ok := in.DB.Lookup(c.Name); ok {
			dbCategory = e.Category
		}
		ot := in.OneTrust[c.Name]
		states := o.States()
		status := resolve(classified, classify.Sources{Oracle: r.Category, Database: dbCategory, OneTrust: ot}, states)
		out = append(out, models.CookieInfo{
			Key:                    o.Key,
			Name:                   c.Name,
			Provider:               c.Domain,
			Category:               r.Category,
			Expiry:                 HumanExpiry(c, in.Now),
			Purpose:                purposeOr(r),
			Party:                  PartyOf(c.Domain, host),
			IsHTTPOnly:             c.HTTPOnly,
			IsSecure:               c.Secure,
			ComplianceStatus:       status,
			Remediation:            classify.Remediation(status, r.Category),
			PagesFound:             o.Pages(),
			States:                 states,
			OneTrustClassification: ot,
			DatabaseClassification: dbCategory,
		})
	}
	return out
}

func buildTrackers(in Input, cookies []models.CookieInfo, hosts map[string]string) []models.TrackerInfo {
	var out []models.TrackerInfo
	for _, o := range in.Agg.Requests() {
		r, ok := verdict(in.Results, o.Key)
		if !ok || !r.IsTracker {
			continue
		}
		hostname := o.Data.Hostname
		var related *models.CookieInfo
		for i := range cookies {
			p := strings.TrimPrefix(cookies[i].Provider, ".")
			if hostname == p || strings.HasSuffix(hostname, "."+p) {
				related = &cookies[i]
				break
			}
		}
		ot := hostLookup(hosts, hostname)
		db := ""
		if related != nil {
			db = related.DatabaseClassification
			if ot == "" {
				ot = related.OneTrustClassification
			}
		}
		states := o.States()
		status := classify.Resolve(classify.Sources{Oracle: r.Category, OneTrust: ot}, states)
		out = append(out, models.TrackerInfo{
			Key:                    o.Key,
			Hostname:               hostname,
			Category:               r.Category,
			ComplianceStatus:       status,
			Remediation:            classify.Remediation(status, r.Category),
			PagesFound:             o.Pages(),
			States:                 states,
			DatabaseClassification: db,
			OneTrustClassification: ot,
		})
	}
	return out
}

func buildStorage(in Input, hosts map[string]string) []models.StorageInfo {
	obs := in.Agg.Storage()
	out := make([]models.StorageInfo, 0, len(obs))
	for _, o := range obs {
		r, classified := verdict(in.Results, o.Key)
		ot := ""
		if u, err := url.Parse(o.Data.Origin); err == nil {
			ot = hostLookup(hosts, u.Hostname())
		}
		states := o.States()
		status := resolve(classified, classify.Sources{Oracle: r.Category, OneTrust: ot}, states)
		out = append(out, models.StorageInfo{
			Key:                    o.Key,
			Origin:                 o.Data.Origin,
			StorageKey:             o.Data.Key,
			Category:               r.Category,
			ComplianceStatus:       status,
			Remediation:            classify.Remediation(status, r.Category),
			Purpose:                purposeOr(r),
			PagesFound:             o.Pages(),
			States:                 states,
			OneTrustClassification: ot,
		})
	}
	return out
}

func buildDomains(in Input, hosts map[string]string) []models.DomainInfo {
	obs := in.Agg.Domains()
	out := make([]models.DomainInfo, 0, len(obs))
	for _, o := range obs {
		r, classified := verdict(in.Results, o.Key)
		ot := hostLookup(hosts, o.Data.Hostname)
		states := o.States()
		status := resolve(classified, classify.Sources{Oracle: r.Category, OneTrust: ot}, states)
		pages := o.Pages()
		out = append(out, models.DomainInfo{
			Hostname:               o.Data.Hostname,
			Count:                  len(pages),
			PagesFound:             pages,
			Category:               r.Category,
			ComplianceStatus:       status,
			Remediation:            classify.Remediation(status, r.Category),
			States:                 states,
			OneTrustClassification: ot,
		})
	}
	return out
}

// oneTrustHosts maps cookie provider domains to the first OneTrust group seen
// for a cookie on that domain.
func oneTrustHosts(cookies []models.CookieInfo) map[string]string {
	m := make(map[string]string)
	for _, c := range cookies {
		if c.OneTrustClassification == "" || c.Provider == "" {
			continue
		}
		d := strings.TrimPrefix(c.Provider, ".")
		if _, ok := m[d]; !ok {
			m[d] = c.OneTrustClassification
		}
	}
	return m
}

// hostLookup tries hostname and each parent domain with at least two labels.
func hostLookup(m map[string]string, hostname string) string {
	if len(m) == 0 || hostname == "" {
		return ""
	}
	parts := strings.Split(hostname, ".")
	for i := 0; i < len(parts)-1; i++ {
		if v, ok := m[strings.Join(parts[i:], ".")]; ok {
			return v
		}
	}
	return ""
}

// PartyOf reports First when cookieDomain is the scanned host (without a
// leading www.) or one of its subdomains.
func PartyOf(cookieDomain, scannedHost string) models.CookieParty {
	d := "." + strings.TrimPrefix(cookieDomain, ".")
	root := "." + strings.TrimPrefix(scannedHost, "www.")
	if strings.HasSuffix(d, root) {
		return models.PartyFirst
	}
	return models.PartyThird
}

// HumanExpiry formats the remaining lifetime of a cookie.
func HumanExpiry(c models.Cookie, now time.Time) string {
	if c.Session || c.Expires == -1 {
		return "Session"
	}
	diff := c.Expires - float64(now.UnixNano())/1e9
	switch {
	case diff < 0:
		return "Expired"
	case diff < 3600:
		return fmt.Sprintf("%d minutes", int(math.Round(diff/60)))
	case diff < 86400:
		return fmt.Sprintf("%d hours", int(math.Round(diff/3600)))
	case diff < 86400*30:
		return fmt.Sprintf("%d days", int(math.Round(diff/86400)))
	case diff < 86400*365:
		return fmt.Sprintf("%d months", int(math.Round(diff/(86400*30))))
	}
	years := math.Round(diff/(86400*365)*10) / 10
	unit := "year"
	if years > 1 {
		unit = "years"
	}
	return strconv.FormatFloat(years, 'f', -1, 64) + " " + unit
}
