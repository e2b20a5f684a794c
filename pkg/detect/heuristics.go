package detect

import (
	"sort"
	"strings"
)

// BannerKeywords mark text that talks about consent. Several languages are covered.
var BannerKeywords = []string{
	"cookie", "consent", "privacy", "accept", "manage settings", "we use cookies",
	"personal data", "gdpr", "ccpa", "lgpd", "einwilligung", "datenschutz",
	"akzeptieren", "zustimmen",
}

// BannerSelectors are CSS selectors typical of consent dialogs.
var BannerSelectors = []string{
	`[id*="cookie"]`, `[class*="cookie"]`, `[id*="consent"]`, `[class*="consent"]`,
	`[id*="onetrust"]`, `[id*="cmp"]`, `[id*="privacy-banner"]`,
	`[role="dialog"]`, `[role="alertdialog"]`, `div[data-cy*="consent"]`,
}

// PolicyKeywords identify a link to a privacy, cookie or legal page by its text.
var PolicyKeywords = []string{
	"cookie policy", "privacy policy", "cookie statement", "legal notice", "data protection",
	"imprint", "privacy", "legal", "terms", "impressum",
	"politique de confidentialité", "mentions légales", "declaración de privacidad",
}

// PolicyPaths identify a policy link by its href.
var PolicyPaths = []string{"/privacy", "/legal", "/terms", "/cookie-policy", "/data-protection"}

// Rect is a bounding client rect in CSS pixels.
type Rect struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Candidate is one visible container the snapshot probe considered.
type Candidate struct {
	Context         int     `json:"context"` // document or shadow root index
	Tag             string  `json:"tag"`
	HasKeyword      bool    `json:"hasKeyword"`
	MatchesSelector bool    `json:"matchesSelector"`
	Position        string  `json:"position"`
	ZIndex          string  `json:"zIndex"`
	Rect            Rect    `json:"rect"`
	HasNavOrLink    bool    `json:"hasNavOrLink"`
	Opacity         float64 `json:"opacity"`
}

// Link is a visible anchor.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Snapshot is the serialized view of a page the heuristics run on.
type Snapshot struct {
	ViewportWidth  float64     `json:"viewportWidth"`
	ViewportHeight float64     `json:"viewportHeight"`
	Candidates     []Candidate `json:"candidates"`
	Links          []Link      `json:"links"`
}

// Scored pairs a candidate with its score.
type Scored struct {
	Candidate
	Score int
}

// Result of running the heuristics on one page.
type Result struct {
	BannerDetected bool
	PolicyDetected bool
}

// Score rates how much c looks like a consent banner.
func Score(c Candidate, viewportWidth, viewportHeight float64) int {
	score := 0
	if c.HasKeyword {
		score += 5
	}
	if c.MatchesSelector {
		score += 5
	}
	if c.Position == "fixed" || c.Position == "sticky" {
		score += 4
	}
	if parseZIndex(c.ZIndex) > 99 {
		score += 4
	}
	if c.Rect.Top < 50 || c.Rect.Bottom > viewportHeight-50 {
		score += 3
	}
	if c.Rect.Width > viewportWidth*0.8 {
		score += 2
	}
	if c.Rect.Width < 100 || c.Rect.Height < 30 {
		score -= 5
	}
	tag := strings.ToLower(c.Tag)
	if (tag == "header" || tag == "footer") && c.HasNavOrLink && !c.HasKeyword {
		score -= 3
	}
	return score
}

// parseZIndex mirrors parseInt: leading digits count, "auto" is 0.
func parseZIndex(z string) int {
	z = strings.TrimSpace(z)
	neg := strings.HasPrefix(z, "-")
	if neg {
		z = z[1:]
	}
	n := 0
	for _, r := range z {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			break
		}
	}
	if neg {
		return -n
	}
	return n
}

func visible(c Candidate) bool {
	return c.Opacity >= 0.1 && c.Rect.Width > 1 && c.Rect.Height > 1
}

// ScoreCandidates scores every visible candidate, highest first. Ties keep
// document order.
func ScoreCandidates(s Snapshot) []Scored {
	out := make([]Scored, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		if !visible(c) {
			continue
		}
		out = append(out, Scored{Candidate: c, Score: Score(c, s.ViewportWidth, s.ViewportHeight)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// onScreen requires a meaningful box that intersects the viewport.
func onScreen(r Rect, viewportHeight float64) bool {
	return r.Width > 50 && r.Height > 20 && r.Bottom > 0 && r.Top < viewportHeight
}

// BannerDetected reports whether some document or shadow root holds a banner:
// its best-scoring candidate reaches threshold and sits on screen.
func BannerDetected(s Snapshot, threshold int) bool {
	best := make(map[int]Scored)
	for _, sc := range ScoreCandidates(s) {
		if _, seen := best[sc.Context]; !seen {
			best[sc.Context] = sc
		}
	}
	for _, sc := range best {
		if sc.Score >= threshold && onScreen(sc.Rect, s.ViewportHeight) {
			return true
		}
	}
	return false
}

// PolicyLinkDetected reports whether any link looks like a policy link.
func PolicyLinkDetected(links []Link) bool {
	for _, l := range links {
		text := strings.ToLower(strings.TrimSpace(l.Text))
		for _, kw := range PolicyKeywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		href := strings.ToLower(l.Href)
		for _, p := range PolicyPaths {
			if strings.Contains(href, p) {
				return true
			}
		}
	}
	return false
}

// Detect runs both heuristics over a snapshot.
func Detect(s Snapshot, threshold int) Result {
	return Result{
		BannerDetected: BannerDetected(s, threshold),
		PolicyDetected: PolicyLinkDetected(s.Links),
	}
}
