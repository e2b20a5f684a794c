package consent

import (
	"strings"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
)

// Action is the consent choice a click expresses.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Keywords are tried in order; earlier entries are more specific.
var (
	AcceptKeywords = []string{
		"accept all", "allow all", "agree to all", "accept cookies", "agree", "accept",
		"allow", "i agree", "ok", "got it", "continue", "tout accepter",
	}
	RejectKeywords = []string{
		"reject all", "deny all", "decline all", "reject cookies", "disagree", "reject",
		"deny", "decline", "necessary only", "tout refuser",
	}
)

// KeywordsFor returns the keyword list for an action.
func KeywordsFor(a Action) []string {
	if a == ActionAccept {
		return AcceptKeywords
	}
	return RejectKeywords
}

// ControlSelector matches everything that can act as a consent button.
const ControlSelector = `button, a, [role="button"], input[type="submit"], input[type="button"]`

// Probe names, for logs and test fakes.
const (
	ProbeControls = "controls"
	ProbeClick    = "click"
)

// listControlsProbe returns one label per control in document order: the
// text content, else aria-label, else value, trimmed and lowercased.
const listControlsProbe = `
const label = (el) => (el.textContent || el.getAttribute('aria-label') || el.value || '').trim().toLowerCase();
return Array.from(document.querySelectorAll(params.selector)).map(label);
`

// clickProbe clicks the control at params.index if it still carries the
// label it was matched on.
const clickProbe = `
const label = (el) => (el.textContent || el.getAttribute('aria-label') || el.value || '').trim().toLowerCase();
const el = document.querySelectorAll(params.selector)[params.index];
if (!el || label(el) !== params.label || typeof el.click !== 'function') return false;
el.click();
return true;
`

// ListControlsProbe builds the control listing expression.
func ListControlsProbe() string {
	return browser.Probe(ProbeControls, listControlsProbe, map[string]string{"selector": ControlSelector})
}

// ClickParams are the parameters of ClickProbe.
type ClickParams struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
	Label    string `json:"label"`
}

// ClickProbe builds the click expression for a matched control.
func ClickProbe(index int, label string) string {
	return browser.Probe(ProbeClick, clickProbe, ClickParams{Selector: ControlSelector, Index: index, Label: label})
}

// MatchControl picks the control to click: for the first keyword (in order)
// that any label contains, the first such control. ok is false when nothing matches.
func MatchControl(labels []string, keywords []string) (index int, keyword string, ok bool) {
	for _, kw := range keywords {
		for i, l := range labels {
			if strings.Contains(l, kw) {
				return i, kw, true
			}
		}
	}
	return -1, "", false
}
