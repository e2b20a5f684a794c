package detect

// Known consent-management platforms.
const (
	CMPOneTrust      = "OneTrust"
	CMPCookiebot     = "Cookiebot"
	CMPCookieYes     = "CookieYes"
	CMPOsano         = "Osano"
	CMPDidomi        = "Didomi"
	CMPCookieConsent = "CookieConsent"
	CMPUnknown       = "Unknown"
)

type markerKind string

const (
	markerGlobal   markerKind = "global"
	markerID       markerKind = "id"
	markerSelector markerKind = "selector"
)

// CMPMarker is one signature checked by DetectCMP, in table order.
type CMPMarker struct {
	Provider string     `json:"provider"`
	Kind     markerKind `json:"kind"`
	Value    string     `json:"value"`
}

// CMPMarkers are checked in order; the first hit names the provider.
// Script globals come first since DOM ids can linger after a CMP swap.
var CMPMarkers = []CMPMarker{
	{CMPOneTrust, markerGlobal, "OneTrust"},
	{CMPCookiebot, markerGlobal, "Cookiebot"},
	{CMPCookieYes, markerGlobal, "CookieYes"},
	{CMPOsano, markerGlobal, "Osano"},
	{CMPDidomi, markerGlobal, "didomiOnReady"},
	{CMPCookiebot, markerID, "CybotCookiebotDialog"},
	{CMPOneTrust, markerID, "onetrust-banner-sdk"},
	{CMPCookieConsent, markerSelector, `[class*="CookieConsent"]`},
}

// MatchCMP applies CMPMarkers to a set of present markers. It is the Go
// counterpart of the in-page probe and is what fakes use.
func MatchCMP(present func(CMPMarker) bool) string {
	for _, m := range CMPMarkers {
		if present(m) {
			return m.Provider
		}
	}
	return CMPUnknown
}
