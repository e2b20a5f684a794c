package parse

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var errMissingHost = errors.New("missing host")

// NormalizeURL standardizes a URL for frontier and visited-set comparison.
// It lowercases the scheme and host, removes default ports, turns an empty path
// into "/", trims a trailing slash from non-root paths and drops the fragment.
// The query string is kept: two URLs differing only in query are distinct pages.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
		normalized.RawPath = ""
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
		normalized.RawPath = ""
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""
	if normalized.RawQuery == "" {
		normalized.ForceQuery = false
	}

	return normalized.String()
}

// ParseAndNormalize parses an absolute http(s) URL and normalizes it with NormalizeURL.
// Returns the normalized string, the parsed URL object, and any parse error
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(urlStr))
	if err != nil {
		return "", nil, err
	}
	if parsed.Host == "" {
		return "", nil, &url.Error{Op: "parse", URL: urlStr, Err: errMissingHost}
	}
	return NormalizeURL(parsed), parsed, nil
}

// StripQueryAndFragment returns the URL without query string or fragment, the form
// used for links discovered on pages.
func StripQueryAndFragment(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// SectionBucket is "/" + the first non-empty path segment, or "/" for the root.
func SectionBucket(u *url.URL) string {
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			return "/" + seg
		}
	}
	return "/"
}

// RootDomain is the registrable domain (eTLD+1) of host, so that
// "www.shop.example.co.uk" yields "example.co.uk". Hosts without a public
// suffix (IP literals, localhost) are returned unchanged.
func RootDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}

// IsWithinRoot reports whether host equals root or is a subdomain of it.
func IsWithinRoot(host, root string) bool {
	host = strings.ToLower(host)
	root = strings.ToLower(root)
	return host == root || strings.HasSuffix(host, "."+root)
}
