package parse

import (
	"bytes"
	"encoding/xml"
	"html"
	"regexp"
	"strings"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

var locPattern = regexp.MustCompile(`(?is)<loc>\s*(.*?)\s*</loc>`)

// IsSitemapIndex reports whether the document is a sitemap index rather than a urlset.
func IsSitemapIndex(data []byte) bool {
	return bytes.Contains(data, []byte("<sitemapindex"))
}

// ExtractLocs returns every <loc> value in a sitemap or sitemap index, in document
// order. Well-formed documents are decoded as XML; anything else (truncated
// files, stray HTML) falls back to a tolerant pattern scan.
func ExtractLocs(data []byte) []string {
	if IsSitemapIndex(data) {
		var idx XMLSitemapIndex
		if err := xml.Unmarshal(data, &idx); err == nil {
			locs := make([]string, 0, len(idx.Sitemaps))
			for _, s := range idx.Sitemaps {
				if loc := strings.TrimSpace(s.Loc); loc != "" {
					locs = append(locs, loc)
				}
			}
			return locs
		}
	} else {
		var set XMLURLSet
		if err := xml.Unmarshal(data, &set); err == nil {
			locs := make([]string, 0, len(set.URLs))
			for _, u := range set.URLs {
				if loc := strings.TrimSpace(u.Loc); loc != "" {
					locs = append(locs, loc)
				}
			}
			return locs
		}
	}

	var locs []string
	for _, m := range locPattern.FindAllSubmatch(data, -1) {
		loc := strings.TrimSpace(html.UnescapeString(string(m[1])))
		loc = strings.TrimSuffix(strings.TrimPrefix(loc, "<![CDATA["), "]]>")
		if loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs
}
