package utils

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
var consecutiveUnderscores = regexp.MustCompile(`_+`)

const maxFilenameLength = 100

// SanitizeFilename cleans a string to be safe for use as a filename component
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ ")

	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_ ")
	}
	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// ReportFilename builds "<host>_<yyyymmdd-hhmmss>.<ext>" for a scanned URL.
func ReportFilename(targetURL string, at time.Time, ext string) string {
	host := targetURL
	if u, err := url.Parse(targetURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return SanitizeFilename(host+"_"+at.UTC().Format("20060102-150405")) + "." + strings.TrimPrefix(ext, ".")
}
