package normalize

import (
	"encoding/json"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var (
	ratingRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	reviewCountRe = regexp.MustCompile(`\d[\d,]*`)

	nonImageExt = map[string]bool{
		".js": true, ".css": true, ".html": true, ".htm": true, ".json": true, ".php": true,
	}
	trackingImageMarkers = []string{"pixel", "spacer", "transparent", "blank.gif", "sprite"}
)

// ParseRating returns the first number in raw when it lies within [0, 5]
func ParseRating(raw string) (float64, bool) {
	match := ratingRe.FindString(strings.ReplaceAll(raw, ",", "."))
	if match == "" {
		return 0, false
	}
	rating, err := strconv.ParseFloat(match, 64)
	if err != nil || rating < 0 || rating > 5 {
		return 0, false
	}
	return rating, true
}

// ParseReviewCount returns the first integer-looking token in raw with thousands
// separators stripped
func ParseReviewCount(raw string) (int, bool) {
	match := reviewCountRe.FindString(raw)
	if match == "" {
		return 0, false
	}
	count, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}

// AbsoluteImage resolves raw against pageURL: protocol-relative URLs get "https:",
// root-relative and relative paths are resolved against the page. It returns ""
// when the result is not a plausible http(s) image URL.
func AbsoluteImage(raw, pageURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") {
		return ""
	}

	var resolved string
	switch {
	case strings.HasPrefix(raw, "//"):
		resolved = "https:" + raw
	case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
		resolved = raw
	default:
		base, err := url.Parse(pageURL)
		if err != nil || base.Host == "" {
			return ""
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		resolved = base.ResolveReference(ref).String()
	}

	if !IsPlausibleImage(resolved) {
		return ""
	}
	return resolved
}

// IsPlausibleImage rejects non-http URLs, script/style assets and tracking pixels
func IsPlausibleImage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	lowerPath := strings.ToLower(u.Path)
	if nonImageExt[path.Ext(lowerPath)] {
		return false
	}
	for _, marker := range trackingImageMarkers {
		if strings.Contains(lowerPath, marker) {
			return false
		}
	}
	return true
}

// FirstDynamicImage returns the first key of a JSON object mapping image URLs to
// dimensions, e.g. {"https://m.media-amazon.com/a.jpg":[500,500], ...}. Key order
// is preserved by reading tokens rather than decoding into a map.
func FirstDynamicImage(blob string) string {
	dec := json.NewDecoder(strings.NewReader(blob))
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ""
	}
	tok, err = dec.Token()
	if err != nil {
		return ""
	}
	key, _ := tok.(string)
	return key
}
