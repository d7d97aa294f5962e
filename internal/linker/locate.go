// Package linker finds product links in chat text and resolves short links to
// their destination.
package linker

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/platform"
)

const (
	contextRadius = 120
	urlChars      = `[^\s<>"'{}|\\^` + "`" + `\[\]]`
)

var (
	// scheme URLs, www. hosts and bare hosts of known shorteners
	urlPattern = regexp.MustCompile(`(?i)(?:https?://` + urlChars + `+|www\.` + urlChars + `+|\b(?:` + shortenerAlternation() + `)/` + urlChars + `+)`)

	// destination parameters used by affiliate redirectors
	embeddedParams = []string{"url", "dl", "ulp", "u", "redirect", "destination", "murl"}
)

func shortenerAlternation() string {
	hosts := platform.Shorteners()
	quoted := make([]string, len(hosts))
	for i, host := range hosts {
		quoted[i] = regexp.QuoteMeta(host)
	}
	return strings.Join(quoted, "|")
}

// DetectedLink is a URL found in message text
type DetectedLink struct {
	URL                string      `json:"url"`
	Platform           platform.ID `json:"platform"`
	IsAffiliateWrapper bool        `json:"is_affiliate_wrapper"`
	SurroundingContext string      `json:"surrounding_context"`
}

// Locate scans text for URL-shaped substrings, trims trailing punctuation, adds a
// missing scheme and deduplicates by exact normalized string. Markdown links and
// <angle-bracketed> URLs are covered by the same scan since their delimiters are
// excluded from the URL character class and trimmed afterwards.
func Locate(text string) []DetectedLink {
	var links []DetectedLink
	seen := make(map[string]bool)

	var spans []span
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		raw := trimURL(text[loc[0]:loc[1]])
		spans = append(spans, span{start: loc[0], end: loc[0] + len(raw)})
	}

	for i, sp := range spans {
		normalized, ok := normalizeURL(text[sp.start:sp.end])
		if !ok || seen[normalized] {
			continue
		}
		seen[normalized] = true

		link := DetectedLink{
			URL:                normalized,
			SurroundingContext: surroundingContext(text, spans, i),
		}

		host := platform.Host(normalized)
		if platform.IsAffiliateWrapper(host) {
			link.IsAffiliateWrapper = true
			if dest, ok := unwrapDestination(normalized); ok {
				link.URL = dest
			}
		}
		link.Platform = platform.Classify(link.URL)
		links = append(links, link)
	}

	return links
}

// trimURL removes trailing punctuation that belongs to the sentence, keeping a
// closing parenthesis only when the URL itself opened one
func trimURL(raw string) string {
	for {
		trimmed := strings.TrimRight(raw, ".,;:!?'\"*>")
		if strings.HasSuffix(trimmed, ")") && strings.Count(trimmed, "(") < strings.Count(trimmed, ")") {
			trimmed = strings.TrimSuffix(trimmed, ")")
		}
		if trimmed == raw {
			return raw
		}
		raw = trimmed
	}
}

func normalizeURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(raw), "http://") && !strings.HasPrefix(strings.ToLower(raw), "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), true
}

// unwrapDestination extracts an embedded destination URL from an affiliate redirector link
func unwrapDestination(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	query := u.Query()
	for _, key := range embeddedParams {
		candidate := query.Get(key)
		if candidate == "" {
			continue
		}
		if dest, ok := normalizeURL(candidate); ok && platform.Host(dest) != "" {
			return dest, true
		}
	}
	return "", false
}

// span is the byte range of a located URL
type span struct{ start, end int }

// surroundingContext returns the text around spans[i], bounded by contextRadius
// runes on each side, by the enclosing line and by the neighbouring URLs. When a
// line holds several URLs each one keeps only the side its description sits on:
// the text before it when the line opens with a description, the text after it
// when the line opens with a URL or a "Label:" prefix.
func surroundingContext(text string, spans []span, i int) string {
	start, end := spans[i].start, spans[i].end
	lineStart := strings.LastIndex(text[:start], "\n") + 1
	lineEnd := len(text)
	if idx := strings.Index(text[end:], "\n"); idx >= 0 {
		lineEnd = end + idx
	}

	lo, hi := lineStart, lineEnd
	hasPrev := i > 0 && spans[i-1].end > lineStart
	hasNext := i+1 < len(spans) && spans[i+1].start < lineEnd
	if hasPrev {
		lo = spans[i-1].end
	}
	if hasNext {
		hi = spans[i+1].start
	}

	beforeText, afterText := text[lo:start], text[end:hi]
	if hasPrev || hasNext {
		first := i
		for first > 0 && spans[first-1].end > lineStart {
			first--
		}
		if describesFirst(text[lineStart:spans[first].start]) {
			if hasNext {
				afterText = ""
			}
		} else {
			beforeText = ""
		}
	}

	before := []rune(beforeText)
	if len(before) > contextRadius {
		before = before[len(before)-contextRadius:]
	}
	after := []rune(afterText)
	if len(after) > contextRadius {
		after = after[:contextRadius]
	}

	// a line holding nothing but the URL borrows the previous line, where chat
	// posts usually put the product name, minus any earlier link on it
	if strings.TrimSpace(string(before)) == "" && strings.TrimSpace(string(after)) == "" && lineStart > 0 {
		prevStart := strings.LastIndex(text[:lineStart-1], "\n") + 1
		if i > 0 && spans[i-1].end > prevStart {
			prevStart = min(spans[i-1].end, lineStart-1)
		}
		before = []rune(text[prevStart : lineStart-1])
		if len(before) > contextRadius {
			before = before[len(before)-contextRadius:]
		}
	}

	return helpers.CollapseSpace(string(before) + " " + text[start:end] + " " + string(after))
}

// describesFirst reports whether the text leading a line up to its first URL is a
// product description rather than empty or a "Label:" prefix
func describesFirst(lead string) bool {
	lead = strings.TrimSpace(lead)
	if lead == "" || strings.HasSuffix(lead, ":") {
		return false
	}
	return strings.IndexFunc(lead, unicode.IsLetter) >= 0
}
