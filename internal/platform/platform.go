// Package platform maps product URLs to the retailer whose extraction rules apply.
package platform

import (
	"net/url"
	"sort"
	"strings"
)

// ID identifies an e-commerce platform
type ID string

const (
	Amazon   ID = "amazon"
	Flipkart ID = "flipkart"
	Myntra   ID = "myntra"
	Ajio     ID = "ajio"
	Nykaa    ID = "nykaa"
	Meesho   ID = "meesho"
	TataCliq ID = "tatacliq"
	Croma    ID = "croma"
	Generic  ID = "generic"
)

type signature struct {
	id      ID
	matches func(host string) bool
}

func contains(fragment string) func(string) bool {
	return func(host string) bool { return strings.Contains(host, fragment) }
}

func domain(name string) func(string) bool {
	return func(host string) bool { return host == name || strings.HasSuffix(host, "."+name) }
}

// signatures is ordered; the first match wins
var signatures = []signature{
	{Amazon, contains("amazon.")},
	{Flipkart, domain("flipkart.com")},
	{Myntra, domain("myntra.com")},
	{Ajio, domain("ajio.com")},
	{Nykaa, func(h string) bool { return domain("nykaa.com")(h) || domain("nykaafashion.com")(h) }},
	{Meesho, domain("meesho.com")},
	{TataCliq, domain("tatacliq.com")},
	{Croma, domain("croma.com")},
}

// shorteners are hosts whose links must be resolved before classification
var shorteners = map[string]bool{
	"amzn.to":      true,
	"amzn.in":      true,
	"amzn.eu":      true,
	"a.co":         true,
	"fkrt.it":      true,
	"fkrt.cc":      true,
	"fkrt.co":      true,
	"fktr.in":      true,
	"myntr.it":     true,
	"ajiio.in":     true,
	"nykaa.me":     true,
	"msho.in":      true,
	"bit.ly":       true,
	"bitly.com":    true,
	"tinyurl.com":  true,
	"t.co":         true,
	"cutt.ly":      true,
	"goo.gl":       true,
	"ow.ly":        true,
	"is.gd":        true,
	"rebrand.ly":   true,
	"shorturl.at":  true,
	"rb.gy":        true,
	"wishlink.com": true,
	"bitli.in":     true,
}

// affiliateWrappers are redirectors of affiliate networks that wrap a destination URL
var affiliateWrappers = map[string]bool{
	"linksredirect.com":        true,
	"clnk.in":                  true,
	"ekaro.in":                 true,
	"earnkaro.com":             true,
	"inr.deals":                true,
	"extp.in":                  true,
	"tracking.vcommission.com": true,
}

// Classify returns the platform for rawURL, or Generic for unknown or malformed URLs
func Classify(rawURL string) ID {
	host := Host(rawURL)
	if host == "" {
		return Generic
	}
	for _, sig := range signatures {
		if sig.matches(host) {
			return sig.id
		}
	}
	return Generic
}

// Host returns the lower-cased hostname of rawURL without a leading "www.", or ""
// when rawURL cannot be parsed
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Hostname())
}

// NormalizeHost lower-cases host and strips a leading "www."
func NormalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// IsShortener reports whether host belongs to a known link shortener
func IsShortener(host string) bool {
	return shorteners[NormalizeHost(host)]
}

// IsAffiliateWrapper reports whether host belongs to a known affiliate redirector
func IsAffiliateWrapper(host string) bool {
	return affiliateWrappers[NormalizeHost(host)]
}

// Shorteners lists the known short-link hosts, longest first
func Shorteners() []string {
	hosts := make([]string, 0, len(shorteners))
	for host := range shorteners {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool {
		if len(hosts[i]) != len(hosts[j]) {
			return len(hosts[i]) > len(hosts[j])
		}
		return hosts[i] < hosts[j]
	})
	return hosts
}

// Known lists every platform that has a dedicated strategy
func Known() []ID {
	ids := make([]ID, 0, len(signatures))
	for _, sig := range signatures {
		ids = append(ids, sig.id)
	}
	return ids
}
