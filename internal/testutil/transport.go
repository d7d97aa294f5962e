// Package testutil holds helpers shared by package tests.
package testutil

import (
	"net/http"
	"net/url"
)

// HostRewriter sends every request to Target while keeping the original Host
// header, so a single httptest server can impersonate any number of hosts.
type HostRewriter struct {
	Target *url.URL
	Base   http.RoundTripper
}

// NewHostRewriter targets the server listening at rawURL
func NewHostRewriter(rawURL string) *HostRewriter {
	target, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return &HostRewriter{Target: target, Base: http.DefaultTransport}
}

func (h *HostRewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Host = req.URL.Host
	out.URL.Scheme = h.Target.Scheme
	out.URL.Host = h.Target.Host
	return h.Base.RoundTrip(out)
}
