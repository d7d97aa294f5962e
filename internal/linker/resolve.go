package linker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/internal/platform"
	"sjsage522/deallinker/logger"
	"sjsage522/deallinker/services/cache"
)

const (
	MinHops     = 5
	MaxHops     = 10
	DefaultHops = 8

	cacheKeyPrefix = "resolve:"
)

// ResolvedLink is a DetectedLink after redirect-following. FinalURL is either a
// URL that answered without a further redirect or the last URL seen before the
// hop ceiling was reached.
type ResolvedLink struct {
	OriginalURL        string      `json:"original_url"`
	FinalURL           string      `json:"final_url"`
	RedirectChain      []string    `json:"redirect_chain"`
	Platform           platform.ID `json:"platform"`
	IsAffiliateWrapper bool        `json:"is_affiliate_wrapper"`
	SurroundingContext string      `json:"surrounding_context"`
}

// Hops is the number of redirects followed
func (r ResolvedLink) Hops() int {
	if len(r.RedirectChain) == 0 {
		return 0
	}
	return len(r.RedirectChain) - 1
}

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	Timeout  time.Duration
	MaxHops  int
	Cache    cache.CacheService
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	// Client overrides the manual-redirect HTTP client, mainly for tests
	Client *http.Client
}

// Resolver follows redirects of shortened and wrapped links hop by hop
type Resolver struct {
	client   *http.Client
	maxHops  int
	cache    cache.CacheService
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewResolver creates a resolver. MaxHops is clamped to [MinHops, MaxHops].
func NewResolver(opts ResolverOptions) *Resolver {
	hops := opts.MaxHops
	if hops == 0 {
		hops = DefaultHops
	}
	hops = min(max(hops, MinHops), MaxHops)

	client := opts.Client
	if client == nil {
		client = helpers.NewManualRedirectClient(opts.Timeout)
	}

	return &Resolver{
		client:   client,
		maxHops:  hops,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		log:      logger.ForComponent("resolver"),
	}
}

// NeedsResolution reports whether rawURL points at a shortener or an affiliate
// redirector whose destination is not known yet
func NeedsResolution(rawURL string) bool {
	host := platform.Host(rawURL)
	return platform.IsShortener(host) || platform.IsAffiliateWrapper(host)
}

// Resolve follows redirects from rawURL. It never fails: any error ends the walk
// and the last URL seen becomes FinalURL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) ResolvedLink {
	chain := []string{rawURL}
	if cached, ok := r.lookup(rawURL); ok {
		chain = cached
	} else {
		current := rawURL
		for hop := 0; hop < r.maxHops; hop++ {
			next, ok := r.next(ctx, current)
			if !ok {
				break
			}
			chain = append(chain, next)
			current = next
		}
		if len(chain) >= r.maxHops+1 {
			r.log.Warn().
				Str("url", rawURL).
				Int("hops", r.maxHops).
				Msg("Redirect hop ceiling reached, using last URL")
		}
		if len(chain) > 1 {
			r.store(rawURL, chain)
		}
	}

	final := chain[len(chain)-1]
	resolved := ResolvedLink{
		OriginalURL:   rawURL,
		FinalURL:      final,
		RedirectChain: chain,
		Platform:      platform.Classify(final),
	}
	r.metrics.ObserveHops(resolved.Hops())

	r.log.Debug().
		Str("url", rawURL).
		Str("final_url", final).
		Int("hops", resolved.Hops()).
		Msg("Link resolved")

	return resolved
}

// next performs one hop: HEAD first, then GET when HEAD fails or does not redirect.
// It returns false once a URL answers without a usable redirect.
func (r *Resolver) next(ctx context.Context, current string) (string, bool) {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		location, status, err := r.request(ctx, method, current)
		if err != nil {
			r.log.Debug().Err(err).Str("url", current).Str("method", method).Msg("Redirect request failed")
			if ctx.Err() != nil {
				return "", false
			}
			continue
		}
		if isRedirect(status) && location != "" {
			target, err := resolveReference(current, location)
			if err != nil {
				r.log.Debug().Err(err).Str("location", location).Msg("Invalid Location header")
				return "", false
			}
			return target, true
		}
	}
	return "", false
}

func (r *Resolver) request(ctx context.Context, method, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", 0, err
	}
	helpers.SetBrowserHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return resp.Header.Get("Location"), resp.StatusCode, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveReference(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func cacheKey(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (r *Resolver) lookup(rawURL string) ([]string, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(cacheKey(rawURL))
	if err != nil {
		return nil, false
	}
	var chain []string
	if err := json.Unmarshal(data, &chain); err != nil || len(chain) == 0 || chain[0] != rawURL {
		return nil, false
	}
	return chain, true
}

func (r *Resolver) store(rawURL string, chain []string) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(chain)
	if err != nil {
		return
	}
	if err := r.cache.Set(cacheKey(rawURL), data, r.cacheTTL); err != nil {
		r.log.Debug().Err(err).Str("url", rawURL).Msg("Failed to cache resolution")
	}
}
