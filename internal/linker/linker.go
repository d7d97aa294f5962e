package linker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sjsage522/deallinker/internal/platform"
)

const resolveConcurrency = 4

// Locator finds links in text and resolves the ones behind shorteners
type Locator struct {
	resolver *Resolver
}

// NewLocator creates a Locator that resolves through resolver
func NewLocator(resolver *Resolver) *Locator {
	return &Locator{resolver: resolver}
}

// LocateAndResolve returns the distinct product links of text in order of
// appearance. Links whose destinations coincide after resolution are reported once.
func (l *Locator) LocateAndResolve(ctx context.Context, text string) []ResolvedLink {
	detected := Locate(text)
	resolved := make([]ResolvedLink, len(detected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, link := range detected {
		i, link := i, link
		g.Go(func() error {
			resolved[i] = l.resolve(gctx, link)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool, len(resolved))
	out := make([]ResolvedLink, 0, len(resolved))
	for _, link := range resolved {
		if seen[link.FinalURL] {
			continue
		}
		seen[link.FinalURL] = true
		out = append(out, link)
	}
	return out
}

func (l *Locator) resolve(ctx context.Context, link DetectedLink) ResolvedLink {
	var resolved ResolvedLink
	if l.resolver != nil && NeedsResolution(link.URL) {
		resolved = l.resolver.Resolve(ctx, link.URL)
	} else {
		resolved = ResolvedLink{
			OriginalURL:   link.URL,
			FinalURL:      link.URL,
			RedirectChain: []string{link.URL},
			Platform:      platform.Classify(link.URL),
		}
	}
	resolved.IsAffiliateWrapper = link.IsAffiliateWrapper
	resolved.SurroundingContext = link.SurroundingContext
	return resolved
}
