// Package extract turns product pages into ExtractedProduct records using
// per-platform locator waterfalls, bounded retries and a generic fallback.
package extract

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sjsage522/deallinker/internal/platform"
)

// Source records which path produced a product
type Source string

const (
	SourceScrape   Source = "scrape"
	SourceGeneric  Source = "generic"
	SourceFallback Source = "fallback"
	SourceStub     Source = "stub"
)

// ExtractedProduct is the canonical scrape result. Optional fields are nil when
// the page did not yield a plausible value.
type ExtractedProduct struct {
	URL             string
	Platform        platform.ID
	Title           string
	Description     string
	Price           *decimal.Decimal
	OriginalPrice   *decimal.Decimal
	Currency        string
	ImageURL        string
	Rating          *float64
	ReviewCount     *int
	DiscountPercent *int
	Category        string
	HasLimitedOffer bool

	Source Source
	// LowConfidence marks placeholder values that were not read from the page
	LowConfidence bool
	Attempts      int
}

// HasPlaceholderPrice reports whether no real price backs the product
func (p *ExtractedProduct) HasPlaceholderPrice() bool {
	return p.Price == nil || p.Price.Equal(PlaceholderPrice)
}

// Strategy extracts a product from a URL. A nil product with an error means no
// usable record could be produced.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, url string) (*ExtractedProduct, error)
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the wall-clock Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Locator reads one candidate value from a page, or "" when it finds nothing
type Locator func(p *Page) string

// Selectors holds, per field, the locators tried in priority order
type Selectors struct {
	Title         []Locator
	Price         []Locator
	OriginalPrice []Locator
	Image         []Locator
	Rating        []Locator
	ReviewCount   []Locator
	Description   []Locator
	Category      []Locator
}

// StrategyConfig describes one platform strategy
type StrategyConfig struct {
	Platform    platform.ID
	CacheKey    string
	Selectors   Selectors
	MaxAttempts int
	// MinPrice discards prices below it as coupon or savings text; nil disables
	MinPrice *decimal.Decimal
}
