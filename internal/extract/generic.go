package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/internal/normalize"
	"sjsage522/deallinker/internal/platform"
	"sjsage522/deallinker/logger"
)

const placeholderImageBase = "https://placehold.co/600x600/png"

// PlaceholderPrice is used when no plausible price could be read
var PlaceholderPrice = decimal.Zero

var genericSelectors = newGenericSelectors()

func newGenericSelectors() Selectors {
	sel := withStructuredData(Selectors{
		Title: []Locator{
			Text("h1"),
			Text(".product-title"),
			Text(".product-name"),
			Text("#title"),
		},
		Price: []Locator{
			Attr(`[itemprop="price"]`, "content"),
			Text(`[itemprop="price"]`),
			Text(".price"),
			Text(".product-price"),
			Text(".sale-price"),
			Text(".offer-price"),
		},
		OriginalPrice: []Locator{
			Text(".mrp"),
			Text(".original-price"),
			Text(".old-price"),
			Text(".price del"),
			Text(".price s"),
		},
		Image: []Locator{
			Attr(`[itemprop="image"]`, "src"),
			Attr(".product-image img", "src"),
			Attr("main img", "src"),
		},
		Rating: []Locator{
			Attr(`[itemprop="ratingValue"]`, "content"),
			Text(`[itemprop="ratingValue"]`),
			Text(".rating"),
		},
		ReviewCount: []Locator{
			Attr(`[itemprop="reviewCount"]`, "content"),
			Text(`[itemprop="reviewCount"]`),
		},
		Category: []Locator{
			Breadcrumbs(`nav[aria-label="breadcrumb"] a`),
			Breadcrumbs(".breadcrumb a"),
		},
	})
	// the document <title> is the last resort for a name
	sel.Title = append(sel.Title, Text("title"))
	return sel
}

// PlaceholderImage returns a generated image URL labelled with text
func PlaceholderImage(text string) string {
	label := helpers.Truncate(helpers.CollapseSpace(text), 40)
	if label == "" {
		return placeholderImageBase
	}
	return placeholderImageBase + "?text=" + url.QueryEscape(label)
}

// parseGeneric applies the generic selectors under opts. With lenient set, a page
// that has a title but no plausible price gets PlaceholderPrice and is flagged as
// low confidence; otherwise both fields are required. A missing image becomes a
// placeholder either way.
func parseGeneric(page *Page, opts parseOptions, lenient bool) (*ExtractedProduct, error) {
	product, err := parse(page, genericSelectors, opts)
	if err != nil {
		if !lenient {
			return nil, err
		}
		title := first(page, genericSelectors.Title, func(raw string) (string, bool) {
			title := helpers.CollapseSpace(helpers.StripSymbols(raw))
			return helpers.Truncate(title, maxTitleLength), len([]rune(title)) >= minTitleLength
		})
		if title == "" {
			return nil, err
		}
		price := PlaceholderPrice
		product = &ExtractedProduct{
			URL:             page.URL,
			Platform:        opts.platform,
			Title:           title,
			Price:           &price,
			Currency:        opts.defaultCurrency,
			Description:     helpers.Truncate(first(page, genericSelectors.Description, nonEmpty), maxDescriptionLen),
			Category:        first(page, genericSelectors.Category, nonEmpty),
			HasLimitedOffer: hasLimitedOffer(page),
			LowConfidence:   true,
		}
		product.ImageURL = first(page, genericSelectors.Image, func(raw string) (string, bool) {
			image := normalize.AbsoluteImage(raw, page.URL)
			return image, image != ""
		})
	}

	if product.ImageURL == "" {
		product.ImageURL = PlaceholderImage(product.Title)
		product.LowConfidence = true
	}
	product.Source = SourceGeneric
	return product, nil
}

// GenericStrategy serves hosts without dedicated selectors
type GenericStrategy struct {
	fetcher         Fetcher
	defaultCurrency string
	metrics         *metrics.Metrics
	log             *logger.Logger
}

// NewGenericStrategy creates the default registry entry
func NewGenericStrategy(fetcher Fetcher, settings Settings) *GenericStrategy {
	return &GenericStrategy{
		fetcher:         fetcher,
		defaultCurrency: settings.DefaultCurrency,
		metrics:         settings.Metrics,
		log:             logger.ForPlatform(string(platform.Generic)),
	}
}

func (g *GenericStrategy) Name() string {
	return string(platform.Generic)
}

// Extract fetches url once and returns a best-effort product
func (g *GenericStrategy) Extract(ctx context.Context, rawURL string) (*ExtractedProduct, error) {
	id := platform.Classify(rawURL)

	fetched, err := g.fetcher.Fetch(ctx, id, rawURL)
	if err != nil {
		g.metrics.ObserveExtraction(string(id), "failed", 1)
		return nil, err
	}
	page, err := NewPage(fetched.FinalURL, fetched.Body)
	if err != nil {
		g.metrics.ObserveExtraction(string(id), "failed", 1)
		return nil, err
	}

	product, err := parseGeneric(page, parseOptions{platform: id, defaultCurrency: g.defaultCurrency}, true)
	if err != nil {
		g.log.Warn().Err(err).Str("url", rawURL).Msg("Generic extraction found no title")
		g.metrics.ObserveExtraction(string(id), "failed", 1)
		return nil, err
	}
	product.Attempts = 1
	g.metrics.ObserveExtraction(string(id), string(SourceGeneric), 1)
	return product, nil
}

var _ Strategy = (*GenericStrategy)(nil)

// IsPlaceholderImage reports whether rawURL was generated by PlaceholderImage
func IsPlaceholderImage(rawURL string) bool {
	return strings.HasPrefix(rawURL, placeholderImageBase)
}
