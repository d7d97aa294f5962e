package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/normalize"
	"sjsage522/deallinker/internal/platform"
	apperrors "sjsage522/deallinker/pkg/errors"
)

const (
	minTitleLength    = 4
	maxTitleLength    = 300
	maxDescriptionLen = 500
)

var (
	// deal badges recognised anywhere in the page text; a countdown needs a number
	limitedOfferRe = regexp.MustCompile(`\b(?:limited time deal|deal of the day|lightning deal|limited period offer)\b|\bends in:?\s*\d`)

	// "price drop" is too common in running text to count outside a badge element
	priceDropRe   = regexp.MustCompile(`\bprice drop(?:ped)?\b`)
	badgeElements = `[class*="badge"], [id*="badge"], [class*="Badge"], [id*="Badge"], [class*="deal-tag"]`
)

type parseOptions struct {
	platform        platform.ID
	minPrice        *decimal.Decimal
	defaultCurrency string
}

// parse runs every field's locator waterfall against page. Title and price are
// required; when either has no plausible candidate a plausibility error is returned.
func parse(page *Page, sel Selectors, opts parseOptions) (*ExtractedProduct, error) {
	product := &ExtractedProduct{
		URL:      page.URL,
		Platform: opts.platform,
	}

	product.Title = first(page, sel.Title, func(raw string) (string, bool) {
		title := helpers.CollapseSpace(helpers.StripSymbols(raw))
		return helpers.Truncate(title, maxTitleLength), len([]rune(title)) >= minTitleLength
	})

	var rawPrice string
	first(page, sel.Price, func(raw string) (string, bool) {
		price, ok := normalize.CleanPrice(raw)
		if !ok || (opts.minPrice != nil && price.LessThan(*opts.minPrice)) {
			return "", false
		}
		product.Price = &price
		rawPrice = raw
		return raw, true
	})

	if product.Title == "" || product.Price == nil {
		missing := "title"
		if product.Title != "" {
			missing = "price"
		}
		return nil, apperrors.NewPlausibility(string(opts.platform), "no plausible "+missing+" on "+page.URL)
	}

	product.Currency = normalize.DetectCurrency(rawPrice, "")
	if product.Currency == "" {
		product.Currency = strings.ToUpper(first(page, []Locator{JSONLD("priceCurrency"), Meta("product:price:currency")}, nonEmpty))
	}
	if product.Currency == "" {
		product.Currency = opts.defaultCurrency
	}

	first(page, sel.OriginalPrice, func(raw string) (string, bool) {
		original, ok := normalize.CleanPrice(raw)
		if !ok {
			return "", false
		}
		product.OriginalPrice = &original
		return raw, true
	})

	product.ImageURL = first(page, sel.Image, func(raw string) (string, bool) {
		image := normalize.AbsoluteImage(raw, page.URL)
		return image, image != ""
	})

	first(page, sel.Rating, func(raw string) (string, bool) {
		rating, ok := normalize.ParseRating(raw)
		if ok {
			product.Rating = &rating
		}
		return raw, ok
	})

	first(page, sel.ReviewCount, func(raw string) (string, bool) {
		count, ok := normalize.ParseReviewCount(raw)
		if ok {
			product.ReviewCount = &count
		}
		return raw, ok
	})

	product.Description = helpers.Truncate(first(page, sel.Description, nonEmpty), maxDescriptionLen)
	product.Category = first(page, sel.Category, nonEmpty)
	product.HasLimitedOffer = hasLimitedOffer(page)

	product.finalize()
	return product, nil
}

// first evaluates locators lazily and returns the first value accepted by check
func first(page *Page, locators []Locator, check func(string) (string, bool)) string {
	for _, locate := range locators {
		raw := locate(page)
		if raw == "" {
			continue
		}
		if value, ok := check(raw); ok {
			return value
		}
	}
	return ""
}

func nonEmpty(raw string) (string, bool) {
	value := helpers.CollapseSpace(raw)
	return value, value != ""
}

func hasLimitedOffer(page *Page) bool {
	if limitedOfferRe.MatchString(page.Text()) {
		return true
	}
	badges := strings.ToLower(page.Doc.Find(badgeElements).Text())
	return priceDropRe.MatchString(badges)
}

// finalize enforces price <= originalPrice and derives the discount from the two
func (p *ExtractedProduct) finalize() {
	p.OriginalPrice = normalize.ReconcilePrices(p.Price, p.OriginalPrice)
	p.DiscountPercent = nil
	if pct, ok := normalize.Discount(p.Price, p.OriginalPrice); ok {
		p.DiscountPercent = &pct
	}
}
