package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/normalize"
	"sjsage522/deallinker/internal/platform"
)

var (
	textURLRe       = regexp.MustCompile(`(?i)https?://\S+|www\.\S+`)
	textMRPRe       = regexp.MustCompile(`(?i)\b(?:mrp|m\.r\.p|was|worth)\b\.?:?\s*(?:₹|rs\.?|inr)?\s*(\d[\d,]*(?:\.\d+)?)`)
	textPriceRe     = regexp.MustCompile(`(?i)(?:₹|\brs\.?|\binr\b|\$|€|£)\s*(\d[\d,]*(?:\.\d+)?)`)
	textLoosePrice  = regexp.MustCompile(`(?i)(?:@|\b(?:at|for|only|just|price)\b:?)\s*(\d[\d,]*(?:\.\d+)?)`)
	textSeparatorRe = regexp.MustCompile(`\s*(?:\||\n|•| - | – )\s*`)
	textNoiseRe     = regexp.MustCompile(`(?i)^(?:(?:hot|steal|loot|great|best|mega|price drop)\s+)?(?:deals?|loot|offer|alert|check this out|grab it|grab|buy now|buy)\b[\s:!,.-]*`)
	textTrailingRe  = regexp.MustCompile(`(?i)(?:\s+(?:at|for|only|just|in|now|price|@)|\s*[@:,;|–-])+\s*$`)
)

// FromText builds a low-confidence product from the text around a link without
// fetching anything: the name and price come from regular expressions over
// context, falling back to the URL slug and placeholders.
func FromText(context, productURL, defaultCurrency string) *ExtractedProduct {
	text := textURLRe.ReplaceAllString(context, " ")

	product := &ExtractedProduct{
		URL:           productURL,
		Platform:      platform.Classify(productURL),
		Currency:      defaultCurrency,
		Source:        SourceFallback,
		LowConfidence: true,
	}

	var original *decimal.Decimal
	if m := textMRPRe.FindStringSubmatchIndex(text); m != nil {
		if mrp, ok := normalize.CleanPrice(text[m[2]:m[3]]); ok {
			original = &mrp
		}
		text = text[:m[0]] + " | " + text[m[1]:]
	}

	priceRe := textPriceRe
	if !priceRe.MatchString(text) {
		priceRe = textLoosePrice
	}
	if m := priceRe.FindStringSubmatchIndex(text); m != nil {
		if price, ok := normalize.CleanPrice(text[m[2]:m[3]]); ok {
			product.Price = &price
			product.Currency = normalize.DetectCurrency(text[m[0]:m[1]], defaultCurrency)
		}
		text = priceRe.ReplaceAllString(text, " | ")
	}
	if product.Price == nil {
		placeholder := PlaceholderPrice
		product.Price = &placeholder
	}
	product.OriginalPrice = original

	product.Title = nameFromText(text)
	if product.Title == "" {
		product.Title = nameFromURL(productURL)
	}
	product.ImageURL = PlaceholderImage(product.Title)
	product.finalize()
	return product
}

func nameFromText(text string) string {
	var best string
	for _, segment := range textSeparatorRe.Split(text, -1) {
		segment = helpers.CollapseSpace(helpers.StripSymbols(segment))
		for {
			stripped := strings.TrimSpace(textNoiseRe.ReplaceAllString(segment, ""))
			if stripped == segment {
				break
			}
			segment = stripped
		}
		segment = strings.TrimSpace(textTrailingRe.ReplaceAllString(segment, ""))
		if len([]rune(segment)) >= minTitleLength && len(segment) > len(best) {
			best = segment
		}
	}
	return helpers.Truncate(best, maxTitleLength)
}

// nameFromURL turns the longest hyphenated path segment into words, e.g.
// /boAt-Airdopes-141/dp/B0 -> "boAt Airdopes 141"
func nameFromURL(productURL string) string {
	u, err := url.Parse(productURL)
	if err != nil {
		return "Product"
	}

	var slug string
	for _, segment := range strings.Split(u.Path, "/") {
		if strings.ContainsAny(segment, "-_") && strings.IndexFunc(segment, isLetter) >= 0 && len(segment) > len(slug) {
			slug = segment
		}
	}
	if len(slug) >= 8 {
		return helpers.CollapseSpace(strings.NewReplacer("-", " ", "_", " ").Replace(slug))
	}

	if host := platform.NormalizeHost(u.Hostname()); host != "" {
		return "Product on " + host
	}
	return "Product"
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
