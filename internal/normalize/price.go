// Package normalize turns raw scraped text into canonical field values.
package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// first run of digits with optional thousands separators and decimals
	priceNumberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

	currencyPatterns = []struct {
		re   *regexp.Regexp
		code string
	}{
		{regexp.MustCompile(`₹|\brs\.?\s?\d|\binr\b`), "INR"},
		{regexp.MustCompile(`\$|\busd\b`), "USD"},
		{regexp.MustCompile(`€|\beur\b`), "EUR"},
		{regexp.MustCompile(`£|\bgbp\b`), "GBP"},
		{regexp.MustCompile(`¥|\bjpy\b`), "JPY"},
	}
)

// CleanPrice strips currency glyphs and thousands separators from raw and parses the
// first number in it. ok is false when raw holds no positive number.
func CleanPrice(raw string) (decimal.Decimal, bool) {
	match := priceNumberRe.FindString(raw)
	if match == "" {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}

// DetectCurrency infers the ISO-4217 code from the glyph present in raw, or returns
// fallback when no glyph is found
func DetectCurrency(raw, fallback string) string {
	lower := strings.ToLower(raw)
	for _, p := range currencyPatterns {
		if p.re.MatchString(lower) {
			return p.code
		}
	}
	return fallback
}

// FormatPrice renders a price as a two-decimal string
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Discount returns round((original-price)/original*100). ok is false unless both
// prices are present and original is strictly greater than price.
func Discount(price, original *decimal.Decimal) (int, bool) {
	if price == nil || original == nil || !original.GreaterThan(*price) || !price.IsPositive() {
		return 0, false
	}
	pct := original.Sub(*price).Div(*original).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart()), true
}

// ReconcilePrices enforces price <= original. An original price below the sale
// price is dropped rather than swapped, since it is most likely a misread field.
func ReconcilePrices(price, original *decimal.Decimal) *decimal.Decimal {
	if original == nil || price == nil {
		return original
	}
	if original.LessThan(*price) {
		return nil
	}
	return original
}
