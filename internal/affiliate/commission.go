package affiliate

import "github.com/shopspring/decimal"

// builtinRates are flat commission fractions per network when the rules file
// does not set commission_rate
var builtinRates = map[string]decimal.Decimal{
	"amazon_associates":  decimal.RequireFromString("0.04"),
	"flipkart_affiliate": decimal.RequireFromString("0.05"),
	"cuelinks":           decimal.RequireFromString("0.06"),
	"earnkaro":           decimal.RequireFromString("0.05"),
	"inrdeals":           decimal.RequireFromString("0.05"),
	"vcommission":        decimal.RequireFromString("0.07"),
	"admitad":            decimal.RequireFromString("0.05"),
}

// Rate returns the commission fraction of a network: the configured rate, then
// the builtin table, then zero
func Rate(n NetworkConfig) decimal.Decimal {
	if n.CommissionRate != nil {
		return *n.CommissionRate
	}
	if rate, ok := builtinRates[n.ID]; ok {
		return rate
	}
	return decimal.Zero
}

// Commission is round(price * rate, 2); an absent price or rate yields zero
func Commission(price *decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if price == nil || !price.IsPositive() || !rate.IsPositive() {
		return decimal.Zero
	}
	return price.Mul(rate).Round(2)
}
