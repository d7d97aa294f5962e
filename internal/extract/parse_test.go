package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/deallinker/internal/platform"
	apperrors "sjsage522/deallinker/pkg/errors"
)

const amazonPage = `<html><head><title>Amazon.in</title></head><body>
<span id="productTitle">  boAt Airdopes 141 Bluetooth TWS Earbuds </span>
<div id="corePriceDisplay_desktop_feature_div">
  <span class="a-price priceToPay"><span class="a-offscreen">₹1,299.00</span></span>
  <span class="basisPrice"><span class="a-price a-text-price"><span class="a-offscreen">₹4,490.00</span></span></span>
</div>
<img id="landingImage" src="data:image/gif;base64,R0lGOD"
  data-a-dynamic-image='{"https://m.media-amazon.com/images/I/61a.jpg":[679,679],"https://m.media-amazon.com/images/I/61b.jpg":[500,500]}'>
<span id="acrPopover" title="4.1 out of 5 stars"></span>
<span id="acrCustomerReviewText">3,21,456 ratings</span>
<div id="feature-bullets"><ul><li>42H playtime</li><li>ENx noise cancellation</li></ul></div>
<div id="wayfinding-breadcrumbs_feature_div"><ul>
  <li><a>Electronics</a></li><li><span>›</span></li><li><a>Headphones</a></li>
</ul></div>
<div class="badge">Limited time deal</div>
</body></html>`

func amazonSelectors() StrategyConfig {
	for _, cfg := range createStrategyConfigs() {
		if cfg.Platform == platform.Amazon {
			cfg.Selectors = withStructuredData(cfg.Selectors)
			return cfg
		}
	}
	panic("amazon strategy missing")
}

func mustPage(t *testing.T, url, body string) *Page {
	t.Helper()
	page, err := NewPage(url, []byte(body))
	require.NoError(t, err)
	return page
}

func TestParseAmazonPage(t *testing.T) {
	cfg := amazonSelectors()
	page := mustPage(t, "https://www.amazon.in/dp/B09N3ZNHTY", amazonPage)

	product, err := parse(page, cfg.Selectors, parseOptions{platform: platform.Amazon, minPrice: cfg.MinPrice, defaultCurrency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, "boAt Airdopes 141 Bluetooth TWS Earbuds", product.Title)
	assert.Equal(t, "1299", product.Price.String())
	assert.Equal(t, "4490", product.OriginalPrice.String())
	assert.Equal(t, "INR", product.Currency)
	assert.Equal(t, "https://m.media-amazon.com/images/I/61a.jpg", product.ImageURL)
	require.NotNil(t, product.Rating)
	assert.Equal(t, 4.1, *product.Rating)
	require.NotNil(t, product.ReviewCount)
	assert.Equal(t, 321456, *product.ReviewCount)
	require.NotNil(t, product.DiscountPercent)
	assert.Equal(t, 71, *product.DiscountPercent)
	assert.Equal(t, "Electronics > Headphones", product.Category)
	assert.Contains(t, product.Description, "42H playtime")
	assert.True(t, product.HasLimitedOffer)
}

func TestParseSkipsPricesBelowMinimum(t *testing.T) {
	cfg := amazonSelectors()
	body := `<html><body>
<span id="productTitle">Prestige Iris 750 Watt Mixer Grinder</span>
<div id="corePriceDisplay_desktop_feature_div"><span class="priceToPay"><span class="a-offscreen">Save ₹50</span></span></div>
<span id="priceblock_ourprice">₹2,499</span>
</body></html>`

	product, err := parse(mustPage(t, "https://www.amazon.in/dp/B0", body), cfg.Selectors,
		parseOptions{platform: platform.Amazon, minPrice: cfg.MinPrice, defaultCurrency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "2499", product.Price.String())
}

func TestParseWithoutMinimumAcceptsSmallPrices(t *testing.T) {
	body := `<html><body><span id="productTitle">Cable Organizer Clips</span>
<span id="priceblock_ourprice">₹49</span></body></html>`

	product, err := parse(mustPage(t, "https://www.amazon.in/dp/B1", body), amazonSelectors().Selectors,
		parseOptions{platform: platform.Amazon, defaultCurrency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "49", product.Price.String())
}

func TestParseRequiresTitleAndPrice(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing price", `<span id="productTitle">Some Product Name</span>`},
		{"short title", `<span id="productTitle">TV</span><span id="priceblock_ourprice">₹9,999</span>`},
		{"zero price", `<span id="productTitle">Some Product Name</span><span id="priceblock_ourprice">₹0</span>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(mustPage(t, "https://www.amazon.in/dp/B2", tt.body), amazonSelectors().Selectors,
				parseOptions{platform: platform.Amazon, defaultCurrency: "INR"})
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorTypePlausibility, apperrors.TypeOf(err))
			assert.True(t, apperrors.IsRetryable(err))
		})
	}
}

func TestParseDropsOriginalPriceBelowPrice(t *testing.T) {
	body := `<span id="productTitle">Some Product Name</span>
<span id="priceblock_ourprice">₹1,999</span><span id="listPrice">₹999</span>`

	product, err := parse(mustPage(t, "https://www.amazon.in/dp/B3", body), amazonSelectors().Selectors,
		parseOptions{platform: platform.Amazon, defaultCurrency: "INR"})
	require.NoError(t, err)
	assert.Nil(t, product.OriginalPrice)
	assert.Nil(t, product.DiscountPercent)
}

func TestParseStructuredData(t *testing.T) {
	body := `<html><head>
<meta property="og:image" content="//cdn.example.com/p/1.png">
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
 {"@type":"BreadcrumbList"},
 {"@type":["Product"],"name":"Acme Anvil Deluxe","image":["https://cdn.example.com/a.jpg"],
  "offers":[{"@type":"Offer","price":129.5,"priceCurrency":"USD"}],
  "aggregateRating":{"ratingValue":"4.6","reviewCount":87}}]}</script>
</head><body></body></html>`

	product, err := parse(mustPage(t, "https://shop.example.com/anvil", body), genericSelectors,
		parseOptions{platform: platform.Generic, defaultCurrency: "INR"})
	require.NoError(t, err)

	assert.Equal(t, "Acme Anvil Deluxe", product.Title)
	assert.Equal(t, "129.5", product.Price.String())
	assert.Equal(t, "USD", product.Currency)
	assert.Equal(t, "https://cdn.example.com/p/1.png", product.ImageURL)
	assert.Equal(t, 4.6, *product.Rating)
	assert.Equal(t, 87, *product.ReviewCount)
	assert.False(t, product.HasLimitedOffer)
}

func TestLocators(t *testing.T) {
	body := `<html><head><meta name="description" content="desc here"></head><body>
<p class="empty"> </p><p class="empty">second</p>
<div class="hero" style="background-image: url('https://img.example.com/h.jpg')"></div>
<a class="crumb">Home</a><a class="crumb">Fashion</a><a class="crumb"> Shoes </a>
</body></html>`
	page := mustPage(t, "https://example.com/x", body)

	assert.Equal(t, "second", Text("p.empty")(page))
	assert.Equal(t, "", Text("p.missing")(page))
	assert.Equal(t, "desc here", Meta("description")(page))
	assert.Equal(t, "https://img.example.com/h.jpg", StyleImage("div.hero")(page))
	assert.Equal(t, "Fashion > Shoes", Breadcrumbs("a.crumb")(page))
	assert.Equal(t, "", JSONLD("name")(page))
}

func TestHasLimitedOffer(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"deal badge", `<div class="badge">Limited time deal</div>`, true},
		{"countdown", `<span>Ends in 02:14:33</span>`, true},
		{"lightning deal", `<p>Lightning Deal 71% claimed</p>`, true},
		{"price drop badge", `<span class="dealBadge">Price drop</span>`, true},
		{"friends in", `<h1>Gift for friends in college</h1>`, false},
		{"trends in", `<p>Top trends in audio</p>`, false},
		{"ends in without a number", `<p>The season ends in style</p>`, false},
		{"price drop in running text", `<p>Read our price drop protection policy</p>`, false},
		{"ordinary page", `<h1>Acme Anvil Deluxe</h1>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := mustPage(t, "https://shop.example.com/p", "<html><body>"+tt.body+"</body></html>")
			assert.Equal(t, tt.want, hasLimitedOffer(page))
		})
	}
}
