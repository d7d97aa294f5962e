package extract

import (
	"time"

	"github.com/shopspring/decimal"

	"sjsage522/deallinker/config"
	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/internal/platform"
)

// Settings carries the tuning shared by every strategy
type Settings struct {
	RetryBackoff    time.Duration
	DefaultCurrency string
	// MaxAttempts and MinPrice override the builtin per-platform values
	MaxAttempts map[platform.ID]int
	MinPrice    map[platform.ID]*decimal.Decimal
	Sleep       Sleeper
	Metrics     *metrics.Metrics
}

// SettingsFromConfig merges env configuration with the per-platform rules file
func SettingsFromConfig(cfg *config.Config, rules *config.Rules) Settings {
	settings := Settings{
		RetryBackoff:    cfg.RetryBackoff,
		DefaultCurrency: cfg.DefaultCurrency,
		MaxAttempts:     map[platform.ID]int{platform.Amazon: cfg.AmazonMaxAttempts},
		MinPrice:        map[platform.ID]*decimal.Decimal{},
	}
	if rules == nil {
		return settings
	}
	for name, rule := range rules.Platforms {
		id := platform.ID(name)
		if rule.MaxAttempts > 0 {
			settings.MaxAttempts[id] = rule.MaxAttempts
		}
		if rule.MinPrice != nil {
			if *rule.MinPrice <= 0 {
				settings.MinPrice[id] = nil
			} else {
				floor := decimal.NewFromFloat(*rule.MinPrice)
				settings.MinPrice[id] = &floor
			}
		}
	}
	return settings
}

// CreateStrategies builds the strategy of every known platform
func CreateStrategies(fetcher Fetcher, settings Settings) []Strategy {
	configs := createStrategyConfigs()
	strategies := make([]Strategy, 0, len(configs))
	for _, cfg := range configs {
		if n, ok := settings.MaxAttempts[cfg.Platform]; ok && n > 0 {
			cfg.MaxAttempts = n
		}
		if floor, ok := settings.MinPrice[cfg.Platform]; ok {
			cfg.MinPrice = floor
		}
		cfg.Selectors = withStructuredData(cfg.Selectors)
		strategies = append(strategies, NewSelectorStrategy(cfg, fetcher, settings))
	}
	return strategies
}

func price(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// createStrategyConfigs defines each platform's selectors in priority order
func createStrategyConfigs() []StrategyConfig {
	return []StrategyConfig{
		{
			// Amazon pages are A/B tested heavily and guarded by bot mitigation
			Platform:    platform.Amazon,
			MaxAttempts: 3,
			MinPrice:    price(100),
			Selectors: Selectors{
				Title: []Locator{Text("#productTitle"), Text("#title")},
				Price: []Locator{
					Text("#corePriceDisplay_desktop_feature_div .priceToPay .a-offscreen"),
					Text("#corePriceDisplay_desktop_feature_div .a-price .a-offscreen"),
					Text("#corePrice_feature_div .a-price .a-offscreen"),
					Text("#priceblock_dealprice"),
					Text("#priceblock_ourprice"),
					Text("#price_inside_buybox"),
					Text("#apex_desktop .a-price .a-offscreen"),
				},
				OriginalPrice: []Locator{
					Text("#corePriceDisplay_desktop_feature_div .basisPrice .a-offscreen"),
					Text("#corePriceDisplay_desktop_feature_div .a-text-price .a-offscreen"),
					Text("#priceblock_listprice"),
					Text("#listPrice"),
				},
				Image: []Locator{
					Attr("#landingImage", "data-old-hires"),
					DynamicImage("#landingImage"),
					DynamicImage("#imgBlkFront"),
					Attr("#landingImage", "src"),
					Attr("#main-image", "src"),
				},
				Rating: []Locator{
					Attr("#acrPopover", "title"),
					Text("#acrPopover .a-icon-alt"),
					Text(`[data-hook="rating-out-of-text"]`),
				},
				ReviewCount: []Locator{Text("#acrCustomerReviewText")},
				Description: []Locator{Text("#feature-bullets ul"), Text("#productDescription")},
				Category:    []Locator{Breadcrumbs("#wayfinding-breadcrumbs_feature_div ul li a")},
			},
		},
		{
			Platform:    platform.Flipkart,
			MaxAttempts: 2,
			Selectors: Selectors{
				Title:         []Locator{Text("span.VU-ZEz"), Text("span.B_NuCI"), Text("h1 span")},
				Price:         []Locator{Text("div.Nx9bqj.CxhGGd"), Text("div._30jeq3._16Jk6d"), Text("div.Nx9bqj"), Text("div._30jeq3")},
				OriginalPrice: []Locator{Text("div.yRaY8j"), Text("div._3I9_wc._2p6lqe")},
				Image:         []Locator{Attr("img.DByuf4", "src"), Attr("img._396cs4", "src"), Attr("img._2r_T1I", "src")},
				Rating:        []Locator{Text("div.XQDdHH"), Text("div._3LWZlK")},
				ReviewCount:   []Locator{Text("span.Wphh3N"), Text("span._2_R_DZ")},
				Description:   []Locator{Text("div._1mXcCf"), Text("div._4gvKMe")},
				Category:      []Locator{Breadcrumbs("div.r2CdBx a"), Breadcrumbs("div._1MR4o5 a")},
			},
		},
		{
			Platform:    platform.Myntra,
			MaxAttempts: 1,
			Selectors: Selectors{
				Title:         []Locator{Text("h1.pdp-name"), Text("h1.pdp-title")},
				Price:         []Locator{Text("span.pdp-price strong"), Text(".pdp-price")},
				OriginalPrice: []Locator{Text("span.pdp-mrp s"), Text(".pdp-mrp")},
				Image:         []Locator{StyleImage("div.image-grid-image"), Attr("img.image-grid-imageV2", "src")},
				Rating:        []Locator{Text(".index-overallRating div")},
				ReviewCount:   []Locator{Text(".index-ratingsCount")},
				Description:   []Locator{Text(".pdp-product-description-content")},
				Category:      []Locator{Breadcrumbs(".breadcrumbs-container a")},
			},
		},
		{
			Platform:    platform.Ajio,
			MaxAttempts: 1,
			Selectors: Selectors{
				Title:         []Locator{Text("h1.prod-name"), Text(".prod-name")},
				Price:         []Locator{Text(".prod-sp"), Text(".prod-price-section .prod-sp")},
				OriginalPrice: []Locator{Text(".prod-cp")},
				Image:         []Locator{Attr("img.rilrtl-lazy-img", "src"), Attr(".zoom-wrap img", "src")},
				Rating:        []Locator{Text("._3hKsq span")},
				Description:   []Locator{Text("ul.prod-list")},
				Category:      []Locator{Breadcrumbs("ul.breadcrumb-sec li a")},
			},
		},
		{
			Platform:    platform.Nykaa,
			MaxAttempts: 1,
			Selectors: Selectors{
				Title:         []Locator{Text("h1.css-1gc4x7i"), Text("h1")},
				Price:         []Locator{Text("span.css-1jczs19"), Text(".css-1d0jf8e span")},
				OriginalPrice: []Locator{Text("span.css-u05rr span"), Text(".css-1d0jf8e span.css-u05rr")},
				Image:         []Locator{Attr(".css-43m2vm img", "src")},
				Rating:        []Locator{Text(".css-m6n3ou")},
				ReviewCount:   []Locator{Text(".css-1hvvm95")},
				Category:      []Locator{Breadcrumbs(".css-1uxnb1o a")},
			},
		},
		{
			Platform:    platform.Meesho,
			MaxAttempts: 1,
			Selectors: Selectors{
				Title:         []Locator{Text(`[class*="ProductTitle"]`), Text("h1")},
				Price:         []Locator{Text(`h4[class*="Price"]`), Text("h4")},
				OriginalPrice: []Locator{Text(`p[class*="MRP"] del`)},
				Image:         []Locator{Attr(`[class*="ProductImage"] img`, "src")},
				Rating:        []Locator{Text(`[class*="RatingBadge"] span`)},
				ReviewCount:   []Locator{Text(`[class*="RatingReview"] span`)},
			},
		},
		{
			Platform:    platform.TataCliq,
			MaxAttempts: 1,
			Selectors: Selectors{
				Title:         []Locator{Text("h1.ProductDetailsMainCard__productName"), Text("h1")},
				Price:         []Locator{Text(".ProductDetailsMainCard__price h3"), Text(".ProductDetailsMainCard__price")},
				OriginalPrice: []Locator{Text(".ProductDetailsMainCard__cancelPrice")},
				Image:         []Locator{Attr(".ProductGalleryDesktop__image img", "src")},
				Rating:        []Locator{Text(".ProductDetailsMainCard__ratingLabel")},
				Description:   []Locator{Text(".ProductDescription__content")},
				Category:      []Locator{Breadcrumbs(".Breadcrumbs__listItem a")},
			},
		},
		{
			Platform:    platform.Croma,
			MaxAttempts: 1,
			Selectors: Selectors{
				Title:         []Locator{Text("h1.pd-title"), Text("h1")},
				Price:         []Locator{Text("#pdp-product-price"), Text(".pdp-price .amount"), Text(".amount")},
				OriginalPrice: []Locator{Text("#old-price"), Text(".old-price .amount")},
				Image:         []Locator{Attr("img#0prod_img", "src"), Attr(".product-gallery img", "data-src")},
				Rating:        []Locator{Text(".cp-rating span")},
				Description:   []Locator{Text(".key-features-box ul")},
				Category:      []Locator{Breadcrumbs(".breadcrumb li a")},
			},
		},
	}
}
