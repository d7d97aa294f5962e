package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/normalize"
)

var styleURLRe = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// Text returns the first non-empty text of the elements matching selector
func Text(selector string) Locator {
	return func(p *Page) string {
		var value string
		p.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value = helpers.CollapseSpace(s.Text())
			return value == ""
		})
		return value
	}
}

// Attr returns the first non-empty attribute value of the elements matching selector
func Attr(selector, attr string) Locator {
	return func(p *Page) string {
		var value string
		p.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value = strings.TrimSpace(s.AttrOr(attr, ""))
			return value == ""
		})
		return value
	}
}

// Meta returns the content of a <meta> tag addressed by property or name
func Meta(key string) Locator {
	return Attr(`meta[property="`+key+`"], meta[name="`+key+`"], meta[itemprop="`+key+`"]`, "content")
}

// JSONLD returns a field of the page's schema.org Product
func JSONLD(field string) Locator {
	return func(p *Page) string {
		return p.JSONLD(field)
	}
}

// DynamicImage reads the first URL of a data-a-dynamic-image style JSON map
func DynamicImage(selector string) Locator {
	return func(p *Page) string {
		return normalize.FirstDynamicImage(Attr(selector, "data-a-dynamic-image")(p))
	}
}

// StyleImage reads the url(...) of an inline background-image style
func StyleImage(selector string) Locator {
	return func(p *Page) string {
		if m := styleURLRe.FindStringSubmatch(Attr(selector, "style")(p)); m != nil {
			return m[1]
		}
		return ""
	}
}

// Breadcrumbs joins the non-empty texts of the matched crumbs with " > "
func Breadcrumbs(selector string) Locator {
	return func(p *Page) string {
		var crumbs []string
		p.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			crumb := helpers.CollapseSpace(s.Text())
			if crumb != "" && crumb != "›" && crumb != ">" && !strings.EqualFold(crumb, "home") {
				crumbs = append(crumbs, crumb)
			}
		})
		return strings.Join(crumbs, " > ")
	}
}

// structuredData are the page-agnostic locators appended to every platform's
// selectors after its own markup rules
var structuredData = Selectors{
	Title:         []Locator{JSONLD("name"), Meta("og:title")},
	Price:         []Locator{JSONLD("price"), Meta("product:price:amount"), Meta("og:price:amount"), Attr(`[itemprop="price"]`, "content")},
	OriginalPrice: []Locator{JSONLD("highPrice")},
	Image:         []Locator{Meta("og:image"), JSONLD("image"), Meta("twitter:image")},
	Rating:        []Locator{JSONLD("ratingValue")},
	ReviewCount:   []Locator{JSONLD("reviewCount")},
	Description:   []Locator{JSONLD("description"), Meta("og:description"), Meta("description")},
	Category:      []Locator{JSONLD("category")},
}

// withStructuredData appends the structured-data fallbacks to s
func withStructuredData(s Selectors) Selectors {
	join := func(own, fallback []Locator) []Locator {
		out := make([]Locator, 0, len(own)+len(fallback))
		return append(append(out, own...), fallback...)
	}
	return Selectors{
		Title:         join(s.Title, structuredData.Title),
		Price:         join(s.Price, structuredData.Price),
		OriginalPrice: join(s.OriginalPrice, structuredData.OriginalPrice),
		Image:         join(s.Image, structuredData.Image),
		Rating:        join(s.Rating, structuredData.Rating),
		ReviewCount:   join(s.ReviewCount, structuredData.ReviewCount),
		Description:   join(s.Description, structuredData.Description),
		Category:      join(s.Category, structuredData.Category),
	}
}
