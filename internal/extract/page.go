package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "sjsage522/deallinker/pkg/errors"
)

// Page is a parsed document together with lazily computed views of it
type Page struct {
	URL string
	Doc *goquery.Document

	ld   map[string]string
	text string
}

// NewPage parses an HTML body fetched from url
func NewPage(url string, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewParsing("", "HTML parsing error", err)
	}
	return &Page{URL: url, Doc: doc}, nil
}

// Text returns the lower-cased visible text of the body
func (p *Page) Text() string {
	if p.text == "" {
		body := p.Doc.Find("body").Clone()
		body.Find("script, style, noscript").Remove()
		p.text = strings.ToLower(strings.Join(strings.Fields(body.Text()), " "))
	}
	return p.text
}

// JSONLD returns a flattened field of the first schema.org Product found in the
// page's ld+json scripts: name, description, image, price, priceCurrency,
// highPrice, ratingValue, reviewCount, category, brand
func (p *Page) JSONLD(field string) string {
	if p.ld == nil {
		p.ld = map[string]string{}
		p.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			var data any
			if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
				return true
			}
			if product := findProduct(data); product != nil {
				flattenProduct(product, p.ld)
				return false
			}
			return true
		})
	}
	return p.ld[field]
}

func findProduct(data any) map[string]any {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if found := findProduct(item); found != nil {
				return found
			}
		}
	case map[string]any:
		if isType(v["@type"], "Product") {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findProduct(graph)
		}
	}
	return nil
}

func isType(value any, want string) bool {
	switch t := value.(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if isType(item, want) {
				return true
			}
		}
	}
	return false
}

func flattenProduct(product map[string]any, out map[string]string) {
	set := func(key string, value any) {
		if s := scalar(value); s != "" && out[key] == "" {
			out[key] = s
		}
	}

	set("name", product["name"])
	set("description", product["description"])
	set("category", product["category"])
	set("image", firstImage(product["image"]))
	if brand, ok := product["brand"].(map[string]any); ok {
		set("brand", brand["name"])
	} else {
		set("brand", product["brand"])
	}

	offers := product["offers"]
	if list, ok := offers.([]any); ok && len(list) > 0 {
		offers = list[0]
	}
	if offer, ok := offers.(map[string]any); ok {
		set("price", offer["price"])
		set("price", offer["lowPrice"])
		set("highPrice", offer["highPrice"])
		set("priceCurrency", offer["priceCurrency"])
	}

	if rating, ok := product["aggregateRating"].(map[string]any); ok {
		set("ratingValue", rating["ratingValue"])
		set("reviewCount", rating["reviewCount"])
		set("reviewCount", rating["ratingCount"])
	}
}

func firstImage(value any) any {
	switch v := value.(type) {
	case []any:
		if len(v) > 0 {
			return firstImage(v[0])
		}
	case map[string]any:
		return v["url"]
	}
	return value
}

func scalar(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}
