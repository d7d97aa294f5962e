package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		url      string
		expected ID
	}{
		{"https://www.amazon.in/dp/B000123456?tag=old", Amazon},
		{"https://AMAZON.com/gp/product/B0C1", Amazon},
		{"https://smile.amazon.co.uk/dp/X", Amazon},
		{"https://www.flipkart.com/item/p/itm123", Flipkart},
		{"https://dl.flipkart.com/s/abc", Flipkart},
		{"https://www.myntra.com/shoes/123/buy", Myntra},
		{"https://www.ajio.com/p/4600", Ajio},
		{"https://www.nykaafashion.com/p/1", Nykaa},
		{"https://www.meesho.com/s/p/1", Meesho},
		{"https://www.tatacliq.com/p-mp1", TataCliq},
		{"https://www.croma.com/p/1", Croma},
		{"https://notflipkart.com.evil.io/x", Generic},
		{"https://shop.example.com/item", Generic},
		{"://bad url", Generic},
		{"", Generic},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, Classify(tc.url), tc.url)
	}
}

func TestShortenersAndWrappers(t *testing.T) {
	assert.True(t, IsShortener("amzn.to"))
	assert.True(t, IsShortener("WWW.Bit.ly"))
	assert.False(t, IsShortener("amazon.in"))

	assert.True(t, IsAffiliateWrapper("linksredirect.com"))
	assert.False(t, IsAffiliateWrapper("amzn.to"))
}

func TestShortenersList(t *testing.T) {
	hosts := Shorteners()
	assert.Len(t, hosts, len(shorteners))
	assert.Contains(t, hosts, "a.co")
	assert.Contains(t, hosts, "rb.gy")
	for i := 1; i < len(hosts); i++ {
		assert.GreaterOrEqual(t, len(hosts[i-1]), len(hosts[i]))
	}
}

func TestHost(t *testing.T) {
	assert.Equal(t, "amazon.in", Host("https://www.Amazon.in/dp/1"))
	assert.Equal(t, "", Host("%%%"))
	assert.Len(t, Known(), 8)
}
