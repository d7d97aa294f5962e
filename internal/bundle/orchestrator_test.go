package bundle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/deallinker/config"
	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/affiliate"
	"sjsage522/deallinker/internal/extract"
	"sjsage522/deallinker/internal/linker"
	"sjsage522/deallinker/internal/platform"
	"sjsage522/deallinker/internal/testutil"
	apperrors "sjsage522/deallinker/pkg/errors"
)

// fakeStrategy answers from a table and records concurrency
type fakeStrategy struct {
	name     string
	products map[string]*extract.ExtractedProduct
	delay    time.Duration
	block    bool

	calls    int32
	inFlight int32
	maxSeen  int32
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(ctx context.Context, url string) (*extract.ExtractedProduct, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}

	if f.block {
		<-ctx.Done()
		return nil, apperrors.NewNetwork(f.name, "timeout", ctx.Err())
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if p, ok := f.products[url]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, apperrors.NewPlausibility(f.name, "no plausible price")
}

func product(url, title, price string) *extract.ExtractedProduct {
	p := decimal.RequireFromString(price)
	return &extract.ExtractedProduct{
		URL:      url,
		Title:    title,
		Price:    &p,
		Currency: "INR",
		ImageURL: "https://img.example.com/" + strings.ReplaceAll(title, " ", "-") + ".jpg",
		Source:   extract.SourceScrape,
	}
}

var testRules = &config.Rules{
	Networks: []config.NetworkRule{
		{ID: "amazon_associates", Platform: "amazon", Kind: "param", Params: map[string]string{"tag": "mytag-21"}},
	},
}

func newTestOrchestrator(strategy extract.Strategy, resolver *linker.Resolver) *Orchestrator {
	snapshot := affiliate.NewSnapshot(testRules)
	return NewOrchestrator(Options{
		Locator:         linker.NewLocator(resolver),
		Registry:        extract.NewRegistry(strategy),
		Converter:       affiliate.NewConverter(snapshot.Tracking(), nil, nil),
		Snapshot:        snapshot,
		Concurrency:     3,
		LinkTimeout:     2 * time.Second,
		DefaultCurrency: "INR",
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		links int
		want  Kind
	}{
		{0, KindNone}, {1, KindSingle}, {2, KindSmall}, {3, KindSmall}, {4, KindLarge}, {12, KindLarge},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.links), "links=%d", tt.links)
	}
}

func TestProcessNoLinks(t *testing.T) {
	o := newTestOrchestrator(&fakeStrategy{name: "generic"}, nil)
	result := o.Process(context.Background(), Message{Text: "good morning, no deals today"})

	assert.Equal(t, KindNone, result.Kind)
	assert.Empty(t, result.Records)
}

func TestProcessSingleResolvesAndConverts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host == "amzn.to" {
			http.Redirect(w, r, "https://www.amazon.in/dp/B000123456?tag=old", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := helpers.NewManualRedirectClient(2 * time.Second)
	client.Transport = testutil.NewHostRewriter(srv.URL)
	resolver := linker.NewResolver(linker.ResolverOptions{Client: client})

	final := "https://www.amazon.in/dp/B000123456?tag=old"
	strategy := &fakeStrategy{name: "generic", products: map[string]*extract.ExtractedProduct{
		final: product(final, "boAt Airdopes 141", "1299"),
	}}
	o := newTestOrchestrator(strategy, resolver)

	result := o.Process(context.Background(), Message{ID: "m1", Text: "Check this out https://amzn.to/abc123"})

	require.Len(t, result.Records, 1)
	record := result.Records[0]
	assert.Equal(t, KindSingle, result.Kind)
	assert.Empty(t, record.GroupID)
	assert.Equal(t, 1, record.SequenceInGroup)
	assert.Equal(t, 1, record.TotalInGroup)
	assert.Equal(t, "m1", record.MessageID)
	assert.Equal(t, "https://amzn.to/abc123", record.OriginalURL)
	assert.Equal(t, platform.Amazon, record.Platform)
	assert.Equal(t, "1299.00", record.Price)
	assert.True(t, record.Converted)
	assert.Contains(t, record.AffiliateURL, "tag=mytag-21")
	assert.NotContains(t, record.AffiliateURL, "tag=old")
	assert.Equal(t, 1, result.Succeeded)
}

func TestProcessSingleFallsBackToText(t *testing.T) {
	o := newTestOrchestrator(&fakeStrategy{name: "generic"}, nil)

	result := o.Process(context.Background(), Message{
		Text:           "Philips BT3221 trimmer at ₹1,199 https://shop.example.com/p/9",
		AttachedImages: []string{"https://cdn.chat.example/img1.jpg"},
	})

	require.Len(t, result.Records, 1)
	record := result.Records[0]
	assert.Equal(t, extract.SourceFallback, record.Source)
	assert.Equal(t, "Philips BT3221 trimmer", record.Title)
	assert.Equal(t, "1199.00", record.Price)
	assert.Equal(t, "https://cdn.chat.example/img1.jpg", record.ImageURL)
	assert.True(t, record.Converted)
	assert.Equal(t, affiliate.GenericNetwork, record.Network)
	assert.Equal(t, "0.00", record.CommissionEstimate)
	assert.Equal(t, 0, result.Succeeded)
}

// pageFetcher serves one body for every URL and counts fetches
type pageFetcher struct {
	body  string
	calls int32
}

func (f *pageFetcher) Fetch(_ context.Context, _ platform.ID, url string) (*helpers.Page, error) {
	atomic.AddInt32(&f.calls, 1)
	return &helpers.Page{URL: url, FinalURL: url, StatusCode: http.StatusOK, Body: []byte(f.body)}, nil
}

func TestProcessBotCheckPageFallsBackToText(t *testing.T) {
	fetcher := &pageFetcher{body: `<html><head><title>Amazon.in</title></head><body><p>Enter the characters you see below</p></body></html>`}
	registry := extract.NewDefaultRegistry(fetcher, extract.Settings{
		DefaultCurrency: "INR",
		Sleep:           func(context.Context, time.Duration) error { return nil },
	})
	snapshot := affiliate.NewSnapshot(testRules)
	o := NewOrchestrator(Options{
		Locator:         linker.NewLocator(nil),
		Registry:        registry,
		Converter:       affiliate.NewConverter(snapshot.Tracking(), nil, nil),
		Snapshot:        snapshot,
		DefaultCurrency: "INR",
	})

	result := o.Process(context.Background(), Message{Text: "boAt Airdopes 141 at ₹999 https://www.amazon.in/dp/B09N3ZNHTY"})

	require.Len(t, result.Records, 1)
	record := result.Records[0]
	assert.Equal(t, int32(3), atomic.LoadInt32(&fetcher.calls))
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, extract.SourceFallback, record.Source)
	assert.Equal(t, "boAt Airdopes 141", record.Title)
	assert.Equal(t, "999.00", record.Price)
	assert.True(t, record.LowConfidence)
}

func TestProcessPlaceholderPriceMergesText(t *testing.T) {
	url := "https://shop.example.com/p/7"
	placeholder := extract.PlaceholderPrice
	degraded := &extract.ExtractedProduct{
		URL:           url,
		Title:         "Shop | Product",
		Price:         &placeholder,
		Currency:      "INR",
		ImageURL:      "https://shop.example.com/img/7.jpg",
		Source:        extract.SourceGeneric,
		LowConfidence: true,
	}
	o := newTestOrchestrator(&fakeStrategy{name: "generic", products: map[string]*extract.ExtractedProduct{url: degraded}}, nil)

	result := o.Process(context.Background(), Message{Text: "Philips BT3221 trimmer at ₹1,199 " + url})

	require.Len(t, result.Records, 1)
	record := result.Records[0]
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, "Philips BT3221 trimmer", record.Title)
	assert.Equal(t, "1199.00", record.Price)
	assert.Equal(t, "https://shop.example.com/img/7.jpg", record.ImageURL)
	assert.True(t, record.LowConfidence)
}

func TestProcessPlaceholderPriceWithoutTextPrice(t *testing.T) {
	url := "https://shop.example.com/p/8"
	placeholder := extract.PlaceholderPrice
	degraded := &extract.ExtractedProduct{
		URL:           url,
		Title:         "Widget Pro Max",
		Price:         &placeholder,
		Currency:      "INR",
		Source:        extract.SourceGeneric,
		LowConfidence: true,
	}
	o := newTestOrchestrator(&fakeStrategy{name: "generic", products: map[string]*extract.ExtractedProduct{url: degraded}}, nil)

	result := o.Process(context.Background(), Message{Text: url})

	require.Len(t, result.Records, 1)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, "Widget Pro Max", result.Records[0].Title)
	assert.Equal(t, "0.00", result.Records[0].Price)
}

func TestProcessOneLineBundleKeepsEachLinksText(t *testing.T) {
	o := newTestOrchestrator(&fakeStrategy{name: "generic"}, nil)

	result := o.Process(context.Background(), Message{
		Text: "Loot: boAt Airdopes 141 ₹999 https://shop.example.com/a | Noise Buds VS104 ₹1,499 https://shop.example.com/b | Realme Buds T300 ₹2,299 https://shop.example.com/c",
	})

	require.Len(t, result.Records, 3)
	titles := []string{"boAt Airdopes 141", "Noise Buds VS104", "Realme Buds T300"}
	prices := []string{"999.00", "1499.00", "2299.00"}
	for i, record := range result.Records {
		assert.Equal(t, titles[i], record.Title)
		assert.Equal(t, prices[i], record.Price)
	}
}

func TestProcessSmallBundleIsolatesFailures(t *testing.T) {
	urls := []string{"https://shop.example.com/a", "https://shop.example.com/b", "https://shop.example.com/c"}
	strategy := &fakeStrategy{name: "generic", products: map[string]*extract.ExtractedProduct{
		urls[0]: product(urls[0], "Product Alpha", "100"),
		urls[2]: product(urls[2], "Product Gamma", "300"),
	}}
	o := newTestOrchestrator(strategy, nil)

	result := o.Process(context.Background(), Message{Text: strings.Join(urls, "\n")})

	assert.Equal(t, KindSmall, result.Kind)
	require.Len(t, result.Records, 3)
	assert.NotEmpty(t, result.GroupID)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Succeeded)

	for i, record := range result.Records {
		assert.Equal(t, result.GroupID, record.GroupID)
		assert.Equal(t, i+1, record.SequenceInGroup)
		assert.Equal(t, 3, record.TotalInGroup)
		assert.Equal(t, urls[i], record.URL)
		assert.Equal(t, KindSmall, record.BundleKind)
		assert.NotEmpty(t, record.AffiliateURL)
	}
	assert.Equal(t, extract.SourceFallback, result.Records[1].Source)
}

func TestProcessSmallBundleRespectsConcurrency(t *testing.T) {
	strategy := &fakeStrategy{name: "generic", delay: 50 * time.Millisecond}
	snapshot := affiliate.NewSnapshot(nil)
	o := NewOrchestrator(Options{
		Locator:     linker.NewLocator(nil),
		Registry:    extract.NewRegistry(strategy),
		Converter:   affiliate.NewConverter(snapshot.Tracking(), nil, nil),
		Concurrency: 2,
	})

	o.Process(context.Background(), Message{Text: "https://x.com/1 https://x.com/2 https://x.com/3"})

	assert.Equal(t, int32(3), atomic.LoadInt32(&strategy.calls))
	assert.LessOrEqual(t, atomic.LoadInt32(&strategy.maxSeen), int32(2))
}

func TestProcessLargeBundleFetchesOnlyPrimary(t *testing.T) {
	lines := []string{
		"Redmi Note 13 at ₹17,999 https://shop.example.com/redmi",
		"Noise ColorFit Pro at ₹1,499 https://shop.example.com/noise",
		"Fire-Boltt Ninja at ₹1,099 https://shop.example.com/fb",
		"Mi Power Bank at ₹999 https://shop.example.com/mi",
		"Realme Buds at ₹1,299 https://shop.example.com/realme",
	}
	primaryURL := "https://shop.example.com/redmi"
	strategy := &fakeStrategy{name: "generic", products: map[string]*extract.ExtractedProduct{
		primaryURL: product(primaryURL, "Redmi Note 13 5G", "17999"),
	}}
	o := newTestOrchestrator(strategy, nil)

	result := o.Process(context.Background(), Message{Text: strings.Join(lines, "\n")})

	assert.Equal(t, KindLarge, result.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&strategy.calls))
	require.Len(t, result.Records, 1)

	primary := result.Records[0]
	assert.Equal(t, "Redmi Note 13 5G", primary.Title)
	assert.Equal(t, 5, primary.TotalInGroup)
	assert.Equal(t, result.GroupID, primary.GroupID)
	require.Len(t, primary.AdditionalProducts, primary.TotalInGroup-1)

	stub := primary.AdditionalProducts[0]
	assert.Equal(t, "Noise ColorFit Pro", stub.Title)
	assert.Equal(t, "1499.00", stub.Price)
	assert.Equal(t, extract.SourceStub, stub.Source)
	assert.NotEmpty(t, stub.AffiliateURL)
	assert.True(t, stub.Converted)
}

func TestProcessLinkTimeoutDegrades(t *testing.T) {
	strategy := &fakeStrategy{name: "generic", block: true}
	snapshot := affiliate.NewSnapshot(nil)
	o := NewOrchestrator(Options{
		Locator:     linker.NewLocator(nil),
		Registry:    extract.NewRegistry(strategy),
		Converter:   affiliate.NewConverter(snapshot.Tracking(), nil, nil),
		LinkTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	result := o.Process(context.Background(), Message{Text: "Some Thing at ₹500 https://x.com/p"})

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, result.Records, 1)
	assert.Equal(t, extract.SourceFallback, result.Records[0].Source)
}

func TestProcessUsesMessageChannel(t *testing.T) {
	rules := &config.Rules{
		Networks: []config.NetworkRule{
			{ID: "amazon_associates", Platform: "amazon", Kind: "param", Params: map[string]string{"tag": "main-21"}},
			{ID: "amazon_alt", Platform: "amazon", Kind: "param", Params: map[string]string{"tag": "alt-21"}},
		},
		Channels: map[string][]string{"main": {"amazon_associates"}, "alt": {"amazon_alt"}},
	}
	snapshot := affiliate.NewSnapshot(rules)
	o := NewOrchestrator(Options{
		Locator:   linker.NewLocator(nil),
		Registry:  extract.NewRegistry(&fakeStrategy{name: "generic"}),
		Converter: affiliate.NewConverter(snapshot.Tracking(), nil, nil),
		Snapshot:  snapshot,
		Channel:   "main",
	})

	def := o.Process(context.Background(), Message{Text: "https://www.amazon.in/dp/B01"})
	alt := o.Process(context.Background(), Message{Text: "https://www.amazon.in/dp/B01", Channel: "alt"})

	assert.Contains(t, def.Records[0].AffiliateURL, "tag=main-21")
	assert.Contains(t, alt.Records[0].AffiliateURL, "tag=alt-21")
}

// every record, whatever its path, carries a usable affiliate URL
func TestProcessAffiliateURLAlwaysValid(t *testing.T) {
	strategy := &fakeStrategy{name: "generic"}
	o := newTestOrchestrator(strategy, nil)

	var records []ProductRecord
	for n := 1; n <= 6; n++ {
		var urls []string
		for i := 0; i < n; i++ {
			urls = append(urls, fmt.Sprintf("https://shop%d.example.com/p/%d", i, n))
		}
		result := o.Process(context.Background(), Message{Text: strings.Join(urls, " ")})
		records = append(records, result.Records...)
	}

	for _, r := range records {
		assert.True(t, strings.HasPrefix(r.AffiliateURL, "https://"), r.AffiliateURL)
		for _, s := range r.AdditionalProducts {
			assert.True(t, strings.HasPrefix(s.AffiliateURL, "https://"), s.AffiliateURL)
		}
	}
}
