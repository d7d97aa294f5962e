package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/deallinker/config"
	"sjsage522/deallinker/internal/bundle"
	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/internal/testutil"
	"sjsage522/deallinker/services/cache"
	"sjsage522/deallinker/services/publisher"
	"sjsage522/deallinker/services/source"
	"sjsage522/deallinker/services/worker"
)

// A trimmed product page carrying the selectors the amazon strategy reads
const amazonHTML = `
<!DOCTYPE html>
<html>
<head><title>Amazon.in</title></head>
<body>
    <span id="productTitle"> boAt Airdopes 141 Bluetooth Earbuds </span>
    <div id="corePriceDisplay_desktop_feature_div">
        <span class="a-price priceToPay"><span class="a-offscreen">₹1,299</span></span>
        <span class="a-price a-text-price basisPrice"><span class="a-offscreen">₹4,490</span></span>
    </div>
    <img id="landingImage" data-old-hires="https://m.media-amazon.com/images/I/61a.jpg" src="https://m.media-amazon.com/images/I/61a._SX300_.jpg" />
</body>
</html>
`

const testRulesYAML = `
networks:
  - id: amazon_associates
    platform: amazon
    kind: param
    params: {tag: mytag-21}
    commission_rate: 0.04
channels:
  main: [amazon_associates]
`

func newFakeInternet(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Host {
		case "amzn.to":
			http.Redirect(w, r, "https://www.amazon.in/dp/B0TEST1234?ref_=share", http.StatusMovedPermanently)
		case "www.amazon.in":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, amazonHTML)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.LoadConfig()
	cfg.FetchTimeout = 2 * time.Second
	cfg.LinkTimeout = 5 * time.Second
	cfg.MessageTimeout = 10 * time.Second
	cfg.RetryBackoff = 0
	cfg.RequestsPerSecond = 100
	cfg.DefaultCurrency = "INR"
	cfg.Channel = "main"
	return cfg
}

// TestIntegration runs a chat message through the whole pipeline: stream in,
// redirect resolution, page extraction, affiliate conversion and stream out
func TestIntegration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newFakeInternet(t)
	cfg := newTestConfig(t)
	rules, err := config.ParseRules(strings.NewReader(testRulesYAML))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := source.NewRedisSource(client, "chat:messages", "deallinker", "it").WithBlock(20 * time.Millisecond)
	require.NoError(t, src.EnsureGroup(ctx))
	pub := publisher.NewRedisPublisher(client, "deallinker:products", 100)

	m := metrics.New()
	orchestrator := buildOrchestrator(cfg, rules, cache.NewMemoryCache(), m, testutil.NewHostRewriter(server.URL))
	w := worker.NewWorker(src, pub, orchestrator, cfg.MessageTimeout, m)

	payload, err := json.Marshal(bundle.Message{
		ID:             "msg-1",
		Text:           "Loot deal on earbuds https://amzn.to/abc123\nPhilips BT3221 trimmer at ₹1,199 https://shop.example.com/p/9",
		AttachedImages: []string{"https://cdn.example.com/trimmer.jpg"},
	})
	require.NoError(t, err)
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "chat:messages",
		Values: map[string]interface{}{source.MessageKey: string(payload)},
	}).Err())

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	var entries []redis.XMessage
	require.Eventually(t, func() bool {
		entries, err = client.XRange(ctx, "deallinker:products", "-", "+").Result()
		return err == nil && len(entries) == 2
	}, 10*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	records := make([]bundle.ProductRecord, 0, len(entries))
	for _, entry := range entries {
		raw, err := base64.StdEncoding.DecodeString(entry.Values[publisher.RecordKey].(string))
		require.NoError(t, err)
		var record bundle.ProductRecord
		require.NoError(t, json.Unmarshal(raw, &record))
		records = append(records, record)
	}

	amazon, shop := records[0], records[1]
	if amazon.Platform != "amazon" {
		amazon, shop = shop, amazon
	}

	assert.Equal(t, "msg-1", amazon.MessageID)
	assert.Equal(t, "https://amzn.to/abc123", amazon.OriginalURL)
	assert.Len(t, amazon.RedirectChain, 2)
	assert.Equal(t, "boAt Airdopes 141 Bluetooth Earbuds", amazon.Title)
	assert.Equal(t, "1299.00", amazon.Price)
	assert.Equal(t, "INR", amazon.Currency)
	assert.Equal(t, "https://m.media-amazon.com/images/I/61a.jpg", amazon.ImageURL)
	assert.Equal(t, "amazon_associates", amazon.Network)
	assert.True(t, amazon.Converted)
	assert.Contains(t, amazon.AffiliateURL, "tag=mytag-21")
	assert.Equal(t, "51.96", amazon.CommissionEstimate)

	assert.Equal(t, "fallback", string(shop.Source))
	assert.True(t, shop.LowConfidence)
	assert.Equal(t, "1199.00", shop.Price)
	assert.Equal(t, "https://cdn.example.com/trimmer.jpg", shop.ImageURL)
	assert.Equal(t, "generic", shop.Network)
	assert.Contains(t, shop.AffiliateURL, "utm_source=")

	assert.Equal(t, bundle.KindSmall, amazon.BundleKind)
	assert.Equal(t, amazon.GroupID, shop.GroupID)
	assert.NotEmpty(t, amazon.GroupID)
	assert.Equal(t, 2, amazon.TotalInGroup)

	pending, err := client.XPending(ctx, "chat:messages", "deallinker").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestServeMetrics(t *testing.T) {
	m := metrics.New()
	m.ObservePublished(3)

	server := serveMetrics("127.0.0.1:0", m)
	defer server.Close()

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deallinker_records_published_total 3")
}
