package helpers

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	apperrors "sjsage522/deallinker/pkg/errors"
)

// HTTP client and header configurations
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	}

	referers = []string{
		"https://www.google.com/",
		"https://t.me/",
		"https://www.bing.com/",
	}
)

const defaultMaxBodyBytes = 5 * 1024 * 1024

// Page is a fetched HTML document converted to UTF-8
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client performs browser-like HTTP requests
type Client struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewClient creates a client whose requests are time-boxed by timeout.
// The client follows redirects automatically; use NewManualRedirectClient when
// every hop must be inspected.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		client:       &http.Client{Timeout: timeout},
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

// WithTransport replaces the round tripper used for requests
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.client.Transport = rt
	return c
}

// NewManualRedirectClient returns an http.Client that never follows redirects
func NewManualRedirectClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// SetBrowserHeaders sets a realistic User-Agent and the standard Accept headers
func SetBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgents[mathrand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-IN,en-US;q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Referer", referers[mathrand.Intn(len(referers))])
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
}

// Fetch sends a GET request with browser headers and returns the body as UTF-8.
// Rate limiting yields a rate_limit PipelineError, every other failure a network one.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.NewNetwork("", "failed to create request", err)
	}
	SetBrowserHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetwork("", "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	// Check for rate limiting
	if isRateLimited(resp) {
		return nil, apperrors.NewRateLimit("", retryAfter(resp.Header.Get("Retry-After")))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewNetwork("", fmt.Sprintf("fetch %s unexpected status code: %d", rawURL, resp.StatusCode), nil)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, apperrors.NewNetwork("", "failed to read response body", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// readBody decodes the content encoding, caps the size and converts to UTF-8
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	raw, err := io.ReadAll(io.LimitReader(reader, c.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", c.maxBodyBytes)
	}

	// Determine the encoding from Content-Type header and body content
	encoding, name, _ := charset.DetermineEncoding(raw, resp.Header.Get("Content-Type"))
	if strings.EqualFold(name, "utf-8") {
		return raw, nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, encoding.NewDecoder().Reader(bytes.NewReader(raw))); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}
	return buf.Bytes(), nil
}

// isRateLimited treats 429/430 as rate limiting, and 503 only when the server
// also says when to come back
func isRateLimited(resp *http.Response) bool {
	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		return true
	}
	return resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != ""
}

func retryAfter(value string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
