package affiliate

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/internal/platform"
	"sjsage522/deallinker/logger"
	apperrors "sjsage522/deallinker/pkg/errors"
)

const urlPlaceholder = "{url}"

// Result is the outcome of converting one URL. When Converted is false,
// AffiliateURL equals OriginalURL.
type Result struct {
	OriginalURL        string            `json:"original_url"`
	AffiliateURL       string            `json:"affiliate_url"`
	Network            string            `json:"network"`
	TrackingParams     map[string]string `json:"tracking_params,omitempty"`
	CommissionEstimate *decimal.Decimal  `json:"commission_estimate,omitempty"`
	Converted          bool              `json:"converted"`
	FailureReason      string            `json:"failure_reason,omitempty"`
}

// Converter rewrites URLs for affiliate networks
type Converter struct {
	tracking Tracking
	signer   *Signer
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewConverter creates a converter. signer may be nil.
func NewConverter(tracking Tracking, signer *Signer, m *metrics.Metrics) *Converter {
	return &Converter{
		tracking: tracking,
		signer:   signer,
		metrics:  m,
		log:      logger.ForComponent("converter"),
	}
}

// Convert rewrites rawURL for network n. price feeds the commission estimate and
// may be nil. Failures return the original URL with Converted false.
func (c *Converter) Convert(rawURL string, n NetworkConfig, price *decimal.Decimal) Result {
	result, err := c.convert(rawURL, n, price)
	if err != nil {
		c.log.Debug().Err(err).Str("url", rawURL).Str("network", n.ID).Msg("Conversion failed")
		c.metrics.ObserveConversion(n.ID, false)
		return failure(rawURL, n.ID, err)
	}
	c.metrics.ObserveConversion(n.ID, true)
	return result
}

// ConvertForChannel tries the channel's networks that apply to rawURL's platform
// in priority order and returns the first success. With no applicable network the
// URL gets generic tracking; when every applicable network fails the original URL
// is returned unconverted.
func (c *Converter) ConvertForChannel(rawURL string, ch Channel, price *decimal.Decimal) Result {
	id := platform.Classify(rawURL)

	var reasons []string
	for _, n := range ch.Networks {
		if !supports(n, id) {
			continue
		}
		result := c.Convert(rawURL, n, price)
		if result.Converted {
			return result
		}
		reasons = append(reasons, n.ID+": "+result.FailureReason)
	}

	if len(reasons) == 0 {
		return c.Generic(rawURL)
	}

	c.log.Warn().
		Str("url", rawURL).
		Str("channel", ch.Name).
		Strs("reasons", reasons).
		Msg("Every affiliate network failed, keeping original URL")
	return failure(rawURL, "", fmt.Errorf("all networks failed: %s", strings.Join(reasons, "; ")))
}

// Generic adds attribution-only tracking parameters with zero commission
func (c *Converter) Generic(rawURL string) Result {
	result, err := c.generic(rawURL)
	if err != nil {
		c.metrics.ObserveConversion(GenericNetwork, false)
		return failure(rawURL, GenericNetwork, err)
	}
	c.metrics.ObserveConversion(GenericNetwork, true)
	return result
}

func (c *Converter) generic(rawURL string) (Result, error) {
	u, err := parseProductURL(rawURL)
	if err != nil {
		return Result{}, err
	}

	params := map[string]string{
		"utm_source":   c.tracking.Source,
		"utm_medium":   c.tracking.Medium,
		"utm_campaign": c.tracking.Campaign,
	}
	q := u.Query()
	q.Del(SignatureParam)
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	if c.signer != nil {
		sig := c.signer.Sign(Message(c.tracking, u.String()))
		q.Set(SignatureParam, sig)
		u.RawQuery = q.Encode()
		params[SignatureParam] = sig
	}

	zero := decimal.Zero
	return Result{
		OriginalURL:        rawURL,
		AffiliateURL:       u.String(),
		Network:            GenericNetwork,
		TrackingParams:     params,
		CommissionEstimate: &zero,
		Converted:          true,
	}, nil
}

func (c *Converter) convert(rawURL string, n NetworkConfig, price *decimal.Decimal) (Result, error) {
	if !supports(n, platform.Classify(rawURL)) {
		return Result{}, apperrors.NewConversion(n.ID, fmt.Sprintf("network does not support platform %s", platform.Classify(rawURL)), nil)
	}

	u, err := parseProductURL(rawURL)
	if err != nil {
		return Result{}, apperrors.NewConversion(n.ID, "malformed URL", err)
	}

	var (
		affiliateURL string
		params       map[string]string
	)
	switch n.Kind {
	case KindParam:
		affiliateURL, params, err = injectParams(u, n)
	case KindTemplate:
		affiliateURL, params, err = substituteTemplate(rawURL, n)
	case KindSuffix:
		affiliateURL, params, err = appendSuffix(u, n)
	case KindGeneric:
		result, err := c.generic(rawURL)
		if err != nil {
			return Result{}, apperrors.NewConversion(n.ID, "malformed URL", err)
		}
		result.Network = n.ID
		return result, nil
	default:
		err = fmt.Errorf("unknown network kind %q", n.Kind)
	}
	if err != nil {
		return Result{}, apperrors.NewConversion(n.ID, "rewrite failed", err)
	}
	if _, err := parseProductURL(affiliateURL); err != nil {
		return Result{}, apperrors.NewConversion(n.ID, "rewritten URL is malformed", err)
	}

	commission := Commission(price, Rate(n))
	return Result{
		OriginalURL:        rawURL,
		AffiliateURL:       affiliateURL,
		Network:            n.ID,
		TrackingParams:     params,
		CommissionEstimate: &commission,
		Converted:          true,
	}, nil
}

// injectParams strips the configured parameters and sets the network's own, so
// re-applying overwrites rather than duplicates
func injectParams(u *url.URL, n NetworkConfig) (string, map[string]string, error) {
	q := u.Query()
	for _, key := range n.StripParams {
		q.Del(key)
	}
	params := make(map[string]string, len(n.Params))
	for k, v := range n.Params {
		q.Set(k, v)
		params[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), params, nil
}

// substituteTemplate embeds the escaped URL at {url}. A URL that already starts
// with the template's prefix is returned unchanged.
func substituteTemplate(rawURL string, n NetworkConfig) (string, map[string]string, error) {
	idx := strings.Index(n.Template, urlPlaceholder)
	if idx < 0 {
		return "", nil, fmt.Errorf("template has no %s placeholder", urlPlaceholder)
	}
	if prefix := n.Template[:idx]; prefix != "" && strings.HasPrefix(rawURL, prefix) {
		return rawURL, templateParams(rawURL), nil
	}
	wrapped := n.Template[:idx] + url.QueryEscape(rawURL) + n.Template[idx+len(urlPlaceholder):]
	return wrapped, templateParams(wrapped), nil
}

// templateParams lists the wrapper's own query values, leaving out the embedded URL
func templateParams(wrapped string) map[string]string {
	u, err := url.Parse(wrapped)
	if err != nil {
		return nil
	}
	params := make(map[string]string)
	for k, values := range u.Query() {
		if len(values) == 0 || strings.Contains(values[0], "://") {
			continue
		}
		params[k] = values[0]
	}
	return params
}

// appendSuffix removes the suffix's keys from the URL and appends the suffix
// verbatim with '?' or '&'
func appendSuffix(u *url.URL, n NetworkConfig) (string, map[string]string, error) {
	suffix := strings.TrimLeft(n.Suffix, "?&")
	values, err := url.ParseQuery(suffix)
	if err != nil {
		return "", nil, fmt.Errorf("invalid suffix: %w", err)
	}

	q := u.Query()
	params := make(map[string]string, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Del(k)
		params[k] = values.Get(k)
	}

	fragment := u.EscapedFragment()
	u.Fragment, u.RawFragment = "", ""
	u.RawQuery = q.Encode()
	base := u.String()

	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	out := base + sep + suffix
	if fragment != "" {
		out += "#" + fragment
	}
	return out, params, nil
}

func supports(n NetworkConfig, id platform.ID) bool {
	return n.Platform == "" || n.Platform == AnyPlatform || platform.ID(n.Platform) == id
}

func parseProductURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

func failure(rawURL, network string, err error) Result {
	return Result{
		OriginalURL:   rawURL,
		AffiliateURL:  rawURL,
		Network:       network,
		Converted:     false,
		FailureReason: err.Error(),
	}
}
