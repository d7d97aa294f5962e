package bundle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sjsage522/deallinker/internal/affiliate"
	"sjsage522/deallinker/internal/extract"
	"sjsage522/deallinker/internal/linker"
	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/internal/normalize"
	"sjsage522/deallinker/logger"
)

// Options wires an Orchestrator
type Options struct {
	Locator         *linker.Locator
	Registry        *extract.Registry
	Converter       *affiliate.Converter
	Snapshot        *affiliate.Snapshot
	Channel         string
	Concurrency     int
	LinkTimeout     time.Duration
	DefaultCurrency string
	Metrics         *metrics.Metrics
}

// Orchestrator turns one message into product records
type Orchestrator struct {
	locator         *linker.Locator
	registry        *extract.Registry
	converter       *affiliate.Converter
	snapshot        *affiliate.Snapshot
	channel         string
	concurrency     int
	linkTimeout     time.Duration
	defaultCurrency string
	metrics         *metrics.Metrics
	log             *logger.Logger

	newID func() string
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator; Concurrency defaults to 3
func NewOrchestrator(opts Options) *Orchestrator {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = MaxFullExtractions
	}
	snapshot := opts.Snapshot
	if snapshot == nil {
		snapshot = affiliate.NewSnapshot(nil)
	}
	return &Orchestrator{
		locator:         opts.Locator,
		registry:        opts.Registry,
		converter:       opts.Converter,
		snapshot:        snapshot,
		channel:         opts.Channel,
		concurrency:     concurrency,
		linkTimeout:     opts.LinkTimeout,
		defaultCurrency: opts.DefaultCurrency,
		metrics:         opts.Metrics,
		log:             logger.ForComponent("orchestrator"),
		newID:           uuid.NewString,
		now:             time.Now,
	}
}

// Process locates the message's links and builds its records. It never fails:
// every link yields a record, degraded when extraction or conversion fails.
// Only a message without links produces nothing.
func (o *Orchestrator) Process(ctx context.Context, msg Message) Result {
	links := o.locator.LocateAndResolve(ctx, msg.Text)
	kind := Classify(len(links))
	o.metrics.ObserveMessage(string(kind))

	log := o.log.WithFields(logger.Fields{
		"message_id": msg.ID,
		"links":      len(links),
		"kind":       string(kind),
	})

	result := Result{Kind: kind}
	channel := o.snapshot.Channel(o.channelFor(msg))

	switch kind {
	case KindNone:
		log.Debug().Msg("No links in message")
		return result

	case KindSingle:
		record, ok := o.full(ctx, links[0], msg, channel)
		record.SequenceInGroup, record.TotalInGroup = 1, 1
		result.Records = []ProductRecord{record}
		result.Attempted = 1
		if ok {
			result.Succeeded = 1
		}

	case KindSmall:
		result.GroupID = o.newID()
		records := make([]ProductRecord, len(links))
		succeeded := make([]bool, len(links))

		var g errgroup.Group
		g.SetLimit(o.concurrency)
		for i, link := range links {
			i, link := i, link
			g.Go(func() error {
				records[i], succeeded[i] = o.full(ctx, link, msg, channel)
				return nil
			})
		}
		_ = g.Wait()

		for i := range records {
			records[i].GroupID = result.GroupID
			records[i].SequenceInGroup = i + 1
			records[i].TotalInGroup = len(links)
			if succeeded[i] {
				result.Succeeded++
			}
		}
		result.Records = records
		result.Attempted = len(links)

	case KindLarge:
		result.GroupID = o.newID()
		primary, ok := o.full(ctx, links[0], msg, channel)
		for _, link := range links[1:] {
			primary.AdditionalProducts = append(primary.AdditionalProducts, o.stub(link, channel))
		}
		primary.GroupID = result.GroupID
		primary.SequenceInGroup = 1
		primary.TotalInGroup = len(links)
		result.Records = []ProductRecord{primary}
		result.Attempted = 1
		if ok {
			result.Succeeded = 1
		}
	}

	for i := range result.Records {
		result.Records[i].BundleKind = kind
	}

	log.Info().
		Str("group_id", result.GroupID).
		Int("attempted", result.Attempted).
		Int("succeeded", result.Succeeded).
		Int("records", len(result.Records)).
		Msg("Message processed")
	return result
}

func (o *Orchestrator) channelFor(msg Message) string {
	if msg.Channel != "" {
		return msg.Channel
	}
	return o.channel
}

// full runs the platform strategy under the link timeout and falls back to the
// textual heuristic when it yields nothing or only a placeholder price
func (o *Orchestrator) full(ctx context.Context, link linker.ResolvedLink, msg Message, channel affiliate.Channel) (ProductRecord, bool) {
	lctx := ctx
	if o.linkTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, o.linkTimeout)
		defer cancel()
	}

	strategy := o.registry.For(link.Platform)
	product, err := strategy.Extract(lctx, link.FinalURL)
	ok := false
	switch {
	case err != nil || product == nil:
		o.log.Warn().
			Err(err).
			Str("url", link.FinalURL).
			Str("strategy", strategy.Name()).
			Msg("Extraction failed, using text fallback")
		product = extract.FromText(link.SurroundingContext, link.FinalURL, o.defaultCurrency)
	case product.HasPlaceholderPrice():
		o.log.Warn().
			Str("url", link.FinalURL).
			Str("strategy", strategy.Name()).
			Msg("Page has no plausible price, merging text fallback")
		product = preferText(product, extract.FromText(link.SurroundingContext, link.FinalURL, o.defaultCurrency))
	default:
		ok = true
	}

	if (product.ImageURL == "" || extract.IsPlaceholderImage(product.ImageURL)) && len(msg.AttachedImages) > 0 {
		product.ImageURL = msg.AttachedImages[0]
	}
	if product.ImageURL == "" {
		product.ImageURL = extract.PlaceholderImage(product.Title)
	}

	conversion := o.converter.ConvertForChannel(link.FinalURL, channel, product.Price)
	return o.record(msg, link, product, conversion), ok
}

// preferText takes name and price from the message text when the text carries a
// price, keeping a real page image. Without a text price the page result stands.
func preferText(page, text *extract.ExtractedProduct) *extract.ExtractedProduct {
	if text.HasPlaceholderPrice() {
		return page
	}
	if !extract.IsPlaceholderImage(page.ImageURL) {
		text.ImageURL = page.ImageURL
	}
	return text
}

// stub builds a secondary-link entry from the surrounding text only
func (o *Orchestrator) stub(link linker.ResolvedLink, channel affiliate.Channel) StubProduct {
	product := extract.FromText(link.SurroundingContext, link.FinalURL, o.defaultCurrency)
	conversion := o.converter.ConvertForChannel(link.FinalURL, channel, product.Price)
	return StubProduct{
		URL:          link.FinalURL,
		OriginalURL:  link.OriginalURL,
		Platform:     link.Platform,
		Title:        product.Title,
		Price:        formatPrice(product),
		Currency:     product.Currency,
		ImageURL:     product.ImageURL,
		AffiliateURL: conversion.AffiliateURL,
		Network:      conversion.Network,
		Converted:    conversion.Converted,
		Source:       extract.SourceStub,
	}
}

func (o *Orchestrator) record(msg Message, link linker.ResolvedLink, p *extract.ExtractedProduct, c affiliate.Result) ProductRecord {
	record := ProductRecord{
		ID:              o.newID(),
		MessageID:       msg.ID,
		URL:             link.FinalURL,
		OriginalURL:     link.OriginalURL,
		RedirectChain:   link.RedirectChain,
		Platform:        link.Platform,
		Title:           p.Title,
		Description:     p.Description,
		Price:           formatPrice(p),
		Currency:        strings.ToUpper(p.Currency),
		ImageURL:        p.ImageURL,
		Rating:          p.Rating,
		ReviewCount:     p.ReviewCount,
		DiscountPercent: p.DiscountPercent,
		Category:        p.Category,
		HasLimitedOffer: p.HasLimitedOffer,
		Source:          p.Source,
		LowConfidence:   p.LowConfidence,
		AffiliateURL:    c.AffiliateURL,
		Network:         c.Network,
		TrackingParams:  c.TrackingParams,
		Converted:       c.Converted,
		FailureReason:   c.FailureReason,
		CreatedAt:       o.now().UTC(),
	}
	if p.OriginalPrice != nil {
		record.OriginalPrice = normalize.FormatPrice(*p.OriginalPrice)
	}
	if c.CommissionEstimate != nil {
		record.CommissionEstimate = normalize.FormatPrice(*c.CommissionEstimate)
	}
	return record
}

func formatPrice(p *extract.ExtractedProduct) string {
	if p.Price == nil {
		return normalize.FormatPrice(extract.PlaceholderPrice)
	}
	return normalize.FormatPrice(*p.Price)
}
