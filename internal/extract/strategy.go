package extract

import (
	"context"
	mathrand "math/rand"
	"time"

	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/logger"
	apperrors "sjsage522/deallinker/pkg/errors"
)

// SelectorStrategy fetches a page and runs a platform's selector waterfall over it,
// retrying with linear backoff while the failure is retryable
type SelectorStrategy struct {
	config          StrategyConfig
	fetcher         Fetcher
	backoff         time.Duration
	defaultCurrency string
	sleep           Sleeper
	jitter          func(time.Duration) time.Duration
	metrics         *metrics.Metrics
	log             *logger.Logger
}

// NewSelectorStrategy creates a strategy for one platform
func NewSelectorStrategy(cfg StrategyConfig, fetcher Fetcher, settings Settings) *SelectorStrategy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	sleep := settings.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}
	return &SelectorStrategy{
		config:          cfg,
		fetcher:         fetcher,
		backoff:         settings.RetryBackoff,
		defaultCurrency: settings.DefaultCurrency,
		sleep:           sleep,
		jitter:          randomJitter,
		metrics:         settings.Metrics,
		log:             logger.ForPlatform(string(cfg.Platform)),
	}
}

// Name returns the platform the strategy serves
func (s *SelectorStrategy) Name() string {
	return string(s.config.Platform)
}

// Extract tries up to MaxAttempts times. Only fetch/parse errors and a missing
// title or price trigger another attempt. When attempts run out, the last fetched
// page is given to the generic selectors, held to the same price floor, before
// giving up with a nil product.
func (s *SelectorStrategy) Extract(ctx context.Context, url string) (*ExtractedProduct, error) {
	var (
		lastPage *Page
		lastErr  error
		attempt  int
	)

	for attempt = 1; attempt <= s.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.delay(attempt - 1)
			s.log.Debug().
				Str("url", url).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying extraction")
			if err := s.sleep(ctx, delay); err != nil {
				lastErr = apperrors.NewNetwork(s.Name(), "retry wait aborted", err)
				break
			}
		}

		product, page, err := s.attempt(ctx, url)
		if page != nil {
			lastPage = page
		}
		if err == nil {
			product.Source = SourceScrape
			product.Attempts = attempt
			s.metrics.ObserveExtraction(s.Name(), string(SourceScrape), attempt)
			return product, nil
		}

		lastErr = err
		s.log.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Int("max_attempts", s.config.MaxAttempts).
			Msg("Extraction attempt failed")

		if !apperrors.IsRetryable(err) {
			break
		}
	}
	attempt = min(attempt, s.config.MaxAttempts)

	if lastPage != nil {
		product, err := parseGeneric(lastPage, s.parseOptions(), false)
		if err == nil {
			product.Attempts = attempt
			s.metrics.ObserveExtraction(s.Name(), string(SourceGeneric), attempt)
			s.log.Info().Str("url", url).Msg("Platform selectors failed, used generic selectors")
			return product, nil
		}
	}

	s.metrics.ObserveExtraction(s.Name(), "failed", attempt)
	return nil, lastErr
}

func (s *SelectorStrategy) attempt(ctx context.Context, url string) (*ExtractedProduct, *Page, error) {
	fetched, err := s.fetcher.Fetch(ctx, s.config.Platform, url)
	if err != nil {
		return nil, nil, err
	}

	page, err := NewPage(fetched.FinalURL, fetched.Body)
	if err != nil {
		return nil, nil, err
	}

	product, err := parse(page, s.config.Selectors, s.parseOptions())
	return product, page, err
}

func (s *SelectorStrategy) parseOptions() parseOptions {
	return parseOptions{
		platform:        s.config.Platform,
		minPrice:        s.config.MinPrice,
		defaultCurrency: s.defaultCurrency,
	}
}

// delay is failedAttempts x backoff plus up to a quarter of backoff of jitter
func (s *SelectorStrategy) delay(failedAttempts int) time.Duration {
	base := time.Duration(failedAttempts) * s.backoff
	return base + s.jitter(s.backoff)
}

func randomJitter(backoff time.Duration) time.Duration {
	if backoff < 4 {
		return 0
	}
	return time.Duration(mathrand.Int63n(int64(backoff / 4)))
}

var _ Strategy = (*SelectorStrategy)(nil)
