package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/platform"
	"sjsage522/deallinker/logger"
	apperrors "sjsage522/deallinker/pkg/errors"
	"sjsage522/deallinker/services/cache"
)

// Fetcher retrieves product pages on behalf of a platform strategy
type Fetcher interface {
	Fetch(ctx context.Context, id platform.ID, url string) (*helpers.Page, error)
}

// PageFetcher wraps helpers.Client with a per-host rate limiter and a
// per-platform cooldown that starts when the platform rate limits us
type PageFetcher struct {
	client    *helpers.Client
	cacheSvc  cache.CacheService
	blockTime time.Duration
	rps       float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPageFetcher creates a fetcher. cacheSvc may be nil, which disables cooldowns.
func NewPageFetcher(client *helpers.Client, cacheSvc cache.CacheService, blockTime time.Duration, requestsPerSecond float64) *PageFetcher {
	return &PageFetcher{
		client:    client,
		cacheSvc:  cacheSvc,
		blockTime: blockTime,
		rps:       requestsPerSecond,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func cooldownKey(id platform.ID) string {
	return "cooldown:" + string(id)
}

// Fetch gets url unless the platform is cooling down
func (f *PageFetcher) Fetch(ctx context.Context, id platform.ID, url string) (*helpers.Page, error) {
	// Check if the platform is rate limited
	if f.cacheSvc != nil {
		if data, err := f.cacheSvc.Get(cooldownKey(id)); err == nil {
			secs, _ := strconv.Atoi(string(data))
			return nil, apperrors.NewRateLimit(string(id), time.Duration(secs)*time.Second)
		}
	}

	if err := f.limiter(platform.Host(url)).Wait(ctx); err != nil {
		return nil, apperrors.NewNetwork(string(id), "rate limiter wait aborted", err)
	}

	page, err := f.client.Fetch(ctx, url)
	if err != nil {
		if apperrors.TypeOf(err) == apperrors.ErrorTypeRateLimit {
			f.startCooldown(id)
		}
		var pe *apperrors.PipelineError
		if errors.As(err, &pe) && pe.Platform == "" {
			pe.Platform = string(id)
		}
		return nil, err
	}
	return page, nil
}

func (f *PageFetcher) startCooldown(id platform.ID) {
	if f.cacheSvc == nil || f.blockTime <= 0 {
		return
	}
	value := []byte(fmt.Sprintf("%d", f.blockTime/time.Second))
	if err := f.cacheSvc.Set(cooldownKey(id), value, f.blockTime); err != nil {
		logger.ForPlatform(string(id)).Warn().Err(err).Msg("Failed to store cooldown")
		return
	}
	logger.ForPlatform(string(id)).Warn().
		Dur("block_time", f.blockTime).
		Msg("Platform rate limited us, cooling down")
}

func (f *PageFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		limit := rate.Inf
		if f.rps > 0 {
			limit = rate.Limit(f.rps)
		}
		l = rate.NewLimiter(limit, 1)
		f.limiters[host] = l
	}
	return l
}
