package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/deallinker/config"
	"sjsage522/deallinker/helpers"
	"sjsage522/deallinker/internal/affiliate"
	"sjsage522/deallinker/internal/bundle"
	"sjsage522/deallinker/internal/extract"
	"sjsage522/deallinker/internal/linker"
	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/logger"
	"sjsage522/deallinker/services/cache"
	"sjsage522/deallinker/services/publisher"
	"sjsage522/deallinker/services/source"
	"sjsage522/deallinker/services/worker"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	rules, err := config.LoadRules(cfg.AffiliateConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid affiliate rules")
	}
	if _, ok := rules.Channels[cfg.Channel]; cfg.Channel != "" && !ok {
		log.Warn().Str("channel", cfg.Channel).Msg("Channel not found in rules, using every network")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("input_stream", cfg.RedisInputStream).
		Str("output_stream", cfg.RedisOutputStream).
		Int("networks", len(rules.Networks)).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		services.MetricsServer = serveMetrics(cfg.MetricsAddr, m)
	}

	orchestrator := buildOrchestrator(cfg, rules, services.Cache, m, nil)

	// Create and start worker
	w := worker.NewWorker(
		services.Source,
		services.Publisher,
		orchestrator,
		cfg.MessageTimeout,
		m,
	)

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting deal link worker")
		workerDone <- w.Start(ctx)
	}()

	// Wait for shutdown signal or worker error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// buildOrchestrator wires link location, extraction and affiliate conversion.
// A nil transport uses http.DefaultTransport.
func buildOrchestrator(cfg *config.Config, rules *config.Rules, cacheSvc cache.CacheService, m *metrics.Metrics, transport http.RoundTripper) *bundle.Orchestrator {
	redirectClient := helpers.NewManualRedirectClient(cfg.FetchTimeout)
	pageClient := helpers.NewClient(cfg.FetchTimeout)
	if transport != nil {
		redirectClient.Transport = transport
		pageClient.WithTransport(transport)
	}

	resolver := linker.NewResolver(linker.ResolverOptions{
		MaxHops:  cfg.MaxRedirectHops,
		Cache:    cacheSvc,
		CacheTTL: cfg.ResolveCacheTTL,
		Metrics:  m,
		Client:   redirectClient,
	})

	fetcher := extract.NewPageFetcher(
		pageClient,
		cacheSvc,
		cfg.CooldownTime,
		cfg.RequestsPerSecond,
	)
	settings := extract.SettingsFromConfig(cfg, rules)
	settings.Metrics = m

	snapshot := affiliate.NewSnapshot(rules)
	converter := affiliate.NewConverter(snapshot.Tracking(), affiliate.NewSigner(cfg.TrackingSecret), m)

	return bundle.NewOrchestrator(bundle.Options{
		Locator:         linker.NewLocator(resolver),
		Registry:        extract.NewDefaultRegistry(fetcher, settings),
		Converter:       converter,
		Snapshot:        snapshot,
		Channel:         cfg.Channel,
		Concurrency:     cfg.ExtractConcurrency,
		LinkTimeout:     cfg.LinkTimeout,
		DefaultCurrency: cfg.DefaultCurrency,
		Metrics:         m,
	})
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("Metrics", err, "metrics server stopped")
		}
	}()
	return server
}

// Services holds all the initialized services
type Services struct {
	Cache         cache.CacheService
	Source        *source.RedisSource
	Publisher     publisher.Publisher
	MetricsServer *http.Server
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.MetricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.MetricsServer.Shutdown(ctx)
	}
	// Source and publisher share one Redis client
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcacheService.Ping(); err != nil {
			return nil, fmt.Errorf("failed to reach memcache at %s: %w", cfg.MemcacheAddr, err)
		}
		services.Cache = memcacheService
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	} else {
		services.Cache = cache.NewMemoryCache()
		logger.Info("MEMCACHE_ADDR not set, using in-process cache")
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	// Initialize source
	src := source.NewRedisSource(client, cfg.RedisInputStream, cfg.RedisInputGroup, cfg.RedisConsumer)
	if err := src.EnsureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	services.Source = src

	// Initialize publisher
	services.Publisher = publisher.NewRedisPublisher(client, cfg.RedisOutputStream, cfg.RedisStreamMaxLength)

	logger.Info("Connected to Redis at %s (DB: %d, in: %s, out: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisInputStream, cfg.RedisOutputStream)

	return services, nil
}
