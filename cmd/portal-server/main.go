package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/internal/api"
	"github.com/kosthub/wifi-portal/internal/cache"
	"github.com/kosthub/wifi-portal/internal/config"
	"github.com/kosthub/wifi-portal/internal/events"
	"github.com/kosthub/wifi-portal/internal/quota"
	"github.com/kosthub/wifi-portal/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/portal-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to storage
	var store storage.Store
	switch cfg.Database.Driver {
	case "memory":
		store = storage.NewMemoryStore()
		log.Warn().Msg("Using in-memory store, data will not survive restarts")
	default:
		pg, err := storage.NewPostgresStore(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		store = pg
		log.Info().Msg("Connected to database")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional: Redis cache
	var redisCache *cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err = cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, continuing without cache")
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	} else {
		log.Info().Msg("Redis not configured, gateway and policy lookups go straight to the store")
	}

	// Optional: NATS event publisher
	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = events.NewPublisher(&cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without event publishing")
			publisher = nil
		} else {
			defer publisher.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("Connected to NATS")
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Quota evaluator
	loc, err := cfg.WiFiDog.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid quota timezone")
	}
	evaluator := quota.NewEvaluator(store, redisCache, cfg.WiFiDog.PolicyCacheTTL, loc)

	// Start portal server
	portalServer := api.NewPortalServer(cfg, store, redisCache, publisher, evaluator)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := portalServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Portal server failed")
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	cancel()

	if err := portalServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown portal server gracefully")
	}

	wg.Wait()

	log.Info().Msg("Portal server stopped")
}
