package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"review_dashboard/internal/adapters/memcache"
	"review_dashboard/internal/adapters/observability"
	redisad "review_dashboard/internal/adapters/redis"
	"review_dashboard/internal/adapters/reviewsapi"
	"review_dashboard/internal/app"
	"review_dashboard/internal/domain"
	"review_dashboard/internal/shared"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	log.Info().
		Str("api", cfg.APIBase).
		Int("workers", cfg.WarmWorkers).
		Dur("ttl", cfg.PlaceCacheTTL).
		Msg("warmer starting")

	client, err := reviewsapi.New(cfg.APIBase, cfg.APIKey, cfg.APIRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reviews API client")
	}

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		cache = redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	} else {
		// nothing outlives this process, but keep the run useful as a smoke test
		log.Warn().Msg("REDIS_ADDR is empty, warming an in-process cache")
		cache = memcache.New(cfg.PlaceCacheTTL, time.Minute)
	}

	merger := app.NewSourceMerger(client, cache, cfg.PlaceCacheTTL)
	rep, err := app.NewWarmService(client, merger, cfg.WarmWorkers).Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("warm failed")
	}
	log.Info().
		Int("listings", rep.Listings).
		Int("mapped", rep.Mapped).
		Int("reviews", rep.Reviews).
		Int("failed", rep.Failed).
		Msg("warm completed")
}
