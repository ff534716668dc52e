package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "review_dashboard/internal/adapters/http_server"
	"review_dashboard/internal/adapters/memcache"
	"review_dashboard/internal/adapters/observability"
	redisad "review_dashboard/internal/adapters/redis"
	"review_dashboard/internal/adapters/reviewsapi"
	"review_dashboard/internal/app"
	"review_dashboard/internal/domain"
	"review_dashboard/internal/shared"
	mysqlrepo "review_dashboard/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	client, err := reviewsapi.New(cfg.APIBase, cfg.APIKey, cfg.APIRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reviews API client")
	}

	// journal is optional; leave the interface nil when disabled
	var journal domain.Journal
	if cfg.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		if err := db.Ping(); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		journal = mysqlrepo.New(db)
	}

	engine := app.NewApprovalEngine(client, client, journal)
	merger := app.NewSourceMerger(client, newCache(ctx, cfg), cfg.PlaceCacheTTL)

	// a failed first load is not fatal: the dashboard reports it until POST /v1/reload succeeds
	if err := engine.Load(ctx); err != nil {
		log.Error().Err(err).Msg("initial load failed")
	}
	if cfg.ReloadInterval > 0 {
		go reloadLoop(ctx, engine, cfg.ReloadInterval)
	}

	srv := server.New(cfg.CORSOrigins)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Engine: engine, Merger: merger, Journal: journal})

	log.Info().Str("addr", cfg.HTTPAddr).Str("api", cfg.APIBase).Msg("dashboard listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func newCache(ctx context.Context, cfg shared.Config) domain.Cache {
	if cfg.RedisAddr == "" {
		return memcache.New(cfg.PlaceCacheTTL, 10*time.Minute)
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := c.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed, continuing; cache errors are ignored")
	}
	return c
}

func reloadLoop(ctx context.Context, e *app.ApprovalEngine, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := e.Load(ctx); err != nil {
				log.Warn().Err(err).Msg("periodic reload failed")
			}
		}
	}
}
