package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"loanperf/internal/application/cache"
	"loanperf/internal/application/port"
	"loanperf/internal/application/ratelimit"
	"loanperf/internal/application/throttle"
	"loanperf/internal/application/usecase/analyze"
	"loanperf/internal/infrastructure/config"
	"loanperf/internal/infrastructure/logger"
	"loanperf/internal/infrastructure/positions"
	"loanperf/internal/infrastructure/pricesource/coingecko"
	"loanperf/internal/infrastructure/storage"
	compositerepo "loanperf/internal/infrastructure/storage/composite"
	postgresrepo "loanperf/internal/infrastructure/storage/postgres"
	redisrepo "loanperf/internal/infrastructure/storage/redis"
	sqliterepo "loanperf/internal/infrastructure/storage/sqlite"
	"loanperf/internal/interfaces/console"
	"loanperf/internal/interfaces/ws"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := positions.FromConfig(cfg.Positions)

	repo := buildRepository(cfg)
	defer repo.Close()

	coordinator := ratelimit.New(time.Duration(cfg.Limits.CooldownSec) * time.Second)

	sinks := port.MultiSink{console.NewSink(coordinator.Remaining)}
	if cfg.Push.Enabled {
		hub := ws.NewHub()
		defer hub.Close()
		sinks = append(sinks, hub)
		go serveWS(cfg.Push.Listen, hub)
	}

	svc := analyze.NewService(analyze.ServiceDeps{
		Source:      source,
		Prices:      coingecko.New(cfg.Provider.BaseURL, cfg.APIKey(), source.Currencies()),
		Cache:       cache.New(time.Duration(cfg.Limits.CurrentTTLMin) * time.Minute),
		Throttler:   throttle.New(throttle.DefaultIndicators()),
		Coordinator: coordinator,
		Sink:        sinks,
		Repo:        repo,
		ItemDelay:   time.Duration(cfg.App.ItemDelayMs) * time.Millisecond,
	})

	svc.WarmHistoricalCache(ctx)

	log.Info().
		Str("config", *configPath).
		Int("positions", len(cfg.Positions)).
		Int("cooldown_sec", cfg.Limits.CooldownSec).
		Msg("loanperf started")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("analysis service exited")
	}
}

func buildRepository(cfg *config.Config) port.Repository {
	var repos []port.Repository

	if cfg.Storage.SQLite.Enabled {
		r, err := sqliterepo.New(cfg.Storage.SQLite.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Storage.SQLite.Path).Msg("sqlite init failed")
		}
		repos = append(repos, r)
	}
	if cfg.Storage.Postgres.Enabled {
		r, err := postgresrepo.New(cfg.Storage.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres init failed")
		}
		repos = append(repos, r)
	}
	if cfg.Storage.Redis.Enabled {
		rdb := redisclient.NewClient(&redisclient.Options{Addr: cfg.Storage.Redis.Addr})
		repos = append(repos, redisrepo.New(rdb, cfg.Storage.Redis.Prefix, 24*time.Hour))
	}

	switch len(repos) {
	case 0:
		return storage.NewMemory()
	case 1:
		return repos[0]
	default:
		return compositerepo.New(repos...)
	}
}

func serveWS(listen string, hub *ws.Hub) {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	log.Info().Str("listen", listen).Msg("ws push listening")
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Error().Err(err).Msg("ws server exited")
	}
}
