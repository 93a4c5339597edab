package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/micron-tracking/internal/bot"
	"github.com/Spok95/micron-tracking/internal/config"
	"github.com/Spok95/micron-tracking/internal/dialog"
	"github.com/Spok95/micron-tracking/internal/domain/operators"
	"github.com/Spok95/micron-tracking/internal/infra/db"
	httpx "github.com/Spok95/micron-tracking/internal/infra/http"
	"github.com/Spok95/micron-tracking/internal/infra/locks"
	"github.com/Spok95/micron-tracking/internal/infra/logger"
	"github.com/Spok95/micron-tracking/internal/infra/pgstore"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

func main() {
	cfgPath := flag.String("config", "config/example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("config load failed", "path", *cfgPath, "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogFormat)
	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using UTC", "tz", cfg.App.Timezone, "err", err)
		loc = time.UTC
	}

	if err := db.Migrate(cfg.Postgres.DSN, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("db connected")

	var locker tracking.Locker
	if cfg.Redis.Addr != "" {
		rdb, err := locks.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error("redis connect failed", "addr", cfg.Redis.Addr, "err", err)
			return
		}
		defer func() { _ = rdb.Close() }()
		locker = locks.NewRedis(rdb, cfg.Redis.LockTTL, log)
		log.Info("redis locks enabled", "addr", cfg.Redis.Addr)
	}

	engine := tracking.New(pgstore.New(pool, cfg.Postgres.LockTimeout), locker, log, tracking.Options{
		DefaultQty: cfg.Tracking.DefaultAllocation,
		MaxRetries: cfg.Tracking.MaxRetries,
		RetryBase:  cfg.Tracking.RetryBase,
	})
	queries := pgstore.NewQueries(pool)

	api := httpx.NewAPI(engine, queries, log, loc)
	srv := httpx.New(cfg.HTTP.Addr, httpx.NewRouter(api, cfg.Metrics.Enabled))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			stop()
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	if cfg.Telegram.Token != "" {
		tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Error("telegram init failed", "err", err)
			return
		}
		log.Info("telegram bot authorized", "username", tg.Self.UserName)

		b := bot.New(tg, log,
			operators.NewRepo(pool), dialog.NewRepo(pool),
			engine, queries,
			cfg.Telegram.AdminChatID, cfg.Tracking.DefaultAllocation, loc)
		go func() {
			if err := b.Run(ctx, cfg.Telegram.PollTimeout); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bot stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
