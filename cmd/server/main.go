package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/realty-crm/internal/config"
	"github.com/iliyamo/realty-crm/internal/database"
	"github.com/iliyamo/realty-crm/internal/queue"
	"github.com/iliyamo/realty-crm/internal/ratelimit"
	"github.com/iliyamo/realty-crm/internal/repository"
	"github.com/iliyamo/realty-crm/internal/router"
	"github.com/iliyamo/realty-crm/internal/service"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	envFile := flagSet.String("env-file", ".env", "path to an optional .env file")
	seedRoles := flagSet.Bool("seed-roles", false, "upsert the default roles and permissions at startup")
	store := flagSet.String("store", config.StoreMySQL, "credential store backend (mysql|memory)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	// Flags win over the environment and the env file.
	if flagSet.Changed("store") {
		os.Setenv("STORE", *store)
	}
	if flagSet.Changed("seed-roles") {
		os.Setenv("SEED_ROLES", strconv.FormatBool(*seedRoles))
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Env)
	log.Info("starting realty-crm auth", slog.String("env", cfg.Env), slog.String("store", cfg.Store))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	var notifier service.Notifier = queue.NewOutbox(cfg.AMQP.NotificationLog)
	if cfg.AMQP.Enabled {
		notifier = queue.NewPublisher(cfg.AMQP, log)
		go func() {
			if err := queue.StartNotificationConsumer(ctx, cfg.AMQP, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification consumer stopped", slog.Any("err", err))
			}
		}()
	}

	auth := service.New(repo, service.Config{
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		ResetTTL:   cfg.Auth.ResetTTL,
		BcryptCost: cfg.Auth.BcryptCost,
		CSRFSecret: []byte(cfg.Auth.CSRFSecret),
		CSRFMaxAge: cfg.Auth.CSRFMaxAge,

		SelfServiceRoles: cfg.Auth.SelfServiceRoles,
	}, notifier, time.Now, log)
	if len(cfg.Auth.SelfServiceRoles) == 0 && cfg.Env == envProd {
		log.Warn("SELF_SERVICE_ROLES is empty: public registration can grant any role, admin included")
	}

	if cfg.SeedRoles {
		if err := auth.SeedRoles(ctx); err != nil {
			return err
		}
	}

	limiter, closeLimiter, err := openLimiter(cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	e := router.New(router.Deps{Auth: auth, Limiter: limiter, Log: log})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		return repository.NewMemoryStore(), func() {}, nil
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewMySQLStore(db), func() { _ = db.Close() }, nil
}

// openLimiter returns a nil limiter when rate limiting is disabled.
func openLimiter(cfg *config.Config) (*ratelimit.Limiter, func(), error) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, func() {}, nil
	}
	if rl.Backend != "redis" {
		return ratelimit.New(ratelimit.NewMemoryStore(), rl.Policies(), time.Now), func() {}, nil
	}
	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	store := ratelimit.NewRedisStore(rdb, rl.Prefix)
	return ratelimit.New(store, rl.Policies(), time.Now), func() { _ = rdb.Close() }, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
