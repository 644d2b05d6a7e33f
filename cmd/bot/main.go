package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/slotwatch/internal/bot"
	"github.com/Proton-105/slotwatch/internal/database"
	"github.com/Proton-105/slotwatch/internal/health"
	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/idempotency"
	"github.com/Proton-105/slotwatch/internal/jobs"
	jobhandlers "github.com/Proton-105/slotwatch/internal/jobs/handlers"
	"github.com/Proton-105/slotwatch/internal/lifecycle"
	"github.com/Proton-105/slotwatch/internal/middleware"
	"github.com/Proton-105/slotwatch/internal/notifier"
	"github.com/Proton-105/slotwatch/internal/ratelimit"
	"github.com/Proton-105/slotwatch/internal/reconcile"
	"github.com/Proton-105/slotwatch/internal/repository"
	"github.com/Proton-105/slotwatch/internal/slots"
	"github.com/Proton-105/slotwatch/internal/state"
	"github.com/Proton-105/slotwatch/internal/subscription"
	"github.com/Proton-105/slotwatch/internal/trigger"
	"github.com/Proton-105/slotwatch/pkg/config"
	"github.com/Proton-105/slotwatch/pkg/graceful"
	"github.com/Proton-105/slotwatch/pkg/logger"
	"github.com/Proton-105/slotwatch/pkg/metrics"
	redisclient "github.com/Proton-105/slotwatch/pkg/redis"
)

const (
	idempotencyLockTTL   = 30 * time.Second
	subscriptionCacheTTL = 15 * time.Minute
	housekeepingInterval = 10 * time.Minute
	stateCollectInterval = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "init sentry: %v\n", err)
			cfg.Sentry.Enabled = false
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	log, level := logger.New(cfg.Logger, cfg.Sentry.Enabled)
	slog.SetDefault(log)

	config.WatchLogLevel(v, func(l string) {
		level.Set(logger.ParseLevel(l))
		log.Info("log level changed", slog.String("level", l))
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Error("slotwatch stopped with error", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting slotwatch",
		slog.String("env", cfg.AppEnv),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.String("schedule", cfg.Poll.Schedule),
	)

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return err
	}

	catalog, err := i18n.Default()
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	stateStorage := state.NewRedisStorage(rdb, log, cfg.FSM.StateTTL)
	fsm := state.NewStateMachine(stateStorage, log, rdb)

	idem := idempotency.NewManager(idempotency.NewRedisStore(rdb, log), idempotencyLockTTL, log)

	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb, log), memoryLimiter, log)
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(cfg.RateLimit), catalog, log)

	repo := repository.NewSettingsRepository(db, log)
	service := subscription.NewService(repo, subscription.NewCache(rdb, subscriptionCacheTTL), log)

	tgBot, err := bot.New(*cfg, log, fsm, idem, rateLimitMw, service, catalog)
	if err != nil {
		return err
	}

	deliver := notifier.NewDedup(notifier.NewTelegram(tgBot.Telebot(), log), idem, cfg.Notify.DedupWindow, log)
	engine := reconcile.NewEngine(repo, slots.NewClient(cfg.SlotAPI, log), deliver, cfg.Poll.Workers, log)
	triggerHandler := trigger.NewHandler(engine, cfg.Poll.Timeout, log)

	asynqOpt := redisclient.AsynqOpt(cfg.Redis)
	scheduler := jobs.NewScheduler(asynqOpt, cfg.Poll, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return err
	}

	worker := jobs.NewWorker(asynqOpt, map[string]int{cfg.Poll.Queue: 1}, 1, log)
	worker.RegisterHandler(jobs.TaskTypePollCycle, jobhandlers.NewPollCycleHandler(triggerHandler, log))
	queue := jobs.NewManager(asynqOpt, log)

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(rdb))
	checker.AddCheck("telegram", health.NewTelegramChecker(tgBot.Telebot()))
	probes := lifecycle.NewProbes(checker)

	server := graceful.NewServer(log, cfg.Server.Addr, opsHandler(probes, triggerHandler, log), cfg.Server.ShutdownTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(gctx) })

	go tgBot.Start()
	scheduler.Run()
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	go metrics.NewStateCollector(fsm, stateCollectInterval).Run(gctx)
	go state.NewCleaner(stateStorage, log, cfg.FSM.DialogTimeout, cfg.FSM.CleanupInterval).Run(gctx)
	go idempotency.NewCleaner(rdb, log, housekeepingInterval, middleware.UpdateTTL).Run(gctx)
	go ratelimit.NewCleaner(rdb, memoryLimiter, log, housekeepingInterval, time.Hour).Run(gctx)

	if cfg.Poll.RunOnStart {
		if _, err := jobs.EnqueuePollCycle(gctx, queue, "startup", cfg.Poll); err != nil {
			log.Warn("failed to enqueue startup poll cycle", slog.Any("error", err))
		}
	}

	<-gctx.Done()
	log.Info("shutdown signal received")

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register(lifecycle.StageIntake, "probes", probes.Drain)
	shutdown.Register(lifecycle.StageIntake, "telegram", func(context.Context) error {
		tgBot.Stop()
		return nil
	})
	shutdown.Register(lifecycle.StageIntake, "scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})
	shutdown.Register(lifecycle.StageWorkers, "worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})
	shutdown.Register(lifecycle.StageWorkers, "http", func(context.Context) error {
		return g.Wait()
	})
	shutdown.Register(lifecycle.StageResources, "queue", func(context.Context) error {
		return queue.Close()
	})
	shutdown.Register(lifecycle.StageResources, "redis", closeRedis(rdb))
	shutdown.Register(lifecycle.StageResources, "postgres", func(context.Context) error {
		return db.Close()
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return shutdown.Execute(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.NewMigrator(db, log).ApplyDir(ctx, cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return db, nil
}

func opsHandler(probes *lifecycle.Probes, triggerHandler http.Handler, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", probes.Liveness())
	mux.Handle("/readyz", probes.Readiness())
	mux.Handle("/trigger", triggerHandler)

	return logger.Middleware(middleware.HTTPLogging(log)(mux))
}

func closeRedis(rdb *goredis.Client) func(context.Context) error {
	return func(context.Context) error {
		return rdb.Close()
	}
}
