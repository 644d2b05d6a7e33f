// Command check runs a single poll cycle and prints the cycle response as
// JSON. The triggering event is read from stdin when it is not a terminal.
// It exits non-zero when the cycle fails.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/idempotency"
	"github.com/Proton-105/slotwatch/internal/notifier"
	"github.com/Proton-105/slotwatch/internal/reconcile"
	"github.com/Proton-105/slotwatch/internal/repository"
	"github.com/Proton-105/slotwatch/internal/slots"
	"github.com/Proton-105/slotwatch/internal/trigger"
	"github.com/Proton-105/slotwatch/pkg/config"
	"github.com/Proton-105/slotwatch/pkg/logger"
	redisclient "github.com/Proton-105/slotwatch/pkg/redis"
)

func main() {
	eventPath := flag.String("event", "", "read the triggering event from this file instead of stdin")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, _ := logger.New(cfg.Logger, false)

	event, err := readEvent(*eventPath)
	if err != nil {
		log.Warn("ignoring unreadable event", slog.Any("error", err))
	}

	resp, err := runOnce(ctx, cfg, log, event)
	if err != nil {
		log.Error("check failed", slog.Any("error", err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)

	if resp.StatusCode != http.StatusOK {
		stop()
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, cfg *config.Config, log *slog.Logger, event json.RawMessage) (trigger.Response, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return trigger.Response{}, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return trigger.Response{}, err
	}
	defer rdb.Close()

	tb, err := telebot.NewBot(telebot.Settings{Token: cfg.Bot.Token})
	if err != nil {
		return trigger.Response{}, fmt.Errorf("initialize telebot: %w", err)
	}

	idem := idempotency.NewManager(idempotency.NewRedisStore(rdb, log), 30*time.Second, log)
	deliver := notifier.NewDedup(notifier.NewTelegram(tb, log), idem, cfg.Notify.DedupWindow, log)

	engine := reconcile.NewEngine(
		repository.NewSettingsRepository(db, log),
		slots.NewClient(cfg.SlotAPI, log),
		deliver,
		cfg.Poll.Workers,
		log,
	)

	return trigger.NewHandler(engine, cfg.Poll.Timeout, log).Handle(ctx, event), nil
}

func readEvent(path string) (json.RawMessage, error) {
	if path != "" {
		return os.ReadFile(path)
	}

	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil, err
	}
	return io.ReadAll(os.Stdin)
}
