package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/handlers"
	"github.com/Proton-105/slotwatch/internal/bot/keyboard"
	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/idempotency"
	"github.com/Proton-105/slotwatch/internal/middleware"
	"github.com/Proton-105/slotwatch/internal/state"
	"github.com/Proton-105/slotwatch/internal/subscription"
	"github.com/Proton-105/slotwatch/pkg/config"
)

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot            *telebot.Bot
	log                *slog.Logger
	cfg                config.Config
	fsm                state.StateMachine
	rateLimitMw        *middleware.RateLimitMiddleware
	router             *Router
	dispatcher         *Dispatcher
	keyboard           *keyboard.Builder
	catalog            *i18n.Manager
	errHandler         *errors.Handler
	idempotencyManager idempotency.Manager
}

// New builds a telegram bot instance configured according to the application settings.
func New(
	cfg config.Config,
	log *slog.Logger,
	fsm state.StateMachine,
	idempotencyManager idempotency.Manager,
	rateLimitMw *middleware.RateLimitMiddleware,
	service *subscription.Service,
	catalog *i18n.Manager,
) (*Bot, error) {
	settings := telebot.Settings{
		Token: cfg.Bot.Token,
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen: cfg.Bot.Listen,
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	dispatcher := NewDispatcher(fsm, log)

	b := &Bot{
		telebot:            tb,
		log:                log,
		cfg:                cfg,
		fsm:                fsm,
		rateLimitMw:        rateLimitMw,
		router:             NewRouter(dispatcher, log),
		dispatcher:         dispatcher,
		keyboard:           keyboard.NewBuilder(log),
		catalog:            catalog,
		errHandler:         errors.NewHandler(log, cfg.Sentry.Enabled),
		idempotencyManager: idempotencyManager,
	}

	b.setupRouter(service)

	if b.rateLimitMw != nil {
		b.telebot.Use(b.rateLimitMw.Handle)
	}

	b.registerTelebotHandlers()

	return b, nil
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such
// as the notifier and health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) setupRouter(service *subscription.Service) {
	b.router.Use(RequestContextMiddleware())
	b.router.Use(RecoveryMiddleware(b.log, b.errHandler))
	b.router.Use(middleware.Idempotency(b.idempotencyManager, b.log))
	b.router.Use(ErrorHandlingMiddleware(b.errHandler))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(middleware.Metrics)

	start := handlers.NewStartHandler(b.fsm, b.catalog, b.keyboard, b.log)
	cancel := handlers.NewCancelHandler(b.fsm, b.catalog, b.keyboard, b.log)
	subscribe := handlers.NewSubscribe(b.fsm, service, b.catalog, b.keyboard, b.log)

	b.router.RegisterCommand(CommandStart, start)
	b.router.RegisterCommand(CommandHelp, start)
	b.router.RegisterCommand(CommandSubscribe, subscribe.Command)
	b.router.RegisterCommand(CommandStatus, handlers.NewStatusHandler(service, b.catalog, b.log))
	b.router.RegisterCommand(CommandCancel, cancel)
	b.router.RegisterCallback(keyboard.CallbackCancel, handlers.CallbackHandler(cancel))

	b.dispatcher.RegisterStateHandler(state.StateAwaitingLocation, subscribe.Location)
	b.dispatcher.RegisterStateHandler(state.StateAwaitingDate, subscribe.Date)

	b.router.SetDefault(start)
}

func (b *Bot) registerTelebotHandlers() {
	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)
}
