package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/paybot/internal/admin"
	"github.com/iurnickita/paybot/internal/auth"
	"github.com/iurnickita/paybot/internal/catalog"
	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/config"
	"github.com/iurnickita/paybot/internal/handler"
	"github.com/iurnickita/paybot/internal/ledger"
	"github.com/iurnickita/paybot/internal/logger"
	"github.com/iurnickita/paybot/internal/notify"
	"github.com/iurnickita/paybot/internal/ratelimit"
	"github.com/iurnickita/paybot/internal/reconcile"
	"github.com/iurnickita/paybot/internal/service"
	"github.com/iurnickita/paybot/internal/session"
	"github.com/iurnickita/paybot/internal/store"
	"github.com/iurnickita/paybot/internal/telegram"
	"github.com/iurnickita/paybot/internal/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	regional := clock.NewRegional(cfg.UTCOffset)

	ledger, err := ledger.New(ctx, cfg.Ledger, store, regional, zaplog)
	if err != nil {
		return err
	}
	plans, err := catalog.New(ctx, store, zaplog)
	if err != nil {
		return err
	}
	limiter := ratelimit.NewLimiter(cfg.RateLimit, regional)
	engine := reconcile.NewEngine(cfg.Reconcile, ledger, limiter, plans, regional, zaplog)

	var bot *tgbotapi.BotAPI
	var notifiers notify.Multi
	if cfg.Telegram.Token != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, notify.NewTelegram(bot, cfg.Telegram.AnnounceChat()))
	}
	if cfg.Service.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Service.NotifyWebhookURL, cfg.Service.NotifyTimeout))
	}

	adminIDs := []string{cfg.Auth.AdminLogin}
	if cfg.Telegram.AdminID != 0 {
		adminIDs = append(adminIDs, admin.ChatActor(cfg.Telegram.AdminID))
	}

	service := service.NewService(cfg.Service, ledger, engine, plans, admin.NewDirectory(adminIDs...), notifiers, zaplog)
	registrar := auth.NewRegistrar(ledger, regional, zaplog)
	auth := auth.NewAuth(cfg.Auth, registrar, token.NewIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL), zaplog)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Serve(ctx, cfg.Handler, auth, service, zaplog)
	})
	if bot != nil {
		sessions := session.NewController(cfg.RateLimit, service, service, zaplog)
		chat := telegram.NewBot(bot, service, registrar, ledger, sessions, zaplog)
		zaplog.Info("telegram bot started", zap.String("bot", bot.Self.UserName))
		g.Go(func() error {
			return chat.Run(ctx)
		})
	}
	return g.Wait()
}
