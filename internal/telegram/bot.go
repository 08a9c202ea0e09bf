package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/auth"
	"github.com/iurnickita/paybot/internal/reconcile"
	"github.com/iurnickita/paybot/internal/service"
	"github.com/iurnickita/paybot/internal/session"
)

type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Accounts interface {
	FindByChat(chatID int64) (string, bool)
	BindChat(ctx context.Context, key string, chatID int64) error
}

type Bot struct {
	api       API
	service   service.Service
	registrar *auth.Registrar
	accounts  Accounts
	sessions  *session.Controller
	zaplog    *zap.Logger
}

func NewBot(api API, svc service.Service, registrar *auth.Registrar, accounts Accounts, sessions *session.Controller, zaplog *zap.Logger) *Bot {
	return &Bot{
		api:       api,
		service:   svc,
		registrar: registrar,
		accounts:  accounts,
		sessions:  sessions,
		zaplog:    zaplog,
	}
}

// Run reads updates until ctx is done. Messages are handled one at a time, so a
// conversation never drives two steps of a flow concurrently.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			b.reply(update.Message.Chat.ID, b.handle(ctx, update.Message))
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.zaplog.Warn("telegram send", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// forget removes a message that carried a password.
func (b *Bot) forget(msg *tgbotapi.Message) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		b.zaplog.Debug("delete credentials message", zap.Error(err))
	}
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) string {
	if !msg.IsCommand() {
		return b.flowInput(ctx, msg)
	}
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return helpText
	case "register":
		return b.register(ctx, msg, args)
	case "login":
		return b.login(ctx, msg, args)
	case "logout":
		return b.logout(ctx, msg)
	case "plans":
		return renderPlans(b.service.GetPlans())

	case "balance", "pending", "history", "deposit", "withdraw", "buy", "upgrade", "cancel":
		account, ok := b.accounts.FindByChat(msg.Chat.ID)
		if !ok {
			return "Please /login first."
		}
		return b.userCommand(msg.Command(), account, args)

	case "approve", "reject", "setbalance", "ban", "unban", "note", "stats", "users", "user", "transactions":
		if msg.From == nil {
			return ""
		}
		return b.adminCommand(ctx, msg.Command(), msg.From.ID, args)
	}
	return "Unknown command. Send /help for the list of commands."
}

func (b *Bot) flowInput(ctx context.Context, msg *tgbotapi.Message) string {
	account, ok := b.accounts.FindByChat(msg.Chat.ID)
	if !ok {
		return "Send /help for the list of commands."
	}
	r, err := b.sessions.Handle(ctx, account, msg.Text)
	if err != nil {
		if errors.Is(err, session.ErrNoFlow) {
			return "Send /help for the list of commands."
		}
		return errorText(err)
	}
	return r.Text
}

func errorText(err error) string {
	var d *reconcile.Denial
	switch {
	case errors.Is(err, reconcile.ErrAlreadyProcessed):
		return "Nothing to do: " + reconcile.Reason(err)
	case errors.As(err, &d):
		return d.Reason
	case errors.Is(err, service.ErrForbidden):
		return "This command is for the administrator."
	case errors.Is(err, service.ErrNotFound):
		return "Not found."
	case errors.Is(err, service.ErrInsufficientData):
		return "Some details are missing."
	case errors.Is(err, service.ErrInvalidData):
		return "Invalid details."
	case errors.Is(err, service.ErrAlreadyExists):
		return "Already exists."
	}
	return reconcile.Reason(err)
}

const helpText = `Welcome to PayBot.

/register <username> <password> <phone> <name>
/login <username> <password>
/logout
/balance, /pending, /history [n]
/plans
/deposit, /withdraw, /buy, /upgrade
/cancel`
