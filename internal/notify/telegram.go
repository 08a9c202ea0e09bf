package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iurnickita/paybot/internal/model"
)

// Sender is the part of the bot API used to push messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot         Sender
	adminChatID int64
}

// NewTelegram sends outcomes to the account's bound chat and announcements to adminChatID.
// A zero adminChatID disables announcements.
func NewTelegram(bot Sender, adminChatID int64) *Telegram {
	return &Telegram{bot: bot, adminChatID: adminChatID}
}

func (t *Telegram) Notify(ctx context.Context, n model.Notification) error {
	if n.ChatID == 0 {
		return ErrNoChat
	}
	return t.send(ctx, n.ChatID, RenderNotification(n))
}

func (t *Telegram) Announce(ctx context.Context, account string, req model.PendingRequest) error {
	if t.adminChatID == 0 {
		return nil
	}
	return t.send(ctx, t.adminChatID, RenderAnnouncement(account, req))
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
