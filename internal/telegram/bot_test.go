package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/admin"
	"github.com/iurnickita/paybot/internal/auth"
	"github.com/iurnickita/paybot/internal/catalog"
	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/ledger"
	ledgerConfig "github.com/iurnickita/paybot/internal/ledger/config"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/notify"
	"github.com/iurnickita/paybot/internal/ratelimit"
	ratelimitConfig "github.com/iurnickita/paybot/internal/ratelimit/config"
	"github.com/iurnickita/paybot/internal/reconcile"
	reconcileConfig "github.com/iurnickita/paybot/internal/reconcile/config"
	"github.com/iurnickita/paybot/internal/service"
	serviceConfig "github.com/iurnickita/paybot/internal/service/config"
	"github.com/iurnickita/paybot/internal/session"
	"github.com/iurnickita/paybot/internal/store"
)

const (
	userChat  = 100
	adminUser = 42
)

type fakeAPI struct {
	mu      sync.Mutex
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	deleted []int
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
		f.deleted = append(f.deleted, d.MessageID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

type testBot struct {
	bot *Bot
	api *fakeAPI
	id  int
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	ctx := context.Background()
	zaplog := zap.NewNop()
	s := store.NewMemoryStore()
	c := &clock.Fixed{T: time.Date(2025, 3, 10, 9, 0, 0, 0, clock.Zone(clock.DefaultOffset))}

	l, err := ledger.New(ctx, ledgerConfig.Default(), s, c, zaplog)
	require.NoError(t, err)
	plans, err := catalog.New(ctx, s, zaplog)
	require.NoError(t, err)
	engine := reconcile.NewEngine(reconcileConfig.Default(), l, ratelimit.NewLimiter(ratelimitConfig.Default(), c), plans, c, zaplog)

	api := newFakeAPI()
	svc := service.NewService(serviceConfig.Config{}, l, engine, plans,
		admin.NewDirectory(admin.ChatActor(adminUser)), notify.NewTelegram(api, adminUser), zaplog)
	sessions := session.NewController(ratelimitConfig.Default(), svc, svc, zaplog)

	return &testBot{
		bot: NewBot(api, svc, auth.NewRegistrar(l, c, zaplog), l, sessions, zaplog),
		api: api,
	}
}

func (tb *testBot) message(chatID, userID int64, text string) *tgbotapi.Message {
	tb.id++
	msg := &tgbotapi.Message{
		MessageID: tb.id,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return msg
}

func (tb *testBot) say(t *testing.T, text string) string {
	t.Helper()
	return tb.bot.handle(context.Background(), tb.message(userChat, userChat, text))
}

func (tb *testBot) admin(t *testing.T, text string) string {
	t.Helper()
	return tb.bot.handle(context.Background(), tb.message(adminUser, adminUser, text))
}

func TestBotRegisterAndLogin(t *testing.T) {
	tb := newTestBot(t)

	require.Contains(t, tb.say(t, "/balance"), "/login")
	require.Contains(t, tb.say(t, "/register ali"), "Usage")
	require.Contains(t, tb.say(t, "/register ali_123 weak 03001234567 Ali"), "password")
	require.Contains(t, tb.say(t, "/register ali_123 Secret123 03001234567 Ali Khan"), "Welcome, Ali Khan")
	require.Len(t, tb.api.deleted, 2)

	require.Contains(t, tb.say(t, "/balance"), "Balance: 0 PKR")
	require.Equal(t, "Logged out.", tb.say(t, "/logout"))
	require.Contains(t, tb.say(t, "/balance"), "/login")

	require.Contains(t, tb.say(t, "/login ali_123 nope"), "invalid username or password")
	require.Equal(t, "Logged in as ali_123.", tb.say(t, "/login ali_123 Secret123"))
}

func TestBotDepositFlowAndApproval(t *testing.T) {
	tb := newTestBot(t)
	tb.say(t, "/register ali_123 Secret123 03001234567 Ali")

	require.Contains(t, tb.say(t, "/deposit"), "payment method")
	tb.say(t, "EasyPaisa")
	tb.say(t, "1000")
	require.Contains(t, tb.say(t, "TXN12345"), "Type confirm")
	reply := tb.say(t, "confirm")
	require.Contains(t, reply, "submitted")

	// the admin got the announcement with the resolve command
	sent := tb.api.messages()
	announcement := sent[len(sent)-1]
	require.Equal(t, int64(adminUser), announcement.ChatID)
	require.Contains(t, announcement.Text, "/approve deposit ali_123 dep_")

	pending, err := tb.bot.service.GetPending("ali_123")
	require.NoError(t, err)
	require.Len(t, pending.Deposits, 1)
	id := pending.Deposits[0].ID

	require.Equal(t, "This command is for the administrator.", tb.say(t, "/approve deposit ali_123 "+id))
	require.Contains(t, tb.admin(t, "/approve deposit ali_123 "+id), "Balance: 1,020 PKR")
	require.Contains(t, tb.admin(t, "/approve deposit ali_123 "+id), "Nothing to do")

	// the user was notified in their chat
	sent = tb.api.messages()
	var notified bool
	for _, m := range sent {
		if m.ChatID == userChat && strings.Contains(m.Text, "Deposit Approved") {
			notified = true
		}
	}
	require.True(t, notified)

	require.Contains(t, tb.say(t, "/history"), string(model.TxDepositApproved))
	require.Equal(t, "No pending requests.", tb.say(t, "/pending"))
}

func TestBotAdminCommands(t *testing.T) {
	tb := newTestBot(t)
	tb.say(t, "/register ali_123 Secret123 03001234567 Ali")

	require.Contains(t, tb.admin(t, "/setbalance ali_123 abc"), "whole number")
	require.Equal(t, "Balance of ali_123 is now 5,000 PKR.", tb.admin(t, "/setbalance ali_123 5000 opening balance"))
	require.Equal(t, "Note added.", tb.admin(t, "/note ali_123 verified by phone"))
	require.Equal(t, "ali_123 is banned.", tb.admin(t, "/ban ali_123"))

	require.Contains(t, tb.say(t, "/withdraw"), "payment method")
	tb.say(t, "JazzCash")
	tb.say(t, "1000")
	tb.say(t, "03001234567")
	require.Equal(t, "Your account has been suspended by admin.", tb.say(t, "confirm"))

	require.Equal(t, "ali_123 is unbanned.", tb.admin(t, "/unban ali_123"))
	require.Contains(t, tb.admin(t, "/stats"), "Users: 1 (active 1, banned 0)")
	require.Equal(t, "Not found.", tb.admin(t, "/ban ghost"))
}

func TestBotAdminLookup(t *testing.T) {
	tb := newTestBot(t)
	tb.say(t, "/register ali_123 Secret123 03001234567 Ali Khan")

	require.Equal(t, "This command is for the administrator.", tb.say(t, "/users"))
	require.Contains(t, tb.admin(t, "/users"), "1. Ali Khan (ali_123), 03001234567, 0 PKR")
	require.Contains(t, tb.admin(t, "/users khan"), "ali_123")
	require.Equal(t, "No users found.", tb.admin(t, "/users nobody"))

	tb.say(t, "/deposit")
	tb.say(t, "EasyPaisa")
	tb.say(t, "1000")
	tb.say(t, "TXN12345")
	tb.say(t, "confirm")
	require.Contains(t, tb.admin(t, "/users 0300"), "1 pending")

	details := tb.admin(t, "/user ali_123")
	require.Contains(t, details, "Ali Khan (ali_123), active")
	require.Contains(t, details, "Phone: 03001234567")
	require.Contains(t, details, "deposit 1,000 PKR")
	require.Contains(t, details, "No transactions yet.")
	require.Equal(t, "Not found.", tb.admin(t, "/user ghost"))
	require.Contains(t, tb.admin(t, "/user"), "Usage")

	require.Equal(t, "No transactions found.", tb.admin(t, "/transactions"))
	tb.admin(t, "/note ali_123 verified by phone")
	feed := tb.admin(t, "/transactions 5")
	require.Contains(t, feed, "Ali Khan (ali_123) "+string(model.TxAdminNote))
	require.Contains(t, tb.admin(t, "/transactions x"), "Usage")
}

func TestBotRun(t *testing.T) {
	tb := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- tb.bot.Run(ctx) }()

	tb.api.updates <- tgbotapi.Update{Message: tb.message(userChat, userChat, "/start")}
	require.Eventually(t, func() bool { return len(tb.api.messages()) == 1 }, time.Second, 10*time.Millisecond)
	require.Contains(t, tb.api.messages()[0].Text, "Welcome to PayBot")

	cancel()
	require.NoError(t, <-done)
	require.True(t, tb.api.stopped)
}
