package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/model"
)

var at = time.Date(2025, 3, 10, 14, 5, 0, 0, clock.Zone(clock.DefaultOffset))

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func depositApproved() model.Notification {
	return model.Notification{
		AccountKey: "ali_123",
		ChatID:     77,
		Kind:       model.KindDeposit,
		RequestID:  "dep_1",
		Outcome:    model.OutcomeApproved,
		Amount:     1000,
		Bonus:      20,
		Method:     "EasyPaisa",
		Proof:      "TXN1",
		OldBalance: 0,
		NewBalance: 1020,
		At:         at,
	}
}

func TestRenderNotification(t *testing.T) {
	text := RenderNotification(depositApproved())
	require.Contains(t, text, "Deposit Approved")
	require.Contains(t, text, "Total Added: 1,020 PKR")
	require.Contains(t, text, "Date: 10-03-2025")
	require.Contains(t, text, "Time: 14:05:00")
	require.Contains(t, text, "New Balance: 1,020 PKR")

	n := model.Notification{
		Kind:        model.KindWithdrawal,
		Outcome:     model.OutcomeRejected,
		Amount:      1000,
		Method:      "JazzCash",
		Destination: "03001234567",
		Reason:      "bad account",
		OldBalance:  4000,
		NewBalance:  5000,
		At:          at,
	}
	text = RenderNotification(n)
	require.Contains(t, text, "Withdrawal Request Rejected")
	require.Contains(t, text, "bad account")
	require.Contains(t, text, "03001234567")
}

func TestRenderAnnouncement(t *testing.T) {
	req := model.PendingRequest{ID: "wd_1", Kind: model.KindWithdrawal, Amount: 1000, Fee: 20, NetAmount: 980, Method: "JazzCash", Destination: "03001234567", CreatedAt: at}
	text := RenderAnnouncement("ali_123", req)
	require.Contains(t, text, "/approve withdrawal ali_123 wd_1")
	require.Contains(t, text, "/reject withdrawal ali_123 wd_1 <reason>")
	require.Contains(t, text, "Net Amount: 980 PKR")
}

func TestTelegramNotifier(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	tg := NewTelegram(sender, 500)

	require.NoError(t, tg.Notify(ctx, depositApproved()))
	require.NoError(t, tg.Announce(ctx, "ali_123", model.PendingRequest{ID: "dep_1", Kind: model.KindDeposit, CreatedAt: at}))
	require.Len(t, sender.sent, 2)
	require.Equal(t, int64(77), sender.sent[0].ChatID)
	require.Equal(t, int64(500), sender.sent[1].ChatID)

	unbound := depositApproved()
	unbound.ChatID = 0
	require.ErrorIs(t, tg.Notify(ctx, unbound), ErrNoChat)

	require.NoError(t, NewTelegram(sender, 0).Announce(ctx, "ali_123", model.PendingRequest{}))
	require.Len(t, sender.sent, 2)
}

func TestWebhook(t *testing.T) {
	var got []Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var e Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		got = append(got, e)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second)
	ctx := context.Background()
	require.NoError(t, hook.Notify(ctx, depositApproved()))
	require.NoError(t, hook.Announce(ctx, "ali_123", model.PendingRequest{ID: "dep_1", Kind: model.KindDeposit}))

	require.Len(t, got, 2)
	require.Equal(t, EventRequestResolved, got[0].Event)
	require.Equal(t, int64(1020), got[0].Notification.NewBalance)
	require.Equal(t, EventRequestSubmitted, got[1].Event)
	require.Equal(t, "dep_1", got[1].Request.ID)
}

func TestWebhookFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), depositApproved())
	require.ErrorContains(t, err, "502")
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	ok := &fakeSender{}
	broken := &fakeSender{err: errors.New("telegram down")}
	m := Multi{NewTelegram(ok, 1), NewTelegram(broken, 1), Nop{}}

	err := m.Notify(ctx, depositApproved())
	require.ErrorContains(t, err, "telegram down")
	require.Len(t, ok.sent, 1)

	require.NoError(t, Multi{Nop{}}.Announce(ctx, "x", model.PendingRequest{}))
}
