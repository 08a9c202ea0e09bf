package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/paybot/internal/model"
)

const (
	EventRequestResolved  = "request.resolved"
	EventRequestSubmitted = "request.submitted"
)

// Event is the JSON body posted to the webhook.
type Event struct {
	Event        string                `json:"event"`
	Account      string                `json:"account"`
	Notification *model.Notification   `json:"notification,omitempty"`
	Request      *model.PendingRequest `json:"request,omitempty"`
}

type Webhook struct {
	client *resty.Client
	url    string
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: client, url: url}
}

func (w *Webhook) Notify(ctx context.Context, n model.Notification) error {
	return w.post(ctx, Event{Event: EventRequestResolved, Account: n.AccountKey, Notification: &n})
}

func (w *Webhook) Announce(ctx context.Context, account string, req model.PendingRequest) error {
	return w.post(ctx, Event{Event: EventRequestSubmitted, Account: account, Request: &req})
}

func (w *Webhook) post(ctx context.Context, event Event) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(event).
		Post(w.url)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook status: %d", resp.StatusCode())
	}
	return nil
}
