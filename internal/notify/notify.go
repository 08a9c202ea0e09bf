package notify

import (
	"context"
	"errors"

	"github.com/iurnickita/paybot/internal/model"
)

type Notifier interface {
	// Notify tells the account owner how a request was resolved.
	Notify(ctx context.Context, n model.Notification) error
	// Announce tells the administrator a request is waiting.
	Announce(ctx context.Context, account string, req model.PendingRequest) error
}

var ErrNoChat = errors.New("account has no bound chat")

type Nop struct{}

func (Nop) Notify(context.Context, model.Notification) error { return nil }

func (Nop) Announce(context.Context, string, model.PendingRequest) error { return nil }

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, notifier := range m {
		errs = append(errs, notifier.Notify(ctx, n))
	}
	return errors.Join(errs...)
}

func (m Multi) Announce(ctx context.Context, account string, req model.PendingRequest) error {
	var errs []error
	for _, notifier := range m {
		errs = append(errs, notifier.Announce(ctx, account, req))
	}
	return errors.Join(errs...)
}
