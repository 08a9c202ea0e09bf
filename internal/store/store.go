package store

import (
	"context"
	"errors"

	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/store/config"
)

// Store persists whole snapshots: every Save replaces the stored collection.
type Store interface {
	LoadAccounts(ctx context.Context) (map[string]*model.Account, error)
	SaveAccounts(ctx context.Context, accounts map[string]*model.Account) error
	LoadPlans(ctx context.Context) (map[string]model.Plan, error)
	SavePlans(ctx context.Context, plans map[string]model.Plan) error
	Close() error
}

var (
	ErrClosed = errors.New("store closed")
)

// NewStore picks the backend: Postgres when a DSN is configured, JSON files when a data
// directory is configured, process memory otherwise.
func NewStore(cfg config.Config) (Store, error) {
	switch {
	case cfg.DBDsn != "":
		return newPostgresStore(cfg.DBDsn)
	case cfg.DataDir != "":
		return newFileStore(cfg.DataDir)
	default:
		return NewMemoryStore(), nil
	}
}

func cloneAccounts(accounts map[string]*model.Account) map[string]*model.Account {
	out := make(map[string]*model.Account, len(accounts))
	for key, acc := range accounts {
		c := acc.Clone()
		c.Key = key
		c.Normalize()
		out[key] = c
	}
	return out
}

func clonePlans(plans map[string]model.Plan) map[string]model.Plan {
	out := make(map[string]model.Plan, len(plans))
	for id, plan := range plans {
		plan.Features = append([]string(nil), plan.Features...)
		plan.ID = id
		out[id] = plan
	}
	return out
}
