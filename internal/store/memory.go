package store

import (
	"context"
	"sync"

	"github.com/iurnickita/paybot/internal/model"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	plans    map[string]model.Plan
	closed   bool
}

func NewMemoryStore() Store {
	return &memoryStore{
		accounts: map[string]*model.Account{},
		plans:    map[string]model.Plan{},
	}
}

func (s *memoryStore) LoadAccounts(_ context.Context) (map[string]*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return cloneAccounts(s.accounts), nil
}

func (s *memoryStore) SaveAccounts(ctx context.Context, accounts map[string]*model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := cloneAccounts(accounts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.accounts = snapshot
	return nil
}

func (s *memoryStore) LoadPlans(_ context.Context) (map[string]model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return clonePlans(s.plans), nil
}

func (s *memoryStore) SavePlans(ctx context.Context, plans map[string]model.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := clonePlans(plans)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.plans = snapshot
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
