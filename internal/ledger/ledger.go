// Package ledger owns account balances, history and pending collections.
//
// Mutations run on a private clone of the account while the per-account mutex is held.
// The clone is persisted as part of a full snapshot and only then replaces the committed
// record, so a failed write leaves no visible trace. Snapshot writes are serialized, which
// keeps the stored snapshot equal to the committed in-memory state.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/ledger/config"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/store"
)

type Ledger struct {
	cfg    config.Config
	store  store.Store
	clock  clock.Clock
	zaplog *zap.Logger

	mu       sync.RWMutex
	accounts map[string]*model.Account
	locks    map[string]*sync.Mutex

	persistMu sync.Mutex
}

// New loads the account collection from the store.
func New(ctx context.Context, cfg config.Config, s store.Store, c clock.Clock, zaplog *zap.Logger) (*Ledger, error) {
	accounts, err := s.LoadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load accounts: %v", ErrPersistence, err)
	}
	for key, acc := range accounts {
		acc.Key = key
		acc.Normalize()
	}
	zaplog.Info("ledger loaded", zap.Int("accounts", len(accounts)))

	return &Ledger{
		cfg:      cfg,
		store:    s,
		clock:    c,
		zaplog:   zaplog,
		accounts: accounts,
		locks:    map[string]*sync.Mutex{},
	}, nil
}

// Update runs fn against a working copy of the account and commits it with a single
// persisted snapshot. Banned accounts are frozen: fn is not called.
func (l *Ledger) Update(ctx context.Context, key string, fn func(tx *Tx) error) (model.Account, error) {
	return l.update(ctx, key, false, fn)
}

func (l *Ledger) update(ctx context.Context, key string, allowBanned bool, fn func(tx *Tx) error) (model.Account, error) {
	// accounts are never removed, so a key seen here stays valid under the lock
	if !l.exists(key) {
		return model.Account{}, ErrAccountNotFound
	}
	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	l.mu.RLock()
	committed := l.accounts[key]
	l.mu.RUnlock()
	if committed.IsBanned && !allowBanned {
		return model.Account{}, ErrAccountBanned
	}

	tx := &Tx{account: committed.Clone(), now: l.clock.Now()}
	if err := fn(tx); err != nil {
		return model.Account{}, err
	}

	if err := l.commit(ctx, tx.account); err != nil {
		return model.Account{}, err
	}
	return *tx.account.Clone(), nil
}

func (l *Ledger) commit(ctx context.Context, working *model.Account) error {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.RLock()
	snapshot := make(map[string]*model.Account, len(l.accounts)+1)
	for key, acc := range l.accounts {
		snapshot[key] = acc
	}
	l.mu.RUnlock()
	snapshot[working.Key] = working

	if l.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.WriteTimeout)
		defer cancel()
	}
	if err := l.store.SaveAccounts(ctx, snapshot); err != nil {
		l.zaplog.Error("save accounts",
			zap.String("account", working.Key),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	l.mu.Lock()
	l.accounts[working.Key] = working
	l.mu.Unlock()
	return nil
}

func (l *Ledger) exists(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[key]
	return ok
}

func (l *Ledger) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// Register creates a new account with a zero balance.
func (l *Ledger) Register(ctx context.Context, key string, profile model.Profile) (model.Account, error) {
	if l.exists(key) {
		return model.Account{}, ErrAccountExists
	}
	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if l.exists(key) {
		return model.Account{}, ErrAccountExists
	}

	if profile.RegisteredAt.IsZero() {
		profile.RegisteredAt = l.clock.Now()
	}
	acc := &model.Account{Key: key, Profile: profile}
	acc.Normalize()

	if err := l.commit(ctx, acc); err != nil {
		return model.Account{}, err
	}
	l.zaplog.Info("account registered", zap.String("account", key))
	return *acc.Clone(), nil
}

// Get returns a detached copy of the committed account.
func (l *Ledger) Get(key string) (model.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[key]
	if !ok {
		return model.Account{}, ErrAccountNotFound
	}
	return *acc.Clone(), nil
}

// List returns copies of all accounts ordered by key.
func (l *Ledger) List() []model.Account {
	l.mu.RLock()
	out := make([]model.Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, *acc.Clone())
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// FindByChat returns the key of the account bound to a chat.
func (l *Ledger) FindByChat(chatID int64) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for key, acc := range l.accounts {
		if acc.ChatID == chatID {
			return key, true
		}
	}
	return "", false
}

// SetBanned toggles the frozen flag. It is the only mutation allowed on a banned account.
func (l *Ledger) SetBanned(ctx context.Context, key string, banned bool) (model.Account, error) {
	acc, err := l.update(ctx, key, true, func(tx *Tx) error {
		tx.account.IsBanned = banned
		return nil
	})
	if err == nil {
		l.zaplog.Info("account ban flag changed",
			zap.String("account", key),
			zap.Bool("banned", banned),
		)
	}
	return acc, err
}

// BindChat records the chat that receives notifications for the account.
func (l *Ledger) BindChat(ctx context.Context, key string, chatID int64) error {
	_, err := l.update(ctx, key, true, func(tx *Tx) error {
		tx.account.ChatID = chatID
		return nil
	})
	return err
}

// Credit increases the balance and appends entry.
func (l *Ledger) Credit(ctx context.Context, key string, amount int64, entry model.Transaction) (model.Account, error) {
	return l.Update(ctx, key, func(tx *Tx) error { return tx.Credit(amount, entry) })
}

// Debit decreases the balance and appends entry, failing when funds are short.
func (l *Ledger) Debit(ctx context.Context, key string, amount int64, entry model.Transaction) (model.Account, error) {
	return l.Update(ctx, key, func(tx *Tx) error { return tx.Debit(amount, entry) })
}

// Refund returns a previously debited amount.
func (l *Ledger) Refund(ctx context.Context, key string, amount int64, entry model.Transaction) (model.Account, error) {
	return l.Update(ctx, key, func(tx *Tx) error { return tx.Refund(amount, entry) })
}

// AppendHistory records an entry without touching the balance.
func (l *Ledger) AppendHistory(ctx context.Context, key string, entry model.Transaction) (model.Account, error) {
	return l.Update(ctx, key, func(tx *Tx) error {
		tx.AppendHistory(entry)
		return nil
	})
}

// SetBalanceAbsolute is the administrative override.
func (l *Ledger) SetBalanceAbsolute(ctx context.Context, key string, newBalance int64, reason string) (model.Account, error) {
	return l.Update(ctx, key, func(tx *Tx) error { return tx.SetBalanceAbsolute(newBalance, reason) })
}
