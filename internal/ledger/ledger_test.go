package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/ledger/config"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/store"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails SaveAccounts while fail is set.
type flakyStore struct {
	store.Store
	fail  atomic.Bool
	saves atomic.Int32

	bounded atomic.Bool
}

func (s *flakyStore) SaveAccounts(ctx context.Context, accounts map[string]*model.Account) error {
	s.saves.Add(1)
	_, ok := ctx.Deadline()
	s.bounded.Store(ok)
	if s.fail.Load() {
		return errDiskFull
	}
	return s.Store.SaveAccounts(ctx, accounts)
}

func newTestLedger(t *testing.T) (*Ledger, *flakyStore, *clock.Fixed) {
	t.Helper()
	s := &flakyStore{Store: store.NewMemoryStore()}
	c := &clock.Fixed{T: time.Date(2025, 3, 10, 12, 0, 0, 0, clock.Zone(clock.DefaultOffset))}
	l, err := New(context.Background(), config.Default(), s, c, zap.NewNop())
	require.NoError(t, err)
	return l, s, c
}

func TestLedgerCreditDebit(t *testing.T) {
	ctx := context.Background()
	l, _, c := newTestLedger(t)

	_, err := l.Register(ctx, "ali_123", model.Profile{FirstName: "Ali"})
	require.NoError(t, err)

	_, err = l.Register(ctx, "ali_123", model.Profile{})
	require.ErrorIs(t, err, ErrAccountExists)

	acc, err := l.Credit(ctx, "ali_123", 1020, model.Transaction{Type: model.TxDepositApproved, RequestID: "dep_1"})
	require.NoError(t, err)
	require.Equal(t, int64(1020), acc.Balance)
	require.Len(t, acc.Transactions, 1)
	require.Equal(t, int64(1020), acc.Transactions[0].BalanceAfter)
	require.Equal(t, c.Now(), acc.Transactions[0].CreatedAt)
	require.NotEmpty(t, acc.Transactions[0].ID)

	_, err = l.Debit(ctx, "ali_123", 2000, model.Transaction{Type: model.TxWithdrawalReserved})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	acc, err = l.Debit(ctx, "ali_123", 1000, model.Transaction{Type: model.TxWithdrawalReserved})
	require.NoError(t, err)
	require.Equal(t, int64(20), acc.Balance)
	require.Equal(t, int64(-1000), acc.Transactions[1].Amount)

	acc, err = l.Refund(ctx, "ali_123", 1000, model.Transaction{Type: model.TxWithdrawalRejected})
	require.NoError(t, err)
	require.Equal(t, int64(1020), acc.Balance)
	require.Len(t, acc.Transactions, 3)

	_, err = l.Credit(ctx, "nobody", 1, model.Transaction{})
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = l.Debit(ctx, "ali_123", 0, model.Transaction{})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerSetBalanceAbsolute(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	_, err := l.Register(ctx, "bob", model.Profile{})
	require.NoError(t, err)

	acc, err := l.SetBalanceAbsolute(ctx, "bob", 500, "manual top-up")
	require.NoError(t, err)
	require.Equal(t, int64(500), acc.Balance)
	entry := acc.Transactions[0]
	require.Equal(t, model.TxAdminBalanceUpdate, entry.Type)
	require.Equal(t, int64(500), entry.Amount)
	require.Contains(t, entry.Note, "from 0 to 500")

	_, err = l.SetBalanceAbsolute(ctx, "bob", -1, "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	acc, err = l.Get("bob")
	require.NoError(t, err)
	require.Equal(t, int64(500), acc.Balance)
	require.Len(t, acc.Transactions, 1)
}

func TestLedgerPersistenceFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	l, s, _ := newTestLedger(t)
	_, err := l.Register(ctx, "ali_123", model.Profile{})
	require.NoError(t, err)
	_, err = l.Credit(ctx, "ali_123", 300, model.Transaction{})
	require.NoError(t, err)

	s.fail.Store(true)
	_, err = l.Debit(ctx, "ali_123", 100, model.Transaction{})
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorContains(t, err, errDiskFull.Error())

	acc, err := l.Get("ali_123")
	require.NoError(t, err)
	require.Equal(t, int64(300), acc.Balance)
	require.Len(t, acc.Transactions, 1)

	_, err = l.Register(ctx, "late", model.Profile{})
	require.ErrorIs(t, err, ErrPersistence)
	_, err = l.Get("late")
	require.ErrorIs(t, err, ErrAccountNotFound)

	// the stored snapshot matches memory
	s.fail.Store(false)
	stored, err := s.LoadAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(300), stored["ali_123"].Balance)
}

func TestLedgerBannedAccountIsFrozen(t *testing.T) {
	ctx := context.Background()
	l, s, _ := newTestLedger(t)
	_, err := l.Register(ctx, "ali_123", model.Profile{})
	require.NoError(t, err)
	_, err = l.Credit(ctx, "ali_123", 100, model.Transaction{})
	require.NoError(t, err)

	_, err = l.SetBanned(ctx, "ali_123", true)
	require.NoError(t, err)

	saves := s.saves.Load()
	called := false
	_, err = l.Update(ctx, "ali_123", func(tx *Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrAccountBanned)
	require.False(t, called)
	require.Equal(t, saves, s.saves.Load())

	require.NoError(t, l.BindChat(ctx, "ali_123", 42))
	key, ok := l.FindByChat(42)
	require.True(t, ok)
	require.Equal(t, "ali_123", key)

	acc, err := l.SetBanned(ctx, "ali_123", false)
	require.NoError(t, err)
	require.False(t, acc.IsBanned)
	require.Equal(t, int64(100), acc.Balance)
}

func TestLedgerUpdateErrorDiscardsWorkingCopy(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	_, err := l.Register(ctx, "ali_123", model.Profile{})
	require.NoError(t, err)

	_, err = l.Update(ctx, "ali_123", func(tx *Tx) error {
		require.NoError(t, tx.Credit(500, model.Transaction{}))
		tx.Account().PendingDeposits = append(tx.Account().PendingDeposits, model.PendingRequest{ID: "dep_1"})
		return ErrInvalidAmount
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	acc, err := l.Get("ali_123")
	require.NoError(t, err)
	require.Zero(t, acc.Balance)
	require.Empty(t, acc.PendingDeposits)
	require.Empty(t, acc.Transactions)
}

func TestLedgerConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	for _, key := range []string{"ali_123", "bob"} {
		_, err := l.Register(ctx, key, model.Profile{})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"ali_123", "bob"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				_, err := l.Credit(ctx, key, 10, model.Transaction{})
				require.NoError(t, err)
			}(key)
		}
	}
	wg.Wait()

	for _, acc := range l.List() {
		require.Equal(t, int64(500), acc.Balance)
		require.Len(t, acc.Transactions, 50)
	}
}

func TestLedgerUnknownAccount(t *testing.T) {
	ctx := context.Background()
	l, s, _ := newTestLedger(t)

	for i := 0; i < 10; i++ {
		_, err := l.Credit(ctx, fmt.Sprintf("ghost_%d", i), 10, model.Transaction{})
		require.ErrorIs(t, err, ErrAccountNotFound)
	}
	_, err := l.SetBanned(ctx, "ghost_0", true)
	require.ErrorIs(t, err, ErrAccountNotFound)

	require.Empty(t, l.locks)
	require.Zero(t, s.saves.Load())
}

func TestLedgerWriteTimeout(t *testing.T) {
	ctx := context.Background()
	l, s, _ := newTestLedger(t)

	_, err := l.Register(ctx, "ali_123", model.Profile{})
	require.NoError(t, err)
	require.True(t, s.bounded.Load())

	l.cfg.WriteTimeout = 0
	_, err = l.Credit(ctx, "ali_123", 10, model.Transaction{})
	require.NoError(t, err)
	require.False(t, s.bounded.Load())
}
