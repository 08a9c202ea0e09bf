package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iurnickita/paybot/internal/model"
)

// Tx is a working copy of one account inside Ledger.Update.
type Tx struct {
	account *model.Account
	now     time.Time
}

// Account exposes the working copy for collection edits (pending sets, counters, plans).
// Balance and history must go through the Tx methods.
func (tx *Tx) Account() *model.Account { return tx.account }

// Now is the commit time shared by every entry of this Tx.
func (tx *Tx) Now() time.Time { return tx.now }

func (tx *Tx) Credit(amount int64, entry model.Transaction) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit of %d", ErrInvalidAmount, amount)
	}
	tx.account.Balance += amount
	entry.Amount = amount
	tx.AppendHistory(entry)
	return nil
}

func (tx *Tx) Debit(amount int64, entry model.Transaction) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit of %d", ErrInvalidAmount, amount)
	}
	if amount > tx.account.Balance {
		return fmt.Errorf("%w: available %d, required %d", ErrInsufficientBalance, tx.account.Balance, amount)
	}
	tx.account.Balance -= amount
	entry.Amount = -amount
	tx.AppendHistory(entry)
	return nil
}

func (tx *Tx) Refund(amount int64, entry model.Transaction) error {
	if amount <= 0 {
		return fmt.Errorf("%w: refund of %d", ErrInvalidAmount, amount)
	}
	tx.account.Balance += amount
	entry.Amount = amount
	tx.AppendHistory(entry)
	return nil
}

func (tx *Tx) SetBalanceAbsolute(newBalance int64, reason string) error {
	if newBalance < 0 {
		return fmt.Errorf("%w: balance cannot be negative", ErrInvalidAmount)
	}
	old := tx.account.Balance
	tx.account.Balance = newBalance

	note := fmt.Sprintf("balance changed from %d to %d", old, newBalance)
	if reason != "" {
		note += ": " + reason
	}
	tx.AppendHistory(model.Transaction{
		Type:   model.TxAdminBalanceUpdate,
		Status: model.TxStatusAdminUpdated,
		Amount: newBalance - old,
		Reason: reason,
		Note:   note,
	})
	return nil
}

// AppendHistory stamps and appends entry. Entries are never edited afterwards.
func (tx *Tx) AppendHistory(entry model.Transaction) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = tx.now
	entry.BalanceAfter = tx.account.Balance
	tx.account.Transactions = append(tx.account.Transactions, entry)
}
