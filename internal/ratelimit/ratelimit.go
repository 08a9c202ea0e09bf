package ratelimit

import (
	"fmt"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/ratelimit/config"
)

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

type Remaining struct {
	DepositCount   int
	DepositAmount  int64
	WithdrawCount  int
	WithdrawAmount int64
}

type Limiter struct {
	cfg   config.Config
	clock clock.Clock
}

func NewLimiter(cfg config.Config, c clock.Clock) *Limiter {
	return &Limiter{cfg: cfg, clock: c}
}

func (l *Limiter) Today() string {
	return clock.Date(l.clock.Now())
}

func (l *Limiter) Limits(kind model.RequestKind) (config.Limits, bool) {
	switch kind {
	case model.KindDeposit:
		return l.cfg.Deposit, true
	case model.KindWithdrawal:
		return l.cfg.Withdrawal, true
	}
	return config.Limits{}, false
}

func (l *Limiter) Usage(c model.DailyCounter) model.DailyCounter {
	today := l.Today()
	if c.Date != today {
		return model.DailyCounter{Date: today}
	}
	return c
}

func (l *Limiter) CheckDeposit(acc *model.Account, amount int64) Decision {
	return l.check("deposit", l.cfg.Deposit, l.Usage(acc.DailyDeposits), amount)
}

func (l *Limiter) CheckWithdrawal(acc *model.Account, amount int64) Decision {
	return l.check("withdrawal", l.cfg.Withdrawal, l.Usage(acc.DailyWithdrawals), amount)
}

func (l *Limiter) check(name string, limits config.Limits, used model.DailyCounter, amount int64) Decision {
	if used.Count >= limits.DailyMaxTransactions {
		return deny("Daily %s transaction limit reached (%d per day).", name, limits.DailyMaxTransactions)
	}
	if used.Amount+amount > limits.DailyMaxAmount {
		return deny("Daily %s amount limit exceeded. Remaining today: %s",
			name, model.FormatAmount(limits.DailyMaxAmount-used.Amount))
	}
	return allow()
}

func (l *Limiter) RecordDeposit(acc *model.Account, amount int64) {
	acc.DailyDeposits = record(l.Usage(acc.DailyDeposits), amount)
}

func (l *Limiter) RecordWithdrawal(acc *model.Account, amount int64) {
	acc.DailyWithdrawals = record(l.Usage(acc.DailyWithdrawals), amount)
}

func record(c model.DailyCounter, amount int64) model.DailyCounter {
	c.Count++
	c.Amount += amount
	return c
}

// ReleaseDeposit returns quota taken by a request submitted on submittedDate.
// Quota of a past day has already expired and is left alone.
func (l *Limiter) ReleaseDeposit(acc *model.Account, amount int64, submittedDate string) bool {
	return release(&acc.DailyDeposits, amount, submittedDate)
}

func (l *Limiter) ReleaseWithdrawal(acc *model.Account, amount int64, submittedDate string) bool {
	return release(&acc.DailyWithdrawals, amount, submittedDate)
}

func release(c *model.DailyCounter, amount int64, submittedDate string) bool {
	if c.Date != submittedDate {
		return false
	}
	c.Count = max(0, c.Count-1)
	c.Amount = max(0, c.Amount-amount)
	return true
}

func (l *Limiter) Remaining(acc *model.Account) Remaining {
	dep := l.Usage(acc.DailyDeposits)
	wd := l.Usage(acc.DailyWithdrawals)
	return Remaining{
		DepositCount:   max(0, l.cfg.Deposit.DailyMaxTransactions-dep.Count),
		DepositAmount:  max(0, l.cfg.Deposit.DailyMaxAmount-dep.Amount),
		WithdrawCount:  max(0, l.cfg.Withdrawal.DailyMaxTransactions-wd.Count),
		WithdrawAmount: max(0, l.cfg.Withdrawal.DailyMaxAmount-wd.Amount),
	}
}
