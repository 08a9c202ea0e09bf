package config

import (
	"errors"
	"fmt"
)

// Limits bounds a single request and the per-day total of one request kind.
type Limits struct {
	MinAmount            int64
	MaxAmount            int64
	DailyMaxAmount       int64
	DailyMaxTransactions int
}

type Config struct {
	Deposit    Limits
	Withdrawal Limits
}

func Default() Config {
	return Config{
		Deposit: Limits{
			MinAmount:            100,
			MaxAmount:            5000,
			DailyMaxAmount:       20000,
			DailyMaxTransactions: 5,
		},
		Withdrawal: Limits{
			MinAmount:            200,
			MaxAmount:            5000,
			DailyMaxAmount:       15000,
			DailyMaxTransactions: 3,
		},
	}
}

var ErrInvalidLimits = errors.New("invalid limits")

func (l Limits) Validate() error {
	if l.MinAmount <= 0 || l.MaxAmount < l.MinAmount {
		return fmt.Errorf("%w: amount range %d..%d", ErrInvalidLimits, l.MinAmount, l.MaxAmount)
	}
	if l.DailyMaxAmount < l.MaxAmount {
		return fmt.Errorf("%w: daily amount %d below per-request maximum %d", ErrInvalidLimits, l.DailyMaxAmount, l.MaxAmount)
	}
	if l.DailyMaxTransactions <= 0 {
		return fmt.Errorf("%w: daily transactions %d", ErrInvalidLimits, l.DailyMaxTransactions)
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Deposit.Validate(); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	if err := c.Withdrawal.Validate(); err != nil {
		return fmt.Errorf("withdrawal: %w", err)
	}
	return nil
}
