package config

import "time"

type Config struct {
	// DepositBonusPercent is credited on top of an approved deposit, rounded down.
	DepositBonusPercent int64
	// WithdrawFeePercent is charged on a withdrawal, rounded down, never below WithdrawFeeMin.
	WithdrawFeePercent int64
	WithdrawFeeMin     int64
	// IdempotencyRetention keeps deposit keys after resolution.
	IdempotencyRetention time.Duration
}

func Default() Config {
	return Config{
		DepositBonusPercent:  2,
		WithdrawFeePercent:   2,
		WithdrawFeeMin:       10,
		IdempotencyRetention: 24 * time.Hour,
	}
}
