package reconcile

import (
	"github.com/iurnickita/paybot/internal/model"
)

func (e *Engine) BalanceSummary(account string) (model.BalanceSummary, error) {
	acc, err := e.ledger.Get(account)
	if err != nil {
		return model.BalanceSummary{}, err
	}
	rem := e.limiter.Remaining(&acc)
	return model.BalanceSummary{
		AccountKey:         acc.Key,
		Balance:            acc.Balance,
		IsBanned:           acc.IsBanned,
		DailyDeposits:      e.limiter.Usage(acc.DailyDeposits),
		DailyWithdrawals:   e.limiter.Usage(acc.DailyWithdrawals),
		DepositsLeft:       rem.DepositCount,
		DepositAmountLeft:  rem.DepositAmount,
		WithdrawalsLeft:    rem.WithdrawCount,
		WithdrawAmountLeft: rem.WithdrawAmount,
		PendingCount:       len(acc.PendingDeposits) + len(acc.PendingWithdrawals) + len(acc.PendingPlanRequests),
		Plans:              e.planStatuses(acc),
	}, nil
}

func (e *Engine) planStatuses(acc model.Account) []model.PlanStatus {
	now := e.clock.Now()
	out := make([]model.PlanStatus, 0, len(acc.ActivePlans))
	for _, p := range acc.ActivePlans {
		out = append(out, model.PlanStatus{
			ActivePlan: p,
			ExpiresAt:  p.ExpiresAt(),
			DaysLeft:   p.DaysLeft(now),
			Expired:    p.Expired(now),
		})
	}
	return out
}

func (e *Engine) PendingRequests(account string) (model.PendingSet, error) {
	acc, err := e.ledger.Get(account)
	if err != nil {
		return model.PendingSet{}, err
	}
	return model.PendingSet{
		Deposits:     acc.PendingDeposits,
		Withdrawals:  acc.PendingWithdrawals,
		PlanRequests: acc.PendingPlanRequests,
	}, nil
}

// TransactionHistory returns up to limit entries, most recent first. A limit of zero or
// less returns everything.
func (e *Engine) TransactionHistory(account string, limit int) ([]model.Transaction, error) {
	acc, err := e.ledger.Get(account)
	if err != nil {
		return nil, err
	}
	return latest(acc.Transactions, limit), nil
}

// AccountDetails is the administrator's view of one account with its newest limit entries.
func (e *Engine) AccountDetails(account string, limit int) (model.AccountDetails, error) {
	acc, err := e.ledger.Get(account)
	if err != nil {
		return model.AccountDetails{}, err
	}
	return model.AccountDetails{
		AccountOverview: acc.Overview(),
		Plans:           e.planStatuses(acc),
		Pending: model.PendingSet{
			Deposits:     acc.PendingDeposits,
			Withdrawals:  acc.PendingWithdrawals,
			PlanRequests: acc.PendingPlanRequests,
		},
		Transactions: latest(acc.Transactions, limit),
	}, nil
}

func latest(history []model.Transaction, limit int) []model.Transaction {
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Transaction, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out
}
