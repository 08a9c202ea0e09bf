package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestActivePlanDaysLeft(t *testing.T) {
	activated := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	plan := ActivePlan{PlanID: "plan2", ActivatedAt: activated, DurationDays: 30}

	require.Equal(t, 30, plan.DaysLeft(activated))
	// partial days round up
	require.Equal(t, 30, plan.DaysLeft(activated.Add(time.Hour)))
	require.Equal(t, 1, plan.DaysLeft(activated.AddDate(0, 0, 29).Add(time.Hour)))
	require.Equal(t, 0, plan.DaysLeft(activated.AddDate(0, 0, 30)))
	require.True(t, plan.Expired(activated.AddDate(0, 0, 31)))
	require.False(t, plan.Expired(activated.AddDate(0, 0, 29)))
}

func TestAccountCloneIsDeep(t *testing.T) {
	acc := &Account{Key: "ali_123"}
	acc.Normalize()
	acc.Transactions = append(acc.Transactions, Transaction{ID: "t1"})
	acc.ProcessedRequestKeys["k"] = time.Now()
	acc.ActivePlans = append(acc.ActivePlans, ActivePlan{PlanID: "p", Features: []string{"a"}})

	c := acc.Clone()
	c.Transactions[0].ID = "changed"
	c.ProcessedRequestKeys["other"] = time.Now()
	c.ActivePlans[0].Features[0] = "b"
	c.Balance = 10

	require.Equal(t, "t1", acc.Transactions[0].ID)
	require.Len(t, acc.ProcessedRequestKeys, 1)
	require.Equal(t, "a", acc.ActivePlans[0].Features[0])
	require.Zero(t, acc.Balance)
}

func TestPendingCollections(t *testing.T) {
	acc := &Account{}
	acc.Normalize()
	*acc.Pending(KindPlanUpgrade) = append(*acc.Pending(KindPlanUpgrade), PendingRequest{ID: "u"})
	require.Len(t, acc.PendingPlanRequests, 1)
	require.Nil(t, acc.Pending(RequestKind("bogus")))
	require.True(t, KindWithdrawal.Reserves())
	require.False(t, KindDeposit.Reserves())
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "0 PKR", FormatAmount(0))
	require.Equal(t, "999 PKR", FormatAmount(999))
	require.Equal(t, "1,020 PKR", FormatAmount(1020))
	require.Equal(t, "20,000 PKR", FormatAmount(20000))
	require.Equal(t, "1,234,567 PKR", FormatAmount(1234567))
	require.Equal(t, "-5,000 PKR", FormatAmount(-5000))
}
