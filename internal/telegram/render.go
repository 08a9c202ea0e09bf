package telegram

import (
	"fmt"
	"strings"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/model"
)

func renderBalance(s model.BalanceSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Balance: %s\n", model.FormatAmount(s.Balance))
	fmt.Fprintf(&sb, "Deposits today: %d (%s left, %d requests left)\n",
		s.DailyDeposits.Count, model.FormatAmount(s.DepositAmountLeft), s.DepositsLeft)
	fmt.Fprintf(&sb, "Withdrawals today: %d (%s left, %d requests left)\n",
		s.DailyWithdrawals.Count, model.FormatAmount(s.WithdrawAmountLeft), s.WithdrawalsLeft)
	fmt.Fprintf(&sb, "Pending requests: %d", s.PendingCount)
	for _, p := range s.Plans {
		if p.Expired {
			fmt.Fprintf(&sb, "\nPlan: %s (expired)", p.Name)
			continue
		}
		fmt.Fprintf(&sb, "\nPlan: %s, %d days left", p.Name, p.DaysLeft)
	}
	if s.IsBanned {
		sb.WriteString("\nYour account has been suspended by admin.")
	}
	return sb.String()
}

func renderPending(p model.PendingSet) string {
	if p.Len() == 0 {
		return "No pending requests."
	}
	var sb strings.Builder
	sb.WriteString("Pending requests:")
	for _, group := range [][]model.PendingRequest{p.Deposits, p.Withdrawals, p.PlanRequests} {
		for _, r := range group {
			date, tm := clock.DateTime(r.CreatedAt)
			fmt.Fprintf(&sb, "\n%s %s: %s %s %s", date, tm, r.ID, r.Kind, model.FormatAmount(r.Amount))
		}
	}
	return sb.String()
}

func renderHistory(history []model.Transaction) string {
	if len(history) == 0 {
		return "No transactions yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent transactions:")
	for _, t := range history {
		date, tm := clock.DateTime(t.CreatedAt)
		fmt.Fprintf(&sb, "\n%s %s: %s %s", date, tm, t.Type, model.FormatAmount(t.Amount))
		if t.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", t.Reason)
		}
		if t.Note != "" {
			fmt.Fprintf(&sb, " (%s)", t.Note)
		}
	}
	return sb.String()
}

func renderPlans(plans []model.Plan) string {
	var sb strings.Builder
	sb.WriteString("Plans:")
	for _, p := range plans {
		fmt.Fprintf(&sb, "\n%s: %s, %s for %d days, %s",
			p.ID, p.Name, model.FormatAmount(p.Price), p.DurationDays, strings.Join(p.Features, ", "))
	}
	return sb.String()
}

func renderStats(s model.Stats) string {
	return fmt.Sprintf("Users: %d (active %d, banned %d)\nTotal balance: %s\nApproved deposits: %s\nApproved withdrawals: %s\nPlans sold: %d\nPending requests: %d",
		s.Users, s.ActiveUsers, s.BannedUsers,
		model.FormatAmount(s.TotalBalance),
		model.FormatAmount(s.TotalDeposits),
		model.FormatAmount(s.TotalWithdrawals),
		s.TotalPlanPurchases,
		s.PendingRequests)
}

const maxListed = 10

func renderAccounts(accounts []model.AccountOverview) string {
	if len(accounts) == 0 {
		return "No users found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Users: %d", len(accounts))
	for i, a := range accounts {
		if i == maxListed {
			fmt.Fprintf(&sb, "\n...and %d more, narrow it with /users <search>", len(accounts)-maxListed)
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s (%s), %s, %s", i+1, a.FirstName, a.Key, a.Phone, model.FormatAmount(a.Balance))
		if a.IsBanned {
			sb.WriteString(", BANNED")
		}
		if a.PendingCount > 0 {
			fmt.Fprintf(&sb, ", %d pending", a.PendingCount)
		}
	}
	return sb.String()
}

func renderAccount(d model.AccountDetails) string {
	var sb strings.Builder
	status := "active"
	if d.IsBanned {
		status = "banned"
	}
	fmt.Fprintf(&sb, "%s (%s), %s\n", d.FirstName, d.Key, status)
	fmt.Fprintf(&sb, "Phone: %s\n", d.Phone)
	if d.DateOfBirth != "" {
		fmt.Fprintf(&sb, "Date of birth: %s\n", d.DateOfBirth)
	}
	fmt.Fprintf(&sb, "Registered: %s\n", clock.Date(d.RegisteredAt))
	fmt.Fprintf(&sb, "Balance: %s", model.FormatAmount(d.Balance))
	for _, p := range d.Plans {
		if p.Expired {
			fmt.Fprintf(&sb, "\nPlan: %s (expired)", p.Name)
			continue
		}
		fmt.Fprintf(&sb, "\nPlan: %s, %d days left", p.Name, p.DaysLeft)
	}
	sb.WriteString("\n\n" + renderPending(d.Pending))
	sb.WriteString("\n\n" + renderHistory(d.Transactions))
	return sb.String()
}

func renderFeed(feed []model.AccountTransaction) string {
	if len(feed) == 0 {
		return "No transactions found."
	}
	var sb strings.Builder
	sb.WriteString("Recent transactions:")
	for _, t := range feed {
		date, tm := clock.DateTime(t.CreatedAt)
		fmt.Fprintf(&sb, "\n%s %s: %s (%s) %s %s", date, tm, t.FirstName, t.AccountKey, t.Type, model.FormatAmount(t.Amount))
	}
	return sb.String()
}
