package notify

import (
	"fmt"
	"strings"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/model"
)

// RenderNotification is the chat text sent to the owner of a resolved request.
func RenderNotification(n model.Notification) string {
	var b strings.Builder
	date, tm := clock.DateTime(n.At)
	amount := model.FormatAmount

	switch n.Kind {
	case model.KindDeposit:
		if n.Outcome == model.OutcomeApproved {
			b.WriteString("🎉 Deposit Approved Successfully! 🎉\n\n")
			fmt.Fprintf(&b, "💰 Amount: %s\n🎁 Bonus: %s\n💵 Total Added: %s\n", amount(n.Amount), amount(n.Bonus), amount(n.Amount+n.Bonus))
		} else {
			b.WriteString("❌ Deposit Request Rejected ❌\n\n")
			fmt.Fprintf(&b, "💰 Amount: %s\n", amount(n.Amount))
		}
		fmt.Fprintf(&b, "🏦 Method: %s\n📝 Transaction ID: %s\n", n.Method, n.Proof)

	case model.KindWithdrawal:
		if n.Outcome == model.OutcomeApproved {
			b.WriteString("✅ Withdrawal Request Approved! ✅\n\n")
			fmt.Fprintf(&b, "💰 Amount: %s\n📉 Processing Fee: %s\n💵 Net Amount: %s\n", amount(n.Amount), amount(n.Fee), amount(n.NetAmount))
		} else {
			b.WriteString("❌ Withdrawal Request Rejected ❌\n\n")
			fmt.Fprintf(&b, "💰 Amount Returned: %s\n", amount(n.Amount))
		}
		fmt.Fprintf(&b, "🏦 Method: %s\n📱 Account: %s\n", n.Method, n.Destination)

	case model.KindPlanPurchase, model.KindPlanUpgrade:
		label := "Plan"
		if n.Kind == model.KindPlanUpgrade {
			label = "Plan Upgrade"
		}
		if n.Outcome == model.OutcomeApproved {
			fmt.Fprintf(&b, "🎉 %s Approved Successfully! 🎉\n\n", label)
			fmt.Fprintf(&b, "📦 Plan: %s\n💰 Price: %s\n📅 Days Left: %d\n", n.PlanName, amount(n.Amount), n.DaysLeft)
		} else {
			fmt.Fprintf(&b, "❌ %s Request Rejected ❌\n\n", label)
			fmt.Fprintf(&b, "📦 Plan: %s\n💰 Amount Refunded: %s\n", n.PlanName, amount(n.Amount))
		}
	}

	fmt.Fprintf(&b, "📅 Date: %s\n⏰ Time: %s\n", date, tm)
	if n.Outcome == model.OutcomeRejected && n.Reason != "" {
		fmt.Fprintf(&b, "\n📝 Rejection Reason:\n%s\n", n.Reason)
	}
	if n.OldBalance != n.NewBalance {
		fmt.Fprintf(&b, "\n💰 Balance Update:\n• Previous Balance: %s\n• New Balance: %s\n", amount(n.OldBalance), amount(n.NewBalance))
	}
	return b.String()
}

// RenderAnnouncement is the admin chat text for a new pending request, ending with the
// commands that resolve it.
func RenderAnnouncement(account string, req model.PendingRequest) string {
	var b strings.Builder
	date, tm := clock.DateTime(req.CreatedAt)
	amount := model.FormatAmount

	fmt.Fprintf(&b, "🔔 New %s request\n\n👤 User: %s\n🆔 Request: %s\n💰 Amount: %s\n", req.Kind, account, req.ID, amount(req.Amount))
	switch req.Kind {
	case model.KindDeposit:
		fmt.Fprintf(&b, "🎁 Bonus: %s\n🏦 Method: %s\n📝 Transaction ID: %s\n", amount(req.Bonus), req.Method, req.Proof)
	case model.KindWithdrawal:
		fmt.Fprintf(&b, "📉 Fee: %s\n💵 Net Amount: %s\n🏦 Method: %s\n📱 Account: %s\n", amount(req.Fee), amount(req.NetAmount), req.Method, req.Destination)
	case model.KindPlanPurchase, model.KindPlanUpgrade:
		if req.Plan != nil {
			fmt.Fprintf(&b, "📦 Plan: %s\n", req.Plan.Name)
		}
		if req.FromPlanID != "" {
			fmt.Fprintf(&b, "⬆️ From: %s\n", req.FromPlanID)
		}
	}
	fmt.Fprintf(&b, "📅 Date: %s\n⏰ Time: %s\n\n", date, tm)
	fmt.Fprintf(&b, "/approve %s %s %s\n/reject %s %s %s <reason>", req.Kind, account, req.ID, req.Kind, account, req.ID)
	return b.String()
}
