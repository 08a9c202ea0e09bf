package reconcile

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/ledger"
	"github.com/iurnickita/paybot/internal/model"
)

// Approve resolves a pending request in the user's favour and removes it from the pending set.
func (e *Engine) Approve(ctx context.Context, kind model.RequestKind, account, id string) (model.Notification, error) {
	return e.resolve(ctx, kind, account, id, model.OutcomeApproved, "")
}

// Reject resolves a pending request against the user, returning any reservation and quota.
func (e *Engine) Reject(ctx context.Context, kind model.RequestKind, account, id, reason string) (model.Notification, error) {
	return e.resolve(ctx, kind, account, id, model.OutcomeRejected, reason)
}

func (e *Engine) resolve(ctx context.Context, kind model.RequestKind, account, id string, outcome model.Outcome, reason string) (model.Notification, error) {
	if !kind.Valid() {
		return model.Notification{}, deny(ErrUnknownKind, "Unknown request type %q.", kind)
	}
	if err := ParseID(kind, id); err != nil {
		return model.Notification{}, deny(err, "Request id %q is not valid.", id)
	}

	var n model.Notification
	_, err := e.ledger.Update(ctx, account, func(tx *ledger.Tx) error {
		acc := tx.Account()
		pending := acc.Pending(kind)
		idx := slices.IndexFunc(*pending, func(r model.PendingRequest) bool {
			return r.ID == id && r.Kind == kind
		})
		if idx < 0 {
			return missing(acc, id)
		}
		req := (*pending)[idx]
		old := acc.Balance

		var err error
		if outcome == model.OutcomeApproved {
			err = e.applyApproval(tx, req)
		} else {
			err = e.applyRejection(tx, req, reason)
		}
		if err != nil {
			return err
		}

		*pending = slices.Delete(*pending, idx, idx+1)
		if kind != model.KindDeposit {
			delete(acc.ProcessedRequestKeys, req.IdempotencyKey)
		}

		n = model.Notification{
			AccountKey:  acc.Key,
			ChatID:      acc.ChatID,
			Kind:        kind,
			RequestID:   id,
			Outcome:     outcome,
			Amount:      req.Amount,
			Bonus:       req.Bonus,
			Fee:         req.Fee,
			NetAmount:   req.NetAmount,
			Method:      req.Method,
			Proof:       req.Proof,
			Destination: req.Destination,
			Reason:      reason,
			OldBalance:  old,
			NewBalance:  acc.Balance,
			At:          tx.Now(),
		}
		if req.Plan != nil {
			n.PlanName = req.Plan.Name
			if outcome == model.OutcomeApproved {
				n.DaysLeft = acc.ActivePlans[len(acc.ActivePlans)-1].DaysLeft(tx.Now())
			}
		}
		return nil
	})
	if err != nil {
		err = bannedDenial(err)
		e.zaplog.Info("request not resolved",
			zap.String("account", account),
			zap.String("request", id),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		return model.Notification{}, err
	}

	e.zaplog.Info("request resolved",
		zap.String("account", account),
		zap.String("request", id),
		zap.String("outcome", string(outcome)),
		zap.Int64("balance", n.NewBalance),
	)
	return n, nil
}

func (e *Engine) applyApproval(tx *ledger.Tx, req model.PendingRequest) error {
	acc := tx.Account()
	entry := model.Transaction{
		RequestID:   req.ID,
		Status:      model.TxStatusApproved,
		Bonus:       req.Bonus,
		Fee:         req.Fee,
		NetAmount:   req.NetAmount,
		Method:      req.Method,
		Proof:       req.Proof,
		Destination: req.Destination,
	}

	switch req.Kind {
	case model.KindDeposit:
		entry.Type = model.TxDepositApproved
		return tx.Credit(req.Amount+req.Bonus, entry)

	case model.KindWithdrawal:
		// the amount left the balance at submission
		entry.Type = model.TxWithdrawalApproved
		tx.AppendHistory(entry)

	case model.KindPlanPurchase:
		entry.Type = model.TxPlanPurchaseApproved
		entry.PlanID = req.Plan.ID
		tx.AppendHistory(entry)
		acc.ActivePlans = append(acc.ActivePlans, activate(*req.Plan, tx.Now(), 0))

	case model.KindPlanUpgrade:
		entry.Type = model.TxPlanUpgradeApproved
		entry.PlanID = req.Plan.ID
		i := priorPlan(acc, req.FromPlanID, tx.Now())
		if i < 0 {
			return deny(ErrStaleUpgrade, "Upgrade %s was priced against %s, which is no longer active. Reject it to refund %s.",
				req.ID, req.FromPlanID, model.FormatAmount(req.Amount))
		}
		carried := acc.ActivePlans[i].DaysLeft(tx.Now())
		acc.ActivePlans = slices.Delete(acc.ActivePlans, i, i+1)
		entry.Note = upgradeNote(req.FromPlanID, carried)
		tx.AppendHistory(entry)
		acc.ActivePlans = append(acc.ActivePlans, activate(*req.Plan, tx.Now(), carried))
	}
	return nil
}

func (e *Engine) applyRejection(tx *ledger.Tx, req model.PendingRequest, reason string) error {
	acc := tx.Account()
	entry := model.Transaction{
		RequestID:   req.ID,
		Status:      model.TxStatusRejected,
		Method:      req.Method,
		Proof:       req.Proof,
		Destination: req.Destination,
		Reason:      reason,
	}
	submitted := clock.Date(req.CreatedAt.In(tx.Now().Location()))

	switch req.Kind {
	case model.KindDeposit:
		entry.Type = model.TxDepositRejected
		tx.AppendHistory(entry)
		e.limiter.ReleaseDeposit(acc, req.Amount, submitted)

	case model.KindWithdrawal:
		entry.Type = model.TxWithdrawalRejected
		if err := tx.Refund(req.Amount, entry); err != nil {
			return err
		}
		e.limiter.ReleaseWithdrawal(acc, req.Amount, submitted)

	case model.KindPlanPurchase, model.KindPlanUpgrade:
		entry.Type = model.TxPlanPurchaseRejected
		if req.Kind == model.KindPlanUpgrade {
			entry.Type = model.TxPlanUpgradeRejected
		}
		entry.PlanID = req.Plan.ID
		return tx.Refund(req.Amount, entry)
	}
	return nil
}

// missing tells an id resolved earlier apart from one never issued to this account.
func missing(acc *model.Account, id string) error {
	for _, t := range acc.Transactions {
		if t.RequestID == id && (t.Status == model.TxStatusApproved || t.Status == model.TxStatusRejected) {
			return deny(ErrAlreadyProcessed, "Request %s was already %s.", id, t.Status)
		}
	}
	return deny(ErrRequestNotFound, "Request %s not found.", id)
}

func priorPlan(acc *model.Account, planID string, now time.Time) int {
	for i := len(acc.ActivePlans) - 1; i >= 0; i-- {
		if acc.ActivePlans[i].PlanID == planID && !acc.ActivePlans[i].Expired(now) {
			return i
		}
	}
	return -1
}

func activate(plan model.Plan, now time.Time, extraDays int) model.ActivePlan {
	return model.ActivePlan{
		PlanID:       plan.ID,
		Name:         plan.Name,
		Price:        plan.Price,
		LinkCapacity: plan.LinkCapacity,
		Features:     append([]string(nil), plan.Features...),
		ActivatedAt:  now,
		DurationDays: plan.DurationDays + extraDays,
	}
}

func upgradeNote(from string, carried int) string {
	return fmt.Sprintf("upgraded from %s, %d days carried over", from, carried)
}
