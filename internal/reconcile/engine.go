// Package reconcile drives money-moving requests from submission to approval or rejection.
//
// Deposits reserve nothing: funds arrive only on approval. Withdrawals and plan requests
// debit the balance at submission and refund it on rejection. Daily quotas are taken at
// submission and returned only on rejection.
package reconcile

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/ledger"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/ratelimit"
	"github.com/iurnickita/paybot/internal/reconcile/config"
)

// PlanSource resolves plan ids at submission time.
type PlanSource interface {
	Get(id string) (model.Plan, error)
}

type Engine struct {
	cfg     config.Config
	ledger  *ledger.Ledger
	limiter *ratelimit.Limiter
	plans   PlanSource
	ids     *IDGenerator
	clock   clock.Clock
	zaplog  *zap.Logger
}

func NewEngine(cfg config.Config, l *ledger.Ledger, limiter *ratelimit.Limiter, plans PlanSource, c clock.Clock, zaplog *zap.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		ledger:  l,
		limiter: limiter,
		plans:   plans,
		ids:     NewIDGenerator(c),
		clock:   c,
		zaplog:  zaplog,
	}
}

func (e *Engine) SubmitDeposit(ctx context.Context, account string, amount int64, method, proof string) (model.PendingRequest, error) {
	return e.Submit(ctx, model.KindDeposit, account, Payload{Amount: amount, Method: method, Proof: proof})
}

func (e *Engine) SubmitWithdrawal(ctx context.Context, account string, amount int64, method, destination string) (model.PendingRequest, error) {
	return e.Submit(ctx, model.KindWithdrawal, account, Payload{Amount: amount, Method: method, Destination: destination})
}

func (e *Engine) SubmitPlanPurchase(ctx context.Context, account, planID string) (model.PendingRequest, error) {
	return e.Submit(ctx, model.KindPlanPurchase, account, Payload{PlanID: planID})
}

func (e *Engine) SubmitPlanUpgrade(ctx context.Context, account, planID string) (model.PendingRequest, error) {
	return e.Submit(ctx, model.KindPlanUpgrade, account, Payload{PlanID: planID})
}

// Submit validates a request and places it in the account's pending set in one commit.
func (e *Engine) Submit(ctx context.Context, kind model.RequestKind, account string, p Payload) (model.PendingRequest, error) {
	if !kind.Valid() {
		return model.PendingRequest{}, deny(ErrUnknownKind, "Unknown request type %q.", kind)
	}
	p = p.normalize()

	var created model.PendingRequest
	_, err := e.ledger.Update(ctx, account, func(tx *ledger.Tx) error {
		acc := tx.Account()
		now := tx.Now()

		req, err := e.prepare(kind, acc, p, now)
		if err != nil {
			return err
		}

		pruneKeys(acc, now, e.cfg.IdempotencyRetention)
		idem := string(NewIdempotencyKey(kind, p))
		if _, seen := acc.ProcessedRequestKeys[idem]; seen {
			return deny(ErrDuplicateRequest, "This request was already submitted.")
		}

		if kind == model.KindDeposit || kind == model.KindWithdrawal {
			if len(*acc.Pending(kind)) > 0 {
				return deny(ErrDuplicateInFlight, "You already have a pending %s request. Please wait for admin approval.", kind)
			}
		}

		switch kind {
		case model.KindDeposit:
			if d := e.limiter.CheckDeposit(acc, req.Amount); !d.Allowed {
				return deny(ErrRateLimitExceeded, "%s", d.Reason)
			}
		case model.KindWithdrawal:
			if d := e.limiter.CheckWithdrawal(acc, req.Amount); !d.Allowed {
				return deny(ErrRateLimitExceeded, "%s", d.Reason)
			}
		}

		req.ID = e.ids.Next(kind)
		req.IdempotencyKey = idem
		req.CreatedAt = now
		req.Status = model.StatusPending

		if kind.Reserves() {
			if req.Amount > acc.Balance {
				return deny(ledger.ErrInsufficientBalance, "Insufficient balance. Available: %s, required: %s.",
					model.FormatAmount(acc.Balance), model.FormatAmount(req.Amount))
			}
			if err := tx.Debit(req.Amount, reservationEntry(req)); err != nil {
				return err
			}
		}

		pending := acc.Pending(kind)
		*pending = append(*pending, req)
		acc.ProcessedRequestKeys[idem] = now

		switch kind {
		case model.KindDeposit:
			e.limiter.RecordDeposit(acc, req.Amount)
		case model.KindWithdrawal:
			e.limiter.RecordWithdrawal(acc, req.Amount)
		}

		created = req
		return nil
	})
	if err != nil {
		err = bannedDenial(err)
		e.zaplog.Info("request denied",
			zap.String("account", account),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return model.PendingRequest{}, err
	}

	e.zaplog.Info("request submitted",
		zap.String("account", account),
		zap.String("kind", string(kind)),
		zap.String("request", created.ID),
		zap.Int64("amount", created.Amount),
	)
	return created, nil
}

// prepare checks the payload against the kind's rules and fills the derived fields.
func (e *Engine) prepare(kind model.RequestKind, acc *model.Account, p Payload, now time.Time) (model.PendingRequest, error) {
	req := model.PendingRequest{Kind: kind, Amount: p.Amount}

	switch kind {
	case model.KindDeposit:
		if err := e.ValidateAmount(kind, p.Amount); err != nil {
			return req, err
		}
		if _, ok := NormalizeMethod(p.Method); !ok {
			return req, deny(ErrInvalidPayload, "Unknown payment method %q.", p.Method)
		}
		if err := checkProof(p.Proof, 1); err != nil {
			return req, err
		}
		req.Method = p.Method
		req.Proof = p.Proof
		req.Bonus = e.Bonus(p.Amount)

	case model.KindWithdrawal:
		if err := e.ValidateAmount(kind, p.Amount); err != nil {
			return req, err
		}
		if _, ok := NormalizeMethod(p.Method); !ok {
			return req, deny(ErrInvalidPayload, "Unknown payment method %q.", p.Method)
		}
		if err := ValidateDestination(p.Destination); err != nil {
			return req, err
		}
		req.Method = p.Method
		req.Destination = p.Destination
		req.Fee, req.NetAmount = e.Fee(p.Amount)

	case model.KindPlanPurchase:
		plan, err := e.plans.Get(p.PlanID)
		if err != nil {
			return req, deny(ErrPlanNotFound, "Plan %q does not exist.", p.PlanID)
		}
		req.Plan = &plan
		req.Amount = plan.Price

	case model.KindPlanUpgrade:
		plan, err := e.plans.Get(p.PlanID)
		if err != nil {
			return req, deny(ErrPlanNotFound, "Plan %q does not exist.", p.PlanID)
		}
		current, ok := CurrentPlan(acc, now)
		if !ok {
			return req, deny(ErrNoActivePlan, "You have no active plan to upgrade.")
		}
		// both would be priced against the same base plan
		if slices.ContainsFunc(acc.PendingPlanRequests, func(r model.PendingRequest) bool {
			return r.Kind == model.KindPlanUpgrade
		}) {
			return req, deny(ErrDuplicateInFlight, "You already have a pending plan upgrade. Please wait for admin approval.")
		}
		if current.PlanID == plan.ID {
			return req, deny(ErrInvalidPayload, "You are already on %s.", plan.Name)
		}
		cost := plan.Price - current.Price
		if cost <= 0 {
			return req, deny(ErrInvalidPayload, "%s is not an upgrade from %s.", plan.Name, current.Name)
		}
		req.Plan = &plan
		req.FromPlanID = current.PlanID
		req.Amount = cost
	}
	return req, nil
}

// ValidateAmount checks a deposit or withdrawal amount against the per-request bounds.
func (e *Engine) ValidateAmount(kind model.RequestKind, amount int64) error {
	limits, ok := e.limiter.Limits(kind)
	if !ok {
		return nil
	}
	if amount < limits.MinAmount {
		return deny(ledger.ErrInvalidAmount, "Minimum %s is %s.", kind, model.FormatAmount(limits.MinAmount))
	}
	if amount > limits.MaxAmount {
		return deny(ledger.ErrInvalidAmount, "Maximum %s per transaction is %s.", kind, model.FormatAmount(limits.MaxAmount))
	}
	return nil
}

// Bonus is the deposit bonus, rounded down.
func (e *Engine) Bonus(amount int64) int64 {
	return percentFloor(amount, e.cfg.DepositBonusPercent)
}

// Fee is the withdrawal fee, rounded down and at least the minimum, and the net payout.
func (e *Engine) Fee(amount int64) (fee, net int64) {
	fee = max(e.cfg.WithdrawFeeMin, percentFloor(amount, e.cfg.WithdrawFeePercent))
	return fee, amount - fee
}

func percentFloor(amount, percent int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

// CurrentPlan is the most recently activated plan that has not expired.
func CurrentPlan(acc *model.Account, now time.Time) (model.ActivePlan, bool) {
	for i := len(acc.ActivePlans) - 1; i >= 0; i-- {
		if !acc.ActivePlans[i].Expired(now) {
			return acc.ActivePlans[i], true
		}
	}
	return model.ActivePlan{}, false
}

func reservationEntry(req model.PendingRequest) model.Transaction {
	entry := model.Transaction{
		RequestID:   req.ID,
		Status:      model.TxStatusReserved,
		Fee:         req.Fee,
		NetAmount:   req.NetAmount,
		Method:      req.Method,
		Destination: req.Destination,
	}
	switch req.Kind {
	case model.KindWithdrawal:
		entry.Type = model.TxWithdrawalReserved
	case model.KindPlanPurchase:
		entry.Type = model.TxPlanPurchaseReserved
		entry.PlanID = req.Plan.ID
	case model.KindPlanUpgrade:
		entry.Type = model.TxPlanUpgradeReserved
		entry.PlanID = req.Plan.ID
	}
	return entry
}

func bannedDenial(err error) error {
	var d *Denial
	if errors.As(err, &d) {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrAccountBanned):
		return &Denial{Err: ledger.ErrAccountBanned, Reason: "Your account has been suspended by admin."}
	case errors.Is(err, ledger.ErrAccountNotFound):
		return &Denial{Err: ledger.ErrAccountNotFound, Reason: "Account not found."}
	}
	return err
}
