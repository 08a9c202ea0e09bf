package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/model"
	ratelimitConfig "github.com/iurnickita/paybot/internal/ratelimit/config"
	"github.com/iurnickita/paybot/internal/reconcile"
)

type Flow string

const (
	FlowDeposit      Flow = "deposit"
	FlowWithdrawal   Flow = "withdrawal"
	FlowPlanPurchase Flow = "plan-purchase"
	FlowPlanUpgrade  Flow = "plan-upgrade"
)

type Step string

const (
	StepMethod  Step = "method"
	StepAmount  Step = "amount"
	StepProof   Step = "proof"
	StepAccount Step = "account"
	StepPlanID  Step = "plan-id"
	StepConfirm Step = "confirm"
)

var flowSteps = map[Flow][]Step{
	FlowDeposit:      {StepMethod, StepAmount, StepProof, StepConfirm},
	FlowWithdrawal:   {StepMethod, StepAmount, StepAccount, StepConfirm},
	FlowPlanPurchase: {StepPlanID, StepConfirm},
	FlowPlanUpgrade:  {StepPlanID, StepConfirm},
}

var flowKinds = map[Flow]model.RequestKind{
	FlowDeposit:      model.KindDeposit,
	FlowWithdrawal:   model.KindWithdrawal,
	FlowPlanPurchase: model.KindPlanPurchase,
	FlowPlanUpgrade:  model.KindPlanUpgrade,
}

var (
	ErrUnknownFlow = errors.New("unknown flow")
	ErrNoFlow      = errors.New("no flow in progress")
)

// Cursor is the position of one conversation inside a flow.
type Cursor struct {
	Flow   Flow
	Step   Step
	Fields reconcile.Payload
	// plan chosen at the plan-id step, shown on confirmation
	plan model.Plan
}

type Submitter interface {
	Submit(ctx context.Context, kind model.RequestKind, account string, p reconcile.Payload) (model.PendingRequest, error)
}

type PlanLookup interface {
	GetPlan(id string) (model.Plan, error)
}

type Reply struct {
	Text string
	// Request is set once a request has been submitted.
	Request *model.PendingRequest
	// Done reports that the cursor was cleared.
	Done bool
}

type Controller struct {
	limits    ratelimitConfig.Config
	submitter Submitter
	plans     PlanLookup
	zaplog    *zap.Logger

	mu      sync.Mutex
	cursors map[string]*Cursor
}

func NewController(limits ratelimitConfig.Config, submitter Submitter, plans PlanLookup, zaplog *zap.Logger) *Controller {
	return &Controller{
		limits:    limits,
		submitter: submitter,
		plans:     plans,
		zaplog:    zaplog,
		cursors:   map[string]*Cursor{},
	}
}

func (c *Controller) Start(account string, flow Flow) (Reply, error) {
	steps, ok := flowSteps[flow]
	if !ok {
		return Reply{}, ErrUnknownFlow
	}
	cur := &Cursor{Flow: flow, Step: steps[0]}

	c.mu.Lock()
	c.cursors[account] = cur
	c.mu.Unlock()

	return Reply{Text: c.prompt(cur)}, nil
}

func (c *Controller) Cancel(account string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cursors[account]
	delete(c.cursors, account)
	return ok
}

func (c *Controller) Cursor(account string) (Cursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.cursors[account]
	if !ok {
		return Cursor{}, false
	}
	return *cur, true
}

func (c *Controller) Handle(ctx context.Context, account, input string) (Reply, error) {
	c.mu.Lock()
	cur, ok := c.cursors[account]
	if !ok {
		c.mu.Unlock()
		return Reply{}, ErrNoFlow
	}
	// work on a copy so a re-prompt leaves the cursor untouched
	next := *cur
	c.mu.Unlock()

	input = strings.TrimSpace(input)

	if next.Step == StepConfirm {
		return c.confirm(ctx, account, next, input)
	}

	if problem := c.accept(&next, input); problem != "" {
		return Reply{Text: problem + "\n\n" + c.prompt(&next)}, nil
	}
	next.Step = nextStep(next.Flow, next.Step)

	c.mu.Lock()
	c.cursors[account] = &next
	c.mu.Unlock()

	return Reply{Text: c.prompt(&next)}, nil
}

func (c *Controller) confirm(ctx context.Context, account string, cur Cursor, input string) (Reply, error) {
	switch strings.ToLower(input) {
	case "confirm", "yes":
	case "cancel":
		c.Cancel(account)
		return Reply{Text: "Cancelled.", Done: true}, nil
	default:
		return Reply{Text: c.prompt(&cur)}, nil
	}

	req, err := c.submitter.Submit(ctx, flowKinds[cur.Flow], account, cur.Fields)
	c.Cancel(account)
	if err != nil {
		var d *reconcile.Denial
		if errors.As(err, &d) {
			return Reply{Text: d.Reason, Done: true}, nil
		}
		c.zaplog.Error("submission failed", zap.String("account", account), zap.Error(err))
		return Reply{Done: true}, err
	}
	return Reply{
		Text:    fmt.Sprintf("Request %s submitted. Please wait for admin approval.", req.ID),
		Request: &req,
		Done:    true,
	}, nil
}

// accept validates input for the current step and stores it. It returns the problem with
// the input, or "" when it was accepted.
func (c *Controller) accept(cur *Cursor, input string) string {
	switch cur.Step {
	case StepMethod:
		m, ok := reconcile.NormalizeMethod(input)
		if !ok {
			return "Unknown payment method."
		}
		cur.Fields.Method = m

	case StepAmount:
		amount, err := strconv.ParseInt(strings.ReplaceAll(input, ",", ""), 10, 64)
		if err != nil {
			return "Please enter a whole number."
		}
		limits := c.limitsFor(cur.Flow)
		if amount < limits.MinAmount || amount > limits.MaxAmount {
			return fmt.Sprintf("Amount must be between %s and %s.",
				model.FormatAmount(limits.MinAmount), model.FormatAmount(limits.MaxAmount))
		}
		cur.Fields.Amount = amount

	case StepProof:
		if err := reconcile.ValidateProof(input); err != nil {
			return reconcile.Reason(err)
		}
		cur.Fields.Proof = input

	case StepAccount:
		if err := reconcile.ValidateDestination(input); err != nil {
			return reconcile.Reason(err)
		}
		cur.Fields.Destination = input

	case StepPlanID:
		plan, err := c.plans.GetPlan(strings.ToLower(input))
		if err != nil {
			return fmt.Sprintf("Plan %q not found.", input)
		}
		cur.Fields.PlanID = plan.ID
		cur.plan = plan
	}
	return ""
}

func (c *Controller) prompt(cur *Cursor) string {
	switch cur.Step {
	case StepMethod:
		return "Choose a payment method: " + strings.Join(reconcile.Methods, ", ")
	case StepAmount:
		limits := c.limitsFor(cur.Flow)
		return fmt.Sprintf("Enter the amount (%s to %s):",
			model.FormatAmount(limits.MinAmount), model.FormatAmount(limits.MaxAmount))
	case StepProof:
		return "Enter the transaction ID of your payment:"
	case StepAccount:
		return "Enter the account number to receive the money (03XXXXXXXXX):"
	case StepPlanID:
		return "Enter the plan id:"
	case StepConfirm:
		return c.summary(cur) + "\n\nType confirm to submit or cancel to abort."
	}
	return ""
}

func (c *Controller) summary(cur *Cursor) string {
	f := cur.Fields
	switch cur.Flow {
	case FlowDeposit:
		return fmt.Sprintf("Deposit %s via %s\nTransaction ID: %s", model.FormatAmount(f.Amount), f.Method, f.Proof)
	case FlowWithdrawal:
		return fmt.Sprintf("Withdraw %s via %s\nTo account: %s", model.FormatAmount(f.Amount), f.Method, f.Destination)
	case FlowPlanUpgrade:
		return fmt.Sprintf("Upgrade to %s (%s, %d days)", cur.plan.Name, model.FormatAmount(cur.plan.Price), cur.plan.DurationDays)
	default:
		return fmt.Sprintf("Buy %s for %s (%d days)", cur.plan.Name, model.FormatAmount(cur.plan.Price), cur.plan.DurationDays)
	}
}

func (c *Controller) limitsFor(flow Flow) ratelimitConfig.Limits {
	if flow == FlowWithdrawal {
		return c.limits.Withdrawal
	}
	return c.limits.Deposit
}

func nextStep(flow Flow, step Step) Step {
	steps := flowSteps[flow]
	for i, s := range steps {
		if s == step && i+1 < len(steps) {
			return steps[i+1]
		}
	}
	return StepConfirm
}
