package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/catalog"
	"github.com/iurnickita/paybot/internal/model"
	ratelimitConfig "github.com/iurnickita/paybot/internal/ratelimit/config"
	"github.com/iurnickita/paybot/internal/reconcile"
)

type fakeSubmitter struct {
	calls   int
	kind    model.RequestKind
	payload reconcile.Payload
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, kind model.RequestKind, _ string, p reconcile.Payload) (model.PendingRequest, error) {
	f.calls++
	f.kind, f.payload = kind, p
	if f.err != nil {
		return model.PendingRequest{}, f.err
	}
	return model.PendingRequest{ID: "dep_1", Kind: kind, Amount: p.Amount}, nil
}

type plans map[string]model.Plan

func (p plans) GetPlan(id string) (model.Plan, error) {
	plan, ok := p[id]
	if !ok {
		return model.Plan{}, catalog.ErrPlanNotFound
	}
	return plan, nil
}

func newTestController(sub Submitter) *Controller {
	return NewController(ratelimitConfig.Default(), sub, plans(catalog.Defaults()), zap.NewNop())
}

func feed(t *testing.T, c *Controller, inputs ...string) Reply {
	t.Helper()
	var r Reply
	for _, in := range inputs {
		var err error
		r, err = c.Handle(context.Background(), "ali_123", in)
		require.NoError(t, err)
	}
	return r
}

func TestDepositFlow(t *testing.T) {
	sub := &fakeSubmitter{}
	c := newTestController(sub)

	r, err := c.Start("ali_123", FlowDeposit)
	require.NoError(t, err)
	require.Contains(t, r.Text, "EasyPaisa")

	r = feed(t, c, "paypal")
	require.Contains(t, r.Text, "Unknown payment method")
	cur, ok := c.Cursor("ali_123")
	require.True(t, ok)
	require.Equal(t, StepMethod, cur.Step)

	feed(t, c, "easypaisa")
	r = feed(t, c, "50")
	require.Contains(t, r.Text, "between 100 PKR and 5,000 PKR")
	r = feed(t, c, "1,000")
	require.Contains(t, r.Text, "transaction ID")

	r = feed(t, c, "TX1")
	require.Contains(t, r.Text, "5 to 100")

	r = feed(t, c, "TXN12345")
	require.Contains(t, r.Text, "Deposit 1,000 PKR via EasyPaisa")

	r = feed(t, c, "maybe")
	require.Contains(t, r.Text, "Type confirm")
	require.Zero(t, sub.calls)

	r = feed(t, c, "yes")
	require.True(t, r.Done)
	require.NotNil(t, r.Request)
	require.Equal(t, model.KindDeposit, sub.kind)
	require.Equal(t, reconcile.Payload{Amount: 1000, Method: "EasyPaisa", Proof: "TXN12345"}, sub.payload)

	_, ok = c.Cursor("ali_123")
	require.False(t, ok)
	_, err = c.Handle(context.Background(), "ali_123", "again")
	require.ErrorIs(t, err, ErrNoFlow)
}

func TestWithdrawalFlowDenied(t *testing.T) {
	sub := &fakeSubmitter{err: &reconcile.Denial{Err: reconcile.ErrRateLimitExceeded, Reason: "Daily withdrawal transaction limit reached (3 per day)."}}
	c := newTestController(sub)

	_, err := c.Start("ali_123", FlowWithdrawal)
	require.NoError(t, err)
	r := feed(t, c, "JazzCash", "6000")
	require.Contains(t, r.Text, "between 200 PKR and 5,000 PKR")

	r = feed(t, c, "1000", "12345")
	require.Contains(t, r.Text, "11 digits")

	feed(t, c, "03001234567")
	r = feed(t, c, "confirm")
	require.True(t, r.Done)
	require.Equal(t, "Daily withdrawal transaction limit reached (3 per day).", r.Text)
	require.Nil(t, r.Request)

	_, ok := c.Cursor("ali_123")
	require.False(t, ok)
}

func TestSubmissionFailureClearsCursor(t *testing.T) {
	boom := errors.New("persistence failure")
	c := newTestController(&fakeSubmitter{err: boom})

	_, err := c.Start("ali_123", FlowPlanPurchase)
	require.NoError(t, err)
	feed(t, c, "plan2")

	_, err = c.Handle(context.Background(), "ali_123", "confirm")
	require.ErrorIs(t, err, boom)
	_, ok := c.Cursor("ali_123")
	require.False(t, ok)
}

func TestPlanFlows(t *testing.T) {
	sub := &fakeSubmitter{}
	c := newTestController(sub)

	_, err := c.Start("ali_123", FlowPlanUpgrade)
	require.NoError(t, err)
	r := feed(t, c, "platinum")
	require.Contains(t, r.Text, "not found")

	r = feed(t, c, "PLAN3")
	require.Contains(t, r.Text, "Upgrade to")

	r = feed(t, c, "cancel")
	require.True(t, r.Done)
	require.Zero(t, sub.calls)

	_, err = c.Start("ali_123", FlowPlanPurchase)
	require.NoError(t, err)
	feed(t, c, "plan1", "confirm")
	require.Equal(t, model.KindPlanPurchase, sub.kind)
	require.Equal(t, "plan1", sub.payload.PlanID)
}

func TestStartUnknownFlow(t *testing.T) {
	c := newTestController(&fakeSubmitter{})
	_, err := c.Start("ali_123", Flow("loan"))
	require.ErrorIs(t, err, ErrUnknownFlow)
	require.False(t, c.Cancel("ali_123"))
}
