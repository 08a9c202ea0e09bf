package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/store"
)

var (
	ErrPlanNotFound = errors.New("plan not found")
	ErrPlanExists   = errors.New("plan already exists")
	ErrInvalidPlan  = errors.New("invalid plan")
	ErrPersistence  = errors.New("persistence failure")
)

var planIDPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

func Defaults() map[string]model.Plan {
	return map[string]model.Plan{
		"plan1": {ID: "plan1", Name: "Basic Plan", Price: 350, DurationDays: 15, LinkCapacity: 1, Features: []string{"1 WhatsApp Link"}},
		"plan2": {ID: "plan2", Name: "Standard Plan", Price: 500, DurationDays: 30, LinkCapacity: 1, Features: []string{"1 WhatsApp Link"}},
		"plan3": {ID: "plan3", Name: "Premium Plan", Price: 1200, DurationDays: 90, LinkCapacity: 1, Features: []string{"1 WhatsApp Link"}},
		"plan4": {ID: "plan4", Name: "Business Plan", Price: 2000, DurationDays: 90, LinkCapacity: 2, Features: []string{"2 WhatsApp Links"}},
	}
}

type Catalog struct {
	store  store.Store
	zaplog *zap.Logger

	mu    sync.RWMutex
	plans map[string]model.Plan
}

func New(ctx context.Context, s store.Store, zaplog *zap.Logger) (*Catalog, error) {
	plans, err := s.LoadPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load plans: %v", ErrPersistence, err)
	}
	if len(plans) == 0 {
		plans = Defaults()
		if err := s.SavePlans(ctx, plans); err != nil {
			return nil, fmt.Errorf("%w: seed plans: %v", ErrPersistence, err)
		}
		zaplog.Info("plan catalog seeded", zap.Int("plans", len(plans)))
	}
	return &Catalog{store: s, zaplog: zaplog, plans: plans}, nil
}

func (c *Catalog) List() []model.Plan {
	c.mu.RLock()
	out := make([]model.Plan, 0, len(c.plans))
	for _, plan := range c.plans {
		out = append(out, clonePlan(plan))
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Catalog) Get(id string) (model.Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	plan, ok := c.plans[id]
	if !ok {
		return model.Plan{}, ErrPlanNotFound
	}
	return clonePlan(plan), nil
}

func (c *Catalog) Add(ctx context.Context, plan model.Plan) error {
	if err := Validate(plan); err != nil {
		return err
	}
	return c.mutate(ctx, func(plans map[string]model.Plan) error {
		if _, ok := plans[plan.ID]; ok {
			return ErrPlanExists
		}
		plans[plan.ID] = clonePlan(plan)
		return nil
	})
}

// Update replaces a plan definition. Plans already bought keep their own snapshot.
func (c *Catalog) Update(ctx context.Context, plan model.Plan) error {
	if err := Validate(plan); err != nil {
		return err
	}
	return c.mutate(ctx, func(plans map[string]model.Plan) error {
		if _, ok := plans[plan.ID]; !ok {
			return ErrPlanNotFound
		}
		plans[plan.ID] = clonePlan(plan)
		return nil
	})
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, func(plans map[string]model.Plan) error {
		if _, ok := plans[id]; !ok {
			return ErrPlanNotFound
		}
		delete(plans, id)
		return nil
	})
}

// mutate edits a copy of the catalog and swaps it in once it is saved.
func (c *Catalog) mutate(ctx context.Context, fn func(plans map[string]model.Plan) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	working := make(map[string]model.Plan, len(c.plans)+1)
	for id, plan := range c.plans {
		working[id] = plan
	}
	if err := fn(working); err != nil {
		return err
	}
	if err := c.store.SavePlans(ctx, working); err != nil {
		c.zaplog.Error("save plans", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.plans = working
	return nil
}

func Validate(plan model.Plan) error {
	switch {
	case !planIDPattern.MatchString(plan.ID):
		return fmt.Errorf("%w: id %q", ErrInvalidPlan, plan.ID)
	case plan.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidPlan)
	case plan.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidPlan)
	case plan.DurationDays <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidPlan)
	case plan.LinkCapacity <= 0:
		return fmt.Errorf("%w: link capacity must be positive", ErrInvalidPlan)
	}
	return nil
}

func clonePlan(plan model.Plan) model.Plan {
	plan.Features = append([]string(nil), plan.Features...)
	return plan
}
