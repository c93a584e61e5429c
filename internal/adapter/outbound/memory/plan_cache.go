package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
)

// planCache implements outbound.PlanCachePort in process memory.
// Entries are copied on the way in and out.
type planCache struct {
	plans  *lru.LRU[uuid.UUID, model.SubscriptionPlan]
	active *lru.LRU[struct{}, []model.SubscriptionPlan]
}

// NewPlanCache creates a new in-memory plan cache holding at most size plans.
func NewPlanCache(size int, ttl time.Duration) outbound.PlanCachePort {
	if size <= 0 {
		size = 256
	}
	return &planCache{
		plans:  lru.NewLRU[uuid.UUID, model.SubscriptionPlan](size, nil, ttl),
		active: lru.NewLRU[struct{}, []model.SubscriptionPlan](1, nil, ttl),
	}
}

func (c *planCache) GetPlan(_ context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	plan, ok := c.plans.Get(id)
	if !ok {
		return nil, outbound.ErrCacheMiss
	}
	return &plan, nil
}

func (c *planCache) SetPlan(_ context.Context, plan *model.SubscriptionPlan) error {
	c.plans.Add(plan.ID, *plan)
	return nil
}

func (c *planCache) GetActivePlans(_ context.Context) ([]*model.SubscriptionPlan, error) {
	list, ok := c.active.Get(struct{}{})
	if !ok {
		return nil, outbound.ErrCacheMiss
	}
	plans := make([]*model.SubscriptionPlan, len(list))
	for i := range list {
		p := list[i]
		plans[i] = &p
	}
	return plans, nil
}

func (c *planCache) SetActivePlans(_ context.Context, plans []*model.SubscriptionPlan) error {
	list := make([]model.SubscriptionPlan, len(plans))
	for i, p := range plans {
		list[i] = *p
	}
	c.active.Add(struct{}{}, list)
	return nil
}

func (c *planCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.plans.Remove(id)
	c.active.Purge()
	return nil
}

// Compile-time check
var _ outbound.PlanCachePort = (*planCache)(nil)
