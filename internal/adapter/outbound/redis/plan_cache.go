package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const (
	planKeyPrefix  = "plan:"
	activePlansKey = "plans:active"
)

// planCache implements outbound.PlanCachePort.
type planCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewPlanCache creates a new Redis plan cache adapter.
func NewPlanCache(client redis.UniversalClient, prefix string, ttl time.Duration) outbound.PlanCachePort {
	return &planCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *planCache) planKey(id uuid.UUID) string {
	return c.prefix + planKeyPrefix + id.String()
}

func (c *planCache) activeKey() string {
	return c.prefix + activePlansKey
}

func (c *planCache) GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	if err := c.get(ctx, c.planKey(id), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *planCache) SetPlan(ctx context.Context, plan *model.SubscriptionPlan) error {
	return c.set(ctx, c.planKey(plan.ID), plan)
}

func (c *planCache) GetActivePlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	var plans []*model.SubscriptionPlan
	if err := c.get(ctx, c.activeKey(), &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (c *planCache) SetActivePlans(ctx context.Context, plans []*model.SubscriptionPlan) error {
	return c.set(ctx, c.activeKey(), plans)
}

func (c *planCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, c.planKey(id), c.activeKey()).Err()
}

func (c *planCache) get(ctx context.Context, key string, dst interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return outbound.ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

func (c *planCache) set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Compile-time check
var _ outbound.PlanCachePort = (*planCache)(nil)
