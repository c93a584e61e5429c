package outbound

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
)

// ErrCacheMiss is returned when a key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// PlanCachePort defines plan caching operations.
type PlanCachePort interface {
	// GetPlan gets a cached plan. Returns ErrCacheMiss when absent.
	GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error)

	// SetPlan caches a plan.
	SetPlan(ctx context.Context, plan *model.SubscriptionPlan) error

	// GetActivePlans gets the cached active plan list. Returns ErrCacheMiss when absent.
	GetActivePlans(ctx context.Context) ([]*model.SubscriptionPlan, error)

	// SetActivePlans caches the active plan list.
	SetActivePlans(ctx context.Context, plans []*model.SubscriptionPlan) error

	// Invalidate removes the plan and the active plan list.
	Invalidate(ctx context.Context, id uuid.UUID) error
}
