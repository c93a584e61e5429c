package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCache(t *testing.T) {
	ctx := context.Background()

	t.Run("plan round trip is a copy", func(t *testing.T) {
		cache := NewPlanCache(4, time.Minute)
		plan := &model.SubscriptionPlan{ID: uuid.New(), Name: "Basic"}

		_, err := cache.GetPlan(ctx, plan.ID)
		assert.ErrorIs(t, err, outbound.ErrCacheMiss)

		require.NoError(t, cache.SetPlan(ctx, plan))
		plan.Name = "mutated"

		got, err := cache.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, "Basic", got.Name)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewPlanCache(2, time.Minute)
		a, b, c := uuid.New(), uuid.New(), uuid.New()
		for _, id := range []uuid.UUID{a, b, c} {
			require.NoError(t, cache.SetPlan(ctx, &model.SubscriptionPlan{ID: id}))
		}

		_, err := cache.GetPlan(ctx, a)
		assert.ErrorIs(t, err, outbound.ErrCacheMiss)
		_, err = cache.GetPlan(ctx, c)
		assert.NoError(t, err)
	})

	t.Run("invalidate drops plan and active list", func(t *testing.T) {
		cache := NewPlanCache(4, time.Minute)
		plan := &model.SubscriptionPlan{ID: uuid.New(), Name: "Pro"}
		require.NoError(t, cache.SetPlan(ctx, plan))
		require.NoError(t, cache.SetActivePlans(ctx, []*model.SubscriptionPlan{plan}))

		plans, err := cache.GetActivePlans(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, "Pro", plans[0].Name)

		require.NoError(t, cache.Invalidate(ctx, plan.ID))
		_, err = cache.GetActivePlans(ctx)
		assert.ErrorIs(t, err, outbound.ErrCacheMiss)
		_, err = cache.GetPlan(ctx, plan.ID)
		assert.ErrorIs(t, err, outbound.ErrCacheMiss)
	})
}
