package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func setupCache(t *testing.T) (outbound.PlanCachePort, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPlanCache(client, "test:", time.Minute), mr
}

func testPlan(name, price string) *model.SubscriptionPlan {
	return &model.SubscriptionPlan{
		ID:               uuid.New(),
		Name:             name,
		Prices:           datatypes.NewJSONType(model.PriceMap{"USD": decimal.RequireFromString(price)}),
		BillingFrequency: model.BillingFrequencyMonthly,
		Duration:         1,
		DurationUnit:     model.DurationUnitMonth,
		MaxGyms:          1,
		MaxClientsPerGym: 100,
		MaxUsersPerGym:   5,
		IsActive:         true,
		Version:          1,
	}
}

func TestPlanCache_Plan(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupCache(t)
	plan := testPlan("Basic", "29.99")

	_, err := cache.GetPlan(ctx, plan.ID)
	assert.ErrorIs(t, err, outbound.ErrCacheMiss)

	require.NoError(t, cache.SetPlan(ctx, plan))
	assert.True(t, mr.Exists("test:plan:"+plan.ID.String()))

	got, err := cache.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Name, got.Name)
	price, ok := got.PriceFor("USD")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("29.99")))

	mr.FastForward(2 * time.Minute)
	_, err = cache.GetPlan(ctx, plan.ID)
	assert.ErrorIs(t, err, outbound.ErrCacheMiss)
}

func TestPlanCache_ActivePlans(t *testing.T) {
	ctx := context.Background()
	cache, _ := setupCache(t)
	a, b := testPlan("A", "10"), testPlan("B", "20")

	_, err := cache.GetActivePlans(ctx)
	assert.ErrorIs(t, err, outbound.ErrCacheMiss)

	require.NoError(t, cache.SetActivePlans(ctx, []*model.SubscriptionPlan{a, b}))
	require.NoError(t, cache.SetPlan(ctx, a))

	plans, err := cache.GetActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, a.ID, plans[0].ID)

	require.NoError(t, cache.Invalidate(ctx, a.ID))
	_, err = cache.GetActivePlans(ctx)
	assert.ErrorIs(t, err, outbound.ErrCacheMiss)
	_, err = cache.GetPlan(ctx, a.ID)
	assert.ErrorIs(t, err, outbound.ErrCacheMiss)
}
