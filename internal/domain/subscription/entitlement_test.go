package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckLimit(t *testing.T) {
	free := newPlan("Free", "0", 1, 10, 2)
	h := newHarness(t)

	t.Run("equal to the limit is allowed", func(t *testing.T) {
		d := h.enforcer.CheckLimit(free, &model.UsageSnapshot{GymCount: 1, TotalClients: 10, TotalUsers: 2}, ResourceAll)
		assert.True(t, d.Allowed)
		assert.Empty(t, d.Breaches)
		assert.Equal(t, float64(100), d.Utilization)
		assert.True(t, d.NearingLimits)
	})

	t.Run("every failing rule is reported in order", func(t *testing.T) {
		d := h.enforcer.CheckLimit(free, &model.UsageSnapshot{GymCount: 2, TotalClients: 11, TotalUsers: 9}, ResourceAll)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonLimitExceeded, d.Reason)
		require.Len(t, d.Breaches, 3)
		primary, ok := d.Primary()
		require.True(t, ok)
		assert.Equal(t, ResourceGyms, primary.Resource)
		assert.Equal(t, ResourceClients, d.Breaches[1].Resource)
		assert.Equal(t, ResourceUsers, d.Breaches[2].Resource)
	})

	t.Run("single resource ignores other rules", func(t *testing.T) {
		d := h.enforcer.CheckLimit(free, &model.UsageSnapshot{GymCount: 5, TotalClients: 3}, ResourceClients)
		assert.True(t, d.Allowed)
	})

	t.Run("client limit is aggregate across gyms", func(t *testing.T) {
		plan := newPlan("Multi", "10", 3, 10, 2)
		for clients := int64(0); clients <= 40; clients++ {
			d := h.enforcer.CheckLimit(plan, &model.UsageSnapshot{GymCount: 1, TotalClients: clients}, ResourceClients)
			assert.Equal(t, clients <= 30, d.Allowed, "clients=%d", clients)
		}
	})
}

func TestUtilization(t *testing.T) {
	plan := newPlan("Pro", "10", 2, 50, 5)

	assert.InDelta(t, 50.0, Utilization(plan, &model.UsageSnapshot{GymCount: 1, TotalClients: 10}), 0.001)
	assert.InDelta(t, 90.0, Utilization(plan, &model.UsageSnapshot{GymCount: 1, TotalClients: 90}), 0.001)
	assert.InDelta(t, 0.0, Utilization(newPlan("Zero", "0", 1, 0, 0), &model.UsageSnapshot{}), 0.001)
	assert.GreaterOrEqual(t, Utilization(newPlan("Zero", "0", 1, 0, 0), &model.UsageSnapshot{TotalClients: 1}), 100.0)
}

func TestCheckUsage(t *testing.T) {
	plan := newPlan("Basic", "10", 1, 10, 2)

	t.Run("fails closed on timeout", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		h.usage.On("GetUsage", mock.Anything, orgID).Return(nil, outbound.ErrUsageTimeout)

		d, usage, err := h.enforcer.CheckUsage(context.Background(), plan, orgID, ResourceAll)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonUsageUnavailable, d.Reason)
		assert.Nil(t, usage)
		assert.ErrorIs(t, err, ErrUsageUnavailable)
		assert.ErrorIs(t, err, outbound.ErrUsageTimeout)
	})

	t.Run("fails closed on provider error", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		h.usage.On("GetUsage", mock.Anything, orgID).Return(nil, errors.New("connection refused"))

		d, _, err := h.enforcer.CheckUsage(context.Background(), plan, orgID, ResourceGyms)
		assert.False(t, d.Allowed)
		assert.ErrorIs(t, err, ErrUsageUnavailable)
	})

	t.Run("checks snapshot", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		h.withUsage(orgID, 1, 4, 1)

		d, usage, err := h.enforcer.CheckUsage(context.Background(), plan, orgID, ResourceAll)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(4), usage.TotalClients)
	})

	t.Run("unknown resource", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.enforcer.CheckUsage(context.Background(), plan, uuid.New(), Resource("rooms"))
		assert.ErrorIs(t, err, ErrValidation)
	})
}
