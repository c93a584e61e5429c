package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

func logOp(orgID, planID uuid.UUID, opType model.OperationType, at time.Time, amount string, months int, from, to model.SubscriptionStatus) *model.SubscriptionOperation {
	return &model.SubscriptionOperation{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		ToPlanID:        planID,
		OperationType:   opType,
		EffectiveDate:   at,
		Currency:        "USD",
		PlanAmount:      decimal.RequireFromString(amount),
		BillingMonths:   months,
		FromStatus:      from,
		ResultingStatus: to,
		CreatedAt:       at,
	}
}

func TestAggregator_Compute(t *testing.T) {
	basic := newPlan("Basic", "29.99", 1, 100, 5)
	pro := newPlan("Pro", "79.99", 3, 500, 20)
	annual := newPlan("Annual", "120", 1, 100, 5)
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	upgrade := logOp(a, pro.ID, model.OperationUpgrade, day(3, 10), "79.99", 1, model.SubscriptionStatusActive, model.SubscriptionStatusActive)
	upgrade.ProrationAmount = decimal.NewNullDecimal(decimal.RequireFromString("33.33"))
	ops := []*model.SubscriptionOperation{
		logOp(a, basic.ID, model.OperationActivation, day(2, 1), "29.99", 1, "", model.SubscriptionStatusActive),
		logOp(b, basic.ID, model.OperationActivation, day(2, 10), "29.99", 1, "", model.SubscriptionStatusActive),
		logOp(c, pro.ID, model.OperationActivation, day(3, 5), "79.99", 1, "", model.SubscriptionStatusActive),
		upgrade,
		logOp(b, basic.ID, model.OperationCancellation, day(3, 20), "29.99", 1, model.SubscriptionStatusActive, model.SubscriptionStatusCancelled),
		logOp(d, annual.ID, model.OperationActivation, day(3, 25), "120", 12, "", model.SubscriptionStatusActive),
	}
	march := model.AnalyticsPeriod{Start: day(3, 1), End: day(4, 1)}

	t.Run("month metrics", func(t *testing.T) {
		h := newHarness(t)
		h.withPlans(basic, pro, annual)
		h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", march.End).Return(ops, nil)

		report, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: march, Currency: "usd"})
		require.NoError(t, err)
		m := report.Metrics

		assert.Equal(t, "169.98", m.NewMRR.String())
		assert.Equal(t, "33.33", m.ExpansionMRR.String())
		assert.True(t, m.ContractionMRR.IsZero())
		assert.Equal(t, "29.99", m.ChurnedMRR.String())
		assert.Equal(t, "173.32", m.NetNewMRR.String())
		assert.Equal(t, "169.98", m.MRR.String())
		assert.Equal(t, "2039.76", m.ARR.String())
		assert.Equal(t, 2, m.ActiveAtStart)
		assert.Equal(t, 3, m.ActiveAtEnd)
		assert.Equal(t, 2, m.NewSubscriptions)
		assert.Equal(t, 1, m.ChurnedSubscriptions)
		assert.Equal(t, "0.5", m.ChurnRate.String())
		assert.Equal(t, "0.5", m.GrowthRate.String())
		assert.Equal(t, model.GranularityMonth, report.Granularity)
		require.Len(t, report.Trend, 1)
		assert.True(t, m.NewMRR.Equal(report.Trend[0].Metrics.NewMRR))
		assert.Equal(t, m.ChurnedSubscriptions, report.Trend[0].Metrics.ChurnedSubscriptions)
		assert.Nil(t, report.NearingLimits)
	})

	t.Run("plan breakdown", func(t *testing.T) {
		h := newHarness(t)
		h.withPlans(basic, pro, annual)
		h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", march.End).Return(ops, nil)

		report, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: march, Currency: "USD"})
		require.NoError(t, err)
		require.Len(t, report.PlanBreakdown, 2)

		first, second := report.PlanBreakdown[0], report.PlanBreakdown[1]
		assert.Equal(t, "Pro", first.PlanName)
		assert.Equal(t, 2, first.ActiveSubscriptions)
		assert.Equal(t, "159.98", first.MRR.String())
		assert.Equal(t, "0.6667", first.Share.String())
		assert.Equal(t, "Annual", second.PlanName)
		assert.Equal(t, "10", second.MRR.String())
		assert.Equal(t, "0.3333", second.Share.String())
	})

	t.Run("weekly trend", func(t *testing.T) {
		h := newHarness(t)
		h.withPlans(basic, pro, annual)
		h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", march.End).Return(ops, nil)

		report, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: march, Currency: "USD", Granularity: model.GranularityWeek})
		require.NoError(t, err)
		require.Len(t, report.Trend, 5)
		assert.Equal(t, day(3, 1), report.Trend[0].Period.Start)
		assert.Equal(t, day(3, 29), report.Trend[4].Period.Start)
		assert.Equal(t, march.End, report.Trend[4].Period.End)
		assert.Equal(t, 1, report.Trend[0].Metrics.NewSubscriptions)
		assert.Equal(t, 1, report.Trend[2].Metrics.ChurnedSubscriptions)

		churned := 0
		for _, p := range report.Trend {
			churned += p.Metrics.ChurnedSubscriptions
		}
		assert.Equal(t, report.Metrics.ChurnedSubscriptions, churned)
	})

	t.Run("empty start has zero churn rate", func(t *testing.T) {
		h := newHarness(t)
		h.withPlans(basic, pro, annual)
		feb := model.AnalyticsPeriod{Start: day(1, 1), End: day(2, 1)}
		h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", feb.End).Return([]*model.SubscriptionOperation{}, nil)

		report, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: feb, Currency: "USD"})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Metrics.ActiveAtStart)
		assert.True(t, report.Metrics.ChurnRate.IsZero())
		assert.True(t, report.Metrics.GrowthRate.IsZero())
		assert.Empty(t, report.PlanBreakdown)
	})

	t.Run("rejects bad queries", func(t *testing.T) {
		h := newHarness(t)
		tests := []struct {
			name string
			q    AnalyticsQuery
		}{
			{"currency", AnalyticsQuery{Period: march, Currency: "dollars"}},
			{"empty period", AnalyticsQuery{Period: model.AnalyticsPeriod{Start: march.Start, End: march.Start}, Currency: "USD"}},
			{"granularity", AnalyticsQuery{Period: march, Currency: "USD", Granularity: "hour"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.aggregator.Compute(context.Background(), tt.q)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}
	})

	t.Run("too many trend buckets", func(t *testing.T) {
		h := newHarness(t)
		long := model.AnalyticsPeriod{Start: day(1, 1), End: day(1, 1).AddDate(2, 0, 0)}
		h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", long.End).Return([]*model.SubscriptionOperation{}, nil)

		_, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: long, Currency: "USD", Granularity: model.GranularityDay})
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}

func TestAggregator_Compute_EarlyRenewal(t *testing.T) {
	basic := newPlan("Basic", "29.99", 1, 100, 5)
	pro := newPlan("Pro", "79.99", 1, 500, 20)
	april := model.AnalyticsPeriod{Start: day(4, 1), End: day(5, 1)}

	// renewed on Mar 28 inside the renewal window, dated at the period end
	earlyRenewal := func(orgID uuid.UUID) *model.SubscriptionOperation {
		op := logOp(orgID, basic.ID, model.OperationRenewal, day(4, 1), "29.99", 1, model.SubscriptionStatusActive, model.SubscriptionStatusActive)
		op.CreatedAt = day(3, 28)
		return op
	}

	t.Run("immediate cancel after renewal", func(t *testing.T) {
		orgID := uuid.New()
		ops := []*model.SubscriptionOperation{
			logOp(orgID, basic.ID, model.OperationActivation, day(3, 1), "29.99", 1, "", model.SubscriptionStatusActive),
			logOp(orgID, basic.ID, model.OperationCancellation, day(3, 29), "29.99", 1, model.SubscriptionStatusActive, model.SubscriptionStatusCancelled),
			earlyRenewal(orgID),
		}
		h := newHarness(t)
		h.withPlans(basic)
		h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", april.End).Return(ops, nil)

		report, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: april, Currency: "USD"})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Metrics.ActiveAtStart)
		assert.Equal(t, 0, report.Metrics.ActiveAtEnd)
		assert.True(t, report.Metrics.MRR.IsZero())
		assert.Empty(t, report.PlanBreakdown)
	})

	t.Run("immediate upgrade after renewal", func(t *testing.T) {
		orgID := uuid.New()
		upgrade := logOp(orgID, pro.ID, model.OperationUpgrade, day(3, 29), "79.99", 1, model.SubscriptionStatusActive, model.SubscriptionStatusActive)
		ops := []*model.SubscriptionOperation{
			logOp(orgID, basic.ID, model.OperationActivation, day(3, 1), "29.99", 1, "", model.SubscriptionStatusActive),
			upgrade,
			earlyRenewal(orgID),
		}
		h := newHarness(t)
		h.withPlans(basic, pro)
		h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", april.End).Return(ops, nil)

		report, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: april, Currency: "USD"})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Metrics.ActiveAtStart)
		assert.Equal(t, 1, report.Metrics.ActiveAtEnd)
		assert.Equal(t, "79.99", report.Metrics.MRR.String())
		require.Len(t, report.PlanBreakdown, 1)
		assert.Equal(t, pro.ID, report.PlanBreakdown[0].PlanID)
	})
}

func TestAggregator_NearingLimits(t *testing.T) {
	plan := newPlan("Studio", "49", 10, 100, 10)
	busy, quiet, dark, euro := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	h := newHarness(t)
	h.withPlans(plan)
	h.withUsage(busy, 1, 950, 5)
	h.withUsage(quiet, 1, 10, 1)
	h.usage.On("GetUsage", mock.Anything, dark).Return(nil, assert.AnError)

	eurSub := activeSub(euro, plan.ID, testNow, 30)
	eurSub.Currency = "EUR"
	h.subDB.On("ListByStatus", mock.Anything, mock.Anything).Return([]*model.OrganizationSubscription{
		activeSub(busy, plan.ID, testNow, 30),
		activeSub(quiet, plan.ID, testNow, 30),
		activeSub(dark, plan.ID, testNow, 30),
		eurSub,
	}, nil)
	period := model.AnalyticsPeriod{Start: day(3, 1), End: day(4, 1)}
	h.opDB.On("ListEffectiveBefore", mock.Anything, "USD", period.End).Return([]*model.SubscriptionOperation{}, nil)

	report, err := h.aggregator.Compute(context.Background(), AnalyticsQuery{Period: period, Currency: "USD", IncludeNearingLimits: true})
	require.NoError(t, err)
	require.NotNil(t, report.NearingLimits)

	summary := report.NearingLimits
	assert.Equal(t, "80", summary.Threshold.String())
	assert.Equal(t, 1, summary.Unavailable)
	require.Len(t, summary.Organizations, 1)
	assert.Equal(t, busy, summary.Organizations[0].OrganizationID)
	assert.Equal(t, "95", summary.Organizations[0].Utilization.String())
	h.usage.AssertNotCalled(t, "GetUsage", mock.Anything, euro)
}
