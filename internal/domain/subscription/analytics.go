package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxTrendBuckets = 366

// AnalyticsQuery selects an analytics report.
type AnalyticsQuery struct {
	Period               model.AnalyticsPeriod
	Currency             string
	Granularity          model.Granularity
	IncludeNearingLimits bool
}

// Aggregator computes billing analytics from the operation log. It never writes.
type Aggregator struct {
	operations    outbound.SubscriptionOperationDatabasePort
	subscriptions outbound.OrganizationSubscriptionDatabasePort
	catalog       *Catalog
	enforcer      *Enforcer
	clock         clock.Clock
	concurrency   int
	logger        *zap.Logger
}

// AnalyticsConfig holds aggregator settings.
type AnalyticsConfig struct {
	// Concurrency bounds parallel usage lookups for the nearing-limits section.
	Concurrency int
}

// NewAggregator creates a new analytics aggregator.
func NewAggregator(
	operations outbound.SubscriptionOperationDatabasePort,
	subscriptions outbound.OrganizationSubscriptionDatabasePort,
	catalog *Catalog,
	enforcer *Enforcer,
	clk clock.Clock,
	cfg AnalyticsConfig,
	logger *zap.Logger,
) *Aggregator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Aggregator{
		operations:    operations,
		subscriptions: subscriptions,
		catalog:       catalog,
		enforcer:      enforcer,
		clock:         clk,
		concurrency:   concurrency,
		logger:        logger,
	}
}

// Compute builds the analytics report of one currency over [start, end).
func (a *Aggregator) Compute(ctx context.Context, q AnalyticsQuery) (*model.AnalyticsReport, error) {
	currency := NormalizeCurrency(q.Currency)
	if !IsCurrencyCode(currency) {
		return nil, invalidField("currency", "%q is not an ISO 4217 code", q.Currency)
	}
	if q.Period.Start.IsZero() || !q.Period.End.After(q.Period.Start) {
		return nil, newValidationError("period", fmt.Errorf("%w: end must be after start", ErrInvalidPeriod))
	}
	granularity := q.Granularity
	if granularity == "" {
		granularity = model.GranularityMonth
	}
	if !granularity.IsValid() {
		return nil, invalidField("granularity", "unknown granularity %q", q.Granularity)
	}

	ops, err := a.operations.ListEffectiveBefore(ctx, currency, q.Period.End)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}

	report := &model.AnalyticsReport{
		Period:      q.Period,
		Currency:    currency,
		Granularity: granularity,
		Metrics:     computeMetrics(ops, q.Period, currency),
		GeneratedAt: a.clock.Now(),
	}
	report.PlanBreakdown = a.planBreakdown(ctx, ops, q.Period.End, currency)

	bucket := q.Period.Start
	for i := 0; bucket.Before(q.Period.End); i++ {
		if i == maxTrendBuckets {
			return nil, newValidationError("granularity", fmt.Errorf("%w: more than %d trend buckets", ErrInvalidPeriod, maxTrendBuckets))
		}
		next := granularity.Next(bucket)
		if next.After(q.Period.End) {
			next = q.Period.End
		}
		p := model.AnalyticsPeriod{Start: bucket, End: next}
		report.Trend = append(report.Trend, model.TrendPoint{Period: p, Metrics: computeMetrics(ops, p, currency)})
		bucket = next
	}

	if q.IncludeNearingLimits {
		summary, err := a.nearingLimits(ctx, currency)
		if err != nil {
			return nil, err
		}
		report.NearingLimits = summary
	}
	return report, nil
}

// orgState is an organization's replayed position at an instant.
type orgState struct {
	active bool
	planID uuid.UUID
	mrr    decimal.Decimal
}

// replay returns the state of every organization at t. Among the operations
// effective before t the one committed last decides, so an early renewal dated
// at the period end does not outlive a later immediate change. Ties on
// CreatedAt fall back to the order of ops.
func replay(ops []*model.SubscriptionOperation, t time.Time) map[uuid.UUID]orgState {
	latest := make(map[uuid.UUID]*model.SubscriptionOperation)
	for _, op := range ops {
		if !op.EffectiveDate.Before(t) {
			continue
		}
		if prev, ok := latest[op.OrganizationID]; ok && op.CreatedAt.Before(prev.CreatedAt) {
			continue
		}
		latest[op.OrganizationID] = op
	}

	states := make(map[uuid.UUID]orgState, len(latest))
	for orgID, op := range latest {
		states[orgID] = orgState{
			active: op.ResultingStatus == model.SubscriptionStatusActive,
			planID: op.ToPlanID,
			mrr:    monthlyAmount(op),
		}
	}
	return states
}

// monthlyAmount normalizes the plan amount of an operation to one month.
func monthlyAmount(op *model.SubscriptionOperation) decimal.Decimal {
	months := op.BillingMonths
	if months <= 0 {
		months = 1
	}
	return op.PlanAmount.DivRound(decimal.NewFromInt(int64(months)), 16)
}

func computeMetrics(ops []*model.SubscriptionOperation, period model.AnalyticsPeriod, currency string) model.AnalyticsMetrics {
	m := model.AnalyticsMetrics{
		Currency:       currency,
		NewMRR:         decimal.Zero,
		ChurnedMRR:     decimal.Zero,
		ExpansionMRR:   decimal.Zero,
		ContractionMRR: decimal.Zero,
		MRR:            decimal.Zero,
		ChurnRate:      decimal.Zero,
		GrowthRate:     decimal.Zero,
	}

	for _, op := range ops {
		if !period.Contains(op.EffectiveDate) {
			continue
		}
		switch op.OperationType {
		case model.OperationActivation, model.OperationUpgrade:
			if op.ResultingStatus == model.SubscriptionStatusActive {
				m.NewMRR = m.NewMRR.Add(monthlyAmount(op))
				if op.OperationType == model.OperationActivation {
					m.NewSubscriptions++
				}
			}
		}
		if op.OperationType == model.OperationUpgrade || op.OperationType == model.OperationDowngrade {
			if op.ProrationAmount.Valid {
				amount := op.ProrationAmount.Decimal
				if amount.IsPositive() {
					m.ExpansionMRR = m.ExpansionMRR.Add(amount)
				} else {
					m.ContractionMRR = m.ContractionMRR.Add(amount.Abs())
				}
			}
		}
		if op.IsChurn() {
			m.ChurnedMRR = m.ChurnedMRR.Add(monthlyAmount(op))
			m.ChurnedSubscriptions++
		}
	}

	for _, s := range replay(ops, period.Start) {
		if s.active {
			m.ActiveAtStart++
		}
	}
	for _, s := range replay(ops, period.End) {
		if s.active {
			m.ActiveAtEnd++
			m.MRR = m.MRR.Add(s.mrr)
		}
	}

	if m.ActiveAtStart > 0 {
		start := decimal.NewFromInt(int64(m.ActiveAtStart))
		m.ChurnRate = decimal.NewFromInt(int64(m.ChurnedSubscriptions)).DivRound(start, 4)
		m.GrowthRate = decimal.NewFromInt(int64(m.ActiveAtEnd - m.ActiveAtStart)).DivRound(start, 4)
	}

	units := MinorUnits(currency)
	m.NewMRR = m.NewMRR.RoundBank(units)
	m.ChurnedMRR = m.ChurnedMRR.RoundBank(units)
	m.ExpansionMRR = m.ExpansionMRR.RoundBank(units)
	m.ContractionMRR = m.ContractionMRR.RoundBank(units)
	m.NetNewMRR = m.NewMRR.Add(m.ExpansionMRR).Sub(m.ContractionMRR).Sub(m.ChurnedMRR)
	m.MRR = m.MRR.RoundBank(units)
	m.ARR = m.MRR.Mul(decimal.NewFromInt(12))
	return m
}

func (a *Aggregator) planBreakdown(ctx context.Context, ops []*model.SubscriptionOperation, at time.Time, currency string) []model.PlanBreakdownEntry {
	byPlan := make(map[uuid.UUID]*model.PlanBreakdownEntry)
	total := 0
	for _, s := range replay(ops, at) {
		if !s.active {
			continue
		}
		total++
		entry, ok := byPlan[s.planID]
		if !ok {
			entry = &model.PlanBreakdownEntry{PlanID: s.planID, MRR: decimal.Zero}
			byPlan[s.planID] = entry
		}
		entry.ActiveSubscriptions++
		entry.MRR = entry.MRR.Add(s.mrr)
	}

	out := make([]model.PlanBreakdownEntry, 0, len(byPlan))
	units := MinorUnits(currency)
	for id, entry := range byPlan {
		if plan, err := a.catalog.GetPlan(ctx, id); err == nil {
			entry.PlanName = plan.Name
		}
		entry.MRR = entry.MRR.RoundBank(units)
		entry.Share = decimal.NewFromInt(int64(entry.ActiveSubscriptions)).DivRound(decimal.NewFromInt(int64(total)), 4)
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActiveSubscriptions != out[j].ActiveSubscriptions {
			return out[i].ActiveSubscriptions > out[j].ActiveSubscriptions
		}
		return out[i].PlanName < out[j].PlanName
	})
	return out
}

// nearingLimits lists ACTIVE organizations at or above the utilization threshold.
// Usage lookups run concurrently; an unavailable snapshot is counted, not fatal.
func (a *Aggregator) nearingLimits(ctx context.Context, currency string) (*model.NearingLimitsSummary, error) {
	subs, err := a.subscriptions.ListByStatus(ctx, model.SubscriptionStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}

	summary := &model.NearingLimitsSummary{
		Threshold:     decimal.NewFromFloat(a.enforcer.Threshold()),
		Organizations: []model.NearingLimitEntry{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, sub := range subs {
		if sub.Currency != currency {
			continue
		}
		g.Go(func() error {
			plan, err := a.catalog.GetPlan(gctx, sub.SubscriptionPlanID)
			if err != nil {
				return err
			}
			usage, err := a.enforcer.Snapshot(gctx, sub.OrganizationID)
			if err != nil {
				mu.Lock()
				summary.Unavailable++
				mu.Unlock()
				return nil
			}
			utilization := Utilization(plan, usage)
			if utilization < a.enforcer.Threshold() {
				return nil
			}
			mu.Lock()
			summary.Organizations = append(summary.Organizations, model.NearingLimitEntry{
				OrganizationID: sub.OrganizationID,
				PlanID:         plan.ID,
				Utilization:    decimal.NewFromFloat(utilization).Round(2),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute nearing limits: %w", err)
	}

	sort.Slice(summary.Organizations, func(i, j int) bool {
		return summary.Organizations[i].Utilization.GreaterThan(summary.Organizations[j].Utilization)
	})
	if summary.Unavailable > 0 {
		a.logger.Warn("usage unavailable for some organizations",
			zap.Int("unavailable", summary.Unavailable),
			zap.String("currency", currency),
		)
	}
	return summary, nil
}
