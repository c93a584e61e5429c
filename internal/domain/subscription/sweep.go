package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"go.uber.org/zap"
)

// Sweep outcomes.
const (
	SweepExpired   = "expired"
	SweepCancelled = "cancelled"
	SweepApplied   = "applied"
	SweepSkipped   = "skipped"
	SweepConflict  = "conflict"
	SweepFailed    = "failed"
)

// SweepResult counts what an expiry sweep did.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

func (r *SweepResult) add(outcome string) {
	switch outcome {
	case SweepExpired:
		r.Expired++
	case SweepCancelled:
		r.Cancelled++
	case SweepApplied:
		r.Applied++
	case SweepSkipped:
		r.Skipped++
	case SweepConflict:
		r.Conflicts++
	default:
		r.Failed++
	}
}

// ExpireOverdue resolves every ACTIVE subscription whose period ended before now.
// A pending cancellation becomes CANCELLED, a due scheduled change is applied and
// anything else becomes EXPIRED. Rows with a pending renewal request and no pending
// cancellation are skipped. Overdue rows are read in pages of SweepBatchSize with a
// keyset cursor, so skipped and failing rows never hide the rows behind them.
// Each row is written in its own transaction through the conditional version write;
// conflicts are counted, not retried. Row failures are joined into the returned error.
func (m *StateMachine) ExpireOverdue(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	var result SweepResult

	var (
		errs  []error
		after *outbound.SubscriptionCursor
	)
	for page := 0; ; page++ {
		rows, err := m.repos.Subscriptions.ListActiveEndingBefore(ctx, now, after, m.cfg.SweepBatchSize)
		if err != nil {
			if page == 0 {
				return result, fmt.Errorf("list overdue subscriptions: %w", err)
			}
			errs = append(errs, fmt.Errorf("list overdue subscriptions: %w", err))
			break
		}
		if len(rows) == 0 {
			break
		}
		result.Scanned += len(rows)
		last := rows[len(rows)-1]
		after = &outbound.SubscriptionCursor{SubscriptionEnd: last.SubscriptionEnd, OrganizationID: last.OrganizationID}

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			outcome, err := m.sweepRow(ctx, row, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("organization %s: %w", row.OrganizationID, err))
			}
			result.add(outcome)
		}
		if ctx.Err() != nil || len(rows) < m.cfg.SweepBatchSize {
			break
		}
	}

	for outcome, n := range map[string]int{
		SweepExpired:   result.Expired,
		SweepCancelled: result.Cancelled,
		SweepApplied:   result.Applied,
		SweepSkipped:   result.Skipped,
		SweepConflict:  result.Conflicts,
		SweepFailed:    result.Failed,
	} {
		if n > 0 {
			m.observer.SweepCompleted(outcome, n)
		}
	}

	m.logger.Info("expiry sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return result, errors.Join(errs...)
}

// sweepRow resolves one overdue row in its own transaction.
func (m *StateMachine) sweepRow(ctx context.Context, row *model.OrganizationSubscription, now time.Time) (string, error) {
	var res *TransitionResult
	outcome := SweepFailed
	err := m.withUsage(ctx, func(usage usageSet) error {
		return m.repos.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			res, outcome, err = m.expireOne(ctx, row, now, usage)
			return err
		})
	})
	switch {
	case err == nil:
		if res != nil {
			m.audit.operation(ctx, res.Operation)
		}
		return outcome, nil
	case errors.Is(err, ErrConflict):
		m.observer.VersionConflict("sweep")
		return SweepConflict, nil
	default:
		return SweepFailed, err
	}
}

func (m *StateMachine) expireOne(ctx context.Context, row *model.OrganizationSubscription, now time.Time, usage usageSet) (*TransitionResult, string, error) {
	plan, err := m.catalog.GetPlan(ctx, row.SubscriptionPlanID)
	if err != nil {
		return nil, SweepFailed, err
	}

	// A pending cancellation blocks renewal, so it wins over a pending renewal request.
	rec, err := m.repos.Cancellations.GetPendingTermination(ctx, row.OrganizationID, row.SubscriptionEnd)
	if err != nil {
		return nil, SweepFailed, fmt.Errorf("get pending cancellation: %w", err)
	}
	if rec != nil {
		res, err := m.terminate(ctx, row, plan, model.SubscriptionStatusCancelled, model.OperationCancellation, "pending cancellation reached period end", now)
		return res, SweepCancelled, err
	}

	pending, err := m.repos.Requests.HasPending(ctx, row.OrganizationID, model.OperationRenewal)
	if err != nil {
		return nil, SweepFailed, fmt.Errorf("check pending renewal: %w", err)
	}
	if pending {
		return nil, SweepSkipped, nil
	}

	change, err := m.repos.ScheduledChanges.GetScheduled(ctx, row.OrganizationID)
	if err != nil {
		return nil, SweepFailed, fmt.Errorf("get scheduled change: %w", err)
	}
	if change != nil && !change.EffectiveDate.After(now) {
		target, err := m.scheduledTarget(ctx, row, change, usage)
		if err == nil {
			res, err := m.applyScheduled(ctx, row, plan, target, change, now)
			return res, SweepApplied, err
		}
		if errors.Is(err, ErrUsageUnavailable) || needsUsage(err) {
			return nil, SweepFailed, err
		}
		if err := m.repos.ScheduledChanges.Resolve(ctx, change.ID, model.ScheduledChangeDiscarded, now); err != nil {
			return nil, SweepFailed, fmt.Errorf("discard scheduled change: %w", err)
		}
		m.logger.Warn("scheduled plan change discarded at period end",
			zap.String("organization_id", row.OrganizationID.String()),
			zap.String("plan_id", change.ToPlanID.String()),
			zap.Error(err),
		)
	}

	res, err := m.terminate(ctx, row, plan, model.SubscriptionStatusExpired, model.OperationExpiration, "", now)
	return res, SweepExpired, err
}

func (m *StateMachine) terminate(ctx context.Context, row *model.OrganizationSubscription, plan *model.SubscriptionPlan, to model.SubscriptionStatus, opType model.OperationType, notes string, now time.Time) (*TransitionResult, error) {
	if err := checkPath(row.Status, to); err != nil {
		return nil, err
	}
	next := *row
	next.Status = to

	op := m.newOperation(&next, opType, m.cfg.SystemActor, nil, notes)
	op.FromPlanID = &row.SubscriptionPlanID
	op.FromStatus = row.Status
	op.EffectiveDate = row.SubscriptionEnd
	op.PreviousEndDate = &row.SubscriptionEnd
	m.priceOperation(op, plan, row.Currency)

	if err := m.updateRow(ctx, &next, row.Version); err != nil {
		return nil, err
	}
	if err := m.appendOperation(ctx, op); err != nil {
		return nil, err
	}
	if _, err := m.repos.ScheduledChanges.ResolveScheduled(ctx, row.OrganizationID, model.ScheduledChangeDiscarded, now); err != nil {
		return nil, fmt.Errorf("discard scheduled changes: %w", err)
	}
	return &TransitionResult{Subscription: &next, Operation: op}, nil
}

// applyScheduled starts the next period on the scheduled plan at the old period end.
func (m *StateMachine) applyScheduled(ctx context.Context, row *model.OrganizationSubscription, from, to *model.SubscriptionPlan, change *model.ScheduledChange, now time.Time) (*TransitionResult, error) {
	transient := model.SubscriptionStatusUpgrading
	if change.OperationType == model.OperationDowngrade {
		transient = model.SubscriptionStatusDowngrading
	}
	if err := checkPath(row.Status, transient, model.SubscriptionStatusActive); err != nil {
		return nil, err
	}

	next := *row
	next.SubscriptionPlanID = to.ID
	next.SubscriptionStart = row.SubscriptionEnd
	next.SubscriptionEnd = to.PeriodEnd(row.SubscriptionEnd)

	op := m.newOperation(&next, change.OperationType, change.CreatedBy, change.RequestID, "scheduled change applied")
	op.FromPlanID = &from.ID
	op.FromStatus = row.Status
	op.EffectiveDate = row.SubscriptionEnd
	op.PreviousEndDate = &row.SubscriptionEnd
	m.priceOperation(op, to, row.Currency)

	if err := m.updateRow(ctx, &next, row.Version); err != nil {
		return nil, err
	}
	if err := m.appendOperation(ctx, op); err != nil {
		return nil, err
	}
	if err := m.repos.ScheduledChanges.Resolve(ctx, change.ID, model.ScheduledChangeApplied, now); err != nil {
		return nil, fmt.Errorf("apply scheduled change: %w", err)
	}
	change.Status = model.ScheduledChangeApplied
	return &TransitionResult{Subscription: &next, Operation: op, ScheduledChange: change}, nil
}
