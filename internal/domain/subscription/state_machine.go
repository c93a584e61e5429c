package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MachineConfig holds state machine settings.
type MachineConfig struct {
	RenewalWindow  time.Duration
	DefaultPlanID  uuid.UUID
	SweepBatchSize int
	SystemActor    string
}

// Repositories groups the persistence ports used by the engine.
type Repositories struct {
	Tx               outbound.TransactionPort
	Plans            outbound.PlanDatabasePort
	Subscriptions    outbound.OrganizationSubscriptionDatabasePort
	Operations       outbound.SubscriptionOperationDatabasePort
	Requests         outbound.SubscriptionRequestDatabasePort
	Cancellations    outbound.CancellationRecordDatabasePort
	ScheduledChanges outbound.ScheduledChangeDatabasePort
}

// TransitionResult is what a committed transition wrote.
type TransitionResult struct {
	Subscription    *model.OrganizationSubscription `json:"subscription"`
	Operation       *model.SubscriptionOperation    `json:"operation,omitempty"`
	ScheduledChange *model.ScheduledChange          `json:"scheduled_change,omitempty"`
	Cancellation    *model.CancellationRecord       `json:"cancellation,omitempty"`
	Proration       *ProrationResult                `json:"proration,omitempty"`
}

// ActivateCommand starts a subscription period.
type ActivateCommand struct {
	OrganizationID  uuid.UUID
	PlanID          uuid.UUID // zero selects the default plan
	StartDate       time.Time // zero means now
	Currency        string
	AwaitPayment    bool
	ExecutedBy      string
	RequestID       *uuid.UUID
	Notes           string
	ExpectedVersion *int64
}

// ChangePlanCommand upgrades or downgrades a subscription.
type ChangePlanCommand struct {
	OrganizationID  uuid.UUID
	PlanID          uuid.UUID
	EffectiveDate   time.Time // zero means now
	Immediate       bool
	ExecutedBy      string
	RequestID       *uuid.UUID
	Notes           string
	ExpectedVersion *int64
}

// DurationOverride replaces the plan duration of one renewal.
type DurationOverride struct {
	Duration int                `json:"duration"`
	Unit     model.DurationUnit `json:"unit"`
}

// RenewCommand extends the current period.
type RenewCommand struct {
	OrganizationID   uuid.UUID
	DurationOverride *DurationOverride
	ExecutedBy       string
	RequestID        *uuid.UUID
	Notes            string
	ExpectedVersion  *int64
}

// CancelCommand ends a subscription now or at period end.
type CancelCommand struct {
	OrganizationID   uuid.UUID
	Reason           model.CancellationReason
	Description      string
	Immediate        bool
	RefundAmount     decimal.Decimal
	RetentionOffered bool
	RetentionDetails string
	ExecutedBy       string
	RequestID        *uuid.UUID
	Notes            string
	ExpectedVersion  *int64
}

// StateMachine owns the subscription row of every organization. Every mutation is a
// conditional write on the row version paired with one operation row.
type StateMachine struct {
	repos    Repositories
	catalog  *Catalog
	enforcer *Enforcer
	clock    clock.Clock
	cfg      MachineConfig
	audit    auditor
	observer Observer
	logger   *zap.Logger
}

// NewStateMachine creates a new subscription state machine.
func NewStateMachine(
	repos Repositories,
	catalog *Catalog,
	enforcer *Enforcer,
	clk clock.Clock,
	cfg MachineConfig,
	audit outbound.AuditSinkPort,
	observer Observer,
	logger *zap.Logger,
) *StateMachine {
	if cfg.SystemActor == "" {
		cfg.SystemActor = "system"
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}
	return &StateMachine{
		repos:    repos,
		catalog:  catalog,
		enforcer: enforcer,
		clock:    clk,
		cfg:      cfg,
		audit:    auditor{sink: audit},
		observer: observerOrNop(observer),
		logger:   logger,
	}
}

// Activate starts a new subscription period for an organization with no live subscription.
func (m *StateMachine) Activate(ctx context.Context, cmd ActivateCommand) (*TransitionResult, error) {
	return m.run(ctx, model.OperationActivation, cmd.OrganizationID, func(ctx context.Context, _ usageSet) (*TransitionResult, error) {
		return m.activate(ctx, cmd)
	})
}

// ConfirmActivation moves a PENDING_ACTIVATION subscription to ACTIVE.
func (m *StateMachine) ConfirmActivation(ctx context.Context, orgID uuid.UUID, executedBy string, requestID *uuid.UUID) (*TransitionResult, error) {
	return m.run(ctx, model.OperationActivation, orgID, func(ctx context.Context, _ usageSet) (*TransitionResult, error) {
		return m.settleActivation(ctx, orgID, model.SubscriptionStatusActive, executedBy, requestID)
	})
}

// FailActivation cancels a PENDING_ACTIVATION subscription whose payment failed.
func (m *StateMachine) FailActivation(ctx context.Context, orgID uuid.UUID, executedBy string, requestID *uuid.UUID) (*TransitionResult, error) {
	return m.run(ctx, model.OperationCancellation, orgID, func(ctx context.Context, _ usageSet) (*TransitionResult, error) {
		return m.settleActivation(ctx, orgID, model.SubscriptionStatusCancelled, executedBy, requestID)
	})
}

// Upgrade moves the organization to a new plan now or at the end of the current period.
func (m *StateMachine) Upgrade(ctx context.Context, cmd ChangePlanCommand) (*TransitionResult, error) {
	return m.run(ctx, model.OperationUpgrade, cmd.OrganizationID, func(ctx context.Context, usage usageSet) (*TransitionResult, error) {
		return m.changePlan(ctx, model.OperationUpgrade, cmd, usage)
	})
}

// Downgrade moves the organization to a smaller plan. It fails with LimitExceededError
// while current usage exceeds the new plan's limits.
func (m *StateMachine) Downgrade(ctx context.Context, cmd ChangePlanCommand) (*TransitionResult, error) {
	return m.run(ctx, model.OperationDowngrade, cmd.OrganizationID, func(ctx context.Context, usage usageSet) (*TransitionResult, error) {
		return m.changePlan(ctx, model.OperationDowngrade, cmd, usage)
	})
}

// Renew extends an ACTIVE subscription that is inside the renewal window.
func (m *StateMachine) Renew(ctx context.Context, cmd RenewCommand) (*TransitionResult, error) {
	return m.run(ctx, model.OperationRenewal, cmd.OrganizationID, func(ctx context.Context, usage usageSet) (*TransitionResult, error) {
		return m.renew(ctx, cmd, usage)
	})
}

// Cancel cancels an ACTIVE subscription immediately or at the end of the period.
func (m *StateMachine) Cancel(ctx context.Context, cmd CancelCommand) (*TransitionResult, error) {
	return m.run(ctx, model.OperationCancellation, cmd.OrganizationID, func(ctx context.Context, _ usageSet) (*TransitionResult, error) {
		return m.cancel(ctx, cmd)
	})
}

// run executes fn in a transaction and reports the outcome after commit.
func (m *StateMachine) run(ctx context.Context, op model.OperationType, orgID uuid.UUID, fn func(ctx context.Context, usage usageSet) (*TransitionResult, error)) (*TransitionResult, error) {
	var res *TransitionResult
	err := m.withUsage(ctx, func(usage usageSet) error {
		return m.repos.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			res, err = fn(ctx, usage)
			return err
		})
	})
	if err != nil {
		m.reportFailure(op, orgID, err)
		return nil, err
	}
	m.committed(ctx, op, res)
	return res, nil
}

// withUsage runs attempt with the snapshots read so far. An attempt that stops at a
// limit check without a snapshot is rolled back, the snapshot is read with no
// transaction open and attempt runs again; the version check still guards the write.
func (m *StateMachine) withUsage(ctx context.Context, attempt func(usage usageSet) error) error {
	usage := usageSet{}
	for {
		err := attempt(usage)
		var required *usageRequiredError
		if !errors.As(err, &required) {
			return err
		}
		if _, ok := usage[required.OrganizationID]; ok {
			return err
		}
		snapshot, serr := m.enforcer.Snapshot(ctx, required.OrganizationID)
		if serr != nil {
			return serr
		}
		usage[required.OrganizationID] = snapshot
	}
}

func (m *StateMachine) reportFailure(op model.OperationType, orgID uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrConflict):
		m.observer.VersionConflict(string(op))
		m.observer.TransitionCompleted(string(op), "conflict")
		m.logger.Warn("subscription version conflict",
			zap.String("organization_id", orgID.String()),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrLimitExceeded), errors.Is(err, ErrNotFound), errors.Is(err, ErrProration):
		m.observer.TransitionCompleted(string(op), "rejected")
	default:
		m.observer.TransitionCompleted(string(op), "error")
		m.logger.Error("subscription transition failed",
			zap.String("organization_id", orgID.String()),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
	}
}

func (m *StateMachine) committed(ctx context.Context, op model.OperationType, res *TransitionResult) {
	if res == nil {
		return
	}
	if res.Operation != nil {
		op = res.Operation.OperationType
	}
	m.observer.TransitionCompleted(string(op), "success")
	if res.Proration != nil && !res.Proration.IsRenewal {
		amount, _ := res.Proration.Amount.Amount().Float64()
		m.observer.ProrationComputed(res.Proration.Amount.Currency(), amount)
	}
	m.audit.operation(ctx, res.Operation)

	fields := []zap.Field{
		zap.String("organization_id", res.Subscription.OrganizationID.String()),
		zap.String("operation", string(op)),
		zap.String("status", string(res.Subscription.Status)),
		zap.Int64("version", res.Subscription.Version),
	}
	if res.ScheduledChange != nil {
		fields = append(fields, zap.Time("scheduled_for", res.ScheduledChange.EffectiveDate))
	}
	m.logger.Info("subscription transition committed", fields...)
}

// --- transitions; each runs inside the caller's transaction ---

func (m *StateMachine) activate(ctx context.Context, cmd ActivateCommand) (*TransitionResult, error) {
	currency := NormalizeCurrency(cmd.Currency)
	if !IsCurrencyCode(currency) {
		return nil, invalidField("currency", "%q is not an ISO 4217 code", cmd.Currency)
	}

	planID := cmd.PlanID
	if planID == uuid.Nil {
		planID = m.cfg.DefaultPlanID
	}
	if planID == uuid.Nil {
		return nil, newValidationError("plan_id", ErrNoDefaultPlan)
	}
	plan, err := m.activePlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	price, err := resolvePrice(plan, currency)
	if err != nil {
		return nil, err
	}

	existing, err := m.repos.Subscriptions.GetByOrganizationID(ctx, cmd.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	var expected int64
	if existing != nil {
		if !existing.Status.IsTerminal() {
			return nil, newValidationError("organization_id", ErrSubscriptionExists)
		}
		expected = existing.Version
	}
	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != expected {
		return nil, &ConflictError{Resource: "subscription", ID: cmd.OrganizationID, ExpectedVersion: *cmd.ExpectedVersion}
	}

	now := m.clock.Now()
	start := cmd.StartDate
	if start.IsZero() {
		start = now
	}
	status := model.SubscriptionStatusActive
	if cmd.AwaitPayment && price.Amount().IsPositive() {
		status = model.SubscriptionStatusPendingActivation
	}

	next := &model.OrganizationSubscription{
		OrganizationID:     cmd.OrganizationID,
		SubscriptionPlanID: plan.ID,
		Status:             status,
		Currency:           currency,
		SubscriptionStart:  start,
		SubscriptionEnd:    plan.PeriodEnd(start),
		Version:            expected + 1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	op := m.newOperation(next, model.OperationActivation, cmd.ExecutedBy, cmd.RequestID, cmd.Notes)
	op.EffectiveDate = start
	op.PlanAmount = price.Amount()
	op.BillingMonths = plan.BillingFrequency.Months()

	if existing == nil {
		if err := m.repos.Subscriptions.Create(ctx, next); err != nil {
			if errors.Is(err, outbound.ErrVersionConflict) {
				return nil, &ConflictError{Resource: "subscription", ID: cmd.OrganizationID, ExpectedVersion: 0}
			}
			return nil, fmt.Errorf("create subscription: %w", err)
		}
	} else {
		next.CreatedAt = existing.CreatedAt
		next.Metadata = existing.Metadata
		op.FromPlanID = &existing.SubscriptionPlanID
		op.FromStatus = existing.Status
		op.PreviousEndDate = &existing.SubscriptionEnd
		if err := m.updateRow(ctx, next, expected); err != nil {
			return nil, err
		}
	}
	if err := m.appendOperation(ctx, op); err != nil {
		return nil, err
	}
	return &TransitionResult{Subscription: next, Operation: op}, nil
}

func (m *StateMachine) settleActivation(ctx context.Context, orgID uuid.UUID, to model.SubscriptionStatus, executedBy string, requestID *uuid.UUID) (*TransitionResult, error) {
	sub, expected, err := m.load(ctx, orgID, nil)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusPendingActivation {
		return nil, newValidationError("status", fmt.Errorf("%w: %s is not awaiting payment", ErrInvalidTransition, sub.Status))
	}
	if err := checkPath(sub.Status, to); err != nil {
		return nil, err
	}
	plan, err := m.catalog.GetPlan(ctx, sub.SubscriptionPlanID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	next := *sub
	next.Status = to
	opType := model.OperationActivation
	notes := "payment confirmed"
	if to == model.SubscriptionStatusCancelled {
		next.SubscriptionEnd = now
		opType = model.OperationCancellation
		notes = "payment failed"
	}

	op := m.newOperation(&next, opType, executedBy, requestID, notes)
	op.FromPlanID = &sub.SubscriptionPlanID
	op.FromStatus = sub.Status
	op.PreviousEndDate = &sub.SubscriptionEnd
	if to == model.SubscriptionStatusActive {
		op.EffectiveDate = next.SubscriptionStart
	}
	m.priceOperation(op, plan, sub.Currency)

	if err := m.updateRow(ctx, &next, expected); err != nil {
		return nil, err
	}
	if err := m.appendOperation(ctx, op); err != nil {
		return nil, err
	}
	return &TransitionResult{Subscription: &next, Operation: op}, nil
}

func (m *StateMachine) changePlan(ctx context.Context, opType model.OperationType, cmd ChangePlanCommand, usage usageSet) (*TransitionResult, error) {
	transient := model.SubscriptionStatusUpgrading
	if opType == model.OperationDowngrade {
		transient = model.SubscriptionStatusDowngrading
	}

	sub, expected, err := m.load(ctx, cmd.OrganizationID, cmd.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	if err := checkPath(sub.Status, transient, model.SubscriptionStatusActive); err != nil {
		return nil, err
	}
	if err := m.rejectPendingCancellation(ctx, sub); err != nil {
		return nil, err
	}

	newPlan, err := m.activePlan(ctx, cmd.PlanID)
	if err != nil {
		return nil, err
	}
	if opType == model.OperationUpgrade && newPlan.ID == sub.SubscriptionPlanID {
		return nil, newValidationError("plan_id", ErrSamePlan)
	}
	if _, err := resolvePrice(newPlan, sub.Currency); err != nil {
		return nil, err
	}
	currentPlan, err := m.catalog.GetPlan(ctx, sub.SubscriptionPlanID)
	if err != nil {
		return nil, err
	}
	if err := m.enforcer.requireWithinLimits(newPlan, sub.OrganizationID, usage); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	effective := cmd.EffectiveDate
	if effective.IsZero() {
		effective = now
	}

	if !cmd.Immediate {
		return m.schedule(ctx, sub, opType, newPlan, cmd, now)
	}

	// A change before an early-renewed period starts is prorated against that period.
	prorationDate := effective
	if prorationDate.Before(sub.SubscriptionStart) {
		prorationDate = sub.SubscriptionStart
	}
	proration, err := ComputeProration(currentPlan, Period{Start: sub.SubscriptionStart, End: sub.SubscriptionEnd}, newPlan, prorationDate, sub.Currency)
	if err != nil {
		return nil, err
	}

	next := *sub
	next.SubscriptionPlanID = newPlan.ID
	next.SubscriptionStart = effective
	next.SubscriptionEnd = newPlan.PeriodEnd(effective)
	next.Status = model.SubscriptionStatusActive

	recorded := opType
	if proration.IsRenewal {
		recorded = model.OperationRenewal
	}
	op := m.newOperation(&next, recorded, cmd.ExecutedBy, cmd.RequestID, cmd.Notes)
	op.FromPlanID = &sub.SubscriptionPlanID
	op.FromStatus = sub.Status
	op.EffectiveDate = effective
	op.PreviousEndDate = &sub.SubscriptionEnd
	m.priceOperation(op, newPlan, sub.Currency)
	if proration.IsRenewal {
		op.ProrationAmount = decimal.NewNullDecimal(op.PlanAmount)
	} else {
		op.ProrationAmount = decimal.NewNullDecimal(proration.Amount.Amount())
	}

	if err := m.updateRow(ctx, &next, expected); err != nil {
		return nil, err
	}
	if err := m.appendOperation(ctx, op); err != nil {
		return nil, err
	}
	if _, err := m.repos.ScheduledChanges.ResolveScheduled(ctx, sub.OrganizationID, model.ScheduledChangeSuperseded, now); err != nil {
		return nil, fmt.Errorf("supersede scheduled changes: %w", err)
	}
	return &TransitionResult{Subscription: &next, Operation: op, Proration: &proration}, nil
}

// schedule records a deferred plan change for the end of the current period. The newest
// schedule supersedes any earlier one. The subscription row is not touched.
func (m *StateMachine) schedule(ctx context.Context, sub *model.OrganizationSubscription, opType model.OperationType, plan *model.SubscriptionPlan, cmd ChangePlanCommand, now time.Time) (*TransitionResult, error) {
	if _, err := m.repos.ScheduledChanges.ResolveScheduled(ctx, sub.OrganizationID, model.ScheduledChangeSuperseded, now); err != nil {
		return nil, fmt.Errorf("supersede scheduled changes: %w", err)
	}

	change := &model.ScheduledChange{
		ID:             uuid.New(),
		OrganizationID: sub.OrganizationID,
		RequestID:      cmd.RequestID,
		OperationType:  opType,
		ToPlanID:       plan.ID,
		EffectiveDate:  sub.SubscriptionEnd,
		Status:         model.ScheduledChangeScheduled,
		CreatedBy:      m.actor(cmd.ExecutedBy),
		CreatedAt:      now,
	}
	if err := m.repos.ScheduledChanges.Create(ctx, change); err != nil {
		return nil, fmt.Errorf("create scheduled change: %w", err)
	}
	return &TransitionResult{Subscription: sub, ScheduledChange: change}, nil
}

func (m *StateMachine) renew(ctx context.Context, cmd RenewCommand, usage usageSet) (*TransitionResult, error) {
	if o := cmd.DurationOverride; o != nil && (o.Duration <= 0 || !o.Unit.IsValid()) {
		return nil, invalidField("duration_override", "duration must be positive with a day, month or year unit")
	}

	sub, expected, err := m.load(ctx, cmd.OrganizationID, cmd.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusActive {
		return nil, newValidationError("status", fmt.Errorf("%w: cannot renew from %s", ErrInvalidTransition, sub.Status))
	}
	now := m.clock.Now()
	if sub.SubscriptionEnd.Sub(now) > m.cfg.RenewalWindow {
		return nil, &ValidationError{
			Field:   "subscription_end",
			Message: fmt.Sprintf("renewal opens %s before the period ends on %s", m.cfg.RenewalWindow, sub.SubscriptionEnd.Format(time.RFC3339)),
			Err:     ErrOutsideRenewalWindow,
		}
	}
	if err := m.rejectPendingCancellation(ctx, sub); err != nil {
		return nil, err
	}

	plan, err := m.catalog.GetPlan(ctx, sub.SubscriptionPlanID)
	if err != nil {
		return nil, err
	}
	opType := model.OperationRenewal

	// Renewal is where a deferred plan change takes effect.
	change, err := m.repos.ScheduledChanges.GetScheduled(ctx, sub.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("get scheduled change: %w", err)
	}
	if change != nil {
		target, err := m.scheduledTarget(ctx, sub, change, usage)
		switch {
		case err == nil:
			plan = target
			opType = change.OperationType
		case errors.Is(err, ErrUsageUnavailable), needsUsage(err):
			return nil, err
		default:
			if _, rerr := m.repos.ScheduledChanges.ResolveScheduled(ctx, sub.OrganizationID, model.ScheduledChangeDiscarded, now); rerr != nil {
				return nil, fmt.Errorf("discard scheduled change: %w", rerr)
			}
			m.logger.Warn("scheduled plan change discarded at renewal",
				zap.String("organization_id", sub.OrganizationID.String()),
				zap.String("plan_id", change.ToPlanID.String()),
				zap.Error(err),
			)
			change = nil
		}
	}

	next := *sub
	next.SubscriptionPlanID = plan.ID
	next.SubscriptionStart = sub.SubscriptionEnd
	if o := cmd.DurationOverride; o != nil {
		next.SubscriptionEnd = o.Unit.AddTo(sub.SubscriptionEnd, o.Duration)
	} else {
		next.SubscriptionEnd = plan.PeriodEnd(sub.SubscriptionEnd)
	}

	op := m.newOperation(&next, opType, cmd.ExecutedBy, cmd.RequestID, cmd.Notes)
	op.FromPlanID = &sub.SubscriptionPlanID
	op.FromStatus = sub.Status
	op.EffectiveDate = sub.SubscriptionEnd
	op.PreviousEndDate = &sub.SubscriptionEnd
	m.priceOperation(op, plan, sub.Currency)
	op.ProrationAmount = decimal.NewNullDecimal(op.PlanAmount)

	if err := m.updateRow(ctx, &next, expected); err != nil {
		return nil, err
	}
	if err := m.appendOperation(ctx, op); err != nil {
		return nil, err
	}
	if change != nil {
		if err := m.repos.ScheduledChanges.Resolve(ctx, change.ID, model.ScheduledChangeApplied, now); err != nil {
			return nil, fmt.Errorf("apply scheduled change: %w", err)
		}
		change.Status = model.ScheduledChangeApplied
	}
	return &TransitionResult{Subscription: &next, Operation: op, ScheduledChange: change}, nil
}

func (m *StateMachine) cancel(ctx context.Context, cmd CancelCommand) (*TransitionResult, error) {
	if !cmd.Reason.IsValid() {
		return nil, newValidationError("reason", ErrInvalidCancelReason)
	}
	if cmd.RefundAmount.IsNegative() {
		return nil, newValidationError("refund_amount", ErrNegativeRefund)
	}

	sub, expected, err := m.load(ctx, cmd.OrganizationID, cmd.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusActive {
		return nil, newValidationError("status", fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, sub.Status))
	}
	if err := m.rejectPendingCancellation(ctx, sub); err != nil {
		return nil, err
	}
	plan, err := m.catalog.GetPlan(ctx, sub.SubscriptionPlanID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	next := *sub
	effective := sub.SubscriptionEnd
	if cmd.Immediate {
		next.Status = model.SubscriptionStatusCancelled
		next.SubscriptionEnd = now
		effective = now
	}

	op := m.newOperation(&next, model.OperationCancellation, cmd.ExecutedBy, cmd.RequestID, cmd.Notes)
	op.FromPlanID = &sub.SubscriptionPlanID
	op.FromStatus = sub.Status
	op.EffectiveDate = now
	op.PreviousEndDate = &sub.SubscriptionEnd
	m.priceOperation(op, plan, sub.Currency)

	record := &model.CancellationRecord{
		ID:                   uuid.New(),
		OrganizationID:       sub.OrganizationID,
		Reason:               cmd.Reason,
		ReasonDescription:    cmd.Description,
		EffectiveDate:        effective,
		RefundAmount:         cmd.RefundAmount,
		Currency:             sub.Currency,
		RetentionOffered:     cmd.RetentionOffered,
		RetentionDetails:     cmd.RetentionDetails,
		ImmediateTermination: cmd.Immediate,
		ProcessedByUserID:    m.actor(cmd.ExecutedBy),
		ProcessedAt:          now,
	}

	if err := m.updateRow(ctx, &next, expected); err != nil {
		return nil, err
	}
	if err := m.appendOperation(ctx, op); err != nil {
		return nil, err
	}
	if err := m.repos.Cancellations.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create cancellation record: %w", err)
	}
	if _, err := m.repos.ScheduledChanges.ResolveScheduled(ctx, sub.OrganizationID, model.ScheduledChangeDiscarded, now); err != nil {
		return nil, fmt.Errorf("discard scheduled changes: %w", err)
	}
	return &TransitionResult{Subscription: &next, Operation: op, Cancellation: record}, nil
}

// --- helpers ---

// load reads the subscription row. With an expected version, a mismatch is a conflict.
func (m *StateMachine) load(ctx context.Context, orgID uuid.UUID, expectedVersion *int64) (*model.OrganizationSubscription, int64, error) {
	sub, err := m.repos.Subscriptions.GetByOrganizationID(ctx, orgID)
	if err != nil {
		return nil, 0, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return nil, 0, notFound("subscription", orgID)
	}
	if expectedVersion != nil && *expectedVersion != sub.Version {
		return nil, 0, &ConflictError{Resource: "subscription", ID: orgID, ExpectedVersion: *expectedVersion}
	}
	return sub, sub.Version, nil
}

func (m *StateMachine) activePlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	plan, err := m.catalog.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, newValidationError("plan_id", ErrPlanInactive)
	}
	return plan, nil
}

func (m *StateMachine) rejectPendingCancellation(ctx context.Context, sub *model.OrganizationSubscription) error {
	rec, err := m.repos.Cancellations.GetPendingTermination(ctx, sub.OrganizationID, sub.SubscriptionEnd)
	if err != nil {
		return fmt.Errorf("get pending cancellation: %w", err)
	}
	if rec != nil {
		return newValidationError("status", ErrCancellationPending)
	}
	return nil
}

// scheduledTarget resolves the plan of a scheduled change and re-checks it against
// current usage.
func (m *StateMachine) scheduledTarget(ctx context.Context, sub *model.OrganizationSubscription, change *model.ScheduledChange, usage usageSet) (*model.SubscriptionPlan, error) {
	plan, err := m.activePlan(ctx, change.ToPlanID)
	if err != nil {
		return nil, err
	}
	if _, err := resolvePrice(plan, sub.Currency); err != nil {
		return nil, err
	}
	if err := m.enforcer.requireWithinLimits(plan, sub.OrganizationID, usage); err != nil {
		return nil, err
	}
	return plan, nil
}

func (m *StateMachine) updateRow(ctx context.Context, next *model.OrganizationSubscription, expected int64) error {
	next.Version = expected + 1
	next.UpdatedAt = m.clock.Now()
	if err := m.repos.Subscriptions.UpdateIfVersion(ctx, next, expected); err != nil {
		if errors.Is(err, outbound.ErrVersionConflict) {
			return &ConflictError{Resource: "subscription", ID: next.OrganizationID, ExpectedVersion: expected}
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

func (m *StateMachine) appendOperation(ctx context.Context, op *model.SubscriptionOperation) error {
	if err := m.repos.Operations.Append(ctx, op); err != nil {
		return fmt.Errorf("append operation: %w", err)
	}
	return nil
}

func (m *StateMachine) newOperation(next *model.OrganizationSubscription, opType model.OperationType, executedBy string, requestID *uuid.UUID, notes string) *model.SubscriptionOperation {
	now := m.clock.Now()
	return &model.SubscriptionOperation{
		ID:              uuid.New(),
		OrganizationID:  next.OrganizationID,
		ToPlanID:        next.SubscriptionPlanID,
		OperationType:   opType,
		ExecutedBy:      m.actor(executedBy),
		EffectiveDate:   now,
		NewEndDate:      next.SubscriptionEnd,
		Currency:        next.Currency,
		ResultingStatus: next.Status,
		RequestID:       requestID,
		Notes:           notes,
		CreatedAt:       now,
	}
}

// priceOperation snapshots the plan price the operation leaves the organization on.
func (m *StateMachine) priceOperation(op *model.SubscriptionOperation, plan *model.SubscriptionPlan, currency string) {
	if amount, ok := plan.PriceFor(currency); ok {
		op.PlanAmount = amount
	}
	op.BillingMonths = plan.BillingFrequency.Months()
}

func (m *StateMachine) actor(executedBy string) string {
	if executedBy == "" {
		return m.cfg.SystemActor
	}
	return executedBy
}
