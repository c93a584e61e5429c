package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"go.uber.org/zap"
)

// SubscriptionDomain defines the subscription engine service interface.
type SubscriptionDomain interface {
	// CreatePlan validates and stores a new plan.
	CreatePlan(ctx context.Context, in PlanInput) (*model.SubscriptionPlan, error)

	// GetPlan returns a plan by ID.
	GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error)

	// ListPlans lists active plans offered in currency; empty currency lists all.
	ListPlans(ctx context.Context, currency string) ([]*model.SubscriptionPlan, error)

	// UpdatePlan changes a plan. Financial fields are frozen while it is referenced.
	UpdatePlan(ctx context.Context, id uuid.UUID, upd PlanUpdate) (*model.SubscriptionPlan, error)

	// RetirePlan soft-retires a plan.
	RetirePlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error)

	// Activate starts a subscription for an organization without a live one.
	Activate(ctx context.Context, cmd ActivateCommand) (*TransitionResult, error)

	// GetSubscriptionStatus returns the subscription, its plan, limits and current usage.
	GetSubscriptionStatus(ctx context.Context, orgID uuid.UUID) (*StatusView, error)

	// CheckEntitlement checks current usage against the organization's plan.
	CheckEntitlement(ctx context.Context, orgID uuid.UUID, resource Resource) (*Decision, error)

	// ListOperations lists the operation history of an organization, newest first.
	ListOperations(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionOperation, error)

	// SubmitChangeRequest records a pending change request.
	SubmitChangeRequest(ctx context.Context, in SubmitInput) (*model.SubscriptionRequest, error)

	// ProcessRequest approves or rejects a pending request. Idempotent for terminal requests.
	ProcessRequest(ctx context.Context, in ProcessInput) (*ProcessResult, error)

	// CancelChangeRequest withdraws a pending request on behalf of its requester.
	CancelChangeRequest(ctx context.Context, requestID, requesterID uuid.UUID) (*model.SubscriptionRequest, error)

	// ListChangeRequests lists the requests of an organization, newest first.
	ListChangeRequests(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionRequest, error)

	// GetAnalytics computes the analytics report of one currency and period.
	GetAnalytics(ctx context.Context, q AnalyticsQuery) (*model.AnalyticsReport, error)

	// HandlePaymentOutcome applies a payment gateway outcome.
	HandlePaymentOutcome(ctx context.Context, outcome model.PaymentOutcome) (*PaymentResult, error)

	// RunExpirySweep resolves overdue ACTIVE subscriptions.
	RunExpirySweep(ctx context.Context, now time.Time) (SweepResult, error)
}

// StatusView is the current subscription state of an organization.
type StatusView struct {
	OrganizationID      uuid.UUID                 `json:"organization_id"`
	Plan                *model.SubscriptionPlan   `json:"plan"`
	Status              model.SubscriptionStatus  `json:"status"`
	Currency            string                    `json:"currency"`
	SubscriptionStart   time.Time                 `json:"subscription_start"`
	SubscriptionEnd     time.Time                 `json:"subscription_end"`
	DaysRemaining       int                       `json:"days_remaining"`
	Usage               *model.UsageSnapshot      `json:"usage,omitempty"`
	UsageAvailable      bool                      `json:"usage_available"`
	Limits              Limits                    `json:"limits"`
	Utilization         float64                   `json:"utilization"`
	NearingLimits       bool                      `json:"nearing_limits"`
	PendingChange       *model.ScheduledChange    `json:"pending_change,omitempty"`
	PendingCancellation *model.CancellationRecord `json:"pending_cancellation,omitempty"`
	Version             int64                     `json:"version"`
}

// Domain implements SubscriptionDomain on top of the engine components.
type Domain struct {
	catalog    *Catalog
	enforcer   *Enforcer
	machine    *StateMachine
	workflow   *Workflow
	aggregator *Aggregator
	repos      Repositories
	clock      clock.Clock
	logger     *zap.Logger
}

// NewDomain creates a new subscription domain service.
func NewDomain(
	catalog *Catalog,
	enforcer *Enforcer,
	machine *StateMachine,
	workflow *Workflow,
	aggregator *Aggregator,
	repos Repositories,
	clk clock.Clock,
	logger *zap.Logger,
) *Domain {
	return &Domain{
		catalog:    catalog,
		enforcer:   enforcer,
		machine:    machine,
		workflow:   workflow,
		aggregator: aggregator,
		repos:      repos,
		clock:      clk,
		logger:     logger,
	}
}

// Compile-time interface check
var _ SubscriptionDomain = (*Domain)(nil)

// Machine returns the underlying state machine.
func (d *Domain) Machine() *StateMachine {
	return d.machine
}

// --- Plan Operations ---

func (d *Domain) CreatePlan(ctx context.Context, in PlanInput) (*model.SubscriptionPlan, error) {
	return d.catalog.CreatePlan(ctx, in)
}

func (d *Domain) GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	return d.catalog.GetPlan(ctx, id)
}

func (d *Domain) ListPlans(ctx context.Context, currency string) ([]*model.SubscriptionPlan, error) {
	return d.catalog.ListActivePlans(ctx, currency)
}

func (d *Domain) UpdatePlan(ctx context.Context, id uuid.UUID, upd PlanUpdate) (*model.SubscriptionPlan, error) {
	return d.catalog.UpdatePlan(ctx, id, upd)
}

func (d *Domain) RetirePlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	return d.catalog.RetirePlan(ctx, id)
}

// --- Subscription Operations ---

func (d *Domain) Activate(ctx context.Context, cmd ActivateCommand) (*TransitionResult, error) {
	return d.machine.Activate(ctx, cmd)
}

// GetSubscriptionStatus reports usage when the provider answers. An unavailable
// snapshot leaves Usage empty instead of failing the read.
func (d *Domain) GetSubscriptionStatus(ctx context.Context, orgID uuid.UUID) (*StatusView, error) {
	sub, err := d.repos.Subscriptions.GetByOrganizationID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return nil, notFound("subscription", orgID)
	}
	plan, err := d.catalog.GetPlan(ctx, sub.SubscriptionPlanID)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		OrganizationID:    sub.OrganizationID,
		Plan:              plan,
		Status:            sub.Status,
		Currency:          sub.Currency,
		SubscriptionStart: sub.SubscriptionStart,
		SubscriptionEnd:   sub.SubscriptionEnd,
		DaysRemaining:     sub.DaysRemaining(d.clock.Now()),
		Limits:            LimitsOf(plan),
		Version:           sub.Version,
	}

	if !sub.Status.IsTerminal() {
		change, err := d.repos.ScheduledChanges.GetScheduled(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("get scheduled change: %w", err)
		}
		view.PendingChange = change

		rec, err := d.repos.Cancellations.GetPendingTermination(ctx, orgID, sub.SubscriptionEnd)
		if err != nil {
			return nil, fmt.Errorf("get pending cancellation: %w", err)
		}
		view.PendingCancellation = rec
	}

	if usage, err := d.enforcer.Snapshot(ctx, orgID); err == nil {
		decision := d.enforcer.CheckLimit(plan, usage, ResourceAll)
		view.Usage = usage
		view.UsageAvailable = true
		view.Utilization = decision.Utilization
		view.NearingLimits = decision.NearingLimits
	}
	return view, nil
}

func (d *Domain) CheckEntitlement(ctx context.Context, orgID uuid.UUID, resource Resource) (*Decision, error) {
	sub, err := d.repos.Subscriptions.GetByOrganizationID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return nil, notFound("subscription", orgID)
	}
	plan, err := d.catalog.GetPlan(ctx, sub.SubscriptionPlanID)
	if err != nil {
		return nil, err
	}
	decision, _, err := d.enforcer.CheckUsage(ctx, plan, orgID, resource)
	if err != nil {
		return &decision, err
	}
	return &decision, nil
}

func (d *Domain) ListOperations(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionOperation, error) {
	ops, err := d.repos.Operations.ListByOrganization(ctx, orgID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return ops, nil
}

// --- Request Operations ---

func (d *Domain) SubmitChangeRequest(ctx context.Context, in SubmitInput) (*model.SubscriptionRequest, error) {
	return d.workflow.Submit(ctx, in)
}

func (d *Domain) ProcessRequest(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	return d.workflow.Process(ctx, in)
}

func (d *Domain) CancelChangeRequest(ctx context.Context, requestID, requesterID uuid.UUID) (*model.SubscriptionRequest, error) {
	return d.workflow.CancelRequest(ctx, requestID, requesterID)
}

func (d *Domain) ListChangeRequests(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionRequest, error) {
	return d.workflow.ListRequests(ctx, orgID, clampLimit(limit))
}

// --- Analytics and background ---

func (d *Domain) GetAnalytics(ctx context.Context, q AnalyticsQuery) (*model.AnalyticsReport, error) {
	return d.aggregator.Compute(ctx, q)
}

func (d *Domain) RunExpirySweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if now.IsZero() {
		now = d.clock.Now()
	}
	return d.machine.ExpireOverdue(ctx, now)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
