package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"go.uber.org/zap"
)

// SubmitInput is a customer change request.
type SubmitInput struct {
	OrganizationID     uuid.UUID                 `json:"organization_id"`
	OperationType      model.OperationType       `json:"operation_type"`
	PlanID             *uuid.UUID                `json:"plan_id,omitempty"`
	RequestedBy        uuid.UUID                 `json:"requested_by"`
	Notes              string                    `json:"notes"`
	Currency           string                    `json:"currency,omitempty"`
	RequestedStartDate *time.Time                `json:"requested_start_date,omitempty"`
	Immediate          bool                      `json:"immediate"`
	CancellationReason *model.CancellationReason `json:"cancellation_reason,omitempty"`
}

// ProcessInput is an admin decision on a pending request.
type ProcessInput struct {
	RequestID     uuid.UUID      `json:"request_id"`
	Decision      model.Decision `json:"decision"`
	ProcessedBy   uuid.UUID      `json:"processed_by"` // uuid.Nil for the system actor
	AdminNotes    string         `json:"admin_notes"`
	EffectiveDate *time.Time     `json:"effective_date,omitempty"`
}

// ProcessResult is the outcome of processing a request.
type ProcessResult struct {
	Request    *model.SubscriptionRequest `json:"request"`
	Transition *TransitionResult          `json:"transition,omitempty"`
	// Operation is the operation the request produced, also on replays.
	Operation *model.SubscriptionOperation `json:"operation,omitempty"`
	// Replayed is true when the request was already terminal.
	Replayed bool `json:"replayed"`
}

// Workflow gates customer change requests behind admin approval.
type Workflow struct {
	repos   Repositories
	catalog *Catalog
	machine *StateMachine
	clock   clock.Clock
	audit   auditor
	logger  *zap.Logger
}

// NewWorkflow creates a new request workflow.
func NewWorkflow(repos Repositories, catalog *Catalog, machine *StateMachine, clk clock.Clock, audit outbound.AuditSinkPort, logger *zap.Logger) *Workflow {
	return &Workflow{
		repos:   repos,
		catalog: catalog,
		machine: machine,
		clock:   clk,
		audit:   auditor{sink: audit},
		logger:  logger,
	}
}

// Submit records a pending request. It never touches the subscription row.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (*model.SubscriptionRequest, error) {
	if !in.OperationType.IsRequestable() {
		return nil, newValidationError("operation_type", ErrInvalidOperationType)
	}
	if in.RequestedBy == uuid.Nil {
		return nil, invalidField("requested_by", "is required")
	}

	req := &model.SubscriptionRequest{
		ID:                 uuid.New(),
		OrganizationID:     in.OrganizationID,
		RequestedByUserID:  in.RequestedBy,
		Status:             model.RequestStatusPending,
		OperationType:      in.OperationType,
		RequestedStartDate: in.RequestedStartDate,
		Immediate:          in.Immediate,
		Notes:              strings.TrimSpace(in.Notes),
		CreatedAt:          w.clock.Now(),
	}

	var plan *model.SubscriptionPlan
	if in.OperationType.NeedsPlan() {
		if in.PlanID == nil {
			return nil, invalidField("plan_id", "is required for %s", in.OperationType)
		}
		var err error
		plan, err = w.catalog.GetPlan(ctx, *in.PlanID)
		if err != nil {
			return nil, err
		}
		if !plan.IsActive {
			return nil, newValidationError("plan_id", ErrPlanInactive)
		}
		req.SubscriptionPlanID = &plan.ID
	}

	sub, err := w.repos.Subscriptions.GetByOrganizationID(ctx, in.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if in.OperationType == model.OperationActivation {
		if sub != nil && !sub.Status.IsTerminal() {
			return nil, newValidationError("organization_id", ErrSubscriptionExists)
		}
		currency := NormalizeCurrency(in.Currency)
		if !IsCurrencyCode(currency) {
			return nil, invalidField("currency", "%q is not an ISO 4217 code", in.Currency)
		}
		if _, err := resolvePrice(plan, currency); err != nil {
			return nil, err
		}
		req.Currency = currency
	} else if sub == nil {
		return nil, notFound("subscription", in.OrganizationID)
	}
	if in.OperationType == model.OperationRenewal {
		if err := w.machine.rejectPendingCancellation(ctx, sub); err != nil {
			return nil, err
		}
	}

	if in.OperationType == model.OperationCancellation {
		if in.CancellationReason == nil || !in.CancellationReason.IsValid() {
			return nil, newValidationError("cancellation_reason", ErrInvalidCancelReason)
		}
		reason := *in.CancellationReason
		req.CancellationReason = &reason
	}

	if err := w.repos.Requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	w.audit.request(ctx, req, in.RequestedBy.String())

	w.logger.Info("change request submitted",
		zap.String("request_id", req.ID.String()),
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("operation", string(req.OperationType)),
	)
	return req, nil
}

// Process applies an admin decision. Approval runs the matching transition and the
// request status write in one transaction; a failed transition leaves the request
// pending. Processing a terminal request returns its prior result.
func (w *Workflow) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	if !in.Decision.IsValid() {
		return nil, newValidationError("decision", ErrInvalidDecision)
	}

	req, err := w.getRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return w.replay(ctx, req)
	}

	actor := w.machine.actor("")
	if in.ProcessedBy != uuid.Nil {
		actor = in.ProcessedBy.String()
	}

	var transition *TransitionResult
	var resolved *model.SubscriptionRequest
	err = w.machine.withUsage(ctx, func(usage usageSet) error {
		return w.repos.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			next := *req
			now := w.clock.Now()
			next.AdminNotes = in.AdminNotes
			next.ProcessedAt = &now
			if in.ProcessedBy != uuid.Nil {
				processedBy := in.ProcessedBy
				next.ProcessedByUserID = &processedBy
			}

			if in.Decision == model.DecisionApproved {
				res, err := w.apply(ctx, &next, actor, in.EffectiveDate, usage)
				if err != nil {
					return err
				}
				transition = res
				next.Status = model.RequestStatusApproved
				if res.Operation != nil {
					next.OperationID = &res.Operation.ID
				}
				if res.ScheduledChange != nil {
					next.ScheduledChangeID = &res.ScheduledChange.ID
				}
			} else {
				next.Status = model.RequestStatusRejected
			}

			if err := w.repos.Requests.ResolvePending(ctx, &next); err != nil {
				if errors.Is(err, outbound.ErrVersionConflict) {
					return errRequestRaced
				}
				return fmt.Errorf("resolve request: %w", err)
			}

			resolved = &next
			return nil
		})
	})
	if errors.Is(err, errRequestRaced) {
		// Another processor resolved the request first; its result stands.
		current, gerr := w.getRequest(ctx, in.RequestID)
		if gerr != nil {
			return nil, gerr
		}
		return w.replay(ctx, current)
	}
	if err != nil {
		w.machine.reportFailure(req.OperationType, req.OrganizationID, err)
		return nil, err
	}
	req = resolved

	if transition != nil {
		w.machine.committed(ctx, req.OperationType, transition)
	}
	w.audit.request(ctx, req, actor)

	w.logger.Info("change request processed",
		zap.String("request_id", req.ID.String()),
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("status", string(req.Status)),
	)
	result := &ProcessResult{Request: req, Transition: transition}
	if transition != nil {
		result.Operation = transition.Operation
	}
	return result, nil
}

var errRequestRaced = errors.New("request resolved concurrently")

// apply runs the transition a request asks for inside the caller's transaction.
func (w *Workflow) apply(ctx context.Context, req *model.SubscriptionRequest, actor string, effectiveDate *time.Time, usage usageSet) (*TransitionResult, error) {
	var effective time.Time
	switch {
	case effectiveDate != nil:
		effective = *effectiveDate
	case req.RequestedStartDate != nil:
		effective = *req.RequestedStartDate
	}
	requestID := req.ID

	switch req.OperationType {
	case model.OperationActivation:
		return w.machine.activate(ctx, ActivateCommand{
			OrganizationID: req.OrganizationID,
			PlanID:         derefID(req.SubscriptionPlanID),
			StartDate:      effective,
			Currency:       req.Currency,
			ExecutedBy:     actor,
			RequestID:      &requestID,
			Notes:          req.Notes,
		})
	case model.OperationUpgrade, model.OperationDowngrade:
		return w.machine.changePlan(ctx, req.OperationType, ChangePlanCommand{
			OrganizationID: req.OrganizationID,
			PlanID:         derefID(req.SubscriptionPlanID),
			EffectiveDate:  effective,
			Immediate:      req.Immediate,
			ExecutedBy:     actor,
			RequestID:      &requestID,
			Notes:          req.Notes,
		}, usage)
	case model.OperationRenewal:
		return w.machine.renew(ctx, RenewCommand{
			OrganizationID: req.OrganizationID,
			ExecutedBy:     actor,
			RequestID:      &requestID,
			Notes:          req.Notes,
		}, usage)
	case model.OperationCancellation:
		reason := model.CancellationOther
		if req.CancellationReason != nil {
			reason = *req.CancellationReason
		}
		return w.machine.cancel(ctx, CancelCommand{
			OrganizationID: req.OrganizationID,
			Reason:         reason,
			Description:    req.Notes,
			Immediate:      req.Immediate,
			ExecutedBy:     actor,
			RequestID:      &requestID,
			Notes:          req.Notes,
		})
	}
	return nil, newValidationError("operation_type", ErrInvalidOperationType)
}

// CancelRequest withdraws a pending request on behalf of its requester.
func (w *Workflow) CancelRequest(ctx context.Context, requestID, requesterID uuid.UUID) (*model.SubscriptionRequest, error) {
	req, err := w.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequestedByUserID != requesterID {
		return nil, newValidationError("requested_by", ErrNotRequester)
	}
	if req.Status.IsTerminal() {
		return nil, newValidationError("status", ErrRequestNotPending)
	}

	next := *req
	now := w.clock.Now()
	next.Status = model.RequestStatusCancelled
	next.ProcessedAt = &now
	if err := w.repos.Requests.ResolvePending(ctx, &next); err != nil {
		if errors.Is(err, outbound.ErrVersionConflict) {
			return nil, newValidationError("status", ErrRequestNotPending)
		}
		return nil, fmt.Errorf("cancel request: %w", err)
	}
	w.audit.request(ctx, &next, requesterID.String())
	return &next, nil
}

// ListRequests lists the newest requests of an organization first.
func (w *Workflow) ListRequests(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionRequest, error) {
	reqs, err := w.repos.Requests.ListByOrganization(ctx, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

func (w *Workflow) getRequest(ctx context.Context, id uuid.UUID) (*model.SubscriptionRequest, error) {
	req, err := w.repos.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, notFound("request", id)
	}
	return req, nil
}

func (w *Workflow) replay(ctx context.Context, req *model.SubscriptionRequest) (*ProcessResult, error) {
	result := &ProcessResult{Request: req, Replayed: true}
	if req.OperationID != nil {
		op, err := w.repos.Operations.GetByID(ctx, *req.OperationID)
		if err != nil {
			return nil, fmt.Errorf("get operation: %w", err)
		}
		result.Operation = op
	}
	return result, nil
}

func derefID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
