package subscription

import (
	"context"
	"fmt"

	"github.com/leobar37/gymspace-sub006/internal/model"
	"go.uber.org/zap"
)

// Payment outcome actions.
const (
	PaymentActionApproved  = "request_approved"
	PaymentActionRejected  = "request_rejected"
	PaymentActionConfirmed = "activation_confirmed"
	PaymentActionFailed    = "activation_failed"
	PaymentActionIgnored   = "ignored"
)

// PaymentResult reports what a payment outcome changed.
type PaymentResult struct {
	Action    string                       `json:"action"`
	Request   *model.SubscriptionRequest   `json:"request,omitempty"`
	Operation *model.SubscriptionOperation `json:"operation,omitempty"`
}

// HandlePaymentOutcome applies a payment gateway outcome. The reference is matched
// first against pending requests, then against organizations awaiting activation.
// Authorized outcomes only confirm the payment is in flight and change nothing.
func (d *Domain) HandlePaymentOutcome(ctx context.Context, outcome model.PaymentOutcome) (*PaymentResult, error) {
	if !outcome.Outcome.IsValid() {
		return nil, newValidationError("outcome", ErrUnknownPaymentOutcome)
	}
	log := d.logger.With(
		zap.String("reference", outcome.Reference.String()),
		zap.String("outcome", string(outcome.Outcome)),
	)
	if outcome.Outcome == model.PaymentAuthorized {
		log.Info("payment authorized")
		return &PaymentResult{Action: PaymentActionIgnored}, nil
	}

	req, err := d.repos.Requests.GetByID(ctx, outcome.Reference)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req != nil {
		decision := model.DecisionApproved
		action := PaymentActionApproved
		notes := "payment succeeded"
		if outcome.Outcome == model.PaymentFailed {
			decision = model.DecisionRejected
			action = PaymentActionRejected
			notes = "payment failed"
		}
		res, err := d.workflow.Process(ctx, ProcessInput{
			RequestID:  req.ID,
			Decision:   decision,
			AdminNotes: notes,
		})
		if err != nil {
			return nil, err
		}
		if res.Replayed {
			action = PaymentActionIgnored
		}
		log.Info("payment outcome applied to request", zap.String("action", action))
		return &PaymentResult{Action: action, Request: res.Request, Operation: res.Operation}, nil
	}

	sub, err := d.repos.Subscriptions.GetByOrganizationID(ctx, outcome.Reference)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return nil, &NotFoundError{Resource: "payment reference", ID: outcome.Reference.String()}
	}
	if sub.Status != model.SubscriptionStatusPendingActivation {
		log.Info("payment outcome ignored", zap.String("status", string(sub.Status)))
		return &PaymentResult{Action: PaymentActionIgnored}, nil
	}

	var res *TransitionResult
	action := PaymentActionConfirmed
	if outcome.Outcome == model.PaymentSucceeded {
		res, err = d.machine.ConfirmActivation(ctx, sub.OrganizationID, "", nil)
	} else {
		action = PaymentActionFailed
		res, err = d.machine.FailActivation(ctx, sub.OrganizationID, "", nil)
	}
	if err != nil {
		return nil, err
	}
	log.Info("payment outcome applied to activation", zap.String("action", action))
	return &PaymentResult{Action: action, Operation: res.Operation}, nil
}
