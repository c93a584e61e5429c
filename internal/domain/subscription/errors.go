package subscription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error categories. Every typed error below matches exactly one of them through errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrLimitExceeded = errors.New("plan limit exceeded")
	ErrConflict      = errors.New("version conflict")
	ErrNotFound      = errors.New("not found")
	ErrProration     = errors.New("proration failed")
)

// Validation causes.
var (
	ErrUnsupportedCurrency   = errors.New("plan not offered in currency")
	ErrPlanInactive          = errors.New("plan is not active")
	ErrPlanReferenced        = errors.New("plan is referenced by a live subscription")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrSamePlan              = errors.New("organization is already on this plan")
	ErrOutsideRenewalWindow  = errors.New("subscription is outside the renewal window")
	ErrCancellationPending   = errors.New("subscription has a pending cancellation")
	ErrRequestNotPending     = errors.New("request is no longer pending")
	ErrNotRequester          = errors.New("only the requester may cancel a request")
	ErrSubscriptionExists    = errors.New("organization already has a live subscription")
	ErrInvalidDecision       = errors.New("invalid decision")
	ErrInvalidOperationType  = errors.New("invalid operation type")
	ErrInvalidPeriod         = errors.New("invalid period")
	ErrUnknownPaymentOutcome = errors.New("unknown payment outcome")
	ErrUsageUnavailable      = errors.New("usage snapshot unavailable")
	ErrNoDefaultPlan         = errors.New("no plan selected and no default plan configured")
	ErrInvalidCancelReason   = errors.New("invalid cancellation reason")
	ErrEffectiveDateRequired = errors.New("effective date is required")
	ErrNegativeRefund        = errors.New("refund amount must not be negative")
)

// ValidationError is a caller-correctable input problem. It is never retried.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, msg)
	}
	return "validation failed: " + msg
}

// Unwrap returns the cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func invalidField(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// LimitBreach describes one plan limit exceeded by current usage.
type LimitBreach struct {
	Resource Resource `json:"resource"`
	Current  int64    `json:"current"`
	Limit    int64    `json:"limit"`
}

// LimitExceededError reports every limit the usage breaches. Breaches[0] is the primary reason.
type LimitExceededError struct {
	OrganizationID uuid.UUID
	PlanID         uuid.UUID
	Breaches       []LimitBreach
}

func (e *LimitExceededError) Error() string {
	parts := make([]string, 0, len(e.Breaches))
	for _, b := range e.Breaches {
		parts = append(parts, fmt.Sprintf("%s %d/%d", b.Resource, b.Current, b.Limit))
	}
	return fmt.Sprintf("plan limit exceeded: %s", strings.Join(parts, ", "))
}

// Is matches ErrLimitExceeded.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// ConflictError is an optimistic-concurrency mismatch. The caller re-reads and retries.
type ConflictError struct {
	Resource        string
	ID              uuid.UUID
	ExpectedVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s %s: expected version %d", e.Resource, e.ID, e.ExpectedVersion)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFoundError is an unknown organization, plan or request id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// ProrationError is a proration request with dates outside the billing period or a
// zero-length period.
type ProrationError struct {
	Message string
}

func (e *ProrationError) Error() string {
	return "proration failed: " + e.Message
}

// Is matches ErrProration.
func (e *ProrationError) Is(target error) bool {
	return target == ErrProration
}
