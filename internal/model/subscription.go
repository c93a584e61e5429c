package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BillingFrequency represents how often a plan is billed.
type BillingFrequency string

const (
	BillingFrequencyMonthly    BillingFrequency = "monthly"
	BillingFrequencyQuarterly  BillingFrequency = "quarterly"
	BillingFrequencySemiannual BillingFrequency = "semiannual"
	BillingFrequencyAnnual     BillingFrequency = "annual"
)

// String returns the string representation of the billing frequency.
func (f BillingFrequency) String() string {
	return string(f)
}

// IsValid checks if the billing frequency is valid.
func (f BillingFrequency) IsValid() bool {
	return f.Months() > 0
}

// Months returns the number of months covered by one billing cycle, or 0 if unknown.
func (f BillingFrequency) Months() int {
	switch f {
	case BillingFrequencyMonthly:
		return 1
	case BillingFrequencyQuarterly:
		return 3
	case BillingFrequencySemiannual:
		return 6
	case BillingFrequencyAnnual:
		return 12
	}
	return 0
}

// DurationUnit is the unit of a plan's period length.
type DurationUnit string

const (
	DurationUnitDay   DurationUnit = "day"
	DurationUnitMonth DurationUnit = "month"
	DurationUnitYear  DurationUnit = "year"
)

// IsValid checks if the duration unit is valid.
func (u DurationUnit) IsValid() bool {
	switch u {
	case DurationUnitDay, DurationUnitMonth, DurationUnitYear:
		return true
	}
	return false
}

// AddTo returns t advanced by n units.
func (u DurationUnit) AddTo(t time.Time, n int) time.Time {
	switch u {
	case DurationUnitDay:
		return t.AddDate(0, 0, n)
	case DurationUnitYear:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, n, 0)
	}
}

// PriceMap maps an upper-case ISO 4217 currency code to a non-negative amount.
// A missing key means the plan is not offered in that currency.
type PriceMap map[string]decimal.Decimal

// SubscriptionPlan represents a billing plan an organization can subscribe to.
type SubscriptionPlan struct {
	ID               uuid.UUID                    `json:"id" gorm:"type:uuid;primaryKey"`
	Name             string                       `json:"name" gorm:"not null"`
	Description      string                       `json:"description"`
	Prices           datatypes.JSONType[PriceMap] `json:"prices" gorm:"not null"`
	BillingFrequency BillingFrequency             `json:"billing_frequency" gorm:"not null"`
	Duration         int                          `json:"duration" gorm:"not null"`
	DurationUnit     DurationUnit                 `json:"duration_unit" gorm:"not null"`
	MaxGyms          int                          `json:"max_gyms" gorm:"not null"`
	MaxClientsPerGym int                          `json:"max_clients_per_gym" gorm:"not null"`
	MaxUsersPerGym   int                          `json:"max_users_per_gym" gorm:"not null"`
	Features         datatypes.JSONMap            `json:"features"`
	IsActive         bool                         `json:"is_active" gorm:"not null;index"`
	IsPublic         bool                         `json:"is_public" gorm:"not null"`
	SortOrder        int                          `json:"sort_order" gorm:"not null"`
	Version          int64                        `json:"version" gorm:"not null"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

// TableName returns the database table name.
func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// PriceMap returns the plan's per-currency prices.
func (p *SubscriptionPlan) PriceMap() PriceMap {
	return p.Prices.Data()
}

// PriceFor returns the plan price in currency and whether the plan is offered in it.
func (p *SubscriptionPlan) PriceFor(currency string) (decimal.Decimal, bool) {
	amount, ok := p.Prices.Data()[currency]
	return amount, ok
}

// ClientLimit returns the organization-wide client limit.
func (p *SubscriptionPlan) ClientLimit() int64 {
	return int64(p.MaxGyms) * int64(p.MaxClientsPerGym)
}

// UserLimit returns the organization-wide user limit.
func (p *SubscriptionPlan) UserLimit() int64 {
	return int64(p.MaxGyms) * int64(p.MaxUsersPerGym)
}

// PeriodEnd returns the end of a period of this plan starting at start.
func (p *SubscriptionPlan) PeriodEnd(start time.Time) time.Time {
	return p.DurationUnit.AddTo(start, p.Duration)
}

// SubscriptionStatus represents the status of an organization subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingActivation SubscriptionStatus = "PENDING_ACTIVATION"
	SubscriptionStatusActive            SubscriptionStatus = "ACTIVE"
	SubscriptionStatusUpgrading         SubscriptionStatus = "UPGRADING"
	SubscriptionStatusDowngrading       SubscriptionStatus = "DOWNGRADING"
	SubscriptionStatusExpired           SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCancelled         SubscriptionStatus = "CANCELLED"
)

// String returns the string representation of the status.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsTerminal returns true for statuses that end a subscription period.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusExpired || s == SubscriptionStatusCancelled
}

// OrganizationSubscription is the single subscription row an organization owns.
type OrganizationSubscription struct {
	OrganizationID     uuid.UUID          `json:"organization_id" gorm:"type:uuid;primaryKey"`
	SubscriptionPlanID uuid.UUID          `json:"subscription_plan_id" gorm:"type:uuid;not null;index"`
	Status             SubscriptionStatus `json:"status" gorm:"not null;index"`
	Currency           string             `json:"currency" gorm:"size:3;not null"`
	SubscriptionStart  time.Time          `json:"subscription_start" gorm:"not null"`
	SubscriptionEnd    time.Time          `json:"subscription_end" gorm:"not null;index"`
	Version            int64              `json:"version" gorm:"not null"`
	Metadata           datatypes.JSONMap  `json:"metadata"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// TableName returns the database table name.
func (OrganizationSubscription) TableName() string {
	return "organization_subscriptions"
}

// DaysRemaining returns whole days left in the current period, never negative.
func (s *OrganizationSubscription) DaysRemaining(now time.Time) int {
	if !s.SubscriptionEnd.After(now) {
		return 0
	}
	return int(s.SubscriptionEnd.Sub(now).Hours() / 24)
}

// OperationType classifies a subscription operation.
type OperationType string

const (
	OperationActivation   OperationType = "activation"
	OperationUpgrade      OperationType = "upgrade"
	OperationDowngrade    OperationType = "downgrade"
	OperationRenewal      OperationType = "renewal"
	OperationCancellation OperationType = "cancellation"
	OperationExpiration   OperationType = "expiration"
)

// String returns the string representation of the operation type.
func (t OperationType) String() string {
	return string(t)
}

// IsRequestable reports whether customers may ask for this operation.
func (t OperationType) IsRequestable() bool {
	switch t {
	case OperationActivation, OperationUpgrade, OperationDowngrade, OperationRenewal, OperationCancellation:
		return true
	}
	return false
}

// NeedsPlan reports whether the operation targets a plan.
func (t OperationType) NeedsPlan() bool {
	return t == OperationActivation || t == OperationUpgrade || t == OperationDowngrade
}

// SubscriptionOperation is an append-only history row. Rows are never updated or deleted.
type SubscriptionOperation struct {
	ID              uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID  uuid.UUID           `json:"organization_id" gorm:"type:uuid;not null;index"`
	FromPlanID      *uuid.UUID          `json:"from_plan_id,omitempty" gorm:"type:uuid"`
	ToPlanID        uuid.UUID           `json:"to_plan_id" gorm:"type:uuid;not null"`
	OperationType   OperationType       `json:"operation_type" gorm:"not null;index"`
	ExecutedBy      string              `json:"executed_by" gorm:"not null"`
	EffectiveDate   time.Time           `json:"effective_date" gorm:"not null;index"`
	PreviousEndDate *time.Time          `json:"previous_end_date,omitempty"`
	NewEndDate      time.Time           `json:"new_end_date" gorm:"not null"`
	ProrationAmount decimal.NullDecimal `json:"proration_amount" gorm:"type:numeric(20,6)"`
	Currency        string              `json:"currency" gorm:"size:3;not null;index"`
	PlanAmount      decimal.Decimal     `json:"plan_amount" gorm:"type:numeric(20,6);not null"`
	BillingMonths   int                 `json:"billing_months" gorm:"not null"`
	FromStatus      SubscriptionStatus  `json:"from_status"`
	ResultingStatus SubscriptionStatus  `json:"resulting_status" gorm:"not null"`
	RequestID       *uuid.UUID          `json:"request_id,omitempty" gorm:"type:uuid"`
	Notes           string              `json:"notes"`
	CreatedAt       time.Time           `json:"created_at"`
}

// TableName returns the database table name.
func (SubscriptionOperation) TableName() string {
	return "subscription_operations"
}

// IsChurn reports whether the row moved a live subscription into a terminal status.
func (o *SubscriptionOperation) IsChurn() bool {
	return o.ResultingStatus.IsTerminal() && !o.FromStatus.IsTerminal() &&
		o.FromStatus != SubscriptionStatusPendingActivation
}

// RequestStatus represents the status of a change request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// IsTerminal returns true once a request has left pending.
func (s RequestStatus) IsTerminal() bool {
	return s != RequestStatusPending
}

// Decision is an admin's verdict on a pending request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// IsValid checks if the decision is valid.
func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// SubscriptionRequest is a customer-initiated change awaiting admin approval.
type SubscriptionRequest struct {
	ID                 uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID     uuid.UUID           `json:"organization_id" gorm:"type:uuid;not null;index"`
	SubscriptionPlanID *uuid.UUID          `json:"subscription_plan_id,omitempty" gorm:"type:uuid"`
	RequestedByUserID  uuid.UUID           `json:"requested_by_user_id" gorm:"type:uuid;not null"`
	Status             RequestStatus       `json:"status" gorm:"not null;index"`
	OperationType      OperationType       `json:"operation_type" gorm:"not null"`
	Currency           string              `json:"currency,omitempty" gorm:"size:3"`
	RequestedStartDate *time.Time          `json:"requested_start_date,omitempty"`
	Immediate          bool                `json:"immediate" gorm:"not null"`
	CancellationReason *CancellationReason `json:"cancellation_reason,omitempty"`
	Notes              string              `json:"notes"`
	AdminNotes         string              `json:"admin_notes"`
	ProcessedByUserID  *uuid.UUID          `json:"processed_by_user_id,omitempty" gorm:"type:uuid"`
	ProcessedAt        *time.Time          `json:"processed_at,omitempty"`
	OperationID        *uuid.UUID          `json:"operation_id,omitempty" gorm:"type:uuid"`
	ScheduledChangeID  *uuid.UUID          `json:"scheduled_change_id,omitempty" gorm:"type:uuid"`
	CreatedAt          time.Time           `json:"created_at"`
}

// TableName returns the database table name.
func (SubscriptionRequest) TableName() string {
	return "subscription_requests"
}

// CancellationReason enumerates why an organization cancelled.
type CancellationReason string

const (
	CancellationTooExpensive     CancellationReason = "too_expensive"
	CancellationMissingFeatures  CancellationReason = "missing_features"
	CancellationSwitchedProvider CancellationReason = "switched_provider"
	CancellationClosingBusiness  CancellationReason = "closing_business"
	CancellationTemporaryPause   CancellationReason = "temporary_pause"
	CancellationPaymentFailed    CancellationReason = "payment_failed"
	CancellationOther            CancellationReason = "other"
)

// IsValid checks if the reason is valid.
func (r CancellationReason) IsValid() bool {
	switch r {
	case CancellationTooExpensive, CancellationMissingFeatures, CancellationSwitchedProvider,
		CancellationClosingBusiness, CancellationTemporaryPause, CancellationPaymentFailed, CancellationOther:
		return true
	}
	return false
}

// CancellationRecord documents a cancellation and, when deferred, marks pending termination.
type CancellationRecord struct {
	ID                   uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID       uuid.UUID          `json:"organization_id" gorm:"type:uuid;not null;index"`
	Reason               CancellationReason `json:"reason" gorm:"not null"`
	ReasonDescription    string             `json:"reason_description"`
	EffectiveDate        time.Time          `json:"effective_date" gorm:"not null"`
	RefundAmount         decimal.Decimal    `json:"refund_amount" gorm:"type:numeric(20,6);not null"`
	Currency             string             `json:"currency" gorm:"size:3"`
	RetentionOffered     bool               `json:"retention_offered" gorm:"not null"`
	RetentionDetails     string             `json:"retention_details"`
	ImmediateTermination bool               `json:"immediate_termination" gorm:"not null"`
	ProcessedByUserID    string             `json:"processed_by_user_id" gorm:"not null"`
	ProcessedAt          time.Time          `json:"processed_at" gorm:"not null"`
}

// TableName returns the database table name.
func (CancellationRecord) TableName() string {
	return "cancellation_records"
}

// ScheduledChangeStatus represents the lifecycle of a deferred plan change.
type ScheduledChangeStatus string

const (
	ScheduledChangeScheduled  ScheduledChangeStatus = "scheduled"
	ScheduledChangeApplied    ScheduledChangeStatus = "applied"
	ScheduledChangeSuperseded ScheduledChangeStatus = "superseded"
	ScheduledChangeDiscarded  ScheduledChangeStatus = "discarded"
)

// ScheduledChange is a deferred upgrade or downgrade applied at the end of the current period.
type ScheduledChange struct {
	ID             uuid.UUID             `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID             `json:"organization_id" gorm:"type:uuid;not null;index"`
	RequestID      *uuid.UUID            `json:"request_id,omitempty" gorm:"type:uuid"`
	OperationType  OperationType         `json:"operation_type" gorm:"not null"`
	ToPlanID       uuid.UUID             `json:"to_plan_id" gorm:"type:uuid;not null"`
	EffectiveDate  time.Time             `json:"effective_date" gorm:"not null"`
	Status         ScheduledChangeStatus `json:"status" gorm:"not null;index"`
	CreatedBy      string                `json:"created_by" gorm:"not null"`
	CreatedAt      time.Time             `json:"created_at"`
	ResolvedAt     *time.Time            `json:"resolved_at,omitempty"`
}

// TableName returns the database table name.
func (ScheduledChange) TableName() string {
	return "scheduled_changes"
}

// UsageSnapshot is a point-in-time count of an organization's resources.
// It is supplied by an external provider and never persisted here.
type UsageSnapshot struct {
	GymCount     int64     `json:"gym_count"`
	TotalClients int64     `json:"total_clients"`
	TotalUsers   int64     `json:"total_users"`
	CapturedAt   time.Time `json:"captured_at"`
}

// AuditEventKind classifies audit events.
type AuditEventKind string

const (
	AuditKindSubscriptionOperation AuditEventKind = "subscription_operation"
	AuditKindRequestStatus         AuditEventKind = "request_status"
)

// AuditEvent is a record sent to the audit sink.
type AuditEvent struct {
	ID             uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	Kind           AuditEventKind    `json:"kind" gorm:"not null;index"`
	OrganizationID uuid.UUID         `json:"organization_id" gorm:"type:uuid;not null;index"`
	SubjectID      uuid.UUID         `json:"subject_id" gorm:"type:uuid;not null"`
	Action         string            `json:"action" gorm:"not null"`
	Actor          string            `json:"actor"`
	Payload        datatypes.JSONMap `json:"payload"`
	OccurredAt     time.Time         `json:"occurred_at" gorm:"not null"`
}

// TableName returns the database table name.
func (AuditEvent) TableName() string {
	return "subscription_audit_events"
}

// PaymentOutcomeKind is the result reported by the payment gateway.
type PaymentOutcomeKind string

const (
	PaymentSucceeded  PaymentOutcomeKind = "succeeded"
	PaymentFailed     PaymentOutcomeKind = "failed"
	PaymentAuthorized PaymentOutcomeKind = "authorized"
)

// IsValid checks if the outcome kind is valid.
func (k PaymentOutcomeKind) IsValid() bool {
	switch k {
	case PaymentSucceeded, PaymentFailed, PaymentAuthorized:
		return true
	}
	return false
}

// PaymentOutcome is the gateway-agnostic result of a payment. Reference is either a
// SubscriptionRequest id or an organization id.
type PaymentOutcome struct {
	Reference  uuid.UUID          `json:"reference"`
	Outcome    PaymentOutcomeKind `json:"outcome"`
	ReceivedAt time.Time          `json:"received_at"`
}
