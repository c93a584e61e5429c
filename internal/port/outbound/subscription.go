package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
)

// ErrVersionConflict is returned by conditional writes when the stored version moved.
var ErrVersionConflict = errors.New("version conflict")

// PlanDatabasePort defines plan persistence operations.
type PlanDatabasePort interface {
	// GetByID gets a plan by ID. Returns nil, nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error)

	// ListActive lists all active plans ordered by sort order, then name.
	ListActive(ctx context.Context) ([]*model.SubscriptionPlan, error)

	// Create creates a new plan.
	Create(ctx context.Context, plan *model.SubscriptionPlan) error

	// Update writes the plan if its stored version equals expectedVersion.
	Update(ctx context.Context, plan *model.SubscriptionPlan, expectedVersion int64) error

	// CountReferences counts non-terminal subscriptions on the plan.
	CountReferences(ctx context.Context, planID uuid.UUID) (int64, error)
}

// SubscriptionCursor is a keyset position in the overdue subscription listing.
type SubscriptionCursor struct {
	SubscriptionEnd time.Time
	OrganizationID  uuid.UUID
}

// OrganizationSubscriptionDatabasePort defines subscription row persistence.
type OrganizationSubscriptionDatabasePort interface {
	// GetByOrganizationID gets the subscription of an organization. Returns nil, nil when absent.
	GetByOrganizationID(ctx context.Context, orgID uuid.UUID) (*model.OrganizationSubscription, error)

	// Create inserts the first row of an organization.
	// Returns ErrVersionConflict if a row already exists.
	Create(ctx context.Context, sub *model.OrganizationSubscription) error

	// UpdateIfVersion writes sub if the stored version equals expectedVersion.
	// sub.Version must already hold the new version.
	// Returns ErrVersionConflict when no row matched.
	UpdateIfVersion(ctx context.Context, sub *model.OrganizationSubscription, expectedVersion int64) error

	// ListActiveEndingBefore lists ACTIVE rows whose period ended before t, ordered by
	// (subscription_end, organization_id) and starting after the cursor when one is given.
	ListActiveEndingBefore(ctx context.Context, t time.Time, after *SubscriptionCursor, limit int) ([]*model.OrganizationSubscription, error)

	// ListByStatus lists rows in the given statuses.
	ListByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]*model.OrganizationSubscription, error)
}

// SubscriptionOperationDatabasePort defines operation log persistence. The log is append-only.
type SubscriptionOperationDatabasePort interface {
	// Append inserts a new operation row.
	Append(ctx context.Context, op *model.SubscriptionOperation) error

	// GetByID gets an operation by ID. Returns nil, nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionOperation, error)

	// ListByOrganization lists the newest operations of an organization first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionOperation, error)

	// ListEffectiveBefore lists operations in currency with effective date before t,
	// ordered by effective date then creation time.
	ListEffectiveBefore(ctx context.Context, currency string, t time.Time) ([]*model.SubscriptionOperation, error)
}

// SubscriptionRequestDatabasePort defines change request persistence.
type SubscriptionRequestDatabasePort interface {
	// Create creates a new request.
	Create(ctx context.Context, req *model.SubscriptionRequest) error

	// GetByID gets a request by ID. Returns nil, nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionRequest, error)

	// ResolvePending writes the terminal state of req if the stored request is still pending.
	// Returns ErrVersionConflict when the request already left pending.
	ResolvePending(ctx context.Context, req *model.SubscriptionRequest) error

	// HasPending reports whether the organization has a pending request of the given type.
	HasPending(ctx context.Context, orgID uuid.UUID, opType model.OperationType) (bool, error)

	// ListByOrganization lists the newest requests of an organization first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionRequest, error)
}

// CancellationRecordDatabasePort defines cancellation record persistence.
type CancellationRecordDatabasePort interface {
	// Create creates a new record.
	Create(ctx context.Context, rec *model.CancellationRecord) error

	// GetPendingTermination gets the deferred cancellation effective at or after since.
	// Returns nil, nil when none.
	GetPendingTermination(ctx context.Context, orgID uuid.UUID, since time.Time) (*model.CancellationRecord, error)
}

// ScheduledChangeDatabasePort defines deferred plan change persistence.
type ScheduledChangeDatabasePort interface {
	// Create creates a new scheduled change.
	Create(ctx context.Context, change *model.ScheduledChange) error

	// GetScheduled gets the live scheduled change of an organization. Returns nil, nil when none.
	GetScheduled(ctx context.Context, orgID uuid.UUID) (*model.ScheduledChange, error)

	// ResolveScheduled moves every scheduled change of the organization to status.
	ResolveScheduled(ctx context.Context, orgID uuid.UUID, status model.ScheduledChangeStatus, at time.Time) (int64, error)

	// Resolve moves a single scheduled change to status.
	Resolve(ctx context.Context, id uuid.UUID, status model.ScheduledChangeStatus, at time.Time) error
}

// UsageSnapshotPort reads organization resource counts from the system that owns them.
type UsageSnapshotPort interface {
	// GetUsage returns the current usage. Fails with ErrUsageTimeout or ErrUsageUnavailable.
	GetUsage(ctx context.Context, orgID uuid.UUID) (*model.UsageSnapshot, error)
}

// Usage provider errors.
var (
	ErrUsageTimeout     = errors.New("usage provider timeout")
	ErrUsageUnavailable = errors.New("usage provider unavailable")
)

// AuditSinkPort receives audit events. Record never blocks on or reports delivery.
type AuditSinkPort interface {
	// Record hands an event to the sink.
	Record(ctx context.Context, event *model.AuditEvent)
}

// ReportStorePort persists generated analytics reports.
type ReportStorePort interface {
	// Save stores the report and returns its key.
	Save(ctx context.Context, report *model.AnalyticsReport) (string, error)
}

// AuditEventDatabasePort defines audit event persistence.
type AuditEventDatabasePort interface {
	// CreateBatch inserts events.
	CreateBatch(ctx context.Context, events []*model.AuditEvent) error

	// ListByOrganization lists the newest events of an organization first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.AuditEvent, error)
}
