package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"go.uber.org/zap"
)

// Resource is a plan-limited resource.
type Resource string

const (
	ResourceGyms    Resource = "gyms"
	ResourceClients Resource = "clients"
	ResourceUsers   Resource = "users"
	ResourceAll     Resource = "all"
)

// IsValid checks if the resource is valid.
func (r Resource) IsValid() bool {
	switch r {
	case ResourceGyms, ResourceClients, ResourceUsers, ResourceAll:
		return true
	}
	return false
}

// Denial reasons.
const (
	ReasonLimitExceeded    = "limit_exceeded"
	ReasonUsageUnavailable = "usage_unavailable"
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed       bool          `json:"allowed"`
	Reason        string        `json:"reason,omitempty"`
	Breaches      []LimitBreach `json:"breaches,omitempty"`
	Utilization   float64       `json:"utilization"`
	NearingLimits bool          `json:"nearing_limits"`
}

// Primary returns the first failing rule, if any.
func (d Decision) Primary() (LimitBreach, bool) {
	if len(d.Breaches) == 0 {
		return LimitBreach{}, false
	}
	return d.Breaches[0], true
}

// Limits are the organization-wide limits derived from a plan.
type Limits struct {
	MaxGyms    int64 `json:"max_gyms"`
	MaxClients int64 `json:"max_clients"`
	MaxUsers   int64 `json:"max_users"`
}

// LimitsOf returns the aggregate limits of a plan.
func LimitsOf(plan *model.SubscriptionPlan) Limits {
	return Limits{
		MaxGyms:    int64(plan.MaxGyms),
		MaxClients: plan.ClientLimit(),
		MaxUsers:   plan.UserLimit(),
	}
}

// Enforcer checks usage against plan limits.
type Enforcer struct {
	usage     outbound.UsageSnapshotPort
	threshold float64
	timeout   time.Duration
	observer  Observer
	logger    *zap.Logger
}

// EnforcerConfig holds entitlement settings.
type EnforcerConfig struct {
	// NearingThreshold is the utilization percentage reported as nearing limits.
	NearingThreshold float64
	// UsageTimeout bounds every usage lookup.
	UsageTimeout time.Duration
}

// NewEnforcer creates a new entitlement enforcer.
func NewEnforcer(usage outbound.UsageSnapshotPort, cfg EnforcerConfig, observer Observer, logger *zap.Logger) *Enforcer {
	if cfg.NearingThreshold <= 0 {
		cfg.NearingThreshold = 80
	}
	return &Enforcer{
		usage:     usage,
		threshold: cfg.NearingThreshold,
		timeout:   cfg.UsageTimeout,
		observer:  observerOrNop(observer),
		logger:    logger,
	}
}

// Threshold returns the nearing-limits percentage.
func (e *Enforcer) Threshold() float64 {
	return e.threshold
}

// CheckLimit evaluates every rule for resource independently. Breaches are ordered
// gyms, clients, users.
func (e *Enforcer) CheckLimit(plan *model.SubscriptionPlan, usage *model.UsageSnapshot, resource Resource) Decision {
	return checkLimit(plan, usage, resource, e.threshold)
}

func checkLimit(plan *model.SubscriptionPlan, usage *model.UsageSnapshot, resource Resource, threshold float64) Decision {
	limits := LimitsOf(plan)
	var breaches []LimitBreach

	if resource == ResourceGyms || resource == ResourceAll {
		if usage.GymCount > limits.MaxGyms {
			breaches = append(breaches, LimitBreach{Resource: ResourceGyms, Current: usage.GymCount, Limit: limits.MaxGyms})
		}
	}
	if resource == ResourceClients || resource == ResourceAll {
		if usage.TotalClients > limits.MaxClients {
			breaches = append(breaches, LimitBreach{Resource: ResourceClients, Current: usage.TotalClients, Limit: limits.MaxClients})
		}
	}
	if resource == ResourceUsers || resource == ResourceAll {
		if usage.TotalUsers > limits.MaxUsers {
			breaches = append(breaches, LimitBreach{Resource: ResourceUsers, Current: usage.TotalUsers, Limit: limits.MaxUsers})
		}
	}

	utilization := Utilization(plan, usage)
	d := Decision{
		Allowed:       len(breaches) == 0,
		Breaches:      breaches,
		Utilization:   utilization,
		NearingLimits: utilization >= threshold,
	}
	if !d.Allowed {
		d.Reason = ReasonLimitExceeded
	}
	return d
}

// Utilization returns the highest usage ratio across the three limits, as a percentage.
// It is informational and never denies an action.
func Utilization(plan *model.SubscriptionPlan, usage *model.UsageSnapshot) float64 {
	limits := LimitsOf(plan)
	highest := ratio(usage.GymCount, limits.MaxGyms)
	if r := ratio(usage.TotalClients, limits.MaxClients); r > highest {
		highest = r
	}
	if r := ratio(usage.TotalUsers, limits.MaxUsers); r > highest {
		highest = r
	}
	return highest * 100
}

func ratio(current, limit int64) float64 {
	if limit <= 0 {
		if current > 0 {
			return float64(current)
		}
		return 0
	}
	return float64(current) / float64(limit)
}

// Snapshot fetches the organization's usage under the configured timeout.
// Any provider failure is returned wrapped in ErrUsageUnavailable.
func (e *Enforcer) Snapshot(ctx context.Context, orgID uuid.UUID) (*model.UsageSnapshot, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	usage, err := e.usage.GetUsage(ctx, orgID)
	if err == nil && usage == nil {
		err = outbound.ErrUsageUnavailable
	}
	if err != nil {
		reason := "unavailable"
		if errors.Is(err, outbound.ErrUsageTimeout) || errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		e.observer.UsageLookupFailed(reason)
		e.logger.Warn("usage snapshot unavailable, failing closed",
			zap.String("organization_id", orgID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUsageUnavailable, err)
	}
	return usage, nil
}

// CheckUsage fetches the organization's usage and checks it against plan. When the
// snapshot cannot be read the decision is denied and the error wraps ErrUsageUnavailable.
func (e *Enforcer) CheckUsage(ctx context.Context, plan *model.SubscriptionPlan, orgID uuid.UUID, resource Resource) (Decision, *model.UsageSnapshot, error) {
	if !resource.IsValid() {
		return Decision{}, nil, invalidField("resource", "unknown resource %q", resource)
	}

	usage, err := e.Snapshot(ctx, orgID)
	if err != nil {
		return Decision{Allowed: false, Reason: ReasonUsageUnavailable}, nil, err
	}
	return e.CheckLimit(plan, usage, resource), usage, nil
}

// usageSet holds usage snapshots read before a transaction opens, by organization.
type usageSet map[uuid.UUID]*model.UsageSnapshot

// usageRequiredError aborts a transition that reached a limit check without a
// snapshot. The caller reads the snapshot outside the transaction and runs again.
type usageRequiredError struct {
	OrganizationID uuid.UUID
}

func (e *usageRequiredError) Error() string {
	return fmt.Sprintf("usage snapshot required for organization %s", e.OrganizationID)
}

func needsUsage(err error) bool {
	var required *usageRequiredError
	return errors.As(err, &required)
}

// requireWithinLimits returns a LimitExceededError when the snapshot of orgID breaches
// any limit of plan.
func (e *Enforcer) requireWithinLimits(plan *model.SubscriptionPlan, orgID uuid.UUID, usage usageSet) error {
	snapshot, ok := usage[orgID]
	if !ok {
		return &usageRequiredError{OrganizationID: orgID}
	}
	d := e.CheckLimit(plan, snapshot, ResourceAll)
	if !d.Allowed {
		return &LimitExceededError{OrganizationID: orgID, PlanID: plan.ID, Breaches: d.Breaches}
	}
	return nil
}
