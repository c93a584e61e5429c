package metrics

import (
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
)

// planCache labels plan cache lookups.
const planCache = "plan"

// TransitionCompleted counts a finished transition.
func (m *Metrics) TransitionCompleted(operation, result string) {
	m.TransitionsTotal.WithLabelValues(operation, result).Inc()
}

// VersionConflict counts an optimistic concurrency conflict.
func (m *Metrics) VersionConflict(operation string) {
	m.VersionConflictsTotal.WithLabelValues(operation).Inc()
}

// PlanCacheLookup counts a plan cache hit or miss.
func (m *Metrics) PlanCacheLookup(hit bool) {
	if hit {
		m.RecordCacheHit(planCache)
		return
	}
	m.RecordCacheMiss(planCache)
}

// UsageLookupFailed counts a failed usage snapshot lookup.
func (m *Metrics) UsageLookupFailed(reason string) {
	m.UsageFailuresTotal.WithLabelValues(reason).Inc()
}

// ProrationComputed observes a proration amount.
func (m *Metrics) ProrationComputed(currency string, amount float64) {
	m.ProrationAmount.WithLabelValues(currency).Observe(amount)
}

// SweepCompleted counts rows the sweep resolved with result.
func (m *Metrics) SweepCompleted(result string, count int) {
	if count <= 0 {
		return
	}
	m.SweepRowsTotal.WithLabelValues(result).Add(float64(count))
}

// Compile-time check
var _ subscription.Observer = (*Metrics)(nil)
