package subscription

import (
	"fmt"

	"github.com/leobar37/gymspace-sub006/internal/model"
)

// statusTransitions defines valid subscription status transitions.
// UPGRADING and DOWNGRADING are transient: a plan change passes through them and resolves
// back to ACTIVE inside the same write.
var statusTransitions = map[model.SubscriptionStatus][]model.SubscriptionStatus{
	model.SubscriptionStatusPendingActivation: {
		model.SubscriptionStatusActive,
		model.SubscriptionStatusCancelled,
	},
	model.SubscriptionStatusActive: {
		model.SubscriptionStatusActive, // renewal, deferred cancellation
		model.SubscriptionStatusUpgrading,
		model.SubscriptionStatusDowngrading,
		model.SubscriptionStatusExpired,
		model.SubscriptionStatusCancelled,
	},
	model.SubscriptionStatusUpgrading:   {model.SubscriptionStatusActive},
	model.SubscriptionStatusDowngrading: {model.SubscriptionStatusActive},
	model.SubscriptionStatusExpired:     {}, // Terminal state
	model.SubscriptionStatusCancelled:   {}, // Terminal state
}

// CanTransition checks if a transition between two statuses is valid.
func CanTransition(from, to model.SubscriptionStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given status.
func AllowedTransitions(from model.SubscriptionStatus) []model.SubscriptionStatus {
	return statusTransitions[from]
}

// checkPath validates a sequence of transitions starting at from.
func checkPath(from model.SubscriptionStatus, path ...model.SubscriptionStatus) error {
	current := from
	for _, next := range path {
		if !CanTransition(current, next) {
			return newValidationError("status", fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, current, next))
		}
		current = next
	}
	return nil
}
