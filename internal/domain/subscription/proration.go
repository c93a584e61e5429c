package subscription

import (
	"time"

	"github.com/leobar37/gymspace-sub006/internal/model"
)

// Period is a half-open billing period [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ProrationResult is the credit or charge of a mid-period plan switch.
// A positive Amount is an additional charge; a negative Amount is a credit owed.
type ProrationResult struct {
	Amount        Money `json:"amount"`
	UnusedCredit  Money `json:"unused_credit"`
	NewCharge     Money `json:"new_charge"`
	RemainingDays int   `json:"remaining_days"`
	TotalDays     int   `json:"total_days"`
	IsRenewal     bool  `json:"is_renewal"`
}

// ComputeProration computes the proration of switching from currentPlan to newPlan at
// effectiveDate within currentPeriod. Amount is rounded exactly once, half-to-even, to the
// currency's minor unit. UnusedCredit and NewCharge are rounded for display only.
func ComputeProration(currentPlan *model.SubscriptionPlan, currentPeriod Period, newPlan *model.SubscriptionPlan, effectiveDate time.Time, currency string) (ProrationResult, error) {
	totalDays := daysBetween(currentPeriod.Start, currentPeriod.End)
	if totalDays <= 0 {
		return ProrationResult{}, &ProrationError{Message: "billing period has no length"}
	}
	if calendarDay(effectiveDate).Before(calendarDay(currentPeriod.Start)) {
		return ProrationResult{}, &ProrationError{Message: "effective date is before the billing period start"}
	}

	currentPrice, err := resolvePrice(currentPlan, currency)
	if err != nil {
		return ProrationResult{}, err
	}
	newPrice, err := resolvePrice(newPlan, currency)
	if err != nil {
		return ProrationResult{}, err
	}

	if !effectiveDate.Before(currentPeriod.End) {
		zero := Zero(currentPrice.Currency())
		return ProrationResult{
			Amount:       zero,
			UnusedCredit: zero,
			NewCharge:    zero,
			TotalDays:    totalDays,
			IsRenewal:    true,
		}, nil
	}

	remaining := daysBetween(effectiveDate, currentPeriod.End)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > totalDays {
		remaining = totalDays
	}

	credit := currentPrice.MulRatio(int64(remaining), int64(totalDays))
	charge := newPrice.MulRatio(int64(remaining), int64(totalDays))

	// Both terms share the denominator, so the difference is taken on the exact numerators.
	diff := NewMoney(newPrice.Amount().Sub(currentPrice.Amount()), currentPrice.Currency())
	amount := diff.MulRatio(int64(remaining), int64(totalDays)).Round()

	return ProrationResult{
		Amount:        amount,
		UnusedCredit:  credit.Round(),
		NewCharge:     charge.Round(),
		RemainingDays: remaining,
		TotalDays:     totalDays,
	}, nil
}

// daysBetween counts UTC calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(calendarDay(b).Sub(calendarDay(a)).Hours() / 24)
}

func calendarDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
