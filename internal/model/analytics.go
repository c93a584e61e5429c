package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Granularity is the bucket width of an analytics trend.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// IsValid checks if the granularity is valid.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// Next returns the start of the bucket following t.
func (g Granularity) Next(t time.Time) time.Time {
	switch g {
	case GranularityDay:
		return t.AddDate(0, 0, 1)
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// AnalyticsPeriod is a half-open interval [Start, End).
type AnalyticsPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the period.
func (p AnalyticsPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// AnalyticsMetrics are recurring-revenue metrics for a single currency.
type AnalyticsMetrics struct {
	Currency             string          `json:"currency"`
	NewMRR               decimal.Decimal `json:"new_mrr"`
	ChurnedMRR           decimal.Decimal `json:"churned_mrr"`
	ExpansionMRR         decimal.Decimal `json:"expansion_mrr"`
	ContractionMRR       decimal.Decimal `json:"contraction_mrr"`
	NetNewMRR            decimal.Decimal `json:"net_new_mrr"`
	MRR                  decimal.Decimal `json:"mrr"`
	ARR                  decimal.Decimal `json:"arr"`
	ActiveAtStart        int             `json:"active_at_start"`
	ActiveAtEnd          int             `json:"active_at_end"`
	NewSubscriptions     int             `json:"new_subscriptions"`
	ChurnedSubscriptions int             `json:"churned_subscriptions"`
	ChurnRate            decimal.Decimal `json:"churn_rate"`
	GrowthRate           decimal.Decimal `json:"growth_rate"`
}

// PlanBreakdownEntry summarises one plan's active subscriptions at period end.
type PlanBreakdownEntry struct {
	PlanID              uuid.UUID       `json:"plan_id"`
	PlanName            string          `json:"plan_name"`
	ActiveSubscriptions int             `json:"active_subscriptions"`
	MRR                 decimal.Decimal `json:"mrr"`
	Share               decimal.Decimal `json:"share"`
}

// TrendPoint holds the metrics of one trend bucket.
type TrendPoint struct {
	Period  AnalyticsPeriod  `json:"period"`
	Metrics AnalyticsMetrics `json:"metrics"`
}

// NearingLimitEntry is an organization whose usage is close to its plan limits.
type NearingLimitEntry struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	PlanID         uuid.UUID       `json:"plan_id"`
	Utilization    decimal.Decimal `json:"utilization"`
}

// NearingLimitsSummary lists organizations at or above the utilization threshold.
type NearingLimitsSummary struct {
	Threshold     decimal.Decimal     `json:"threshold"`
	Organizations []NearingLimitEntry `json:"organizations"`
	Unavailable   int                 `json:"unavailable"`
}

// AnalyticsReport is the full analytics view for one currency and period.
type AnalyticsReport struct {
	Period        AnalyticsPeriod       `json:"period"`
	Currency      string                `json:"currency"`
	Granularity   Granularity           `json:"granularity"`
	Metrics       AnalyticsMetrics      `json:"metrics"`
	PlanBreakdown []PlanBreakdownEntry  `json:"plan_breakdown"`
	Trend         []TrendPoint          `json:"trend"`
	NearingLimits *NearingLimitsSummary `json:"nearing_limits,omitempty"`
	GeneratedAt   time.Time             `json:"generated_at"`
}
