package gin

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/inbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
)

// analyticsHandler implements inbound.AnalyticsHttpPort.
type analyticsHandler struct {
	domain subscription.SubscriptionDomain
	clock  clock.Clock
}

// NewAnalyticsHandler creates a new analytics HTTP handler.
func NewAnalyticsHandler(domain subscription.SubscriptionDomain, clk clock.Clock) inbound.AnalyticsHttpPort {
	return &analyticsHandler{domain: domain, clock: clk}
}

// GetAnalytics serves ?currency=&start=&end=&granularity=&nearing_limits=.
// Without start and end the current calendar month is reported.
func (h *analyticsHandler) GetAnalytics(c *gin.Context) {
	currency := strings.ToUpper(c.Query("currency"))
	if currency == "" {
		badRequest(c, "currency is required")
		return
	}

	period, ok := h.parsePeriod(c)
	if !ok {
		return
	}

	includeNearing := false
	if raw := c.Query("nearing_limits"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid nearing_limits")
			return
		}
		includeNearing = v
	}

	report, err := h.domain.GetAnalytics(c.Request.Context(), subscription.AnalyticsQuery{
		Period:               period,
		Currency:             currency,
		Granularity:          model.Granularity(strings.ToLower(c.Query("granularity"))),
		IncludeNearingLimits: includeNearing,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *analyticsHandler) parsePeriod(c *gin.Context) (model.AnalyticsPeriod, bool) {
	now := h.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	period := model.AnalyticsPeriod{Start: monthStart, End: monthStart.AddDate(0, 1, 0)}

	if raw := c.Query("start"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			badRequest(c, "invalid start")
			return period, false
		}
		period.Start = t
	}
	if raw := c.Query("end"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			badRequest(c, "invalid end")
			return period, false
		}
		period.End = t
	}
	return period, true
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}

// Compile-time check
var _ inbound.AnalyticsHttpPort = (*analyticsHandler)(nil)
