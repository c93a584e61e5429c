package gin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/port/inbound"
)

// planHandler implements inbound.PlanHttpPort.
type planHandler struct {
	domain subscription.SubscriptionDomain
}

// NewPlanHandler creates a new plan HTTP handler.
func NewPlanHandler(domain subscription.SubscriptionDomain) inbound.PlanHttpPort {
	return &planHandler{domain: domain}
}

func (h *planHandler) ListPlans(c *gin.Context) {
	plans, err := h.domain.ListPlans(c.Request.Context(), strings.ToUpper(c.Query("currency")))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (h *planHandler) GetPlan(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	plan, err := h.domain.GetPlan(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *planHandler) CreatePlan(c *gin.Context) {
	var in subscription.PlanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	plan, err := h.domain.CreatePlan(c.Request.Context(), in)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *planHandler) UpdatePlan(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var upd subscription.PlanUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err.Error())
		return
	}

	plan, err := h.domain.UpdatePlan(c.Request.Context(), id, upd)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *planHandler) RetirePlan(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	plan, err := h.domain.RetirePlan(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// Compile-time check
var _ inbound.PlanHttpPort = (*planHandler)(nil)
