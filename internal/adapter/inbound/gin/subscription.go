package gin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/port/inbound"
)

// subscriptionHandler implements inbound.SubscriptionHttpPort.
type subscriptionHandler struct {
	domain subscription.SubscriptionDomain
}

// NewSubscriptionHandler creates a new subscription HTTP handler.
func NewSubscriptionHandler(domain subscription.SubscriptionDomain) inbound.SubscriptionHttpPort {
	return &subscriptionHandler{domain: domain}
}

func (h *subscriptionHandler) GetStatus(c *gin.Context) {
	orgID, _, ok := organizationParam(c)
	if !ok {
		return
	}

	view, err := h.domain.GetSubscriptionStatus(c.Request.Context(), orgID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type activateRequest struct {
	PlanID          *uuid.UUID `json:"plan_id"`
	Currency        string     `json:"currency" binding:"required"`
	StartDate       *time.Time `json:"start_date"`
	AwaitPayment    bool       `json:"await_payment"`
	Notes           string     `json:"notes"`
	ExpectedVersion *int64     `json:"expected_version"`
}

func (h *subscriptionHandler) Activate(c *gin.Context) {
	orgID, actor, ok := organizationParam(c)
	if !ok {
		return
	}

	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	cmd := subscription.ActivateCommand{
		OrganizationID:  orgID,
		Currency:        strings.ToUpper(req.Currency),
		AwaitPayment:    req.AwaitPayment,
		ExecutedBy:      actorName(actor),
		Notes:           req.Notes,
		ExpectedVersion: req.ExpectedVersion,
	}
	if req.PlanID != nil {
		cmd.PlanID = *req.PlanID
	}
	if req.StartDate != nil {
		cmd.StartDate = *req.StartDate
	}

	result, err := h.domain.Activate(c.Request.Context(), cmd)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *subscriptionHandler) CheckEntitlement(c *gin.Context) {
	orgID, _, ok := organizationParam(c)
	if !ok {
		return
	}

	resource := subscription.Resource(strings.ToLower(c.Param("resource")))
	if !resource.IsValid() {
		badRequest(c, "unknown resource "+string(resource))
		return
	}

	decision, err := h.domain.CheckEntitlement(c.Request.Context(), orgID, resource)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (h *subscriptionHandler) ListOperations(c *gin.Context) {
	orgID, _, ok := organizationParam(c)
	if !ok {
		return
	}

	ops, err := h.domain.ListOperations(c.Request.Context(), orgID, queryLimit(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

// Compile-time check
var _ inbound.SubscriptionHttpPort = (*subscriptionHandler)(nil)
