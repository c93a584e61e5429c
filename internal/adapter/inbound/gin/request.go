package gin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/inbound"
)

// requestHandler implements inbound.RequestHttpPort.
type requestHandler struct {
	domain subscription.SubscriptionDomain
}

// NewRequestHandler creates a new change request HTTP handler.
func NewRequestHandler(domain subscription.SubscriptionDomain) inbound.RequestHttpPort {
	return &requestHandler{domain: domain}
}

type submitRequest struct {
	OperationType      model.OperationType       `json:"operation_type" binding:"required"`
	PlanID             *uuid.UUID                `json:"plan_id"`
	Currency           string                    `json:"currency"`
	RequestedStartDate *time.Time                `json:"requested_start_date"`
	Immediate          bool                      `json:"immediate"`
	CancellationReason *model.CancellationReason `json:"cancellation_reason"`
	Notes              string                    `json:"notes"`
}

func (h *requestHandler) SubmitRequest(c *gin.Context) {
	orgID, actor, ok := organizationParam(c)
	if !ok {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	created, err := h.domain.SubmitChangeRequest(c.Request.Context(), subscription.SubmitInput{
		OrganizationID:     orgID,
		OperationType:      req.OperationType,
		PlanID:             req.PlanID,
		RequestedBy:        actor.UserID,
		Notes:              req.Notes,
		Currency:           strings.ToUpper(req.Currency),
		RequestedStartDate: req.RequestedStartDate,
		Immediate:          req.Immediate,
		CancellationReason: req.CancellationReason,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *requestHandler) ListRequests(c *gin.Context) {
	orgID, _, ok := organizationParam(c)
	if !ok {
		return
	}

	reqs, err := h.domain.ListChangeRequests(c.Request.Context(), orgID, queryLimit(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

type processRequest struct {
	Decision      model.Decision `json:"decision" binding:"required"`
	AdminNotes    string         `json:"admin_notes"`
	EffectiveDate *time.Time     `json:"effective_date"`
}

func (h *requestHandler) ProcessRequest(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.domain.ProcessRequest(c.Request.Context(), subscription.ProcessInput{
		RequestID:     id,
		Decision:      req.Decision,
		ProcessedBy:   actor.UserID,
		AdminNotes:    req.AdminNotes,
		EffectiveDate: req.EffectiveDate,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *requestHandler) CancelRequest(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	cancelled, err := h.domain.CancelChangeRequest(c.Request.Context(), id, actor.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

// Compile-time check
var _ inbound.RequestHttpPort = (*requestHandler)(nil)
