package gin

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/inbound"
	apperrors "github.com/leobar37/gymspace-sub006/internal/shared/errors"
	"github.com/leobar37/gymspace-sub006/internal/shared/events"
)

// EventPublisher publishes domain events. *events.Bus implements it.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// paymentHandler implements inbound.PaymentHttpPort.
type paymentHandler struct {
	publisher EventPublisher
}

// NewPaymentHandler creates a new payment notification HTTP handler.
func NewPaymentHandler(publisher EventPublisher) inbound.PaymentHttpPort {
	return &paymentHandler{publisher: publisher}
}

type outcomeRequest struct {
	Reference uuid.UUID `json:"reference" binding:"required"`
	Outcome   string    `json:"outcome" binding:"required"`
	Provider  string    `json:"provider"`
}

// ReceiveOutcome publishes a gateway payment outcome to the event bus.
// Handlers run synchronously, so their errors are reported to the caller.
func (h *paymentHandler) ReceiveOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	kind := model.PaymentOutcomeKind(strings.ToLower(req.Outcome))
	if !kind.IsValid() {
		appErr := apperrors.ValidationError("unknown payment outcome " + req.Outcome)
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	event := events.NewPaymentOutcomeReceivedEvent(model.PaymentOutcome{
		Reference: req.Reference,
		Outcome:   kind,
	}, req.Provider)

	if err := h.publisher.Publish(c.Request.Context(), event); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id":  event.EventID(),
		"reference": req.Reference,
		"outcome":   kind,
	})
}

// Compile-time check
var _ inbound.PaymentHttpPort = (*paymentHandler)(nil)
