package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/port/inbound"
)

// adminHandler implements inbound.AdminHttpPort.
type adminHandler struct {
	domain subscription.SubscriptionDomain
}

// NewAdminHandler creates a new operational HTTP handler.
func NewAdminHandler(domain subscription.SubscriptionDomain) inbound.AdminHttpPort {
	return &adminHandler{domain: domain}
}

// RunSweep runs the expiry sweep as of ?at=, or now. Per-row failures are
// counted in the result instead of failing the request.
func (h *adminHandler) RunSweep(c *gin.Context) {
	var at time.Time
	if raw := c.Query("at"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			badRequest(c, "invalid at")
			return
		}
		at = t
	}

	result, err := h.domain.RunExpirySweep(c.Request.Context(), at)
	resp := gin.H{"result": result}
	if err != nil {
		_ = c.Error(err)
		if result.Scanned == 0 {
			handleError(c, err)
			return
		}
		resp["errors"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Compile-time check
var _ inbound.AdminHttpPort = (*adminHandler)(nil)
