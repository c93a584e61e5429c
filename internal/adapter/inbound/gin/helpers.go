package gin

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/leobar37/gymspace-sub006/internal/shared/errors"
	"github.com/leobar37/gymspace-sub006/internal/utils/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// actorName is how an actor is recorded in operation history.
func actorName(actor *middleware.Actor) string {
	return actor.UserID.String()
}

// requireActor returns the authenticated actor or aborts with 401.
func requireActor(c *gin.Context) (*middleware.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		appErr := apperrors.Unauthorized("")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return nil, false
	}
	return actor, true
}

// parseUUIDParam parses a path parameter or aborts with 400.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// organizationParam parses the :orgId parameter and checks the actor may act on it.
func organizationParam(c *gin.Context) (uuid.UUID, *middleware.Actor, bool) {
	actor, ok := requireActor(c)
	if !ok {
		return uuid.Nil, nil, false
	}
	orgID, ok := parseUUIDParam(c, "orgId")
	if !ok {
		return uuid.Nil, nil, false
	}
	if !actor.CanAccessOrganization(orgID) {
		appErr := apperrors.Forbidden("organization is not accessible")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return uuid.Nil, nil, false
	}
	return orgID, actor, true
}

// queryLimit reads ?limit, clamped to (0, maxListLimit].
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
