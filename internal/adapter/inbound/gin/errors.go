package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	apperrors "github.com/leobar37/gymspace-sub006/internal/shared/errors"
)

// handleError maps domain errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)
	appErr := toAppError(err)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

func toAppError(err error) *apperrors.AppError {
	var (
		appErr    *apperrors.AppError
		limitErr  *subscription.LimitExceededError
		validErr  *subscription.ValidationError
		conflict  *subscription.ConflictError
		notFound  *subscription.NotFoundError
		proration *subscription.ProrationError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr

	case errors.As(err, &limitErr):
		breaches := make([]gin.H, len(limitErr.Breaches))
		for i, b := range limitErr.Breaches {
			breaches[i] = gin.H{"resource": b.Resource, "current": b.Current, "limit": b.Limit}
		}
		return apperrors.LimitExceeded(limitErr.Error()).WithDetails(map[string]any{
			"plan_id":  limitErr.PlanID,
			"breaches": breaches,
		})

	case errors.Is(err, subscription.ErrUsageUnavailable):
		return apperrors.ServiceUnavailable("usage snapshot unavailable, retry later")

	case errors.As(err, &validErr):
		appErr := apperrors.ValidationError(validErr.Error())
		if validErr.Field != "" {
			appErr.WithDetails(map[string]any{"field": validErr.Field})
		}
		return appErr

	case errors.As(err, &proration):
		return apperrors.ValidationError(proration.Error())

	case errors.As(err, &conflict):
		return apperrors.Conflict(conflict.Error()).WithDetails(map[string]any{
			"resource":         conflict.Resource,
			"expected_version": conflict.ExpectedVersion,
		})

	case errors.As(err, &notFound):
		return apperrors.NotFound(notFound.Resource)

	case errors.Is(err, subscription.ErrValidation):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, subscription.ErrConflict):
		return apperrors.Conflict(err.Error())
	case errors.Is(err, subscription.ErrNotFound):
		return apperrors.NotFound("resource")

	default:
		return apperrors.Internal("Internal server error", err)
	}
}

// badRequest aborts with a 400 for malformed input.
func badRequest(c *gin.Context, message string) {
	appErr := apperrors.BadRequest(message)
	c.AbortWithStatusJSON(http.StatusBadRequest, appErr.ToResponse())
}
