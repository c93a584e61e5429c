package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"gorm.io/gorm"
)

// requestAdapter implements outbound.SubscriptionRequestDatabasePort.
type requestAdapter struct {
	db *gorm.DB
}

// NewRequestAdapter creates a new change request adapter.
func NewRequestAdapter(db *gorm.DB) outbound.SubscriptionRequestDatabasePort {
	return &requestAdapter{db: db}
}

func (a *requestAdapter) Create(ctx context.Context, req *model.SubscriptionRequest) error {
	return conn(ctx, a.db).Create(req).Error
}

func (a *requestAdapter) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionRequest, error) {
	var req model.SubscriptionRequest
	err := conn(ctx, a.db).First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (a *requestAdapter) ResolvePending(ctx context.Context, req *model.SubscriptionRequest) error {
	result := conn(ctx, a.db).
		Model(&model.SubscriptionRequest{}).
		Where("id = ? AND status = ?", req.ID, model.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":               req.Status,
			"admin_notes":          req.AdminNotes,
			"processed_by_user_id": req.ProcessedByUserID,
			"processed_at":         req.ProcessedAt,
			"operation_id":         req.OperationID,
			"scheduled_change_id":  req.ScheduledChangeID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbound.ErrVersionConflict
	}
	return nil
}

func (a *requestAdapter) HasPending(ctx context.Context, orgID uuid.UUID, opType model.OperationType) (bool, error) {
	var count int64
	err := conn(ctx, a.db).
		Model(&model.SubscriptionRequest{}).
		Where("organization_id = ? AND operation_type = ? AND status = ?", orgID, opType, model.RequestStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (a *requestAdapter) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionRequest, error) {
	var reqs []*model.SubscriptionRequest
	err := conn(ctx, a.db).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// Compile-time check
var _ outbound.SubscriptionRequestDatabasePort = (*requestAdapter)(nil)
