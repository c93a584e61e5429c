package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"gorm.io/gorm"
)

// scheduledChangeAdapter implements outbound.ScheduledChangeDatabasePort.
type scheduledChangeAdapter struct {
	db *gorm.DB
}

// NewScheduledChangeAdapter creates a new scheduled change adapter.
func NewScheduledChangeAdapter(db *gorm.DB) outbound.ScheduledChangeDatabasePort {
	return &scheduledChangeAdapter{db: db}
}

func (a *scheduledChangeAdapter) Create(ctx context.Context, change *model.ScheduledChange) error {
	return conn(ctx, a.db).Create(change).Error
}

func (a *scheduledChangeAdapter) GetScheduled(ctx context.Context, orgID uuid.UUID) (*model.ScheduledChange, error) {
	var change model.ScheduledChange
	err := conn(ctx, a.db).
		Where("organization_id = ? AND status = ?", orgID, model.ScheduledChangeScheduled).
		Order("created_at DESC").
		First(&change).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &change, nil
}

func (a *scheduledChangeAdapter) ResolveScheduled(ctx context.Context, orgID uuid.UUID, status model.ScheduledChangeStatus, at time.Time) (int64, error) {
	result := conn(ctx, a.db).
		Model(&model.ScheduledChange{}).
		Where("organization_id = ? AND status = ?", orgID, model.ScheduledChangeScheduled).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": at,
		})
	return result.RowsAffected, result.Error
}

func (a *scheduledChangeAdapter) Resolve(ctx context.Context, id uuid.UUID, status model.ScheduledChangeStatus, at time.Time) error {
	return conn(ctx, a.db).
		Model(&model.ScheduledChange{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": at,
		}).Error
}

// Compile-time check
var _ outbound.ScheduledChangeDatabasePort = (*scheduledChangeAdapter)(nil)
