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

// cancellationAdapter implements outbound.CancellationRecordDatabasePort.
type cancellationAdapter struct {
	db *gorm.DB
}

// NewCancellationAdapter creates a new cancellation record adapter.
func NewCancellationAdapter(db *gorm.DB) outbound.CancellationRecordDatabasePort {
	return &cancellationAdapter{db: db}
}

func (a *cancellationAdapter) Create(ctx context.Context, rec *model.CancellationRecord) error {
	return conn(ctx, a.db).Create(rec).Error
}

func (a *cancellationAdapter) GetPendingTermination(ctx context.Context, orgID uuid.UUID, since time.Time) (*model.CancellationRecord, error) {
	var rec model.CancellationRecord
	err := conn(ctx, a.db).
		Where("organization_id = ? AND immediate_termination = ? AND effective_date >= ?", orgID, false, since).
		Order("processed_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Compile-time check
var _ outbound.CancellationRecordDatabasePort = (*cancellationAdapter)(nil)
