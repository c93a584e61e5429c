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

// operationAdapter implements outbound.SubscriptionOperationDatabasePort.
type operationAdapter struct {
	db *gorm.DB
}

// NewOperationAdapter creates a new operation log adapter.
func NewOperationAdapter(db *gorm.DB) outbound.SubscriptionOperationDatabasePort {
	return &operationAdapter{db: db}
}

func (a *operationAdapter) Append(ctx context.Context, op *model.SubscriptionOperation) error {
	return conn(ctx, a.db).Create(op).Error
}

func (a *operationAdapter) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionOperation, error) {
	var op model.SubscriptionOperation
	err := conn(ctx, a.db).First(&op, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

func (a *operationAdapter) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionOperation, error) {
	var ops []*model.SubscriptionOperation
	err := conn(ctx, a.db).
		Where("organization_id = ?", orgID).
		Order("effective_date DESC, created_at DESC").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (a *operationAdapter) ListEffectiveBefore(ctx context.Context, currency string, t time.Time) ([]*model.SubscriptionOperation, error) {
	var ops []*model.SubscriptionOperation
	err := conn(ctx, a.db).
		Where("currency = ? AND effective_date < ?", currency, t).
		Order("effective_date ASC, created_at ASC").
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// Compile-time check
var _ outbound.SubscriptionOperationDatabasePort = (*operationAdapter)(nil)
