package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionAdapter implements outbound.OrganizationSubscriptionDatabasePort.
type subscriptionAdapter struct {
	db *gorm.DB
}

// NewSubscriptionAdapter creates a new subscription database adapter.
func NewSubscriptionAdapter(db *gorm.DB) outbound.OrganizationSubscriptionDatabasePort {
	return &subscriptionAdapter{db: db}
}

func (a *subscriptionAdapter) GetByOrganizationID(ctx context.Context, orgID uuid.UUID) (*model.OrganizationSubscription, error) {
	var sub model.OrganizationSubscription
	err := conn(ctx, a.db).First(&sub, "organization_id = ?", orgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (a *subscriptionAdapter) Create(ctx context.Context, sub *model.OrganizationSubscription) error {
	result := conn(ctx, a.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sub)
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return outbound.ErrVersionConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbound.ErrVersionConflict
	}
	return nil
}

func (a *subscriptionAdapter) UpdateIfVersion(ctx context.Context, sub *model.OrganizationSubscription, expectedVersion int64) error {
	result := conn(ctx, a.db).
		Model(&model.OrganizationSubscription{}).
		Where("organization_id = ? AND version = ?", sub.OrganizationID, expectedVersion).
		Select("*").
		Omit("organization_id", "created_at").
		Updates(sub)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbound.ErrVersionConflict
	}
	return nil
}

func (a *subscriptionAdapter) ListActiveEndingBefore(ctx context.Context, t time.Time, after *outbound.SubscriptionCursor, limit int) ([]*model.OrganizationSubscription, error) {
	var subs []*model.OrganizationSubscription
	query := conn(ctx, a.db).
		Where("status = ? AND subscription_end < ?", model.SubscriptionStatusActive, t)
	if after != nil {
		query = query.Where("subscription_end > ? OR (subscription_end = ? AND organization_id > ?)",
			after.SubscriptionEnd, after.SubscriptionEnd, after.OrganizationID)
	}
	err := query.
		Order("subscription_end ASC, organization_id ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (a *subscriptionAdapter) ListByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]*model.OrganizationSubscription, error) {
	var subs []*model.OrganizationSubscription
	err := conn(ctx, a.db).
		Where("status IN ?", statuses).
		Order("organization_id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// Compile-time check
var _ outbound.OrganizationSubscriptionDatabasePort = (*subscriptionAdapter)(nil)
