package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"gorm.io/gorm"
)

// planAdapter implements outbound.PlanDatabasePort.
type planAdapter struct {
	db *gorm.DB
}

// NewPlanAdapter creates a new plan database adapter.
func NewPlanAdapter(db *gorm.DB) outbound.PlanDatabasePort {
	return &planAdapter{db: db}
}

func (a *planAdapter) ListActive(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	var plans []*model.SubscriptionPlan
	err := conn(ctx, a.db).
		Where("is_active = ?", true).
		Order("sort_order ASC, name ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (a *planAdapter) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	err := conn(ctx, a.db).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (a *planAdapter) Create(ctx context.Context, plan *model.SubscriptionPlan) error {
	return conn(ctx, a.db).Create(plan).Error
}

func (a *planAdapter) Update(ctx context.Context, plan *model.SubscriptionPlan, expectedVersion int64) error {
	result := conn(ctx, a.db).
		Model(&model.SubscriptionPlan{}).
		Where("id = ? AND version = ?", plan.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(plan)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbound.ErrVersionConflict
	}
	return nil
}

func (a *planAdapter) CountReferences(ctx context.Context, planID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, a.db).
		Model(&model.OrganizationSubscription{}).
		Where("subscription_plan_id = ? AND status NOT IN ?", planID, []model.SubscriptionStatus{
			model.SubscriptionStatusExpired,
			model.SubscriptionStatusCancelled,
		}).
		Count(&count).Error
	return count, err
}

// Compile-time check
var _ outbound.PlanDatabasePort = (*planAdapter)(nil)
