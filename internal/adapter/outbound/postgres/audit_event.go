package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"gorm.io/gorm"
)

// auditEventAdapter implements outbound.AuditEventDatabasePort.
type auditEventAdapter struct {
	db *gorm.DB
}

// NewAuditEventAdapter creates a new audit event adapter.
func NewAuditEventAdapter(db *gorm.DB) outbound.AuditEventDatabasePort {
	return &auditEventAdapter{db: db}
}

func (a *auditEventAdapter) CreateBatch(ctx context.Context, events []*model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return conn(ctx, a.db).CreateInBatches(events, 100).Error
}

func (a *auditEventAdapter) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.AuditEvent, error) {
	var events []*model.AuditEvent
	err := conn(ctx, a.db).
		Where("organization_id = ?", orgID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Compile-time check
var _ outbound.AuditEventDatabasePort = (*auditEventAdapter)(nil)
