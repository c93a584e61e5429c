package subscription

import (
	"context"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"gorm.io/datatypes"
)

// auditor forwards committed changes to the audit sink. A nil sink drops them.
type auditor struct {
	sink outbound.AuditSinkPort
}

func (a auditor) operation(ctx context.Context, op *model.SubscriptionOperation) {
	if a.sink == nil || op == nil {
		return
	}
	payload := datatypes.JSONMap{
		"to_plan_id":       op.ToPlanID.String(),
		"from_status":      string(op.FromStatus),
		"resulting_status": string(op.ResultingStatus),
		"effective_date":   op.EffectiveDate,
		"new_end_date":     op.NewEndDate,
		"currency":         op.Currency,
	}
	if op.FromPlanID != nil {
		payload["from_plan_id"] = op.FromPlanID.String()
	}
	if op.ProrationAmount.Valid {
		payload["proration_amount"] = op.ProrationAmount.Decimal.String()
	}
	if op.RequestID != nil {
		payload["request_id"] = op.RequestID.String()
	}

	a.sink.Record(ctx, &model.AuditEvent{
		ID:             uuid.New(),
		Kind:           model.AuditKindSubscriptionOperation,
		OrganizationID: op.OrganizationID,
		SubjectID:      op.ID,
		Action:         string(op.OperationType),
		Actor:          op.ExecutedBy,
		Payload:        payload,
		OccurredAt:     op.CreatedAt,
	})
}

func (a auditor) request(ctx context.Context, req *model.SubscriptionRequest, actor string) {
	if a.sink == nil || req == nil {
		return
	}
	payload := datatypes.JSONMap{
		"operation_type": string(req.OperationType),
		"immediate":      req.Immediate,
	}
	if req.SubscriptionPlanID != nil {
		payload["subscription_plan_id"] = req.SubscriptionPlanID.String()
	}
	if req.OperationID != nil {
		payload["operation_id"] = req.OperationID.String()
	}
	if req.ScheduledChangeID != nil {
		payload["scheduled_change_id"] = req.ScheduledChangeID.String()
	}
	if req.AdminNotes != "" {
		payload["admin_notes"] = req.AdminNotes
	}

	occurred := req.CreatedAt
	if req.ProcessedAt != nil {
		occurred = *req.ProcessedAt
	}
	a.sink.Record(ctx, &model.AuditEvent{
		ID:             uuid.New(),
		Kind:           model.AuditKindRequestStatus,
		OrganizationID: req.OrganizationID,
		SubjectID:      req.ID,
		Action:         string(req.Status),
		Actor:          actor,
		Payload:        payload,
		OccurredAt:     occurred,
	})
}
