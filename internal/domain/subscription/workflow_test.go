package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pendingRequest(orgID uuid.UUID, opType model.OperationType, planID *uuid.UUID) *model.SubscriptionRequest {
	return &model.SubscriptionRequest{
		ID:                 uuid.New(),
		OrganizationID:     orgID,
		SubscriptionPlanID: planID,
		RequestedByUserID:  uuid.New(),
		Status:             model.RequestStatusPending,
		OperationType:      opType,
		Immediate:          true,
		CreatedAt:          testNow.Add(-time.Hour),
	}
}

func TestWorkflow_Submit(t *testing.T) {
	basic := newPlan("Basic", "29.99", 1, 100, 5)
	pro := newPlan("Pro", "79.99", 3, 500, 20)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("upgrade request stays pending", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		h.withPlans(basic, pro)
		h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(activeSub(orgID, basic.ID, start, 30), nil)
		h.requestDB.On("Create", mock.Anything, mock.AnythingOfType("*model.SubscriptionRequest")).Return(nil)

		req, err := h.workflow.Submit(context.Background(), SubmitInput{
			OrganizationID: orgID,
			OperationType:  model.OperationUpgrade,
			PlanID:         &pro.ID,
			RequestedBy:    uuid.New(),
			Notes:          "  need more gyms ",
		})
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusPending, req.Status)
		assert.Equal(t, "need more gyms", req.Notes)
		assert.Equal(t, pro.ID, *req.SubscriptionPlanID)
		h.subDB.AssertNotCalled(t, "UpdateIfVersion", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("activation records currency", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		h.withPlans(basic)
		h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(nil, nil)
		h.requestDB.On("Create", mock.Anything, mock.Anything).Return(nil)

		req, err := h.workflow.Submit(context.Background(), SubmitInput{
			OrganizationID: orgID,
			OperationType:  model.OperationActivation,
			PlanID:         &basic.ID,
			RequestedBy:    uuid.New(),
			Currency:       "usd",
		})
		require.NoError(t, err)
		assert.Equal(t, "USD", req.Currency)
	})

	t.Run("renewal is refused while a cancellation is pending", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		sub := activeSub(orgID, basic.ID, start, 30)
		h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(sub, nil)
		h.cancelDB.On("GetPendingTermination", mock.Anything, orgID, sub.SubscriptionEnd).Return(&model.CancellationRecord{ID: uuid.New()}, nil)

		_, err := h.workflow.Submit(context.Background(), SubmitInput{OrganizationID: orgID, OperationType: model.OperationRenewal, RequestedBy: uuid.New()})
		assert.ErrorIs(t, err, ErrCancellationPending)
		h.requestDB.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("renewal request stays pending", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		h.quiet(orgID)
		h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(activeSub(orgID, basic.ID, start, 30), nil)
		h.requestDB.On("Create", mock.Anything, mock.Anything).Return(nil)

		req, err := h.workflow.Submit(context.Background(), SubmitInput{OrganizationID: orgID, OperationType: model.OperationRenewal, RequestedBy: uuid.New()})
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusPending, req.Status)
	})

	tests := []struct {
		name    string
		in      func(orgID uuid.UUID) SubmitInput
		sub     bool
		wantErr error
	}{
		{
			name: "expiration is not requestable",
			in: func(orgID uuid.UUID) SubmitInput {
				return SubmitInput{OrganizationID: orgID, OperationType: model.OperationExpiration, RequestedBy: uuid.New()}
			},
			wantErr: ErrInvalidOperationType,
		},
		{
			name: "missing requester",
			in: func(orgID uuid.UUID) SubmitInput {
				return SubmitInput{OrganizationID: orgID, OperationType: model.OperationRenewal}
			},
			wantErr: ErrValidation,
		},
		{
			name: "upgrade without plan",
			in: func(orgID uuid.UUID) SubmitInput {
				return SubmitInput{OrganizationID: orgID, OperationType: model.OperationUpgrade, RequestedBy: uuid.New()}
			},
			wantErr: ErrValidation,
		},
		{
			name: "renewal without subscription",
			in: func(orgID uuid.UUID) SubmitInput {
				return SubmitInput{OrganizationID: orgID, OperationType: model.OperationRenewal, RequestedBy: uuid.New()}
			},
			wantErr: ErrNotFound,
		},
		{
			name: "activation over a live subscription",
			in: func(orgID uuid.UUID) SubmitInput {
				return SubmitInput{OrganizationID: orgID, OperationType: model.OperationActivation, PlanID: &basic.ID, RequestedBy: uuid.New(), Currency: "USD"}
			},
			sub:     true,
			wantErr: ErrSubscriptionExists,
		},
		{
			name: "activation in unpriced currency",
			in: func(orgID uuid.UUID) SubmitInput {
				return SubmitInput{OrganizationID: orgID, OperationType: model.OperationActivation, PlanID: &basic.ID, RequestedBy: uuid.New(), Currency: "EUR"}
			},
			wantErr: ErrUnsupportedCurrency,
		},
		{
			name: "cancellation without reason",
			in: func(orgID uuid.UUID) SubmitInput {
				return SubmitInput{OrganizationID: orgID, OperationType: model.OperationCancellation, RequestedBy: uuid.New()}
			},
			sub:     true,
			wantErr: ErrInvalidCancelReason,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			orgID := uuid.New()
			h.withPlans(basic)
			if tt.sub {
				h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(activeSub(orgID, basic.ID, start, 30), nil).Maybe()
			} else {
				h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(nil, nil).Maybe()
			}

			_, err := h.workflow.Submit(context.Background(), tt.in(orgID))
			assert.ErrorIs(t, err, tt.wantErr)
			h.requestDB.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestWorkflow_Process(t *testing.T) {
	basic := newPlan("Basic", "29.99", 1, 100, 5)
	pro := newPlan("Pro", "79.99", 3, 500, 20)
	free := newPlan("Free", "0", 1, 10, 2)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("approve applies the transition", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		h.withPlans(basic, pro)
		h.quiet(orgID)
		h.withUsage(orgID, 1, 20, 2)
		req := pendingRequest(orgID, model.OperationUpgrade, &pro.ID)
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)
		h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(activeSub(orgID, basic.ID, start, 30), nil)
		h.subDB.On("UpdateIfVersion", mock.Anything, mock.Anything, int64(1)).Return(nil)
		h.opDB.On("Append", mock.Anything, mock.Anything).Return(nil)
		h.requestDB.On("ResolvePending", mock.Anything, mock.MatchedBy(func(r *model.SubscriptionRequest) bool {
			return r.Status == model.RequestStatusApproved && r.OperationID != nil
		})).Return(nil)

		admin := uuid.New()
		res, err := h.workflow.Process(context.Background(), ProcessInput{RequestID: req.ID, Decision: model.DecisionApproved, ProcessedBy: admin, AdminNotes: "ok"})
		require.NoError(t, err)
		assert.False(t, res.Replayed)
		assert.Equal(t, model.RequestStatusApproved, res.Request.Status)
		assert.Equal(t, admin, *res.Request.ProcessedByUserID)
		require.NotNil(t, res.Operation)
		assert.Equal(t, res.Operation.ID, *res.Request.OperationID)
		assert.Equal(t, admin.String(), res.Operation.ExecutedBy)
		assert.Equal(t, req.ID, *res.Operation.RequestID)
		assert.Equal(t, model.RequestStatusPending, req.Status, "loaded request must not be mutated")
	})

	t.Run("reject leaves the subscription alone", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		req := pendingRequest(orgID, model.OperationRenewal, nil)
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)
		h.requestDB.On("ResolvePending", mock.Anything, mock.Anything).Return(nil)

		res, err := h.workflow.Process(context.Background(), ProcessInput{RequestID: req.ID, Decision: model.DecisionRejected})
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusRejected, res.Request.Status)
		assert.Nil(t, res.Request.ProcessedByUserID)
		assert.Nil(t, res.Transition)
		h.subDB.AssertNotCalled(t, "GetByOrganizationID", mock.Anything, mock.Anything)
	})

	t.Run("processing twice replays the first result", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		opID := uuid.New()
		req := pendingRequest(orgID, model.OperationRenewal, nil)
		req.Status = model.RequestStatusApproved
		req.OperationID = &opID
		op := &model.SubscriptionOperation{ID: opID, OrganizationID: orgID, OperationType: model.OperationRenewal}
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)
		h.opDB.On("GetByID", mock.Anything, opID).Return(op, nil)

		res, err := h.workflow.Process(context.Background(), ProcessInput{RequestID: req.ID, Decision: model.DecisionApproved})
		require.NoError(t, err)
		assert.True(t, res.Replayed)
		assert.Equal(t, op, res.Operation)
		h.requestDB.AssertNotCalled(t, "ResolvePending", mock.Anything, mock.Anything)
		h.opDB.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("failed transition keeps the request pending", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		tiny := newPlan("Tiny", "0", 1, 5, 1)
		h.withPlans(free, tiny)
		h.quiet(orgID)
		h.withUsage(orgID, 1, 9, 1)
		req := pendingRequest(orgID, model.OperationDowngrade, &tiny.ID)
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)
		h.subDB.On("GetByOrganizationID", mock.Anything, orgID).Return(activeSub(orgID, free.ID, start, 30), nil)

		_, err := h.workflow.Process(context.Background(), ProcessInput{RequestID: req.ID, Decision: model.DecisionApproved})
		assert.ErrorIs(t, err, ErrLimitExceeded)
		h.requestDB.AssertNotCalled(t, "ResolvePending", mock.Anything, mock.Anything)
		assert.Equal(t, model.RequestStatusPending, req.Status)
	})

	t.Run("concurrent processor wins", func(t *testing.T) {
		h := newHarness(t)
		orgID := uuid.New()
		req := pendingRequest(orgID, model.OperationRenewal, nil)
		resolved := *req
		resolved.Status = model.RequestStatusRejected
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil).Once()
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(&resolved, nil)
		h.requestDB.On("ResolvePending", mock.Anything, mock.Anything).Return(outbound.ErrVersionConflict)

		res, err := h.workflow.Process(context.Background(), ProcessInput{RequestID: req.ID, Decision: model.DecisionRejected})
		require.NoError(t, err)
		assert.True(t, res.Replayed)
		assert.Equal(t, model.RequestStatusRejected, res.Request.Status)
	})

	t.Run("invalid decision", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.workflow.Process(context.Background(), ProcessInput{RequestID: uuid.New(), Decision: "maybe"})
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})

	t.Run("unknown request", func(t *testing.T) {
		h := newHarness(t)
		id := uuid.New()
		h.requestDB.On("GetByID", mock.Anything, id).Return(nil, nil)
		_, err := h.workflow.Process(context.Background(), ProcessInput{RequestID: id, Decision: model.DecisionApproved})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestWorkflow_CancelRequest(t *testing.T) {
	t.Run("requester withdraws", func(t *testing.T) {
		h := newHarness(t)
		req := pendingRequest(uuid.New(), model.OperationRenewal, nil)
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)
		h.requestDB.On("ResolvePending", mock.Anything, mock.MatchedBy(func(r *model.SubscriptionRequest) bool {
			return r.Status == model.RequestStatusCancelled
		})).Return(nil)

		got, err := h.workflow.CancelRequest(context.Background(), req.ID, req.RequestedByUserID)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusCancelled, got.Status)
		assert.Equal(t, testNow, *got.ProcessedAt)
	})

	t.Run("someone else", func(t *testing.T) {
		h := newHarness(t)
		req := pendingRequest(uuid.New(), model.OperationRenewal, nil)
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)

		_, err := h.workflow.CancelRequest(context.Background(), req.ID, uuid.New())
		assert.ErrorIs(t, err, ErrNotRequester)
	})

	t.Run("already processed", func(t *testing.T) {
		h := newHarness(t)
		req := pendingRequest(uuid.New(), model.OperationRenewal, nil)
		req.Status = model.RequestStatusApproved
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)

		_, err := h.workflow.CancelRequest(context.Background(), req.ID, req.RequestedByUserID)
		assert.ErrorIs(t, err, ErrRequestNotPending)
	})

	t.Run("lost the race", func(t *testing.T) {
		h := newHarness(t)
		req := pendingRequest(uuid.New(), model.OperationRenewal, nil)
		h.requestDB.On("GetByID", mock.Anything, req.ID).Return(req, nil)
		h.requestDB.On("ResolvePending", mock.Anything, mock.Anything).Return(outbound.ErrVersionConflict)

		_, err := h.workflow.CancelRequest(context.Background(), req.ID, req.RequestedByUserID)
		assert.ErrorIs(t, err, ErrRequestNotPending)
	})
}
