package gin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/shared/events"
	"github.com/stretchr/testify/mock"
)

type MockDomain struct {
	mock.Mock
}

func (m *MockDomain) CreatePlan(ctx context.Context, in subscription.PlanInput) (*model.SubscriptionPlan, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionPlan), args.Error(1)
}

func (m *MockDomain) GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionPlan), args.Error(1)
}

func (m *MockDomain) ListPlans(ctx context.Context, currency string) ([]*model.SubscriptionPlan, error) {
	args := m.Called(ctx, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionPlan), args.Error(1)
}

func (m *MockDomain) UpdatePlan(ctx context.Context, id uuid.UUID, upd subscription.PlanUpdate) (*model.SubscriptionPlan, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionPlan), args.Error(1)
}

func (m *MockDomain) RetirePlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionPlan), args.Error(1)
}

func (m *MockDomain) Activate(ctx context.Context, cmd subscription.ActivateCommand) (*subscription.TransitionResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.TransitionResult), args.Error(1)
}

func (m *MockDomain) GetSubscriptionStatus(ctx context.Context, orgID uuid.UUID) (*subscription.StatusView, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.StatusView), args.Error(1)
}

func (m *MockDomain) CheckEntitlement(ctx context.Context, orgID uuid.UUID, resource subscription.Resource) (*subscription.Decision, error) {
	args := m.Called(ctx, orgID, resource)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Decision), args.Error(1)
}

func (m *MockDomain) ListOperations(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionOperation, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionOperation), args.Error(1)
}

func (m *MockDomain) SubmitChangeRequest(ctx context.Context, in subscription.SubmitInput) (*model.SubscriptionRequest, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionRequest), args.Error(1)
}

func (m *MockDomain) ProcessRequest(ctx context.Context, in subscription.ProcessInput) (*subscription.ProcessResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ProcessResult), args.Error(1)
}

func (m *MockDomain) CancelChangeRequest(ctx context.Context, requestID, requesterID uuid.UUID) (*model.SubscriptionRequest, error) {
	args := m.Called(ctx, requestID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionRequest), args.Error(1)
}

func (m *MockDomain) ListChangeRequests(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionRequest, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionRequest), args.Error(1)
}

func (m *MockDomain) GetAnalytics(ctx context.Context, q subscription.AnalyticsQuery) (*model.AnalyticsReport, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalyticsReport), args.Error(1)
}

func (m *MockDomain) HandlePaymentOutcome(ctx context.Context, outcome model.PaymentOutcome) (*subscription.PaymentResult, error) {
	args := m.Called(ctx, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.PaymentResult), args.Error(1)
}

func (m *MockDomain) RunExpirySweep(ctx context.Context, now time.Time) (subscription.SweepResult, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(subscription.SweepResult), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var _ subscription.SubscriptionDomain = (*MockDomain)(nil)
