package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// --- Mock implementations ---

// MockTx marks the context it hands to fn so mocks can tell whether a call was
// made inside a transaction.
type MockTx struct{}

type inTxKey struct{}

func (MockTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, inTxKey{}, true))
}

func outsideTx() interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Value(inTxKey{}) == nil
	})
}

type MockPlanDB struct {
	mock.Mock
}

func (m *MockPlanDB) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionPlan), args.Error(1)
}

func (m *MockPlanDB) ListActive(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionPlan), args.Error(1)
}

func (m *MockPlanDB) Create(ctx context.Context, plan *model.SubscriptionPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPlanDB) Update(ctx context.Context, plan *model.SubscriptionPlan, expectedVersion int64) error {
	args := m.Called(ctx, plan, expectedVersion)
	return args.Error(0)
}

func (m *MockPlanDB) CountReferences(ctx context.Context, planID uuid.UUID) (int64, error) {
	args := m.Called(ctx, planID)
	return args.Get(0).(int64), args.Error(1)
}

type MockPlanCache struct {
	mock.Mock
}

func (m *MockPlanCache) GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionPlan), args.Error(1)
}

func (m *MockPlanCache) SetPlan(ctx context.Context, plan *model.SubscriptionPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPlanCache) GetActivePlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionPlan), args.Error(1)
}

func (m *MockPlanCache) SetActivePlans(ctx context.Context, plans []*model.SubscriptionPlan) error {
	args := m.Called(ctx, plans)
	return args.Error(0)
}

func (m *MockPlanCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSubscriptionDB struct {
	mock.Mock
}

func (m *MockSubscriptionDB) GetByOrganizationID(ctx context.Context, orgID uuid.UUID) (*model.OrganizationSubscription, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrganizationSubscription), args.Error(1)
}

func (m *MockSubscriptionDB) Create(ctx context.Context, sub *model.OrganizationSubscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockSubscriptionDB) UpdateIfVersion(ctx context.Context, sub *model.OrganizationSubscription, expectedVersion int64) error {
	args := m.Called(ctx, sub, expectedVersion)
	return args.Error(0)
}

func (m *MockSubscriptionDB) ListActiveEndingBefore(ctx context.Context, t time.Time, after *outbound.SubscriptionCursor, limit int) ([]*model.OrganizationSubscription, error) {
	args := m.Called(ctx, t, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OrganizationSubscription), args.Error(1)
}

func (m *MockSubscriptionDB) ListByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]*model.OrganizationSubscription, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OrganizationSubscription), args.Error(1)
}

type MockOperationDB struct {
	mock.Mock
}

func (m *MockOperationDB) Append(ctx context.Context, op *model.SubscriptionOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockOperationDB) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionOperation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionOperation), args.Error(1)
}

func (m *MockOperationDB) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionOperation, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionOperation), args.Error(1)
}

func (m *MockOperationDB) ListEffectiveBefore(ctx context.Context, currency string, t time.Time) ([]*model.SubscriptionOperation, error) {
	args := m.Called(ctx, currency, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionOperation), args.Error(1)
}

type MockRequestDB struct {
	mock.Mock
}

func (m *MockRequestDB) Create(ctx context.Context, req *model.SubscriptionRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockRequestDB) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscriptionRequest), args.Error(1)
}

func (m *MockRequestDB) ResolvePending(ctx context.Context, req *model.SubscriptionRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockRequestDB) HasPending(ctx context.Context, orgID uuid.UUID, opType model.OperationType) (bool, error) {
	args := m.Called(ctx, orgID, opType)
	return args.Bool(0), args.Error(1)
}

func (m *MockRequestDB) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.SubscriptionRequest, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SubscriptionRequest), args.Error(1)
}

type MockCancellationDB struct {
	mock.Mock
}

func (m *MockCancellationDB) Create(ctx context.Context, rec *model.CancellationRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockCancellationDB) GetPendingTermination(ctx context.Context, orgID uuid.UUID, since time.Time) (*model.CancellationRecord, error) {
	args := m.Called(ctx, orgID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CancellationRecord), args.Error(1)
}

type MockScheduledChangeDB struct {
	mock.Mock
}

func (m *MockScheduledChangeDB) Create(ctx context.Context, change *model.ScheduledChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockScheduledChangeDB) GetScheduled(ctx context.Context, orgID uuid.UUID) (*model.ScheduledChange, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledChange), args.Error(1)
}

func (m *MockScheduledChangeDB) ResolveScheduled(ctx context.Context, orgID uuid.UUID, status model.ScheduledChangeStatus, at time.Time) (int64, error) {
	args := m.Called(ctx, orgID, status, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockScheduledChangeDB) Resolve(ctx context.Context, id uuid.UUID, status model.ScheduledChangeStatus, at time.Time) error {
	args := m.Called(ctx, id, status, at)
	return args.Error(0)
}

type MockUsage struct {
	mock.Mock
}

func (m *MockUsage) GetUsage(ctx context.Context, orgID uuid.UUID) (*model.UsageSnapshot, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UsageSnapshot), args.Error(1)
}

type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Record(ctx context.Context, event *model.AuditEvent) {
	m.Called(ctx, event)
}

// --- Test fixtures ---

var testNow = time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)

type harness struct {
	planDB     *MockPlanDB
	subDB      *MockSubscriptionDB
	opDB       *MockOperationDB
	requestDB  *MockRequestDB
	cancelDB   *MockCancellationDB
	scheduleDB *MockScheduledChangeDB
	usage      *MockUsage
	audit      *MockAuditSink
	clock      *clock.Fake

	catalog    *Catalog
	enforcer   *Enforcer
	machine    *StateMachine
	workflow   *Workflow
	aggregator *Aggregator
	domain     *Domain
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		planDB:     new(MockPlanDB),
		subDB:      new(MockSubscriptionDB),
		opDB:       new(MockOperationDB),
		requestDB:  new(MockRequestDB),
		cancelDB:   new(MockCancellationDB),
		scheduleDB: new(MockScheduledChangeDB),
		usage:      new(MockUsage),
		audit:      new(MockAuditSink),
		clock:      clock.NewFake(testNow),
	}
	repos := Repositories{
		Tx:               MockTx{},
		Plans:            h.planDB,
		Subscriptions:    h.subDB,
		Operations:       h.opDB,
		Requests:         h.requestDB,
		Cancellations:    h.cancelDB,
		ScheduledChanges: h.scheduleDB,
	}
	logger := zap.NewNop()

	h.catalog = NewCatalog(h.planDB, nil, h.clock, nil, logger)
	h.enforcer = NewEnforcer(h.usage, EnforcerConfig{NearingThreshold: 80, UsageTimeout: time.Second}, nil, logger)
	h.machine = NewStateMachine(repos, h.catalog, h.enforcer, h.clock, MachineConfig{RenewalWindow: 7 * 24 * time.Hour}, h.audit, nil, logger)
	h.workflow = NewWorkflow(repos, h.catalog, h.machine, h.clock, h.audit, logger)
	h.aggregator = NewAggregator(h.opDB, h.subDB, h.catalog, h.enforcer, h.clock, AnalyticsConfig{Concurrency: 4}, logger)
	h.domain = NewDomain(h.catalog, h.enforcer, h.machine, h.workflow, h.aggregator, repos, h.clock, logger)

	h.audit.On("Record", mock.Anything, mock.Anything).Maybe()
	return h
}

// quiet registers "nothing pending" answers for an organization.
func (h *harness) quiet(orgID uuid.UUID) {
	h.cancelDB.On("GetPendingTermination", mock.Anything, orgID, mock.Anything).Return(nil, nil).Maybe()
	h.scheduleDB.On("GetScheduled", mock.Anything, orgID).Return(nil, nil).Maybe()
	h.scheduleDB.On("ResolveScheduled", mock.Anything, orgID, mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
	h.requestDB.On("HasPending", mock.Anything, orgID, mock.Anything).Return(false, nil).Maybe()
}

func (h *harness) withPlans(plans ...*model.SubscriptionPlan) {
	for _, p := range plans {
		h.planDB.On("GetByID", mock.Anything, p.ID).Return(p, nil).Maybe()
	}
}

func (h *harness) withUsage(orgID uuid.UUID, gyms, clients, users int64) {
	h.usage.On("GetUsage", mock.Anything, orgID).Return(&model.UsageSnapshot{
		GymCount:     gyms,
		TotalClients: clients,
		TotalUsers:   users,
		CapturedAt:   testNow,
	}, nil).Maybe()
}

// withUsageOutsideTx answers usage lookups only when no transaction is open.
func (h *harness) withUsageOutsideTx(orgID uuid.UUID, gyms, clients, users int64) {
	h.usage.On("GetUsage", outsideTx(), orgID).Return(&model.UsageSnapshot{
		GymCount:     gyms,
		TotalClients: clients,
		TotalUsers:   users,
		CapturedAt:   testNow,
	}, nil)
}

func newPlan(name string, usd string, gyms, clients, users int) *model.SubscriptionPlan {
	return &model.SubscriptionPlan{
		ID:               uuid.New(),
		Name:             name,
		Prices:           datatypes.NewJSONType(model.PriceMap{"USD": decimal.RequireFromString(usd)}),
		BillingFrequency: model.BillingFrequencyMonthly,
		Duration:         30,
		DurationUnit:     model.DurationUnitDay,
		MaxGyms:          gyms,
		MaxClientsPerGym: clients,
		MaxUsersPerGym:   users,
		IsActive:         true,
		IsPublic:         true,
		Version:          1,
	}
}

func activeSub(orgID, planID uuid.UUID, start time.Time, days int) *model.OrganizationSubscription {
	return &model.OrganizationSubscription{
		OrganizationID:     orgID,
		SubscriptionPlanID: planID,
		Status:             model.SubscriptionStatusActive,
		Currency:           "USD",
		SubscriptionStart:  start,
		SubscriptionEnd:    start.AddDate(0, 0, days),
		Version:            1,
	}
}
