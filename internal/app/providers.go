package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domain
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"

	// Inbound adapters
	eventadapter "github.com/leobar37/gymspace-sub006/internal/adapter/inbound/event"
	ginadapter "github.com/leobar37/gymspace-sub006/internal/adapter/inbound/gin"

	// Ports
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"

	// Outbound adapters
	"github.com/leobar37/gymspace-sub006/internal/adapter/outbound/audit"
	"github.com/leobar37/gymspace-sub006/internal/adapter/outbound/memory"
	"github.com/leobar37/gymspace-sub006/internal/adapter/outbound/postgres"
	redisadapter "github.com/leobar37/gymspace-sub006/internal/adapter/outbound/redis"
	s3adapter "github.com/leobar37/gymspace-sub006/internal/adapter/outbound/s3"
	"github.com/leobar37/gymspace-sub006/internal/adapter/outbound/usage"

	// Infrastructure
	"github.com/leobar37/gymspace-sub006/internal/infra/httpclient"
	"github.com/leobar37/gymspace-sub006/internal/infra/scheduler"
	"github.com/leobar37/gymspace-sub006/internal/shared/cache"
	"github.com/leobar37/gymspace-sub006/internal/shared/config"
	"github.com/leobar37/gymspace-sub006/internal/shared/database"
	"github.com/leobar37/gymspace-sub006/internal/shared/events"
	"github.com/leobar37/gymspace-sub006/internal/shared/logger"

	// Utils
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"github.com/leobar37/gymspace-sub006/internal/utils/metrics"
	"github.com/leobar37/gymspace-sub006/internal/utils/middleware"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "gymspace"

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideHTTPClient,
	ProvideMetrics,
	ProvideClock,
	wire.Bind(new(subscription.Observer), new(*metrics.Metrics)),
)

// ProvideLogger creates the zap logger.
func ProvideLogger(cfg *config.Config) *zap.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideDatabase creates a database connection.
func ProvideDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}
	return db, cleanup, nil
}

// ProvideRedisClient creates a Redis client. Redis is optional: without it plans
// are cached in memory and idempotency keys are not enforced.
func ProvideRedisClient(cfg *config.Config, log *zap.Logger) (goredis.UniversalClient, func()) {
	if cfg.Redis.Address == "" {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn("Redis connection failed, continuing without it", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = cache.Close(client) }
}

// ProvideHTTPClient creates the HTTP client used for usage lookups.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return httpclient.New(httpclient.Config{
		MaxIdleConns:    cfg.Usage.MaxIdleConns,
		IdleConnTimeout: cfg.Usage.IdleConnTimeout,
		ResponseTimeout: cfg.Usage.Timeout,
	})
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics() *metrics.Metrics {
	return metrics.New(MetricsNamespace)
}

// ProvideClock returns the wall clock.
func ProvideClock() clock.Clock {
	return clock.Real{}
}

// ===== Outbound Adapter Providers =====

// OutboundSet provides persistence, cache, usage, audit and storage adapters.
var OutboundSet = wire.NewSet(
	ProvideRepositories,
	ProvidePlanCache,
	ProvideUsageProvider,
	ProvideAuditSink,
	ProvideReportStore,
)

// ProvideRepositories creates the gorm-backed persistence ports.
func ProvideRepositories(db *gorm.DB) subscription.Repositories {
	return subscription.Repositories{
		Tx:               postgres.NewTransactionAdapter(db),
		Plans:            postgres.NewPlanAdapter(db),
		Subscriptions:    postgres.NewSubscriptionAdapter(db),
		Operations:       postgres.NewOperationAdapter(db),
		Requests:         postgres.NewRequestAdapter(db),
		Cancellations:    postgres.NewCancellationAdapter(db),
		ScheduledChanges: postgres.NewScheduledChangeAdapter(db),
	}
}

// ProvidePlanCache selects the plan cache backend. It returns nil for "none".
func ProvidePlanCache(cfg *config.Config, redis goredis.UniversalClient, log *zap.Logger) outbound.PlanCachePort {
	switch cfg.Cache.Backend {
	case "redis":
		if redis != nil {
			return redisadapter.NewPlanCache(redis, cfg.Cache.KeyPrefix, cfg.Cache.PlanTTL)
		}
		log.Warn("cache.backend is redis but Redis is unavailable, using memory")
		return memory.NewPlanCache(cfg.Cache.Size, cfg.Cache.PlanTTL)
	case "memory":
		return memory.NewPlanCache(cfg.Cache.Size, cfg.Cache.PlanTTL)
	default:
		return nil
	}
}

// ProvideUsageProvider creates the circuit-broken usage snapshot client.
func ProvideUsageProvider(cfg *config.Config, client *http.Client, log *zap.Logger) (outbound.UsageSnapshotPort, error) {
	if cfg.Usage.BaseURL == "" {
		return nil, fmt.Errorf("usage.base_url is required")
	}
	return usage.NewHTTPProvider(client, usage.Config{
		BaseURL:          cfg.Usage.BaseURL,
		FailureThreshold: cfg.Usage.FailureThreshold,
		CircuitTimeout:   cfg.Usage.CircuitTimeout,
	}, log), nil
}

// ProvideAuditSink fans audit events out to the log and to the database
// through a buffered writer. The cleanup flushes pending events.
func ProvideAuditSink(cfg *config.Config, db *gorm.DB, log *zap.Logger) (outbound.AuditSinkPort, func()) {
	asyncCfg := audit.DefaultAsyncConfig()
	if cfg.Engine.AuditBuffer > 0 {
		asyncCfg.BufferSize = cfg.Engine.AuditBuffer
	}
	async := audit.NewAsyncSink(postgres.NewAuditEventAdapter(db), asyncCfg, log)
	return audit.NewMultiSink(audit.NewLogSink(log), async), async.Close
}

// ProvideReportStore creates the S3 analytics report store, or nil when no
// bucket is configured.
func ProvideReportStore(cfg *config.Config) (outbound.ReportStorePort, error) {
	if !cfg.Storage.Enabled() {
		return nil, nil
	}
	client, err := s3adapter.NewClient(context.Background(), &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return s3adapter.NewReportStore(client, cfg.Storage.Bucket, cfg.Storage.Prefix), nil
}

// ===== Domain Providers =====

// DomainSet provides the subscription engine.
var DomainSet = wire.NewSet(
	ProvideCatalog,
	ProvideEnforcer,
	ProvideStateMachine,
	ProvideWorkflow,
	ProvideAggregator,
	ProvideSubscriptionDomain,
)

// ProvideCatalog creates the plan catalog.
func ProvideCatalog(repos subscription.Repositories, planCache outbound.PlanCachePort, clk clock.Clock, observer subscription.Observer, log *zap.Logger) *subscription.Catalog {
	return subscription.NewCatalog(repos.Plans, planCache, clk, observer, log.Named("catalog"))
}

// ProvideEnforcer creates the entitlement enforcer.
func ProvideEnforcer(cfg *config.Config, usagePort outbound.UsageSnapshotPort, observer subscription.Observer, log *zap.Logger) *subscription.Enforcer {
	return subscription.NewEnforcer(usagePort, subscription.EnforcerConfig{
		NearingThreshold: cfg.Engine.NearingLimitThreshold,
		UsageTimeout:     cfg.Usage.Timeout,
	}, observer, log.Named("enforcer"))
}

// ProvideStateMachine creates the subscription state machine.
func ProvideStateMachine(
	cfg *config.Config,
	repos subscription.Repositories,
	catalog *subscription.Catalog,
	enforcer *subscription.Enforcer,
	clk clock.Clock,
	auditSink outbound.AuditSinkPort,
	observer subscription.Observer,
	log *zap.Logger,
) (*subscription.StateMachine, error) {
	var defaultPlanID uuid.UUID
	if cfg.Engine.DefaultPlanID != "" {
		id, err := uuid.Parse(cfg.Engine.DefaultPlanID)
		if err != nil {
			return nil, fmt.Errorf("engine.default_plan_id: %w", err)
		}
		defaultPlanID = id
	}
	return subscription.NewStateMachine(repos, catalog, enforcer, clk, subscription.MachineConfig{
		RenewalWindow:  cfg.Engine.RenewalWindow,
		DefaultPlanID:  defaultPlanID,
		SweepBatchSize: cfg.Engine.SweepBatchSize,
		SystemActor:    cfg.Engine.SystemActor,
	}, auditSink, observer, log.Named("state-machine")), nil
}

// ProvideWorkflow creates the change request workflow.
func ProvideWorkflow(repos subscription.Repositories, catalog *subscription.Catalog, machine *subscription.StateMachine, clk clock.Clock, auditSink outbound.AuditSinkPort, log *zap.Logger) *subscription.Workflow {
	return subscription.NewWorkflow(repos, catalog, machine, clk, auditSink, log.Named("workflow"))
}

// ProvideAggregator creates the billing analytics aggregator.
func ProvideAggregator(cfg *config.Config, repos subscription.Repositories, catalog *subscription.Catalog, enforcer *subscription.Enforcer, clk clock.Clock, log *zap.Logger) *subscription.Aggregator {
	return subscription.NewAggregator(repos.Operations, repos.Subscriptions, catalog, enforcer, clk, subscription.AnalyticsConfig{
		Concurrency: cfg.Engine.AnalyticsConcurrency,
	}, log.Named("analytics"))
}

// ProvideSubscriptionDomain assembles the engine facade.
func ProvideSubscriptionDomain(
	catalog *subscription.Catalog,
	enforcer *subscription.Enforcer,
	machine *subscription.StateMachine,
	workflow *subscription.Workflow,
	aggregator *subscription.Aggregator,
	repos subscription.Repositories,
	clk clock.Clock,
	log *zap.Logger,
) subscription.SubscriptionDomain {
	return subscription.NewDomain(catalog, enforcer, machine, workflow, aggregator, repos, clk, log.Named("subscription"))
}

// ===== Inbound Providers =====

// InboundSet provides the event bus, HTTP handlers and background jobs.
var InboundSet = wire.NewSet(
	ProvideEventBus,
	ProvideTokenValidator,
	ProvideHandlers,
	ProvideScheduler,
)

// ProvideEventBus creates the event bus with the payment outcome subscriber.
func ProvideEventBus(domain subscription.SubscriptionDomain, log *zap.Logger) *events.Bus {
	bus := events.NewBus(log.Named("events"))
	bus.Register(eventadapter.NewPaymentOutcomeHandler(domain, log))
	return bus
}

// ProvideTokenValidator creates the bearer token validator.
func ProvideTokenValidator(cfg *config.Config) *middleware.TokenValidator {
	return middleware.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, middleware.RoleSet(cfg.Auth.Roles))
}

// ProvideHandlers creates the HTTP handlers.
func ProvideHandlers(domain subscription.SubscriptionDomain, bus *events.Bus, clk clock.Clock) ginadapter.Handlers {
	return ginadapter.Handlers{
		Plans:         ginadapter.NewPlanHandler(domain),
		Subscriptions: ginadapter.NewSubscriptionHandler(domain),
		Requests:      ginadapter.NewRequestHandler(domain),
		Analytics:     ginadapter.NewAnalyticsHandler(domain, clk),
		Payments:      ginadapter.NewPaymentHandler(bus),
		Admin:         ginadapter.NewAdminHandler(domain),
	}
}

// ProvideScheduler creates the background job scheduler.
func ProvideScheduler(
	cfg *config.Config,
	domain subscription.SubscriptionDomain,
	reports outbound.ReportStorePort,
	m *metrics.Metrics,
	clk clock.Clock,
	log *zap.Logger,
) (*scheduler.Scheduler, error) {
	return scheduler.New(domain, reports, m, clk, scheduler.Config{
		SweepSchedule:     cfg.Scheduler.SweepSchedule,
		AnalyticsSchedule: cfg.Scheduler.AnalyticsSchedule,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		Currencies:        cfg.Engine.AnalyticsCurrencies,
		LookbackMonths:    cfg.Engine.AnalyticsLookbackMonths,
	}, log)
}

// AppSet combines every provider set.
var AppSet = wire.NewSet(
	InfraSet,
	OutboundSet,
	DomainSet,
	InboundSet,
)
