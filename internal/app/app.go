package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ginadapter "github.com/leobar37/gymspace-sub006/internal/adapter/inbound/gin"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/infra/scheduler"
	"github.com/leobar37/gymspace-sub006/internal/shared/config"
	"github.com/leobar37/gymspace-sub006/internal/shared/events"
	"github.com/leobar37/gymspace-sub006/internal/utils/metrics"
	"github.com/leobar37/gymspace-sub006/internal/utils/middleware"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *gorm.DB
	Redis     goredis.UniversalClient
	Metrics   *metrics.Metrics
	Domain    subscription.SubscriptionDomain
	EventBus  *events.Bus
	Validator *middleware.TokenValidator
	Handlers  ginadapter.Handlers
	Scheduler *scheduler.Scheduler
}

// App represents the application.
type App struct {
	deps    *Dependencies
	cleanup func()
	router  *gin.Engine
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := InitializeDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}

	a := &App{deps: deps, cleanup: cleanup}
	a.router = a.setupRouter()
	a.registerRoutes()
	return a, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.deps.Config.Server.Mode != "" {
		gin.SetMode(a.deps.Config.Server.Mode)
	}

	r := gin.New()

	corsCfg := middleware.DefaultCORSConfig()
	if len(a.deps.Config.Server.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = a.deps.Config.Server.AllowedOrigins
	}

	// Apply global middleware
	r.Use(middleware.Recovery(a.deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.deps.Logger))
	r.Use(middleware.Metrics(a.deps.Metrics))
	r.Use(middleware.CORS(corsCfg))

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// health reports liveness of the database and, when configured, Redis.
func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"status": "ok"}
	code := http.StatusOK

	if sqlDB, err := a.deps.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if a.deps.Redis != nil {
		if err := a.deps.Redis.Ping(ctx).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, status)
}

// registerRoutes registers the API routes.
func (a *App) registerRoutes() {
	var idempotency gin.HandlerFunc
	if a.deps.Redis != nil {
		idempotency = middleware.Idempotency(a.deps.Redis, middleware.IdempotencyConfig{
			TTL:       a.deps.Config.Engine.IdempotencyTTL,
			KeyPrefix: a.deps.Config.Cache.KeyPrefix + "idempotency:",
			Logger:    a.deps.Logger,
		})
	}
	ginadapter.RegisterRoutes(a.router, a.deps.Handlers, a.deps.Validator, idempotency)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.deps.Logger
}

// Scheduler returns the background job scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.deps.Scheduler
}

// StartJobs starts the background jobs if they are enabled.
func (a *App) StartJobs() {
	if a.deps.Config.Scheduler.Enabled {
		a.deps.Scheduler.Start()
	}
}

// Stop stops background jobs and releases resources.
func (a *App) Stop(ctx context.Context) {
	if a.deps.Config.Scheduler.Enabled {
		a.deps.Scheduler.Stop(ctx)
	}

	// Flushes the audit buffer, then closes Redis and the database
	if a.cleanup != nil {
		a.cleanup()
	}

	_ = a.deps.Logger.Sync()
}

// Domain returns the subscription engine.
func (a *App) Domain() subscription.SubscriptionDomain {
	return a.deps.Domain
}
