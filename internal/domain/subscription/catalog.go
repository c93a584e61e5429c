package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"github.com/leobar37/gymspace-sub006/internal/utils/requestctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// PlanInput holds the fields of a new plan.
type PlanInput struct {
	Name             string                     `json:"name"`
	Description      string                     `json:"description"`
	Prices           map[string]decimal.Decimal `json:"prices"`
	BillingFrequency model.BillingFrequency     `json:"billing_frequency"`
	Duration         int                        `json:"duration"`
	DurationUnit     model.DurationUnit         `json:"duration_unit"`
	MaxGyms          int                        `json:"max_gyms"`
	MaxClientsPerGym int                        `json:"max_clients_per_gym"`
	MaxUsersPerGym   int                        `json:"max_users_per_gym"`
	Features         map[string]any             `json:"features"`
	IsPublic         bool                       `json:"is_public"`
	SortOrder        int                        `json:"sort_order"`
}

// PlanUpdate holds optional plan changes. Name, Description, IsPublic and SortOrder are
// metadata; every other field is financial and frozen while the plan is referenced.
type PlanUpdate struct {
	Name             *string                     `json:"name"`
	Description      *string                     `json:"description"`
	IsPublic         *bool                       `json:"is_public"`
	SortOrder        *int                        `json:"sort_order"`
	Prices           *map[string]decimal.Decimal `json:"prices"`
	BillingFrequency *model.BillingFrequency     `json:"billing_frequency"`
	Duration         *int                        `json:"duration"`
	DurationUnit     *model.DurationUnit         `json:"duration_unit"`
	MaxGyms          *int                        `json:"max_gyms"`
	MaxClientsPerGym *int                        `json:"max_clients_per_gym"`
	MaxUsersPerGym   *int                        `json:"max_users_per_gym"`
	Features         *map[string]any             `json:"features"`
}

func (u PlanUpdate) touchesFinancials() bool {
	return u.Prices != nil || u.BillingFrequency != nil || u.Duration != nil || u.DurationUnit != nil ||
		u.MaxGyms != nil || u.MaxClientsPerGym != nil || u.MaxUsersPerGym != nil || u.Features != nil
}

// Catalog holds plan definitions behind a read-through cache.
type Catalog struct {
	planDB   outbound.PlanDatabasePort
	cache    outbound.PlanCachePort
	clock    clock.Clock
	observer Observer
	logger   *zap.Logger
	loads    singleflight.Group

	// gens counts invalidations per cache key. A load only fills the cache if the
	// count has not moved since it started.
	genMu sync.Mutex
	gens  map[string]uint64
}

const (
	activePlansKey  = "plans:active"
	planLoadTimeout = 5 * time.Second
)

func planKey(id uuid.UUID) string {
	return "plan:" + id.String()
}

// NewCatalog creates a new plan catalog. cache may be nil.
func NewCatalog(planDB outbound.PlanDatabasePort, cache outbound.PlanCachePort, clk clock.Clock, observer Observer, logger *zap.Logger) *Catalog {
	return &Catalog{
		planDB:   planDB,
		cache:    cache,
		clock:    clk,
		observer: observerOrNop(observer),
		logger:   logger,
		gens:     make(map[string]uint64),
	}
}

// GetPlan returns a plan by id.
func (c *Catalog) GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	if c.cache != nil {
		plan, err := c.cache.GetPlan(ctx, id)
		if err == nil {
			c.observer.PlanCacheLookup(true)
			return plan, nil
		}
		c.observer.PlanCacheLookup(false)
		if !errors.Is(err, outbound.ErrCacheMiss) {
			c.logger.Warn("plan cache read failed", zap.String("plan_id", id.String()), zap.Error(err))
		}
	}

	key := planKey(id)
	gen := c.generation(key)
	v, err, _ := c.loads.Do(fmt.Sprintf("%s@%d", key, gen), func() (any, error) {
		ctx, cancel := loadContext(ctx)
		defer cancel()

		plan, err := c.planDB.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get plan: %w", err)
		}
		if plan == nil {
			return nil, notFound("plan", id)
		}
		c.fill(key, gen, func() {
			if err := c.cache.SetPlan(ctx, plan); err != nil {
				c.logger.Warn("plan cache write failed", zap.String("plan_id", id.String()), zap.Error(err))
			}
		})
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SubscriptionPlan), nil
}

// ListActivePlans lists active plans offered in currency, or every active plan when
// currency is empty, sorted by sort order then name.
func (c *Catalog) ListActivePlans(ctx context.Context, currency string) ([]*model.SubscriptionPlan, error) {
	currency = NormalizeCurrency(currency)
	if currency != "" && !IsCurrencyCode(currency) {
		return nil, invalidField("currency", "%q is not an ISO 4217 code", currency)
	}

	plans, err := c.activePlans(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*model.SubscriptionPlan, 0, len(plans))
	for _, p := range plans {
		if currency != "" {
			if _, ok := p.PriceFor(currency); !ok {
				continue
			}
		}
		out = append(out, p)
	}
	sortPlans(out)
	return out, nil
}

func (c *Catalog) activePlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	if c.cache != nil {
		plans, err := c.cache.GetActivePlans(ctx)
		if err == nil {
			c.observer.PlanCacheLookup(true)
			return plans, nil
		}
		c.observer.PlanCacheLookup(false)
		if !errors.Is(err, outbound.ErrCacheMiss) {
			c.logger.Warn("active plan cache read failed", zap.Error(err))
		}
	}

	gen := c.generation(activePlansKey)
	v, err, _ := c.loads.Do(fmt.Sprintf("%s@%d", activePlansKey, gen), func() (any, error) {
		ctx, cancel := loadContext(ctx)
		defer cancel()

		plans, err := c.planDB.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active plans: %w", err)
		}
		c.fill(activePlansKey, gen, func() {
			if err := c.cache.SetActivePlans(ctx, plans); err != nil {
				c.logger.Warn("active plan cache write failed", zap.Error(err))
			}
		})
		return plans, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.SubscriptionPlan), nil
}

// ResolvePrice returns the plan price in currency. There is no implicit conversion.
func (c *Catalog) ResolvePrice(plan *model.SubscriptionPlan, currency string) (Money, error) {
	return resolvePrice(plan, currency)
}

func resolvePrice(plan *model.SubscriptionPlan, currency string) (Money, error) {
	currency = NormalizeCurrency(currency)
	amount, ok := plan.PriceFor(currency)
	if !ok {
		return Money{}, &ValidationError{
			Field:   "currency",
			Message: fmt.Sprintf("plan %s is not offered in %s", plan.ID, currency),
			Err:     ErrUnsupportedCurrency,
		}
	}
	return NewMoney(amount, currency), nil
}

// CreatePlan validates and stores a new active plan.
func (c *Catalog) CreatePlan(ctx context.Context, in PlanInput) (*model.SubscriptionPlan, error) {
	now := c.clock.Now()
	plan := &model.SubscriptionPlan{
		ID:               uuid.New(),
		Name:             strings.TrimSpace(in.Name),
		Description:      in.Description,
		Prices:           datatypes.NewJSONType(normalizePrices(in.Prices)),
		BillingFrequency: in.BillingFrequency,
		Duration:         in.Duration,
		DurationUnit:     in.DurationUnit,
		MaxGyms:          in.MaxGyms,
		MaxClientsPerGym: in.MaxClientsPerGym,
		MaxUsersPerGym:   in.MaxUsersPerGym,
		Features:         datatypes.JSONMap(in.Features),
		IsActive:         true,
		IsPublic:         in.IsPublic,
		SortOrder:        in.SortOrder,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	if err := c.planDB.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	c.invalidate(ctx, plan.ID)

	c.logger.Info("plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("name", plan.Name),
	)
	return plan, nil
}

// UpdatePlan applies changes to a plan. Financial fields are frozen while any live
// subscription references the plan.
func (c *Catalog) UpdatePlan(ctx context.Context, id uuid.UUID, upd PlanUpdate) (*model.SubscriptionPlan, error) {
	current, err := c.planDB.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if current == nil {
		return nil, notFound("plan", id)
	}

	if upd.touchesFinancials() {
		refs, err := c.planDB.CountReferences(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("count plan references: %w", err)
		}
		if refs > 0 {
			return nil, &ValidationError{
				Field:   "plan",
				Message: fmt.Sprintf("plan %s is used by %d subscriptions; only name, description and visibility may change", id, refs),
				Err:     ErrPlanReferenced,
			}
		}
	}

	next := *current
	applyPlanUpdate(&next, upd)
	next.Version = current.Version + 1
	next.UpdatedAt = c.clock.Now()
	if err := validatePlan(&next); err != nil {
		return nil, err
	}

	if err := c.planDB.Update(ctx, &next, current.Version); err != nil {
		if errors.Is(err, outbound.ErrVersionConflict) {
			return nil, &ConflictError{Resource: "plan", ID: id, ExpectedVersion: current.Version}
		}
		return nil, fmt.Errorf("update plan: %w", err)
	}
	c.invalidate(ctx, id)
	return &next, nil
}

// RetirePlan soft-retires a plan. Existing subscriptions keep it; new ones cannot pick it.
func (c *Catalog) RetirePlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	current, err := c.planDB.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if current == nil {
		return nil, notFound("plan", id)
	}
	if !current.IsActive {
		return current, nil
	}

	next := *current
	next.IsActive = false
	next.Version = current.Version + 1
	next.UpdatedAt = c.clock.Now()
	if err := c.planDB.Update(ctx, &next, current.Version); err != nil {
		if errors.Is(err, outbound.ErrVersionConflict) {
			return nil, &ConflictError{Resource: "plan", ID: id, ExpectedVersion: current.Version}
		}
		return nil, fmt.Errorf("retire plan: %w", err)
	}
	c.invalidate(ctx, id)

	c.logger.Info("plan retired", zap.String("plan_id", id.String()))
	return &next, nil
}

// loadContext returns the context a shared load runs on. It keeps the request id of
// ctx and nothing else, so a load never joins the transaction or the deadline of
// whichever caller started it.
func loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.Background()
	if id := requestctx.RequestID(ctx); id != "" {
		base = requestctx.WithRequestID(base, id)
	}
	return context.WithTimeout(base, planLoadTimeout)
}

func (c *Catalog) generation(key string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[key]
}

// fill runs set unless key was invalidated after gen was read. The lock is held
// through set so an invalidation cannot slip between the check and the write.
func (c *Catalog) fill(key string, gen uint64, set func()) {
	if c.cache == nil {
		return
	}
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.gens[key] != gen {
		c.logger.Debug("skipping cache fill after invalidation", zap.String("key", key))
		return
	}
	set()
}

// invalidate drops cached entries before the mutation returns.
func (c *Catalog) invalidate(ctx context.Context, id uuid.UUID) {
	c.genMu.Lock()
	c.gens[planKey(id)]++
	c.gens[activePlansKey]++
	c.genMu.Unlock()

	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, id); err != nil {
		c.logger.Error("plan cache invalidation failed", zap.String("plan_id", id.String()), zap.Error(err))
	}
}

func applyPlanUpdate(p *model.SubscriptionPlan, upd PlanUpdate) {
	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.IsPublic != nil {
		p.IsPublic = *upd.IsPublic
	}
	if upd.SortOrder != nil {
		p.SortOrder = *upd.SortOrder
	}
	if upd.Prices != nil {
		p.Prices = datatypes.NewJSONType(normalizePrices(*upd.Prices))
	}
	if upd.BillingFrequency != nil {
		p.BillingFrequency = *upd.BillingFrequency
	}
	if upd.Duration != nil {
		p.Duration = *upd.Duration
	}
	if upd.DurationUnit != nil {
		p.DurationUnit = *upd.DurationUnit
	}
	if upd.MaxGyms != nil {
		p.MaxGyms = *upd.MaxGyms
	}
	if upd.MaxClientsPerGym != nil {
		p.MaxClientsPerGym = *upd.MaxClientsPerGym
	}
	if upd.MaxUsersPerGym != nil {
		p.MaxUsersPerGym = *upd.MaxUsersPerGym
	}
	if upd.Features != nil {
		p.Features = datatypes.JSONMap(*upd.Features)
	}
}

func normalizePrices(in map[string]decimal.Decimal) model.PriceMap {
	out := make(model.PriceMap, len(in))
	for code, amount := range in {
		out[NormalizeCurrency(code)] = amount
	}
	return out
}

func validatePlan(p *model.SubscriptionPlan) error {
	if p.Name == "" {
		return invalidField("name", "is required")
	}
	prices := p.PriceMap()
	if len(prices) == 0 {
		return invalidField("prices", "at least one currency is required")
	}
	for code, amount := range prices {
		if !IsCurrencyCode(code) {
			return invalidField("prices", "%q is not an ISO 4217 code", code)
		}
		if amount.IsNegative() {
			return invalidField("prices", "%s price must not be negative", code)
		}
	}
	if !p.BillingFrequency.IsValid() {
		return invalidField("billing_frequency", "unknown frequency %q", p.BillingFrequency)
	}
	if p.Duration <= 0 {
		return invalidField("duration", "must be positive")
	}
	if !p.DurationUnit.IsValid() {
		return invalidField("duration_unit", "unknown unit %q", p.DurationUnit)
	}
	if p.MaxGyms < 1 {
		return invalidField("max_gyms", "must be at least 1")
	}
	if p.MaxClientsPerGym < 0 {
		return invalidField("max_clients_per_gym", "must not be negative")
	}
	if p.MaxUsersPerGym < 0 {
		return invalidField("max_users_per_gym", "must not be negative")
	}
	for name, v := range p.Features {
		switch v.(type) {
		case bool, float64, float32, int, int32, int64:
		default:
			return invalidField("features", "feature %q must be a bool or a number", name)
		}
	}
	return nil
}

func sortPlans(plans []*model.SubscriptionPlan) {
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].SortOrder != plans[j].SortOrder {
			return plans[i].SortOrder < plans[j].SortOrder
		}
		return plans[i].Name < plans[j].Name
	})
}
