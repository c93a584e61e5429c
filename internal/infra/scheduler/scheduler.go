package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Engine is the part of the subscription engine driven by background jobs.
type Engine interface {
	RunExpirySweep(ctx context.Context, now time.Time) (subscription.SweepResult, error)
	GetAnalytics(ctx context.Context, q subscription.AnalyticsQuery) (*model.AnalyticsReport, error)
}

// Recorder receives job measurements. *metrics.Metrics implements it.
type Recorder interface {
	RecordSweepDuration(d time.Duration)
	SetMRR(currency string, value float64)
}

// Config contains scheduler configuration.
type Config struct {
	SweepSchedule     string
	AnalyticsSchedule string
	JobTimeout        time.Duration
	Currencies        []string
	LookbackMonths    int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		SweepSchedule:     "@every 15m",
		AnalyticsSchedule: "@daily",
		JobTimeout:        5 * time.Minute,
		Currencies:        []string{"USD"},
		LookbackMonths:    1,
	}
}

// Scheduler runs the expiry sweep and analytics snapshots on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	engine   Engine
	reports  outbound.ReportStorePort
	recorder Recorder
	clock    clock.Clock
	config   Config
	logger   *zap.Logger
}

// New creates a scheduler and registers its jobs. reports may be nil, in which
// case snapshots are computed and recorded but not stored.
func New(engine Engine, reports outbound.ReportStorePort, recorder Recorder, clk clock.Clock, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = 1
	}

	s := &Scheduler{
		engine:   engine,
		reports:  reports,
		recorder: recorder,
		clock:    clk,
		config:   cfg,
		logger:   logger.Named("scheduler"),
	}

	cronLog := cronLogger{s.logger.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if cfg.SweepSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.SweepSchedule, s.sweepJob); err != nil {
			return nil, fmt.Errorf("schedule expiry sweep: %w", err)
		}
	}
	if cfg.AnalyticsSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.AnalyticsSchedule, s.analyticsJob); err != nil {
			return nil, fmt.Errorf("schedule analytics snapshot: %w", err)
		}
	}
	return s, nil
}

// Start starts the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler",
		zap.String("sweep_schedule", s.config.SweepSchedule),
		zap.String("analytics_schedule", s.config.AnalyticsSchedule))
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

func (s *Scheduler) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()
	_, _ = s.RunSweep(ctx)
}

func (s *Scheduler) analyticsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()
	_ = s.RunAnalytics(ctx)
}

// RunSweep runs one expiry sweep as of the current time.
func (s *Scheduler) RunSweep(ctx context.Context) (subscription.SweepResult, error) {
	start := time.Now()
	result, err := s.engine.RunExpirySweep(ctx, s.clock.Now())
	if s.recorder != nil {
		s.recorder.RecordSweepDuration(time.Since(start))
	}

	fields := []zap.Field{
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Error("expiry sweep finished with errors", append(fields, zap.Error(err))...)
		return result, err
	}
	s.logger.Info("expiry sweep finished", fields...)
	return result, nil
}

// RunAnalytics computes an analytics snapshot for every configured currency,
// publishes its MRR and stores it when a report store is configured.
func (s *Scheduler) RunAnalytics(ctx context.Context) error {
	period := SnapshotPeriod(s.clock.Now(), s.config.LookbackMonths)
	granularity := model.GranularityDay
	if s.config.LookbackMonths > 1 {
		granularity = model.GranularityMonth
	}

	var errs []error
	for _, currency := range s.config.Currencies {
		report, err := s.engine.GetAnalytics(ctx, subscription.AnalyticsQuery{
			Period:      period,
			Currency:    currency,
			Granularity: granularity,
		})
		if err != nil {
			s.logger.Error("analytics snapshot failed", zap.String("currency", currency), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", currency, err))
			continue
		}
		if s.recorder != nil {
			s.recorder.SetMRR(currency, report.Metrics.MRR.InexactFloat64())
		}

		fields := []zap.Field{
			zap.String("currency", currency),
			zap.Time("start", period.Start),
			zap.Time("end", period.End),
			zap.String("mrr", report.Metrics.MRR.StringFixed(2)),
			zap.Int("active", report.Metrics.ActiveAtEnd),
		}
		if s.reports != nil {
			key, err := s.reports.Save(ctx, report)
			if err != nil {
				s.logger.Error("store analytics snapshot", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Errorf("%s: store: %w", currency, err))
				continue
			}
			fields = append(fields, zap.String("key", key))
		}
		s.logger.Info("analytics snapshot recorded", fields...)
	}
	return errors.Join(errs...)
}

// SnapshotPeriod returns the period a snapshot taken at now covers: from the
// first day of the month lookback-1 months back up to the start of today.
// On the first of a month the previous month is reported in full.
func SnapshotPeriod(now time.Time, lookbackMonths int) model.AnalyticsPeriod {
	if lookbackMonths <= 0 {
		lookbackMonths = 1
	}
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(lookbackMonths - 1), 0)
	if !start.Before(end) {
		start = start.AddDate(0, -1, 0)
	}
	return model.AnalyticsPeriod{Start: start, End: end}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
