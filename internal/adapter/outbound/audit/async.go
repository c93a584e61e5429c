package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"go.uber.org/zap"
)

// AsyncConfig contains asynchronous sink configuration.
type AsyncConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// DefaultAsyncConfig returns the default asynchronous sink configuration.
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		BufferSize:    1024,
		BatchSize:     100,
		FlushInterval: time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

// AsyncSink persists audit events in batches from a background goroutine.
// Record never blocks: when the buffer is full the event is dropped with a warning.
type AsyncSink struct {
	store  outbound.AuditEventDatabasePort
	config AsyncConfig
	logger *zap.Logger

	events chan *model.AuditEvent

	// Lifecycle
	mu      sync.RWMutex
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewAsyncSink creates and starts an asynchronous database sink.
func NewAsyncSink(store outbound.AuditEventDatabasePort, config AsyncConfig, logger *zap.Logger) *AsyncSink {
	def := DefaultAsyncConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = def.FlushInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	s := &AsyncSink{
		store:  store,
		config: config,
		logger: logger.Named("audit-sink"),
		events: make(chan *model.AuditEvent, config.BufferSize),
		stopCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record enqueues the event.
func (s *AsyncSink) Record(_ context.Context, event *model.AuditEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("audit event dropped after close", zap.String("event_id", event.ID.String()))
		return
	}

	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit buffer full, event dropped",
			zap.String("event_id", event.ID.String()),
			zap.String("organization_id", event.OrganizationID.String()),
			zap.String("action", event.Action),
		)
	}
}

// Close stops accepting events and flushes what is buffered.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *AsyncSink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditEvent, 0, s.config.BatchSize)
	for {
		select {
		case event := <-s.events:
			batch = append(batch, event)
			if len(batch) >= s.config.BatchSize {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
		case <-s.stopCh:
			for {
				select {
				case event := <-s.events:
					batch = append(batch, event)
				default:
					s.flush(batch)
					return
				}
			}
		}
	}
}

func (s *AsyncSink) flush(batch []*model.AuditEvent) []*model.AuditEvent {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if err := s.store.CreateBatch(ctx, batch); err != nil {
		s.logger.Error("failed to persist audit events",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
	return make([]*model.AuditEvent, 0, s.config.BatchSize)
}

// Dropped returns the number of events discarded because the buffer was full.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Compile-time check
var _ outbound.AuditSinkPort = (*AsyncSink)(nil)
