package audit

import (
	"context"

	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"go.uber.org/zap"
)

// logSink writes audit events to the structured log.
type logSink struct {
	logger *zap.Logger
}

// NewLogSink creates an audit sink backed by the logger.
func NewLogSink(logger *zap.Logger) outbound.AuditSinkPort {
	return &logSink{logger: logger.Named("audit")}
}

func (s *logSink) Record(_ context.Context, event *model.AuditEvent) {
	s.logger.Info("audit event",
		zap.String("event_id", event.ID.String()),
		zap.String("kind", string(event.Kind)),
		zap.String("organization_id", event.OrganizationID.String()),
		zap.String("subject_id", event.SubjectID.String()),
		zap.String("action", event.Action),
		zap.String("actor", event.Actor),
		zap.Any("payload", event.Payload),
		zap.Time("occurred_at", event.OccurredAt),
	)
}

// multiSink fans events out to several sinks.
type multiSink struct {
	sinks []outbound.AuditSinkPort
}

// NewMultiSink creates a sink that records every event in each non-nil sink.
func NewMultiSink(sinks ...outbound.AuditSinkPort) outbound.AuditSinkPort {
	live := make([]outbound.AuditSinkPort, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &multiSink{sinks: live}
}

func (s *multiSink) Record(ctx context.Context, event *model.AuditEvent) {
	for _, sink := range s.sinks {
		sink.Record(ctx, event)
	}
}

// Compile-time check
var (
	_ outbound.AuditSinkPort = (*logSink)(nil)
	_ outbound.AuditSinkPort = (*multiSink)(nil)
)
