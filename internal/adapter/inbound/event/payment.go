package event

import (
	"context"
	"fmt"

	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/shared/events"
	"go.uber.org/zap"
)

// NewPaymentOutcomeHandler returns a bus handler that feeds payment outcomes
// into the subscription engine.
func NewPaymentOutcomeHandler(domain subscription.SubscriptionDomain, logger *zap.Logger) events.Handler {
	log := logger.Named("payment-events")
	return events.NewHandlerFunc([]string{events.PaymentOutcomeReceivedType}, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(*events.PaymentOutcomeReceivedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", e)
		}

		result, err := domain.HandlePaymentOutcome(ctx, ev.Outcome)
		if err != nil {
			log.Warn("payment outcome not applied",
				zap.String("event_id", ev.EventID().String()),
				zap.String("reference", ev.Outcome.Reference.String()),
				zap.String("outcome", string(ev.Outcome.Outcome)),
				zap.Error(err),
			)
			return err
		}

		log.Info("payment outcome applied",
			zap.String("event_id", ev.EventID().String()),
			zap.String("reference", ev.Outcome.Reference.String()),
			zap.String("outcome", string(ev.Outcome.Outcome)),
			zap.String("provider", ev.Provider),
			zap.String("action", result.Action),
		)
		return nil
	})
}
