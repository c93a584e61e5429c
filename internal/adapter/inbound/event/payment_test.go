package event

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/domain/subscription"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDomain struct {
	subscription.SubscriptionDomain
	received []model.PaymentOutcome
	err      error
}

func (f *fakeDomain) HandlePaymentOutcome(_ context.Context, outcome model.PaymentOutcome) (*subscription.PaymentResult, error) {
	f.received = append(f.received, outcome)
	if f.err != nil {
		return nil, f.err
	}
	return &subscription.PaymentResult{Action: subscription.PaymentActionApproved}, nil
}

func TestPaymentOutcomeHandler(t *testing.T) {
	t.Run("applies outcome", func(t *testing.T) {
		domain := &fakeDomain{}
		bus := events.NewBus(zap.NewNop())
		bus.Register(NewPaymentOutcomeHandler(domain, zap.NewNop()))

		ref := uuid.New()
		err := bus.Publish(context.Background(), events.NewPaymentOutcomeReceivedEvent(model.PaymentOutcome{
			Reference: ref,
			Outcome:   model.PaymentSucceeded,
		}, "stripe"))
		require.NoError(t, err)
		require.Len(t, domain.received, 1)
		assert.Equal(t, ref, domain.received[0].Reference)
		assert.False(t, domain.received[0].ReceivedAt.IsZero())
	})

	t.Run("domain errors reach the publisher", func(t *testing.T) {
		domain := &fakeDomain{err: &subscription.NotFoundError{Resource: "payment reference", ID: "x"}}
		bus := events.NewBus(zap.NewNop())
		bus.Register(NewPaymentOutcomeHandler(domain, zap.NewNop()))

		err := bus.Publish(context.Background(), events.NewPaymentOutcomeReceivedEvent(model.PaymentOutcome{
			Reference: uuid.New(),
			Outcome:   model.PaymentFailed,
		}, ""))
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("rejects foreign payloads", func(t *testing.T) {
		domain := &fakeDomain{}
		h := NewPaymentOutcomeHandler(domain, zap.NewNop())
		err := h.Handle(context.Background(), events.NewBaseEvent(events.PaymentOutcomeReceivedType, uuid.New(), "Payment"))
		assert.Error(t, err)
		assert.Empty(t, domain.received)
	})
}
