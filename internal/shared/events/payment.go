package events

import "github.com/leobar37/gymspace-sub006/internal/model"

// PaymentOutcomeReceivedType is the event type of gateway payment outcomes.
const PaymentOutcomeReceivedType = "PaymentOutcomeReceived"

// PaymentOutcomeReceivedEvent carries a gateway outcome into the subscription engine.
type PaymentOutcomeReceivedEvent struct {
	BaseEvent

	// Outcome is the gateway-agnostic payment result.
	Outcome model.PaymentOutcome `json:"outcome"`

	// Provider names the gateway that reported it.
	Provider string `json:"provider,omitempty"`
}

// NewPaymentOutcomeReceivedEvent creates a new PaymentOutcomeReceivedEvent.
func NewPaymentOutcomeReceivedEvent(outcome model.PaymentOutcome, provider string) *PaymentOutcomeReceivedEvent {
	ev := &PaymentOutcomeReceivedEvent{
		BaseEvent: NewBaseEvent(PaymentOutcomeReceivedType, outcome.Reference, "Payment"),
		Outcome:   outcome,
		Provider:  provider,
	}
	if ev.Outcome.ReceivedAt.IsZero() {
		ev.Outcome.ReceivedAt = ev.Timestamp
	} else {
		ev.Timestamp = ev.Outcome.ReceivedAt.UTC()
	}
	return ev
}
