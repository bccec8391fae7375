package events

import (
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
)

// Sink is satisfied by *kafka.Producer.
type Sink interface {
	Publish(key, value []byte, headers ...kafkago.Header) bool
}

// Publisher turns checkout transitions into events.
type Publisher struct {
	Sink        Sink
	ServiceName string
	Now         func() time.Time
}

// Listener returns a checkout.Listener for one buyer session.
func (p *Publisher) Listener(sessionID string) checkout.Listener {
	return func(t checkout.Transition) {
		eventType, in, ok := Classify(t)
		if !ok {
			return
		}
		env := p.envelope(eventType, sessionID, t, in)
		if !p.Sink.Publish(PartitionKey(in.ID), kafkax.MustMarshal(env), kafkax.EventHeaders(eventType, EnvelopeVersion)...) {
			log.WithFields(log.Fields{
				"event":  eventType,
				"intent": in.ID,
			}).Warn("checkout event not published")
		}
	}
}

// Classify picks the event for t and the intent it describes. Steps that
// only wait on the backend produce no event.
func Classify(t checkout.Transition) (string, checkout.Intent, bool) {
	in := t.Snapshot.Intent
	switch t.To {
	case checkout.StatusValidating:
		return EventCheckoutStarted, in, true
	case checkout.StatusAlreadyPurchased:
		return EventAlreadyPurchased, in, true
	case checkout.StatusAwaitingGateway:
		return EventOrderCreated, in, true
	case checkout.StatusVerifying:
		return EventPaymentSubmitted, in, true
	case checkout.StatusFulfilled:
		return EventFulfilled, in, true
	case checkout.StatusFailed:
		return EventFailed, in, true
	case checkout.StatusIdle:
		if t.From == checkout.StatusAwaitingGateway && t.Dropped == nil {
			return EventAbandoned, in, true
		}
		if t.Dropped != nil && t.From.InFlight() {
			return EventCancelled, *t.Dropped, true
		}
	}
	return "", checkout.Intent{}, false
}

func (p *Publisher) envelope(eventType, sessionID string, t checkout.Transition, in checkout.Intent) Envelope {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	payload := CheckoutPayload{
		IntentID:         in.ID,
		SessionID:        sessionID,
		ProductID:        in.Product.ID.String(),
		ProductName:      in.Product.Name,
		Email:            in.Email,
		From:             t.From.String(),
		Status:           t.To.String(),
		Provider:         t.Snapshot.Provider,
		LastPurchaseDate: in.LastPurchaseDate,
	}
	if o := in.Order; o != nil {
		amount := o.Amount
		payload.OrderID, payload.Amount, payload.Currency = o.OrderID, &amount, o.Currency
	}
	if ev := in.Evidence; ev != nil {
		payload.PaymentRef = ev.Reference()
	}
	if f := in.Failure; f != nil {
		payload.Reason, payload.Message = string(f.Reason), f.Message
		if f.PaymentRef != "" {
			payload.PaymentRef = f.PaymentRef
		}
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EnvelopeVersion,
		OccurredAt:    now().UTC(),
		Producer:      p.ServiceName,
		TraceID:       sessionID,
		CorrelationID: in.ID,
		Payload:       kafkax.MustMarshal(payload),
	}
}
