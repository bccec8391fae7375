package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const TopicCheckoutEvents = "checkout.events"

const (
	EventCheckoutStarted  = "CheckoutStarted"
	EventAlreadyPurchased = "CheckoutAlreadyPurchased"
	EventOrderCreated     = "CheckoutOrderCreated"
	EventPaymentSubmitted = "CheckoutPaymentSubmitted"
	EventFulfilled        = "CheckoutFulfilled"
	EventFailed           = "CheckoutFailed"
	EventAbandoned        = "CheckoutAbandoned"
	EventCancelled        = "CheckoutCancelled"
)

const EnvelopeVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // intent id
	Payload       json.RawMessage `json:"payload"`
}

// CheckoutPayload is shared by every checkout event; fields that do not
// apply to an event are left empty.
type CheckoutPayload struct {
	IntentID         string           `json:"intent_id"`
	SessionID        string           `json:"session_id,omitempty"`
	ProductID        string           `json:"product_id,omitempty"`
	ProductName      string           `json:"product_name,omitempty"`
	Email            string           `json:"email,omitempty"`
	From             string           `json:"from"`
	Status           string           `json:"status"`
	Provider         string           `json:"provider,omitempty"`
	OrderID          string           `json:"order_id,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	PaymentRef       string           `json:"payment_ref,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Message          string           `json:"message,omitempty"`
	LastPurchaseDate *time.Time       `json:"last_purchase_date,omitempty"`
}

// PartitionKey keeps all events of one intent in order.
func PartitionKey(intentID string) []byte { return []byte(intentID) }
