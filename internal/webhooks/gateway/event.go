package gatewaywebhook

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the gateway's notification kind.
type EventType string

const (
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventPaymentCancelled EventType = "payment.cancelled"
)

// Known reports whether the reconciler acts on the event.
func (e EventType) Known() bool {
	switch e {
	case EventPaymentCompleted, EventPaymentFailed, EventPaymentCancelled:
		return true
	}
	return false
}

// Event is the JSON body the gateway posts to the notify URL.
type Event struct {
	Event         EventType        `json:"event"`
	SessionID     string           `json:"sessionId"`
	TransactionID string           `json:"transactionId,omitempty"`
	OrderID       string           `json:"orderId,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Status        string           `json:"status,omitempty"`
	Timestamp     string           `json:"timestamp,omitempty"`
	CardLast4     string           `json:"cardLast4,omitempty"`
	CardBrand     string           `json:"cardBrand,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// Outcome is what a delivery did.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeProcessed Outcome = "processed"
)

// OccurredAt parses the gateway timestamp, falling back to fallback when it
// is absent or not RFC 3339.
func (e Event) OccurredAt(fallback time.Time) time.Time {
	if e.Timestamp == "" {
		return fallback
	}
	parsed, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return fallback
	}
	return parsed.UTC()
}
