package domain

import "time"

// EventType classifies a canonical payment event.
type EventType string

const (
	EventTypeCharge   EventType = "charge"
	EventTypeTransfer EventType = "transfer"
	EventTypeRefund   EventType = "refund"
)

// PaymentEvent is the canonical event every adapter reduces provider payloads
// to. Nothing provider-specific crosses this boundary.
type PaymentEvent struct {
	OK                    bool
	Type                  EventType
	Provider              string
	Reference             string
	ProviderTransactionID string
	Amount                int64
	Currency              string
	FailureReason         string
	Metadata              map[string]any
	RawPayload            []byte
	OccurredAt            time.Time
}
