package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
)

var (
	ErrInvalidEvent   = errors.New("invalid_settlement_event")
	ErrOrphanEvent    = errors.New("orphan_payment_event")
	ErrAmountMismatch = errors.New("settlement_amount_mismatch")
)

// Result reports what one settlement attempt did. AlreadyProcessed means the
// transaction was successful before this attempt and nothing was changed.
type Result struct {
	TransactionID    snowflake.ID
	AlreadyProcessed bool
	Failed           bool
	TicketsIssued    int
	CreditedAmount   int64
}

// Service is the single convergence point for webhook deliveries and poll
// verifications. Both paths hand it the same canonical event.
type Service interface {
	Settle(ctx context.Context, event *gatewaydomain.PaymentEvent) (*Result, error)
	HandleRefund(ctx context.Context, event *gatewaydomain.PaymentEvent) error
	HandleTransfer(ctx context.Context, event *gatewaydomain.PaymentEvent) error
}
