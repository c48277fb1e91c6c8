package domain

import "context"

// RegisterRequest creates the durable transaction record before the buyer is
// redirected to the gateway.
type RegisterRequest struct {
	Provider       string
	Reference      string
	Amount         int64
	Currency       string
	Quantity       int
	BuyerEmail     string
	Metadata       map[string]any
	IdempotencyKey string
}

// InitiateResponse carries what the caller needs to redirect the buyer.
type InitiateResponse struct {
	Transaction      *Transaction
	AuthorizationURL string
	AccessCode       string
	IsCachedResponse bool
}

type Service interface {
	// Register records the payment attempt with status created. A repeated
	// (provider, reference) returns the existing row.
	Register(ctx context.Context, req RegisterRequest) (*Transaction, error)
	// Initiate registers and then opens the payment at the gateway. A reused
	// idempotency key returns the previously issued authorization without
	// creating a second row.
	Initiate(ctx context.Context, req RegisterRequest) (*InitiateResponse, error)
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
}
