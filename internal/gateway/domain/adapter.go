package domain

import (
	"context"
	"net/http"
)

// InitializeRequest starts a payment attempt at the gateway.
type InitializeRequest struct {
	Amount         int64
	Currency       string
	Email          string
	Reference      string
	Metadata       map[string]any
	IdempotencyKey string
}

// InitializeResponse is what the caller needs to redirect the buyer.
// IsCachedResponse is set when the gateway reported the idempotency key (or
// reference) as already used and the previously issued authorization was
// returned instead of a fresh one.
type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	IdempotencyKey   string
	IsCachedResponse bool
}

// Adapter wraps one provider's HTTP API behind the canonical contract.
type Adapter interface {
	Provider() string
	InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	// Verify re-queries gateway state for a reference. A nil event with
	// ErrUnresolved means "still not resolved", not an error.
	Verify(ctx context.Context, reference string) (*PaymentEvent, error)
	VerifySignature(payload []byte, headers http.Header) error
	ParseWebhook(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// AdapterConfig carries provider credentials and transport settings.
type AdapterConfig struct {
	Provider      string
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Environment   string
	HTTPClient    *http.Client
}

type Factory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
