package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ovationhq/ovation/internal/gateway/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "paystack"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		// Paystack signs webhooks with the account secret key.
		webhookSecret = secret
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &Adapter{
		secretKey:     secret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		client:        client,
	}, nil
}

type Adapter struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

func (a *Adapter) Provider() string { return "paystack" }

func (a *Adapter) VerifySignature(payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("x-paystack-signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Event) {
	case "charge.success":
		return a.parseCharge(event, payload, true)
	case "charge.failed":
		return a.parseCharge(event, payload, false)
	case "transfer.success":
		return a.parseTransfer(event, payload, true, "")
	case "transfer.failed":
		return a.parseTransfer(event, payload, false, "transfer_failed")
	case "transfer.reversed":
		return a.parseTransfer(event, payload, false, "transfer_reversed")
	case "refund.processed":
		return a.parseRefund(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

func (a *Adapter) Verify(ctx context.Context, reference string) (*domain.PaymentEvent, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrInvalidEvent
	}

	body, err := a.get(ctx, "/transaction/verify/"+reference)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status bool            `json:"status"`
		Data   chargeData      `json:"data"`
		Raw    json.RawMessage `json:"-"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if !resp.Status {
		return nil, domain.ErrUnresolved
	}

	switch strings.ToLower(strings.TrimSpace(resp.Data.Status)) {
	case "success":
		return chargeEvent(resp.Data, body, true, ""), nil
	case "failed", "reversed":
		reason := strings.TrimSpace(resp.Data.GatewayResponse)
		if reason == "" {
			reason = "gateway_declined"
		}
		return chargeEvent(resp.Data, body, false, reason), nil
	default:
		// pending, ongoing, abandoned: not resolved yet
		return nil, domain.ErrUnresolved
	}
}

func (a *Adapter) InitializePayment(ctx context.Context, req domain.InitializeRequest) (*domain.InitializeResponse, error) {
	if req.Amount <= 0 || strings.TrimSpace(req.Email) == "" {
		return nil, domain.ErrInvalidEvent
	}

	payload := map[string]any{
		"amount":    req.Amount,
		"email":     req.Email,
		"reference": req.Reference,
	}
	if req.Currency != "" {
		payload["currency"] = strings.ToUpper(req.Currency)
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transaction/initialize", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, domain.ErrUnresolved
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, domain.ErrUnresolved
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	cached := httpResp.StatusCode == http.StatusConflict ||
		strings.Contains(strings.ToLower(resp.Message), "duplicate")

	if resp.Data.AuthorizationURL == "" {
		if cached {
			// Conflict without a replayed body: the caller resolves the
			// original authorization from its own store.
			return &domain.InitializeResponse{
				Reference:        req.Reference,
				IdempotencyKey:   req.IdempotencyKey,
				IsCachedResponse: true,
			}, nil
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, domain.ErrUnresolved
		}
		return nil, fmt.Errorf("paystack initialize rejected: %s", resp.Message)
	}

	return &domain.InitializeResponse{
		AuthorizationURL: resp.Data.AuthorizationURL,
		AccessCode:       resp.Data.AccessCode,
		Reference:        resp.Data.Reference,
		IdempotencyKey:   req.IdempotencyKey,
		IsCachedResponse: cached,
	}, nil
}

func (a *Adapter) get(ctx context.Context, path string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		// Timeouts and connection errors are "not resolved", not failures.
		return nil, domain.ErrUnresolved
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, domain.ErrUnresolved
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, domain.ErrUnresolved
	}
	return body, nil
}

type webhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	ID              int64          `json:"id"`
	Reference       string         `json:"reference"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	GatewayResponse string         `json:"gateway_response"`
	PaidAt          string         `json:"paid_at"`
	Metadata        map[string]any `json:"metadata"`
}

type transferData struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

type refundData struct {
	ID                 int64  `json:"id"`
	TransactionRef     string `json:"transaction_reference"`
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	Status             string `json:"status"`
	MerchantNote       string `json:"merchant_note"`
	RefundedAt         string `json:"refunded_at"`
	ExpectedAt         string `json:"expected_at"`
	CustomerNote       string `json:"customer_note"`
	FullyDeducted      bool   `json:"fully_deducted"`
	DeductedAmount     int64  `json:"deducted_amount"`
	TransactionAmount  int64  `json:"transaction_amount"`
	RefundResponseNote string `json:"refund_response_note"`
}

func (a *Adapter) parseCharge(event webhookEvent, payload []byte, ok bool) (*domain.PaymentEvent, error) {
	var data chargeData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.Reference) == "" {
		return nil, domain.ErrInvalidEvent
	}
	reason := ""
	if !ok {
		reason = strings.TrimSpace(data.GatewayResponse)
		if reason == "" {
			reason = "gateway_declined"
		}
	}
	return chargeEvent(data, payload, ok, reason), nil
}

func chargeEvent(data chargeData, payload []byte, ok bool, reason string) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		OK:                    ok,
		Type:                  domain.EventTypeCharge,
		Provider:              "paystack",
		Reference:             strings.TrimSpace(data.Reference),
		ProviderTransactionID: fmt.Sprintf("%d", data.ID),
		Amount:                data.Amount,
		Currency:              strings.ToUpper(strings.TrimSpace(data.Currency)),
		FailureReason:         reason,
		Metadata:              data.Metadata,
		RawPayload:            payload,
		OccurredAt:            parseTimestamp(data.PaidAt),
	}
}

func (a *Adapter) parseTransfer(event webhookEvent, payload []byte, ok bool, reason string) (*domain.PaymentEvent, error) {
	var data transferData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.Reference) == "" {
		return nil, domain.ErrInvalidEvent
	}
	return &domain.PaymentEvent{
		OK:                    ok,
		Type:                  domain.EventTypeTransfer,
		Provider:              "paystack",
		Reference:             strings.TrimSpace(data.Reference),
		ProviderTransactionID: fmt.Sprintf("%d", data.ID),
		Amount:                data.Amount,
		Currency:              strings.ToUpper(strings.TrimSpace(data.Currency)),
		FailureReason:         reason,
		RawPayload:            payload,
		OccurredAt:            time.Now().UTC(),
	}, nil
}

func (a *Adapter) parseRefund(event webhookEvent, payload []byte) (*domain.PaymentEvent, error) {
	var data refundData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.TransactionRef) == "" {
		return nil, domain.ErrInvalidEvent
	}
	return &domain.PaymentEvent{
		OK:                    true,
		Type:                  domain.EventTypeRefund,
		Provider:              "paystack",
		Reference:             strings.TrimSpace(data.TransactionRef),
		ProviderTransactionID: fmt.Sprintf("%d", data.ID),
		Amount:                data.Amount,
		Currency:              strings.ToUpper(strings.TrimSpace(data.Currency)),
		RawPayload:            payload,
		OccurredAt:            parseTimestamp(data.RefundedAt),
	}, nil
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}
