package flutterwave

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ovationhq/ovation/internal/gateway/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "flutterwave"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	verifHash := strings.TrimSpace(cfg.WebhookSecret)
	if verifHash == "" {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.flutterwave.com/v3"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &Adapter{
		secretKey: secret,
		verifHash: verifHash,
		baseURL:   baseURL,
		client:    client,
	}, nil
}

type Adapter struct {
	secretKey string
	verifHash string
	baseURL   string
	client    *http.Client
}

func (a *Adapter) Provider() string { return "flutterwave" }

// VerifySignature checks the verif-hash header against the configured secret
// hash. Flutterwave sends the literal configured value, not an HMAC.
func (a *Adapter) VerifySignature(payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("verif-hash"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(a.verifHash)) != 1 {
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
	case "charge.completed":
		return a.parseCharge(event.Data, payload)
	case "transfer.completed":
		return a.parseTransfer(event.Data, payload)
	case "refund.completed":
		return a.parseRefund(event.Data, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

func (a *Adapter) Verify(ctx context.Context, reference string) (*domain.PaymentEvent, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrInvalidEvent
	}

	endpoint := a.baseURL + "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
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

	var resp struct {
		Status string     `json:"status"`
		Data   chargeData `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if !strings.EqualFold(resp.Status, "success") {
		return nil, domain.ErrUnresolved
	}

	switch strings.ToLower(strings.TrimSpace(resp.Data.Status)) {
	case "successful":
		return chargeEvent(resp.Data, body, true, ""), nil
	case "failed":
		reason := strings.TrimSpace(resp.Data.ProcessorResponse)
		if reason == "" {
			reason = "gateway_declined"
		}
		return chargeEvent(resp.Data, body, false, reason), nil
	default:
		return nil, domain.ErrUnresolved
	}
}

func (a *Adapter) InitializePayment(ctx context.Context, req domain.InitializeRequest) (*domain.InitializeResponse, error) {
	if req.Amount <= 0 || strings.TrimSpace(req.Email) == "" {
		return nil, domain.ErrInvalidEvent
	}

	payload := map[string]any{
		"tx_ref":   req.Reference,
		"amount":   toMajorUnits(req.Amount),
		"currency": strings.ToUpper(req.Currency),
		"customer": map[string]any{"email": req.Email},
	}
	if len(req.Metadata) > 0 {
		payload["meta"] = req.Metadata
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/payments", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

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
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	cached := strings.Contains(strings.ToLower(resp.Message), "already")
	if resp.Data.Link == "" {
		if cached {
			return &domain.InitializeResponse{
				Reference:        req.Reference,
				IdempotencyKey:   req.IdempotencyKey,
				IsCachedResponse: true,
			}, nil
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, domain.ErrUnresolved
		}
		return nil, fmt.Errorf("flutterwave initialize rejected: %s", resp.Message)
	}

	return &domain.InitializeResponse{
		AuthorizationURL: resp.Data.Link,
		Reference:        req.Reference,
		IdempotencyKey:   req.IdempotencyKey,
		IsCachedResponse: cached,
	}, nil
}

type webhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	ID                int64          `json:"id"`
	TxRef             string         `json:"tx_ref"`
	FlwRef            string         `json:"flw_ref"`
	Amount            float64        `json:"amount"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	ProcessorResponse string         `json:"processor_response"`
	CreatedAt         string         `json:"created_at"`
	Meta              map[string]any `json:"meta"`
}

type transferData struct {
	ID           int64   `json:"id"`
	Reference    string  `json:"reference"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	CompleteMsg  string  `json:"complete_message"`
	RequiresAuth int     `json:"requires_approval"`
}

type refundData struct {
	ID           int64   `json:"id"`
	TxRef        string  `json:"tx_ref"`
	FlwRef       string  `json:"flw_ref"`
	AmountRefund float64 `json:"amount_refunded"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
}

func (a *Adapter) parseCharge(raw json.RawMessage, payload []byte) (*domain.PaymentEvent, error) {
	var data chargeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.TxRef) == "" {
		return nil, domain.ErrInvalidEvent
	}

	ok := strings.EqualFold(data.Status, "successful")
	reason := ""
	if !ok {
		reason = strings.TrimSpace(data.ProcessorResponse)
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
		Provider:              "flutterwave",
		Reference:             strings.TrimSpace(data.TxRef),
		ProviderTransactionID: fmt.Sprintf("%d", data.ID),
		Amount:                toMinorUnits(data.Amount),
		Currency:              strings.ToUpper(strings.TrimSpace(data.Currency)),
		FailureReason:         reason,
		Metadata:              data.Meta,
		RawPayload:            payload,
		OccurredAt:            parseTimestamp(data.CreatedAt),
	}
}

func (a *Adapter) parseTransfer(raw json.RawMessage, payload []byte) (*domain.PaymentEvent, error) {
	var data transferData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.Reference) == "" {
		return nil, domain.ErrInvalidEvent
	}

	ok := strings.EqualFold(data.Status, "SUCCESSFUL")
	reason := ""
	if !ok {
		reason = strings.TrimSpace(data.CompleteMsg)
		if reason == "" {
			reason = "transfer_failed"
		}
	}
	return &domain.PaymentEvent{
		OK:                    ok,
		Type:                  domain.EventTypeTransfer,
		Provider:              "flutterwave",
		Reference:             strings.TrimSpace(data.Reference),
		ProviderTransactionID: fmt.Sprintf("%d", data.ID),
		Amount:                toMinorUnits(data.Amount),
		Currency:              strings.ToUpper(strings.TrimSpace(data.Currency)),
		FailureReason:         reason,
		RawPayload:            payload,
		OccurredAt:            time.Now().UTC(),
	}, nil
}

func (a *Adapter) parseRefund(raw json.RawMessage, payload []byte) (*domain.PaymentEvent, error) {
	var data refundData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.TxRef) == "" {
		return nil, domain.ErrInvalidEvent
	}
	return &domain.PaymentEvent{
		OK:                    strings.EqualFold(data.Status, "completed"),
		Type:                  domain.EventTypeRefund,
		Provider:              "flutterwave",
		Reference:             strings.TrimSpace(data.TxRef),
		ProviderTransactionID: fmt.Sprintf("%d", data.ID),
		Amount:                toMinorUnits(data.AmountRefund),
		Currency:              strings.ToUpper(strings.TrimSpace(data.Currency)),
		RawPayload:            payload,
		OccurredAt:            time.Now().UTC(),
	}, nil
}

// Flutterwave reports amounts in major units.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func toMajorUnits(amount int64) float64 {
	return float64(amount) / 100
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
