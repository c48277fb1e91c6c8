package monnify

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
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
	return "monnify"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	clientSecret := strings.TrimSpace(cfg.WebhookSecret)
	if clientSecret == "" {
		clientSecret = secret
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.monnify.com"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &Adapter{
		secretKey:    secret,
		clientSecret: clientSecret,
		baseURL:      baseURL,
		client:       client,
	}, nil
}

type Adapter struct {
	secretKey    string
	clientSecret string
	baseURL      string
	client       *http.Client
}

func (a *Adapter) Provider() string { return "monnify" }

func (a *Adapter) VerifySignature(payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("monnify-signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(a.clientSecret))
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

	switch strings.TrimSpace(event.EventType) {
	case "SUCCESSFUL_TRANSACTION":
		return a.parseTransaction(event.EventData, payload, true)
	case "FAILED_TRANSACTION":
		return a.parseTransaction(event.EventData, payload, false)
	case "SUCCESSFUL_DISBURSEMENT":
		return a.parseDisbursement(event.EventData, payload, true)
	case "FAILED_DISBURSEMENT", "REVERSED_DISBURSEMENT":
		return a.parseDisbursement(event.EventData, payload, false)
	default:
		return nil, domain.ErrEventIgnored
	}
}

func (a *Adapter) Verify(ctx context.Context, reference string) (*domain.PaymentEvent, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrInvalidEvent
	}

	endpoint := a.baseURL + "/api/v1/merchant/transactions/query?paymentReference=" + url.QueryEscape(reference)
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
		RequestSuccessful bool            `json:"requestSuccessful"`
		ResponseBody      transactionData `json:"responseBody"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if !resp.RequestSuccessful {
		return nil, domain.ErrUnresolved
	}

	switch strings.ToUpper(strings.TrimSpace(resp.ResponseBody.PaymentStatus)) {
	case "PAID":
		return transactionEvent(resp.ResponseBody, body, true, ""), nil
	case "FAILED", "CANCELLED", "EXPIRED":
		return transactionEvent(resp.ResponseBody, body, false, strings.ToLower(resp.ResponseBody.PaymentStatus)), nil
	default:
		return nil, domain.ErrUnresolved
	}
}

// InitializePayment is not offered by this adapter: Monnify checkouts are
// created through reserved accounts, so charges surface via webhook and
// verification only.
func (a *Adapter) InitializePayment(ctx context.Context, req domain.InitializeRequest) (*domain.InitializeResponse, error) {
	return nil, domain.ErrInvalidConfig
}

type webhookEvent struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

type transactionData struct {
	TransactionReference string  `json:"transactionReference"`
	PaymentReference     string  `json:"paymentReference"`
	AmountPaid           float64 `json:"amountPaid"`
	TotalPayable         float64 `json:"totalPayable"`
	PaymentStatus        string  `json:"paymentStatus"`
	PaidOn               string  `json:"paidOn"`
	CurrencyCode         string  `json:"currencyCode"`
	Metadata             map[string]any
}

type disbursementData struct {
	Reference    string  `json:"reference"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	Narration    string  `json:"narration"`
	CurrencyCode string  `json:"currency"`
}

func (a *Adapter) parseTransaction(raw json.RawMessage, payload []byte, ok bool) (*domain.PaymentEvent, error) {
	var data transactionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.PaymentReference) == "" {
		return nil, domain.ErrInvalidEvent
	}
	reason := ""
	if !ok {
		reason = strings.ToLower(strings.TrimSpace(data.PaymentStatus))
		if reason == "" {
			reason = "gateway_declined"
		}
	}
	return transactionEvent(data, payload, ok, reason), nil
}

func transactionEvent(data transactionData, payload []byte, ok bool, reason string) *domain.PaymentEvent {
	currency := strings.ToUpper(strings.TrimSpace(data.CurrencyCode))
	if currency == "" {
		currency = "NGN"
	}
	return &domain.PaymentEvent{
		OK:                    ok,
		Type:                  domain.EventTypeCharge,
		Provider:              "monnify",
		Reference:             strings.TrimSpace(data.PaymentReference),
		ProviderTransactionID: strings.TrimSpace(data.TransactionReference),
		Amount:                toMinorUnits(data.AmountPaid),
		Currency:              currency,
		FailureReason:         reason,
		RawPayload:            payload,
		OccurredAt:            parseTimestamp(data.PaidOn),
	}
}

func (a *Adapter) parseDisbursement(raw json.RawMessage, payload []byte, ok bool) (*domain.PaymentEvent, error) {
	var data disbursementData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(data.Reference) == "" {
		return nil, domain.ErrInvalidEvent
	}
	reason := ""
	if !ok {
		reason = "transfer_failed"
	}
	currency := strings.ToUpper(strings.TrimSpace(data.CurrencyCode))
	if currency == "" {
		currency = "NGN"
	}
	return &domain.PaymentEvent{
		OK:            ok,
		Type:          domain.EventTypeTransfer,
		Provider:      "monnify",
		Reference:     strings.TrimSpace(data.Reference),
		Amount:        toMinorUnits(data.Amount),
		Currency:      currency,
		FailureReason: reason,
		RawPayload:    payload,
		OccurredAt:    time.Now().UTC(),
	}, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05.0", "02/01/2006 3:04:05 PM"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}
