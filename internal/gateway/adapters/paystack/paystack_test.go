package paystack_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ovationhq/ovation/internal/gateway/adapters/paystack"
	"github.com/ovationhq/ovation/internal/gateway/domain"
)

func newAdapter(t *testing.T, baseURL string) domain.Adapter {
	t.Helper()
	adapter, err := paystack.NewFactory().NewAdapter(domain.AdapterConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   baseURL,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	adapter := newAdapter(t, "")
	payload := []byte(`{"event":"charge.success"}`)

	headers := http.Header{}
	headers.Set("x-paystack-signature", sign(payload, "sk_test_secret"))
	if err := adapter.VerifySignature(payload, headers); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	headers.Set("x-paystack-signature", sign(payload, "wrong_secret"))
	if err := adapter.VerifySignature(payload, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if err := adapter.VerifySignature(payload, http.Header{}); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for missing header, got %v", err)
	}
}

func TestParseWebhookChargeSuccess(t *testing.T) {
	adapter := newAdapter(t, "")
	payload := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 302961,
			"reference": "ovn_abc",
			"amount": 50000,
			"currency": "NGN",
			"status": "success",
			"paid_at": "2024-05-01T10:00:00.000Z",
			"metadata": {"eventId": "1234567890123456789"}
		}
	}`)

	event, err := adapter.ParseWebhook(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if !event.OK || event.Type != domain.EventTypeCharge {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Reference != "ovn_abc" || event.Amount != 50000 || event.Currency != "NGN" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.ProviderTransactionID != "302961" {
		t.Fatalf("unexpected provider transaction id %q", event.ProviderTransactionID)
	}
}

func TestParseWebhookChargeFailed(t *testing.T) {
	adapter := newAdapter(t, "")
	payload := []byte(`{
		"event": "charge.failed",
		"data": {
			"id": 1,
			"reference": "ovn_bad",
			"amount": 1000,
			"currency": "NGN",
			"gateway_response": "Insufficient funds"
		}
	}`)

	event, err := adapter.ParseWebhook(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.OK {
		t.Fatal("charge.failed must not be OK")
	}
	if event.FailureReason != "Insufficient funds" {
		t.Fatalf("unexpected reason %q", event.FailureReason)
	}
}

func TestParseWebhookIgnoredEvent(t *testing.T) {
	adapter := newAdapter(t, "")
	_, err := adapter.ParseWebhook(context.Background(), []byte(`{"event":"subscription.create","data":{}}`))
	if !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestVerifySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ovn_abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_secret" {
			t.Errorf("missing authorization header")
		}
		w.Write([]byte(`{
			"status": true,
			"data": {
				"id": 99,
				"reference": "ovn_abc",
				"amount": 50000,
				"currency": "NGN",
				"status": "success"
			}
		}`))
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	event, err := adapter.Verify(context.Background(), "ovn_abc")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !event.OK || event.Amount != 50000 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestVerifyPendingIsUnresolved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": true, "data": {"reference": "ovn_abc", "status": "pending"}}`))
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	_, err := adapter.Verify(context.Background(), "ovn_abc")
	if !errors.Is(err, domain.ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestVerifyServerErrorIsUnresolved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	_, err := adapter.Verify(context.Background(), "ovn_abc")
	if !errors.Is(err, domain.ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestInitializePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "idem-1" {
			t.Errorf("missing idempotency key header")
		}
		w.Write([]byte(`{
			"status": true,
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code": "abc",
				"reference": "ovn_abc"
			}
		}`))
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	resp, err := adapter.InitializePayment(context.Background(), domain.InitializeRequest{
		Amount:         50000,
		Currency:       "NGN",
		Email:          "buyer@example.test",
		Reference:      "ovn_abc",
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if resp.AuthorizationURL != "https://checkout.paystack.com/abc" {
		t.Fatalf("unexpected url %q", resp.AuthorizationURL)
	}
	if resp.IsCachedResponse {
		t.Fatal("fresh initialize must not be cached")
	}
}

func TestInitializePaymentDuplicateKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"status": false, "message": "Duplicate Transaction Reference"}`))
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	resp, err := adapter.InitializePayment(context.Background(), domain.InitializeRequest{
		Amount:         50000,
		Email:          "buyer@example.test",
		Reference:      "ovn_abc",
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !resp.IsCachedResponse {
		t.Fatal("expected cached response on duplicate")
	}
}
