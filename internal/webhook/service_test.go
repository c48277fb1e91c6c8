package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ovationhq/ovation/internal/config"
	"github.com/ovationhq/ovation/internal/gateway/adapters"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
	settlementdomain "github.com/ovationhq/ovation/internal/settlement/domain"
	"github.com/ovationhq/ovation/internal/webhook"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	signatureErr error
	parseEvent   *gatewaydomain.PaymentEvent
	parseErr     error
}

func (a *fakeAdapter) Provider() string { return "fakepay" }

func (a *fakeAdapter) InitializePayment(ctx context.Context, req gatewaydomain.InitializeRequest) (*gatewaydomain.InitializeResponse, error) {
	return nil, gatewaydomain.ErrInvalidConfig
}

func (a *fakeAdapter) Verify(ctx context.Context, reference string) (*gatewaydomain.PaymentEvent, error) {
	return nil, gatewaydomain.ErrUnresolved
}

func (a *fakeAdapter) VerifySignature(payload []byte, headers http.Header) error {
	return a.signatureErr
}

func (a *fakeAdapter) ParseWebhook(ctx context.Context, payload []byte) (*gatewaydomain.PaymentEvent, error) {
	return a.parseEvent, a.parseErr
}

type fakeFactory struct {
	adapter gatewaydomain.Adapter
}

func (f fakeFactory) Provider() string { return "fakepay" }

func (f fakeFactory) NewAdapter(cfg gatewaydomain.AdapterConfig) (gatewaydomain.Adapter, error) {
	return f.adapter, nil
}

type fakeSettlement struct {
	settled   []*gatewaydomain.PaymentEvent
	refunds   []*gatewaydomain.PaymentEvent
	transfers []*gatewaydomain.PaymentEvent
	settleErr error
	result    *settlementdomain.Result
}

func (s *fakeSettlement) Settle(ctx context.Context, event *gatewaydomain.PaymentEvent) (*settlementdomain.Result, error) {
	s.settled = append(s.settled, event)
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return &settlementdomain.Result{}, nil
}

func (s *fakeSettlement) HandleRefund(ctx context.Context, event *gatewaydomain.PaymentEvent) error {
	s.refunds = append(s.refunds, event)
	return nil
}

func (s *fakeSettlement) HandleTransfer(ctx context.Context, event *gatewaydomain.PaymentEvent) error {
	s.transfers = append(s.transfers, event)
	return nil
}

func newService(t *testing.T, environment string, adapter *fakeAdapter, settlements *fakeSettlement) *webhook.Service {
	t.Helper()

	registry, err := adapters.NewRegistry(
		map[string]gatewaydomain.AdapterConfig{"fakepay": {SecretKey: "sk"}},
		fakeFactory{adapter: adapter},
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return webhook.NewService(webhook.Params{
		Log:           zap.NewNop(),
		Cfg:           config.Config{Environment: environment},
		Adapters:      registry,
		SettlementSvc: settlements,
	})
}

func TestIngestWebhookRoutesCharge(t *testing.T) {
	adapter := &fakeAdapter{
		parseEvent: &gatewaydomain.PaymentEvent{
			OK:        true,
			Type:      gatewaydomain.EventTypeCharge,
			Reference: "ovn_abc",
			Amount:    50000,
		},
	}
	settlements := &fakeSettlement{}
	svc := newService(t, "production", adapter, settlements)

	err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{"event":"charge"}`), http.Header{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(settlements.settled) != 1 {
		t.Fatalf("expected one settle call, got %d", len(settlements.settled))
	}
	if settlements.settled[0].Provider != "fakepay" {
		t.Fatalf("provider not stamped on event: %q", settlements.settled[0].Provider)
	}
}

func TestIngestWebhookRejectsBadSignatureInProduction(t *testing.T) {
	adapter := &fakeAdapter{signatureErr: gatewaydomain.ErrInvalidSignature}
	settlements := &fakeSettlement{}
	svc := newService(t, "production", adapter, settlements)

	err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	if !errors.Is(err, gatewaydomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(settlements.settled) != 0 {
		t.Fatal("unverified delivery must not reach settlement")
	}
}

func TestIngestWebhookFailsOpenWithoutSecretOutsideProduction(t *testing.T) {
	adapter := &fakeAdapter{
		signatureErr: gatewaydomain.ErrInvalidConfig,
		parseEvent: &gatewaydomain.PaymentEvent{
			OK:   true,
			Type: gatewaydomain.EventTypeCharge,
		},
	}
	settlements := &fakeSettlement{}
	svc := newService(t, "development", adapter, settlements)

	if err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(settlements.settled) != 1 {
		t.Fatal("expected delivery to pass without a configured secret")
	}
}

func TestIngestWebhookNoFailOpenForRealSignatureMismatch(t *testing.T) {
	// A wrong signature is a rejection in every environment. Only a missing
	// secret relaxes verification, and only outside production.
	adapter := &fakeAdapter{signatureErr: gatewaydomain.ErrInvalidSignature}
	svc := newService(t, "development", adapter, &fakeSettlement{})

	err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	if !errors.Is(err, gatewaydomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestIngestWebhookMissingSecretRejectedInProduction(t *testing.T) {
	adapter := &fakeAdapter{signatureErr: gatewaydomain.ErrInvalidConfig}
	svc := newService(t, "production", adapter, &fakeSettlement{})

	err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	if !errors.Is(err, gatewaydomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestIngestWebhookAcknowledgesIgnoredEvents(t *testing.T) {
	adapter := &fakeAdapter{parseErr: gatewaydomain.ErrEventIgnored}
	settlements := &fakeSettlement{}
	svc := newService(t, "production", adapter, settlements)

	if err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("ignored event must be acknowledged, got %v", err)
	}
	if len(settlements.settled) != 0 {
		t.Fatal("ignored event must not reach settlement")
	}
}

func TestIngestWebhookAcknowledgesOrphans(t *testing.T) {
	adapter := &fakeAdapter{
		parseEvent: &gatewaydomain.PaymentEvent{OK: true, Type: gatewaydomain.EventTypeCharge},
	}
	settlements := &fakeSettlement{settleErr: settlementdomain.ErrOrphanEvent}
	svc := newService(t, "production", adapter, settlements)

	if err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("orphan must be acknowledged, got %v", err)
	}
}

func TestIngestWebhookPropagatesSettlementErrors(t *testing.T) {
	adapter := &fakeAdapter{
		parseEvent: &gatewaydomain.PaymentEvent{OK: true, Type: gatewaydomain.EventTypeCharge},
	}
	boom := errors.New("db down")
	settlements := &fakeSettlement{settleErr: boom}
	svc := newService(t, "production", adapter, settlements)

	err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected settle error to propagate for a retry, got %v", err)
	}
}

func TestIngestWebhookRoutesRefundAndTransfer(t *testing.T) {
	adapter := &fakeAdapter{
		parseEvent: &gatewaydomain.PaymentEvent{OK: true, Type: gatewaydomain.EventTypeRefund},
	}
	settlements := &fakeSettlement{}
	svc := newService(t, "production", adapter, settlements)

	if err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("ingest refund: %v", err)
	}
	if len(settlements.refunds) != 1 {
		t.Fatalf("expected one refund call, got %d", len(settlements.refunds))
	}

	adapter.parseEvent = &gatewaydomain.PaymentEvent{OK: false, Type: gatewaydomain.EventTypeTransfer}
	if err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("ingest transfer: %v", err)
	}
	if len(settlements.transfers) != 1 {
		t.Fatalf("expected one transfer call, got %d", len(settlements.transfers))
	}
}

func TestIngestWebhookUnknownProvider(t *testing.T) {
	svc := newService(t, "production", &fakeAdapter{}, &fakeSettlement{})

	err := svc.IngestWebhook(context.Background(), "nopay", []byte(`{}`), http.Header{})
	if !errors.Is(err, gatewaydomain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestIngestWebhookRejectsInvalidJSON(t *testing.T) {
	svc := newService(t, "production", &fakeAdapter{}, &fakeSettlement{})

	err := svc.IngestWebhook(context.Background(), "fakepay", []byte(`{not json`), http.Header{})
	if !errors.Is(err, gatewaydomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
