package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ovationhq/ovation/internal/config"
	"github.com/ovationhq/ovation/internal/gateway/adapters"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
	obsmetrics "github.com/ovationhq/ovation/internal/observability/metrics"
	settlementdomain "github.com/ovationhq/ovation/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Cfg           config.Config
	Adapters      *adapters.Registry
	SettlementSvc settlementdomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	cfg           config.Config
	adapters      *adapters.Registry
	settlementSvc settlementdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:           p.Log.Named("webhook.service"),
		cfg:           p.Cfg,
		adapters:      p.Adapters,
		settlementSvc: p.SettlementSvc,
		obsMetrics:    p.ObsMetrics,
	}
}

// IngestWebhook verifies, parses, and routes one provider delivery. A nil
// return means the delivery was consumed; providers retry anything else.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return gatewaydomain.ErrProviderNotFound
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeRejected)
		return err
	}
	if !json.Valid(payload) {
		s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeRejected)
		return gatewaydomain.ErrInvalidPayload
	}

	if err := adapter.VerifySignature(payload, headers); err != nil {
		if s.cfg.IsProduction() || !errors.Is(err, gatewaydomain.ErrInvalidConfig) {
			s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeRejected)
			s.log.Warn("webhook signature rejected",
				zap.String("provider", provider),
				zap.Error(err),
			)
			return gatewaydomain.ErrInvalidSignature
		}
		// No webhook secret configured outside production. Deliveries pass
		// unverified so local gateways without signing still work.
		s.log.Warn("webhook accepted without signature verification",
			zap.String("provider", provider),
			zap.String("environment", s.cfg.Environment),
		)
	}

	event, err := adapter.ParseWebhook(ctx, payload)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrEventIgnored) {
			s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeIgnored)
			return nil
		}
		s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeRejected)
		return err
	}
	if event == nil {
		s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeRejected)
		return gatewaydomain.ErrInvalidEvent
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	outcome, err := s.route(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, settlementdomain.ErrOrphanEvent), errors.Is(err, gatewaydomain.ErrEventIgnored):
			// Recorded as an orphan already, or an event class this engine
			// does not act on. Acknowledge so the provider stops retrying.
			s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeIgnored)
			return nil
		default:
			s.obsMetrics.IncWebhook(provider, obsmetrics.WebhookOutcomeError)
			return err
		}
	}

	s.obsMetrics.IncWebhook(provider, outcome)
	return nil
}

func (s *Service) route(ctx context.Context, event *gatewaydomain.PaymentEvent) (string, error) {
	switch event.Type {
	case gatewaydomain.EventTypeCharge:
		result, err := s.settlementSvc.Settle(ctx, event)
		if err != nil {
			return "", err
		}
		if result.AlreadyProcessed {
			return obsmetrics.WebhookOutcomeDuplicate, nil
		}
		return obsmetrics.WebhookOutcomeAccepted, nil
	case gatewaydomain.EventTypeRefund:
		return obsmetrics.WebhookOutcomeAccepted, s.settlementSvc.HandleRefund(ctx, event)
	case gatewaydomain.EventTypeTransfer:
		return obsmetrics.WebhookOutcomeAccepted, s.settlementSvc.HandleTransfer(ctx, event)
	default:
		return "", gatewaydomain.ErrEventIgnored
	}
}
