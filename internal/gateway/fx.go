package gateway

import (
	"net/http"

	"github.com/ovationhq/ovation/internal/config"
	"github.com/ovationhq/ovation/internal/gateway/adapters"
	"github.com/ovationhq/ovation/internal/gateway/adapters/flutterwave"
	"github.com/ovationhq/ovation/internal/gateway/adapters/monnify"
	"github.com/ovationhq/ovation/internal/gateway/adapters/paystack"
	"github.com/ovationhq/ovation/internal/gateway/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(func(cfg config.Config) (*adapters.Registry, error) {
		client := &http.Client{Timeout: cfg.GatewayHTTPTimeout}

		configs := map[string]domain.AdapterConfig{}
		for provider, gw := range cfg.Gateways {
			if gw.SecretKey == "" {
				continue
			}
			configs[provider] = domain.AdapterConfig{
				SecretKey:     gw.SecretKey,
				WebhookSecret: gw.WebhookSecret,
				BaseURL:       gw.BaseURL,
				Environment:   cfg.Environment,
				HTTPClient:    client,
			}
		}

		return adapters.NewRegistry(configs,
			paystack.NewFactory(),
			flutterwave.NewFactory(),
			monnify.NewFactory(),
		)
	}),
)
