package wallet

import (
	"github.com/ovationhq/ovation/internal/wallet/domain"
	"github.com/ovationhq/ovation/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
