package settlement

import (
	"github.com/ovationhq/ovation/internal/settlement/domain"
	"github.com/ovationhq/ovation/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
