package ticket

import (
	"github.com/ovationhq/ovation/internal/ticket/domain"
	"github.com/ovationhq/ovation/internal/ticket/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket.service",
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Issuer { return s }),
)
