package transaction

import (
	"github.com/ovationhq/ovation/internal/transaction/domain"
	"github.com/ovationhq/ovation/internal/transaction/repository"
	"github.com/ovationhq/ovation/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
