package order

import (
	"github.com/smallbiznis/banca/internal/order/domain"
	"github.com/smallbiznis/banca/internal/order/repository"
	"github.com/smallbiznis/banca/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(
			service.New,
			fx.As(new(domain.Service)),
			fx.As(new(domain.Settlement)),
		),
	),
)
