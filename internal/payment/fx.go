package payment

import (
	"github.com/smallbiznis/banca/internal/payment/provider/mercadopago"
	"github.com/smallbiznis/banca/internal/payment/reconcile"
	"github.com/smallbiznis/banca/internal/payment/repository"
	"github.com/smallbiznis/banca/internal/payment/service"
	"github.com/smallbiznis/banca/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(mercadopago.New),
	fx.Provide(service.New),
	fx.Provide(reconcile.New),
	fx.Provide(webhook.NewService),
)
