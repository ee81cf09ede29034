package payment

import (
	"github.com/shiplet/shiplet/internal/config"
	"github.com/shiplet/shiplet/internal/payment/repository"
	"github.com/shiplet/shiplet/internal/payment/service"
	"github.com/shiplet/shiplet/internal/payment/swap"
	"go.uber.org/fx"
)

func provideEngine(pricing *config.PricingHolder) swap.Engine {
	payments := pricing.Get().Payments
	return swap.NewFixedRateEngine(payments.SwapFeePpm, payments.SwapRate)
}

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideEngine),
	fx.Provide(service.NewService),
)
