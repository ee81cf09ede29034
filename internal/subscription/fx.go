package subscription

import (
	"github.com/shiplet/shiplet/internal/subscription/repository"
	"github.com/shiplet/shiplet/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
