package deployment

import (
	"github.com/shiplet/shiplet/internal/deployment/repository"
	"github.com/shiplet/shiplet/internal/deployment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("deployment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
