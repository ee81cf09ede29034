package audit

import (
	"github.com/shiplet/shiplet/internal/audit/repository"
	"github.com/shiplet/shiplet/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
