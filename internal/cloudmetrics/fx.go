package cloudmetrics

import (
	"go.uber.org/fx"
)

var Module = fx.Module("cloud.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(NewHTTPMetrics),
)
