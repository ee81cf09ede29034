package auth

import (
	"github.com/shiplet/shiplet/internal/auth/oauth"
	"github.com/shiplet/shiplet/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(oauth.NewService),
	fx.Provide(session.NewManager),
)
