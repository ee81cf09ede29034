package deployflow

import (
	"github.com/shiplet/shiplet/internal/buildsvc"
	"github.com/shiplet/shiplet/internal/chain"
	"github.com/shiplet/shiplet/internal/config"
	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type WorkflowParams struct {
	fx.In

	Cfg         config.Config
	Chain       *chain.Client
	Builds      *buildsvc.Client
	Deployments deploymentdomain.Service
	Log         *zap.Logger
}

func NewWorkflow(p WorkflowParams) *Workflow {
	return New(p.Chain, p.Chain, p.Chain, p.Builds, p.Deployments.CalculateCost, p.Cfg.PayToken, p.Log)
}

var Module = fx.Module("deployflow",
	fx.Provide(NewWorkflow),
)
