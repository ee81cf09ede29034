package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shiplet/shiplet/internal/audit"
	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	"github.com/shiplet/shiplet/internal/auth"
	authoauth "github.com/shiplet/shiplet/internal/auth/oauth"
	"github.com/shiplet/shiplet/internal/auth/session"
	"github.com/shiplet/shiplet/internal/buildsvc"
	"github.com/shiplet/shiplet/internal/cache"
	"github.com/shiplet/shiplet/internal/chain"
	"github.com/shiplet/shiplet/internal/cloudmetrics"
	"github.com/shiplet/shiplet/internal/config"
	"github.com/shiplet/shiplet/internal/deployflow"
	"github.com/shiplet/shiplet/internal/deployment"
	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	"github.com/shiplet/shiplet/internal/githubapi"
	"github.com/shiplet/shiplet/internal/observability"
	obsmiddleware "github.com/shiplet/shiplet/internal/observability/logger"
	"github.com/shiplet/shiplet/internal/payment"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	"github.com/shiplet/shiplet/internal/ratelimit"
	"github.com/shiplet/shiplet/internal/subscription"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	cloudmetrics.Module,
	fx.Provide(registerGin),
	audit.Module,
	auth.Module,
	cache.Module,
	chain.Module,
	buildsvc.Module,
	githubapi.Module,
	payment.Module,
	subscription.Module,
	deployment.Module,
	deployflow.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, registry *prometheus.Registry, httpMetrics *cloudmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(cloudmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, registry *prometheus.Registry, httpMetrics *cloudmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, registry, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	oauthsvc        authoauth.Service
	sessions        *session.Manager
	githubClient    *githubapi.Client
	repoCache       *cache.RepoCache
	auditSvc        auditdomain.Service
	paymentSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	deploymentSvc   deploymentdomain.Service
	workflow        *deployflow.Workflow
	deployLimiter   *ratelimit.DeployLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	OAuthsvc        authoauth.Service
	Sessions        *session.Manager
	GitHubClient    *githubapi.Client
	RepoCache       *cache.RepoCache
	AuditSvc        auditdomain.Service
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	DeploymentSvc   deploymentdomain.Service
	Workflow        *deployflow.Workflow
	DeployLimiter   *ratelimit.DeployLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		oauthsvc:        p.OAuthsvc,
		sessions:        p.Sessions,
		githubClient:    p.GitHubClient,
		repoCache:       p.RepoCache,
		auditSvc:        p.AuditSvc,
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		deploymentSvc:   p.DeploymentSvc,
		workflow:        p.Workflow,
		deployLimiter:   p.DeployLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	s.engine.GET("/login", s.OAuthLogin)
	s.engine.GET("/callback", s.OAuthCallback)
	s.engine.POST("/logout", s.Logout)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/github/repos", s.GitHubAuthRequired(), s.ListGitHubRepos)

	// -------- Subscriptions --------
	sub := api.Group("/subscriptions", s.WalletRequired())
	sub.POST("", s.Subscribe)
	sub.POST("/renew", s.RenewSubscription)
	sub.POST("/upgrade", s.UpgradeSubscription)
	sub.POST("/cancel", s.CancelSubscription)
	sub.GET("/me", s.GetMySubscription)
	sub.GET("/me/payments", s.ListMySubscriptionPayments)
	sub.GET("/eligibility", s.CanDeploy)

	// -------- Deployments --------
	dep := api.Group("/deployments", s.WalletRequired())
	dep.POST("", s.DeployRateLimit(), s.RequestDeployment)
	dep.POST("/:id/rollback", s.DeployRateLimit(), s.RequestRollback)
	dep.GET("", s.ListMyDeployments)
	dep.GET("/:id", s.GetDeployment)

	api.GET("/deployments/cost", s.GetDeploymentCost)

	// -------- Workflow --------
	api.POST("/deploy", s.WalletRequired(), s.DeployRateLimit(), s.RunDeployWorkflow)

	api.POST("/payments", s.WalletRequired(), s.AcceptPayment)
	api.GET("/treasury", s.GetTreasury)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.WalletRequired(), s.AdminRequired())

	admin.POST("/deployments/:id/processing", s.MarkDeploymentProcessing)
	admin.POST("/deployments/:id/deployed", s.MarkDeploymentDeployed)
	admin.POST("/deployments/:id/failed", s.MarkDeploymentFailed)

	admin.POST("/treasury/swap", s.TriggerSwap)
	admin.POST("/treasury/transfer", s.TransferOut)
	admin.GET("/treasury/events", s.ListTreasuryEvents)

	admin.GET("/audit-logs", s.ListAuditLogs)
}
