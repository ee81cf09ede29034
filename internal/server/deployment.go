package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	"go.uber.org/zap"
)

type requestDeploymentBody struct {
	Payment        paymentdomain.Payment     `json:"payment"`
	Repo           deploymentdomain.RepoMeta `json:"repo" binding:"required"`
	IdempotencyKey string                    `json:"idempotency_key"`
}

// RequestDeployment is the main deployment entry point: eligibility gate,
// payment intake, then registry record creation.
func (s *Server) RequestDeployment(c *gin.Context) {
	var body requestDeploymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	address := s.walletAddress(c)

	allowed, err := s.subscriptionSvc.CanDeploy(c.Request.Context(), address)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !allowed {
		AbortWithError(c, ErrUsageLimitReached)
		return
	}

	record, err := s.deploymentSvc.RequestDeployment(c.Request.Context(), deploymentdomain.RequestDeploymentRequest{
		Address:        address,
		Payment:        body.Payment,
		Repo:           body.Repo,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.swapIfReady(c)

	c.JSON(http.StatusCreated, record)
}

type requestRollbackBody struct {
	Payment        paymentdomain.Payment `json:"payment"`
	IdempotencyKey string                `json:"idempotency_key"`
}

func (s *Server) RequestRollback(c *gin.Context) {
	var body requestRollbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.deploymentSvc.RequestRollback(c.Request.Context(), deploymentdomain.RequestRollbackRequest{
		Address:        s.walletAddress(c),
		Payment:        body.Payment,
		ParentID:       c.Param("id"),
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.swapIfReady(c)

	c.JSON(http.StatusCreated, record)
}

func (s *Server) ListMyDeployments(c *gin.Context) {
	records, err := s.deploymentSvc.ListByAddress(c.Request.Context(), s.walletAddress(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": records})
}

func (s *Server) GetDeployment(c *gin.Context) {
	record, err := s.deploymentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if record.Address != s.walletAddress(c) {
		AbortWithError(c, deploymentdomain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) GetDeploymentCost(c *gin.Context) {
	units, err := strconv.ParseInt(c.DefaultQuery("estimated_units", "0"), 10, 64)
	if err != nil || units < 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"estimated_units": units,
		"cost":            s.deploymentSvc.CalculateCost(units),
	})
}

func (s *Server) MarkDeploymentProcessing(c *gin.Context) {
	record, err := s.deploymentSvc.MarkProcessing(c.Request.Context(), s.walletAddress(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type markDeployedBody struct {
	SiteRef     string `json:"site_ref"`
	ActualUnits int64  `json:"actual_units"`
}

func (s *Server) MarkDeploymentDeployed(c *gin.Context) {
	var body markDeployedBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.deploymentSvc.MarkDeployed(c.Request.Context(), s.walletAddress(c), c.Param("id"), body.SiteRef, body.ActualUnits)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Usage accrues once the deployment is live. UsageExceeded is a
	// notification, never a rejection of an admitted deployment.
	if _, err := s.subscriptionSvc.RecordDeployment(c.Request.Context(), record.Address, body.ActualUnits); err != nil {
		s.log.Warn("usage accounting failed",
			zap.String("address", record.Address),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, record)
}

type markFailedBody struct {
	ErrorMessage string `json:"error_message"`
}

func (s *Server) MarkDeploymentFailed(c *gin.Context) {
	var body markFailedBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.deploymentSvc.MarkFailed(c.Request.Context(), s.walletAddress(c), c.Param("id"), body.ErrorMessage)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
