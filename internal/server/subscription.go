package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"go.uber.org/zap"
)

type subscribeBody struct {
	Tier      subscriptiondomain.Tier `json:"tier" binding:"required"`
	AutoRenew bool                    `json:"auto_renew"`
	Payment   paymentdomain.Payment   `json:"payment"`
}

func (s *Server) Subscribe(c *gin.Context) {
	var body subscribeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.Subscribe(c.Request.Context(), subscriptiondomain.SubscribeRequest{
		Address:   s.walletAddress(c),
		Tier:      body.Tier,
		AutoRenew: body.AutoRenew,
		Payment:   body.Payment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.swapIfReady(c)
	c.JSON(http.StatusCreated, sub)
}

type renewBody struct {
	Payment paymentdomain.Payment `json:"payment"`
}

func (s *Server) RenewSubscription(c *gin.Context) {
	var body renewBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.Renew(c.Request.Context(), subscriptiondomain.RenewRequest{
		Address: s.walletAddress(c),
		Payment: body.Payment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.swapIfReady(c)
	c.JSON(http.StatusOK, sub)
}

type upgradeBody struct {
	NewTier subscriptiondomain.Tier `json:"new_tier" binding:"required"`
	Payment paymentdomain.Payment   `json:"payment"`
}

func (s *Server) UpgradeSubscription(c *gin.Context) {
	var body upgradeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.UpgradeTier(c.Request.Context(), subscriptiondomain.UpgradeRequest{
		Address: s.walletAddress(c),
		NewTier: body.NewTier,
		Payment: body.Payment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.swapIfReady(c)
	c.JSON(http.StatusOK, sub)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), s.walletAddress(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) GetMySubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByAddress(c.Request.Context(), s.walletAddress(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) ListMySubscriptionPayments(c *gin.Context) {
	payments, err := s.subscriptionSvc.ListPayments(c.Request.Context(), s.walletAddress(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (s *Server) CanDeploy(c *gin.Context) {
	allowed, err := s.subscriptionSvc.CanDeploy(c.Request.Context(), s.walletAddress(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_deploy": allowed})
}

// swapIfReady opportunistically converts the treasury buffer after an
// inflow. Failures never surface to the paying request.
func (s *Server) swapIfReady(c *gin.Context) {
	if _, err := s.paymentSvc.TrySwap(c.Request.Context()); err != nil {
		s.log.Warn("treasury swap attempt failed", zap.Error(err))
	}
}
