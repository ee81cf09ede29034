package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
)

type acceptPaymentBody struct {
	Payment    paymentdomain.Payment `json:"payment"`
	PurposeRef string                `json:"purpose_ref"`
}

// AcceptPayment takes a standalone payment into the treasury, outside the
// subscription and deployment flows.
func (s *Server) AcceptPayment(c *gin.Context) {
	var body acceptPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	purposeRef := body.PurposeRef
	if purposeRef == "" {
		purposeRef = "wallet:" + s.walletAddress(c)
	}

	receipt, err := s.paymentSvc.AcceptPayment(c.Request.Context(), body.Payment, purposeRef)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.swapIfReady(c)
	c.JSON(http.StatusCreated, receipt)
}

func (s *Server) GetTreasury(c *gin.Context) {
	snapshot, err := s.paymentSvc.Treasury(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) TriggerSwap(c *gin.Context) {
	result, err := s.paymentSvc.TrySwap(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"swapped": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swapped": true, "result": result})
}

type transferOutBody struct {
	Amount    int64  `json:"amount" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
}

func (s *Server) TransferOut(c *gin.Context) {
	var body transferOutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.paymentSvc.TransferOut(c.Request.Context(), body.Amount, body.Recipient); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListTreasuryEvents(c *gin.Context) {
	events, err := s.paymentSvc.ListEvents(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
