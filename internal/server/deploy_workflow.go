package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiplet/shiplet/internal/deployflow"
)

type deployWorkflowBody struct {
	RepoURL        string `json:"repo_url" binding:"required"`
	EstimatedUnits int64  `json:"estimated_units"`
	DeploymentID   string `json:"deployment_id"`
	// SignedPayload is the payment transaction already signed by the
	// caller's wallet; the server never holds keys.
	SignedPayload string `json:"signed_payload" binding:"required"`
}

// presignedSigner satisfies the workflow's signing step with a payload the
// wallet signed before the request was made.
type presignedSigner struct {
	payload string
}

func (s presignedSigner) Sign(ctx context.Context, intent deployflow.PaymentIntent) (string, error) {
	return s.payload, nil
}

// RunDeployWorkflow drives the full deployment workflow on behalf of the
// caller: balance check, submission, confirmation polling, build trigger.
func (s *Server) RunDeployWorkflow(c *gin.Context) {
	var body deployWorkflowBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.workflow.Run(c.Request.Context(), deployflow.Request{
		Address:        s.walletAddress(c),
		RepoURL:        body.RepoURL,
		EstimatedUnits: body.EstimatedUnits,
		DeploymentID:   body.DeploymentID,
		Signer:         presignedSigner{payload: body.SignedPayload},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.State == deployflow.StateFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}
