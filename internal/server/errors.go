package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	authoauth "github.com/shiplet/shiplet/internal/auth/oauth"
	"github.com/shiplet/shiplet/internal/buildsvc"
	"github.com/shiplet/shiplet/internal/chain"
	"github.com/shiplet/shiplet/internal/deployflow"
	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	githubapi "github.com/shiplet/shiplet/internal/githubapi"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrWalletNotConnected = errors.New("wallet_not_connected")
	ErrForbidden          = errors.New("forbidden")
	ErrUsageLimitReached  = errors.New("usage_limit_reached")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrInternal           = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}

	case errors.Is(err, ErrWalletNotConnected),
		errors.Is(err, deployflow.ErrWalletNotConnected):
		return http.StatusUnauthorized, errorPayload{
			Type:    "wallet_not_connected",
			Message: "wallet not connected",
		}
	case errors.Is(err, authoauth.ErrUnauthorized),
		errors.Is(err, authoauth.ErrInvalidState),
		errors.Is(err, githubapi.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case errors.Is(err, ErrForbidden),
		errors.Is(err, deploymentdomain.ErrUnauthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "unauthorized",
			Message: "caller is not allowed to perform this operation",
		}
	case errors.Is(err, ErrUsageLimitReached):
		return http.StatusForbidden, errorPayload{
			Type:    "usage_limit_reached",
			Message: "subscription expired or deployment limit reached",
		}

	case errors.Is(err, subscriptiondomain.ErrInsufficientPayment),
		errors.Is(err, deploymentdomain.ErrInsufficientPayment):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_payment",
			Message: "payment amount below the required price",
		}
	case errors.Is(err, paymentdomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "treasury balance too low",
		}

	case errors.Is(err, subscriptiondomain.ErrAlreadySubscribed):
		return http.StatusConflict, errorPayload{
			Type:    "already_subscribed",
			Message: "an active subscription already exists for this wallet",
		}
	case errors.Is(err, deploymentdomain.ErrInvalidStatusTransition):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_status_transition",
			Message: "deployment status does not permit this transition",
		}

	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "subscription_not_found",
			Message: "no subscription for this wallet",
		}
	case errors.Is(err, deploymentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authoauth.ErrInvalidRequest),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, subscriptiondomain.ErrInvalidAddress),
		errors.Is(err, subscriptiondomain.ErrInvalidTier),
		errors.Is(err, deploymentdomain.ErrInvalidAddress),
		errors.Is(err, deploymentdomain.ErrInvalidRepo),
		errors.Is(err, deploymentdomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrInvalidAmount):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many deployment requests, slow down",
		}

	case errors.Is(err, chain.ErrNetwork):
		return http.StatusBadGateway, errorPayload{
			Type:    "network_error",
			Message: "chain network error",
		}
	case errors.Is(err, buildsvc.ErrBackend):
		return http.StatusBadGateway, errorPayload{
			Type:    "backend_error",
			Message: err.Error(),
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
