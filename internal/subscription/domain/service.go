package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
)

type SubscribeRequest struct {
	Address   string                `json:"address"`
	Tier      Tier                  `json:"tier"`
	AutoRenew bool                  `json:"auto_renew"`
	Payment   paymentdomain.Payment `json:"payment"`
}

type RenewRequest struct {
	Address string                `json:"address"`
	Payment paymentdomain.Payment `json:"payment"`
}

type UpgradeRequest struct {
	Address string                `json:"address"`
	NewTier Tier                  `json:"new_tier"`
	Payment paymentdomain.Payment `json:"payment"`
}

// UsageReport is returned by RecordDeployment. Exceeded is a notification,
// not an error: a deployment already admitted is never blocked retroactively.
type UsageReport struct {
	DeploymentsUsed int64 `json:"deployments_used"`
	BandwidthUsed   int64 `json:"bandwidth_used"`
	Exceeded        bool  `json:"exceeded"`
}

type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error)
	Renew(ctx context.Context, req RenewRequest) (Subscription, error)
	UpgradeTier(ctx context.Context, req UpgradeRequest) (Subscription, error)
	Cancel(ctx context.Context, address string) (Subscription, error)
	// CanDeploy reports eligibility: a wallet with no subscription rides the
	// implicit free tier (gating deferred to the deployment payment floor).
	CanDeploy(ctx context.Context, address string) (bool, error)
	RecordDeployment(ctx context.Context, address string, bandwidthUnits int64) (UsageReport, error)
	GetByAddress(ctx context.Context, address string) (Subscription, error)
	ListPayments(ctx context.Context, address string) ([]PaymentRecord, error)
}

var (
	ErrInvalidAddress       = errors.New("invalid_address")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrAlreadySubscribed    = errors.New("already_subscribed")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInsufficientPayment  = errors.New("insufficient_payment")
)
