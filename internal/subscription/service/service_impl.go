package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	"github.com/shiplet/shiplet/internal/clock"
	"github.com/shiplet/shiplet/internal/config"
	"github.com/shiplet/shiplet/internal/observability/metrics"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"github.com/shiplet/shiplet/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Subscription periods are fixed 30-day windows.
const subscriptionPeriod = 30 * 24 * time.Hour

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Pricing *config.PricingHolder
	Repo    subscriptiondomain.Repository

	Paymentsvc paymentdomain.Service

	Audit   auditdomain.Service `optional:"true"`
	Metrics *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	pricing *config.PricingHolder
	repo    subscriptiondomain.Repository

	paymentsvc paymentdomain.Service

	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		pricing: p.Pricing,
		repo:    p.Repo,

		paymentsvc: p.Paymentsvc,

		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

// Subscribe implements domain.Service.
func (s *Service) Subscribe(ctx context.Context, req subscriptiondomain.SubscribeRequest) (subscriptiondomain.Subscription, error) {
	address, err := normalizeAddress(req.Address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if !req.Tier.Paid() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}

	price, ok := s.tierPrice(req.Tier)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}
	if req.Payment.Amount < price {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInsufficientPayment
	}

	existing, err := s.repo.FindByAddress(ctx, s.db, address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if existing != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrAlreadySubscribed
	}

	now := s.clock.Now()
	subscription := subscriptiondomain.Subscription{
		ID:         s.genID.Generate(),
		Address:    address,
		Tier:       req.Tier,
		StartAt:    now,
		EndAt:      now.Add(subscriptionPeriod),
		AutoRenew:  req.AutoRenew,
		TotalSpent: req.Payment.Amount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Treasury credit and subscription row commit or roll back together;
	// losing the insert race must not leave the wallet charged.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.paymentsvc.AcceptPaymentTx(ctx, tx, req.Payment, "subscription:"+address); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}
		return s.repo.InsertPayment(ctx, tx, s.paymentRecord(&subscription, req.Payment))
	})
	if err != nil {
		// Concurrent subscribes race past the existence check; the unique
		// index on address decides the winner.
		if db.IsDuplicateKeyErr(err) {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrAlreadySubscribed
		}
		return subscriptiondomain.Subscription{}, err
	}

	s.auditChange(ctx, address, "subscription.subscribe", &subscription, map[string]any{
		"tier":   string(req.Tier),
		"amount": req.Payment.Amount,
	})
	return subscription, nil
}

// Renew implements domain.Service. Renewing early keeps the remaining time
// (EndAt + 30d); renewing after expiry restarts the window from now. Usage
// counters reset either way.
func (s *Service) Renew(ctx context.Context, req subscriptiondomain.RenewRequest) (subscriptiondomain.Subscription, error) {
	address, err := normalizeAddress(req.Address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	subscription, err := s.repo.FindByAddress(ctx, s.db, address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	price, ok := s.tierPrice(subscription.Tier)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}
	if req.Payment.Amount < price {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInsufficientPayment
	}

	now := s.clock.Now()
	anchor := now
	if subscription.EndAt.After(now) {
		anchor = subscription.EndAt
	}
	subscription.EndAt = anchor.Add(subscriptionPeriod)
	subscription.DeploymentsUsed = 0
	subscription.BandwidthUsed = 0
	subscription.TotalSpent += req.Payment.Amount
	subscription.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.paymentsvc.AcceptPaymentTx(ctx, tx, req.Payment, "renewal:"+address); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, subscription); err != nil {
			return err
		}
		return s.repo.InsertPayment(ctx, tx, s.paymentRecord(subscription, req.Payment))
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.auditChange(ctx, address, "subscription.renew", subscription, map[string]any{
		"amount": req.Payment.Amount,
	})
	return *subscription, nil
}

// UpgradeTier implements domain.Service. Only upgrades are permitted and
// the required payment is the price difference between tiers.
func (s *Service) UpgradeTier(ctx context.Context, req subscriptiondomain.UpgradeRequest) (subscriptiondomain.Subscription, error) {
	address, err := normalizeAddress(req.Address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	subscription, err := s.repo.FindByAddress(ctx, s.db, address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	if !req.NewTier.Paid() || req.NewTier.Rank() <= subscription.Tier.Rank() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}

	newPrice, ok := s.tierPrice(req.NewTier)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}
	currentPrice, ok := s.tierPrice(subscription.Tier)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}

	required := newPrice - currentPrice
	if req.Payment.Amount < required {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInsufficientPayment
	}

	previousTier := subscription.Tier
	subscription.Tier = req.NewTier
	subscription.TotalSpent += req.Payment.Amount
	subscription.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.paymentsvc.AcceptPaymentTx(ctx, tx, req.Payment, "upgrade:"+address); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, subscription); err != nil {
			return err
		}
		return s.repo.InsertPayment(ctx, tx, s.paymentRecord(subscription, req.Payment))
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.auditChange(ctx, address, "subscription.upgrade", subscription, map[string]any{
		"from":   string(previousTier),
		"to":     string(req.NewTier),
		"amount": req.Payment.Amount,
	})
	return *subscription, nil
}

// Cancel implements domain.Service. Cancellation only disables auto-renew;
// the paid window keeps running until EndAt.
func (s *Service) Cancel(ctx context.Context, address string) (subscriptiondomain.Subscription, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	subscription, err := s.repo.FindByAddress(ctx, s.db, address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	subscription.AutoRenew = false
	subscription.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, s.db, subscription); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.auditChange(ctx, address, "subscription.cancel", subscription, nil)
	return *subscription, nil
}

// CanDeploy implements domain.Service.
func (s *Service) CanDeploy(ctx context.Context, address string) (bool, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return false, err
	}

	subscription, err := s.repo.FindByAddress(ctx, s.db, address)
	if err != nil {
		return false, err
	}
	if subscription == nil {
		return true, nil
	}

	if s.clock.Now().After(subscription.EndAt) {
		return false, nil
	}

	limits, ok := s.tierLimits(subscription.Tier)
	if !ok {
		return false, subscriptiondomain.ErrInvalidTier
	}
	if limits.DeployLimit > 0 && subscription.DeploymentsUsed >= limits.DeployLimit {
		return false, nil
	}
	return true, nil
}

// RecordDeployment implements domain.Service. A wallet with no subscription
// has nothing to count against; exceeding a limit is reported, not enforced.
func (s *Service) RecordDeployment(ctx context.Context, address string, bandwidthUnits int64) (subscriptiondomain.UsageReport, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return subscriptiondomain.UsageReport{}, err
	}

	var report subscriptiondomain.UsageReport
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByAddressForUpdate(ctx, tx, address)
		if err != nil {
			return err
		}
		if subscription == nil {
			return nil
		}

		subscription.DeploymentsUsed++
		subscription.BandwidthUsed += bandwidthUnits
		subscription.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(ctx, tx, subscription); err != nil {
			return err
		}

		limits, ok := s.tierLimits(subscription.Tier)
		report = subscriptiondomain.UsageReport{
			DeploymentsUsed: subscription.DeploymentsUsed,
			BandwidthUsed:   subscription.BandwidthUsed,
		}
		if ok {
			if limits.DeployLimit > 0 && subscription.DeploymentsUsed > limits.DeployLimit {
				report.Exceeded = true
			}
			if limits.BandwidthLimit > 0 && subscription.BandwidthUsed > limits.BandwidthLimit {
				report.Exceeded = true
			}
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.UsageReport{}, err
	}

	if report.Exceeded {
		s.log.Warn("tier usage exceeded",
			zap.String("address", address),
			zap.Int64("deployments_used", report.DeploymentsUsed),
			zap.Int64("bandwidth_used", report.BandwidthUsed),
		)
		if s.audit != nil {
			_ = s.audit.Record(ctx, auditdomain.ActorTypeSystem, &address, "subscription.usage_exceeded", "subscription", nil, map[string]any{
				"deployments_used": report.DeploymentsUsed,
				"bandwidth_used":   report.BandwidthUsed,
			})
		}
	}
	return report, nil
}

// GetByAddress implements domain.Service.
func (s *Service) GetByAddress(ctx context.Context, address string) (subscriptiondomain.Subscription, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	subscription, err := s.repo.FindByAddress(ctx, s.db, address)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

// ListPayments implements domain.Service.
func (s *Service) ListPayments(ctx context.Context, address string) ([]subscriptiondomain.PaymentRecord, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, s.db, address)
}

func (s *Service) paymentRecord(subscription *subscriptiondomain.Subscription, payment paymentdomain.Payment) *subscriptiondomain.PaymentRecord {
	return &subscriptiondomain.PaymentRecord{
		ID:             s.genID.Generate(),
		SubscriptionID: subscription.ID,
		Address:        subscription.Address,
		Amount:         payment.Amount,
		Tier:           subscription.Tier,
		TransactionRef: payment.TransactionRef,
		CreatedAt:      s.clock.Now(),
	}
}

func (s *Service) auditChange(ctx context.Context, address, action string, subscription *subscriptiondomain.Subscription, metadata map[string]any) {
	if s.audit != nil {
		targetID := subscription.ID.String()
		_ = s.audit.Record(ctx, auditdomain.ActorTypeWallet, &address, action, "subscription", &targetID, metadata)
	}
	if s.metrics != nil {
		s.metrics.RecordSubscriptionChange(ctx, action)
	}
}

func (s *Service) tierPrice(tier subscriptiondomain.Tier) (int64, bool) {
	pricing, ok := s.tierLimits(tier)
	if !ok {
		return 0, false
	}
	return pricing.PriceTokens * config.BaseUnitsPerToken, true
}

func (s *Service) tierLimits(tier subscriptiondomain.Tier) (config.TierPricing, bool) {
	for _, entry := range s.pricing.Get().Tiers {
		if entry.Tier == string(tier) {
			return entry, true
		}
	}
	return config.TierPricing{}, false
}

func normalizeAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return "", subscriptiondomain.ErrInvalidAddress
	}
	return address, nil
}
