package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	"github.com/shiplet/shiplet/internal/clock"
	"github.com/shiplet/shiplet/internal/config"
	"github.com/shiplet/shiplet/internal/observability/metrics"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	"github.com/shiplet/shiplet/internal/payment/swap"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Pricing *config.PricingHolder
	Repo    paymentdomain.Repository
	Engine  swap.Engine

	Audit   auditdomain.Service `optional:"true"`
	Metrics *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	pricing *config.PricingHolder
	repo    paymentdomain.Repository
	engine  swap.Engine
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Cfg,
		pricing: p.Pricing,
		repo:    p.Repo,
		engine:  p.Engine,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

// AcceptPayment implements domain.Service.
func (s *Service) AcceptPayment(ctx context.Context, payment paymentdomain.Payment, purposeRef string) (paymentdomain.Receipt, error) {
	if payment.Amount <= 0 {
		return paymentdomain.Receipt{}, paymentdomain.ErrInvalidAmount
	}

	var receipt paymentdomain.Receipt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		receipt, err = s.accept(ctx, tx, payment, purposeRef)
		return err
	})
	if err != nil {
		return paymentdomain.Receipt{}, err
	}

	if s.audit != nil {
		eventID := receipt.EventID.String()
		_ = s.audit.Record(ctx, auditdomain.ActorTypeSystem, nil, "payment.accept", "payment_event", &eventID, map[string]any{
			"token":       s.cfg.PayToken,
			"amount":      payment.Amount,
			"purpose_ref": purposeRef,
			"tx_ref":      payment.TransactionRef,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordPayment(ctx, payment.Amount)
	}

	return receipt, nil
}

// AcceptPaymentTx implements domain.Service. The caller owns the
// transaction; no audit record or metric is emitted here because the
// enclosing operation may still roll back.
func (s *Service) AcceptPaymentTx(ctx context.Context, tx *gorm.DB, payment paymentdomain.Payment, purposeRef string) (paymentdomain.Receipt, error) {
	if payment.Amount <= 0 {
		return paymentdomain.Receipt{}, paymentdomain.ErrInvalidAmount
	}
	return s.accept(ctx, tx, payment, purposeRef)
}

func (s *Service) accept(ctx context.Context, tx *gorm.DB, payment paymentdomain.Payment, purposeRef string) (paymentdomain.Receipt, error) {
	account, err := s.loadAccount(ctx, tx, s.cfg.PayToken)
	if err != nil {
		return paymentdomain.Receipt{}, err
	}

	account.Balance += payment.Amount
	account.TotalProcessed += payment.Amount
	account.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveAccount(ctx, tx, account); err != nil {
		return paymentdomain.Receipt{}, err
	}

	event := paymentdomain.PaymentEvent{
		ID:         s.genID.Generate(),
		Kind:       paymentdomain.EventKindAccept,
		Token:      s.cfg.PayToken,
		Amount:     payment.Amount,
		PurposeRef: purposeRef,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, tx, &event); err != nil {
		return paymentdomain.Receipt{}, err
	}

	return paymentdomain.Receipt{
		EventID:        event.ID,
		Token:          s.cfg.PayToken,
		Amount:         payment.Amount,
		TotalProcessed: account.TotalProcessed,
	}, nil
}

// TrySwap implements domain.Service. The conversion only fires once the
// pay-token buffer has reached the configured threshold, and always swaps
// the whole buffer.
func (s *Service) TrySwap(ctx context.Context) (*paymentdomain.SwapResult, error) {
	threshold := s.pricing.Get().Payments.AutoSwapThresholdTokens * config.BaseUnitsPerToken

	var result *paymentdomain.SwapResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payAccount, err := s.repo.AccountForUpdate(ctx, tx, s.cfg.PayToken)
		if err != nil {
			return err
		}
		if payAccount == nil || payAccount.Balance < threshold {
			return nil
		}

		swapped, err := s.engine.Swap(payAccount.Balance)
		if err != nil {
			return err
		}

		outAccount, err := s.loadAccount(ctx, tx, s.cfg.OutToken)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		payAccount.Balance -= swapped.InputAmount
		payAccount.UpdatedAt = now
		outAccount.Balance += swapped.OutputAmount
		outAccount.TotalProcessed += swapped.OutputAmount
		outAccount.UpdatedAt = now

		if err := s.repo.SaveAccount(ctx, tx, payAccount); err != nil {
			return err
		}
		if err := s.repo.SaveAccount(ctx, tx, outAccount); err != nil {
			return err
		}

		event := paymentdomain.PaymentEvent{
			ID:        s.genID.Generate(),
			Kind:      paymentdomain.EventKindSwap,
			Token:     s.cfg.PayToken,
			Amount:    swapped.InputAmount,
			FeeAmount: swapped.FeeAmount,
			OutToken:  s.cfg.OutToken,
			OutAmount: swapped.OutputAmount,
			CreatedAt: now,
		}
		if err := s.repo.InsertEvent(ctx, tx, &event); err != nil {
			return err
		}

		result = &paymentdomain.SwapResult{
			InputAmount:  swapped.InputAmount,
			FeeAmount:    swapped.FeeAmount,
			OutputAmount: swapped.OutputAmount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, auditdomain.ActorTypeSystem, nil, "payment.swap", "treasury", nil, map[string]any{
			"input_amount":  result.InputAmount,
			"fee_amount":    result.FeeAmount,
			"output_amount": result.OutputAmount,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordSwap(ctx)
	}

	s.log.Info("treasury swap executed",
		zap.Int64("input", result.InputAmount),
		zap.Int64("output", result.OutputAmount),
	)
	return result, nil
}

// TransferOut implements domain.Service.
func (s *Service) TransferOut(ctx context.Context, amount int64, recipient string) error {
	if amount <= 0 {
		return paymentdomain.ErrInvalidAmount
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.AccountForUpdate(ctx, tx, s.cfg.OutToken)
		if err != nil {
			return err
		}
		if account == nil || account.Balance < amount {
			return paymentdomain.ErrInsufficientBalance
		}

		account.Balance -= amount
		account.UpdatedAt = s.clock.Now()
		if err := s.repo.SaveAccount(ctx, tx, account); err != nil {
			return err
		}

		event := paymentdomain.PaymentEvent{
			ID:        s.genID.Generate(),
			Kind:      paymentdomain.EventKindTransferOut,
			Token:     s.cfg.OutToken,
			Amount:    amount,
			Recipient: recipient,
			CreatedAt: s.clock.Now(),
		}
		return s.repo.InsertEvent(ctx, tx, &event)
	})
	if err != nil {
		return err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, auditdomain.ActorTypeAdmin, nil, "payment.transfer_out", "treasury", nil, map[string]any{
			"token":     s.cfg.OutToken,
			"amount":    amount,
			"recipient": recipient,
		})
	}
	return nil
}

// Treasury implements domain.Service.
func (s *Service) Treasury(ctx context.Context) (paymentdomain.TreasurySnapshot, error) {
	snapshot := paymentdomain.TreasurySnapshot{
		PayToken: s.cfg.PayToken,
		OutToken: s.cfg.OutToken,
	}

	payAccount, err := s.repo.FindAccount(ctx, s.db, s.cfg.PayToken)
	if err != nil {
		return paymentdomain.TreasurySnapshot{}, err
	}
	if payAccount != nil {
		snapshot.PayBalance = payAccount.Balance
		snapshot.TotalProcessed = payAccount.TotalProcessed
	}

	outAccount, err := s.repo.FindAccount(ctx, s.db, s.cfg.OutToken)
	if err != nil {
		return paymentdomain.TreasurySnapshot{}, err
	}
	if outAccount != nil {
		snapshot.OutBalance = outAccount.Balance
	}

	return snapshot, nil
}

// ListEvents implements domain.Service.
func (s *Service) ListEvents(ctx context.Context, limit int) ([]paymentdomain.PaymentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListEvents(ctx, s.db, limit)
}

func (s *Service) loadAccount(ctx context.Context, tx *gorm.DB, token string) (*paymentdomain.TreasuryAccount, error) {
	account, err := s.repo.AccountForUpdate(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if account == nil {
		now := s.clock.Now()
		account = &paymentdomain.TreasuryAccount{
			ID:        s.genID.Generate(),
			Token:     token,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return account, nil
}
