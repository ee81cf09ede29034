package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	"github.com/shiplet/shiplet/internal/clock"
	"github.com/shiplet/shiplet/internal/config"
	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	"github.com/shiplet/shiplet/internal/observability/metrics"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	"github.com/shiplet/shiplet/pkg/db"
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
	Repo    deploymentdomain.Repository

	Paymentsvc paymentdomain.Service

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
	repo    deploymentdomain.Repository

	payments paymentdomain.Service

	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) deploymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("deployment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		pricing:  p.Pricing,
		repo:     p.Repo,
		payments: p.Paymentsvc,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

// CalculateCost implements domain.Service.
func (s *Service) CalculateCost(estimatedUnits int64) int64 {
	payments := s.pricing.Get().Payments
	if estimatedUnits < 0 {
		estimatedUnits = 0
	}
	return payments.MinimumPaymentTokens*config.BaseUnitsPerToken + estimatedUnits*payments.UnitRateUnits
}

// RequestDeployment implements domain.Service. Re-submitting with the same
// idempotency key returns the original record instead of opening a second
// pending deployment.
func (s *Service) RequestDeployment(ctx context.Context, req deploymentdomain.RequestDeploymentRequest) (deploymentdomain.DeploymentRecord, error) {
	address, err := normalizeAddress(req.Address)
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}
	repoURL := strings.TrimSpace(req.Repo.RepoURL)
	if repoURL == "" {
		return deploymentdomain.DeploymentRecord{}, deploymentdomain.ErrInvalidRepo
	}
	if req.Payment.Amount < s.minimumPayment() {
		return deploymentdomain.DeploymentRecord{}, deploymentdomain.ErrInsufficientPayment
	}

	if existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey); err != nil || existing != nil {
		if err != nil {
			return deploymentdomain.DeploymentRecord{}, err
		}
		return *existing, nil
	}

	record := deploymentdomain.DeploymentRecord{
		ID:      s.genID.Generate(),
		Address: address,
		RepoURL: repoURL,

		Branch:       defaultBranch(req.Repo.Branch),
		CommitHash:   strings.TrimSpace(req.Repo.CommitHash),
		BuildCommand: strings.TrimSpace(req.Repo.BuildCommand),
		OutputDir:    strings.TrimSpace(req.Repo.OutputDir),
		Environment:  strings.TrimSpace(req.Repo.Environment),

		Status:         deploymentdomain.StatusPending,
		AmountPaid:     req.Payment.Amount,
		EstimatedUnits: req.Repo.EstimatedUnits,
		DeploymentType: deploymentdomain.TypeRegular,
		IdempotencyKey: optionalKey(req.IdempotencyKey),
		CreatedAt:      s.clock.Now(),
	}

	if err := s.insertVersioned(ctx, &record, req.Payment, "deployment:"+record.ID.String()); err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}

	s.auditRequest(ctx, &record, "deployment.request", map[string]any{
		"repo_url": record.RepoURL,
		"version":  record.Version,
		"amount":   record.AmountPaid,
	})
	return record, nil
}

// RequestRollback implements domain.Service. The new record replays the
// parent's immutable request fields but gets its own version number.
func (s *Service) RequestRollback(ctx context.Context, req deploymentdomain.RequestRollbackRequest) (deploymentdomain.DeploymentRecord, error) {
	address, err := normalizeAddress(req.Address)
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}
	if req.Payment.Amount < s.minimumPayment() {
		return deploymentdomain.DeploymentRecord{}, deploymentdomain.ErrInsufficientPayment
	}

	parentID, err := parseID(req.ParentID)
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}

	parent, err := s.repo.FindByID(ctx, s.db, parentID)
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}
	if parent == nil {
		return deploymentdomain.DeploymentRecord{}, deploymentdomain.ErrNotFound
	}
	if parent.Address != address {
		return deploymentdomain.DeploymentRecord{}, deploymentdomain.ErrUnauthorized
	}

	if existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey); err != nil || existing != nil {
		if err != nil {
			return deploymentdomain.DeploymentRecord{}, err
		}
		return *existing, nil
	}

	record := deploymentdomain.DeploymentRecord{
		ID:      s.genID.Generate(),
		Address: address,
		RepoURL: parent.RepoURL,

		Branch:       parent.Branch,
		CommitHash:   parent.CommitHash,
		BuildCommand: parent.BuildCommand,
		OutputDir:    parent.OutputDir,
		Environment:  parent.Environment,

		Status:         deploymentdomain.StatusPending,
		AmountPaid:     req.Payment.Amount,
		EstimatedUnits: parent.EstimatedUnits,
		DeploymentType: deploymentdomain.TypeRollback,
		ParentID:       &parent.ID,
		IdempotencyKey: optionalKey(req.IdempotencyKey),
		CreatedAt:      s.clock.Now(),
	}

	if err := s.insertVersioned(ctx, &record, req.Payment, "rollback:"+record.ID.String()); err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}

	s.auditRequest(ctx, &record, "deployment.rollback", map[string]any{
		"repo_url":  record.RepoURL,
		"parent_id": parent.ID.String(),
		"version":   record.Version,
	})
	return record, nil
}

// MarkProcessing implements domain.Service.
func (s *Service) MarkProcessing(ctx context.Context, caller, id string) (deploymentdomain.DeploymentRecord, error) {
	return s.transition(ctx, caller, id, "deployment.processing", func(record *deploymentdomain.DeploymentRecord) error {
		if record.Status != deploymentdomain.StatusPending {
			return deploymentdomain.ErrInvalidStatusTransition
		}
		record.Status = deploymentdomain.StatusProcessing
		return nil
	})
}

// MarkDeployed implements domain.Service.
func (s *Service) MarkDeployed(ctx context.Context, caller, id, siteRef string, actualUnits int64) (deploymentdomain.DeploymentRecord, error) {
	return s.transition(ctx, caller, id, "deployment.deployed", func(record *deploymentdomain.DeploymentRecord) error {
		if record.Status != deploymentdomain.StatusProcessing {
			return deploymentdomain.ErrInvalidStatusTransition
		}
		now := s.clock.Now()
		record.Status = deploymentdomain.StatusDeployed
		record.DeployedAt = &now
		record.ActualUnitsUsed = actualUnits
		if siteRef = strings.TrimSpace(siteRef); siteRef != "" {
			record.SiteRef = &siteRef
		}
		return nil
	})
}

// MarkFailed implements domain.Service.
func (s *Service) MarkFailed(ctx context.Context, caller, id, errorMessage string) (deploymentdomain.DeploymentRecord, error) {
	return s.transition(ctx, caller, id, "deployment.failed", func(record *deploymentdomain.DeploymentRecord) error {
		if record.Status != deploymentdomain.StatusProcessing {
			return deploymentdomain.ErrInvalidStatusTransition
		}
		record.Status = deploymentdomain.StatusFailed
		if errorMessage = strings.TrimSpace(errorMessage); errorMessage != "" {
			record.ErrorMessage = &errorMessage
		}
		return nil
	})
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, id string) (deploymentdomain.DeploymentRecord, error) {
	parsed, err := parseID(id)
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}

	record, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}
	if record == nil {
		return deploymentdomain.DeploymentRecord{}, deploymentdomain.ErrNotFound
	}
	return *record, nil
}

// ListByAddress implements domain.Service. Records come back in insertion
// order.
func (s *Service) ListByAddress(ctx context.Context, address string) ([]deploymentdomain.DeploymentRecord, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByAddress(ctx, s.db, address)
}

// insertVersioned takes the payment and creates the record in one
// transaction: a failed insert rolls the treasury credit back, and a
// failed intake leaves no record behind.
func (s *Service) insertVersioned(ctx context.Context, record *deploymentdomain.DeploymentRecord, payment paymentdomain.Payment, purposeRef string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.payments.AcceptPaymentTx(ctx, tx, payment, purposeRef); err != nil {
			return err
		}
		count, err := s.repo.CountByAddressRepo(ctx, tx, record.Address, record.RepoURL)
		if err != nil {
			return err
		}
		record.Version = count + 1
		return s.repo.Insert(ctx, tx, record)
	})
	if err != nil {
		// Two concurrent submits with the same idempotency key race past the
		// pre-insert lookup; the unique index catches the loser, whose
		// rolled-back intake never charges the wallet twice.
		if db.IsDuplicateKeyErr(err) && record.IdempotencyKey != nil {
			if existing, ferr := s.repo.FindByIdempotencyKey(ctx, s.db, *record.IdempotencyKey); ferr == nil && existing != nil {
				*record = *existing
				return nil
			}
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordDeployment(ctx, string(record.DeploymentType))
	}
	return nil
}

func (s *Service) transition(ctx context.Context, caller, id, action string, apply func(*deploymentdomain.DeploymentRecord) error) (deploymentdomain.DeploymentRecord, error) {
	if !s.isAdmin(caller) {
		return deploymentdomain.DeploymentRecord{}, deploymentdomain.ErrUnauthorized
	}

	parsed, err := parseID(id)
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}

	var updated deploymentdomain.DeploymentRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if record == nil {
			return deploymentdomain.ErrNotFound
		}
		if err := apply(record); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, record); err != nil {
			return err
		}
		updated = *record
		return nil
	})
	if err != nil {
		return deploymentdomain.DeploymentRecord{}, err
	}

	if s.audit != nil {
		targetID := updated.ID.String()
		_ = s.audit.Record(ctx, auditdomain.ActorTypeAdmin, &caller, action, "deployment", &targetID, map[string]any{
			"status": string(updated.Status),
		})
	}
	if s.metrics != nil && updated.Status.Terminal() {
		s.metrics.RecordDeploymentOutcome(ctx, string(updated.Status))
	}
	return updated, nil
}

// isAdmin is the explicit authorization check for privileged transitions:
// the caller identity must match the configured admin principal.
func (s *Service) isAdmin(caller string) bool {
	admin := strings.ToLower(strings.TrimSpace(s.cfg.AdminAddress))
	caller = strings.ToLower(strings.TrimSpace(caller))
	return admin != "" && caller == admin
}

func (s *Service) minimumPayment() int64 {
	return s.pricing.Get().Payments.MinimumPaymentTokens * config.BaseUnitsPerToken
}

func (s *Service) findByIdempotencyKey(ctx context.Context, key string) (*deploymentdomain.DeploymentRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	return s.repo.FindByIdempotencyKey(ctx, s.db, key)
}

func (s *Service) auditRequest(ctx context.Context, record *deploymentdomain.DeploymentRecord, action string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	targetID := record.ID.String()
	_ = s.audit.Record(ctx, auditdomain.ActorTypeWallet, &record.Address, action, "deployment", &targetID, metadata)
}

func normalizeAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return "", deploymentdomain.ErrInvalidAddress
	}
	return address, nil
}

func parseID(raw string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, deploymentdomain.ErrInvalidID
	}
	return int64(parsed), nil
}

func defaultBranch(branch string) string {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return "main"
	}
	return branch
}

func optionalKey(key string) *string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &key
}
