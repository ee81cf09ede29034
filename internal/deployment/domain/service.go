package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	"gorm.io/gorm"
)

// RepoMeta carries the immutable request fields of a deployment.
type RepoMeta struct {
	RepoURL        string `json:"repo_url"`
	Branch         string `json:"branch"`
	CommitHash     string `json:"commit_hash"`
	BuildCommand   string `json:"build_command"`
	OutputDir      string `json:"output_dir"`
	Environment    string `json:"environment"`
	EstimatedUnits int64  `json:"estimated_units"`
}

type RequestDeploymentRequest struct {
	Address        string                `json:"address"`
	Payment        paymentdomain.Payment `json:"payment"`
	Repo           RepoMeta              `json:"repo"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
}

type RequestRollbackRequest struct {
	Address        string                `json:"address"`
	Payment        paymentdomain.Payment `json:"payment"`
	ParentID       string                `json:"parent_id"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
}

type Service interface {
	RequestDeployment(ctx context.Context, req RequestDeploymentRequest) (DeploymentRecord, error)
	RequestRollback(ctx context.Context, req RequestRollbackRequest) (DeploymentRecord, error)

	// Status transitions are restricted to the configured admin principal.
	MarkProcessing(ctx context.Context, caller, id string) (DeploymentRecord, error)
	MarkDeployed(ctx context.Context, caller, id, siteRef string, actualUnits int64) (DeploymentRecord, error)
	MarkFailed(ctx context.Context, caller, id, errorMessage string) (DeploymentRecord, error)

	Get(ctx context.Context, id string) (DeploymentRecord, error)
	ListByAddress(ctx context.Context, address string) ([]DeploymentRecord, error)

	// CalculateCost is the deterministic pricing function:
	// minimumPayment + estimatedUnits*unitRate, in base units.
	CalculateCost(estimatedUnits int64) int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *DeploymentRecord) error
	Save(ctx context.Context, db *gorm.DB, record *DeploymentRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*DeploymentRecord, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*DeploymentRecord, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*DeploymentRecord, error)
	CountByAddressRepo(ctx context.Context, db *gorm.DB, address, repoURL string) (int64, error)
	ListByAddress(ctx context.Context, db *gorm.DB, address string) ([]DeploymentRecord, error)
}

var (
	ErrInvalidAddress          = errors.New("invalid_address")
	ErrInvalidRepo             = errors.New("invalid_repo")
	ErrInvalidID               = errors.New("invalid_id")
	ErrNotFound                = errors.New("not_found")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInsufficientPayment     = errors.New("insufficient_payment")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
)
