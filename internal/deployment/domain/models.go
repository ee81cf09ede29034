// Package domain contains the deployment registry models. A deployment
// record is immutable after creation except for its status transitions,
// and a terminal record is never mutated again.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the deployment lifecycle state. Transitions are monotonic:
// pending -> processing -> deployed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDeployed   Status = "deployed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is legal.
func (s Status) Terminal() bool {
	return s == StatusDeployed || s == StatusFailed
}

type DeploymentType string

const (
	TypeRegular  DeploymentType = "regular"
	TypeRollback DeploymentType = "rollback"
)

type DeploymentRecord struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	Address string       `gorm:"type:text;not null;index:idx_deployments_address_repo,priority:1" json:"address"`
	RepoURL string       `gorm:"type:text;not null;index:idx_deployments_address_repo,priority:2" json:"repo_url"`

	Branch       string `gorm:"type:text;not null" json:"branch"`
	CommitHash   string `gorm:"type:text" json:"commit_hash"`
	BuildCommand string `gorm:"type:text" json:"build_command"`
	OutputDir    string `gorm:"type:text" json:"output_dir"`
	Environment  string `gorm:"type:text" json:"environment"`

	Status Status `gorm:"type:text;not null;index" json:"status"`

	AmountPaid      int64 `gorm:"not null" json:"amount_paid"`
	EstimatedUnits  int64 `gorm:"not null;default:0" json:"estimated_units"`
	ActualUnitsUsed int64 `gorm:"not null;default:0" json:"actual_units_used"`

	// Version counts deployments per (address, repo_url), starting at 1.
	Version int64 `gorm:"not null" json:"version"`

	DeploymentType DeploymentType `gorm:"type:text;not null" json:"deployment_type"`
	ParentID       *snowflake.ID  `gorm:"index" json:"parent_id,omitempty"`

	IdempotencyKey *string `gorm:"type:text;uniqueIndex" json:"idempotency_key,omitempty"`

	SiteRef      *string `gorm:"type:text" json:"site_ref,omitempty"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	DeployedAt *time.Time `gorm:"" json:"deployed_at,omitempty"`
}

// TableName sets the database table name.
func (DeploymentRecord) TableName() string { return "deployments" }
