// Package domain contains the append-only audit trail model. Every mutation
// of a registry writes one row here; tests assert on the trail instead of
// re-deriving history from final state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeWallet ActorType = "wallet"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

type AuditLog struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	ActorType    ActorType         `gorm:"type:text;not null"`
	ActorAddress *string           `gorm:"type:text;index"`
	Action       string            `gorm:"type:text;not null;index"`
	TargetType   string            `gorm:"type:text;not null"`
	TargetID     *string           `gorm:"type:text;index"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
