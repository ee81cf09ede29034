// Package domain contains persistence models for subscriptions and their
// payment history.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier is a subscription tier. Ordering matters for upgrades.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierGrowth     Tier = "growth"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierFree:       0,
	TierStarter:    1,
	TierGrowth:     2,
	TierEnterprise: 3,
}

// Rank returns the tier's position in the upgrade order, or -1 for an
// unknown tier.
func (t Tier) Rank() int {
	rank, ok := tierRank[t]
	if !ok {
		return -1
	}
	return rank
}

// Paid reports whether the tier requires payment to enter.
func (t Tier) Paid() bool {
	return t == TierStarter || t == TierGrowth || t == TierEnterprise
}

// Subscription captures one wallet's plan. Records are never deleted; an
// expired subscription stays as a permanent audit entity.
type Subscription struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Address         string       `gorm:"type:text;not null;uniqueIndex" json:"address"`
	Tier            Tier         `gorm:"type:text;not null" json:"tier"`
	StartAt         time.Time    `gorm:"not null" json:"start_at"`
	EndAt           time.Time    `gorm:"not null" json:"end_at"`
	DeploymentsUsed int64        `gorm:"not null;default:0" json:"deployments_used"`
	BandwidthUsed   int64        `gorm:"not null;default:0" json:"bandwidth_used"`
	AutoRenew       bool         `gorm:"not null;default:false" json:"auto_renew"`
	TotalSpent      int64        `gorm:"not null;default:0" json:"total_spent"`
	// RenewalNoticeAt is when a renewal-due notice was last emitted; the
	// scheduler uses it to flag each billing period once.
	RenewalNoticeAt *time.Time `json:"-"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// PaymentRecord is one append-only entry of a subscription's payment
// history. TotalSpent on the parent always equals the sum of Amount here.
type PaymentRecord struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID `gorm:"not null;index" json:"subscription_id"`
	Address        string       `gorm:"type:text;not null;index" json:"address"`
	Amount         int64        `gorm:"not null" json:"amount"`
	Tier           Tier         `gorm:"type:text;not null" json:"tier"`
	TransactionRef string       `gorm:"type:text" json:"transaction_ref"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "subscription_payments" }
