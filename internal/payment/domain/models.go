// Package domain contains the treasury models: buffered token balances and
// the append-only payment event trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Payment is a payment presented to an operation: an amount in base units
// of the pay token plus the on-chain transaction reference that carried it.
type Payment struct {
	Amount         int64  `json:"amount"`
	TransactionRef string `json:"transaction_ref"`
}

// TreasuryAccount buffers one token. TotalProcessed is the lifetime inflow
// and never decreases; Balance is inflow minus swaps and transfers out.
type TreasuryAccount struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	Token          string       `gorm:"type:text;not null;uniqueIndex"`
	Balance        int64        `gorm:"not null;default:0"`
	TotalProcessed int64        `gorm:"not null;default:0"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TreasuryAccount) TableName() string { return "treasury_accounts" }

type PaymentEventKind string

const (
	EventKindAccept      PaymentEventKind = "payment_processed"
	EventKindSwap        PaymentEventKind = "swap_executed"
	EventKindTransferOut PaymentEventKind = "transfer_out"
)

// PaymentEvent is one append-only treasury event.
type PaymentEvent struct {
	ID         snowflake.ID     `gorm:"primaryKey" json:"id"`
	Kind       PaymentEventKind `gorm:"type:text;not null;index" json:"kind"`
	Token      string           `gorm:"type:text;not null" json:"token"`
	Amount     int64            `gorm:"not null" json:"amount"`
	FeeAmount  int64            `gorm:"not null;default:0" json:"fee_amount"`
	OutToken   string           `gorm:"type:text" json:"out_token,omitempty"`
	OutAmount  int64            `gorm:"not null;default:0" json:"out_amount"`
	PurposeRef string           `gorm:"type:text" json:"purpose_ref,omitempty"`
	Recipient  string           `gorm:"type:text" json:"recipient,omitempty"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PaymentEvent) TableName() string { return "payment_events" }
