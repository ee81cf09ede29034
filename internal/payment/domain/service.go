package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Receipt struct {
	EventID        snowflake.ID `json:"event_id"`
	Token          string       `json:"token"`
	Amount         int64        `json:"amount"`
	TotalProcessed int64        `json:"total_processed"`
}

type SwapResult struct {
	InputAmount  int64 `json:"input_amount"`
	FeeAmount    int64 `json:"fee_amount"`
	OutputAmount int64 `json:"output_amount"`
}

type TreasurySnapshot struct {
	PayToken       string `json:"pay_token"`
	PayBalance     int64  `json:"pay_balance"`
	OutToken       string `json:"out_token"`
	OutBalance     int64  `json:"out_balance"`
	TotalProcessed int64  `json:"total_processed"`
}

type Service interface {
	// AcceptPayment adds the amount to the pay-token buffer and records a
	// payment_processed event. It fails only on a non-positive amount.
	AcceptPayment(ctx context.Context, payment Payment, purposeRef string) (Receipt, error)
	// AcceptPaymentTx is AcceptPayment inside the caller's transaction, so
	// the treasury credit commits or rolls back together with the record it
	// funds. Audit and metric emission stay with the caller.
	AcceptPaymentTx(ctx context.Context, tx *gorm.DB, payment Payment, purposeRef string) (Receipt, error)
	// TrySwap converts the buffered pay tokens when the buffer has reached
	// the auto-swap threshold. Returns nil when below threshold.
	TrySwap(ctx context.Context) (*SwapResult, error)
	// TransferOut debits the output-token buffer.
	TransferOut(ctx context.Context, amount int64, recipient string) error
	Treasury(ctx context.Context) (TreasurySnapshot, error)
	// ListEvents returns the most recent treasury events, newest first.
	ListEvents(ctx context.Context, limit int) ([]PaymentEvent, error)
}

type Repository interface {
	// AccountForUpdate loads the token's account with a row lock, creating
	// it on first use.
	AccountForUpdate(ctx context.Context, db *gorm.DB, token string) (*TreasuryAccount, error)
	FindAccount(ctx context.Context, db *gorm.DB, token string) (*TreasuryAccount, error)
	SaveAccount(ctx context.Context, db *gorm.DB, account *TreasuryAccount) error
	InsertEvent(ctx context.Context, db *gorm.DB, event *PaymentEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, limit int) ([]PaymentEvent, error)
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInsufficientBalance = errors.New("insufficient_balance")
)
