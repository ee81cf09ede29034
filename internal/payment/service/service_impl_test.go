package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shiplet/shiplet/internal/clock"
	"github.com/shiplet/shiplet/internal/config"
	"github.com/shiplet/shiplet/internal/migration"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	"github.com/shiplet/shiplet/internal/payment/repository"
	"github.com/shiplet/shiplet/internal/payment/swap"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	pricing := config.NewStaticPricingHolder(config.DefaultPricingConfig())

	svc := &Service{
		db:      db,
		log:     zaptest.NewLogger(t),
		genID:   node,
		clock:   fake,
		cfg:     config.Config{PayToken: "USDC", OutToken: "WAL"},
		pricing: pricing,
		repo:    repository.Provide(),
		engine:  swap.NewFixedRateEngine(3_000, 100),
	}
	return svc, fake
}

func tokens(n int64) int64 { return n * config.BaseUnitsPerToken }

func TestAcceptPaymentTxRollsBackWithCaller(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.AcceptPaymentTx(ctx, tx, paymentdomain.Payment{Amount: tokens(7)}, "deployment:42"); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	// The aborted caller took the credit and its event down with it.
	snapshot, err := svc.Treasury(ctx)
	assert.NoError(t, err)
	assert.Zero(t, snapshot.PayBalance)
	assert.Zero(t, snapshot.TotalProcessed)

	events, err := svc.ListEvents(ctx, 10)
	assert.NoError(t, err)
	assert.Empty(t, events)

	_, err = svc.AcceptPaymentTx(ctx, svc.db, paymentdomain.Payment{Amount: 0}, "deployment:42")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}

func TestAcceptPaymentAccumulates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.AcceptPayment(ctx, paymentdomain.Payment{Amount: tokens(10), TransactionRef: "0xaaa"}, "subscription:0xabc")
	assert.NoError(t, err)
	assert.Equal(t, tokens(10), first.Amount)
	assert.Equal(t, tokens(10), first.TotalProcessed)

	second, err := svc.AcceptPayment(ctx, paymentdomain.Payment{Amount: tokens(5), TransactionRef: "0xbbb"}, "deployment:42")
	assert.NoError(t, err)
	assert.Equal(t, tokens(15), second.TotalProcessed)

	snapshot, err := svc.Treasury(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "USDC", snapshot.PayToken)
	assert.Equal(t, tokens(15), snapshot.PayBalance)
	assert.Equal(t, tokens(15), snapshot.TotalProcessed)
	assert.Equal(t, int64(0), snapshot.OutBalance)

	events, err := svc.ListEvents(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, paymentdomain.EventKindAccept, events[0].Kind)
	assert.Equal(t, "deployment:42", events[0].PurposeRef)
	assert.Equal(t, "subscription:0xabc", events[1].PurposeRef)
}

func TestAcceptPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -1, -tokens(5)} {
		_, err := svc.AcceptPayment(ctx, paymentdomain.Payment{Amount: amount}, "subscription:0xabc")
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
	}

	snapshot, err := svc.Treasury(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), snapshot.TotalProcessed)
}

func TestTrySwapBelowThresholdIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Default threshold is 100 tokens.
	_, err := svc.AcceptPayment(ctx, paymentdomain.Payment{Amount: tokens(99)}, "deployment:1")
	assert.NoError(t, err)

	result, err := svc.TrySwap(ctx)
	assert.NoError(t, err)
	assert.Nil(t, result)

	snapshot, err := svc.Treasury(ctx)
	assert.NoError(t, err)
	assert.Equal(t, tokens(99), snapshot.PayBalance)
	assert.Equal(t, int64(0), snapshot.OutBalance)
}

func TestTrySwapConvertsWholeBuffer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AcceptPayment(ctx, paymentdomain.Payment{Amount: tokens(120)}, "deployment:1")
	assert.NoError(t, err)

	result, err := svc.TrySwap(ctx)
	assert.NoError(t, err)
	if assert.NotNil(t, result) {
		assert.Equal(t, tokens(120), result.InputAmount)
		// 0.3% of 120 tokens.
		assert.Equal(t, int64(360_000), result.FeeAmount)
		assert.Equal(t, (tokens(120)-360_000)*100, result.OutputAmount)
	}

	snapshot, err := svc.Treasury(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), snapshot.PayBalance)
	assert.Equal(t, result.OutputAmount, snapshot.OutBalance)
	// Lifetime inflow is untouched by the swap.
	assert.Equal(t, tokens(120), snapshot.TotalProcessed)

	events, err := svc.ListEvents(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, paymentdomain.EventKindSwap, events[0].Kind)
	assert.Equal(t, "WAL", events[0].OutToken)
	assert.Equal(t, result.OutputAmount, events[0].OutAmount)

	// The buffer is empty again; a second sweep does nothing.
	again, err := svc.TrySwap(ctx)
	assert.NoError(t, err)
	assert.Nil(t, again)
}

func TestTransferOut(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AcceptPayment(ctx, paymentdomain.Payment{Amount: tokens(200)}, "deployment:1")
	assert.NoError(t, err)
	swapped, err := svc.TrySwap(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, swapped)

	t.Run("rejects invalid amount", func(t *testing.T) {
		assert.ErrorIs(t, svc.TransferOut(ctx, 0, "0xops"), paymentdomain.ErrInvalidAmount)
		assert.ErrorIs(t, svc.TransferOut(ctx, -5, "0xops"), paymentdomain.ErrInvalidAmount)
	})

	t.Run("rejects overdraw", func(t *testing.T) {
		err := svc.TransferOut(ctx, swapped.OutputAmount+1, "0xops")
		assert.ErrorIs(t, err, paymentdomain.ErrInsufficientBalance)
	})

	t.Run("debits the output buffer", func(t *testing.T) {
		assert.NoError(t, svc.TransferOut(ctx, swapped.OutputAmount/2, "0xops"))

		snapshot, err := svc.Treasury(ctx)
		assert.NoError(t, err)
		assert.Equal(t, swapped.OutputAmount-swapped.OutputAmount/2, snapshot.OutBalance)

		events, err := svc.ListEvents(ctx, 1)
		assert.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, paymentdomain.EventKindTransferOut, events[0].Kind)
		assert.Equal(t, "0xops", events[0].Recipient)
	})
}

func TestListEventsClampsLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.AcceptPayment(ctx, paymentdomain.Payment{Amount: tokens(1)}, "deployment:x")
		assert.NoError(t, err)
	}

	events, err := svc.ListEvents(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = svc.ListEvents(ctx, -1)
	assert.NoError(t, err)
	assert.Len(t, events, 3)
}
