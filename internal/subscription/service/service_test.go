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
	paymentrepo "github.com/shiplet/shiplet/internal/payment/repository"
	paymentservice "github.com/shiplet/shiplet/internal/payment/service"
	"github.com/shiplet/shiplet/internal/payment/swap"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"github.com/shiplet/shiplet/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// fakePayments records treasury calls without touching a real ledger.
type fakePayments struct {
	accepted   []acceptedPayment
	acceptErr  error
	totalTaken int64
}

type acceptedPayment struct {
	Amount     int64
	PurposeRef string
}

func (f *fakePayments) AcceptPayment(_ context.Context, payment paymentdomain.Payment, purposeRef string) (paymentdomain.Receipt, error) {
	if f.acceptErr != nil {
		return paymentdomain.Receipt{}, f.acceptErr
	}
	f.accepted = append(f.accepted, acceptedPayment{Amount: payment.Amount, PurposeRef: purposeRef})
	f.totalTaken += payment.Amount
	return paymentdomain.Receipt{Amount: payment.Amount, TotalProcessed: f.totalTaken}, nil
}

func (f *fakePayments) AcceptPaymentTx(ctx context.Context, _ *gorm.DB, payment paymentdomain.Payment, purposeRef string) (paymentdomain.Receipt, error) {
	return f.AcceptPayment(ctx, payment, purposeRef)
}

func (f *fakePayments) TrySwap(context.Context) (*paymentdomain.SwapResult, error) { return nil, nil }
func (f *fakePayments) TransferOut(context.Context, int64, string) error           { return nil }
func (f *fakePayments) Treasury(context.Context) (paymentdomain.TreasurySnapshot, error) {
	return paymentdomain.TreasurySnapshot{}, nil
}
func (f *fakePayments) ListEvents(context.Context, int) ([]paymentdomain.PaymentEvent, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *clock.FakeClock, *fakePayments) {
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
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	payments := &fakePayments{}

	svc := &Service{
		db:         db,
		log:        zaptest.NewLogger(t),
		genID:      node,
		clock:      fake,
		pricing:    config.NewStaticPricingHolder(config.DefaultPricingConfig()),
		repo:       repository.Provide(),
		paymentsvc: payments,
	}
	return svc, fake, payments
}

func tokens(n int64) int64 { return n * config.BaseUnitsPerToken }

func TestSubscribeOpensThirtyDayWindow(t *testing.T) {
	svc, fake, payments := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address:   "0xABC",
		Tier:      subscriptiondomain.TierStarter,
		AutoRenew: true,
		Payment:   paymentdomain.Payment{Amount: tokens(10), TransactionRef: "0xsig"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "0xabc", sub.Address)
	assert.Equal(t, subscriptiondomain.TierStarter, sub.Tier)
	assert.Equal(t, fake.Now(), sub.StartAt)
	assert.Equal(t, fake.Now().Add(30*24*time.Hour), sub.EndAt)
	assert.True(t, sub.AutoRenew)
	assert.Equal(t, tokens(10), sub.TotalSpent)

	if assert.Len(t, payments.accepted, 1) {
		assert.Equal(t, tokens(10), payments.accepted[0].Amount)
		assert.Equal(t, "subscription:0xabc", payments.accepted[0].PurposeRef)
	}

	history, err := svc.ListPayments(ctx, "0xabc")
	assert.NoError(t, err)
	if assert.Len(t, history, 1) {
		assert.Equal(t, sub.ID, history[0].SubscriptionID)
		assert.Equal(t, tokens(10), history[0].Amount)
		assert.Equal(t, "0xsig", history[0].TransactionRef)
	}
}

func TestSubscribeInsufficientPaymentLeavesNoRecord(t *testing.T) {
	svc, _, payments := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10) - 1},
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInsufficientPayment)
	assert.Empty(t, payments.accepted)

	_, err = svc.GetByAddress(ctx, "0xabc")
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestSubscribeRejectsFreeAndUnknownTiers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, tier := range []subscriptiondomain.Tier{subscriptiondomain.TierFree, "platinum"} {
		_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
			Address: "0xabc",
			Tier:    tier,
			Payment: paymentdomain.Payment{Amount: tokens(1_000)},
		})
		assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTier)
	}
}

func TestSubscribeTwiceConflicts(t *testing.T) {
	svc, _, payments := newTestService(t)
	ctx := context.Background()

	req := subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	}
	_, err := svc.Subscribe(ctx, req)
	assert.NoError(t, err)

	_, err = svc.Subscribe(ctx, req)
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)
	// The duplicate never reached the treasury.
	assert.Len(t, payments.accepted, 1)
}

func TestRenewEarlyExtendsFromEndAt(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)

	_, err = svc.RecordDeployment(ctx, "0xabc", 50)
	assert.NoError(t, err)

	fake.Advance(10 * 24 * time.Hour)
	renewed, err := svc.Renew(ctx, subscriptiondomain.RenewRequest{
		Address: "0xabc",
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)
	// Remaining 20 days are kept.
	assert.Equal(t, sub.EndAt.Add(30*24*time.Hour), renewed.EndAt)
	assert.Equal(t, int64(0), renewed.DeploymentsUsed)
	assert.Equal(t, int64(0), renewed.BandwidthUsed)
	assert.Equal(t, tokens(20), renewed.TotalSpent)
}

func TestRenewAfterExpiryRestartsFromNow(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)

	fake.Advance(45 * 24 * time.Hour)
	renewed, err := svc.Renew(ctx, subscriptiondomain.RenewRequest{
		Address: "0xabc",
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)
	assert.Equal(t, fake.Now().Add(30*24*time.Hour), renewed.EndAt)
}

func TestRenewWithoutSubscription(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Renew(context.Background(), subscriptiondomain.RenewRequest{
		Address: "0xabc",
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestUpgradeChargesExactDifference(t *testing.T) {
	svc, _, payments := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)

	// Growth costs 50, starter cost 10: the difference is 40 tokens.
	_, err = svc.UpgradeTier(ctx, subscriptiondomain.UpgradeRequest{
		Address: "0xabc",
		NewTier: subscriptiondomain.TierGrowth,
		Payment: paymentdomain.Payment{Amount: tokens(40) - 1},
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInsufficientPayment)

	upgraded, err := svc.UpgradeTier(ctx, subscriptiondomain.UpgradeRequest{
		Address: "0xabc",
		NewTier: subscriptiondomain.TierGrowth,
		Payment: paymentdomain.Payment{Amount: tokens(40)},
	})
	assert.NoError(t, err)
	assert.Equal(t, subscriptiondomain.TierGrowth, upgraded.Tier)
	// Upgrading does not move the billing window.
	assert.Equal(t, sub.EndAt, upgraded.EndAt)
	assert.Equal(t, tokens(50), upgraded.TotalSpent)
	assert.Len(t, payments.accepted, 2)
	assert.Equal(t, "upgrade:0xabc", payments.accepted[1].PurposeRef)
}

func TestUpgradeRejectsDowngradeAndSameTier(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierGrowth,
		Payment: paymentdomain.Payment{Amount: tokens(50)},
	})
	assert.NoError(t, err)

	for _, tier := range []subscriptiondomain.Tier{subscriptiondomain.TierStarter, subscriptiondomain.TierGrowth, subscriptiondomain.TierFree} {
		_, err := svc.UpgradeTier(ctx, subscriptiondomain.UpgradeRequest{
			Address: "0xabc",
			NewTier: tier,
			Payment: paymentdomain.Payment{Amount: tokens(1_000)},
		})
		assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTier, "tier %s", tier)
	}
}

func TestCancelOnlyDisablesAutoRenew(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address:   "0xabc",
		Tier:      subscriptiondomain.TierStarter,
		AutoRenew: true,
		Payment:   paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, "0xabc")
	assert.NoError(t, err)
	assert.False(t, cancelled.AutoRenew)
	// The paid window keeps running.
	assert.Equal(t, sub.EndAt, cancelled.EndAt)

	ok, err := svc.CanDeploy(ctx, "0xabc")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestCanDeploy(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	t.Run("no subscription rides the free tier", func(t *testing.T) {
		ok, err := svc.CanDeploy(ctx, "0xnosub")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)

	t.Run("blocked once the deployment limit is used up", func(t *testing.T) {
		// Starter allows 10 deployments per period.
		for i := 0; i < 10; i++ {
			_, err := svc.RecordDeployment(ctx, "0xabc", 1)
			assert.NoError(t, err)
		}
		ok, err := svc.CanDeploy(ctx, "0xabc")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("renewal restores eligibility", func(t *testing.T) {
		_, err := svc.Renew(ctx, subscriptiondomain.RenewRequest{
			Address: "0xabc",
			Payment: paymentdomain.Payment{Amount: tokens(10)},
		})
		assert.NoError(t, err)
		ok, err := svc.CanDeploy(ctx, "0xabc")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("blocked after expiry", func(t *testing.T) {
		fake.Advance(61 * 24 * time.Hour)
		ok, err := svc.CanDeploy(ctx, "0xabc")
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRecordDeploymentWithoutSubscriptionIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)

	report, err := svc.RecordDeployment(context.Background(), "0xnosub", 100)
	assert.NoError(t, err)
	assert.Equal(t, subscriptiondomain.UsageReport{}, report)
}

func TestRecordDeploymentReportsExceededWithoutBlocking(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)

	// Starter's bandwidth limit is 1000 units.
	report, err := svc.RecordDeployment(ctx, "0xabc", 1_500)
	assert.NoError(t, err)
	assert.True(t, report.Exceeded)
	assert.Equal(t, int64(1), report.DeploymentsUsed)
	assert.Equal(t, int64(1_500), report.BandwidthUsed)
}

func TestSubscribePaymentCommitsWithSubscription(t *testing.T) {
	svc, _, _ := newTestService(t)
	payments := paymentservice.NewService(paymentservice.Params{
		DB:      svc.db,
		Log:     svc.log,
		GenID:   svc.genID,
		Clock:   svc.clock,
		Cfg:     config.Config{PayToken: "USDC", OutToken: "WAL"},
		Pricing: svc.pricing,
		Repo:    paymentrepo.Provide(),
		Engine:  swap.NewFixedRateEngine(3_000, 100),
	})
	svc.paymentsvc = payments
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.NoError(t, err)

	snapshot, err := payments.Treasury(ctx)
	assert.NoError(t, err)
	assert.Equal(t, tokens(10), snapshot.PayBalance)

	// A conflicting subscribe is rejected without another charge.
	_, err = svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Address: "0xabc",
		Tier:    subscriptiondomain.TierStarter,
		Payment: paymentdomain.Payment{Amount: tokens(10)},
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)

	// An underfunded renewal never reaches the treasury either.
	_, err = svc.Renew(ctx, subscriptiondomain.RenewRequest{
		Address: "0xabc",
		Payment: paymentdomain.Payment{Amount: tokens(10) - 1},
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInsufficientPayment)

	snapshot, err = payments.Treasury(ctx)
	assert.NoError(t, err)
	assert.Equal(t, tokens(10), snapshot.PayBalance)
}
