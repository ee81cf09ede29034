// Package scheduler runs the background housekeeping loop: periodic
// treasury sweeps and renewal-due notifications for auto-renew
// subscriptions. Payments are never taken here; auto-renew still needs a
// wallet-signed transaction, so a due renewal only produces an audit
// record for the frontend to act on.
package scheduler

import (
	"context"
	"time"

	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	"github.com/shiplet/shiplet/internal/clock"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultInterval  = 5 * time.Minute
	renewalDueWindow = 3 * 24 * time.Hour
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	PaymentSvc paymentdomain.Service
	SubRepo    subscriptiondomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	payments paymentdomain.Service
	subRepo  subscriptiondomain.Repository
	audit    auditdomain.Service

	interval time.Duration
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		payments: p.PaymentSvc,
		subRepo:  p.SubRepo,
		audit:    p.AuditSvc,
		interval: defaultInterval,
	}
}

// Tick runs one housekeeping pass. Exposed so tests can drive the loop
// without waiting on the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	if _, err := s.payments.TrySwap(ctx); err != nil {
		s.log.Warn("scheduled treasury sweep failed", zap.Error(err))
	}

	cutoff := s.clock.Now().Add(renewalDueWindow)
	due, err := s.subRepo.ListRenewalDue(ctx, s.db, cutoff)
	if err != nil {
		s.log.Warn("renewal-due scan failed", zap.Error(err))
		return
	}

	flagged := 0
	for i := range due {
		sub := due[i]
		// A notice emitted inside the current due window already covers
		// this period; renewing moves EndAt and re-arms the flag.
		if sub.RenewalNoticeAt != nil && !sub.RenewalNoticeAt.Before(sub.EndAt.Add(-renewalDueWindow)) {
			continue
		}

		if s.audit != nil {
			subID := sub.ID.String()
			_ = s.audit.Record(ctx, auditdomain.ActorTypeSystem, nil, "subscription.renewal_due", "subscription", &subID, map[string]any{
				"address": sub.Address,
				"tier":    sub.Tier,
				"end_at":  sub.EndAt,
			})
		}

		now := s.clock.Now()
		sub.RenewalNoticeAt = &now
		sub.UpdatedAt = now
		if err := s.subRepo.Save(ctx, s.db, &sub); err != nil {
			s.log.Warn("renewal notice marker save failed",
				zap.String("address", sub.Address),
				zap.Error(err),
			)
			continue
		}
		flagged++
	}
	if flagged > 0 {
		s.log.Info("renewal-due subscriptions flagged", zap.Int("count", flagged))
	}
}

func (s *Scheduler) run(lc fx.Lifecycle) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(s.interval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						s.Tick(ctx)
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		s.run(lc)
	}),
)
