package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/ovationhq/ovation/internal/clock"
	"github.com/ovationhq/ovation/internal/gateway/adapters"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
	"github.com/ovationhq/ovation/internal/lock"
	obsmetrics "github.com/ovationhq/ovation/internal/observability/metrics"
	settlementdomain "github.com/ovationhq/ovation/internal/settlement/domain"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Adapters      *adapters.Registry
	Repo          transactiondomain.Repository
	SettlementSvc settlementdomain.Service
	Locker        *lock.Locker        `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
	Config        Config              `optional:"true"`
}

// Reconciler sweeps unresolved transactions and re-verifies them against the
// gateway. It converges on the same settlement path as webhooks, so a
// delivery that never arrived is repaired on the next sweep.
type Reconciler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	adapters      *adapters.Registry
	repo          transactiondomain.Repository
	settlementSvc settlementdomain.Service
	locker        *lock.Locker
	obsMetrics    *obsmetrics.Metrics
}

func New(p Params) *Reconciler {
	return &Reconciler{
		db:            p.DB,
		log:           p.Log.Named("reconciler"),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		adapters:      p.Adapters,
		repo:          p.Repo,
		settlementSvc: p.SettlementSvc,
		locker:        p.Locker,
		obsMetrics:    p.ObsMetrics,
	}
}

func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := r.PollOnce(ctx); err != nil {
			r.log.Warn("reconciliation sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs one sweep over every configured provider.
func (r *Reconciler) PollOnce(ctx context.Context) error {
	start := r.clock.Now()
	total := 0
	var firstErr error

	for _, provider := range r.adapters.Providers() {
		inspected, err := r.pollProvider(ctx, provider)
		total += inspected
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	r.obsMetrics.ObserveSweep(r.clock.Now().Sub(start), total)
	return firstErr
}

func (r *Reconciler) pollProvider(ctx context.Context, provider string) (int, error) {
	if r.locker != nil {
		release, acquired, err := r.locker.AcquireSweep(ctx, provider, r.cfg.LockTTL)
		if err != nil {
			r.log.Warn("sweep lock unavailable, proceeding without it",
				zap.String("provider", provider),
				zap.Error(err),
			)
		} else if !acquired {
			return 0, nil
		} else {
			defer func() {
				if err := release(ctx); err != nil {
					r.log.Warn("sweep lock release failed", zap.String("provider", provider), zap.Error(err))
				}
			}()
		}
	}

	adapter, err := r.adapters.Adapter(provider)
	if err != nil {
		return 0, err
	}

	oldest := r.clock.Now().Add(-r.cfg.Lookback)
	candidates, err := r.repo.FindReconcilable(ctx, r.db, provider, oldest, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	for i := range candidates {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		r.reconcileOne(ctx, adapter, &candidates[i])
	}
	return len(candidates), nil
}

// reconcileOne verifies a single transaction. Errors are logged, never
// propagated; one bad reference must not stall the rest of the batch.
func (r *Reconciler) reconcileOne(ctx context.Context, adapter gatewaydomain.Adapter, txn *transactiondomain.Transaction) {
	event, err := adapter.Verify(ctx, txn.Reference)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrUnresolved) {
			// Still pending at the gateway. The next sweep picks it up.
			return
		}
		r.log.Warn("verification failed",
			zap.String("provider", txn.Provider),
			zap.String("reference", txn.Reference),
			zap.Error(err),
		)
		return
	}
	if event == nil {
		return
	}
	event.Provider = txn.Provider
	event.Type = gatewaydomain.EventTypeCharge

	if _, err := r.settlementSvc.Settle(ctx, event); err != nil {
		if errors.Is(err, settlementdomain.ErrAmountMismatch) {
			return
		}
		r.log.Warn("settlement from sweep failed",
			zap.String("provider", txn.Provider),
			zap.String("reference", txn.Reference),
			zap.Error(err),
		)
	}
}
