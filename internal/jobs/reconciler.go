package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/metrics"
)

// Reconcilable resends withdrawals whose payout outcome is unknown.
type Reconcilable interface {
	Reconcile(ctx context.Context) ledger.ReconcileResult
}

// Reconciler drives unsettled withdrawals to paid or reverted. It runs once on
// start so withdrawals left unsettled by a crash are resent right away.
type Reconciler struct {
	logger   *zap.Logger
	ledger   Reconcilable
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewReconciler(logger *zap.Logger, l Reconcilable, interval time.Duration) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		logger:   logger,
		ledger:   l,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler.started", zap.Duration("interval", r.interval))
	r.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("reconciler.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("reconciler.stopped (context canceled)")
			return
		}
	}
}

func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// RunOnce performs a single reconcile pass.
func (r *Reconciler) RunOnce(ctx context.Context) ledger.ReconcileResult {
	res := r.ledger.Reconcile(ctx)
	if res == (ledger.ReconcileResult{}) {
		return res
	}
	if res.Pending > 0 {
		metrics.IncError("reconciler", "payout_pending")
	}
	r.logger.Info("reconciler.pass",
		zap.Int("paid", res.Paid),
		zap.Int("reverted", res.Reverted),
		zap.Int("pending", res.Pending))
	return res
}
