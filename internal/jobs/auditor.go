package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/metrics"
	"github.com/Checker-Finance/marketplace/pkg/model"
)

// Auditable is the read side of the ledger the auditor checks.
type Auditable interface {
	Audit() ledger.AuditReport
}

// Auditor periodically verifies the ledger invariants, exports the solvency
// gauges and emits a ledger.audited event.
type Auditor struct {
	logger   *zap.Logger
	ledger   Auditable
	events   ledger.EventSink
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAuditor constructs a background job that runs every interval.
func NewAuditor(logger *zap.Logger, l Auditable, events ledger.EventSink, interval time.Duration) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		logger:   logger,
		ledger:   l,
		events:   events,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the audit loop until Stop is called or ctx is done. The first
// audit runs immediately.
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("auditor.started", zap.Duration("interval", a.interval))
	a.RunOnce()

	for {
		select {
		case <-ticker.C:
			a.RunOnce()
		case <-a.stopCh:
			a.logger.Info("auditor.stopped (manual stop)")
			return
		case <-ctx.Done():
			a.logger.Info("auditor.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the auditor.
func (a *Auditor) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// RunOnce executes one audit cycle and returns its report.
func (a *Auditor) RunOnce() ledger.AuditReport {
	start := time.Now()
	report := a.ledger.Audit()
	now := time.Now().UTC()

	metrics.SetSolvency(report.HeldFunds, report.Outstanding, report.RewardSupply, now)

	if !report.OK() {
		metrics.AuditViolations.Add(float64(len(report.Violations)))
		a.logger.Error("auditor.violations",
			zap.Uint64("seq", report.Seq),
			zap.Strings("violations", report.Violations),
		)
	}

	if a.events != nil {
		a.events.Publish(model.LedgerAudited{
			Products:     report.Products,
			HeldFunds:    report.HeldFunds,
			Outstanding:  report.Outstanding,
			RewardSupply: report.RewardSupply,
			Violations:   report.Violations,
			DurationMS:   time.Since(start).Milliseconds(),
			At:           now,
		})
	}

	a.logger.Info("auditor.success",
		zap.Uint64("seq", report.Seq),
		zap.Int("products", report.Products),
		zap.String("held_funds", report.HeldFunds.String()),
		zap.String("outstanding", report.Outstanding.String()),
		zap.Duration("duration", time.Since(start)))
	return report
}
