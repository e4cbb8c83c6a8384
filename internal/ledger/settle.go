package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/metrics"
)

// unsettled is a journaled withdrawal whose transfer has not been confirmed or
// rejected. driving is set while a goroutine owns its transfer attempt.
type unsettled struct {
	w       Withdrawal
	driving bool
}

// ReconcileResult counts the outcomes of one Reconcile pass.
type ReconcileResult struct {
	Paid     int
	Reverted int
	Pending  int
}

// Reconcile resubmits every unsettled withdrawal that no one is currently
// driving, reusing its original reference.
func (s *Service) Reconcile(ctx context.Context) ReconcileResult {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ReconcileResult{}
	}
	var todo []Withdrawal
	for _, u := range s.unsettled {
		if !u.driving {
			u.driving = true
			todo = append(todo, u.w)
		}
	}
	s.mu.Unlock()
	sort.Slice(todo, func(i, j int) bool { return todo[i].Seq < todo[j].Seq })

	var r ReconcileResult
	for _, w := range todo {
		_, err := s.drive(ctx, w)
		switch {
		case err == nil:
			r.Paid++
		case errors.Is(err, ErrPayoutPending):
			r.Pending++
		default:
			r.Reverted++
		}
	}
	return r
}

// Unsettled returns the withdrawals awaiting a payout outcome, oldest first.
func (s *Service) Unsettled() []Withdrawal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Withdrawal, 0, len(s.unsettled))
	for _, u := range s.unsettled {
		out = append(out, u.w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *Service) unsettledTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, u := range s.unsettled {
		sum = sum.Add(u.w.Amount)
	}
	return sum
}

// drive runs one transfer attempt for w. The caller must have marked w as
// driving.
func (s *Service) drive(ctx context.Context, w Withdrawal) (Withdrawal, error) {
	start := time.Now()
	err := s.payout.Transfer(ctx, Transfer{To: w.Account, Amount: w.Amount, Reference: w.Reference})
	switch {
	case err == nil:
		metrics.ObserveDuration(metrics.PayoutDuration, start, "ok")
		s.settle(ctx, w)
		return w, nil
	case errors.Is(err, ErrPayoutRejected):
		metrics.ObserveDuration(metrics.PayoutDuration, start, "rejected")
		s.revert(ctx, w, err)
		return Withdrawal{}, fmt.Errorf("%w: %s to %s: %w", ErrPayoutFailed, w.Amount, w.Account, err)
	default:
		metrics.ObserveDuration(metrics.PayoutDuration, start, "unknown")
		s.release(w.Reference)
		s.log.Warn("ledger.withdraw.outcome_unknown",
			zap.String("account", w.Account.String()),
			zap.String("amount", w.Amount.String()),
			zap.String("reference", w.Reference),
			zap.Error(err),
		)
		return w, fmt.Errorf("%w: %s to %s under %s: %w", ErrPayoutPending, w.Amount, w.Account, w.Reference, err)
	}
}

// settle journals a confirmed transfer. If the journal is down the withdrawal
// stays unsettled and the next reconcile pass resends it; the rail
// deduplicates on the reference.
func (s *Service) settle(ctx context.Context, w Withdrawal) {
	s.mu.Lock()
	ev, err := s.commit(context.WithoutCancel(ctx), Entry{
		Kind:      EntryWithdrawPaid,
		Account:   w.Account,
		Amount:    w.Amount,
		Reference: w.Reference,
	})
	if err != nil {
		if u, ok := s.unsettled[w.Reference]; ok {
			u.driving = false
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("ledger.withdraw.paid_unjournaled",
			zap.String("account", w.Account.String()),
			zap.String("reference", w.Reference),
			zap.Error(err),
		)
		metrics.IncError("ledger", "paid_unjournaled")
		return
	}
	s.log.Info("ledger.withdraw.paid",
		zap.String("account", w.Account.String()),
		zap.String("amount", w.Amount.String()),
		zap.String("reference", w.Reference),
	)
	s.publish(ev)
}

// revert restores a withdrawal the rail rejected. The balance is restored in
// memory even if the journal append fails.
func (s *Service) revert(ctx context.Context, w Withdrawal, cause error) {
	e := Entry{
		Kind:      EntryWithdrawReverted,
		Account:   w.Account,
		Amount:    w.Amount,
		Reference: w.Reference,
		Note:      cause.Error(),
	}

	s.mu.Lock()
	ev, err := s.commit(context.WithoutCancel(ctx), e)
	if err != nil {
		s.log.Error("ledger.withdraw.revert_unjournaled",
			zap.String("account", w.Account.String()),
			zap.String("amount", w.Amount.String()),
			zap.String("reference", w.Reference),
			zap.Error(err),
		)
		metrics.IncError("ledger", "revert_unjournaled")
		e.RecordedAt = s.now().UTC()
		ev = s.apply(e)
	}
	s.mu.Unlock()

	s.log.Warn("ledger.withdraw.reverted",
		zap.String("account", w.Account.String()),
		zap.String("amount", w.Amount.String()),
		zap.String("reference", w.Reference),
		zap.Error(cause),
	)
	s.publish(ev)
}

func (s *Service) release(ref string) {
	s.mu.Lock()
	if u, ok := s.unsettled[ref]; ok {
		u.driving = false
	}
	s.mu.Unlock()
}

func (s *Service) checkSettle(e Entry) error {
	u, ok := s.unsettled[e.Reference]
	if !ok {
		return fmt.Errorf("%w: no unsettled withdrawal %q", ErrInvalidInput, e.Reference)
	}
	if u.w.Account != e.Account || !u.w.Amount.Equal(e.Amount) {
		return fmt.Errorf("%w: withdrawal %q is %s to %s", ErrInvalidInput, e.Reference, u.w.Amount, u.w.Account)
	}
	return nil
}
