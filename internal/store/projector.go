package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/metrics"
	"github.com/Checker-Finance/marketplace/pkg/model"
)

// BalanceSource reads current balances from the live ledger.
type BalanceSource interface {
	PendingBalance(account ledger.Account) decimal.Decimal
	RewardBalanceOf(account ledger.Account) decimal.Decimal
	Seq() uint64
}

// Projector keeps ledger.product_snapshot and ledger.balance_snapshot in step
// with committed events. Events can arrive out of order, so every upsert is
// guarded by seq and an older write never replaces a newer one.
type Projector struct {
	db      DB
	source  BalanceSource
	logger  *zap.Logger
	timeout time.Duration
}

func NewProjector(db DB, source BalanceSource, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{db: db, source: source, logger: logger, timeout: 5 * time.Second}
}

// Handle projects ev; it is subscribed to the event bus.
func (p *Projector) Handle(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Project(ctx, ev); err != nil {
		p.logger.Error("store.pg.projection_failed",
			zap.String("event_type", ev.EventType()),
			zap.Uint64("seq", ev.Sequence()),
			zap.Error(err),
		)
		metrics.IncError("projector", ev.EventType())
	}
}

func (p *Projector) Project(ctx context.Context, ev model.Event) error {
	switch e := ev.(type) {
	case model.ProductListed:
		_, err := p.db.Exec(ctx, `
			INSERT INTO ledger.product_snapshot (product_id, seller, title, category, price, status, seq, as_of)
			VALUES ($1, $2, $3, $4, $5::numeric, 'Active', $6, $7)
			ON CONFLICT (product_id) DO UPDATE SET
				title = EXCLUDED.title,
				category = EXCLUDED.category
		`, int64(e.ProductID), e.Seller, e.Title, e.Category, e.Price.String(), int64(e.Seq), e.At)
		return err
	case model.ProductSold:
		if err := p.upsertStatus(ctx, e.ProductID, e.Seller, e.Buyer, e.Price, string(ledger.StatusSold), e.Seq, e.At); err != nil {
			return err
		}
		if err := p.upsertBalance(ctx, e.Seller); err != nil {
			return err
		}
		return p.upsertBalance(ctx, e.Buyer)
	case model.ProductUnlisted:
		return p.upsertStatus(ctx, e.ProductID, e.Seller, "", decimal.Zero, string(ledger.StatusUnlisted), e.Seq, e.At)
	case model.FundsWithdrawn, model.WithdrawalReverted:
		return p.upsertBalance(ctx, ev.Account())
	default:
		return nil
	}
}

func (p *Projector) upsertStatus(ctx context.Context, id uint64, seller, buyer string, price decimal.Decimal, status string, seq uint64, at time.Time) error {
	var buyerArg any
	if buyer != "" {
		buyerArg = buyer
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO ledger.product_snapshot (product_id, seller, buyer, price, status, seq, as_of)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (product_id) DO UPDATE SET
			buyer = EXCLUDED.buyer,
			status = EXCLUDED.status,
			seq = EXCLUDED.seq,
			as_of = EXCLUDED.as_of
		WHERE ledger.product_snapshot.seq < EXCLUDED.seq
	`, int64(id), seller, buyerArg, price.String(), status, int64(seq), at)
	return err
}

func (p *Projector) upsertBalance(ctx context.Context, account string) error {
	a := ledger.Account(account)
	seq := p.source.Seq()
	pending := p.source.PendingBalance(a)
	rewards := p.source.RewardBalanceOf(a)

	_, err := p.db.Exec(ctx, `
		INSERT INTO ledger.balance_snapshot (account, pending, rewards, seq, as_of)
		VALUES ($1, $2::numeric, $3::numeric, $4, NOW())
		ON CONFLICT (account) DO UPDATE SET
			pending = EXCLUDED.pending,
			rewards = EXCLUDED.rewards,
			seq = EXCLUDED.seq,
			as_of = EXCLUDED.as_of
		WHERE ledger.balance_snapshot.seq <= EXCLUDED.seq
	`, account, pending.String(), rewards.String(), int64(seq))
	return err
}
