package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind names a journaled mutation.
type EntryKind string

const (
	EntryProductCreated   EntryKind = "product_created"
	EntryProductSold      EntryKind = "product_sold"
	EntryProductUnlisted  EntryKind = "product_unlisted"
	EntryFundsWithdrawn   EntryKind = "funds_withdrawn"
	EntryWithdrawPaid     EntryKind = "withdraw_paid"
	EntryWithdrawReverted EntryKind = "withdraw_reverted"
)

// Entry is one committed mutation. Replaying every entry in Seq order through
// the same checks rebuilds the ledger exactly; Reward records what was minted
// so a later policy change does not rewrite history.
type Entry struct {
	Seq         uint64          `json:"seq"`
	Kind        EntryKind       `json:"kind"`
	ProductID   uint64          `json:"product_id"`
	Account     Account         `json:"account"`
	Amount      decimal.Decimal `json:"amount"`
	Reward      decimal.Decimal `json:"reward"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	ImageURI    string          `json:"image_uri,omitempty"`
	Category    Category        `json:"category"`
	Reference   string          `json:"reference,omitempty"`
	Note        string          `json:"note,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// Journal is the durable append-only log behind a Service. Append must not
// return until the entry is durable.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// MemoryJournal keeps entries in process memory. It is the default when no
// durable journal is configured, and what tests use.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

func (j *MemoryJournal) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if n := uint64(len(j.entries)); e.Seq != n+1 {
		return fmt.Errorf("journal: seq %d out of order, expected %d", e.Seq, n+1)
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *MemoryJournal) Load(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...), nil
}

func (j *MemoryJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
