package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Transfer moves a withdrawn escrow balance out of the ledger. Reference is
// unique per withdrawal and lets the receiving side deduplicate retries.
type Transfer struct {
	To        Account
	Amount    decimal.Decimal
	Reference string
}

// Payout performs the value transfer for a withdrawal. It is called without
// the ledger lock held and may call back into the Service.
//
// An error wrapping ErrPayoutRejected hands the balance back to escrow. Any
// other error leaves the withdrawal unsettled; it is sent again later with the
// same Reference, so implementations must treat Reference as an idempotency key.
type Payout interface {
	Transfer(ctx context.Context, t Transfer) error
}

// PayoutFunc adapts a function to Payout.
type PayoutFunc func(ctx context.Context, t Transfer) error

func (f PayoutFunc) Transfer(ctx context.Context, t Transfer) error { return f(ctx, t) }

// settleInternally is used when no payout rail is configured: the balance
// leaves the escrow and is treated as paid.
var settleInternally = PayoutFunc(func(context.Context, Transfer) error { return nil })
