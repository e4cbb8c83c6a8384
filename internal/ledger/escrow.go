package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Escrow tracks what the ledger owes each account. Credits come only from the
// registry; balances leave only through the owner's withdrawal.
type Escrow struct {
	registry    Account
	balances    map[Account]decimal.Decimal
	outstanding decimal.Decimal
}

func NewEscrow(registry Account) *Escrow {
	return &Escrow{
		registry:    registry,
		balances:    make(map[Account]decimal.Decimal),
		outstanding: decimal.Zero,
	}
}

// Credit adds amount to account's pending balance.
func (e *Escrow) Credit(caller, account Account, amount decimal.Decimal) error {
	if err := e.checkCredit(caller, account, amount); err != nil {
		return err
	}
	e.credit(account, amount)
	return nil
}

func (e *Escrow) checkCredit(caller, account Account, amount decimal.Decimal) error {
	if caller.IsZero() || caller != e.registry {
		return fmt.Errorf("%w: %q may not credit escrow", ErrUnauthorized, caller)
	}
	if account.IsZero() {
		return fmt.Errorf("%w: credit to empty account", ErrInvalidInput)
	}
	return validPositive(amount)
}

func (e *Escrow) credit(account Account, amount decimal.Decimal) {
	e.balances[account] = e.Pending(account).Add(amount)
	e.outstanding = e.outstanding.Add(amount)
}

// take zeroes account's balance and returns what it held.
func (e *Escrow) take(account Account) decimal.Decimal {
	amount := e.Pending(account)
	if amount.IsZero() {
		return amount
	}
	delete(e.balances, account)
	e.outstanding = e.outstanding.Sub(amount)
	return amount
}

func (e *Escrow) Pending(account Account) decimal.Decimal {
	if b, ok := e.balances[account]; ok {
		return b
	}
	return decimal.Zero
}

// Outstanding is the sum of all pending balances.
func (e *Escrow) Outstanding() decimal.Decimal { return e.outstanding }
