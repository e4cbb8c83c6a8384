package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AuditReport is a consistent snapshot of the ledger totals and any invariant
// that does not hold.
type AuditReport struct {
	Seq          uint64
	Products     int
	HeldFunds    decimal.Decimal
	Outstanding  decimal.Decimal
	RewardSupply decimal.Decimal
	// Unsettled is withdrawn value whose payout outcome is still unknown.
	Unsettled    decimal.Decimal
	Violations   []string
}

func (r AuditReport) OK() bool { return len(r.Violations) == 0 }

// Audit walks the whole state under the read lock and verifies the product
// flag invariants, the index views and the solvency of the escrow.
func (s *Service) Audit() AuditReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := AuditReport{
		Seq:          s.seq,
		Products:     len(s.registry.products),
		HeldFunds:    s.held,
		Outstanding:  s.escrow.Outstanding(),
		RewardSupply: s.rewards.TotalSupply(),
		Unsettled:    s.unsettledTotal(),
	}
	fail := func(format string, args ...any) {
		r.Violations = append(r.Violations, fmt.Sprintf(format, args...))
	}

	listed := 0
	for seller, ids := range s.registry.listings {
		for _, id := range ids {
			if id >= uint64(len(s.registry.products)) || s.registry.products[id].Seller != seller {
				fail("listing index of %s holds product %d it does not own", seller, id)
			}
		}
		listed += len(ids)
	}
	if listed != len(s.registry.products) {
		fail("listing index holds %d ids for %d products", listed, len(s.registry.products))
	}

	bought := 0
	for buyer, ids := range s.registry.purchases {
		for _, id := range ids {
			if id >= uint64(len(s.registry.products)) || s.registry.products[id].Buyer != buyer {
				fail("purchase index of %s holds product %d it did not buy", buyer, id)
			}
		}
		bought += len(ids)
	}

	sold := 0
	for _, p := range s.registry.products {
		if p.Sold && p.Active {
			fail("product %d is sold and active", p.ID)
		}
		if p.Sold != !p.Buyer.IsZero() {
			fail("product %d sold=%t with buyer %q", p.ID, p.Sold, p.Buyer)
		}
		if p.Sold {
			sold++
		}
	}
	if bought != sold {
		fail("purchase index holds %d ids for %d sold products", bought, sold)
	}

	sum := decimal.Zero
	for account, b := range s.escrow.balances {
		if !b.IsPositive() {
			fail("escrow balance of %s is %s", account, b)
		}
		sum = sum.Add(b)
	}
	if !sum.Equal(r.Outstanding) {
		fail("escrow balances sum to %s, outstanding is %s", sum, r.Outstanding)
	}
	if r.HeldFunds.LessThan(sum) {
		fail("held funds %s below escrow balances %s", r.HeldFunds, sum)
	}

	minted := decimal.Zero
	for _, b := range s.rewards.balances {
		minted = minted.Add(b)
	}
	if !minted.Equal(r.RewardSupply) {
		fail("reward balances sum to %s, supply is %s", minted, r.RewardSupply)
	}
	if c := s.rewards.Controller(); c != s.registry.Identity() {
		fail("reward controller is %s, expected %s", c, s.registry.Identity())
	}
	return r
}
