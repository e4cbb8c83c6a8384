package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RewardIssuer keeps loyalty balances. Only its controller may mint.
type RewardIssuer struct {
	control  *AccessControl
	balances map[Account]decimal.Decimal
	supply   decimal.Decimal
}

// NewRewardIssuer creates an issuer controlled by creator until control is
// transferred.
func NewRewardIssuer(creator Account) *RewardIssuer {
	return &RewardIssuer{
		control:  NewAccessControl(creator),
		balances: make(map[Account]decimal.Decimal),
		supply:   decimal.Zero,
	}
}

func (i *RewardIssuer) Controller() Account { return i.control.Controller() }

func (i *RewardIssuer) TransferControl(caller, next Account) error {
	return i.control.TransferControl(caller, next)
}

// Mint credits amount reward units to account.
func (i *RewardIssuer) Mint(caller, account Account, amount decimal.Decimal) error {
	if err := i.checkMint(caller, account, amount); err != nil {
		return err
	}
	i.mint(account, amount)
	return nil
}

func (i *RewardIssuer) checkMint(caller, account Account, amount decimal.Decimal) error {
	if err := i.control.RequireController(caller); err != nil {
		return err
	}
	if account.IsZero() {
		return fmt.Errorf("%w: mint to empty account", ErrInvalidInput)
	}
	return validAmount(amount)
}

func (i *RewardIssuer) mint(account Account, amount decimal.Decimal) {
	i.balances[account] = i.BalanceOf(account).Add(amount)
	i.supply = i.supply.Add(amount)
}

func (i *RewardIssuer) BalanceOf(account Account) decimal.Decimal {
	if b, ok := i.balances[account]; ok {
		return b
	}
	return decimal.Zero
}

// TotalSupply is the sum of every minted unit.
func (i *RewardIssuer) TotalSupply() decimal.Decimal { return i.supply }
