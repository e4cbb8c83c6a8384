package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types emitted by the ledger after a mutation commits.
const (
	EventProductListed      = "product.listed"
	EventProductSold        = "product.sold"
	EventProductUnlisted    = "product.unlisted"
	EventFundsWithdrawn     = "funds.withdrawn"
	EventWithdrawalPaid     = "funds.withdrawal_paid"
	EventWithdrawalReverted = "funds.withdrawal_reverted"
	EventLedgerAudited      = "ledger.audited"
	EventControlTransferred = "rewards.control_transferred"
)

// Event is a committed ledger fact. Seq is the journal sequence number of the
// mutation that produced it, or zero for events that are not journaled.
type Event interface {
	EventType() string
	Sequence() uint64
	Account() string
}

type ProductListed struct {
	Seq       uint64          `json:"seq"`
	ProductID uint64          `json:"product_id"`
	Seller    string          `json:"seller"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	At        time.Time       `json:"at"`
}

func (e ProductListed) EventType() string { return EventProductListed }
func (e ProductListed) Sequence() uint64  { return e.Seq }
func (e ProductListed) Account() string   { return e.Seller }

type ProductSold struct {
	Seq       uint64          `json:"seq"`
	ProductID uint64          `json:"product_id"`
	Seller    string          `json:"seller"`
	Buyer     string          `json:"buyer"`
	Price     decimal.Decimal `json:"price"`
	Reward    decimal.Decimal `json:"reward"`
	At        time.Time       `json:"at"`
}

func (e ProductSold) EventType() string { return EventProductSold }
func (e ProductSold) Sequence() uint64  { return e.Seq }
func (e ProductSold) Account() string   { return e.Buyer }

type ProductUnlisted struct {
	Seq       uint64    `json:"seq"`
	ProductID uint64    `json:"product_id"`
	Seller    string    `json:"seller"`
	At        time.Time `json:"at"`
}

func (e ProductUnlisted) EventType() string { return EventProductUnlisted }
func (e ProductUnlisted) Sequence() uint64  { return e.Seq }
func (e ProductUnlisted) Account() string   { return e.Seller }

// FundsWithdrawn is emitted once the escrow entry has been zeroed, before the
// value transfer runs.
type FundsWithdrawn struct {
	Seq       uint64          `json:"seq"`
	Owner     string          `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	At        time.Time       `json:"at"`
}

func (e FundsWithdrawn) EventType() string { return EventFundsWithdrawn }
func (e FundsWithdrawn) Sequence() uint64  { return e.Seq }
func (e FundsWithdrawn) Account() string   { return e.Owner }

// WithdrawalPaid is emitted when the payout rail confirms a withdrawal.
type WithdrawalPaid struct {
	Seq       uint64          `json:"seq"`
	Owner     string          `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	At        time.Time       `json:"at"`
}

func (e WithdrawalPaid) EventType() string { return EventWithdrawalPaid }
func (e WithdrawalPaid) Sequence() uint64  { return e.Seq }
func (e WithdrawalPaid) Account() string   { return e.Owner }

type WithdrawalReverted struct {
	Seq       uint64          `json:"seq"`
	Owner     string          `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Reason    string          `json:"reason"`
	At        time.Time       `json:"at"`
}

func (e WithdrawalReverted) EventType() string { return EventWithdrawalReverted }
func (e WithdrawalReverted) Sequence() uint64  { return e.Seq }
func (e WithdrawalReverted) Account() string   { return e.Owner }

// LedgerAudited carries the result of a periodic solvency check.
type LedgerAudited struct {
	Products     int             `json:"products"`
	HeldFunds    decimal.Decimal `json:"held_funds"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	RewardSupply decimal.Decimal `json:"reward_supply"`
	Violations   []string        `json:"violations,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	At           time.Time       `json:"at"`
}

func (e LedgerAudited) EventType() string { return EventLedgerAudited }
func (e LedgerAudited) Sequence() uint64  { return 0 }
func (e LedgerAudited) Account() string   { return "" }

// ControlTransferred is emitted once at startup when the reward issuer's
// control passes from the operator to the registry.
type ControlTransferred struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

func (e ControlTransferred) EventType() string { return EventControlTransferred }
func (e ControlTransferred) Sequence() uint64  { return 0 }
func (e ControlTransferred) Account() string   { return "" }
