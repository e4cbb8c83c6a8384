package ledger

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrNotAvailable       = errors.New("product not available")
	ErrAlreadyFinal       = errors.New("product already final")
	ErrSelfPurchase       = errors.New("seller cannot buy own product")
	ErrNotSeller          = errors.New("caller is not the seller")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrWrongPayment       = errors.New("payment does not match price")
	ErrNothingToWithdraw  = errors.New("nothing to withdraw")
	ErrAlreadyTransferred = errors.New("control already transferred")
	ErrRegistryFull       = errors.New("product registry is full")
	ErrPayoutFailed       = errors.New("payout failed")
	// ErrPayoutRejected is wrapped by Payout implementations when the rail
	// definitely did not move the funds.
	ErrPayoutRejected = errors.New("payout rejected")
	// ErrPayoutPending means the transfer outcome is unknown. The withdrawal
	// stays unsettled and is retried under its original reference.
	ErrPayoutPending = errors.New("payout pending")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "invalid_input"},
	{ErrNotFound, "not_found"},
	{ErrNotAvailable, "not_available"},
	{ErrAlreadyFinal, "already_final"},
	{ErrSelfPurchase, "self_purchase"},
	{ErrNotSeller, "not_seller"},
	{ErrUnauthorized, "unauthorized"},
	{ErrWrongPayment, "wrong_payment"},
	{ErrNothingToWithdraw, "nothing_to_withdraw"},
	{ErrAlreadyTransferred, "already_transferred"},
	{ErrRegistryFull, "registry_full"},
	{ErrPayoutFailed, "payout_failed"},
	{ErrPayoutRejected, "payout_rejected"},
	{ErrPayoutPending, "payout_pending"},
}

// Kind returns a stable label for err, used in metrics and API error bodies.
// Errors that are not ledger failures map to "internal"; nil maps to "ok".
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
