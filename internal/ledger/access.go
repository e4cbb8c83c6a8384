package ledger

import "fmt"

// AccessControl holds a single controller identity. Control can be handed off
// exactly once; after that the previous holder has no capability left.
//
// AccessControl is not safe for concurrent use; Service serializes access.
type AccessControl struct {
	controller  Account
	transferred bool
}

func NewAccessControl(initial Account) *AccessControl {
	return &AccessControl{controller: initial}
}

func (a *AccessControl) Controller() Account { return a.controller }

// Transferred reports whether the one-time handoff has happened.
func (a *AccessControl) Transferred() bool { return a.transferred }

// RequireController fails with ErrUnauthorized unless caller holds control.
func (a *AccessControl) RequireController(caller Account) error {
	if caller.IsZero() || caller != a.controller {
		return fmt.Errorf("%w: %q is not the controller", ErrUnauthorized, caller)
	}
	return nil
}

// TransferControl moves control from caller to next. Only the current
// controller may call it, and only once.
func (a *AccessControl) TransferControl(caller, next Account) error {
	if err := a.RequireController(caller); err != nil {
		return err
	}
	if a.transferred {
		return ErrAlreadyTransferred
	}
	if next.IsZero() {
		return fmt.Errorf("%w: new controller is empty", ErrInvalidInput)
	}
	a.controller = next
	a.transferred = true
	return nil
}
