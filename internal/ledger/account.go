package ledger

import (
	"fmt"
	"strings"
)

// Account identifies a caller or balance holder, typically a wallet address.
// The zero value means "unset".
type Account string

// reservedPrefix marks identities owned by the ledger itself. External callers
// can never authenticate as one of these.
const reservedPrefix = "ledger:"

const (
	// RegistryIdentity is the capability held by the product registry. The
	// escrow ledger accepts credits only from it and the reward issuer's control
	// is handed to it during initialization.
	RegistryIdentity Account = reservedPrefix + "registry"
)

// ParseAccount normalizes a caller-supplied identity.
func ParseAccount(s string) (Account, error) {
	a := Account(strings.ToLower(strings.TrimSpace(s)))
	if a == "" {
		return "", fmt.Errorf("%w: empty account", ErrInvalidInput)
	}
	if a.Reserved() {
		return "", fmt.Errorf("%w: account %q is reserved", ErrUnauthorized, a)
	}
	return a, nil
}

func (a Account) String() string { return string(a) }

func (a Account) IsZero() bool { return a == "" }

// Reserved reports whether a belongs to the ledger's own namespace.
func (a Account) Reserved() bool { return strings.HasPrefix(string(a), reservedPrefix) }
