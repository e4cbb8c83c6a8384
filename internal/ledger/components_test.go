package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Accounts and amounts ---

func TestParseAccount_Normalizes(t *testing.T) {
	a, err := ParseAccount("  0xABCdef ")
	require.NoError(t, err)
	assert.Equal(t, Account("0xabcdef"), a)
}

func TestParseAccount_Rejects(t *testing.T) {
	_, err := ParseAccount("   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseAccount("Ledger:Registry")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("10000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", d.String())

	d, err = ParseAmount("0")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	for _, in := range []string{"-1", "1.5", "abc", ""} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidInput, in)
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("laptops")
	require.NoError(t, err)
	assert.Equal(t, CategoryLaptops, c)
	assert.Equal(t, "Laptops", c.String())

	_, err = ParseCategory("cars")
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err = ParseCategory(" 0 ")
	require.NoError(t, err)
	assert.Equal(t, CategorySmartphones, c)
	c, err = ParseCategory("4")
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, c)
	for _, in := range []string{"5", "-1", "255", "256", "1.0", ""} {
		_, err = ParseCategory(in)
		assert.ErrorIs(t, err, ErrInvalidInput, in)
	}

	assert.Len(t, Categories(), 5)
	assert.False(t, Category(5).Valid())
	assert.Equal(t, "Category(7)", Category(7).String())
}

func TestProductStatus(t *testing.T) {
	assert.Equal(t, StatusActive, Product{Active: true}.Status())
	assert.Equal(t, StatusSold, Product{Sold: true, Buyer: "b"}.Status())
	assert.Equal(t, StatusUnlisted, Product{}.Status())
	assert.True(t, Product{Active: true}.Available())
	assert.False(t, Product{Active: true, Sold: true}.Available())
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "not_found", Kind(fmt.Errorf("get: %w", ErrNotFound)))
	assert.Equal(t, "nothing_to_withdraw", Kind(ErrNothingToWithdraw))
	assert.Equal(t, "internal", Kind(errors.New("disk full")))
}

// --- AccessControl ---

func TestAccessControl_TransferOnce(t *testing.T) {
	ac := NewAccessControl("op")
	require.NoError(t, ac.RequireController("op"))

	require.NoError(t, ac.TransferControl("op", "reg"))
	assert.Equal(t, Account("reg"), ac.Controller())
	assert.True(t, ac.Transferred())

	// the previous holder has no capability left
	assert.ErrorIs(t, ac.RequireController("op"), ErrUnauthorized)
	assert.ErrorIs(t, ac.TransferControl("op", "op"), ErrUnauthorized)

	// the new holder cannot hand it off again
	assert.ErrorIs(t, ac.TransferControl("reg", "other"), ErrAlreadyTransferred)
	assert.Equal(t, Account("reg"), ac.Controller())
}

func TestAccessControl_Rejects(t *testing.T) {
	ac := NewAccessControl("op")
	assert.ErrorIs(t, ac.RequireController(""), ErrUnauthorized)
	assert.ErrorIs(t, ac.TransferControl("mallory", "mallory"), ErrUnauthorized)
	assert.ErrorIs(t, ac.TransferControl("op", ""), ErrInvalidInput)
	assert.False(t, ac.Transferred())
}

// --- RewardIssuer ---

func TestRewardIssuer_MintOnlyByController(t *testing.T) {
	ri := NewRewardIssuer("op")
	require.NoError(t, ri.Mint("op", "alice", decimal.NewFromInt(2)))
	require.NoError(t, ri.TransferControl("op", RegistryIdentity))

	assert.ErrorIs(t, ri.Mint("op", "alice", decimal.NewFromInt(1)), ErrUnauthorized)
	assert.ErrorIs(t, ri.Mint("alice", "alice", decimal.NewFromInt(1)), ErrUnauthorized)
	require.NoError(t, ri.Mint(RegistryIdentity, "alice", decimal.NewFromInt(3)))

	assert.Equal(t, "5", ri.BalanceOf("alice").String())
	assert.Equal(t, "5", ri.TotalSupply().String())
	assert.True(t, ri.BalanceOf("bob").IsZero())
}

func TestRewardIssuer_MintValidates(t *testing.T) {
	ri := NewRewardIssuer("op")
	assert.ErrorIs(t, ri.Mint("op", "", decimal.NewFromInt(1)), ErrInvalidInput)
	assert.ErrorIs(t, ri.Mint("op", "alice", decimal.NewFromInt(-1)), ErrInvalidInput)
	assert.ErrorIs(t, ri.Mint("op", "alice", decimal.RequireFromString("0.5")), ErrInvalidInput)
	assert.True(t, ri.TotalSupply().IsZero())
}

// --- Escrow ---

func TestEscrow_CreditOnlyByRegistry(t *testing.T) {
	e := NewEscrow(RegistryIdentity)
	assert.ErrorIs(t, e.Credit("alice", "alice", decimal.NewFromInt(5)), ErrUnauthorized)
	assert.ErrorIs(t, e.Credit("", "alice", decimal.NewFromInt(5)), ErrUnauthorized)
	assert.ErrorIs(t, e.Credit(RegistryIdentity, "alice", decimal.Zero), ErrInvalidInput)
	assert.True(t, e.Outstanding().IsZero())

	require.NoError(t, e.Credit(RegistryIdentity, "alice", decimal.NewFromInt(5)))
	require.NoError(t, e.Credit(RegistryIdentity, "alice", decimal.NewFromInt(7)))
	assert.Equal(t, "12", e.Pending("alice").String())
	assert.Equal(t, "12", e.Outstanding().String())
}

func TestEscrow_TakeZeroes(t *testing.T) {
	e := NewEscrow(RegistryIdentity)
	require.NoError(t, e.Credit(RegistryIdentity, "alice", decimal.NewFromInt(9)))

	assert.Equal(t, "9", e.take("alice").String())
	assert.True(t, e.Pending("alice").IsZero())
	assert.True(t, e.Outstanding().IsZero())
	assert.True(t, e.take("alice").IsZero())
}

// --- Registry ---

func TestRegistry_BuyChecksRunBeforeEffects(t *testing.T) {
	ri := NewRewardIssuer("op")
	e := NewEscrow(RegistryIdentity)
	r := NewRegistry(RegistryIdentity, e, ri, 0)

	require.NoError(t, r.checkCreate("alice", ebook()))
	r.applyCreate("alice", ebook())

	// control was never transferred, so the mint check fails and nothing moves
	_, err := r.checkBuy("bob", 0, testPrice, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrUnauthorized)

	p, err := r.Get(0)
	require.NoError(t, err)
	assert.True(t, p.Available())
	assert.True(t, e.Pending("alice").IsZero())
	assert.Empty(t, r.Purchases("bob"))
}

func TestRegistry_IndexViewsAreCopies(t *testing.T) {
	r := NewRegistry(RegistryIdentity, NewEscrow(RegistryIdentity), NewRewardIssuer(RegistryIdentity), 0)
	r.applyCreate("alice", ebook())
	r.applyCreate("alice", ebook())

	ids := r.Listings("alice")
	require.Equal(t, []uint64{0, 1}, ids)
	ids[0] = 42
	assert.Equal(t, []uint64{0, 1}, r.Listings("alice"))

	all := r.All()
	all[0].Title = "changed"
	p, _ := r.Get(0)
	assert.Equal(t, "E-Book", p.Title)
}
