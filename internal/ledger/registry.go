package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Registry owns the product arena and the per-account index views. A product's
// id is its index in the arena, so ids are dense, never reused, and looked up
// in O(1).
//
// Every mutation is split into a check step and an apply step. All checks run
// before anything is written, so a failed check leaves no partial state.
// Registry is not safe for concurrent use; Service serializes access.
type Registry struct {
	identity  Account
	escrow    *Escrow
	rewards   *RewardIssuer
	max       int
	products  []Product
	listings  map[Account][]uint64
	purchases map[Account][]uint64
}

// NewRegistry binds a registry to the escrow it credits and the issuer it mints
// through. max bounds the arena; zero means unbounded.
func NewRegistry(identity Account, escrow *Escrow, rewards *RewardIssuer, max int) *Registry {
	return &Registry{
		identity:  identity,
		escrow:    escrow,
		rewards:   rewards,
		max:       max,
		listings:  make(map[Account][]uint64),
		purchases: make(map[Account][]uint64),
	}
}

func (r *Registry) Identity() Account { return r.identity }

func (r *Registry) Count() uint64 { return uint64(len(r.products)) }

// NextID is the id the next created product will receive.
func (r *Registry) NextID() uint64 { return uint64(len(r.products)) }

func (r *Registry) Get(id uint64) (Product, error) {
	if id >= uint64(len(r.products)) {
		return Product{}, fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	return r.products[id], nil
}

// All returns a copy of every product in id order.
func (r *Registry) All() []Product {
	out := make([]Product, len(r.products))
	copy(out, r.products)
	return out
}

func (r *Registry) Listings(seller Account) []uint64 {
	return append([]uint64(nil), r.listings[seller]...)
}

func (r *Registry) Purchases(buyer Account) []uint64 {
	return append([]uint64(nil), r.purchases[buyer]...)
}

func (r *Registry) checkCreate(caller Account, l Listing) error {
	if caller.IsZero() {
		return fmt.Errorf("%w: seller is empty", ErrInvalidInput)
	}
	if err := l.validate(); err != nil {
		return err
	}
	if r.max > 0 && len(r.products) >= r.max {
		return fmt.Errorf("%w: limit %d reached", ErrRegistryFull, r.max)
	}
	return nil
}

func (r *Registry) applyCreate(caller Account, l Listing) Product {
	p := Product{
		ID:          uint64(len(r.products)),
		Title:       l.Title,
		Description: l.Description,
		ImageURI:    l.ImageURI,
		Category:    l.Category,
		Price:       l.Price,
		Seller:      caller,
		Active:      true,
	}
	r.products = append(r.products, p)
	r.listings[caller] = append(r.listings[caller], p.ID)
	return p
}

// checkBuy validates a purchase, including the downstream credit and mint, and
// returns the product as it is before the sale.
func (r *Registry) checkBuy(caller Account, id uint64, payment, reward decimal.Decimal) (Product, error) {
	p, err := r.Get(id)
	if err != nil {
		return Product{}, err
	}
	if !p.Available() {
		return Product{}, fmt.Errorf("%w: product %d is %s", ErrNotAvailable, id, p.Status())
	}
	if caller.IsZero() {
		return Product{}, fmt.Errorf("%w: buyer is empty", ErrInvalidInput)
	}
	if caller == p.Seller {
		return Product{}, fmt.Errorf("%w: product %d", ErrSelfPurchase, id)
	}
	if !payment.Equal(p.Price) {
		return Product{}, fmt.Errorf("%w: got %s, price is %s", ErrWrongPayment, payment, p.Price)
	}
	if err := r.escrow.checkCredit(r.identity, p.Seller, payment); err != nil {
		return Product{}, fmt.Errorf("escrow credit: %w", err)
	}
	if err := r.rewards.checkMint(r.identity, caller, reward); err != nil {
		return Product{}, fmt.Errorf("reward mint: %w", err)
	}
	return p, nil
}

func (r *Registry) applyBuy(caller Account, id uint64, payment, reward decimal.Decimal) Product {
	p := &r.products[id]
	p.Sold = true
	p.Active = false
	p.Buyer = caller
	r.purchases[caller] = append(r.purchases[caller], id)
	r.escrow.credit(p.Seller, payment)
	if reward.IsPositive() {
		r.rewards.mint(caller, reward)
	}
	return *p
}

func (r *Registry) checkUnlist(caller Account, id uint64) (Product, error) {
	p, err := r.Get(id)
	if err != nil {
		return Product{}, err
	}
	if caller != p.Seller {
		return Product{}, fmt.Errorf("%w: product %d", ErrNotSeller, id)
	}
	if !p.Available() {
		return Product{}, fmt.Errorf("%w: product %d is %s", ErrAlreadyFinal, id, p.Status())
	}
	return p, nil
}

func (r *Registry) applyUnlist(id uint64) Product {
	r.products[id].Active = false
	return r.products[id]
}
