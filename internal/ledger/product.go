package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Category is the closed set of listing categories.
type Category uint8

const (
	CategorySmartphones Category = iota
	CategoryLaptops
	CategoryTablets
	CategoryAccessories
	CategoryOther
)

var categoryNames = [...]string{"Smartphones", "Laptops", "Tablets", "Accessories", "Other"}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool { return int(c) < len(categoryNames) }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// ParseCategory accepts a category name, case-insensitively, or its base-10
// enum index ("0" is Smartphones).
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		if c := Category(n); c.Valid() {
			return c, nil
		}
		return 0, fmt.Errorf("%w: category index %s out of range", ErrInvalidInput, s)
	}
	for i, name := range categoryNames {
		if strings.EqualFold(name, s) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

// Categories lists every category in enum order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range categoryNames {
		out[i] = Category(i)
	}
	return out
}

// Status is the display state of a listing.
type Status string

const (
	StatusActive   Status = "Active"
	StatusSold     Status = "Sold"
	StatusUnlisted Status = "Unlisted"
)

// Product is a listing record. ID is its position in the registry arena.
type Product struct {
	ID          uint64
	Title       string
	Description string
	ImageURI    string
	Category    Category
	Price       decimal.Decimal
	Seller      Account
	Buyer       Account
	Sold        bool
	Active      bool
}

func (p Product) Status() Status {
	switch {
	case p.Sold:
		return StatusSold
	case p.Active:
		return StatusActive
	default:
		return StatusUnlisted
	}
}

// Available reports whether the product can still be bought.
func (p Product) Available() bool { return p.Active && !p.Sold }

// Listing is the caller-supplied part of a new product.
type Listing struct {
	Title       string
	Description string
	ImageURI    string
	Category    Category
	Price       decimal.Decimal
}

func (l Listing) validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !l.Category.Valid() {
		return fmt.Errorf("%w: category %d out of range", ErrInvalidInput, uint8(l.Category))
	}
	if err := validPositive(l.Price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	return nil
}
