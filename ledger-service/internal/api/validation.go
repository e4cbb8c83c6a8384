package api

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/marketplace/internal/ledger"
)

// Listing converts the request into a ledger listing. Field rules beyond
// parsing (title, image, positive price) are enforced by the ledger.
func (r CreateProductRequest) Listing() (ledger.Listing, error) {
	category, err := ledger.ParseCategory(string(r.Category))
	if err != nil {
		return ledger.Listing{}, err
	}
	price, err := ledger.ParseAmount(r.Price)
	if err != nil {
		return ledger.Listing{}, err
	}
	return ledger.Listing{
		Title:       r.Title,
		Description: r.Description,
		ImageURI:    r.ImageURI,
		Category:    category,
		Price:       price,
	}, nil
}

func (r BuyRequest) Amount() (decimal.Decimal, error) {
	if r.Payment == "" {
		return decimal.Zero, fmt.Errorf("%w: payment is required", ledger.ErrInvalidInput)
	}
	return ledger.ParseAmount(r.Payment)
}

func parseProductID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: product id %q", ledger.ErrInvalidInput, raw)
	}
	return id, nil
}
