package api

import (
	"github.com/Checker-Finance/marketplace/internal/ledger"
)

type ProductResponse struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURI    string `json:"imageUri"`
	Category    string `json:"category"`
	Price       string `json:"price"`
	Seller      string `json:"seller"`
	Buyer       string `json:"buyer,omitempty"`
	Sold        bool   `json:"sold"`
	Active      bool   `json:"active"`
	Status      string `json:"status"`
}

type ProductsResponse struct {
	Count    uint64            `json:"count"`
	Products []ProductResponse `json:"products"`
}

type IDsResponse struct {
	Account string   `json:"account"`
	IDs     []uint64 `json:"ids"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type WithdrawResponse struct {
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Seq       uint64 `json:"seq"`
	// Status is "paid", or "pending" while the payout outcome is unknown.
	Status string `json:"status"`
}

// ErrorResponse is returned for every failed request. Kind is a stable,
// machine-readable label ("not_found", "wrong_payment", ...).
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func toProductResponse(p ledger.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		ImageURI:    p.ImageURI,
		Category:    p.Category.String(),
		Price:       p.Price.String(),
		Seller:      p.Seller.String(),
		Buyer:       p.Buyer.String(),
		Sold:        p.Sold,
		Active:      p.Active,
		Status:      string(p.Status()),
	}
}
