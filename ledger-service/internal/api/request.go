package api

import (
	"bytes"
	"encoding/json"
)

// CreateProductRequest is the payload for listing a new product. Price is a
// base-10 integer string in the smallest unit.
type CreateProductRequest struct {
	Title       string `json:"title" example:"Pixel 9"`
	Description string `json:"description"`
	ImageURI    string `json:"imageUri" example:"ipfs://bafy..."`
	Category    CategoryInput `json:"category" example:"Smartphones"`
	Price       string `json:"price" example:"10000000000000000"`
}

// CategoryInput holds a category as sent by clients: either its name or its
// enum index, as a JSON string or number.
type CategoryInput string

func (c *CategoryInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*c = CategoryInput(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = CategoryInput(s)
	return nil
}

// BuyRequest carries the payment attached to a purchase. It must equal the
// product price exactly.
type BuyRequest struct {
	Payment string `json:"payment" example:"10000000000000000"`
}
