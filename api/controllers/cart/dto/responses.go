package dto

import (
	"github.com/angelmondragon/storefront-backend/internal/cart"
)

// CartLine is a cart line plus the mutation state the UI uses to disable its controls.
type CartLine struct {
	cart.Line
	Subtotal string         `json:"subtotal"`
	State    cart.LineState `json:"state"`
}

// CartView is the snapshot returned by GET /cart.
type CartView struct {
	Lines         []CartLine `json:"lines"`
	LineCount     int        `json:"line_count"`
	TotalQuantity int        `json:"total_quantity"`
	TotalPrice    string     `json:"total_price"`
	Currency      string     `json:"currency,omitempty"`
	Empty         bool       `json:"empty"`
}

// MutationResponse wraps a coordinator outcome.
type MutationResponse struct {
	cart.Outcome
	Cart *CartView `json:"cart,omitempty"`
}
