package dto

import "github.com/angelmondragon/storefront-backend/internal/returns"

// AddItemRequest marks a purchased item for return.
type AddItemRequest struct {
	ItemID    string `json:"item_id" validate:"max=128"`
	ProductID string `json:"product_id" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// UpdateItemRequest changes a drafted item. Fields are applied in order: quantity, step,
// then the proof image.
type UpdateItemRequest struct {
	Quantity   *int                `json:"quantity" validate:"omitempty,min=1"`
	Step       string              `json:"step" validate:"omitempty,oneof=increment decrement"`
	ProofImage *returns.ProofImage `json:"proof_image"`
	ClearImage bool                `json:"clear_image"`
}
