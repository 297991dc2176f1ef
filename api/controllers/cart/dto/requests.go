package dto

// AddItemRequest puts a product in the cart. Quantity defaults to one.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=999"`
}
