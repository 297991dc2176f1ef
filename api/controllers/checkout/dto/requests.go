package dto

// SelectionRequest records one wizard choice. An empty id clears the choice.
type SelectionRequest struct {
	ID    string `json:"id" validate:"max=128"`
	Label string `json:"label" validate:"max=256"`
}

type SellerRequest struct {
	SellerID string `json:"seller_id" validate:"max=128"`
}

type CouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}
