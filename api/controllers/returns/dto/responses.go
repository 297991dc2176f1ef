package dto

import "github.com/angelmondragon/storefront-backend/internal/returns"

// Draft is the return draft of one order.
type Draft struct {
	OrderID string              `json:"order_id"`
	Items   []returns.DraftItem `json:"items"`
}

// Submitted acknowledges a return request the backend accepted.
type Submitted struct {
	OrderID   string `json:"order_id"`
	RequestID string `json:"request_id,omitempty"`
}
