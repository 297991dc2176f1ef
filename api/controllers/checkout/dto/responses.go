package dto

import (
	"github.com/angelmondragon/storefront-backend/internal/checkout"
)

// Session is a checkout draft as the wizard reads it. Missing lists what submission
// would still reject, in wizard order.
type Session struct {
	checkout.DraftView
	Missing []checkout.MissingField `json:"missing"`
}
