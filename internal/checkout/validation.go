package checkout

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	FieldShippingAddress = "shipping_address"
	FieldShippingMethod  = "shipping_method"
	FieldSeller          = "seller_id"
)

// MissingField names a choice the wizard has not made yet.
type MissingField struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Missing lists the choices submission still requires, in wizard order.
func Missing(view DraftView) []MissingField {
	missing := []MissingField{}
	if view.ShippingAddress == nil {
		missing = append(missing, MissingField{Field: FieldShippingAddress, Message: "choose a shipping address"})
	}
	if view.ShippingMethod == nil {
		missing = append(missing, MissingField{Field: FieldShippingMethod, Message: "choose a shipping method"})
	}
	if view.SellerID == nil {
		missing = append(missing, MissingField{Field: FieldSeller, Message: "choose a pharmacy"})
	}
	return missing
}

// ValidateForSubmit checks the submission preconditions. It never touches the network.
func ValidateForSubmit(view DraftView) error {
	missing := Missing(view)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, m := range missing {
		names = append(names, m.Field)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order is missing: %s", strings.Join(names, ", "))).WithDetails(map[string]any{
		"missing": missing,
	})
}
