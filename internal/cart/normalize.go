package cart

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// normalizeCart turns any cart reply into a Snapshot.
//
// The backend is inconsistent about shapes, so every recognised variant is listed here and
// everything else is read as an empty cart. A 500 (and a 404, which the API sends before the
// first add) is also read as an empty cart rather than surfaced to the shopper. That leniency
// can hide a real outage behind an empty cart; it is kept on purpose.
func normalizeCart(status int, body []byte) (Snapshot, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart requires sign in")
	case status == http.StatusInternalServerError || status == http.StatusNotFound:
		return EmptySnapshot(), nil
	case status < 200 || status >= 300:
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency,
			&pkgerrors.UpstreamError{Status: status}, "fetch cart failed")
	}

	raw, ok := cartItems(body)
	if !ok {
		return EmptySnapshot(), nil
	}
	lines := make([]Line, 0, len(raw))
	for _, item := range raw {
		if line, ok := item.toLine(); ok {
			lines = append(lines, line)
		}
	}
	return NewSnapshot(lines), nil
}

// cartItems finds the item list inside the known envelopes:
//
//	[...]
//	{"items": [...]} / {"cart_items": [...]} / {"lines": [...]}
//	{"data": [...]}
//	{"data": {"items": [...]}} (and the other item keys)
//	{"data": null}, {}, empty body -> no items
func cartItems(body []byte) ([]rawLine, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}
	switch trimmed[0] {
	case '[':
		var items []rawLine
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false
		}
		return items, true
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, false
		}
		if items, ok := itemsFromObject(envelope); ok {
			return items, true
		}
		if data, ok := envelope["data"]; ok {
			return cartItems(data)
		}
		return nil, false
	}
	return nil, false
}

var itemKeys = []string{"items", "cart_items", "lines"}

func itemsFromObject(envelope map[string]json.RawMessage) ([]rawLine, bool) {
	for _, key := range itemKeys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var items []rawLine
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false
		}
		return items, true
	}
	return nil, false
}

// rawLine accepts the field spellings the backend has used for cart lines.
type rawLine struct {
	ID        types.FlexString `json:"id"`
	ProductID types.FlexString `json:"product_id"`
	Quantity  types.FlexInt    `json:"quantity"`
	Qty       types.FlexInt    `json:"qty"`
	Name      string           `json:"name"`
	Price     *decimal.Decimal `json:"price"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Currency  string           `json:"currency"`
	Discount  *decimal.Decimal `json:"discount"`
	Image     *string          `json:"image"`
	Product   *rawProduct      `json:"product"`
}

type rawProduct struct {
	ID       types.FlexString `json:"id"`
	Name     string           `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency"`
	Discount *decimal.Decimal `json:"discount"`
	Image    *string          `json:"image"`
}

func (r rawLine) toLine() (Line, bool) {
	line := Line{
		ProductID: firstNonEmpty(string(r.ProductID), productField(r.Product, func(p *rawProduct) string { return string(p.ID) }), string(r.ID)),
		Quantity:  int(r.Quantity),
		Name:      firstNonEmpty(r.Name, productField(r.Product, func(p *rawProduct) string { return p.Name })),
		Currency:  firstNonEmpty(r.Currency, productField(r.Product, func(p *rawProduct) string { return p.Currency })),
		Discount:  r.Discount,
		Image:     r.Image,
	}
	if line.Quantity == 0 {
		line.Quantity = int(r.Qty)
	}
	switch {
	case r.UnitPrice != nil:
		line.UnitPrice = *r.UnitPrice
	case r.Price != nil:
		line.UnitPrice = *r.Price
	case r.Product != nil && r.Product.Price != nil:
		line.UnitPrice = *r.Product.Price
	}
	if r.Product != nil {
		if line.Discount == nil {
			line.Discount = r.Product.Discount
		}
		if line.Image == nil {
			line.Image = r.Product.Image
		}
	}
	if line.ProductID == "" || line.Quantity < 1 {
		return Line{}, false
	}
	return line, true
}

func productField(p *rawProduct, get func(*rawProduct) string) string {
	if p == nil {
		return ""
	}
	return get(p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
