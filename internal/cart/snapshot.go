package cart

import (
	"github.com/shopspring/decimal"
)

// Line is one product line of the authoritative cart, priced as of the last fetch.
type Line struct {
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Name      string           `json:"name"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	Currency  string           `json:"currency,omitempty"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
	Image     *string          `json:"image,omitempty"`
}

// Subtotal is the cached unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the cart as last fetched. Build it with NewSnapshot so the derived totals hold.
// TotalPrice uses cached unit prices and is display-only; the backend decides what is charged.
type Snapshot struct {
	Lines         []Line          `json:"lines"`
	LineCount     int             `json:"line_count"`
	TotalQuantity int             `json:"total_quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Currency      string          `json:"currency,omitempty"`
}

// NewSnapshot derives counts and totals from the lines. Lines with a non-positive
// quantity are dropped: the backend never reports them as present.
func NewSnapshot(lines []Line) Snapshot {
	kept := make([]Line, 0, len(lines))
	total := decimal.Zero
	quantity := 0
	currency := ""
	for _, line := range lines {
		if line.Quantity < 1 || line.ProductID == "" {
			continue
		}
		kept = append(kept, line)
		quantity += line.Quantity
		total = total.Add(line.Subtotal())
		if currency == "" {
			currency = line.Currency
		}
	}
	return Snapshot{
		Lines:         kept,
		LineCount:     len(kept),
		TotalQuantity: quantity,
		TotalPrice:    total,
		Currency:      currency,
	}
}

// EmptySnapshot is the normalised "cart is empty" marker.
func EmptySnapshot() Snapshot {
	return NewSnapshot(nil)
}

// Empty reports whether the cart has no lines.
func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Line returns the line for the product, if present.
func (s Snapshot) Line(productID string) (Line, bool) {
	for _, line := range s.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return Line{}, false
}

// Quantity returns the cached quantity of the product, zero when absent.
func (s Snapshot) Quantity(productID string) int {
	line, _ := s.Line(productID)
	return line.Quantity
}
