package cart

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewSnapshotTotals(t *testing.T) {
	lines := []Line{
		{ProductID: "1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.25")},
		{ProductID: "2", Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
		{ProductID: "3", Quantity: 1, UnitPrice: decimal.RequireFromString("99.99")},
	}
	snap := NewSnapshot(lines)

	wantQty := 0
	wantTotal := decimal.Zero
	for _, line := range snap.Lines {
		wantQty += line.Quantity
		wantTotal = wantTotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if snap.TotalQuantity != wantQty || wantQty != 6 {
		t.Fatalf("expected total quantity 6, got %d", snap.TotalQuantity)
	}
	if !snap.TotalPrice.Equal(wantTotal) || !snap.TotalPrice.Equal(decimal.RequireFromString("120.79")) {
		t.Fatalf("unexpected total price %s", snap.TotalPrice)
	}
	if snap.LineCount != 3 {
		t.Fatalf("expected 3 lines, got %d", snap.LineCount)
	}
}

func TestNewSnapshotDropsEmptyLines(t *testing.T) {
	snap := NewSnapshot([]Line{
		{ProductID: "1", Quantity: 0, UnitPrice: decimal.NewFromInt(5)},
		{ProductID: "", Quantity: 2, UnitPrice: decimal.NewFromInt(5)},
		{ProductID: "3", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	})
	if snap.LineCount != 1 || snap.Lines[0].ProductID != "3" {
		t.Fatalf("expected only product 3 to remain, got %+v", snap.Lines)
	}
	if snap.Quantity("1") != 0 {
		t.Fatalf("zero-quantity line must be absent")
	}
}

func TestEmptySnapshot(t *testing.T) {
	snap := EmptySnapshot()
	if !snap.Empty() || snap.TotalQuantity != 0 || !snap.TotalPrice.IsZero() {
		t.Fatalf("unexpected empty snapshot %+v", snap)
	}
	if snap.Lines == nil {
		t.Fatalf("empty snapshot should render lines as []")
	}
}
