package returns

import "strings"

// OrderItem is a purchased line of an order as the order-details page shows it.
type OrderItem struct {
	ItemID    string `json:"item_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ProofImage describes the photo the shopper attached for an item. The bytes travel with
// the submission request; the draft only remembers that one was chosen.
type ProofImage struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
}

// DraftItem is one item marked for return. Quantity stays within [1, OriginalQuantity].
type DraftItem struct {
	ItemID           string      `json:"item_id"`
	ProductID        string      `json:"product_id"`
	Quantity         int         `json:"quantity"`
	OriginalQuantity int         `json:"original_quantity"`
	ProofImage       *ProofImage `json:"proof_image,omitempty"`
}

// The functions below never modify their input; they return the new draft.

// Add marks the item for return with its full purchased quantity. Adding a product that is
// already drafted changes nothing.
func Add(items []DraftItem, item OrderItem) []DraftItem {
	productID := strings.TrimSpace(item.ProductID)
	if productID == "" || Contains(items, productID) {
		return clone(items)
	}
	original := item.Quantity
	if original < 1 {
		original = 1
	}
	return append(clone(items), DraftItem{
		ItemID:           strings.TrimSpace(item.ItemID),
		ProductID:        productID,
		Quantity:         original,
		OriginalQuantity: original,
	})
}

// Remove drops the product. Removing a product that is not drafted is a no-op.
func Remove(items []DraftItem, productID string) []DraftItem {
	out := make([]DraftItem, 0, len(items))
	for _, it := range items {
		if it.ProductID != productID {
			out = append(out, it)
		}
	}
	return out
}

// SetQuantity sets the product's quantity, clamped to [1, original].
func SetQuantity(items []DraftItem, productID string, qty int) []DraftItem {
	return updateItem(items, productID, func(it *DraftItem) {
		it.Quantity = clamp(qty, it.OriginalQuantity)
	})
}

// Increment adds one unit unless the item is already at its purchased quantity.
func Increment(items []DraftItem, productID string) []DraftItem {
	return updateItem(items, productID, func(it *DraftItem) {
		if it.Quantity < it.OriginalQuantity {
			it.Quantity++
		}
	})
}

// Decrement removes one unit unless the item is already at one.
func Decrement(items []DraftItem, productID string) []DraftItem {
	return updateItem(items, productID, func(it *DraftItem) {
		if it.Quantity > 1 {
			it.Quantity--
		}
	})
}

// AttachImage records the proof image chosen for the product; nil detaches it.
func AttachImage(items []DraftItem, productID string, image *ProofImage) []DraftItem {
	return updateItem(items, productID, func(it *DraftItem) {
		if image == nil {
			it.ProofImage = nil
			return
		}
		copied := *image
		it.ProofImage = &copied
	})
}

func Contains(items []DraftItem, productID string) bool {
	for _, it := range items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// sanitize repairs a draft read back from storage: duplicates and blank products are
// dropped and quantities are clamped.
func sanitize(items []DraftItem) []DraftItem {
	out := make([]DraftItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" || Contains(out, it.ProductID) {
			continue
		}
		if it.OriginalQuantity < 1 {
			it.OriginalQuantity = 1
		}
		it.Quantity = clamp(it.Quantity, it.OriginalQuantity)
		out = append(out, it)
	}
	return out
}

func updateItem(items []DraftItem, productID string, apply func(*DraftItem)) []DraftItem {
	out := clone(items)
	for i := range out {
		if out[i].ProductID == productID {
			apply(&out[i])
			break
		}
	}
	return out
}

func clamp(qty, original int) int {
	if original < 1 {
		original = 1
	}
	switch {
	case qty < 1:
		return 1
	case qty > original:
		return original
	}
	return qty
}

func clone(items []DraftItem) []DraftItem {
	out := make([]DraftItem, len(items))
	copy(out, items)
	return out
}
