package returns

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

const draftLockStripes = 64

// draftStore is the persistence surface behind the drafts controller.
type draftStore interface {
	Load(ctx context.Context, orderID string) ([]DraftItem, error)
	Save(ctx context.Context, orderID string, items []DraftItem) error
	Clear(ctx context.Context, orderID string) error
}

// Drafts drives the order-details page: the draft is loaded when the page is entered and
// saved after every change. Changes to one order are serialised; different orders only
// share a lock stripe.
type Drafts struct {
	store draftStore
	locks [draftLockStripes]sync.Mutex
}

func NewDrafts(store draftStore) (*Drafts, error) {
	if store == nil {
		return nil, errors.New("draft store required")
	}
	return &Drafts{store: store}, nil
}

// Enter loads the order's draft.
func (d *Drafts) Enter(ctx context.Context, orderID string) ([]DraftItem, error) {
	return d.store.Load(ctx, orderID)
}

func (d *Drafts) Add(ctx context.Context, orderID string, item OrderItem) ([]DraftItem, error) {
	return d.change(ctx, orderID, func(items []DraftItem) []DraftItem { return Add(items, item) })
}

func (d *Drafts) Remove(ctx context.Context, orderID, productID string) ([]DraftItem, error) {
	return d.change(ctx, orderID, func(items []DraftItem) []DraftItem { return Remove(items, productID) })
}

func (d *Drafts) SetQuantity(ctx context.Context, orderID, productID string, qty int) ([]DraftItem, error) {
	return d.change(ctx, orderID, func(items []DraftItem) []DraftItem { return SetQuantity(items, productID, qty) })
}

func (d *Drafts) Increment(ctx context.Context, orderID, productID string) ([]DraftItem, error) {
	return d.change(ctx, orderID, func(items []DraftItem) []DraftItem { return Increment(items, productID) })
}

func (d *Drafts) Decrement(ctx context.Context, orderID, productID string) ([]DraftItem, error) {
	return d.change(ctx, orderID, func(items []DraftItem) []DraftItem { return Decrement(items, productID) })
}

func (d *Drafts) AttachImage(ctx context.Context, orderID, productID string, image *ProofImage) ([]DraftItem, error) {
	return d.change(ctx, orderID, func(items []DraftItem) []DraftItem { return AttachImage(items, productID, image) })
}

// Clear discards the draft, typically after a successful submission.
func (d *Drafts) Clear(ctx context.Context, orderID string) error {
	lock := d.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()
	return d.store.Clear(ctx, orderID)
}

func (d *Drafts) change(ctx context.Context, orderID string, apply func([]DraftItem) []DraftItem) ([]DraftItem, error) {
	lock := d.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	items, err := d.store.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next := apply(items)
	if err := d.store.Save(ctx, orderID, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (d *Drafts) lockFor(orderID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return &d.locks[h.Sum32()%draftLockStripes]
}
