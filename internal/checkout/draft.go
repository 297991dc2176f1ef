package checkout

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Selection is a chosen option and the label the wizard displayed for it.
type Selection struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// AppliedCoupon is a coupon the backend accepted for this draft.
type AppliedCoupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// Confirmation is the backend's acknowledgement of a placed order.
type Confirmation struct {
	OrderNumber string    `json:"order_number"`
	PlacedAt    time.Time `json:"placed_at"`
}

var (
	errDraftConfirmed = pkgerrors.New(pkgerrors.CodeStateConflict, "order already placed for this checkout")
	errSubmitInFlight = pkgerrors.New(pkgerrors.CodeStateConflict, "order is already being placed for this checkout")
)

// Draft is the order being composed by one checkout wizard. Steps write it in any order;
// nothing is validated until submission. While a submission is in flight, and once
// confirmed, it no longer accepts changes.
type Draft struct {
	mu sync.RWMutex

	id              string
	owner           string
	seller          *string
	shippingMethod  *Selection
	shippingAddress *Selection
	paymentMethod   *Selection
	coupon          *AppliedCoupon
	confirmation    *Confirmation
	submitting      bool

	createdAt time.Time
	touchedAt time.Time
}

// DraftView is a point-in-time copy of a draft. Unset choices are nil.
type DraftView struct {
	ID              string         `json:"id"`
	SellerID        *string        `json:"seller_id"`
	ShippingMethod  *Selection     `json:"shipping_method"`
	ShippingAddress *Selection     `json:"shipping_address"`
	PaymentMethod   *Selection     `json:"payment_method"`
	Coupon          *AppliedCoupon `json:"coupon"`
	Confirmation    *Confirmation  `json:"confirmation"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Confirmed reports whether the draft reached its terminal state.
func (v DraftView) Confirmed() bool {
	return v.Confirmation != nil
}

func newDraft(id, owner string, now time.Time) *Draft {
	return &Draft{id: id, owner: owner, createdAt: now, touchedAt: now}
}

func (d *Draft) ID() string {
	return d.id
}

// View copies the draft's current state.
func (d *Draft) View() DraftView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewLocked()
}

func (d *Draft) viewLocked() DraftView {
	return DraftView{
		ID:              d.id,
		SellerID:        copyString(d.seller),
		ShippingMethod:  copySelection(d.shippingMethod),
		ShippingAddress: copySelection(d.shippingAddress),
		PaymentMethod:   copySelection(d.paymentMethod),
		Coupon:          copyCoupon(d.coupon),
		Confirmation:    copyConfirmation(d.confirmation),
		CreatedAt:       d.createdAt,
	}
}

// SetSeller records the pharmacy the order goes to. An empty id clears it.
func (d *Draft) SetSeller(id string) error {
	return d.update(func() {
		if id = strings.TrimSpace(id); id == "" {
			d.seller = nil
			return
		}
		d.seller = &id
	})
}

func (d *Draft) SetShippingMethod(sel Selection) error {
	return d.update(func() { d.shippingMethod = normalizeSelection(sel) })
}

func (d *Draft) SetShippingAddress(sel Selection) error {
	return d.update(func() { d.shippingAddress = normalizeSelection(sel) })
}

func (d *Draft) SetPaymentMethod(sel Selection) error {
	return d.update(func() { d.paymentMethod = normalizeSelection(sel) })
}

// ClearCoupon drops the applied coupon.
func (d *Draft) ClearCoupon() error {
	return d.update(func() { d.coupon = nil })
}

func (d *Draft) setCoupon(coupon AppliedCoupon) error {
	return d.update(func() { d.coupon = &coupon })
}

// Confirmed reports whether an order was placed from this draft.
func (d *Draft) Confirmed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.confirmation != nil
}

// claimSubmit reserves the draft for one submission and returns the view to submit.
// A second claim fails until release is called.
func (d *Draft) claimSubmit() (DraftView, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return DraftView{}, nil, errSubmitInFlight
	}
	d.submitting = true
	release := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.submitting = false
	}
	return d.viewLocked(), release, nil
}

func (d *Draft) confirm(c Confirmation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmation = &c
}

func (d *Draft) touch(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touchedAt = now
}

func (d *Draft) idleSince() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.touchedAt
}

func (d *Draft) update(apply func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.confirmation != nil {
		return errDraftConfirmed
	}
	if d.submitting {
		return errSubmitInFlight
	}
	apply()
	return nil
}

func normalizeSelection(sel Selection) *Selection {
	sel.ID = strings.TrimSpace(sel.ID)
	if sel.ID == "" {
		return nil
	}
	sel.Label = strings.TrimSpace(sel.Label)
	return &sel
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copySelection(v *Selection) *Selection {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyCoupon(v *AppliedCoupon) *AppliedCoupon {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyConfirmation(v *Confirmation) *Confirmation {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
