package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/backend"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	createOrderPath     = "create-order"
	shippingMethodsPath = "shipping-methods"
	applyCouponPath     = "coupons/apply"

	msgPlaceOrderFailed = "could not place order"
)

type backendDoer interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// cartReader is the cart cache surface checkout needs.
type cartReader interface {
	Get(ctx context.Context, cred auth.Credential) (cart.Snapshot, error)
	Invalidate(cred auth.Credential)
}

// Service places orders from checkout drafts and serves the lookups the wizard shows.
type Service interface {
	ShippingMethods(ctx context.Context, cred auth.Credential) ([]ShippingMethod, error)
	ApplyCoupon(ctx context.Context, cred auth.Credential, draft *Draft, code string) (AppliedCoupon, error)
	Summary(ctx context.Context, cred auth.Credential, draft *Draft) (Summary, error)
	Submit(ctx context.Context, cred auth.Credential, draft *Draft) (Confirmation, error)
}

type service struct {
	backend backendDoer
	cart    cartReader
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the checkout service.
func NewService(client backendDoer, cartCache cartReader, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, errors.New("backend client required")
	}
	if cartCache == nil {
		return nil, errors.New("cart cache required")
	}
	return &service{backend: client, cart: cartCache, logg: logg, now: time.Now}, nil
}

// ShippingMethod is one delivery option with the fee the backend quotes for it.
type ShippingMethod struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Fee           decimal.Decimal `json:"fee"`
	DurationHours int             `json:"duration_hours"`
}

type rawShippingMethod struct {
	ID            types.FlexString `json:"id"`
	Type          string           `json:"type"`
	Name          string           `json:"name"`
	Fee           decimal.Decimal  `json:"fee"`
	DurationHours decimal.Decimal  `json:"duration_hours"`
	Duration      decimal.Decimal  `json:"duration"`
}

func (s *service) ShippingMethods(ctx context.Context, cred auth.Credential) ([]ShippingMethod, error) {
	if cred.KnownInvalid(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires sign in")
	}
	resp, err := s.backend.Do(ctx, backend.Request{
		Operation:  "checkout.shipping_methods",
		Method:     http.MethodGet,
		Path:       shippingMethodsPath,
		Credential: cred,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, replyError(resp, "could not load shipping methods")
	}

	var raw []rawShippingMethod
	if err := decodeData(resp.Body, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not load shipping methods")
	}
	methods := make([]ShippingMethod, 0, len(raw))
	for _, m := range raw {
		if m.ID == "" {
			continue
		}
		method := ShippingMethod{
			ID:   m.ID.String(),
			Type: firstNonEmpty(m.Type, m.Name),
			Fee:  m.Fee,
		}
		// Part hours round up so the promised window is never shorter than quoted.
		hours := m.DurationHours
		if hours.IsZero() {
			hours = m.Duration
		}
		method.DurationHours = int(hours.Ceil().IntPart())
		methods = append(methods, method)
	}
	return methods, nil
}

type couponRequest struct {
	Code       string `json:"code"`
	PharmacyID string `json:"pharmacy_id,omitempty"`
}

type couponReply struct {
	Code     string           `json:"code"`
	Discount *decimal.Decimal `json:"discount"`
	Amount   *decimal.Decimal `json:"discount_amount"`
}

// ApplyCoupon asks the backend to accept the code and records the discount it echoes.
// A refused code leaves the draft's coupon as it was.
func (s *service) ApplyCoupon(ctx context.Context, cred auth.Credential, draft *Draft, code string) (AppliedCoupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return AppliedCoupon{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if draft.Confirmed() {
		return AppliedCoupon{}, errDraftConfirmed
	}
	if cred.KnownInvalid(s.now()) {
		return AppliedCoupon{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires sign in")
	}

	view := draft.View()
	req := couponRequest{Code: code}
	if view.SellerID != nil {
		req.PharmacyID = *view.SellerID
	}
	resp, err := s.backend.Do(ctx, backend.Request{
		Operation:  "checkout.apply_coupon",
		Method:     http.MethodPost,
		Path:       applyCouponPath,
		Credential: cred,
		JSON:       req,
	})
	if err != nil {
		return AppliedCoupon{}, err
	}
	if !resp.OK() || rejectedInBody(resp.Body) {
		return AppliedCoupon{}, replyError(resp, "coupon could not be applied")
	}

	var reply couponReply
	if err := decodeData(resp.Body, &reply); err != nil {
		return AppliedCoupon{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "coupon could not be applied")
	}
	applied := AppliedCoupon{Code: code, Discount: decimal.Zero}
	switch {
	case reply.Discount != nil:
		applied.Discount = *reply.Discount
	case reply.Amount != nil:
		applied.Discount = *reply.Amount
	}
	if err := draft.setCoupon(applied); err != nil {
		return AppliedCoupon{}, err
	}
	return applied, nil
}

// Summary is the display-only price breakdown of a draft. The backend decides the charge.
type Summary struct {
	ItemCount   int             `json:"item_count"`
	ItemsTotal  decimal.Decimal `json:"items_total"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency,omitempty"`
}

func (s *service) Summary(ctx context.Context, cred auth.Credential, draft *Draft) (Summary, error) {
	snapshot, err := s.cart.Get(ctx, cred)
	if err != nil {
		return Summary{}, err
	}
	view := draft.View()
	fee := decimal.Zero
	if view.ShippingMethod != nil {
		methods, err := s.ShippingMethods(ctx, cred)
		if err != nil {
			return Summary{}, err
		}
		for _, m := range methods {
			if m.ID == view.ShippingMethod.ID {
				fee = m.Fee
				break
			}
		}
	}
	discount := decimal.Zero
	if view.Coupon != nil {
		discount = view.Coupon.Discount
	}
	return buildSummary(snapshot, fee, discount), nil
}

func buildSummary(snapshot cart.Snapshot, fee, discount decimal.Decimal) Summary {
	total := snapshot.TotalPrice.Add(fee).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Summary{
		ItemCount:   snapshot.TotalQuantity,
		ItemsTotal:  snapshot.TotalPrice,
		ShippingFee: fee,
		Discount:    discount,
		Total:       total,
		Currency:    snapshot.Currency,
	}
}

type orderItem struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

type createOrderRequest struct {
	PharmacyID        string      `json:"pharmacy_id"`
	ShippingMethodID  string      `json:"shipping_method_id"`
	ShippingAddressID string      `json:"shipping_address_id"`
	PaymentMethod     string      `json:"payment_method,omitempty"`
	PromoCode         string      `json:"promo_code,omitempty"`
	Items             []orderItem `json:"items"`
}

type createOrderReply struct {
	OrderNumber types.FlexString `json:"order_number"`
	OrderID     types.FlexString `json:"order_id"`
}

// Submit places the order. Preconditions are checked before anything is sent. On failure
// the draft is left as it was so the shopper can fix it and resubmit; on success it is
// confirmed and the cart cache is invalidated. Submitting a confirmed draft returns the
// original confirmation. Only one submission of a draft runs at a time; a concurrent one is
// refused with a state conflict.
func (s *service) Submit(ctx context.Context, cred auth.Credential, draft *Draft) (Confirmation, error) {
	view, release, err := draft.claimSubmit()
	if err != nil {
		return Confirmation{}, err
	}
	defer release()
	if view.Confirmation != nil {
		return *view.Confirmation, nil
	}
	if err := ValidateForSubmit(view); err != nil {
		return Confirmation{}, err
	}
	if cred.KnownInvalid(s.now()) {
		return Confirmation{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires sign in")
	}

	snapshot, err := s.cart.Get(ctx, cred)
	if err != nil {
		return Confirmation{}, err
	}
	if snapshot.Empty() {
		return Confirmation{}, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}

	payload := buildOrderRequest(view, snapshot)
	resp, err := s.backend.Do(ctx, backend.Request{
		Operation:  "checkout.create_order",
		Method:     http.MethodPost,
		Path:       createOrderPath,
		Credential: cred,
		JSON:       payload,
	})
	if err != nil {
		s.logFailure(ctx, draft, err)
		code := pkgerrors.CodeDependency
		if backend.IsTimeout(err) {
			code = pkgerrors.CodeTimeout
		}
		return Confirmation{}, pkgerrors.Wrap(code, err, msgPlaceOrderFailed)
	}
	if !resp.OK() || rejectedInBody(resp.Body) {
		err := replyError(resp, msgPlaceOrderFailed)
		s.logFailure(ctx, draft, err)
		return Confirmation{}, err
	}

	var reply createOrderReply
	if err := decodeData(resp.Body, &reply); err != nil {
		s.logFailure(ctx, draft, err)
	}
	confirmation := Confirmation{
		OrderNumber: firstNonEmpty(reply.OrderNumber.String(), reply.OrderID.String()),
		PlacedAt:    s.now().UTC(),
	}
	draft.confirm(confirmation)
	s.cart.Invalidate(cred)

	if s.logg != nil {
		logCtx := s.logg.WithSessionID(ctx, draft.ID())
		logCtx = s.logg.WithOrderID(logCtx, confirmation.OrderNumber)
		s.logg.Info(logCtx, "order placed")
	}
	return confirmation, nil
}

func buildOrderRequest(view DraftView, snapshot cart.Snapshot) createOrderRequest {
	req := createOrderRequest{
		PharmacyID:        *view.SellerID,
		ShippingMethodID:  view.ShippingMethod.ID,
		ShippingAddressID: view.ShippingAddress.ID,
		Items:             make([]orderItem, 0, len(snapshot.Lines)),
	}
	if view.PaymentMethod != nil {
		req.PaymentMethod = view.PaymentMethod.ID
	}
	if view.Coupon != nil {
		req.PromoCode = view.Coupon.Code
	}
	for _, line := range snapshot.Lines {
		req.Items = append(req.Items, orderItem{ID: line.ProductID, Qty: line.Quantity})
	}
	return req
}

func (s *service) logFailure(ctx context.Context, draft *Draft, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(s.logg.WithSessionID(ctx, draft.ID()), map[string]any{
		"error": err.Error(),
	}), "order submission failed")
}

// replyError turns a non-success reply into a typed error. The backend's own message is
// passed through verbatim; without one the fallback is used.
func replyError(resp *backend.Response, fallback string) error {
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires sign in")
	}
	upstream := &pkgerrors.UpstreamError{Status: resp.Status, Message: backend.Message(resp.Body)}
	if upstream.Message != "" {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, upstream, upstream.Message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, upstream, fallback)
}

// decodeData unmarshals body, or its "data" member when the reply is enveloped.
func decodeData(body []byte, dest any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return json.Unmarshal(envelope.Data, dest)
	}
	return json.Unmarshal(body, dest)
}

func rejectedInBody(body []byte) bool {
	var flags struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &flags); err != nil {
		return false
	}
	return flags.Success != nil && !*flags.Success
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
