package checkout

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/backend"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const shopper = auth.Credential("opaque-session-token")

type stubBackend struct {
	calls   []backend.Request
	respond func(backend.Request) (*backend.Response, error)
}

func (s *stubBackend) Do(_ context.Context, req backend.Request) (*backend.Response, error) {
	s.calls = append(s.calls, req)
	if s.respond == nil {
		return &backend.Response{Status: http.StatusOK, Body: []byte(`{}`)}, nil
	}
	return s.respond(req)
}

type stubCart struct {
	snapshot    cart.Snapshot
	err         error
	gets        int
	invalidated int
}

func (s *stubCart) Get(context.Context, auth.Credential) (cart.Snapshot, error) {
	s.gets++
	return s.snapshot, s.err
}

func (s *stubCart) Invalidate(auth.Credential) { s.invalidated++ }

func twoLineCart() cart.Snapshot {
	return cart.NewSnapshot([]cart.Line{
		{ProductID: "42", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "7", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	})
}

func readyDraft(t *testing.T) *Draft {
	t.Helper()
	draft := newDraft("sess-1", shopper.Scope(), time.Now())
	require.NoError(t, draft.SetSeller("ph-9"))
	require.NoError(t, draft.SetShippingMethod(Selection{ID: "2", Label: "Express"}))
	require.NoError(t, draft.SetShippingAddress(Selection{ID: "addr-1", Label: "Home"}))
	require.NoError(t, draft.SetPaymentMethod(Selection{ID: "cash", Label: "Cash on delivery"}))
	return draft
}

func newTestService(t *testing.T, be *stubBackend, c *stubCart) *service {
	t.Helper()
	svc, err := NewService(be, c, nil)
	require.NoError(t, err)
	return svc.(*service)
}

func TestSubmitPreconditionsNeverReachNetwork(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Draft)
	}{
		{name: "no address", setup: func(d *Draft) { _ = d.SetShippingAddress(Selection{}) }},
		{name: "no method", setup: func(d *Draft) { _ = d.SetShippingMethod(Selection{}) }},
		{name: "no seller", setup: func(d *Draft) { _ = d.SetSeller("") }},
		{name: "nothing", setup: func(d *Draft) {
			_ = d.SetShippingAddress(Selection{})
			_ = d.SetShippingMethod(Selection{})
			_ = d.SetSeller("")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &stubBackend{}
			c := &stubCart{snapshot: twoLineCart()}
			svc := newTestService(t, be, c)
			draft := readyDraft(t)
			tt.setup(draft)

			_, err := svc.Submit(context.Background(), shopper, draft)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
			assert.Len(t, be.calls, 0)
			assert.Equal(t, 0, c.gets)
			assert.False(t, draft.Confirmed())
		})
	}
}

func TestSubmitPlacesOrder(t *testing.T) {
	be := &stubBackend{respond: func(req backend.Request) (*backend.Response, error) {
		return &backend.Response{Status: http.StatusCreated, Body: []byte(`{"data":{"order_number":"ORD-100"}}`)}, nil
	}}
	c := &stubCart{snapshot: twoLineCart()}
	svc := newTestService(t, be, c)
	draft := readyDraft(t)
	require.NoError(t, draft.setCoupon(AppliedCoupon{Code: "SAVE5", Discount: decimal.NewFromInt(5)}))

	confirmation, err := svc.Submit(context.Background(), shopper, draft)
	require.NoError(t, err)
	assert.Equal(t, "ORD-100", confirmation.OrderNumber)
	assert.True(t, draft.Confirmed())
	assert.Equal(t, 1, c.invalidated)

	require.Len(t, be.calls, 1)
	call := be.calls[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "create-order", call.Path)
	payload, ok := call.JSON.(createOrderRequest)
	require.True(t, ok)
	assert.Equal(t, createOrderRequest{
		PharmacyID:        "ph-9",
		ShippingMethodID:  "2",
		ShippingAddressID: "addr-1",
		PaymentMethod:     "cash",
		PromoCode:         "SAVE5",
		Items:             []orderItem{{ID: "42", Qty: 2}, {ID: "7", Qty: 1}},
	}, payload)

	again, err := svc.Submit(context.Background(), shopper, draft)
	require.NoError(t, err)
	assert.Equal(t, confirmation, again)
	assert.Len(t, be.calls, 1, "a confirmed draft is not submitted twice")
}

func TestSubmitRefusesConcurrentSubmission(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	be := &stubBackend{respond: func(req backend.Request) (*backend.Response, error) {
		close(entered)
		<-gate
		return &backend.Response{Status: http.StatusCreated, Body: []byte(`{"data":{"order_number":"ORD-1"}}`)}, nil
	}}
	svc := newTestService(t, be, &stubCart{snapshot: twoLineCart()})
	draft := readyDraft(t)

	done := make(chan Confirmation, 1)
	go func() {
		confirmation, err := svc.Submit(context.Background(), shopper, draft)
		assert.NoError(t, err)
		done <- confirmation
	}()
	<-entered

	_, err := svc.Submit(context.Background(), shopper, draft)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.Is(draft.SetSeller("ph-1"), pkgerrors.CodeStateConflict), "draft is frozen while an order is being placed")

	close(gate)
	select {
	case confirmation := <-done:
		assert.Equal(t, "ORD-1", confirmation.OrderNumber)
	case <-time.After(time.Second):
		t.Fatal("first submission never finished")
	}
	assert.Len(t, be.calls, 1, "only one order is placed")

	again, err := svc.Submit(context.Background(), shopper, draft)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", again.OrderNumber)
}

func TestSubmitFailureReleasesDraft(t *testing.T) {
	be := &stubBackend{respond: func(backend.Request) (*backend.Response, error) {
		return nil, errors.New("connection reset")
	}}
	svc := newTestService(t, be, &stubCart{snapshot: twoLineCart()})
	draft := readyDraft(t)

	_, err := svc.Submit(context.Background(), shopper, draft)
	require.Error(t, err)
	require.NoError(t, draft.SetSeller("ph-2"), "a failed submission leaves the draft editable")

	_, err = svc.Submit(context.Background(), shopper, draft)
	require.Error(t, err)
	assert.Len(t, be.calls, 2, "the shopper can retry after a failure")
}

func TestSubmitSurfacesBackendMessageVerbatim(t *testing.T) {
	be := &stubBackend{respond: func(backend.Request) (*backend.Response, error) {
		return &backend.Response{Status: http.StatusUnprocessableEntity, Body: []byte(`{"message":"Pharmacy is closed at this hour"}`)}, nil
	}}
	svc := newTestService(t, be, &stubCart{snapshot: twoLineCart()})
	draft := readyDraft(t)
	before := draft.View()

	_, err := svc.Submit(context.Background(), shopper, draft)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "Pharmacy is closed at this hour", typed.Message())
	assert.Equal(t, before, draft.View(), "draft stays as it was")
}

func TestSubmitTransportErrorIsGeneric(t *testing.T) {
	be := &stubBackend{respond: func(backend.Request) (*backend.Response, error) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "storefront backend request failed")
	}}
	svc := newTestService(t, be, &stubCart{snapshot: twoLineCart()})

	_, err := svc.Submit(context.Background(), shopper, readyDraft(t))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "could not place order", typed.Message())
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestSubmitEmptyCart(t *testing.T) {
	be := &stubBackend{}
	svc := newTestService(t, be, &stubCart{snapshot: cart.EmptySnapshot()})

	_, err := svc.Submit(context.Background(), shopper, readyDraft(t))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	assert.Len(t, be.calls, 0)
}

func TestShippingMethodsParsesFees(t *testing.T) {
	be := &stubBackend{respond: func(req backend.Request) (*backend.Response, error) {
		assert.Equal(t, "shipping-methods", req.Path)
		return &backend.Response{Status: http.StatusOK, Body: []byte(`{"data":[{"id":1,"type":"standard","fee":"15.00","duration_hours":48},{"id":"2","type":"express","fee":30,"duration_hours":"6"},{"id":3,"name":"same day","fee":45,"duration":2.5}]}`)}, nil
	}}
	svc := newTestService(t, be, &stubCart{})

	methods, err := svc.ShippingMethods(context.Background(), shopper)
	require.NoError(t, err)
	require.Len(t, methods, 3)
	assert.Equal(t, "1", methods[0].ID)
	assert.True(t, methods[0].Fee.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, 48, methods[0].DurationHours)
	assert.Equal(t, "express", methods[1].Type)
	assert.Equal(t, 6, methods[1].DurationHours)
	assert.Equal(t, "same day", methods[2].Type)
	assert.Equal(t, 3, methods[2].DurationHours, "part hours round up")
}

func TestSummaryAddsFeeAndSubtractsDiscount(t *testing.T) {
	be := &stubBackend{respond: func(backend.Request) (*backend.Response, error) {
		return &backend.Response{Status: http.StatusOK, Body: []byte(`[{"id":"2","type":"express","fee":"12.50"}]`)}, nil
	}}
	svc := newTestService(t, be, &stubCart{snapshot: twoLineCart()})
	draft := readyDraft(t)
	require.NoError(t, draft.setCoupon(AppliedCoupon{Code: "SAVE5", Discount: decimal.NewFromInt(5)}))

	summary, err := svc.Summary(context.Background(), shopper, draft)
	require.NoError(t, err)
	assert.True(t, summary.ItemsTotal.Equal(decimal.RequireFromString("25.50")))
	assert.True(t, summary.ShippingFee.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, summary.Total.Equal(decimal.RequireFromString("33.00")), "got %s", summary.Total)
	assert.Equal(t, 3, summary.ItemCount)
}

func TestApplyCoupon(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		be := &stubBackend{respond: func(req backend.Request) (*backend.Response, error) {
			body := req.JSON.(couponRequest)
			assert.Equal(t, "SAVE5", body.Code)
			assert.Equal(t, "ph-9", body.PharmacyID)
			return &backend.Response{Status: http.StatusOK, Body: []byte(`{"data":{"discount":"5.00"}}`)}, nil
		}}
		svc := newTestService(t, be, &stubCart{})
		draft := readyDraft(t)

		applied, err := svc.ApplyCoupon(context.Background(), shopper, draft, " SAVE5 ")
		require.NoError(t, err)
		assert.True(t, applied.Discount.Equal(decimal.NewFromInt(5)))
		require.NotNil(t, draft.View().Coupon)
		assert.Equal(t, "SAVE5", draft.View().Coupon.Code)
	})

	t.Run("refused", func(t *testing.T) {
		be := &stubBackend{respond: func(backend.Request) (*backend.Response, error) {
			return &backend.Response{Status: http.StatusOK, Body: []byte(`{"success":false,"message":"Coupon expired"}`)}, nil
		}}
		svc := newTestService(t, be, &stubCart{})
		draft := readyDraft(t)

		_, err := svc.ApplyCoupon(context.Background(), shopper, draft, "OLD")
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, "Coupon expired", typed.Message())
		assert.Nil(t, draft.View().Coupon)
	})
}
