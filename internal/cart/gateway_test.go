package cart

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/backend"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const testCred = auth.Credential("opaque-session-token")

type stubDoer struct {
	calls   []backend.Request
	respond func(backend.Request) (*backend.Response, error)
}

func (s *stubDoer) Do(_ context.Context, req backend.Request) (*backend.Response, error) {
	s.calls = append(s.calls, req)
	if s.respond == nil {
		return jsonResponse(http.StatusOK, `{"success":true}`), nil
	}
	return s.respond(req)
}

func newTestGateway(t *testing.T, doer Doer) *Gateway {
	t.Helper()
	gw, err := NewGateway(doer)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestGatewayEmptyCredentialSkipsNetwork(t *testing.T) {
	doer := &stubDoer{}
	gw := newTestGateway(t, doer)
	ctx := context.Background()

	if _, err := gw.FetchCart(ctx, ""); !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized fetch, got %v", err)
	}
	results := []MutationResult{
		gw.AddLine(ctx, "", "42", 1),
		gw.SetLineQuantity(ctx, "", "42", 1, 2),
		gw.SetLineQuantity(ctx, "", "42", 2, 1),
		gw.RemoveLine(ctx, "", "42"),
	}
	for i, res := range results {
		if res.OK || res.Reason != ReasonUnauthorized {
			t.Fatalf("result %d: expected unauthorized, got %+v", i, res)
		}
	}
	if len(doer.calls) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(doer.calls))
	}
}

func TestGatewayExpiredTokenSkipsNetwork(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "shopper-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	doer := &stubDoer{}
	gw := newTestGateway(t, doer)

	res := gw.AddLine(context.Background(), auth.Credential(signed), "42", 1)
	if res.Reason != ReasonUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", res)
	}
	if len(doer.calls) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(doer.calls))
	}
}

func TestSetLineQuantityPicksAction(t *testing.T) {
	tests := []struct {
		name    string
		current int
		target  int
		action  string
		qty     int
		calls   int
	}{
		{name: "up", current: 2, target: 3, action: "plus", qty: 3, calls: 1},
		{name: "down", current: 3, target: 2, action: "minus", qty: 2, calls: 1},
		{name: "to zero deletes", current: 1, target: 0, action: "delete", qty: 0, calls: 1},
		{name: "unchanged", current: 2, target: 2, calls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &stubDoer{}
			gw := newTestGateway(t, doer)
			res := gw.SetLineQuantity(context.Background(), testCred, "7", tt.current, tt.target)
			if !res.OK {
				t.Fatalf("expected ok, got %+v", res)
			}
			if len(doer.calls) != tt.calls {
				t.Fatalf("expected %d calls, got %d", tt.calls, len(doer.calls))
			}
			if tt.calls == 0 {
				return
			}
			call := doer.calls[0]
			payload := call.JSON.(upsertPayload)
			if call.Method != http.MethodPost || call.Path != "cart" {
				t.Fatalf("unexpected request %s %s", call.Method, call.Path)
			}
			if payload.Action != tt.action || payload.Quantity != tt.qty || payload.ProductID != "7" {
				t.Fatalf("unexpected payload %+v", payload)
			}
			if call.Credential != testCred {
				t.Fatalf("credential not forwarded")
			}
		})
	}
}

func TestUpsertClassifiesReplies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		ok      bool
		reason  Reason
		message string
	}{
		{name: "ok", status: http.StatusOK, body: `{"success":true}`, ok: true},
		{name: "ok flagged failure", status: http.StatusOK, body: `{"success":false,"message":"Out of stock"}`, reason: ReasonStockExceeded, message: "Out of stock"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"Unauthenticated."}`, reason: ReasonUnauthorized, message: "Unauthenticated."},
		{name: "forbidden", status: http.StatusForbidden, reason: ReasonUnauthorized},
		{name: "not found", status: http.StatusNotFound, body: `{"message":"Product not found"}`, reason: ReasonNotFound, message: "Product not found"},
		{name: "conflict", status: http.StatusConflict, reason: ReasonStockExceeded},
		{name: "validation stock", status: http.StatusUnprocessableEntity, body: `{"errors":{"quantity":["The quantity exceeds available stock."]}}`, reason: ReasonStockExceeded, message: "The quantity exceeds available stock."},
		{name: "validation other", status: http.StatusBadRequest, body: `{"message":"Pharmacy closed"}`, reason: ReasonUnknown, message: "Pharmacy closed"},
		{name: "server error", status: http.StatusBadGateway, reason: ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &stubDoer{respond: func(backend.Request) (*backend.Response, error) {
				return jsonResponse(tt.status, tt.body), nil
			}}
			res := newTestGateway(t, doer).AddLine(context.Background(), testCred, "42", 1)
			if res.OK != tt.ok || res.Reason != tt.reason {
				t.Fatalf("expected ok=%v reason=%q, got %+v", tt.ok, tt.reason, res)
			}
			if tt.message != "" && res.Message != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, res.Message)
			}
		})
	}
}

func TestUpsertTransportErrors(t *testing.T) {
	timeout := &stubDoer{respond: func(backend.Request) (*backend.Response, error) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, context.DeadlineExceeded, "cart.add timed out")
	}}
	if res := newTestGateway(t, timeout).AddLine(context.Background(), testCred, "42", 1); res.Reason != ReasonTimeout {
		t.Fatalf("expected timeout, got %+v", res)
	}

	broken := &stubDoer{respond: func(backend.Request) (*backend.Response, error) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection refused"), "cart.add failed")
	}}
	if res := newTestGateway(t, broken).AddLine(context.Background(), testCred, "42", 1); res.Reason != ReasonUnknown {
		t.Fatalf("expected unknown, got %+v", res)
	}
}

func TestFetchCartNormalises(t *testing.T) {
	doer := &stubDoer{respond: func(req backend.Request) (*backend.Response, error) {
		if req.Method != http.MethodGet || req.Path != "cart" {
			t.Fatalf("unexpected request %s %s", req.Method, req.Path)
		}
		return jsonResponse(http.StatusOK, `{"data":{"items":[{"product_id":"42","quantity":1,"price":"12.00"}]}}`), nil
	}}
	snap, err := newTestGateway(t, doer).FetchCart(context.Background(), testCred)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Quantity("42") != 1 || snap.LineCount != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
