package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/backend"
)

// fakeBackend emulates the storefront cart endpoint with per-product stock.
type fakeBackend struct {
	mu    sync.Mutex
	lines map[string]int
	stock map[string]int
	calls []backend.Request

	// gateProduct blocks mutations of that product until gate is closed.
	gateProduct string
	gate        chan struct{}
	entered     chan struct{}

	err error
}

func newFakeBackend(stock map[string]int) *fakeBackend {
	return &fakeBackend{lines: map[string]int{}, stock: stock}
}

func (f *fakeBackend) Do(_ context.Context, req backend.Request) (*backend.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	err := f.err
	gateProduct, gate, entered := f.gateProduct, f.gate, f.entered
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if req.Method == http.MethodGet {
		return f.cartResponse(), nil
	}

	payload, ok := req.JSON.(upsertPayload)
	if !ok {
		return jsonResponse(http.StatusBadRequest, `{"message":"bad payload"}`), nil
	}
	if gate != nil && payload.ProductID == gateProduct {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	pid := payload.ProductID
	stock, known := f.stock[pid]
	switch payload.Action {
	case string(ModeAdd):
		if !known {
			return jsonResponse(http.StatusNotFound, `{"message":"Product not found"}`), nil
		}
		if f.lines[pid]+payload.Quantity > stock {
			return jsonResponse(http.StatusUnprocessableEntity, `{"message":"Requested quantity exceeds available stock"}`), nil
		}
		f.lines[pid] += payload.Quantity
	case string(ModeIncrement), string(ModeDecrement):
		if _, present := f.lines[pid]; !present {
			return jsonResponse(http.StatusNotFound, `{"message":"Item not in cart"}`), nil
		}
		if payload.Quantity > stock {
			return jsonResponse(http.StatusUnprocessableEntity, `{"message":"Only 5 left in stock"}`), nil
		}
		f.lines[pid] = payload.Quantity
	case string(ModeDelete):
		delete(f.lines, pid)
	}
	return jsonResponse(http.StatusOK, `{"success":true}`), nil
}

func (f *fakeBackend) cartResponse() *backend.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.lines))
	for id := range f.lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{
			"product_id": id,
			"quantity":   f.lines[id],
			"name":       fmt.Sprintf("Product %s", id),
			"price":      "10.00",
		})
	}
	body, _ := json.Marshal(map[string]any{"data": map[string]any{"items": items}})
	return &backend.Response{Status: http.StatusOK, Body: body}
}

func (f *fakeBackend) mutations() []upsertPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []upsertPayload
	for _, call := range f.calls {
		if payload, ok := call.JSON.(upsertPayload); ok {
			out = append(out, payload)
		}
	}
	return out
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func jsonResponse(status int, body string) *backend.Response {
	return &backend.Response{Status: status, Body: []byte(body)}
}
