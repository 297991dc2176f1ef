package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/backend"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const cartPath = "cart"

// Mode is the action field of the backend's single cart upsert endpoint.
type Mode string

const (
	ModeAdd       Mode = "add"
	ModeIncrement Mode = "plus"
	ModeDecrement Mode = "minus"
	ModeDelete    Mode = "delete"
)

// Reason classifies a failed gateway mutation.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonStockExceeded Reason = "stock_exceeded"
	ReasonNotFound      Reason = "not_found"
	ReasonUnauthorized  Reason = "unauthorized"
	ReasonTimeout       Reason = "timeout"
	ReasonUnknown       Reason = "unknown"
)

// Mutation is one upsert request. Quantity is the target quantity of the line
// (the amount to add for ModeAdd) and is ignored for ModeDelete.
type Mutation struct {
	ProductID string
	Quantity  int
	Mode      Mode
}

// MutationResult is the outcome of an upsert. Message carries the backend's text when it sent one.
type MutationResult struct {
	OK      bool
	Reason  Reason
	Message string
}

func okResult() MutationResult {
	return MutationResult{OK: true}
}

func failed(reason Reason, message string) MutationResult {
	return MutationResult{Reason: reason, Message: message}
}

// Doer is the backend surface the gateway needs.
type Doer interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// Gateway issues cart requests against the storefront backend and normalises the replies.
type Gateway struct {
	client Doer
	now    func() time.Time
}

// NewGateway builds a gateway over the backend client.
func NewGateway(client Doer) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("backend client required")
	}
	return &Gateway{client: client, now: time.Now}, nil
}

// FetchCart returns the authoritative cart. See normalizeCart for the lenient cases.
func (g *Gateway) FetchCart(ctx context.Context, cred auth.Credential) (Snapshot, error) {
	if cred.KnownInvalid(g.now()) {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart requires sign in")
	}
	resp, err := g.client.Do(ctx, backend.Request{
		Operation:  "cart.fetch",
		Method:     http.MethodGet,
		Path:       cartPath,
		Credential: cred,
	})
	if err != nil {
		return Snapshot{}, err
	}
	return normalizeCart(resp.Status, resp.Body)
}

// Upsert sends one mutation through the backend's cart endpoint.
func (g *Gateway) Upsert(ctx context.Context, cred auth.Credential, m Mutation) MutationResult {
	if cred.KnownInvalid(g.now()) {
		return failed(ReasonUnauthorized, "")
	}
	if strings.TrimSpace(m.ProductID) == "" {
		return failed(ReasonNotFound, "product id is required")
	}
	payload := upsertPayload{ProductID: m.ProductID, Action: string(m.Mode)}
	if m.Mode != ModeDelete {
		payload.Quantity = m.Quantity
	}
	resp, err := g.client.Do(ctx, backend.Request{
		Operation:  fmt.Sprintf("cart.%s", m.Mode),
		Method:     http.MethodPost,
		Path:       cartPath,
		Credential: cred,
		JSON:       payload,
	})
	if err != nil {
		if backend.IsTimeout(err) {
			return failed(ReasonTimeout, "")
		}
		return failed(ReasonUnknown, "")
	}
	return classifyMutation(resp)
}

// AddLine adds qty units of the product.
func (g *Gateway) AddLine(ctx context.Context, cred auth.Credential, productID string, qty int) MutationResult {
	if qty < 1 {
		qty = 1
	}
	return g.Upsert(ctx, cred, Mutation{ProductID: productID, Quantity: qty, Mode: ModeAdd})
}

// SetLineQuantity moves a line from its current quantity to the target using the
// backend's plus/minus actions. Reaching zero is a delete.
func (g *Gateway) SetLineQuantity(ctx context.Context, cred auth.Credential, productID string, current, target int) MutationResult {
	switch {
	case target < 1:
		return g.RemoveLine(ctx, cred, productID)
	case target == current:
		return okResult()
	case target > current:
		return g.Upsert(ctx, cred, Mutation{ProductID: productID, Quantity: target, Mode: ModeIncrement})
	default:
		return g.Upsert(ctx, cred, Mutation{ProductID: productID, Quantity: target, Mode: ModeDecrement})
	}
}

// RemoveLine deletes the product's line.
func (g *Gateway) RemoveLine(ctx context.Context, cred auth.Credential, productID string) MutationResult {
	return g.Upsert(ctx, cred, Mutation{ProductID: productID, Mode: ModeDelete})
}

type upsertPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
	Action    string `json:"action"`
}

var stockHints = []string{"stock", "available", "exceed", "insufficient", "quantity"}

func classifyMutation(resp *backend.Response) MutationResult {
	message := backend.Message(resp.Body)
	switch {
	case resp.OK():
		if rejectedInBody(resp.Body) {
			return classifyMessage(message)
		}
		return okResult()
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return failed(ReasonUnauthorized, message)
	case resp.Status == http.StatusNotFound || resp.Status == http.StatusGone:
		return failed(ReasonNotFound, message)
	case resp.Status == http.StatusConflict:
		return failed(ReasonStockExceeded, message)
	case resp.Status == http.StatusBadRequest || resp.Status == http.StatusUnprocessableEntity:
		return classifyMessage(message)
	}
	return failed(ReasonUnknown, message)
}

func classifyMessage(message string) MutationResult {
	lowered := strings.ToLower(message)
	for _, hint := range stockHints {
		if strings.Contains(lowered, hint) {
			return failed(ReasonStockExceeded, message)
		}
	}
	if strings.Contains(lowered, "not found") || strings.Contains(lowered, "no longer") {
		return failed(ReasonNotFound, message)
	}
	return failed(ReasonUnknown, message)
}

// rejectedInBody catches 2xx replies that still report failure via a success/status flag.
func rejectedInBody(body []byte) bool {
	var flags struct {
		Success *bool `json:"success"`
		Status  any   `json:"status"`
	}
	if err := json.Unmarshal(body, &flags); err != nil {
		return false
	}
	if flags.Success != nil && !*flags.Success {
		return true
	}
	if status, ok := flags.Status.(bool); ok && !status {
		return true
	}
	return false
}
