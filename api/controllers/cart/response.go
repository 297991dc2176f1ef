package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/storefront-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

func newCartView(snapshot cart.Snapshot, states lineStates, cred auth.Credential) cartdto.CartView {
	lines := make([]cartdto.CartLine, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		state := cart.LineIdle
		if states != nil {
			state = states.LineState(cred, line.ProductID)
		}
		lines = append(lines, cartdto.CartLine{
			Line:     line,
			Subtotal: line.Subtotal().StringFixed(2),
			State:    state,
		})
	}
	return cartdto.CartView{
		Lines:         lines,
		LineCount:     snapshot.LineCount,
		TotalQuantity: snapshot.TotalQuantity,
		TotalPrice:    snapshot.TotalPrice.StringFixed(2),
		Currency:      snapshot.Currency,
		Empty:         snapshot.Empty(),
	}
}

func newMutationResponse(out cart.Outcome, cred auth.Credential) cartdto.MutationResponse {
	resp := cartdto.MutationResponse{Outcome: out}
	if out.Snapshot != nil {
		view := newCartView(*out.Snapshot, nil, cred)
		resp.Cart = &view
		resp.Outcome.Snapshot = nil
	}
	return resp
}

// outcomeStatus maps an outcome onto the HTTP status the storefront branches on.
// Capped increments are successes that carry a warning.
func outcomeStatus(out cart.Outcome) int {
	switch out.Status {
	case cart.StatusOK, cart.StatusCapped:
		return http.StatusOK
	case cart.StatusBusy:
		return http.StatusConflict
	}
	switch out.Failure {
	case cart.FailureRequiresAuth:
		return http.StatusUnauthorized
	case cart.FailureProductGone:
		return http.StatusNotFound
	}
	if out.Reason == cart.ReasonTimeout {
		return http.StatusGatewayTimeout
	}
	if out.Reason == cart.ReasonStockExceeded {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
