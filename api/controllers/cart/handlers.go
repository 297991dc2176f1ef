package cart

import (
	"context"
	"net/http"

	cartdto "github.com/angelmondragon/storefront-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// SnapshotReader serves the cached cart.
type SnapshotReader interface {
	Get(ctx context.Context, cred auth.Credential) (cart.Snapshot, error)
}

// LineMutator applies serialised line mutations.
type LineMutator interface {
	Add(ctx context.Context, req cart.Request) cart.Outcome
	Increment(ctx context.Context, req cart.Request) cart.Outcome
	Decrement(ctx context.Context, req cart.Request) cart.Outcome
	Remove(ctx context.Context, req cart.Request) cart.Outcome
}

type lineStates interface {
	LineState(cred auth.Credential, productID string) cart.LineState
}

// CartFetch returns the shopper's cart from the shared cache.
func CartFetch(cache SnapshotReader, mutator LineMutator, logg *logger.Logger) http.HandlerFunc {
	states, _ := mutator.(lineStates)
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart cache unavailable"))
			return
		}

		cred := middleware.CredentialFromContext(r.Context())
		snapshot, err := cache.Get(r.Context(), cred)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartView(snapshot, states, cred))
	}
}

// CartAddItem adds a product to the cart.
func CartAddItem(mutator LineMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart coordinator unavailable"))
			return
		}

		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req := cart.Request{
			Credential: middleware.CredentialFromContext(r.Context()),
			ProductID:  payload.ProductID,
			Quantity:   payload.Quantity,
			ReturnPath: validators.ReturnPath(r),
		}
		writeOutcome(w, mutator.Add(r.Context(), req), req.Credential)
	}
}

// CartIncrementItem raises a line's quantity by one.
func CartIncrementItem(mutator LineMutator, logg *logger.Logger) http.HandlerFunc {
	return lineHandler(logg, mutator, func(m LineMutator) func(context.Context, cart.Request) cart.Outcome {
		return m.Increment
	})
}

// CartDecrementItem lowers a line's quantity by one, removing it at zero.
func CartDecrementItem(mutator LineMutator, logg *logger.Logger) http.HandlerFunc {
	return lineHandler(logg, mutator, func(m LineMutator) func(context.Context, cart.Request) cart.Outcome {
		return m.Decrement
	})
}

// CartRemoveItem deletes a line.
func CartRemoveItem(mutator LineMutator, logg *logger.Logger) http.HandlerFunc {
	return lineHandler(logg, mutator, func(m LineMutator) func(context.Context, cart.Request) cart.Outcome {
		return m.Remove
	})
}

func lineHandler(logg *logger.Logger, mutator LineMutator, pick func(LineMutator) func(context.Context, cart.Request) cart.Outcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart coordinator unavailable"))
			return
		}

		productID, err := validators.URLParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req := cart.Request{
			Credential: middleware.CredentialFromContext(r.Context()),
			ProductID:  productID,
			ReturnPath: validators.ReturnPath(r),
		}
		writeOutcome(w, pick(mutator)(r.Context(), req), req.Credential)
	}
}

func writeOutcome(w http.ResponseWriter, out cart.Outcome, cred auth.Credential) {
	responses.WriteSuccessStatus(w, outcomeStatus(out), newMutationResponse(out, cred))
}
