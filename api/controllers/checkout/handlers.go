package checkout

import (
	"net/http"

	checkoutdto "github.com/angelmondragon/storefront-backend/api/controllers/checkout/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// SessionStore holds the open checkout drafts.
type SessionStore interface {
	Begin(cred auth.Credential) (*checkout.Draft, error)
	Get(id string, cred auth.Credential) (*checkout.Draft, error)
	End(id string, cred auth.Credential)
}

// SessionBegin opens a checkout wizard.
func SessionBegin(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := sessions.Begin(middleware.CredentialFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSession(draft.View()))
	}
}

// SessionFetch returns the draft and what it still lacks.
func SessionFetch(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := loadDraft(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSession(draft.View()))
	}
}

// SessionEnd discards the draft.
func SessionEnd(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessions.End(id, middleware.CredentialFromContext(r.Context()))
		responses.WriteNoContent(w)
	}
}

// SetSeller records the pharmacy the order goes to.
func SetSeller(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload checkoutdto.SellerRequest
		updateDraft(w, r, sessions, logg, &payload, func(d *checkout.Draft) error {
			return d.SetSeller(payload.SellerID)
		})
	}
}

func SetShippingMethod(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return selectionSetter(sessions, logg, (*checkout.Draft).SetShippingMethod)
}

func SetShippingAddress(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return selectionSetter(sessions, logg, (*checkout.Draft).SetShippingAddress)
}

func SetPaymentMethod(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return selectionSetter(sessions, logg, (*checkout.Draft).SetPaymentMethod)
}

func selectionSetter(sessions SessionStore, logg *logger.Logger, set func(*checkout.Draft, checkout.Selection) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload checkoutdto.SelectionRequest
		updateDraft(w, r, sessions, logg, &payload, func(d *checkout.Draft) error {
			return set(d, checkout.Selection{
				ID:    validators.SanitizeString(payload.ID, 128),
				Label: validators.SanitizeString(payload.Label, 256),
			})
		})
	}
}

// ApplyCoupon validates the code with the backend and stores the discount on the draft.
func ApplyCoupon(sessions SessionStore, svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := loadDraft(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutdto.CouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cred := middleware.CredentialFromContext(r.Context())
		if _, err := svc.ApplyCoupon(r.Context(), cred, draft, validators.SanitizeString(payload.Code, 64)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSession(draft.View()))
	}
}

// RemoveCoupon drops the applied coupon.
func RemoveCoupon(sessions SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := loadDraft(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := draft.ClearCoupon(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSession(draft.View()))
	}
}

// ShippingMethods lists the delivery options the wizard offers.
func ShippingMethods(sessions SessionStore, svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := loadDraft(r, sessions); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		methods, err := svc.ShippingMethods(r.Context(), middleware.CredentialFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, methods)
	}
}

// Summary renders the display-only price breakdown.
func Summary(sessions SessionStore, svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := loadDraft(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), middleware.CredentialFromContext(r.Context()), draft)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Submit places the order.
func Submit(sessions SessionStore, svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := loadDraft(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		confirmation, err := svc.Submit(r.Context(), middleware.CredentialFromContext(r.Context()), draft)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, confirmation)
	}
}

func loadDraft(r *http.Request, sessions SessionStore) (*checkout.Draft, error) {
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout sessions unavailable")
	}
	id, err := validators.URLParam(r, "sessionId")
	if err != nil {
		return nil, err
	}
	return sessions.Get(id, middleware.CredentialFromContext(r.Context()))
}

func updateDraft(w http.ResponseWriter, r *http.Request, sessions SessionStore, logg *logger.Logger, payload any, apply func(*checkout.Draft) error) {
	draft, err := loadDraft(r, sessions)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if err := validators.DecodeJSONBody(r, payload); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if err := apply(draft); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, newSession(draft.View()))
}

func newSession(view checkout.DraftView) checkoutdto.Session {
	session := checkoutdto.Session{DraftView: view, Missing: []checkout.MissingField{}}
	if !view.Confirmed() {
		session.Missing = checkout.Missing(view)
	}
	return session
}
