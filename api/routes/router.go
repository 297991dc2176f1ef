package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/checkout"
	returnscontrollers "github.com/angelmondragon/storefront-backend/api/controllers/returns"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/locale"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Store is the redis surface the router needs: readiness and idempotency records.
type Store interface {
	redis.Pinger
	redis.IdempotencyStore
}

// Cart groups the cart cache and the line coordinator.
type Cart struct {
	Cache       cartcontrollers.SnapshotReader
	Coordinator cartcontrollers.LineMutator
}

// Checkout groups the wizard sessions and the order service.
type Checkout struct {
	Sessions checkoutcontrollers.SessionStore
	Service  checkout.Service
}

// Returns groups the return drafts and the submission service.
type Returns struct {
	Drafts  returnscontrollers.DraftEditor
	Service returns.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store Store,
	gatherer prometheus.Gatherer,
	cartDeps Cart,
	checkoutDeps Checkout,
	returnsDeps Returns,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, store))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	idempotent := middleware.Idempotency(store, cfg.Idempotency.TTL, logg)
	limits := returnscontrollers.Limits{
		MaxImageBytes: cfg.Returns.MaxImageBytes(),
		MaxItems:      cfg.Returns.MaxUploadItems,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Locale(locale.NewNegotiator(cfg.Locale.Supported)),
			middleware.Credential(logg),
		)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(cartDeps.Cache, cartDeps.Coordinator, logg))
			r.Post("/items", cartcontrollers.CartAddItem(cartDeps.Coordinator, logg))
			r.Post("/items/{productId}/increment", cartcontrollers.CartIncrementItem(cartDeps.Coordinator, logg))
			r.Post("/items/{productId}/decrement", cartcontrollers.CartDecrementItem(cartDeps.Coordinator, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(cartDeps.Coordinator, logg))
		})

		r.Route("/checkout/sessions", func(r chi.Router) {
			sessions, svc := checkoutDeps.Sessions, checkoutDeps.Service
			r.Post("/", checkoutcontrollers.SessionBegin(sessions, logg))
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", checkoutcontrollers.SessionFetch(sessions, logg))
				r.Delete("/", checkoutcontrollers.SessionEnd(sessions, logg))
				r.Put("/seller", checkoutcontrollers.SetSeller(sessions, logg))
				r.Put("/shipping-method", checkoutcontrollers.SetShippingMethod(sessions, logg))
				r.Put("/shipping-address", checkoutcontrollers.SetShippingAddress(sessions, logg))
				r.Put("/payment-method", checkoutcontrollers.SetPaymentMethod(sessions, logg))
				r.Put("/coupon", checkoutcontrollers.ApplyCoupon(sessions, svc, logg))
				r.Delete("/coupon", checkoutcontrollers.RemoveCoupon(sessions, logg))
				r.Get("/shipping-methods", checkoutcontrollers.ShippingMethods(sessions, svc, logg))
				r.Get("/summary", checkoutcontrollers.Summary(sessions, svc, logg))
				r.With(idempotent).Post("/submit", checkoutcontrollers.Submit(sessions, svc, logg))
			})
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			drafts := returnsDeps.Drafts
			r.Get("/return-draft", returnscontrollers.DraftFetch(drafts, logg))
			r.Delete("/return-draft", returnscontrollers.DraftClear(drafts, logg))
			r.Post("/return-draft/items", returnscontrollers.DraftAddItem(drafts, logg))
			r.Patch("/return-draft/items/{productId}", returnscontrollers.DraftUpdateItem(drafts, logg))
			r.Delete("/return-draft/items/{productId}", returnscontrollers.DraftRemoveItem(drafts, logg))
			r.With(idempotent).Post("/returns", returnscontrollers.Submit(drafts, returnsDeps.Service, limits, logg))
		})
	})

	return r
}
