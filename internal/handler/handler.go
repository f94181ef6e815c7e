// Package handler implements the storefront HTTP API on top of the session
// registry and the checkout service.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/session"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// EventKeepAlive is the interval of keep-alive comments on cart event
	// streams. Defaults to 15 seconds.
	EventKeepAlive time.Duration
}

// Handler serves the cart, session and checkout endpoints.
type Handler struct {
	sessions  *session.Manager
	checkout  *checkout.Service
	keepAlive time.Duration
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, sessions *session.Manager, svc *checkout.Service) *Handler {
	if cfg.EventKeepAlive <= 0 {
		cfg.EventKeepAlive = 15 * time.Second
	}
	return &Handler{
		sessions:  sessions,
		checkout:  svc,
		keepAlive: cfg.EventKeepAlive,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/cities", h.ListCities)

	r.Group(func(r chi.Router) {
		r.Use(h.withSession)

		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{id}", h.UpdateItem)
			r.Delete("/items/{id}", h.RemoveItem)
			r.Get("/events", h.CartEvents)
		})

		r.Put("/api/session/token", h.SetToken)
		r.Delete("/api/session/token", h.DeleteToken)

		r.Route("/api/checkout", func(r chi.Router) {
			r.Post("/", h.BeginCheckout)
			r.Get("/", h.GetCheckout)
			r.Delete("/", h.CancelCheckout)
			r.Post("/buy-now", h.BuyNow)
			r.Put("/address", h.SetAddress)
			r.Put("/city", h.SelectCity)
			r.Post("/next", h.Next)
			r.Post("/back", h.Back)
			r.Put("/payment", h.SelectPayment)
			r.Post("/coupon", h.ApplyCoupon)
			r.Delete("/coupon", h.RemoveCoupon)
			r.Post("/submit", h.Submit)
			r.Post("/payment/retry", h.RetryPayment)
		})

		r.Get("/api/payments/{id}/status", h.PaymentStatus)
	})
}

// Routes returns a router serving only the API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, &apiError{Status: http.StatusNotFound, Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})
	h.Register(r)
	return r
}
