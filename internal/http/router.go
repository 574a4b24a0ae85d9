package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func NewRouter(cfg RouterConfig, cart *CartHandler, checkout *CheckoutHandler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(log))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware)

		// long lived event streams stay outside the request timeout
		r.Get("/cart/events", cart.Events)
		r.Get("/checkout/events", checkout.Events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Use(middleware.Compress(5))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cart.GetCart)
				r.Delete("/", cart.ClearCart)
				r.Post("/items", cart.AddItem)
				r.Patch("/items/{item_id}", cart.UpdateQuantity)
				r.Patch("/items/{item_id}/customization", cart.UpdateCustomization)
				r.Delete("/items/{item_id}", cart.RemoveItem)
				r.Post("/visibility", cart.SetVisibility)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", checkout.GetCheckout)
				r.Delete("/", checkout.ResetCheckout)
				r.Put("/step", checkout.SetStep)
				r.Put("/shipping", checkout.UpdateShipping)
				r.Put("/billing", checkout.UpdateBilling)
				r.Put("/payment", checkout.UpdatePayment)
				r.Put("/notes", checkout.UpdateNotes)
				r.Get("/steps/{step}", checkout.GetStep)
				r.Get("/summary", checkout.GetSummary)
				r.Post("/orders", checkout.PlaceOrder)
			})
		})
	})

	return r
}
