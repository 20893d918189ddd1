package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart           *CartHandler
	Variants       *VariantHandler
	Metrics        *metrics.ServerMetrics
	MetricsHandler http.Handler
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	if cfg.Logger != nil {
		r.Use(LoggingMiddleware(cfg.Logger))
	}
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Use(SessionMiddleware)

			r.Get("/", cfg.Cart.GetCart)
			r.Delete("/", cfg.Cart.ClearCart)
			r.Delete("/checked", cfg.Cart.ClearChecked)

			r.Post("/items", cfg.Cart.AddItem)
			r.Post("/items/quantity", cfg.Cart.ChangeQuantity)
			r.Put("/items/quantity", cfg.Cart.SetQuantity)
			r.Get("/items/{key}", cfg.Cart.GetItem)
			r.Delete("/items/{key}", cfg.Cart.RemoveItem)

			r.Put("/quantities", cfg.Cart.UpdateQuantities)
			r.Put("/checks", cfg.Cart.UpdateChecks)

			r.Post("/coupons", cfg.Cart.AddCoupon)
			r.Delete("/coupons", cfg.Cart.ClearCoupons)
			r.Delete("/coupons/{id}", cfg.Cart.RemoveCoupon)
		})

		r.Route("/products/{product_id}/variants", func(r chi.Router) {
			r.Get("/", cfg.Variants.List)
			r.Put("/", cfg.Variants.Sync)
			r.Post("/generate", cfg.Variants.Generate)
			r.Get("/main", cfg.Variants.GetMain)
			r.Put("/main", cfg.Variants.SaveMain)
		})
	})

	return r
}
