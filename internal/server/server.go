// Package server assembles the HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bookstore/internal/auth"
	"bookstore/internal/bookmark"
	"bookstore/internal/cart"
	"bookstore/internal/catalog"
	"bookstore/internal/membership"
	"bookstore/internal/ordering"
	"bookstore/internal/review"
	"bookstore/internal/web"
)

const requestTimeout = 30 * time.Second

// Handlers are the route handlers and collaborators the router is built from.
type Handlers struct {
	Tokens    auth.Verifier
	Catalog   *catalog.Handler
	Members   *membership.Handler
	Cart      *cart.Handler
	Orders    *ordering.Handler
	Reviews   *review.Handler
	Bookmarks *bookmark.Handler
	// Health reports whether dependencies are reachable. Nil means always healthy.
	Health func(context.Context) error
}

// NewRouter maps the API routes onto h.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if h.Health != nil {
			if err := h.Health(r.Context()); err != nil {
				web.WriteError(w, http.StatusServiceUnavailable, "unhealthy")
				return
			}
		}
		web.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/auth/register", h.Members.Register)
	r.Post("/auth/login", h.Members.Login)

	r.Get("/books", h.Catalog.ListBooks)
	r.Get("/books/search", h.Catalog.SearchBooks)
	r.Get("/books/{id}", h.Catalog.GetBook)
	r.Get("/books/{id}/reviews", h.Reviews.List)
	r.Get("/books/{id}/reviews/stats", h.Reviews.Stats)

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(h.Tokens))

		r.Get("/auth/me", h.Members.Me)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.Clear)
			r.Post("/items", h.Cart.AddItem)
			r.Patch("/items/{id}", h.Cart.UpdateItem)
			r.Delete("/items/{id}", h.Cart.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Orders.PlaceOrder)
			r.Get("/", h.Orders.ListMyOrders)
			r.Post("/{id}/cancel", h.Orders.CancelOrder)
		})

		r.Put("/books/{id}/review", h.Reviews.Submit)
		r.Delete("/books/{id}/review", h.Reviews.Delete)

		r.Get("/bookmarks", h.Bookmarks.List)
		r.Put("/bookmarks/{bookID}", h.Bookmarks.Add)
		r.Delete("/bookmarks/{bookID}", h.Bookmarks.Remove)

		r.Route("/staff", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
			r.Get("/orders/{code}", h.Orders.VerifyClaimCode)
			r.Patch("/orders/{code}/status", h.Orders.UpdateStatusByClaimCode)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))

			r.Post("/books", h.Catalog.CreateBook)
			r.Put("/books/{id}", h.Catalog.UpdateBook)
			r.Delete("/books/{id}", h.Catalog.RemoveBook)
			r.Put("/books/{id}/sale", h.Catalog.SetSale)
			r.Delete("/books/{id}/sale", h.Catalog.ClearSale)
			r.Patch("/books/{id}/stock", h.Catalog.AdjustStock)

			r.Get("/orders", h.Orders.ListOrders)
			r.Get("/orders/{id}", h.Orders.GetOrder)
			r.Get("/orders/{id}/history", h.Orders.History)
			r.Patch("/orders/{id}/status", h.Orders.UpdateStatus)

			r.Get("/users", h.Members.ListUsers)
			r.Patch("/users/{id}/role", h.Members.UpdateRole)
		})
	})

	return r
}

// New returns an http.Server for handler with conservative timeouts.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
