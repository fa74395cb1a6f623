package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/bookstore/internal/middleware"
	"github.com/mmeshcher/bookstore/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware книжного магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)
		r.Get("/books", h.ListBooks)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/orders", h.Checkout)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{orderId}", h.GetOrder)

			r.Get("/notifications", h.GetNotifications)
			r.Put("/notifications/{id}/read", h.MarkNotificationRead)
			r.Get("/discounts", h.GetDiscounts)

			r.Route("/staff", h.staffRoutes)

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleAdmin))

				r.Post("/books", h.CreateBook)
				r.Put("/users/{id}/role", h.SetUserRole)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Route("/staff", h.staffRoutes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func (h *Handler) staffRoutes(r chi.Router) {
	r.Use(custommiddleware.RequireRole(model.RoleStaff, model.RoleAdmin))

	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{orderId}/history", h.GetOrderHistory)
	r.Put("/orders/{orderId}/process", h.ProcessOrder)
	r.Put("/orders/{orderId}/status", h.UpdateStatus)
}
