// Package api exposes the pricing engine over HTTP. Handlers are thin: they
// decode the request, delegate to the domain, and map domain errors onto the
// status codes the storefront and admin dashboard expect.
package api

import (
	"net/http"
	"time"

	"github.com/velvette/pricing-engine/internal/domain/discount"
	"github.com/velvette/pricing-engine/internal/domain/product"
)

// Handler serves the storefront catalog reads and the admin discount API.
type Handler struct {
	products  product.Repository
	discounts discount.Repository
	svc       *discount.Service

	// now is swappable for tests; eligibility is always evaluated at the
	// moment of the read.
	now func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, discounts discount.Repository, svc *discount.Service) *Handler {
	return &Handler{
		products:  products,
		discounts: discounts,
		svc:       svc,
		now:       time.Now,
	}
}

// Routes registers all API endpoints on mux. Admin routes are wrapped with
// the given auth middleware; storefront reads are public.
func (h *Handler) Routes(mux *http.ServeMux, admin func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/discounted", h.ListDiscounted)
	mux.HandleFunc("GET /api/products/featured", h.ListFeatured)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("GET /api/categories", h.ListCategories)
	mux.HandleFunc("POST /api/cart/price", h.PriceCart)

	mux.Handle("GET /api/admin/discounts", admin(http.HandlerFunc(h.AdminListDiscounts)))
	mux.Handle("POST /api/admin/discounts", admin(http.HandlerFunc(h.CreateDiscount)))
	mux.Handle("PUT /api/admin/discounts/{id}", admin(http.HandlerFunc(h.UpdateDiscount)))
	mux.Handle("DELETE /api/admin/discounts/{id}", admin(http.HandlerFunc(h.DeleteDiscount)))
	mux.Handle("POST /api/admin/discounts/preview", admin(http.HandlerFunc(h.PreviewDiscount)))
}
