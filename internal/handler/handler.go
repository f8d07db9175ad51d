// Package handler exposes the storefront and vendor APIs over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/ruxstar-pod/internal/domain/order"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/pkg/httpmiddleware"
)

// DefaultMaxBodyBytes bounds request bodies, including inline design files.
const DefaultMaxBodyBytes = 10 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// MaxBodyBytes limits request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Files serves stored design files.
type Files interface {
	Get(ctx context.Context, id string) (*order.DesignFile, error)
}

// Handler serves the HTTP API, delegating to the order service and the
// product catalog.
type Handler struct {
	products product.Repository
	orders   *order.Service
	files    Files
	authn    *Authenticator

	imageBaseURL string
	maxBodyBytes int64
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	orders *order.Service,
	files Files,
	authn *Authenticator,
) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		products:     products,
		orders:       orders,
		files:        files,
		authn:        authn,
		imageBaseURL: cfg.ImageBaseURL,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Register mounts every API route on mux. Vendor routes require an API key.
func (h *Handler) Register(mux *http.ServeMux) {
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpmiddleware.Route(pattern, fn))
	}
	vendor := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpmiddleware.Route(pattern, h.authn.Require(fn)))
	}

	public("GET /api/products", h.ListProducts)
	public("GET /api/products/{id}", h.GetProduct)
	public("POST /api/products/{id}/quote", h.Quote)
	public("POST /api/orders", h.PlaceOrder)
	public("GET /api/files/{id}", h.GetFile)

	vendor("GET /api/vendor/orders", h.ListVendorOrders)
	vendor("GET /api/vendor/orders/{id}", h.GetVendorOrder)
	vendor("POST /api/vendor/orders/{id}/advance", h.AdvanceOrder)
	vendor("POST /api/vendor/orders/{id}/reconcile", h.ReconcileOrder)
}

// Routes returns a mux serving only the API routes.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
