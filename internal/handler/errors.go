package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ruxstar-pod/internal/domain/auth"
	"github.com/xenking/ruxstar-pod/internal/domain/order"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/internal/domain/vendor"
	"github.com/xenking/ruxstar-pod/pkg/httpmiddleware"
)

const internalMessage = "something went wrong, please try again"

// fail maps a domain error to its HTTP response. Unknown errors are logged
// and answered with a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *order.ValidationError
		productErr    *order.ProductNotFoundError
		terminalErr   *order.TerminalStateError
		tooLarge      *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validationErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, validationErr.Error())
	case errors.As(err, &productErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, productErr.Error())
	case errors.As(err, &terminalErr):
		httpmiddleware.WriteError(w, http.StatusConflict,
			"order is completed, no further status changes are possible")
	case errors.Is(err, order.ErrStatusConflict):
		httpmiddleware.WriteError(w, http.StatusConflict,
			"order status changed, reload and try again")
	case errors.Is(err, auth.ErrNoSession):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, order.ErrNotOwner):
		httpmiddleware.WriteError(w, http.StatusForbidden, "order belongs to another vendor")
	case errors.Is(err, order.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, product.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrFileNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, vendor.ErrNoneAvailable):
		httpmiddleware.WriteError(w, http.StatusServiceUnavailable,
			"no vendor is accepting orders right now")
	case errors.As(err, &tooLarge):
		httpmiddleware.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httpmiddleware.WriteError(w, http.StatusInternalServerError, internalMessage)
	}
}

// decode reads the request body, bounded by the configured limit, into a
// value with a jx Decode method.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := fn(jx.Decode(body, 4096)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, err)
			return false
		}
		httpmiddleware.WriteError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}
