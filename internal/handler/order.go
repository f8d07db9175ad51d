package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/ruxstar-pod/internal/domain/auth"
	"github.com/xenking/ruxstar-pod/internal/domain/order"
)

// PlaceOrder validates, prices and stores a customer order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	if !h.decode(w, r, func(d *jx.Decoder) (err error) {
		req, err = decodePlaceOrder(d)
		return err
	}) {
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, result.Order) })
		e.Field("pricing", func(e *jx.Encoder) { encodePricing(e, result.Pricing) })
		e.ObjEnd()
	})
}

// GetFile streams a stored design file.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.files.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	if f.Name != "" {
		w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(f.Name))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

// ListVendorOrders returns the authenticated vendor's orders, newest first.
func (h *Handler) ListVendorOrders(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	orders, err := h.orders.ListForVendor(r.Context(), sess)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetVendorOrder returns one of the authenticated vendor's orders.
func (h *Handler) GetVendorOrder(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	o, err := h.orders.GetOrder(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// AdvanceOrder moves the order one step along the fulfilment sequence.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	o, err := h.orders.Advance(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ReconcileOrder repairs an order whose status drifted from its timeline.
func (h *Handler) ReconcileOrder(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	o, repaired, err := h.orders.Reconcile(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("repaired", func(e *jx.Encoder) { e.Bool(repaired) })
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
		e.ObjEnd()
	})
}
