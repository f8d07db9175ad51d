package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ruxstar-pod/internal/domain/order"
	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/pkg/opt"
)

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func strs(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

// imageURL prefixes relative image paths with base.
func imageURL(base, path string) string {
	if base == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
	e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
	e.Field("image", func(e *jx.Encoder) { e.Str(imageURL(h.imageBaseURL, p.Image)) })
	e.Field("base_price", func(e *jx.Encoder) { money(e, p.BasePrice) })
	e.Field("quantity_slabs", func(e *jx.Encoder) {
		slabs, ok := p.QuantitySlabs.Get()
		if !ok {
			e.Null()
			return
		}
		e.ArrStart()
		for _, s := range slabs {
			e.ObjStart()
			e.Field("min", func(e *jx.Encoder) { e.Int(s.Min) })
			e.Field("max", func(e *jx.Encoder) { e.Int(s.Max) })
			e.Field("price_per_unit", func(e *jx.Encoder) { money(e, s.PricePerUnit) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("turnaround_options", func(e *jx.Encoder) {
		options, ok := p.TurnaroundOptions.Get()
		if !ok {
			e.Null()
			return
		}
		e.ArrStart()
		for _, t := range options {
			encodeTurnaround(e, t)
		}
		e.ArrEnd()
	})
	e.Field("print_types", func(e *jx.Encoder) { strs(e, p.SupportedPrintTypes) })
	e.Field("sizes", func(e *jx.Encoder) { strs(e, p.Sizes) })
	e.Field("colors", func(e *jx.Encoder) { strs(e, p.Colors) })
	e.Field("placements", func(e *jx.Encoder) { strs(e, product.Placements) })
	e.ObjEnd()
}

func encodeTurnaround(e *jx.Encoder, t pricing.Turnaround) {
	e.ObjStart()
	e.Field("label", func(e *jx.Encoder) { e.Str(t.Label) })
	e.Field("days", func(e *jx.Encoder) { e.Int(t.Days) })
	e.Field("price_multiplier", func(e *jx.Encoder) { e.Num(jx.Num(t.PriceMultiplier.String())) })
	e.ObjEnd()
}

func encodePricing(e *jx.Encoder, r pricing.Result) {
	e.ObjStart()
	e.Field("unit_price", func(e *jx.Encoder) { money(e, r.UnitPrice) })
	e.Field("subtotal", func(e *jx.Encoder) { money(e, r.Subtotal) })
	e.Field("discount_percent", func(e *jx.Encoder) { e.Num(jx.Num(r.DiscountPercent.String())) })
	e.Field("discount", func(e *jx.Encoder) { money(e, r.Discount) })
	e.Field("total", func(e *jx.Encoder) { money(e, r.Total) })
	e.Field("turnaround", func(e *jx.Encoder) {
		if t, ok := r.Turnaround.Get(); ok {
			encodeTurnaround(e, t)
			return
		}
		e.Null()
	})
	e.Field("policy", func(e *jx.Encoder) { e.Str(r.Policy) })
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("vendor_id", func(e *jx.Encoder) { e.Str(o.VendorID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
	e.Field("next_action", func(e *jx.Encoder) {
		if a := o.Status.Action(); a != "" {
			e.Str(a)
			return
		}
		e.Null()
	})
	e.Field("customer", func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("name", func(e *jx.Encoder) { e.Str(o.Customer.Name) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(o.Customer.Phone) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
		e.ObjEnd()
	})
	e.Field("notes", func(e *jx.Encoder) { e.Str(o.Notes) })
	e.Field("file_url", func(e *jx.Encoder) { e.Str(o.FileURL) })
	e.Field("total_price", func(e *jx.Encoder) { money(e, o.TotalPrice) })
	e.Field("created_at", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
	e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, o.UpdatedAt) })
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for _, it := range o.Items {
			e.ObjStart()
			e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
			e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
			e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
			e.Field("size", func(e *jx.Encoder) { e.Str(it.Size) })
			e.Field("color", func(e *jx.Encoder) { e.Str(it.Color) })
			e.Field("print_type", func(e *jx.Encoder) { e.Str(it.PrintType) })
			e.Field("placement", func(e *jx.Encoder) { e.Str(it.Placement) })
			e.Field("turnaround", func(e *jx.Encoder) { e.Str(it.Turnaround) })
			e.Field("unit_price", func(e *jx.Encoder) { money(e, it.UnitPrice) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("timeline", func(e *jx.Encoder) {
		e.ArrStart()
		for _, t := range o.Timeline {
			e.ObjStart()
			e.Field("status", func(e *jx.Encoder) { e.Str(t.Status.String()) })
			e.Field("at", func(e *jx.Encoder) { timestamp(e, t.At) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.ObjEnd()
}

// quoteRequest is the body of POST /api/products/{id}/quote.
type quoteRequest struct {
	Quantity   int
	Turnaround string
}

func (q *quoteRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "quantity":
			q.Quantity, err = d.Int()
		case "turnaround":
			q.Turnaround, err = optStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

func decodePlaceOrder(d *jx.Decoder) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			req.ProductID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		case "size":
			req.Size, err = optStr(d)
		case "color":
			req.Color, err = optStr(d)
		case "print_type":
			req.PrintType, err = optStr(d)
		case "placement":
			req.Placement, err = optStr(d)
		case "turnaround":
			req.Turnaround, err = optStr(d)
		case "notes":
			req.Notes, err = optStr(d)
		case "customer":
			err = decodeCustomer(d, &req.Customer)
		case "design":
			var f opt.Opt[order.DesignFile]
			if f, err = decodeDesign(d); err == nil {
				if v, ok := f.Get(); ok {
					req.Design = &v
				}
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return req, err
}

func decodeCustomer(d *jx.Decoder, c *order.Customer) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			c.Name, err = optStr(d)
		case "phone":
			c.Phone, err = optStr(d)
		case "email":
			c.Email, err = optStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// decodeDesign reads {"name","content_type","data"} with data in base64.
func decodeDesign(d *jx.Decoder) (opt.Opt[order.DesignFile], error) {
	if d.Next() == jx.Null {
		return opt.None[order.DesignFile](), d.Null()
	}
	var f order.DesignFile
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			f.Name, err = optStr(d)
		case "content_type":
			f.ContentType, err = optStr(d)
		case "data":
			f.Data, err = d.Base64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return opt.New(f), err
}

// optStr reads a string, treating null as empty.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
