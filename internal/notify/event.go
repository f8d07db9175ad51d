// Package notify delivers order lifecycle events to customers.
package notify

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ruxstar-pod/internal/domain/order"
)

// Event kinds.
const (
	KindCreated = "order.created"
	KindReady   = "order.ready"
)

// Event is the wire form of an order lifecycle notification.
type Event struct {
	Kind          string
	OrderID       string
	VendorID      string
	Status        string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Total         decimal.Decimal
	At            time.Time
}

// NewEvent snapshots the customer-facing fields of o.
func NewEvent(kind string, o *order.Order) Event {
	return Event{
		Kind:          kind,
		OrderID:       o.ID,
		VendorID:      o.VendorID,
		Status:        o.Status.String(),
		CustomerName:  o.Customer.Name,
		CustomerPhone: o.Customer.Phone,
		CustomerEmail: o.Customer.Email,
		Total:         o.TotalPrice,
		At:            o.UpdatedAt,
	}
}

// Message renders the text sent to the customer.
func (e Event) Message() string {
	switch e.Kind {
	case KindReady:
		return "Hi " + e.CustomerName + ", your order " + e.OrderID + " is ready for pickup."
	default:
		return "Hi " + e.CustomerName + ", we received your order " + e.OrderID +
			" (total " + e.Total.StringFixed(2) + ")."
	}
}

// Encode writes e as a JSON object.
func (e Event) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.Field("kind", func(enc *jx.Encoder) { enc.Str(e.Kind) })
	enc.Field("order_id", func(enc *jx.Encoder) { enc.Str(e.OrderID) })
	enc.Field("vendor_id", func(enc *jx.Encoder) { enc.Str(e.VendorID) })
	enc.Field("status", func(enc *jx.Encoder) { enc.Str(e.Status) })
	enc.Field("customer", func(enc *jx.Encoder) {
		enc.ObjStart()
		enc.Field("name", func(enc *jx.Encoder) { enc.Str(e.CustomerName) })
		if e.CustomerPhone != "" {
			enc.Field("phone", func(enc *jx.Encoder) { enc.Str(e.CustomerPhone) })
		}
		if e.CustomerEmail != "" {
			enc.Field("email", func(enc *jx.Encoder) { enc.Str(e.CustomerEmail) })
		}
		enc.ObjEnd()
	})
	enc.Field("total", func(enc *jx.Encoder) { enc.Str(e.Total.StringFixed(2)) })
	enc.Field("at", func(enc *jx.Encoder) { enc.Str(e.At.UTC().Format(time.RFC3339Nano)) })
	enc.ObjEnd()
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	var enc jx.Encoder
	e.Encode(&enc)
	return enc.Bytes(), nil
}

// Decode reads e from a JSON object. Unknown fields are skipped.
func (e *Event) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "kind":
			e.Kind, err = d.Str()
		case "order_id":
			e.OrderID, err = d.Str()
		case "vendor_id":
			e.VendorID, err = d.Str()
		case "status":
			e.Status, err = d.Str()
		case "customer":
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "name":
					e.CustomerName, err = d.Str()
				case "phone":
					e.CustomerPhone, err = d.Str()
				case "email":
					e.CustomerEmail, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "total":
			var s string
			if s, err = d.Str(); err == nil {
				e.Total, err = decimal.NewFromString(s)
			}
		case "at":
			var s string
			if s, err = d.Str(); err == nil {
				e.At, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	return e.Decode(jx.DecodeBytes(data))
}
