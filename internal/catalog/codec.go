// Package catalog reads product catalog feeds.
//
// A feed entry is a JSON object:
//
//	{
//	  "id": "prod-1", "name": "Classic Cotton Tee", "category": "T-Shirts",
//	  "image": "tee.png", "base_price": "12",
//	  "quantity_slabs": [{"min": 1, "max": 10, "price_per_unit": "15"}],
//	  "turnaround_options": [{"label": "24 Hours", "days": 1, "price_multiplier": "1.25"}],
//	  "print_types": ["DTF"], "sizes": ["M"], "colors": ["Black"],
//	  "active": true
//	}
//
// Prices may be JSON strings or numbers. A null or missing quantity_slabs or
// turnaround_options means the product has none; an empty array is kept as
// an empty list. Missing active defaults to true.
package catalog

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/pkg/opt"
)

// ErrInvalid is wrapped by errors about well-formed JSON that is not a valid
// product.
var ErrInvalid = errors.New("invalid product")

// DecodeProduct reads one product object from d.
func DecodeProduct(d *jx.Decoder) (product.Product, error) {
	p := product.Product{Active: true}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "base_price":
			p.BasePrice, err = decodeDecimal(d)
		case "quantity_slabs":
			p.QuantitySlabs, err = decodeOptArr(d, decodeSlab)
		case "turnaround_options":
			p.TurnaroundOptions, err = decodeOptArr(d, decodeTurnaround)
		case "print_types":
			p.SupportedPrintTypes, err = decodeStrs(d)
		case "sizes":
			p.Sizes, err = decodeStrs(d)
		case "colors":
			p.Colors, err = decodeStrs(d)
		case "active":
			p.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return product.Product{}, err
	}
	if err := Validate(p); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

// DecodeList reads a JSON array of products.
func DecodeList(d *jx.Decoder) ([]product.Product, error) {
	var out []product.Product
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := DecodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// Validate checks the invariants every stored product must hold.
func Validate(p product.Product) error {
	switch {
	case p.ID == "":
		return errors.Wrap(ErrInvalid, "missing id")
	case p.Name == "":
		return errors.Wrapf(ErrInvalid, "%s: missing name", p.ID)
	case p.BasePrice.IsNegative():
		return errors.Wrapf(ErrInvalid, "%s: negative base price", p.ID)
	}
	slabs, _ := p.QuantitySlabs.Get()
	for _, s := range slabs {
		if s.Min < 1 || s.Max < s.Min || s.PricePerUnit.IsNegative() {
			return errors.Wrapf(ErrInvalid, "%s: bad slab %d-%d", p.ID, s.Min, s.Max)
		}
	}
	turnarounds, _ := p.TurnaroundOptions.Get()
	for _, t := range turnarounds {
		if t.Label == "" || !t.PriceMultiplier.IsPositive() {
			return errors.Wrapf(ErrInvalid, "%s: bad turnaround %q", p.ID, t.Label)
		}
	}
	return nil
}

func decodeSlab(d *jx.Decoder) (pricing.Slab, error) {
	var s pricing.Slab
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "min":
			s.Min, err = d.Int()
		case "max":
			s.Max, err = d.Int()
		case "price_per_unit":
			s.PricePerUnit, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return s, err
}

func decodeTurnaround(d *jx.Decoder) (pricing.Turnaround, error) {
	t := pricing.Turnaround{PriceMultiplier: decimal.NewFromInt(1)}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "label":
			t.Label, err = d.Str()
		case "days":
			t.Days, err = d.Int()
		case "price_multiplier":
			t.PriceMultiplier, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return t, err
}

func decodeOptArr[T any](d *jx.Decoder, item func(*jx.Decoder) (T, error)) (opt.Opt[[]T], error) {
	if d.Next() == jx.Null {
		return opt.None[[]T](), d.Null()
	}
	out := []T{}
	err := d.Arr(func(d *jx.Decoder) error {
		v, err := item(d)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return opt.None[[]T](), err
	}
	return opt.New(out), nil
}

func decodeStrs(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

// decodeDecimal accepts "12.50" as well as 12.50.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("expected decimal, got %s", d.Next())
	}
}
