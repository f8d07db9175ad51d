// Package pricing computes print order prices from a product's price sheet,
// the requested quantity, and the selected turnaround.
package pricing

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/ruxstar-pod/pkg/opt"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Slab is a quantity bracket with its own per-unit price. Both bounds are
// inclusive.
type Slab struct {
	Min          int             `json:"min"`
	Max          int             `json:"max"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// Contains reports whether quantity falls within the slab.
func (s Slab) Contains(quantity int) bool {
	return s.Min <= quantity && quantity <= s.Max
}

// Turnaround is a delivery-speed option. A multiplier of 1.0 is standard
// turnaround with no surcharge.
type Turnaround struct {
	Label           string          `json:"label"`
	Days            int             `json:"days"`
	PriceMultiplier decimal.Decimal `json:"price_multiplier"`
}

// Sheet is the price structure of a product.
type Sheet struct {
	BasePrice decimal.Decimal
	Slabs     opt.Opt[[]Slab]
}

// Result is the price breakdown for one configured line.
type Result struct {
	UnitPrice       decimal.Decimal
	Subtotal        decimal.Decimal
	DiscountPercent decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	Turnaround      opt.Opt[Turnaround]
	Policy          string
}

// Engine prices order lines under a volume discount policy.
type Engine struct {
	policy Policy
}

// NewEngine returns an Engine applying the given discount policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the discount policy the engine applies.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Compute prices quantity units of a product. The quantity must already be
// clamped to the accepted range; Compute does not validate it. An unset
// turnaround is standard turnaround.
func (e *Engine) Compute(sheet Sheet, quantity int, turnaround opt.Opt[Turnaround]) Result {
	base := BaseUnitPrice(sheet, quantity)

	multiplier := one
	if t, ok := turnaround.Get(); ok {
		multiplier = t.PriceMultiplier
	}

	unitPrice := base.Mul(multiplier).Round(2)
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)

	percent := e.policy.Percent(quantity)
	discount := subtotal.Mul(percent).Div(hundred).Round(2)

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Result{
		UnitPrice:       unitPrice,
		Subtotal:        subtotal,
		DiscountPercent: percent,
		Discount:        discount,
		Total:           total.Round(2),
		Turnaround:      turnaround,
		Policy:          e.policy.Name,
	}
}

// BaseUnitPrice returns the per-unit price of the first slab, in ascending
// Min order, that contains quantity. It falls back to the sheet's base price
// when slabs are absent, empty, or none matches.
func BaseUnitPrice(sheet Sheet, quantity int) decimal.Decimal {
	slabs, ok := sheet.Slabs.Get()
	if !ok || len(slabs) == 0 {
		return sheet.BasePrice
	}

	sorted := slices.Clone(slabs)
	slices.SortStableFunc(sorted, func(a, b Slab) int {
		return cmp.Compare(a.Min, b.Min)
	})
	for _, s := range sorted {
		if s.Contains(quantity) {
			return s.PricePerUnit
		}
	}
	return sheet.BasePrice
}

// Clamp bounds quantity to [lo, hi].
func Clamp(quantity, lo, hi int) int {
	return min(max(quantity, lo), hi)
}
