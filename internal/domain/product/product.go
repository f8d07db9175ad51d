package product

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/pkg/opt"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Placements lists where a design can be printed on a garment.
var Placements = []string{"Front", "Back", "Left Sleeve", "Right Sleeve", "Full Body"}

// DefaultPlacement is used when an order does not name a placement.
const DefaultPlacement = "Front"

// Product is a printable catalog item.
type Product struct {
	ID                  string
	Name                string
	Category            string
	Image               string
	BasePrice           decimal.Decimal
	QuantitySlabs       opt.Opt[[]pricing.Slab]
	TurnaroundOptions   opt.Opt[[]pricing.Turnaround]
	SupportedPrintTypes []string
	Sizes               []string
	Colors              []string
	Active              bool
}

// PriceSheet returns the product's price structure for the pricing engine.
func (p Product) PriceSheet() pricing.Sheet {
	return pricing.Sheet{
		BasePrice: p.BasePrice,
		Slabs:     p.QuantitySlabs,
	}
}

// Turnaround finds the turnaround option with the given label.
func (p Product) Turnaround(label string) (pricing.Turnaround, bool) {
	options, _ := p.TurnaroundOptions.Get()
	for _, t := range options {
		if t.Label == label {
			return t, true
		}
	}
	return pricing.Turnaround{}, false
}

// HasSize reports whether size is offered.
func (p Product) HasSize(size string) bool { return slices.Contains(p.Sizes, size) }

// HasColor reports whether color is offered.
func (p Product) HasColor(color string) bool { return slices.Contains(p.Colors, color) }

// SupportsPrintType reports whether printType is offered.
func (p Product) SupportsPrintType(printType string) bool {
	return slices.Contains(p.SupportedPrintTypes, printType)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
