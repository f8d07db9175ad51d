package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Tier grants Percent off the subtotal once the quantity reaches MinQuantity.
type Tier struct {
	MinQuantity int
	Percent     decimal.Decimal
}

// Policy is a named volume discount table.
type Policy struct {
	Name  string
	Tiers []Tier
}

// Percent returns the discount percentage of the highest tier reached by
// quantity, or zero when no tier applies.
func (p Policy) Percent(quantity int) decimal.Decimal {
	best := -1
	percent := decimal.Zero
	for _, t := range p.Tiers {
		if quantity >= t.MinQuantity && t.MinQuantity > best {
			best = t.MinQuantity
			percent = t.Percent
		}
	}
	return percent
}

var (
	// VolumeV1 is the coarse table: 100+ units 10%, 50+ units 5%.
	VolumeV1 = Policy{
		Name: "volume-v1",
		Tiers: []Tier{
			{MinQuantity: 100, Percent: decimal.NewFromInt(10)},
			{MinQuantity: 50, Percent: decimal.NewFromInt(5)},
		},
	}

	// VolumeV2 is the table the order configurator ships with:
	// 51+ units 20%, 11+ units 10%, 5+ units 5%.
	VolumeV2 = Policy{
		Name: "volume-v2",
		Tiers: []Tier{
			{MinQuantity: 51, Percent: decimal.NewFromInt(20)},
			{MinQuantity: 11, Percent: decimal.NewFromInt(10)},
			{MinQuantity: 5, Percent: decimal.NewFromInt(5)},
		},
	}

	// NoDiscount never discounts.
	NoDiscount = Policy{Name: "none"}

	// DefaultPolicy is applied when no policy is configured.
	DefaultPolicy = VolumeV2
)

// ErrUnknownPolicy is returned by PolicyByName for unregistered names.
var ErrUnknownPolicy = errors.New("unknown pricing policy")

// PolicyByName looks up a built-in policy. An empty name yields DefaultPolicy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "":
		return DefaultPolicy, nil
	case VolumeV1.Name:
		return VolumeV1, nil
	case VolumeV2.Name:
		return VolumeV2, nil
	case NoDiscount.Name:
		return NoDiscount, nil
	default:
		return Policy{}, errors.Wrapf(ErrUnknownPolicy, "%q", name)
	}
}
