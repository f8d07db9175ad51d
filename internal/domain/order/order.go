package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a customer print order owned by exactly one vendor.
type Order struct {
	ID         string
	VendorID   string
	Customer   Customer
	Notes      string
	FileURL    string
	TotalPrice decimal.Decimal
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Items      []Item
	Timeline   []TimelineEntry
}

// Customer holds the contact details captured with an order.
type Customer struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

// Item is one configured product line of an order.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	Size        string
	Color       string
	PrintType   string
	Placement   string
	Turnaround  string
	UnitPrice   decimal.Decimal
}

// TimelineEntry records a status the order entered and when. Entries are
// never modified once written.
type TimelineEntry struct {
	ID     string
	Status Status
	At     time.Time
}

// LatestStatus returns the status of the most recent timeline entry.
func (o *Order) LatestStatus() (Status, bool) {
	if len(o.Timeline) == 0 {
		return 0, false
	}
	latest := o.Timeline[0]
	for _, e := range o.Timeline[1:] {
		if !e.At.Before(latest.At) {
			latest = e
		}
	}
	return latest.Status, true
}

// Transition describes a single status change to persist.
type Transition struct {
	OrderID  string
	VendorID string
	From     Status
	Entry    TimelineEntry
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order, its items and its timeline atomically.
	Create(ctx context.Context, o *Order) error
	// GetByID returns the order with items and timeline, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListByVendor returns the vendor's orders, newest first.
	ListByVendor(ctx context.Context, vendorID string) ([]Order, error)
	// Transition moves the order from t.From to t.Entry.Status and appends
	// t.Entry to the timeline in one atomic write. It returns
	// ErrStatusConflict when the stored status is no longer t.From.
	Transition(ctx context.Context, t Transition) error
	// SetStatus replaces the stored status without touching the timeline,
	// only if it still equals from; otherwise it returns ErrStatusConflict.
	// Only used to repair an order whose status drifted from its timeline.
	SetStatus(ctx context.Context, orderID string, from, to Status, at time.Time) error
}

// DesignFile is an uploaded artwork file.
type DesignFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader stores design files and returns a reference URL.
type Uploader interface {
	Upload(ctx context.Context, ownerID string, f DesignFile) (string, error)
}

// Notifier receives order lifecycle events for presentation to people.
type Notifier interface {
	// OrderCreated is called once after an order is persisted.
	OrderCreated(ctx context.Context, o *Order) error
	// OrderReady is called once per transition into StatusReady.
	OrderReady(ctx context.Context, o *Order) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(context.Context, *Order) error { return nil }
func (NopNotifier) OrderReady(context.Context, *Order) error   { return nil }
