package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrNotOwner is returned when a vendor acts on another vendor's order.
	ErrNotOwner = errors.New("order belongs to another vendor")
	// ErrStatusConflict is returned when the order's status changed between
	// read and write, e.g. on a double-submitted advance.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrFileNotFound is returned when a design file does not exist.
	ErrFileNotFound = errors.New("design file not found")
)

// ValidationError reports a missing or invalid order configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ProductNotFoundError indicates the configured product does not exist or is
// no longer sold.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// TerminalStateError is returned when advancing an order that has no
// successor status.
type TerminalStateError struct {
	OrderID string
	Status  Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("order %s is %s: no further status changes are possible", e.OrderID, e.Status)
}
