package order

import "github.com/go-faster/errors"

// Status is an order's fulfilment status. The zero value is not a valid
// status.
type Status uint8

// Statuses in fulfilment order.
const (
	StatusNew Status = iota + 1
	StatusAccepted
	StatusPrinting
	StatusReady
	StatusCompleted
)

var statusNames = [...]string{
	StatusNew:       "new",
	StatusAccepted:  "accepted",
	StatusPrinting:  "printing",
	StatusReady:     "ready",
	StatusCompleted: "completed",
}

var statusActions = [...]string{
	StatusNew:      "Accept Order",
	StatusAccepted: "Start Printing",
	StatusPrinting: "Mark as Ready",
	StatusReady:    "Complete",
}

// Statuses returns every valid status in fulfilment order.
func Statuses() []Status {
	return []Status{StatusNew, StatusAccepted, StatusPrinting, StatusReady, StatusCompleted}
}

// ErrUnknownStatus is returned by ParseStatus.
var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus parses the stored name of a status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if statusNames[st] == s {
			return st, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownStatus, "%q", s)
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s >= StatusNew && s <= StatusCompleted
}

func (s Status) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return statusNames[s]
}

// Next returns the successor of s. It returns false for the terminal status
// and for invalid values.
func (s Status) Next() (Status, bool) {
	if !s.Valid() || s == StatusCompleted {
		return 0, false
	}
	return s + 1, true
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Action is the operator-facing label of the transition out of s, or ""
// when none exists.
func (s Status) Action() string {
	if !s.Valid() || int(s) >= len(statusActions) {
		return ""
	}
	return statusActions[s]
}
