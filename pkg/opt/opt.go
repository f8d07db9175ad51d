// Package opt provides an optional value type that distinguishes an absent
// value from a present zero value (such as an empty slice).
package opt

import (
	"bytes"
	"encoding/json"
)

// Opt is an optional value of type T.
type Opt[T any] struct {
	Value T
	Set   bool
}

// New returns a set Opt holding v.
func New[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// None returns an unset Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// IsSet reports whether the value was provided.
func (o Opt[T]) IsSet() bool { return o.Set }

// Get returns the value and whether it was set.
func (o Opt[T]) Get() (v T, ok bool) {
	if !o.Set {
		return v, false
	}
	return o.Value, true
}

// Or returns the value if set, otherwise d.
func (o Opt[T]) Or(d T) T {
	if o.Set {
		return o.Value
	}
	return d
}

// SetTo sets the value to v.
func (o *Opt[T]) SetTo(v T) {
	o.Value = v
	o.Set = true
}

// Reset unsets the value.
func (o *Opt[T]) Reset() {
	var zero T
	o.Value = zero
	o.Set = false
}

// MarshalJSON encodes an unset Opt as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON decodes null into an unset Opt.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Reset()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.SetTo(v)
	return nil
}
