package domain

import (
	"bytes"
	"encoding/json"
)

var jsonNull = []byte("null")

// Optional holds a value that is either absent or present.
// The zero value is absent. A JSON null decodes as absent.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a present Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value is present
func (o Optional[T]) IsSet() bool {
	return o.set
}

// IsZero reports whether the Optional is absent, so `omitzero` drops it.
func (o Optional[T]) IsZero() bool {
	return !o.set
}

// OrElse returns the value when present, def otherwise
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return jsonNull, nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

type nullableState uint8

const (
	nullableAbsent nullableState = iota
	nullableNull
	nullablePresent
)

// Nullable distinguishes three states: absent, explicitly null, and present.
// The zero value is absent. In a JSON payload an omitted key stays absent and
// a literal null becomes null.
type Nullable[T any] struct {
	value T
	state nullableState
}

// Present returns a Nullable holding v
func Present[T any](v T) Nullable[T] {
	return Nullable[T]{value: v, state: nullablePresent}
}

// Null returns an explicitly null Nullable
func Null[T any]() Nullable[T] {
	return Nullable[T]{state: nullableNull}
}

// NullableFromPtr maps nil to null and a non-nil pointer to present.
func NullableFromPtr[T any](p *T) Nullable[T] {
	if p == nil {
		return Null[T]()
	}
	return Present(*p)
}

// Get returns the value and whether it is present
func (n Nullable[T]) Get() (T, bool) {
	return n.value, n.state == nullablePresent
}

// IsSet reports whether the field was supplied, either as null or a value
func (n Nullable[T]) IsSet() bool {
	return n.state != nullableAbsent
}

// IsNull reports whether the field was supplied as an explicit null
func (n Nullable[T]) IsNull() bool {
	return n.state == nullableNull
}

func (n Nullable[T]) IsZero() bool {
	return n.state == nullableAbsent
}

// Ptr returns a pointer to a copy of the value, or nil when absent or null.
func (n Nullable[T]) Ptr() *T {
	if n.state != nullablePresent {
		return nil
	}
	v := n.value
	return &v
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.state != nullablePresent {
		return jsonNull, nil
	}
	return json.Marshal(n.value)
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*n = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Present(v)
	return nil
}
