package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Optional is a value a source may be unable to provide. The zero value is
// unavailable.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps an available value.
func Some[T any](v T) Optional[T] { return Optional[T]{value: v, ok: true} }

// None returns an unavailable value.
func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it is available.
func (o Optional[T]) Get() (T, bool) { return o.value, o.ok }

func (o Optional[T]) Available() bool { return o.ok }

// Or returns the value, or fallback when unavailable.
func (o Optional[T]) Or(fallback T) T {
	if !o.ok {
		return fallback
	}
	return o.value
}

// Format renders the value with a fmt verb, or returns missing when the value
// is unavailable.
func (o Optional[T]) Format(format, missing string) string {
	if !o.ok {
		return missing
	}
	return fmt.Sprintf(format, o.value)
}

// MarshalJSON encodes an unavailable value as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
