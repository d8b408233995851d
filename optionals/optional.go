package optionals

import "encoding/json"

// An Optional[T] is an option type. Catalog lookups and protocol selection
// return one instead of a sentinel empty string.
//
// The JSON serialization/deserialization of an Optional[T] is compatible with
// that of a *T.
type Optional[T any] struct {
	value *T
}

func Some[T any](t T) Optional[T] {
	return Optional[T]{
		value: &t,
	}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Converts a (value, ok) pair, as returned by a map lookup, to an option.
func FromOK[T any](t T, ok bool) Optional[T] {
	if !ok {
		return None[T]()
	}
	return Some(t)
}

func (opt Optional[T]) IsSome() bool {
	return opt.value != nil
}

func (opt Optional[T]) IsNone() bool {
	return opt.value == nil
}

func (opt Optional[T]) Get() (T, bool) {
	var defaultResult T
	if opt.IsNone() {
		return defaultResult, false
	}

	return *opt.value, true
}

// Returns the value inhabiting this option. If this is None, then returns the
// given default value.
func (opt Optional[T]) GetOrDefault(defaultValue T) T {
	if opt.IsNone() {
		return defaultValue
	}
	return *opt.value
}

func Map[T, U any](opt Optional[T], f func(T) U) Optional[U] {
	if opt.IsNone() {
		return None[U]()
	}

	return Some(f(*opt.value))
}

func (opt Optional[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(opt.value)
}

func (opt *Optional[T]) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &opt.value)
}
