package format

// Opt is an explicit optional value, distinguishing "never set" from any
// set value including the zero value. Configuration getters return Opt so
// callers can tell an inherited default from an explicit choice.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns an Opt holding v
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

// None returns an empty Opt
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the held value and whether one is set
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Or returns the held value, or def when none is set
func (o Opt[T]) Or(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

// IsSet reports whether a value is set
func (o Opt[T]) IsSet() bool {
	return o.ok
}
