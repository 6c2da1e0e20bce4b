package domain

// Key is a typed handle on an additional state field.
// Nodes read their inputs and write their outputs through keys instead of
// interpreting the last conversation message.
type Key[T any] struct {
	name string
}

// NewKey declares a typed field handle.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the state field name.
func (k Key[T]) Name() string { return k.name }

// Get reads the field. It returns false when the field is unset or holds another type.
func (k Key[T]) Get(s State) (T, bool) {
	var zero T
	raw, ok := s.Values[k.name]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Update builds a single-field update.
func (k Key[T]) Update(v T) Update {
	return Update{Values: map[string]any{k.name: v}}
}

// Set adds the field to an existing update.
func (k Key[T]) Set(u Update, v T) Update {
	return u.With(k.name, v)
}
