package graph

import (
	"fmt"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Reducer combines the current value of a state field with a node's update.
// current is nil when the field has never been set.
type Reducer func(current, update any) (any, error)

// LastWriteWins replaces the current value with the update.
// It must be declared explicitly; undeclared fields are rejected at merge time.
func LastWriteWins() Reducer {
	return func(_, update any) (any, error) {
		return update, nil
	}
}

// Typed adapts a strongly typed combine function into a Reducer.
// A nil current value is passed as the zero value of T.
func Typed[T any](combine func(current, update T) (T, error)) Reducer {
	return func(current, update any) (any, error) {
		var cur T
		if current != nil {
			c, ok := current.(T)
			if !ok {
				return nil, fmt.Errorf("current value has type %T, want %T", current, cur)
			}
			cur = c
		}
		upd, ok := update.(T)
		if !ok {
			return nil, fmt.Errorf("update has type %T, want %T", update, cur)
		}
		return combine(cur, upd)
	}
}

// Append concatenates slices, current first.
func Append[T any]() Reducer {
	return Typed(func(current, update []T) ([]T, error) {
		out := make([]T, 0, len(current)+len(update))
		out = append(out, current...)
		return append(out, update...), nil
	})
}

// Sum adds integer updates to the current total.
func Sum() Reducer {
	return Typed(func(current, update int) (int, error) {
		return current + update, nil
	})
}

// ConcatMessages is the reducer of State.Messages.
// The result never aliases the current slice, so earlier snapshots stay intact.
func ConcatMessages(current, update []domain.Message) []domain.Message {
	if len(update) == 0 {
		return current
	}
	out := make([]domain.Message, 0, len(current)+len(update))
	out = append(out, current...)
	return append(out, update...)
}

// SumCallCount is the reducer of State.CallCount. An absent update is zero.
func SumCallCount(current, increment int) (int, error) {
	if increment < 0 {
		return current, &FieldError{Field: FieldCallCount, Reason: fmt.Sprintf("negative increment %d", increment)}
	}
	return current + increment, nil
}

// Reserved field names of the built-in state.
const (
	FieldMessages  = "messages"
	FieldCallCount = "callCount"
)

// FieldError reports an update that the reducers cannot merge.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %q: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
