package addressspace

import (
	"reflect"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// TypedVariable is a view of a variable node whose value is of Go type T.
type TypedVariable[T any] struct {
	node *Node
}

// AsTyped wraps a variable node. It fails for other node classes and with
// ErrTypeMismatch when T cannot hold the declared data type and value rank. Interface
// types are checked per value on Set.
func AsTyped[T any](n *Node) (TypedVariable[T], error) {
	if n == nil {
		return TypedVariable[T]{}, errors.Wrap(ErrInvalidOperation, "nil node")
	}
	if err := n.requireVariable("typed access"); err != nil {
		return TypedVariable[T]{}, err
	}
	var zero T
	if reflect.TypeOf(&zero).Elem().Kind() != reflect.Interface && !n.Accepts(zero) {
		return TypedVariable[T]{}, errors.Wrapf(ErrTypeMismatch, "%T for %s (data type %v)", zero, n.browseName.Name, n.variable.dataType)
	}
	return TypedVariable[T]{node: n}, nil
}

// Node returns the wrapped node.
func (v TypedVariable[T]) Node() *Node { return v.node }

// Valid reports whether v wraps a node.
func (v TypedVariable[T]) Valid() bool { return v.node != nil }

// Get returns the value. A stored value of another Go type yields ErrTypeMismatch.
func (v TypedVariable[T]) Get() (T, error) {
	var zero T
	if v.node == nil {
		return zero, errors.Wrap(ErrInvalidOperation, "typed variable without node")
	}
	raw := v.node.variable.value
	if raw == nil {
		return zero, nil
	}
	t, ok := raw.(T)
	if !ok {
		return zero, errors.Wrapf(ErrTypeMismatch, "%s holds %T, not %T", v.node.browseName.Name, raw, zero)
	}
	return t, nil
}

// Set stores value with a good status and the current time.
func (v TypedVariable[T]) Set(value T) {
	v.SetWithStatus(value, ua.Good, time.Now())
}

// SetWithStatus stores value with the given status and source timestamp. A value the
// data type rejects is dropped and the node keeps its previous value.
func (v TypedVariable[T]) SetWithStatus(value T, status ua.StatusCode, ts time.Time) {
	if v.node == nil {
		return
	}
	_ = v.node.SetValueWithStatus(value, status, ts)
}
