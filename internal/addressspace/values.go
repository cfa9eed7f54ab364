package addressspace

import (
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

func (n *Node) requireVariable(op string) error {
	if n.variable == nil {
		return errors.Wrapf(ErrInvalidOperation, "%s on %s (node class %v)", op, n.browseName.Name, n.nodeClass)
	}
	return nil
}

// Value returns the current value of a variable.
func (n *Node) Value() (any, error) {
	if err := n.requireVariable("read value"); err != nil {
		return nil, err
	}
	return n.variable.value, nil
}

// SetValue stores v after checking it against the declared data type and value rank.
// On mismatch the node is left unchanged.
func (n *Node) SetValue(v any) error {
	return n.SetValueWithStatus(v, ua.Good, time.Now())
}

// SetValueWithStatus stores v together with its status code and source timestamp.
func (n *Node) SetValueWithStatus(v any, status ua.StatusCode, ts time.Time) error {
	if err := n.requireVariable("write value"); err != nil {
		return err
	}
	if !n.Accepts(v) {
		return errors.Wrapf(ErrTypeMismatch, "%T for %s", v, n.browseName.Name)
	}
	n.storeValue(v, status, ts)
	return nil
}

func (n *Node) storeValue(v any, status ua.StatusCode, ts time.Time) {
	n.variable.value = v
	n.variable.statusCode = status
	n.variable.timestamp = ts
	n.markChanged(ChangeMaskValue)
}

// Accepts reports whether v type-checks against the variable's data type.
func (n *Node) Accepts(v any) bool {
	if n.variable == nil {
		return false
	}
	return checkValue(v, n.variable.dataType, n.variable.valueRank, n.resolver())
}

func (n *Node) resolver() DataTypeResolver {
	if n.variable == nil {
		return nil
	}
	return n.variable.resolver
}

// DataType returns the declared data type of a variable, nil otherwise.
func (n *Node) DataType() ua.NodeID {
	if n.variable == nil {
		return nil
	}
	return n.variable.dataType
}

// ValueRank returns the declared value rank of a variable.
func (n *Node) ValueRank() int32 {
	if n.variable == nil {
		return ua.ValueRankScalar
	}
	return n.variable.valueRank
}

// ArrayDimensions returns the declared array dimensions of a variable.
func (n *Node) ArrayDimensions() []uint32 {
	if n.variable == nil {
		return nil
	}
	return append([]uint32(nil), n.variable.arrayDimensions...)
}

// StatusCode returns the status of the last written value.
func (n *Node) StatusCode() ua.StatusCode {
	if n.variable == nil {
		return ua.Good
	}
	return n.variable.statusCode
}

// Timestamp returns the source timestamp of the last written value.
func (n *Node) Timestamp() time.Time {
	if n.variable == nil {
		return time.Time{}
	}
	return n.variable.timestamp
}

// DataValue returns the value, status and timestamp of a variable as a ua.DataValue.
func (n *Node) DataValue() ua.DataValue {
	if n.variable == nil {
		return ua.DataValue{}
	}
	ts := n.variable.timestamp
	return ua.NewDataValue(n.variable.value, n.variable.statusCode, ts, 0, ts, 0)
}
