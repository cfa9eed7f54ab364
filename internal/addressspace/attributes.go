package addressspace

import (
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// IsAttributeIDValid reports whether the node class of n has the attribute.
func (n *Node) IsAttributeIDValid(attributeID uint32) bool {
	switch attributeID {
	case ua.AttributeIDNodeID, ua.AttributeIDNodeClass, ua.AttributeIDBrowseName,
		ua.AttributeIDDisplayName, ua.AttributeIDDescription, ua.AttributeIDWriteMask,
		ua.AttributeIDUserWriteMask, ua.AttributeIDRolePermissions,
		ua.AttributeIDUserRolePermissions, ua.AttributeIDAccessRestrictions:
		return true
	}
	switch n.nodeClass {
	case ua.NodeClassObject:
		return attributeID == ua.AttributeIDEventNotifier
	case ua.NodeClassVariable:
		switch attributeID {
		case ua.AttributeIDValue, ua.AttributeIDDataType, ua.AttributeIDValueRank,
			ua.AttributeIDArrayDimensions, ua.AttributeIDAccessLevel, ua.AttributeIDUserAccessLevel,
			ua.AttributeIDMinimumSamplingInterval, ua.AttributeIDHistorizing, ua.AttributeIDAccessLevelEx:
			return true
		}
	case ua.NodeClassVariableType:
		switch attributeID {
		case ua.AttributeIDValue, ua.AttributeIDDataType, ua.AttributeIDValueRank,
			ua.AttributeIDArrayDimensions, ua.AttributeIDIsAbstract:
			return true
		}
	case ua.NodeClassObjectType, ua.NodeClassDataType:
		return attributeID == ua.AttributeIDIsAbstract
	}
	return false
}

func isVariableAttribute(attributeID uint32) bool {
	switch attributeID {
	case ua.AttributeIDValue, ua.AttributeIDDataType, ua.AttributeIDValueRank, ua.AttributeIDArrayDimensions:
		return true
	}
	return false
}

func (n *Node) checkAttribute(attributeID uint32) error {
	if n.IsAttributeIDValid(attributeID) {
		return nil
	}
	if isVariableAttribute(attributeID) {
		return errors.Wrapf(ErrInvalidOperation, "attribute %d on %s", attributeID, n.browseName.Name)
	}
	return errors.Wrapf(ErrInvalidAttribute, "attribute %d on %s", attributeID, n.browseName.Name)
}

func mismatch(attributeID uint32, value any) error {
	return errors.Wrapf(ErrTypeMismatch, "%T for attribute %d", value, attributeID)
}

// SetAttribute writes one attribute of the node. NodeId and NodeClass are fixed, and
// attributes the node class does not have are rejected.
func (n *Node) SetAttribute(attributeID uint32, value any) error {
	if err := n.checkAttribute(attributeID); err != nil {
		return err
	}
	switch attributeID {
	case ua.AttributeIDBrowseName:
		v, ok := value.(ua.QualifiedName)
		if !ok {
			return mismatch(attributeID, value)
		}
		if v == n.browseName {
			return nil
		}
		if v.Name == "" {
			return errors.Wrap(ErrDuplicateBrowseName, "empty browse name")
		}
		if n.parent != nil && n.parent.Child(v) != nil {
			return errors.Wrapf(ErrDuplicateBrowseName, "%s under %s", v.Name, n.parent.browseName.Name)
		}
		n.browseName = v
		n.markChanged(ChangeMaskNonValue)
	case ua.AttributeIDDisplayName:
		v, ok := value.(ua.LocalizedText)
		if !ok {
			return mismatch(attributeID, value)
		}
		n.displayName = v
		n.markChanged(ChangeMaskNonValue)
	case ua.AttributeIDDescription:
		v, ok := value.(ua.LocalizedText)
		if !ok {
			return mismatch(attributeID, value)
		}
		n.description = v
		n.markChanged(ChangeMaskNonValue)
	case ua.AttributeIDValue:
		return n.SetValue(value)
	case ua.AttributeIDDataType:
		v, ok := value.(ua.NodeID)
		if !ok || v == nil {
			return mismatch(attributeID, value)
		}
		n.variable.dataType = v
		n.resetIncompatibleValue()
		n.markChanged(ChangeMaskNonValue)
	case ua.AttributeIDValueRank:
		v, ok := value.(int32)
		if !ok {
			return mismatch(attributeID, value)
		}
		n.variable.valueRank = v
		n.resetIncompatibleValue()
		n.markChanged(ChangeMaskNonValue)
	case ua.AttributeIDArrayDimensions:
		v, ok := value.([]uint32)
		if !ok {
			return mismatch(attributeID, value)
		}
		n.variable.arrayDimensions = append([]uint32(nil), v...)
		n.markChanged(ChangeMaskNonValue)
	default:
		return errors.Wrapf(ErrNotWritable, "attribute %d on %s", attributeID, n.browseName.Name)
	}
	return nil
}

// resetIncompatibleValue keeps the stored value type-correct after DataType or
// ValueRank changed.
func (n *Node) resetIncompatibleValue() {
	va := n.variable
	if !checkValue(va.value, va.dataType, va.valueRank, va.resolver) {
		va.value = zeroValue(va.dataType, va.valueRank, va.resolver)
		n.markChanged(ChangeMaskValue)
	}
}

// Attribute reads one attribute of the node.
func (n *Node) Attribute(attributeID uint32) (any, error) {
	if err := n.checkAttribute(attributeID); err != nil {
		return nil, err
	}
	switch attributeID {
	case ua.AttributeIDNodeID:
		return n.nodeID, nil
	case ua.AttributeIDNodeClass:
		return n.nodeClass, nil
	case ua.AttributeIDBrowseName:
		return n.browseName, nil
	case ua.AttributeIDDisplayName:
		return n.displayName, nil
	case ua.AttributeIDDescription:
		return n.description, nil
	case ua.AttributeIDValue:
		return n.variable.value, nil
	case ua.AttributeIDDataType:
		return n.variable.dataType, nil
	case ua.AttributeIDValueRank:
		return n.variable.valueRank, nil
	case ua.AttributeIDArrayDimensions:
		return n.ArrayDimensions(), nil
	case ua.AttributeIDIsAbstract:
		return n.kind != nil && n.kind.IsAbstract, nil
	}
	return nil, errors.Wrapf(ErrInvalidAttribute, "attribute %d of %s is not stored", attributeID, n.browseName.Name)
}
