package addressspace

import (
	"github.com/awcullen/opcua/ua"
)

// Well known type definitions of namespace 0.
var (
	BaseObjectType       ua.NodeID = ua.NewNodeIDNumeric(0, 58)
	FolderType           ua.NodeID = ua.NewNodeIDNumeric(0, 61)
	BaseVariableType     ua.NodeID = ua.NewNodeIDNumeric(0, 62)
	BaseDataVariableType ua.NodeID = ua.NewNodeIDNumeric(0, 63)
	PropertyType         ua.NodeID = ua.NewNodeIDNumeric(0, 68)
)

// Slot is an instance declaration of a Kind: a named child every instance may own.
type Slot struct {
	BrowseName       ua.QualifiedName
	ReferenceTypeID  ua.NodeID
	TypeDefinitionID ua.NodeID
	Optional         bool

	// Body is the encoded descriptor of the declared child. It is empty when the
	// declaration was emitted without one.
	Body []byte

	// Owner is the kind that declares the slot.
	Owner *Kind
}

// Omitted reports whether the slot carries no descriptor.
func (s *Slot) Omitted() bool {
	return len(s.Body) == 0
}

// Kind is the dispatch table of a type: its position in the hierarchy and the slots it
// declares. Slots of supertypes are reached through Parent.
type Kind struct {
	TypeID      ua.NodeID
	BrowseName  ua.QualifiedName
	DisplayName ua.LocalizedText
	NodeClass   ua.NodeClass
	IsAbstract  bool
	Parent      *Kind

	DataType        ua.NodeID
	ValueRank       int32
	ArrayDimensions []uint32

	Slots []*Slot
}

// InstanceClass returns the node class of instances of k. Only object and variable
// types can be instantiated.
func (k *Kind) InstanceClass() (ua.NodeClass, bool) {
	switch k.NodeClass {
	case ua.NodeClassObjectType:
		return ua.NodeClassObject, true
	case ua.NodeClassVariableType:
		return ua.NodeClassVariable, true
	}
	return ua.NodeClassUnspecified, false
}

// IsSubtypeOf reports whether k is typeID or derives from it.
func (k *Kind) IsSubtypeOf(typeID ua.NodeID) bool {
	for t := k; t != nil; t = t.Parent {
		if t.TypeID == typeID {
			return true
		}
	}
	return false
}

// Declared returns the slot named name declared by k itself.
func (k *Kind) Declared(name ua.QualifiedName) *Slot {
	for _, s := range k.Slots {
		if s.BrowseName == name {
			return s
		}
	}
	return nil
}

// Slot returns the most derived declaration of name along the kind chain.
func (k *Kind) Slot(name ua.QualifiedName) *Slot {
	for t := k; t != nil; t = t.Parent {
		if s := t.Declared(name); s != nil {
			return s
		}
	}
	return nil
}

// AllSlots returns the effective slots of k: supertype declarations first, in
// declaration order, with a derived declaration replacing the base one of the same name
// in place.
func (k *Kind) AllSlots() []*Slot {
	var chain []*Kind
	for t := k; t != nil; t = t.Parent {
		chain = append(chain, t)
	}
	var out []*Slot
	index := map[ua.QualifiedName]int{}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, s := range chain[i].Slots {
			if at, ok := index[s.BrowseName]; ok {
				out[at] = s
				continue
			}
			index[s.BrowseName] = len(out)
			out = append(out, s)
		}
	}
	return out
}

// EffectiveDataType returns the data type, value rank and array dimensions of a
// variable type, inherited from the nearest supertype that declares them.
func (k *Kind) EffectiveDataType() (ua.NodeID, int32, []uint32) {
	for t := k; t != nil; t = t.Parent {
		if t.DataType != nil {
			return t.DataType, t.ValueRank, t.ArrayDimensions
		}
	}
	return ua.DataTypeIDBaseDataType, ua.ValueRankAny, nil
}
