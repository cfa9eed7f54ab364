// Package descriptor reads and writes the compact binary node descriptors that
// generated bindings embed for every type they declare.
//
// A descriptor carries the literal attributes of one node plus the headers of the
// instance declarations (children) the node owns. Child bodies are kept as raw
// bytes and decoded on demand, so a corrupt child never prevents its parent or
// siblings from loading.
package descriptor

import (
	"github.com/awcullen/opcua/ua"
)

// Version is the only wire layout version understood by Decode.
const Version byte = 1

// maxCount bounds every length prefix in a descriptor.
const maxCount = 1 << 16

// field mask bits.
const (
	fieldDisplayName uint32 = 1 << iota
	fieldDescription
	fieldTypeDefinition
	fieldVariable
	fieldReferences
	fieldChildren
	fieldAbstract

	knownFields = fieldAbstract<<1 - 1
)

// ModellingRule tells whether an instance declaration must exist on every instance.
type ModellingRule byte

const (
	ModellingRuleMandatory ModellingRule = iota
	ModellingRuleOptional
)

func (r ModellingRule) String() string {
	switch r {
	case ModellingRuleMandatory:
		return "Mandatory"
	case ModellingRuleOptional:
		return "Optional"
	}
	return "Unknown"
}

// Descriptor is the decoded attribute record of a node.
type Descriptor struct {
	NodeClass        ua.NodeClass
	NodeID           ua.NodeID
	BrowseName       ua.QualifiedName
	DisplayName      ua.LocalizedText
	Description      ua.LocalizedText
	TypeDefinitionID ua.NodeID
	IsAbstract       bool

	// variable and variable type attributes. HasVariableAttributes reports if they were present.
	DataType        ua.NodeID
	ValueRank       int32
	ArrayDimensions []uint32

	References []ua.Reference
	Children   []Declaration
}

// Declaration is an instance declaration owned by a type. Body holds the child's own
// encoded descriptor and is empty when the binding omitted it.
type Declaration struct {
	BrowseName       ua.QualifiedName
	ReferenceTypeID  ua.NodeID
	TypeDefinitionID ua.NodeID
	ModellingRule    ModellingRule
	Body             []byte
}

// Omitted reports whether the declaration carries no descriptor body.
func (d Declaration) Omitted() bool {
	return len(d.Body) == 0
}

// HasVariableAttributes reports whether the descriptor carries DataType, ValueRank and ArrayDimensions.
func (d *Descriptor) HasVariableAttributes() bool {
	return d.DataType != nil
}

// SuperTypeID returns the target of the inverse HasSubtype reference, or nil.
func (d *Descriptor) SuperTypeID(namespaceURIs []string) ua.NodeID {
	for _, r := range d.References {
		if r.IsInverse && r.ReferenceTypeID == ua.ReferenceTypeIDHasSubtype {
			return ua.ToNodeID(r.TargetID, namespaceURIs)
		}
	}
	return nil
}

// Child returns the declaration with the given browse name.
func (d *Descriptor) Child(name ua.QualifiedName) (Declaration, bool) {
	for _, c := range d.Children {
		if c.BrowseName == name {
			return c, true
		}
	}
	return Declaration{}, false
}

func (d *Descriptor) fieldMask() uint32 {
	var mask uint32
	if d.DisplayName != (ua.LocalizedText{}) {
		mask |= fieldDisplayName
	}
	if d.Description != (ua.LocalizedText{}) {
		mask |= fieldDescription
	}
	if d.TypeDefinitionID != nil {
		mask |= fieldTypeDefinition
	}
	if d.HasVariableAttributes() {
		mask |= fieldVariable
	}
	if len(d.References) > 0 {
		mask |= fieldReferences
	}
	if len(d.Children) > 0 {
		mask |= fieldChildren
	}
	if d.IsAbstract {
		mask |= fieldAbstract
	}
	return mask
}
