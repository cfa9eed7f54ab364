// Package addressspace holds the in-memory node tree that typed bindings are loaded
// into: nodes with exclusive parent/child ownership, per node change masks, child
// resolution through the type hierarchy and strongly typed variable values.
package addressspace

import (
	"strings"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// Node is an object, variable or type node of the address space. Variable attributes
// are only present for the Variable and VariableType node classes.
type Node struct {
	kind             *Kind
	nodeID           ua.NodeID
	nodeClass        ua.NodeClass
	browseName       ua.QualifiedName
	displayName      ua.LocalizedText
	description      ua.LocalizedText
	typeDefinitionID ua.NodeID
	referenceTypeID  ua.NodeID
	references       []ua.Reference

	parent   *Node
	children []*Node
	removed  []*Node

	variable *variableAttributes

	changeMasks ChangeMask
	dirtyBelow  bool
}

type variableAttributes struct {
	value           any
	dataType        ua.NodeID
	valueRank       int32
	arrayDimensions []uint32
	statusCode      ua.StatusCode
	timestamp       time.Time
	resolver        DataTypeResolver
}

// Attributes are the literal attributes a node is populated with when it is built.
type Attributes struct {
	DisplayName     ua.LocalizedText
	Description     ua.LocalizedText
	DataType        ua.NodeID
	ValueRank       int32
	ArrayDimensions []uint32
	References      []ua.Reference
	ReferenceTypeID ua.NodeID
}

// NewNode builds a detached node of the given kind. The display name defaults to the
// browse name.
func NewNode(kind *Kind, nodeClass ua.NodeClass, nodeID ua.NodeID, browseName ua.QualifiedName) *Node {
	n := &Node{
		kind:        kind,
		nodeID:      nodeID,
		nodeClass:   nodeClass,
		browseName:  browseName,
		displayName: ua.LocalizedText{Text: browseName.Name},
	}
	if kind != nil {
		n.typeDefinitionID = kind.TypeID
	}
	if isVariableClass(nodeClass) {
		n.variable = &variableAttributes{
			dataType:  ua.DataTypeIDBaseDataType,
			valueRank: ua.ValueRankAny,
		}
	}
	return n
}

// Populate copies the non-empty literal attributes of a into n and resets the value to
// the zero value of the resulting data type. It is meant for nodes under construction
// and records no change.
func (n *Node) Populate(ctx *Context, a Attributes) {
	if a.DisplayName != (ua.LocalizedText{}) {
		n.displayName = a.DisplayName
	}
	if a.Description != (ua.LocalizedText{}) {
		n.description = a.Description
	}
	if len(a.References) > 0 {
		n.references = append(n.references, a.References...)
	}
	if a.ReferenceTypeID != nil {
		n.referenceTypeID = a.ReferenceTypeID
	}
	if n.variable == nil {
		return
	}
	n.variable.resolver = ctx.resolver()
	if a.DataType != nil {
		n.variable.dataType = a.DataType
		n.variable.valueRank = a.ValueRank
		n.variable.arrayDimensions = a.ArrayDimensions
		n.variable.value = zeroValue(a.DataType, a.ValueRank, ctx.resolver())
	}
}

func isVariableClass(c ua.NodeClass) bool {
	return c == ua.NodeClassVariable || c == ua.NodeClassVariableType
}

func (n *Node) Kind() *Kind                   { return n.kind }
func (n *Node) NodeID() ua.NodeID             { return n.nodeID }
func (n *Node) NodeClass() ua.NodeClass       { return n.nodeClass }
func (n *Node) BrowseName() ua.QualifiedName  { return n.browseName }
func (n *Node) DisplayName() ua.LocalizedText { return n.displayName }
func (n *Node) Description() ua.LocalizedText { return n.description }
func (n *Node) TypeDefinitionID() ua.NodeID   { return n.typeDefinitionID }
func (n *Node) Parent() *Node                 { return n.parent }
func (n *Node) IsVariable() bool              { return n.variable != nil }

// GetDefaultTypeDefinitionID returns the type the node was built from.
func (n *Node) GetDefaultTypeDefinitionID() ua.NodeID {
	if n.kind == nil {
		return nil
	}
	return n.kind.TypeID
}

// ReferenceTypeID is the role of the node towards its parent.
func (n *Node) ReferenceTypeID() ua.NodeID {
	if n.referenceTypeID == nil {
		return ua.ReferenceTypeIDHasComponent
	}
	return n.referenceTypeID
}

// SetReferenceTypeID sets the role of the node towards its parent.
func (n *Node) SetReferenceTypeID(id ua.NodeID) {
	if id == n.referenceTypeID {
		return
	}
	n.referenceTypeID = id
	n.markChanged(ChangeMaskReferences)
}

// References returns a copy of the non-hierarchical references of the node.
func (n *Node) References() []ua.Reference {
	return append([]ua.Reference(nil), n.references...)
}

// AddReference appends a reference.
func (n *Node) AddReference(ref ua.Reference) {
	n.references = append(n.references, ref)
	n.markChanged(ChangeMaskReferences)
}

// Children returns the children in insertion order. The slice is a copy.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// EachChild calls fn for every child in insertion order until fn returns false.
func (n *Node) EachChild(fn func(*Node) bool) {
	for _, c := range n.children {
		if !fn(c) {
			return
		}
	}
}

// Child returns the child with the given browse name, ignoring type declarations.
func (n *Node) Child(name ua.QualifiedName) *Node {
	for _, c := range n.children {
		if c.browseName == name {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants depth first. Returning false from fn skips the
// subtree below the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// AddChild attaches child at the end of the child list.
func (n *Node) AddChild(child *Node) error {
	if child == nil {
		return errors.Wrap(ErrInvalidOperation, "nil child")
	}
	if child.parent != nil {
		return errors.Wrapf(ErrAlreadyParented, "%s is a child of %s", child.browseName.Name, child.parent.browseName.Name)
	}
	for p := n; p != nil; p = p.parent {
		if p == child {
			return errors.Wrapf(ErrInvalidOperation, "%s would become its own descendant", child.browseName.Name)
		}
	}
	if n.Child(child.browseName) != nil {
		return errors.Wrapf(ErrDuplicateBrowseName, "%s under %s", child.browseName.Name, n.browseName.Name)
	}
	child.parent = n
	child.changeMasks &^= ChangeMaskDeleted
	n.children = append(n.children, child)
	n.markChanged(ChangeMaskChildren)
	if child.changeMasks != ChangeMaskNone || child.dirtyBelow {
		child.markDirtyAncestors()
	}
	return nil
}

// RemoveChild detaches child and flags it Deleted. The deletion is reported with the
// next ClearChangeMasks of n.
func (n *Node) RemoveChild(child *Node) error {
	for i, c := range n.children {
		if c != child {
			continue
		}
		n.children = append(n.children[:i:i], n.children[i+1:]...)
		child.parent = nil
		child.changeMasks |= ChangeMaskDeleted
		n.removed = append(n.removed, child)
		n.markChanged(ChangeMaskChildren)
		return nil
	}
	name := "<nil>"
	if child != nil {
		name = child.browseName.Name
	}
	return errors.Wrapf(ErrNotChild, "%s under %s", name, n.browseName.Name)
}

// Detach removes n from its parent, if any.
func (n *Node) Detach() error {
	if n.parent == nil {
		return nil
	}
	return n.parent.RemoveChild(n)
}

// BrowsePath returns the slash separated browse names from the root to n.
func (n *Node) BrowsePath() string {
	var names []string
	for p := n; p != nil; p = p.parent {
		names = append(names, p.browseName.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/")
}

// Root returns the topmost ancestor of n.
func (n *Node) Root() *Node {
	p := n
	for p.parent != nil {
		p = p.parent
	}
	return p
}
