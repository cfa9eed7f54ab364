package registry

import (
	"strings"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/descriptor"
)

// maxDepth bounds the nesting of instance declarations.
const maxDepth = 16

type instanceOptions struct {
	browseName  ua.QualifiedName
	nodeID      ua.NodeID
	displayName ua.LocalizedText
}

type InstanceOption func(*instanceOptions)

// WithBrowseName names the instance. The default is the type name without its "Type" suffix.
func WithBrowseName(name ua.QualifiedName) InstanceOption {
	return func(o *instanceOptions) { o.browseName = name }
}

// WithNodeID fixes the NodeID of the instance instead of asking the IDGenerator.
func WithNodeID(id ua.NodeID) InstanceOption {
	return func(o *instanceOptions) { o.nodeID = id }
}

func WithDisplayName(text ua.LocalizedText) InstanceOption {
	return func(o *instanceOptions) { o.displayName = text }
}

func (r *Registry) log(ctx *addressspace.Context) *zap.SugaredLogger {
	if ctx != nil && ctx.Logger != nil {
		return ctx.Logger
	}
	return r.logger
}

// New builds an instance of typeID with the literal attributes of the type and a zero
// value, but no children. A non-nil parent receives the instance as a child.
func (r *Registry) New(ctx *addressspace.Context, typeID ua.NodeID, parent *addressspace.Node, opts ...InstanceOption) (*addressspace.Node, error) {
	n, err := r.construct(ctx, typeID, parent, opts...)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		if err := parent.AddChild(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Instantiate is New followed by Initialize.
func (r *Registry) Instantiate(ctx *addressspace.Context, typeID ua.NodeID, parent *addressspace.Node, opts ...InstanceOption) (*addressspace.Node, error) {
	n, err := r.construct(ctx, typeID, parent, opts...)
	if err != nil {
		return nil, err
	}
	r.initialize(ctx, n, 0)
	if parent != nil {
		if err := parent.AddChild(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Initialize creates the mandatory children of n in declaration order, supertype
// declarations first, and then the optional ones that carry a descriptor. A child
// whose descriptor does not decode is skipped with a warning.
func (r *Registry) Initialize(ctx *addressspace.Context, n *addressspace.Node) error {
	if n == nil || n.Kind() == nil {
		return errors.Wrap(addressspace.ErrInvalidOperation, "initialize node without type")
	}
	r.initialize(ctx, n, 0)
	return nil
}

// InitializeOptionalChildren creates the optional children of n that carry a
// descriptor. Optional declarations emitted without one stay absent until they are
// set explicitly.
func (r *Registry) InitializeOptionalChildren(ctx *addressspace.Context, n *addressspace.Node) error {
	if n == nil || n.Kind() == nil {
		return errors.Wrap(addressspace.ErrInvalidOperation, "initialize node without type")
	}
	for _, slot := range n.Kind().AllSlots() {
		if slot.Optional {
			r.materialize(ctx, n, slot, 0)
		}
	}
	return nil
}

func (r *Registry) initialize(ctx *addressspace.Context, n *addressspace.Node, depth int) {
	if depth >= maxDepth {
		r.log(ctx).Warnw("instance declarations nested too deep", "node", n.BrowsePath())
		return
	}
	slots := n.Kind().AllSlots()
	for _, slot := range slots {
		if !slot.Optional {
			r.materialize(ctx, n, slot, depth)
		}
	}
	for _, slot := range slots {
		if slot.Optional {
			r.materialize(ctx, n, slot, depth)
		}
	}
}

func (r *Registry) materialize(ctx *addressspace.Context, parent *addressspace.Node, slot *addressspace.Slot, depth int) {
	if parent.Child(slot.BrowseName) != nil {
		return
	}
	if slot.Optional && slot.Omitted() {
		return
	}
	body, err := r.slotBody(slot)
	if err != nil {
		r.log(ctx).Warnw("instance declaration skipped", "parent", parent.BrowsePath(), "child", slot.BrowseName.Name, "error", err)
		return
	}
	child, err := r.buildSlotChild(ctx, parent, slot, body, depth)
	if err != nil {
		r.log(ctx).Warnw("instance declaration skipped", "parent", parent.BrowsePath(), "child", slot.BrowseName.Name, "error", err)
		return
	}
	if err := parent.AddChild(child); err != nil {
		r.log(ctx).Warnw("instance declaration not attached", "parent", parent.BrowsePath(), "child", slot.BrowseName.Name, "error", err)
	}
}

func (r *Registry) slotBody(slot *addressspace.Slot) (*descriptor.Descriptor, error) {
	if slot.Omitted() {
		return nil, nil
	}
	d, err := descriptor.Decode(slot.Body, descriptor.Namespaces(r.NamespaceURIs()))
	if err != nil {
		decodeErrors.Inc()
		return nil, err
	}
	return d, nil
}

// NewSlotInstance implements addressspace.Factory. The instance is built from the
// slot's descriptor when it has one, from its type definition otherwise.
func (r *Registry) NewSlotInstance(ctx *addressspace.Context, parent *addressspace.Node, slot *addressspace.Slot) (*addressspace.Node, error) {
	body, err := r.slotBody(slot)
	if err != nil {
		return nil, errors.Wrapf(err, "slot %s", slot.BrowseName.Name)
	}
	return r.buildSlotChild(ctx, parent, slot, body, 0)
}

func (r *Registry) buildSlotChild(ctx *addressspace.Context, parent *addressspace.Node, slot *addressspace.Slot, body *descriptor.Descriptor, depth int) (*addressspace.Node, error) {
	typeID := slot.TypeDefinitionID
	if body != nil && body.TypeDefinitionID != nil {
		typeID = body.TypeDefinitionID
	}
	child, err := r.construct(ctx, typeID, parent, WithBrowseName(slot.BrowseName))
	if err != nil {
		return nil, err
	}
	attrs := addressspace.Attributes{ReferenceTypeID: slot.ReferenceTypeID}
	if body != nil {
		attrs.DisplayName = body.DisplayName
		attrs.Description = body.Description
		if body.HasVariableAttributes() && child.IsVariable() {
			attrs.DataType = body.DataType
			attrs.ValueRank = body.ValueRank
			attrs.ArrayDimensions = body.ArrayDimensions
		}
	}
	child.Populate(ctx, attrs)
	r.initialize(ctx, child, depth+1)
	return child, nil
}

func (r *Registry) construct(ctx *addressspace.Context, typeID ua.NodeID, parent *addressspace.Node, opts ...InstanceOption) (*addressspace.Node, error) {
	kind := r.Kind(typeID)
	if kind == nil {
		return nil, errors.Wrapf(ErrUnknownType, "%v", typeID)
	}
	class, ok := kind.InstanceClass()
	if !ok || kind.IsAbstract {
		return nil, errors.Wrapf(ErrNotInstantiable, "%s", kind.BrowseName.Name)
	}
	d, err := r.Descriptor(typeID)
	if err != nil {
		return nil, err
	}

	o := instanceOptions{browseName: defaultBrowseName(kind)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.nodeID == nil {
		o.nodeID = r.ids.NewNodeID(parent, o.browseName, r.instanceNamespace(kind, parent))
	}

	n := addressspace.NewNode(kind, class, o.nodeID, o.browseName)
	attrs := addressspace.Attributes{
		DisplayName: o.displayName,
		Description: d.Description,
	}
	if class == ua.NodeClassVariable {
		attrs.DataType, attrs.ValueRank, attrs.ArrayDimensions = kind.EffectiveDataType()
	}
	n.Populate(ctx, attrs)
	instantiatedNodes.WithLabelValues(kind.BrowseName.Name).Inc()
	return n, nil
}

func (r *Registry) instanceNamespace(kind *addressspace.Kind, parent *addressspace.Node) uint16 {
	if parent != nil {
		return descriptor.NamespaceIndex(parent.NodeID())
	}
	if r.instanceURI != "" {
		return r.AddNamespace(r.instanceURI)
	}
	return descriptor.NamespaceIndex(kind.TypeID)
}

func defaultBrowseName(kind *addressspace.Kind) ua.QualifiedName {
	name := strings.TrimSuffix(kind.BrowseName.Name, "Type")
	if name == "" {
		name = kind.BrowseName.Name
	}
	return ua.QualifiedName{NamespaceIndex: kind.BrowseName.NamespaceIndex, Name: name}
}
