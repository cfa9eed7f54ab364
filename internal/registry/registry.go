// Package registry keeps the type descriptors of an address space and builds typed
// node trees from them.
package registry

import (
	"sync"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/descriptor"
)

const (
	// NamespaceUA is the OPC UA namespace, always index 0.
	NamespaceUA = "http://opcfoundation.org/UA/"

	defaultCacheTTL = 10 * time.Minute
)

var (
	ErrUnknownType     = &addressspace.Error{Code: ua.BadNodeIDUnknown, Text: "type is not registered"}
	ErrNotInstantiable = &addressspace.Error{Code: ua.BadNodeClassInvalid, Text: "type cannot be instantiated"}
	ErrNotAType        = &addressspace.Error{Code: ua.BadNodeClassInvalid, Text: "descriptor does not describe a type"}
	ErrTypeExists      = &addressspace.Error{Code: ua.BadInvalidArgument, Text: "type is already registered"}
)

// Registry is the resource table of type descriptors keyed by type NodeID. It is safe
// for concurrent use; the node trees it builds are not.
type Registry struct {
	mu          sync.RWMutex
	namespaces  []string
	blobs       map[ua.NodeID][]byte
	kinds       map[ua.NodeID]*addressspace.Kind
	order       []ua.NodeID
	superTypes  map[ua.NodeID]ua.NodeID
	instanceURI string

	cache    *ttlcache.Cache[ua.NodeID, *descriptor.Descriptor]
	cacheTTL time.Duration
	ids      IDGenerator
	logger   *zap.SugaredLogger
}

type Option func(*Registry)

// WithIDGenerator selects how instance NodeIDs are made. PathIDs is the default.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Registry) { r.ids = g }
}

// WithCacheTTL sets how long decoded type descriptors stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.cacheTTL = ttl }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithInstanceNamespace places root instances in the namespace uri instead of the
// namespace of their type.
func WithInstanceNamespace(uri string) Option {
	return func(r *Registry) { r.instanceURI = uri }
}

// NewRegistry returns a registry holding the built-in OPC UA types.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		namespaces: []string{NamespaceUA},
		blobs:      map[ua.NodeID][]byte{},
		kinds:      map[ua.NodeID]*addressspace.Kind{},
		superTypes: map[ua.NodeID]ua.NodeID{},
		cacheTTL:   defaultCacheTTL,
		ids:        PathIDs{},
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = ttlcache.New[ua.NodeID, *descriptor.Descriptor](
		ttlcache.WithTTL[ua.NodeID, *descriptor.Descriptor](r.cacheTTL),
	)
	if r.instanceURI != "" {
		r.AddNamespace(r.instanceURI)
	}
	r.registerBuiltins()
	return r
}

// NamespaceURIs returns a copy of the namespace table. It implements ua.EncodingContext.
func (r *Registry) NamespaceURIs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.namespaces...)
}

// AddNamespace adds uri to the namespace table if absent and returns its index.
func (r *Registry) AddNamespace(uri string) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.namespaces {
		if u == uri {
			return uint16(i)
		}
	}
	r.namespaces = append(r.namespaces, uri)
	return uint16(len(r.namespaces) - 1)
}

// NewContext returns a context whose factory and data type resolver are r. The
// namespace table is captured when the context is made.
func (r *Registry) NewContext(logger *zap.SugaredLogger) *addressspace.Context {
	if logger == nil {
		logger = r.logger
	}
	return &addressspace.Context{
		Namespaces: r.NamespaceURIs(),
		Factory:    r,
		DataTypes:  r,
		Logger:     logger,
	}
}

// Register decodes a type descriptor and adds it to the table. The supertype named by
// the inverse HasSubtype reference must already be registered.
func (r *Registry) Register(blob []byte) (*addressspace.Kind, error) {
	d, err := descriptor.Decode(blob, descriptor.Namespaces(r.NamespaceURIs()))
	if err != nil {
		decodeErrors.Inc()
		return nil, errors.Wrap(err, "register type")
	}
	return r.register(d, blob)
}

// RegisterBase64 registers the base64 text form of a descriptor.
func (r *Registry) RegisterBase64(text string) (*addressspace.Kind, error) {
	d, err := descriptor.DecodeBase64(text, descriptor.Namespaces(r.NamespaceURIs()))
	if err != nil {
		decodeErrors.Inc()
		return nil, errors.Wrap(err, "register type")
	}
	blob, err := descriptor.Encode(d, descriptor.Namespaces(r.NamespaceURIs()))
	if err != nil {
		return nil, errors.Wrap(err, "register type")
	}
	return r.register(d, blob)
}

// RegisterDataType adds a data type deriving from superType. Values of the data type
// are checked like values of the nearest built-in supertype.
func (r *Registry) RegisterDataType(id ua.NodeID, browseName ua.QualifiedName, superType ua.NodeID) error {
	d := &descriptor.Descriptor{
		NodeClass:  ua.NodeClassDataType,
		NodeID:     id,
		BrowseName: browseName,
		References: []ua.Reference{
			ua.NewReference(ua.ReferenceTypeIDHasSubtype, true, ua.NewExpandedNodeID(superType)),
		},
	}
	blob, err := descriptor.Encode(d, descriptor.Namespaces(r.NamespaceURIs()))
	if err != nil {
		return errors.Wrapf(err, "register data type %s", browseName.Name)
	}
	_, err = r.register(d, blob)
	return err
}

func (r *Registry) register(d *descriptor.Descriptor, blob []byte) (*addressspace.Kind, error) {
	switch d.NodeClass {
	case ua.NodeClassObjectType, ua.NodeClassVariableType, ua.NodeClassDataType, ua.NodeClassReferenceType:
	default:
		return nil, errors.Wrapf(ErrNotAType, "%s has node class %v", d.BrowseName.Name, d.NodeClass)
	}
	if d.NodeID == nil {
		return nil, errors.Wrapf(ErrNotAType, "%s has no NodeId", d.BrowseName.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[d.NodeID]; ok {
		return nil, errors.Wrapf(ErrTypeExists, "%s (%v)", d.BrowseName.Name, d.NodeID)
	}
	super := d.SuperTypeID(r.namespaces)
	var parent *addressspace.Kind
	if super != nil {
		parent = r.kinds[super]
		switch {
		case parent == nil && d.NodeClass != ua.NodeClassDataType:
			return nil, errors.Wrapf(ErrUnknownType, "supertype %v of %s", super, d.BrowseName.Name)
		case parent != nil && parent.NodeClass != d.NodeClass:
			return nil, errors.Wrapf(ErrNotAType, "supertype %s of %s has node class %v", parent.BrowseName.Name, d.BrowseName.Name, parent.NodeClass)
		}
	}

	kind := &addressspace.Kind{
		TypeID:          d.NodeID,
		BrowseName:      d.BrowseName,
		DisplayName:     d.DisplayName,
		NodeClass:       d.NodeClass,
		IsAbstract:      d.IsAbstract,
		Parent:          parent,
		DataType:        d.DataType,
		ValueRank:       d.ValueRank,
		ArrayDimensions: d.ArrayDimensions,
	}
	for _, c := range d.Children {
		kind.Slots = append(kind.Slots, &addressspace.Slot{
			BrowseName:       c.BrowseName,
			ReferenceTypeID:  c.ReferenceTypeID,
			TypeDefinitionID: c.TypeDefinitionID,
			Optional:         c.ModellingRule == descriptor.ModellingRuleOptional,
			Body:             c.Body,
			Owner:            kind,
		})
	}
	if d.NodeClass == ua.NodeClassDataType && super != nil {
		r.superTypes[d.NodeID] = super
	}
	r.kinds[d.NodeID] = kind
	r.blobs[d.NodeID] = blob
	r.order = append(r.order, d.NodeID)
	r.cache.Set(d.NodeID, d, ttlcache.DefaultTTL)
	r.logger.Debugw("type registered", "type", d.BrowseName.Name, "id", d.NodeID, "slots", len(kind.Slots))
	return kind, nil
}

// Kind returns the registered kind of typeID, or nil.
func (r *Registry) Kind(typeID ua.NodeID) *addressspace.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kinds[typeID]
}

// Kinds returns every registered kind in registration order.
func (r *Registry) Kinds() []*addressspace.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*addressspace.Kind, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.kinds[id])
	}
	return out
}

// SuperType implements addressspace.DataTypeResolver.
func (r *Registry) SuperType(dataType ua.NodeID) ua.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.superTypes[dataType]
}

// Descriptor returns the decoded descriptor of a registered type. The result is
// shared and must not be modified.
func (r *Registry) Descriptor(typeID ua.NodeID) (*descriptor.Descriptor, error) {
	if item := r.cache.Get(typeID); item != nil {
		return item.Value(), nil
	}
	r.mu.RLock()
	blob, ok := r.blobs[typeID]
	ns := append([]string(nil), r.namespaces...)
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%v", typeID)
	}
	d, err := descriptor.Decode(blob, descriptor.Namespaces(ns))
	if err != nil {
		decodeErrors.Inc()
		return nil, errors.Wrapf(err, "type %v", typeID)
	}
	r.cache.Set(typeID, d, ttlcache.DefaultTTL)
	return d, nil
}
