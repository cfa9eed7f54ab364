package nodeset

import (
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/descriptor"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
)

// Entry is a compiled type, encoded against the namespace table given to Compile.
type Entry struct {
	Name string
	ID   ua.NodeID
	Blob []byte
}

type compiler struct {
	uris    []string
	symbols map[string]ua.NodeID
	classes map[ua.NodeID]ua.NodeClass
}

func (m *Model) newCompiler() *compiler {
	c := &compiler{
		uris:    append([]string{registry.NamespaceUA}, m.Namespaces...),
		symbols: map[string]ua.NodeID{},
		classes: map[ua.NodeID]ua.NodeClass{},
	}
	for id, class := range builtinClasses {
		c.classes[id] = class
	}
	return c
}

// resolve turns a model name into a NodeID of the file table: a name declared by the
// model, a built-in name, or a NodeId string.
func (c *compiler) resolve(name string) (ua.NodeID, error) {
	if id, ok := c.symbols[name]; ok {
		return id, nil
	}
	if id, ok := builtinNames[name]; ok {
		return id, nil
	}
	if id := ua.ParseNodeID(name); id != nil {
		return id, nil
	}
	return nil, errors.Errorf("unknown name %q", name)
}

func (c *compiler) parseID(s string) (ua.NodeID, error) {
	id := ua.ParseNodeID(s)
	if id == nil {
		return nil, errors.Errorf("invalid NodeId %q", s)
	}
	if ns := descriptor.NamespaceIndex(id); int(ns) >= len(c.uris) {
		return nil, &descriptor.NamespaceResolutionError{Field: "NodeId", Index: ns}
	}
	return id, nil
}

func (c *compiler) declare(name string, id ua.NodeID, class ua.NodeClass) error {
	if _, ok := c.symbols[name]; ok {
		return errors.Errorf("%s is declared twice", name)
	}
	c.symbols[name] = id
	c.classes[id] = class
	return nil
}

// Compile encodes every data type and type of the model against ec's namespace table,
// supertypes before their subtypes. Every namespace of the model must be in that table.
// A nil ec compiles against the model's own table.
func (m *Model) Compile(ec ua.EncodingContext) ([]Entry, error) {
	c := m.newCompiler()
	if ec == nil {
		ec = descriptor.Namespaces(c.uris)
	}

	for i := range m.DataTypes {
		dt := &m.DataTypes[i]
		id, err := c.parseID(dt.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "data type %s", dt.Name)
		}
		if err := c.declare(dt.Name, id, ua.NodeClassDataType); err != nil {
			return nil, err
		}
	}
	var all []*descriptor.Descriptor
	for i := range m.DataTypes {
		dt := &m.DataTypes[i]
		d, err := c.dataTypeDescriptor(dt)
		if err != nil {
			return nil, errors.Wrapf(err, "data type %s", dt.Name)
		}
		all = append(all, d)
	}

	decoded := map[int]*descriptor.Descriptor{}
	for i := range m.Types {
		t := &m.Types[i]
		if t.Descriptor == "" {
			id, err := c.parseID(t.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "type %s", t.Name)
			}
			if err := c.declare(t.Name, id, typeClass(t.Class)); err != nil {
				return nil, err
			}
			continue
		}
		d, err := descriptor.DecodeBase64(t.Descriptor, descriptor.Namespaces(c.uris))
		if err != nil {
			return nil, errors.Wrapf(err, "type #%d", i)
		}
		if err := c.declare(d.BrowseName.Name, d.NodeID, d.NodeClass); err != nil {
			return nil, err
		}
		decoded[i] = d
	}
	for i := range m.Types {
		d, ok := decoded[i]
		if !ok {
			var err error
			if d, err = c.typeDescriptor(&m.Types[i]); err != nil {
				return nil, errors.Wrapf(err, "type %s", m.Types[i].Name)
			}
		}
		all = append(all, d)
	}

	ordered, err := c.order(all)
	if err != nil {
		return nil, err
	}
	tr := descriptor.Translator{From: c.uris, To: ec.NamespaceURIs()}
	entries := make([]Entry, 0, len(ordered))
	for _, d := range ordered {
		out, err := descriptor.Remap(d, tr)
		if err != nil {
			return nil, errors.Wrapf(err, "type %s", d.BrowseName.Name)
		}
		blob, err := descriptor.Encode(out, ec)
		if err != nil {
			return nil, errors.Wrapf(err, "type %s", d.BrowseName.Name)
		}
		entries = append(entries, Entry{Name: d.BrowseName.Name, ID: out.NodeID, Blob: blob})
	}
	return entries, nil
}

// Apply adds the model's namespaces to reg and registers its types.
func (m *Model) Apply(reg *registry.Registry) ([]*addressspace.Kind, error) {
	for _, uri := range m.Namespaces {
		reg.AddNamespace(uri)
	}
	entries, err := m.Compile(reg)
	if err != nil {
		return nil, err
	}
	kinds := make([]*addressspace.Kind, 0, len(entries))
	for _, e := range entries {
		kind, err := reg.Register(e.Blob)
		if err != nil {
			return kinds, errors.Wrapf(err, "register %s", e.Name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// order sorts descriptors so that a supertype declared by the model precedes its
// subtypes. Declaration order is kept otherwise.
func (c *compiler) order(all []*descriptor.Descriptor) ([]*descriptor.Descriptor, error) {
	byID := make(map[ua.NodeID]*descriptor.Descriptor, len(all))
	for _, d := range all {
		byID[d.NodeID] = d
	}
	const (
		visiting = 1
		done     = 2
	)
	state := map[ua.NodeID]int{}
	out := make([]*descriptor.Descriptor, 0, len(all))
	var visit func(d *descriptor.Descriptor) error
	visit = func(d *descriptor.Descriptor) error {
		switch state[d.NodeID] {
		case done:
			return nil
		case visiting:
			return errors.Errorf("supertype cycle through %s", d.BrowseName.Name)
		}
		state[d.NodeID] = visiting
		if super, ok := byID[d.SuperTypeID(c.uris)]; ok {
			if err := visit(super); err != nil {
				return err
			}
		}
		state[d.NodeID] = done
		out = append(out, d)
		return nil
	}
	for _, d := range all {
		if err := visit(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func typeClass(class string) ua.NodeClass {
	if class == "VariableType" {
		return ua.NodeClassVariableType
	}
	return ua.NodeClassObjectType
}

func subtypeOf(super ua.NodeID) []ua.Reference {
	return []ua.Reference{ua.NewReference(ua.ReferenceTypeIDHasSubtype, true, ua.NewExpandedNodeID(super))}
}

func (c *compiler) dataTypeDescriptor(dt *DataType) (*descriptor.Descriptor, error) {
	id := c.symbols[dt.Name]
	super, err := c.resolve(dt.Super)
	if err != nil {
		return nil, err
	}
	return &descriptor.Descriptor{
		NodeClass:   ua.NodeClassDataType,
		NodeID:      id,
		BrowseName:  ua.NewQualifiedName(descriptor.NamespaceIndex(id), dt.Name),
		DisplayName: ua.NewLocalizedText(dt.Name, ""),
		References:  subtypeOf(super),
	}, nil
}

func (c *compiler) typeDescriptor(t *Type) (*descriptor.Descriptor, error) {
	id := c.symbols[t.Name]
	ns := descriptor.NamespaceIndex(id)
	class := typeClass(t.Class)

	superName := t.Super
	if superName == "" {
		superName = "BaseObjectType"
		if class == ua.NodeClassVariableType {
			superName = "BaseDataVariableType"
		}
	}
	super, err := c.resolve(superName)
	if err != nil {
		return nil, err
	}

	d := &descriptor.Descriptor{
		NodeClass:       class,
		NodeID:          id,
		BrowseName:      ua.NewQualifiedName(ns, t.Name),
		DisplayName:     ua.NewLocalizedText(orDefault(t.DisplayName, t.Name), ""),
		IsAbstract:      t.Abstract,
		References:      subtypeOf(super),
		ArrayDimensions: t.ArrayDimensions,
	}
	if t.Description != "" {
		d.Description = ua.NewLocalizedText(t.Description, "")
	}
	if class == ua.NodeClassVariableType && t.DataType != "" {
		if d.DataType, err = c.resolve(t.DataType); err != nil {
			return nil, err
		}
		d.ValueRank = valueRank(t.ValueRank)
	}

	seen := map[string]bool{}
	for i := range t.Children {
		ch := &t.Children[i]
		if seen[ch.Name] {
			return nil, errors.Wrapf(addressspace.ErrDuplicateBrowseName, "child %s", ch.Name)
		}
		seen[ch.Name] = true
		decl, err := c.declaration(t.Name, ns, ch)
		if err != nil {
			return nil, errors.Wrapf(err, "child %s", ch.Name)
		}
		d.Children = append(d.Children, decl)
	}
	return d, nil
}

func (c *compiler) declaration(owner string, ns uint16, ch *Child) (descriptor.Declaration, error) {
	typeName := ch.Type
	if typeName == "" {
		typeName = "BaseObjectType"
		if ch.DataType != "" {
			typeName = "BaseDataVariableType"
		}
	}
	typeDef, err := c.resolve(typeName)
	if err != nil {
		return descriptor.Declaration{}, err
	}

	refName := ch.Reference
	if refName == "" {
		refName = "HasComponent"
		if typeDef == addressspace.PropertyType {
			refName = "HasProperty"
		}
	}
	ref, err := c.resolve(refName)
	if err != nil {
		return descriptor.Declaration{}, err
	}

	decl := descriptor.Declaration{
		BrowseName:       ua.NewQualifiedName(ns, ch.Name),
		ReferenceTypeID:  ref,
		TypeDefinitionID: typeDef,
	}
	if ch.Rule == "Optional" {
		decl.ModellingRule = descriptor.ModellingRuleOptional
	}
	if ch.Omit {
		return decl, nil
	}

	body := &descriptor.Descriptor{
		NodeClass:        ua.NodeClassObject,
		NodeID:           ua.NewNodeIDString(ns, owner+"."+ch.Name),
		BrowseName:       decl.BrowseName,
		DisplayName:      ua.NewLocalizedText(orDefault(ch.DisplayName, ch.Name), ""),
		TypeDefinitionID: typeDef,
	}
	if ch.Description != "" {
		body.Description = ua.NewLocalizedText(ch.Description, "")
	}
	if c.classes[typeDef] == ua.NodeClassVariableType || ch.DataType != "" {
		body.NodeClass = ua.NodeClassVariable
		if ch.DataType != "" {
			if body.DataType, err = c.resolve(ch.DataType); err != nil {
				return descriptor.Declaration{}, err
			}
			body.ValueRank = valueRank(ch.ValueRank)
		}
	}
	if decl.Body, err = descriptor.Encode(body, descriptor.Namespaces(c.uris)); err != nil {
		return descriptor.Declaration{}, err
	}
	return decl, nil
}

func valueRank(rank *int32) int32 {
	if rank == nil {
		return ua.ValueRankScalar
	}
	return *rank
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
