package descriptor

import (
	"github.com/awcullen/opcua/ua"
)

// Namespaces is a plain namespace table usable as a ua.EncodingContext.
type Namespaces []string

func (n Namespaces) NamespaceURIs() []string { return n }

// NamespaceIndex returns the namespace index of id. A nil id lives in namespace 0.
func NamespaceIndex(id ua.NodeID) uint16 {
	switch id := id.(type) {
	case ua.NodeIDNumeric:
		return id.NamespaceIndex
	case ua.NodeIDString:
		return id.NamespaceIndex
	case ua.NodeIDGUID:
		return id.NamespaceIndex
	case ua.NodeIDOpaque:
		return id.NamespaceIndex
	}
	return 0
}

type nsCheck struct {
	uris []string
	err  error
}

func (c *nsCheck) index(field string, ns uint16) {
	if c.err == nil && int(ns) >= len(c.uris) {
		c.err = &NamespaceResolutionError{Field: field, Index: ns}
	}
}

func (c *nsCheck) nodeID(field string, id ua.NodeID) {
	if id != nil {
		c.index(field, NamespaceIndex(id))
	}
}

func (c *nsCheck) expanded(field string, id ua.ExpandedNodeID) {
	switch {
	case id.ServerIndex > 0:
		// remote server, resolved by that server's table
	case id.NamespaceURI != "":
		for _, uri := range c.uris {
			if uri == id.NamespaceURI {
				return
			}
		}
		if c.err == nil {
			c.err = &NamespaceResolutionError{Field: field, URI: id.NamespaceURI}
		}
	default:
		c.nodeID(field, id.NodeID)
	}
}

// checkNamespaces verifies that every namespace the descriptor's header refers to is
// present in uris. Child bodies are checked when they are decoded.
func checkNamespaces(d *Descriptor, uris []string) error {
	c := &nsCheck{uris: uris}
	c.nodeID("NodeId", d.NodeID)
	c.index("BrowseName", d.BrowseName.NamespaceIndex)
	c.nodeID("TypeDefinition", d.TypeDefinitionID)
	c.nodeID("DataType", d.DataType)
	for _, r := range d.References {
		c.nodeID("ReferenceType", r.ReferenceTypeID)
		c.expanded("TargetId", r.TargetID)
	}
	for _, ch := range d.Children {
		c.index("Child.BrowseName", ch.BrowseName.NamespaceIndex)
		c.nodeID("Child.ReferenceType", ch.ReferenceTypeID)
		c.nodeID("Child.TypeDefinition", ch.TypeDefinitionID)
	}
	return c.err
}

// Translator maps namespace indices from one table to another by URI.
type Translator struct {
	From, To []string
}

// NodeID translates id. Namespace 0 is shared by every table.
func (t Translator) NodeID(id ua.NodeID) (ua.NodeID, error) {
	if id == nil {
		return nil, nil
	}
	ns := NamespaceIndex(id)
	if ns == 0 {
		return id, nil
	}
	if int(ns) >= len(t.From) {
		return nil, &NamespaceResolutionError{Field: "NodeId", Index: ns}
	}
	out := ua.ToNodeID(ua.ToExpandedNodeID(id, t.From), t.To)
	if out == nil {
		return nil, &NamespaceResolutionError{Field: "NodeId", URI: t.From[ns]}
	}
	return out, nil
}

// QualifiedName translates the namespace index of a browse name.
func (t Translator) QualifiedName(qn ua.QualifiedName) (ua.QualifiedName, error) {
	if qn.NamespaceIndex == 0 {
		return qn, nil
	}
	if int(qn.NamespaceIndex) >= len(t.From) {
		return qn, &NamespaceResolutionError{Field: "BrowseName", Index: qn.NamespaceIndex}
	}
	uri := t.From[qn.NamespaceIndex]
	for i, u := range t.To {
		if u == uri {
			return ua.QualifiedName{NamespaceIndex: uint16(i), Name: qn.Name}, nil
		}
	}
	return qn, &NamespaceResolutionError{Field: "BrowseName", URI: uri}
}

func (t Translator) expanded(id ua.ExpandedNodeID) (ua.ExpandedNodeID, error) {
	if id.ServerIndex > 0 || id.NamespaceURI != "" {
		return id, nil
	}
	n, err := t.NodeID(id.NodeID)
	if err != nil {
		return id, err
	}
	return ua.ExpandedNodeID{NodeID: n}, nil
}

// Remap returns a copy of d whose namespace indices, including those inside child
// bodies, refer to the To table instead of the From table.
func Remap(d *Descriptor, t Translator) (*Descriptor, error) {
	out := *d
	var err error
	tr := func(id ua.NodeID) ua.NodeID {
		if err != nil {
			return nil
		}
		var n ua.NodeID
		n, err = t.NodeID(id)
		return n
	}
	trName := func(qn ua.QualifiedName) ua.QualifiedName {
		if err != nil {
			return qn
		}
		var q ua.QualifiedName
		q, err = t.QualifiedName(qn)
		return q
	}

	out.NodeID = tr(d.NodeID)
	out.BrowseName = trName(d.BrowseName)
	out.TypeDefinitionID = tr(d.TypeDefinitionID)
	out.DataType = tr(d.DataType)
	out.References = nil
	for _, r := range d.References {
		r.ReferenceTypeID = tr(r.ReferenceTypeID)
		if err == nil {
			r.TargetID, err = t.expanded(r.TargetID)
		}
		out.References = append(out.References, r)
	}
	out.Children = nil
	for _, c := range d.Children {
		c.BrowseName = trName(c.BrowseName)
		c.ReferenceTypeID = tr(c.ReferenceTypeID)
		c.TypeDefinitionID = tr(c.TypeDefinitionID)
		if err == nil && len(c.Body) > 0 {
			c.Body, err = remapBody(c.Body, t)
		}
		out.Children = append(out.Children, c)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func remapBody(body []byte, t Translator) ([]byte, error) {
	d, err := Decode(body, Namespaces(t.From))
	if err != nil {
		return nil, err
	}
	if d, err = Remap(d, t); err != nil {
		return nil, err
	}
	return Encode(d, Namespaces(t.To))
}
