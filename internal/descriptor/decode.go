package descriptor

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// reader keeps the first decode failure and turns every later read into a no-op.
type reader struct {
	blob []byte
	src  *bytes.Reader
	dec  *ua.BinaryDecoder
	size int
	err  error
}

func (r *reader) offset() int {
	return r.size - r.src.Len()
}

func (r *reader) read(field string, fn func() error) {
	if r.err != nil {
		return
	}
	off := r.offset()
	if err := fn(); err != nil {
		r.err = &DecodeError{Field: field, Offset: off, Err: err}
	}
}

func (r *reader) fail(field string, off int, err error) {
	if r.err == nil {
		r.err = &DecodeError{Field: field, Offset: off, Err: err}
	}
}

// count reads an Int32 length prefix. Every element occupies at least one byte, so a
// prefix larger than the remaining buffer is rejected before anything is allocated.
// Strings inside NodeIds, names and texts are checked by guard instead.
func (r *reader) count(field string) int {
	var n int32
	off := r.offset()
	r.read(field, func() error { return r.dec.ReadInt32(&n) })
	if r.err != nil {
		return 0
	}
	switch {
	case n < 0:
		r.fail(field, off, errors.Errorf("negative length %d", n))
		return 0
	case n > maxCount:
		r.fail(field, off, errors.Errorf("length %d exceeds limit %d", n, maxCount))
		return 0
	case int(n) > r.src.Len():
		r.fail(field, off, errors.Errorf("length %d exceeds remaining %d bytes", n, r.src.Len()))
		return 0
	}
	return int(n)
}

// guard checks the value at the current offset with span before the decoder reads it,
// so a forged string length fails instead of sizing an allocation.
func (r *reader) guard(field string, span func([]byte) (int, error)) {
	if r.err != nil {
		return
	}
	off := r.offset()
	if _, err := span(r.blob[off:]); err != nil {
		r.fail(field, off, err)
	}
}

func (r *reader) nodeID(field string, id *ua.NodeID) {
	r.guard(field, nodeIDSpan)
	r.read(field, func() error { return r.dec.ReadNodeID(id) })
}

func (r *reader) expandedNodeID(field string, id *ua.ExpandedNodeID) {
	r.guard(field, expandedNodeIDSpan)
	r.read(field, func() error { return r.dec.ReadExpandedNodeID(id) })
}

func (r *reader) qualifiedName(field string, qn *ua.QualifiedName) {
	r.guard(field, qualifiedNameSpan)
	r.read(field, func() error { return r.dec.ReadQualifiedName(qn) })
}

func (r *reader) localizedText(field string, lt *ua.LocalizedText) {
	r.guard(field, localizedTextSpan)
	r.read(field, func() error { return r.dec.ReadLocalizedText(lt) })
}

func (r *reader) bytes(field string) []byte {
	n := r.count(field)
	if r.err != nil || n == 0 {
		return nil
	}
	buf := make([]byte, n)
	r.read(field, func() error {
		_, err := io.ReadFull(r.src, buf)
		return err
	})
	return buf
}

// Decode parses a version 1 descriptor. Namespace indices in the blob refer to the
// table returned by ec.NamespaceURIs(); a nil ec means the table holds only the OPC UA
// namespace.
func Decode(blob []byte, ec ua.EncodingContext) (*Descriptor, error) {
	if ec == nil {
		ec = ua.NewEncodingContext()
	}
	src := bytes.NewReader(blob)
	r := &reader{blob: blob, src: src, dec: ua.NewBinaryDecoder(src, ec), size: len(blob)}

	var version byte
	r.read("version", func() error { return r.dec.ReadByte(&version) })
	if r.err == nil && version != Version {
		r.fail("version", 0, errors.Errorf("unsupported version %d", version))
	}

	var mask uint32
	r.read("field mask", func() error { return r.dec.ReadUInt32(&mask) })
	if r.err == nil && mask&^knownFields != 0 {
		r.fail("field mask", 1, errors.Errorf("unknown bits %#x", mask))
	}

	d := &Descriptor{}
	var nodeClass int32
	r.read("NodeClass", func() error { return r.dec.ReadInt32(&nodeClass) })
	if r.err == nil && !validNodeClass(nodeClass) {
		r.fail("NodeClass", 5, errors.Errorf("unknown node class %d", nodeClass))
	}
	d.NodeClass = ua.NodeClass(nodeClass)
	r.nodeID("NodeId", &d.NodeID)
	r.qualifiedName("BrowseName", &d.BrowseName)
	d.IsAbstract = mask&fieldAbstract != 0

	if mask&fieldDisplayName != 0 {
		r.localizedText("DisplayName", &d.DisplayName)
	}
	if mask&fieldDescription != 0 {
		r.localizedText("Description", &d.Description)
	}
	if mask&fieldTypeDefinition != 0 {
		r.nodeID("TypeDefinition", &d.TypeDefinitionID)
	}
	if mask&fieldVariable != 0 {
		decodeVariable(r, d)
	}
	if mask&fieldReferences != 0 {
		decodeReferences(r, d)
	}
	if mask&fieldChildren != 0 {
		decodeChildren(r, d)
	}

	if r.err == nil && src.Len() > 0 {
		r.fail("trailing data", r.offset(), errors.Errorf("%d unread bytes", src.Len()))
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := checkNamespaces(d, ec.NamespaceURIs()); err != nil {
		return nil, err
	}
	return d, nil
}

// DecodeBase64 decodes the base64 text form used by model files.
func DecodeBase64(text string, ec ua.EncodingContext) (*Descriptor, error) {
	blob, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Field: "base64", Err: err}
	}
	return Decode(blob, ec)
}

func decodeVariable(r *reader, d *Descriptor) {
	r.nodeID("DataType", &d.DataType)
	if r.err == nil && d.DataType == nil {
		r.fail("DataType", r.offset(), errors.New("null data type"))
	}
	r.read("ValueRank", func() error { return r.dec.ReadInt32(&d.ValueRank) })
	n := r.count("ArrayDimensions")
	for i := 0; i < n && r.err == nil; i++ {
		var dim uint32
		r.read("ArrayDimensions", func() error { return r.dec.ReadUInt32(&dim) })
		d.ArrayDimensions = append(d.ArrayDimensions, dim)
	}
}

func decodeReferences(r *reader, d *Descriptor) {
	n := r.count("References")
	for i := 0; i < n && r.err == nil; i++ {
		var ref ua.Reference
		r.nodeID("ReferenceType", &ref.ReferenceTypeID)
		r.read("IsInverse", func() error { return r.dec.ReadBoolean(&ref.IsInverse) })
		r.expandedNodeID("TargetId", &ref.TargetID)
		d.References = append(d.References, ref)
	}
}

func decodeChildren(r *reader, d *Descriptor) {
	n := r.count("Children")
	for i := 0; i < n && r.err == nil; i++ {
		var c Declaration
		var rule byte
		r.qualifiedName("Child.BrowseName", &c.BrowseName)
		r.nodeID("Child.ReferenceType", &c.ReferenceTypeID)
		r.nodeID("Child.TypeDefinition", &c.TypeDefinitionID)
		off := r.offset()
		r.read("Child.ModellingRule", func() error { return r.dec.ReadByte(&rule) })
		if r.err == nil && rule > byte(ModellingRuleOptional) {
			r.fail("Child.ModellingRule", off, errors.Errorf("unknown modelling rule %d", rule))
		}
		c.ModellingRule = ModellingRule(rule)
		c.Body = r.bytes("Child.Body")
		d.Children = append(d.Children, c)
	}
}

func validNodeClass(v int32) bool {
	switch v {
	case 1, 2, 4, 8, 16, 32, 64, 128:
		return true
	}
	return false
}
