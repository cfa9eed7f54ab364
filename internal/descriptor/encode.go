package descriptor

import (
	"bytes"
	"encoding/base64"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

type writer struct {
	buf *bytes.Buffer
	enc *ua.BinaryEncoder
	err error
}

func (w *writer) write(field string, fn func() error) {
	if w.err != nil {
		return
	}
	if err := fn(); err != nil {
		w.err = errors.Wrapf(err, "descriptor: encode %s", field)
	}
}

func (w *writer) count(field string, n int) {
	if n > maxCount {
		if w.err == nil {
			w.err = errors.Errorf("descriptor: encode %s: length %d exceeds limit %d", field, n, maxCount)
		}
		return
	}
	w.write(field, func() error { return w.enc.WriteInt32(int32(n)) })
}

// Encode writes d in the version 1 layout. Decode(Encode(d)) yields a descriptor equal
// to d, with empty slices normalized to nil.
func Encode(d *Descriptor, ec ua.EncodingContext) ([]byte, error) {
	if ec == nil {
		ec = ua.NewEncodingContext()
	}
	if !validNodeClass(int32(d.NodeClass)) {
		return nil, errors.Errorf("descriptor: encode NodeClass: unknown node class %d", d.NodeClass)
	}
	if err := checkNamespaces(d, ec.NamespaceURIs()); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	w := &writer{buf: buf, enc: ua.NewBinaryEncoder(buf, ec)}
	mask := d.fieldMask()

	w.write("version", func() error { return w.enc.WriteByte(Version) })
	w.write("field mask", func() error { return w.enc.WriteUInt32(mask) })
	w.write("NodeClass", func() error { return w.enc.WriteInt32(int32(d.NodeClass)) })
	w.write("NodeId", func() error { return w.enc.WriteNodeID(d.NodeID) })
	w.write("BrowseName", func() error { return w.enc.WriteQualifiedName(d.BrowseName) })
	if mask&fieldDisplayName != 0 {
		w.write("DisplayName", func() error { return w.enc.WriteLocalizedText(d.DisplayName) })
	}
	if mask&fieldDescription != 0 {
		w.write("Description", func() error { return w.enc.WriteLocalizedText(d.Description) })
	}
	if mask&fieldTypeDefinition != 0 {
		w.write("TypeDefinition", func() error { return w.enc.WriteNodeID(d.TypeDefinitionID) })
	}
	if mask&fieldVariable != 0 {
		w.write("DataType", func() error { return w.enc.WriteNodeID(d.DataType) })
		w.write("ValueRank", func() error { return w.enc.WriteInt32(d.ValueRank) })
		w.count("ArrayDimensions", len(d.ArrayDimensions))
		for _, dim := range d.ArrayDimensions {
			dim := dim
			w.write("ArrayDimensions", func() error { return w.enc.WriteUInt32(dim) })
		}
	}
	if mask&fieldReferences != 0 {
		w.count("References", len(d.References))
		for _, ref := range d.References {
			ref := ref
			w.write("ReferenceType", func() error { return w.enc.WriteNodeID(ref.ReferenceTypeID) })
			w.write("IsInverse", func() error { return w.enc.WriteBoolean(ref.IsInverse) })
			w.write("TargetId", func() error { return w.enc.WriteExpandedNodeID(ref.TargetID) })
		}
	}
	if mask&fieldChildren != 0 {
		w.count("Children", len(d.Children))
		for _, c := range d.Children {
			c := c
			w.write("Child.BrowseName", func() error { return w.enc.WriteQualifiedName(c.BrowseName) })
			w.write("Child.ReferenceType", func() error { return w.enc.WriteNodeID(c.ReferenceTypeID) })
			w.write("Child.TypeDefinition", func() error { return w.enc.WriteNodeID(c.TypeDefinitionID) })
			w.write("Child.ModellingRule", func() error { return w.enc.WriteByte(byte(c.ModellingRule)) })
			w.count("Child.Body", len(c.Body))
			w.write("Child.Body", func() error {
				_, err := buf.Write(c.Body)
				return err
			})
		}
	}
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns the base64 text form of Encode.
func EncodeBase64(d *Descriptor, ec ua.EncodingContext) (string, error) {
	blob, err := Encode(d, ec)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}
