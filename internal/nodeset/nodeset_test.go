package nodeset_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/descriptor"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/nodeset"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
)

const pressNS = "http://example.com/UA/Press/"

func loadPress(t *testing.T) *nodeset.Model {
	t.Helper()
	m, err := nodeset.LoadFile("testdata/press.yaml")
	require.NoError(t, err)
	return m
}

func TestCompileOrder(t *testing.T) {
	m := loadPress(t)
	entries, err := m.Compile(nil)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"PressModeEnum", "PressType", "HydraulicPressType", "PressureType"}, names)
	assert.Equal(t, ua.NewNodeIDNumeric(1, 1001), entries[1].ID)

	d, err := descriptor.Decode(entries[2].Blob, descriptor.Namespaces{registry.NamespaceUA, pressNS})
	require.NoError(t, err)
	assert.Equal(t, ua.NewNodeIDNumeric(1, 1001), d.SuperTypeID([]string{registry.NamespaceUA, pressNS}))
	require.Len(t, d.Children, 2)
	assert.Equal(t, ua.ReferenceTypeIDHasComponent, d.Children[0].ReferenceTypeID)
	assert.Equal(t, ua.ReferenceTypeIDHasProperty, d.Children[1].ReferenceTypeID)
	assert.Equal(t, descriptor.ModellingRuleOptional, d.Children[1].ModellingRule)
}

func TestApply(t *testing.T) {
	reg := registry.NewRegistry()
	require.Equal(t, uint16(1), reg.AddNamespace("urn:other"))

	kinds, err := loadPress(t).Apply(reg)
	require.NoError(t, err)
	require.Len(t, kinds, 4)
	assert.Equal(t, []string{registry.NamespaceUA, "urn:other", pressNS}, reg.NamespaceURIs())

	pressType := ua.NewNodeIDNumeric(2, 1001)
	hydraulicType := ua.NewNodeIDNumeric(2, 1002)
	assert.Same(t, reg.Kind(pressType), reg.Kind(hydraulicType).Parent)

	ctx := reg.NewContext(nil)
	press, err := reg.Instantiate(ctx, hydraulicType, nil, registry.WithBrowseName(ua.NewQualifiedName(2, "Press01")))
	require.NoError(t, err)
	assert.Equal(t, hydraulicType, press.GetDefaultTypeDefinitionID())

	var names []string
	for _, c := range press.Children() {
		names = append(names, c.BrowseName().Name)
	}
	assert.Equal(t, []string{"Mode", "Manufacturer", "Pressure", "Tonnage"}, names)

	mode := press.Child(ua.NewQualifiedName(2, "Mode"))
	require.NotNil(t, mode)
	assert.Equal(t, ua.NewNodeIDNumeric(2, 3001), mode.DataType())
	v, err := mode.Value()
	require.NoError(t, err)
	assert.Equal(t, int32(0), v)
	assert.ErrorIs(t, mode.SetValue("RUNNING"), addressspace.ErrTypeMismatch)

	pressure := press.Child(ua.NewQualifiedName(2, "Pressure"))
	require.NotNil(t, pressure)
	assert.Equal(t, "Line pressure", pressure.DisplayName().Text)
	assert.Equal(t, ua.DataTypeIDDouble, pressure.DataType())
	assert.NotNil(t, pressure.Child(ua.NewQualifiedName(2, "Units")))

	tonnage := press.Child(ua.NewQualifiedName(2, "Tonnage"))
	assert.Equal(t, ua.ReferenceTypeIDHasProperty, tonnage.ReferenceTypeID())

	assert.Nil(t, press.FindChild(ctx, ua.NewQualifiedName(2, "StrokeRate"), false, nil))
	assert.NotNil(t, press.FindChild(ctx, ua.NewQualifiedName(2, "StrokeRate"), true, nil))

	base, err := reg.Instantiate(ctx, pressType, nil)
	require.NoError(t, err)
	assert.Equal(t, "A stamping press.", base.Description().Text)
}

func TestEncodedType(t *testing.T) {
	table := descriptor.Namespaces{registry.NamespaceUA, pressNS}
	text, err := descriptor.EncodeBase64(&descriptor.Descriptor{
		NodeClass:  ua.NodeClassObjectType,
		NodeID:     ua.NewNodeIDNumeric(1, 1500),
		BrowseName: ua.NewQualifiedName(1, "ServoPressType"),
		References: []ua.Reference{
			ua.NewReference(ua.ReferenceTypeIDHasSubtype, true, ua.NewExpandedNodeID(ua.NewNodeIDNumeric(1, 1001))),
		},
	}, table)
	require.NoError(t, err)

	doc := fmt.Sprintf(`
namespaces: [%q]
types:
  - descriptor: %s
  - id: ns=1;i=1001
    name: PressType
    class: ObjectType
`, pressNS, text)
	m, err := nodeset.Load(strings.NewReader(doc))
	require.NoError(t, err)

	reg := registry.NewRegistry()
	reg.AddNamespace("urn:first")
	kinds, err := m.Apply(reg)
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	assert.Equal(t, "PressType", kinds[0].BrowseName.Name)
	assert.Equal(t, ua.NewNodeIDNumeric(2, 1500), kinds[1].TypeID)
	assert.Same(t, kinds[0], kinds[1].Parent)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "devices: []"},
		{"bad class", "types: [{id: 'ns=0;i=5000', name: X, class: Method}]"},
		{"missing name", "types: [{id: 'ns=0;i=5000', class: ObjectType}]"},
		{"bad rule", "types: [{id: 'ns=0;i=5000', name: X, class: ObjectType, children: [{name: A, rule: Sometimes}]}]"},
		{"not yaml", "types: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nodeset.Load(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := nodeset.LoadFile("testdata/missing.yaml")
	assert.Error(t, err)

	m, err := nodeset.Load(strings.NewReader(""))
	require.NoError(t, err)
	entries, err := m.Compile(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown supertype",
			doc:  "namespaces: [urn:a]\ntypes: [{id: 'ns=1;i=1', name: AType, class: ObjectType, super: NoSuchType}]",
			want: "unknown name",
		},
		{
			name: "unknown data type",
			doc:  "namespaces: [urn:a]\ntypes: [{id: 'ns=1;i=1', name: AType, class: ObjectType, children: [{name: X, dataType: Decimal128}]}]",
			want: "unknown name",
		},
		{
			name: "cycle",
			doc: "namespaces: [urn:a]\ntypes:\n" +
				"  - {id: 'ns=1;i=1', name: AType, class: ObjectType, super: BType}\n" +
				"  - {id: 'ns=1;i=2', name: BType, class: ObjectType, super: AType}",
			want: "cycle",
		},
		{
			name: "declared twice",
			doc: "namespaces: [urn:a]\ntypes:\n" +
				"  - {id: 'ns=1;i=1', name: AType, class: ObjectType}\n" +
				"  - {id: 'ns=1;i=2', name: AType, class: ObjectType}",
			want: "declared twice",
		},
		{
			name: "duplicate child",
			doc:  "namespaces: [urn:a]\ntypes: [{id: 'ns=1;i=1', name: AType, class: ObjectType, children: [{name: X}, {name: X}]}]",
			want: "child X",
		},
		{
			name: "namespace out of range",
			doc:  "namespaces: [urn:a]\ntypes: [{id: 'ns=4;i=1', name: AType, class: ObjectType}]",
			want: "namespace",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := nodeset.Load(strings.NewReader(tt.doc))
			require.NoError(t, err)
			_, err = m.Compile(nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
