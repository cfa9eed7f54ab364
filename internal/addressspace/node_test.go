package addressspace_test

import (
	"testing"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	as "github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
)

func qn(name string) ua.QualifiedName { return ua.NewQualifiedName(1, name) }

var (
	deviceKind = &as.Kind{
		TypeID:     ua.NewNodeIDNumeric(1, 1001),
		BrowseName: qn("DeviceType"),
		NodeClass:  ua.NodeClassObjectType,
	}
	componentKind = &as.Kind{
		TypeID:     ua.NewNodeIDNumeric(1, 1002),
		BrowseName: qn("ComponentType"),
		NodeClass:  ua.NodeClassObjectType,
		Parent:     deviceKind,
	}
	doubleKind = &as.Kind{
		TypeID:    as.BaseDataVariableType,
		NodeClass: ua.NodeClassVariableType,
		DataType:  ua.DataTypeIDDouble,
		ValueRank: ua.ValueRankScalar,
	}
)

func init() {
	deviceKind.Slots = []*as.Slot{
		{BrowseName: qn("Availability"), ReferenceTypeID: ua.ReferenceTypeIDHasComponent, TypeDefinitionID: as.BaseDataVariableType, Owner: deviceKind},
		{BrowseName: qn("SampleInterval"), ReferenceTypeID: ua.ReferenceTypeIDHasProperty, TypeDefinitionID: as.PropertyType, Optional: true, Owner: deviceKind},
	}
	componentKind.Slots = []*as.Slot{
		{BrowseName: qn("Model"), ReferenceTypeID: ua.ReferenceTypeIDHasProperty, TypeDefinitionID: as.PropertyType, Optional: true, Body: []byte{1}, Owner: componentKind},
	}
}

type fakeFactory struct {
	calls int
	err   error
}

func (f *fakeFactory) NewSlotInstance(ctx *as.Context, parent *as.Node, slot *as.Slot) (*as.Node, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return newVariable(ctx, parent.BrowsePath()+"."+slot.BrowseName.Name, slot.BrowseName, ua.DataTypeIDDouble, ua.ValueRankScalar), nil
}

type superTypes map[ua.NodeID]ua.NodeID

func (s superTypes) SuperType(id ua.NodeID) ua.NodeID { return s[id] }

type recorder struct {
	paths []string
	masks []as.ChangeMask
}

func (r *recorder) OnNodeChanged(_ *as.Context, n *as.Node, mask as.ChangeMask) {
	r.paths = append(r.paths, n.BrowsePath())
	r.masks = append(r.masks, mask)
}

func newObject(kind *as.Kind, name string) *as.Node {
	return as.NewNode(kind, ua.NodeClassObject, ua.NewNodeIDString(1, name), qn(name))
}

func newVariable(ctx *as.Context, id string, name ua.QualifiedName, dataType ua.NodeID, rank int32) *as.Node {
	n := as.NewNode(doubleKind, ua.NodeClassVariable, ua.NewNodeIDString(1, id), name)
	n.Populate(ctx, as.Attributes{DataType: dataType, ValueRank: rank})
	return n
}

func TestChildOwnership(t *testing.T) {
	root := newObject(deviceKind, "Mill")
	other := newObject(deviceKind, "Lathe")
	spindle := newObject(componentKind, "Spindle")

	require.NoError(t, root.AddChild(spindle))
	assert.Same(t, root, spindle.Parent())
	assert.Equal(t, "Mill/Spindle", spindle.BrowsePath())

	err := other.AddChild(spindle)
	assert.ErrorIs(t, err, as.ErrAlreadyParented)
	assert.Equal(t, ua.BadInvalidArgument, as.StatusCode(err))

	assert.ErrorIs(t, root.AddChild(newObject(componentKind, "Spindle")), as.ErrDuplicateBrowseName)
	assert.ErrorIs(t, spindle.AddChild(root), as.ErrInvalidOperation)
	assert.ErrorIs(t, other.RemoveChild(spindle), as.ErrNotChild)

	require.NoError(t, spindle.Detach())
	assert.Nil(t, spindle.Parent())
	assert.Empty(t, root.Children())
	require.NoError(t, other.AddChild(spindle))
	assert.Same(t, other, spindle.Root())
}

func TestChildrenOrder(t *testing.T) {
	root := newObject(deviceKind, "Mill")
	names := []string{"X", "Y", "Z", "A"}
	for _, name := range names {
		require.NoError(t, root.AddChild(newObject(componentKind, name)))
	}

	var got []string
	for _, c := range root.Children() {
		got = append(got, c.BrowseName().Name)
	}
	assert.Equal(t, names, got)

	got = got[:0]
	root.EachChild(func(c *as.Node) bool {
		got = append(got, c.BrowseName().Name)
		return len(got) < 2
	})
	assert.Equal(t, []string{"X", "Y"}, got)

	children := root.Children()
	children[0] = nil
	assert.NotNil(t, root.Children()[0])
}

func TestChangeMasks(t *testing.T) {
	rec := &recorder{}
	ctx := &as.Context{Observer: rec}

	root := newObject(deviceKind, "Mill")
	axes := newObject(componentKind, "Axes")
	door := newObject(componentKind, "Door")
	temp := newVariable(ctx, "Mill.Axes.Temp", qn("Temp"), ua.DataTypeIDDouble, ua.ValueRankScalar)
	require.NoError(t, root.AddChild(axes))
	require.NoError(t, root.AddChild(door))
	require.NoError(t, axes.AddChild(temp))
	root.ClearChangeMasks(ctx, true)
	rec.paths, rec.masks = nil, nil

	require.NoError(t, temp.SetValue(21.5))
	assert.Equal(t, as.ChangeMaskValue, temp.ChangeMasks())
	assert.True(t, axes.HasDirtyDescendant())
	assert.True(t, root.HasDirtyDescendant())
	assert.False(t, door.HasDirtyDescendant())
	assert.Equal(t, as.ChangeMaskNone, axes.ChangeMasks())

	root.ClearChangeMasks(ctx, true)
	assert.Equal(t, []string{"Mill/Axes/Temp"}, rec.paths)
	assert.Equal(t, []as.ChangeMask{as.ChangeMaskValue}, rec.masks)
	assert.False(t, root.HasDirtyDescendant())
	assert.Equal(t, as.ChangeMaskNone, temp.ChangeMasks())

	t.Run("removal reports deleted subtree", func(t *testing.T) {
		rec.paths, rec.masks = nil, nil
		require.NoError(t, root.RemoveChild(door))
		root.ClearChangeMasks(ctx, true)
		assert.Equal(t, []string{"Door", "Mill"}, rec.paths)
		assert.Equal(t, []as.ChangeMask{as.ChangeMaskDeleted, as.ChangeMaskChildren}, rec.masks)
	})

	t.Run("without children only the node itself", func(t *testing.T) {
		rec.paths, rec.masks = nil, nil
		require.NoError(t, root.SetAttribute(ua.AttributeIDDisplayName, ua.NewLocalizedText("Mill 1", "")))
		temp.SetValue(3.0)
		root.ClearChangeMasks(ctx, false)
		assert.Equal(t, []string{"Mill"}, rec.paths)
		assert.Equal(t, as.ChangeMaskValue, temp.ChangeMasks())
	})

	t.Run("multi observer", func(t *testing.T) {
		var calls int
		other := &recorder{}
		ctx.Observer = as.MultiObserver{other, as.ObserverFunc(func(*as.Context, *as.Node, as.ChangeMask) { calls++ })}
		root.ClearChangeMasks(ctx, true)
		assert.Equal(t, 1, calls)
		assert.Equal(t, []string{"Mill/Axes/Temp"}, other.paths)
	})

	assert.Equal(t, "Children|Value", (as.ChangeMaskChildren | as.ChangeMaskValue).String())
	assert.Equal(t, "None", as.ChangeMaskNone.String())
}

func TestSetAttribute(t *testing.T) {
	ctx := &as.Context{}
	root := newObject(deviceKind, "Mill")
	temp := newVariable(ctx, "Mill.Temp", qn("Temp"), ua.DataTypeIDDouble, ua.ValueRankScalar)
	require.NoError(t, root.AddChild(temp))
	require.NoError(t, root.AddChild(newObject(componentKind, "Axes")))

	tests := []struct {
		name      string
		node      *as.Node
		attribute uint32
		value     any
		err       error
		mask      as.ChangeMask
	}{
		{"display name", root, ua.AttributeIDDisplayName, ua.NewLocalizedText("Mill", "en"), nil, as.ChangeMaskNonValue},
		{"description wrong type", root, ua.AttributeIDDescription, "text", as.ErrTypeMismatch, as.ChangeMaskNone},
		{"value on object", root, ua.AttributeIDValue, 1.0, as.ErrInvalidOperation, as.ChangeMaskNone},
		{"data type on object", root, ua.AttributeIDDataType, ua.DataTypeIDDouble, as.ErrInvalidOperation, as.ChangeMaskNone},
		{"node id", root, ua.AttributeIDNodeID, ua.NewNodeIDNumeric(1, 5), as.ErrNotWritable, as.ChangeMaskNone},
		{"node class", temp, ua.AttributeIDNodeClass, ua.NodeClassObject, as.ErrNotWritable, as.ChangeMaskNone},
		{"invalid attribute", root, ua.AttributeIDHistorizing, true, as.ErrInvalidAttribute, as.ChangeMaskNone},
		{"unknown attribute", temp, 99, true, as.ErrInvalidAttribute, as.ChangeMaskNone},
		{"value", temp, ua.AttributeIDValue, 42.0, nil, as.ChangeMaskValue},
		{"value wrong type", temp, ua.AttributeIDValue, "42", as.ErrTypeMismatch, as.ChangeMaskNone},
		{"duplicate browse name", temp, ua.AttributeIDBrowseName, qn("Axes"), as.ErrDuplicateBrowseName, as.ChangeMaskNone},
		{"browse name", temp, ua.AttributeIDBrowseName, qn("Temperature"), nil, as.ChangeMaskNonValue},
		{"value rank", temp, ua.AttributeIDValueRank, ua.ValueRankOneDimension, nil, as.ChangeMaskNonValue | as.ChangeMaskValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.node.ClearChangeMasks(nil, false)
			err := tt.node.SetAttribute(tt.attribute, tt.value)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.mask, tt.node.ChangeMasks())
		})
	}

	v, err := temp.Attribute(ua.AttributeIDValue)
	require.NoError(t, err)
	assert.Equal(t, []float64{}, v, "value reset to the zero of the new value rank")

	name, err := temp.Attribute(ua.AttributeIDBrowseName)
	require.NoError(t, err)
	assert.Equal(t, qn("Temperature"), name)

	_, err = root.Attribute(ua.AttributeIDValueRank)
	assert.ErrorIs(t, err, as.ErrInvalidOperation)
}

func TestValues(t *testing.T) {
	availability := ua.NewNodeIDNumeric(1, 3001)
	ctx := &as.Context{DataTypes: superTypes{availability: ua.DataTypeIDEnumeration}}

	zeroTests := []struct {
		dataType ua.NodeID
		rank     int32
		want     any
	}{
		{ua.DataTypeIDBoolean, ua.ValueRankScalar, false},
		{ua.DataTypeIDDouble, ua.ValueRankScalar, 0.0},
		{ua.DataTypeIDString, ua.ValueRankScalar, ""},
		{ua.DataTypeIDDateTime, ua.ValueRankScalar, time.Time{}},
		{ua.DataTypeIDDuration, ua.ValueRankScalar, 0.0},
		{ua.DataTypeIDInt32, ua.ValueRankOneDimension, []int32{}},
		{availability, ua.ValueRankScalar, int32(0)},
	}
	for _, tt := range zeroTests {
		n := newVariable(ctx, "v", qn("v"), tt.dataType, tt.rank)
		v, err := n.Value()
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, "zero value of %v", tt.dataType)
	}

	n := newVariable(ctx, "state", qn("state"), availability, ua.ValueRankScalar)
	assert.NoError(t, n.SetValue(int32(1)))
	assert.ErrorIs(t, n.SetValue(1), as.ErrTypeMismatch)
	v, _ := n.Value()
	assert.Equal(t, int32(1), v)

	arr := newVariable(ctx, "arr", qn("arr"), ua.DataTypeIDDouble, ua.ValueRankOneDimension)
	assert.NoError(t, arr.SetValue([]float64{1, 2}))
	assert.ErrorIs(t, arr.SetValue(1.0), as.ErrTypeMismatch)
	assert.ErrorIs(t, arr.SetValue([]float32{1}), as.ErrTypeMismatch)

	custom := newVariable(ctx, "custom", qn("custom"), ua.NewNodeIDNumeric(1, 9999), ua.ValueRankScalar)
	assert.NoError(t, custom.SetValue(struct{ A int }{1}), "unknown data types accept any value")

	obj := newObject(deviceKind, "Mill")
	_, err := obj.Value()
	assert.ErrorIs(t, err, as.ErrInvalidOperation)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, arr.SetValueWithStatus([]float64{3}, ua.Good, ts))
	dv := arr.DataValue()
	assert.Equal(t, []float64{3}, dv.Value)
	assert.Equal(t, ts, dv.SourceTimestamp)
}

func TestTypedVariable(t *testing.T) {
	ctx := &as.Context{}
	n := newVariable(ctx, "Mill.Temp", qn("Temp"), ua.DataTypeIDDouble, ua.ValueRankScalar)

	typed, err := as.AsTyped[float64](n)
	require.NoError(t, err)
	got, err := typed.Get()
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	n.ClearChangeMasks(nil, false)
	typed.Set(12.5)
	got, err = typed.Get()
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)
	assert.Equal(t, as.ChangeMaskValue, n.ChangeMasks())

	_, err = as.AsTyped[string](n)
	assert.ErrorIs(t, err, as.ErrTypeMismatch)
	_, err = as.AsTyped[[]float64](n)
	assert.ErrorIs(t, err, as.ErrTypeMismatch)

	// interface views are checked on every write
	loose, err := as.AsTyped[any](n)
	require.NoError(t, err)
	loose.Set("hot")
	v, err := n.Value()
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
	loose.Set(13.0)
	got, err = typed.Get()
	require.NoError(t, err)
	assert.Equal(t, 13.0, got)

	anyNode := newVariable(ctx, "Mill.Note", qn("Note"), ua.DataTypeIDBaseDataType, ua.ValueRankScalar)
	note, err := as.AsTyped[string](anyNode)
	require.NoError(t, err)
	note.Set("hot")
	text, err := note.Get()
	require.NoError(t, err)
	assert.Equal(t, "hot", text)
	require.NoError(t, anyNode.SetValue(7.0))
	_, err = note.Get()
	assert.ErrorIs(t, err, as.ErrTypeMismatch)

	_, err = as.AsTyped[float64](newObject(deviceKind, "Mill"))
	assert.ErrorIs(t, err, as.ErrInvalidOperation)
}

func TestFindChild(t *testing.T) {
	factory := &fakeFactory{}
	ctx := &as.Context{Factory: factory}

	t.Run("empty name", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		assert.Nil(t, root.FindChild(ctx, ua.QualifiedName{}, true, nil))
		assert.Nil(t, (*as.Node)(nil).FindChild(ctx, qn("Model"), true, nil))
		assert.Zero(t, factory.calls)
	})

	t.Run("absent slot without create", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		assert.Nil(t, root.FindChild(ctx, qn("Model"), false, nil))
		assert.Nil(t, root.FindChild(ctx, qn("SampleInterval"), false, nil))
		assert.Empty(t, root.Children())
	})

	t.Run("create is idempotent", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		root.ClearChangeMasks(nil, false)
		first := root.FindChild(ctx, qn("SampleInterval"), true, nil)
		require.NotNil(t, first)
		second := root.FindChild(ctx, qn("SampleInterval"), true, nil)
		assert.Same(t, first, second)
		assert.Len(t, root.Children(), 1)
		assert.Equal(t, ua.ReferenceTypeIDHasProperty, first.ReferenceTypeID())
		assert.True(t, root.ChangeMasks().Has(as.ChangeMaskChildren))
		assert.Same(t, first, root.FindChild(ctx, qn("SampleInterval"), false, nil))
	})

	t.Run("replacement is adopted", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		repl := newVariable(ctx, "x", qn("Anything"), ua.DataTypeIDString, ua.ValueRankScalar)
		got := root.FindChild(ctx, qn("Model"), true, repl)
		assert.Same(t, repl, got)
		assert.Equal(t, qn("Model"), repl.BrowseName())
		assert.Same(t, root, repl.Parent())

		owned := newVariable(ctx, "y", qn("y"), ua.DataTypeIDString, ua.ValueRankScalar)
		require.NoError(t, newObject(deviceKind, "Other").AddChild(owned))
		assert.Nil(t, root.FindChild(ctx, qn("Availability"), true, owned))
	})

	t.Run("refused replacement keeps its identity", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		inner := newObject(componentKind, "Inner")
		require.NoError(t, root.AddChild(inner))
		ref := root.ReferenceTypeID()

		assert.Nil(t, inner.FindChild(ctx, qn("Model"), true, root))
		assert.Equal(t, qn("Spindle"), root.BrowseName())
		assert.Equal(t, ref, root.ReferenceTypeID())
		assert.Nil(t, inner.Child(qn("Model")))
	})

	t.Run("undeclared names use the child list", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		extra := newObject(componentKind, "Extra")
		require.NoError(t, root.AddChild(extra))
		assert.Same(t, extra, root.FindChild(ctx, qn("Extra"), false, nil))
		assert.Nil(t, root.FindChild(ctx, qn("Missing"), true, nil))
		assert.Nil(t, root.Child(qn("Missing")))
	})

	t.Run("factory failure", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		failing := &as.Context{Factory: &fakeFactory{err: errors.New("boom")}}
		assert.Nil(t, root.FindChild(failing, qn("Model"), true, nil))
		assert.Nil(t, root.FindChild(&as.Context{}, qn("Model"), true, nil))
		assert.Empty(t, root.Children())
	})

	t.Run("browse", func(t *testing.T) {
		root := newObject(componentKind, "Spindle")
		axes := newObject(componentKind, "Axes")
		require.NoError(t, root.AddChild(axes))
		model := axes.FindChild(ctx, qn("Model"), true, nil)
		assert.Same(t, model, root.Browse(ctx, qn("Axes"), qn("Model")))
		assert.Nil(t, root.Browse(ctx, qn("Axes"), qn("Nope"), qn("Model")))
	})
}

func TestKind(t *testing.T) {
	override := &as.Kind{TypeID: ua.NewNodeIDNumeric(1, 1003), NodeClass: ua.NodeClassObjectType, Parent: componentKind}
	override.Slots = []*as.Slot{
		{BrowseName: qn("Extra"), Owner: override},
		{BrowseName: qn("Availability"), Optional: true, Owner: override},
	}

	var names []string
	for _, s := range override.AllSlots() {
		names = append(names, s.BrowseName.Name)
	}
	assert.Equal(t, []string{"Availability", "SampleInterval", "Model", "Extra"}, names)
	assert.Same(t, override, override.Slot(qn("Availability")).Owner)
	assert.Same(t, deviceKind, override.Slot(qn("SampleInterval")).Owner)
	assert.True(t, override.IsSubtypeOf(deviceKind.TypeID))
	assert.False(t, deviceKind.IsSubtypeOf(override.TypeID))

	class, ok := override.InstanceClass()
	assert.True(t, ok)
	assert.Equal(t, ua.NodeClassObject, class)

	dt, rank, _ := (&as.Kind{NodeClass: ua.NodeClassVariableType, Parent: doubleKind}).EffectiveDataType()
	assert.Equal(t, ua.DataTypeIDDouble, dt)
	assert.Equal(t, ua.ValueRankScalar, rank)
}
