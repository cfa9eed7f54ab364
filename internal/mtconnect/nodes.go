package mtconnect

import (
	"github.com/pkg/errors"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
)

// Device is a typed view of an MTDeviceType instance.
type Device struct {
	ctx  *addressspace.Context
	node *addressspace.Node
}

// AsDevice wraps n, which must be an instance of MTDeviceType or one of its subtypes.
func AsDevice(ctx *addressspace.Context, n *addressspace.Node) (Device, error) {
	if err := checkKind(ctx, n, DeviceTypeID); err != nil {
		return Device{}, err
	}
	return Device{ctx: ctx, node: n}, nil
}

// NewDevice instantiates an MTDeviceType named name under parent, which may be nil.
func NewDevice(ctx *addressspace.Context, reg *registry.Registry, name string, parent *addressspace.Node) (Device, error) {
	n, err := reg.Instantiate(ctx, typeNodeID(ctx, DeviceTypeID), parent, registry.WithBrowseName(browseName(ctx, name)))
	if err != nil {
		return Device{}, errors.Wrapf(err, "device %s", name)
	}
	return Device{ctx: ctx, node: n}, nil
}

func checkKind(ctx *addressspace.Context, n *addressspace.Node, typeID uint32) error {
	if n == nil || n.Kind() == nil || !n.Kind().IsSubtypeOf(typeNodeID(ctx, typeID)) {
		return errors.Wrapf(addressspace.ErrInvalidOperation, "node is not an instance of nsu=%s;i=%d", Namespace, typeID)
	}
	return nil
}

func (d Device) Node() *addressspace.Node { return d.node }

func (d Device) Name() string { return d.node.BrowseName().Name }

func (d Device) child(name string) *addressspace.Node {
	return d.node.FindChild(d.ctx, browseName(d.ctx, name), false, nil)
}

func (d Device) set(name string, v any) error {
	n := d.node.FindChild(d.ctx, browseName(d.ctx, name), true, nil)
	if n == nil {
		return errors.Wrapf(addressspace.ErrInvalidOperation, "%s has no %s", d.node.BrowsePath(), name)
	}
	return n.SetValue(v)
}

func (d Device) text(name string) (string, error) {
	v, err := addressspace.AsTyped[string](d.child(name))
	if err != nil {
		return "", err
	}
	return v.Get()
}

// Availability returns the Availability variable.
func (d Device) Availability() (addressspace.TypedVariable[int32], error) {
	return addressspace.AsTyped[int32](d.child("Availability"))
}

func (d Device) SetAvailability(v int32) error { return d.set("Availability", v) }

func (d Device) Manufacturer() (string, error) { return d.text("Manufacturer") }

func (d Device) SetManufacturer(v string) error { return d.set("Manufacturer", v) }

func (d Device) SerialNumber() (string, error) { return d.text("SerialNumber") }

func (d Device) SetSerialNumber(v string) error { return d.set("SerialNumber", v) }

// SampleInterval returns the SampleInterval property, or nil until it is set.
func (d Device) SampleInterval() *addressspace.Node { return d.child("SampleInterval") }

// SetSampleInterval sets the sample interval in milliseconds, creating the property on
// first use.
func (d Device) SetSampleInterval(ms float64) error { return d.set("SampleInterval", ms) }

// Components returns the children that are MTComponentType instances.
func (d Device) Components() []Component {
	var out []Component
	d.node.EachChild(func(c *addressspace.Node) bool {
		if checkKind(d.ctx, c, ComponentTypeID) == nil {
			out = append(out, Component{Device{ctx: d.ctx, node: c}})
		}
		return true
	})
	return out
}

// AddComponent instantiates a component of the given category ("AXES", "CONTROLLER",
// "DOOR" or "" for a plain component) under d.
func (d Device) AddComponent(reg *registry.Registry, category, name string) (Component, error) {
	id, err := ComponentTypeIDFor(category)
	if err != nil {
		return Component{}, err
	}
	n, err := reg.Instantiate(d.ctx, typeNodeID(d.ctx, id), d.node, registry.WithBrowseName(browseName(d.ctx, name)))
	if err != nil {
		return Component{}, errors.Wrapf(err, "component %s", name)
	}
	return Component{Device{ctx: d.ctx, node: n}}, nil
}

// Samples returns the sample data items directly under d.
func (d Device) Samples() []SampleDataItem {
	var out []SampleDataItem
	d.node.EachChild(func(c *addressspace.Node) bool {
		if s, err := AsSampleDataItem(d.ctx, c); err == nil {
			out = append(out, s)
		}
		return true
	})
	return out
}

// AddSample instantiates a sample data item of the given category under d.
func (d Device) AddSample(reg *registry.Registry, category, name, units string) (SampleDataItem, error) {
	id, err := SampleTypeID(category)
	if err != nil {
		return SampleDataItem{}, err
	}
	n, err := reg.Instantiate(d.ctx, typeNodeID(d.ctx, id), d.node, registry.WithBrowseName(browseName(d.ctx, name)))
	if err != nil {
		return SampleDataItem{}, errors.Wrapf(err, "sample %s", name)
	}
	s, err := AsSampleDataItem(d.ctx, n)
	if err != nil {
		return SampleDataItem{}, err
	}
	if units != "" {
		if err := s.SetUnits(units); err != nil {
			return SampleDataItem{}, err
		}
	}
	return s, nil
}

// Component is a typed view of an MTComponentType instance.
type Component struct {
	Device
}

func AsComponent(ctx *addressspace.Context, n *addressspace.Node) (Component, error) {
	if err := checkKind(ctx, n, ComponentTypeID); err != nil {
		return Component{}, err
	}
	return Component{Device{ctx: ctx, node: n}}, nil
}

// Model returns the Model property. It exists once optional children are initialized
// or the model is set.
func (c Component) Model() *addressspace.Node { return c.child("Model") }

func (c Component) SetModel(v string) error { return c.set("Model", v) }

func (c Component) Station() *addressspace.Node { return c.child("Station") }

func (c Component) SetStation(v string) error { return c.set("Station", v) }

// DoorState returns the DoorState variable of an MTDoorType component.
func (c Component) DoorState() (addressspace.TypedVariable[int32], error) {
	if err := checkKind(c.ctx, c.node, DoorTypeID); err != nil {
		return addressspace.TypedVariable[int32]{}, err
	}
	return addressspace.AsTyped[int32](c.child("DoorState"))
}

// SampleDataItem is a typed view of an MTSampleDataItemType instance.
type SampleDataItem struct {
	addressspace.TypedVariable[float64]
	ctx *addressspace.Context
}

func AsSampleDataItem(ctx *addressspace.Context, n *addressspace.Node) (SampleDataItem, error) {
	if err := checkKind(ctx, n, SampleDataItemTypeID); err != nil {
		return SampleDataItem{}, err
	}
	v, err := addressspace.AsTyped[float64](n)
	if err != nil {
		return SampleDataItem{}, err
	}
	return SampleDataItem{TypedVariable: v, ctx: ctx}, nil
}

func (s SampleDataItem) Name() string { return s.Node().BrowseName().Name }

func (s SampleDataItem) Units() (string, error) {
	v, err := addressspace.AsTyped[string](s.Node().FindChild(s.ctx, browseName(s.ctx, "Units"), false, nil))
	if err != nil {
		return "", err
	}
	return v.Get()
}

func (s SampleDataItem) SetUnits(units string) error {
	n := s.Node().FindChild(s.ctx, browseName(s.ctx, "Units"), true, nil)
	if n == nil {
		return errors.Wrapf(addressspace.ErrInvalidOperation, "%s has no Units", s.Node().BrowsePath())
	}
	return n.SetValue(units)
}
