// Package mtconnect binds the MTConnect information model to the registry and gives
// typed access to the nodes built from it.
package mtconnect

import (
	"bytes"
	_ "embed"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/nodeset"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
)

// Namespace is the MTConnect companion specification namespace.
const Namespace = "http://opcfoundation.org/UA/MTConnect/v2/"

//go:embed mtconnect.yaml
var modelYAML []byte

// Numeric ids of the model in Namespace.
const (
	DeviceTypeID         uint32 = 1001
	ComponentTypeID      uint32 = 1002
	AxesTypeID           uint32 = 1003
	ControllerTypeID     uint32 = 1004
	DoorTypeID           uint32 = 1005
	ConditionTypeID      uint32 = 1010
	SampleDataItemTypeID uint32 = 2001
	AccelerationTypeID   uint32 = 2002
	PressureTypeID       uint32 = 2003
	TemperatureTypeID    uint32 = 2004
	TorqueTypeID         uint32 = 2005
	PositionTypeID       uint32 = 2006
	VelocityTypeID       uint32 = 2007
	DoorStateTypeID      uint32 = 2010

	AvailabilityEnumID      uint32 = 3001
	DoorStateEnumID         uint32 = 3002
	ConditionSeverityEnumID uint32 = 3003
)

// Availability values.
const (
	Available   int32 = 0
	Unavailable int32 = 1
)

// DoorState values.
const (
	DoorOpen      int32 = 0
	DoorUnlatched int32 = 1
	DoorClosed    int32 = 2
)

// sampleTypes maps MTConnect sample categories to their variable types.
var sampleTypes = map[string]uint32{
	"":             SampleDataItemTypeID,
	"ACCELERATION": AccelerationTypeID,
	"PRESSURE":     PressureTypeID,
	"TEMPERATURE":  TemperatureTypeID,
	"TORQUE":       TorqueTypeID,
	"POSITION":     PositionTypeID,
	"VELOCITY":     VelocityTypeID,
}

// componentTypes maps component names used in configuration to object types.
var componentTypes = map[string]uint32{
	"":           ComponentTypeID,
	"COMPONENT":  ComponentTypeID,
	"AXES":       AxesTypeID,
	"CONTROLLER": ControllerTypeID,
	"DOOR":       DoorTypeID,
}

// LoadModel parses the embedded model.
func LoadModel() (*nodeset.Model, error) {
	return nodeset.Load(bytes.NewReader(modelYAML))
}

// Register loads the embedded model into reg.
func Register(reg *registry.Registry) error {
	m, err := LoadModel()
	if err != nil {
		return errors.Wrap(err, "mtconnect model")
	}
	if _, err := m.Apply(reg); err != nil {
		return errors.Wrap(err, "mtconnect model")
	}
	return nil
}

// NewRegistry returns a registry holding the built-in types and the MTConnect model.
func NewRegistry(opts ...registry.Option) (*registry.Registry, error) {
	reg := registry.NewRegistry(opts...)
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// NodeID returns the NodeID of id in Namespace, adding the namespace to reg if needed.
func NodeID(reg *registry.Registry, id uint32) ua.NodeID {
	return ua.NewNodeIDNumeric(reg.AddNamespace(Namespace), id)
}

// SampleTypeID returns the variable type of a sample category such as "TEMPERATURE".
func SampleTypeID(category string) (uint32, error) {
	id, ok := sampleTypes[category]
	if !ok {
		return 0, errors.Errorf("unknown sample category %q", category)
	}
	return id, nil
}

// ComponentTypeIDFor returns the object type of a component category such as "AXES".
func ComponentTypeIDFor(category string) (uint32, error) {
	id, ok := componentTypes[category]
	if !ok {
		return 0, errors.Errorf("unknown component category %q", category)
	}
	return id, nil
}

func browseName(ctx *addressspace.Context, name string) ua.QualifiedName {
	ns, _ := ctx.NamespaceIndex(Namespace)
	return ua.NewQualifiedName(ns, name)
}

func typeNodeID(ctx *addressspace.Context, id uint32) ua.NodeID {
	ns, _ := ctx.NamespaceIndex(Namespace)
	return ua.NewNodeIDNumeric(ns, id)
}
