package registry

import (
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/descriptor"
)

func subtypeOf(super ua.NodeID) []ua.Reference {
	return []ua.Reference{ua.NewReference(ua.ReferenceTypeIDHasSubtype, true, ua.NewExpandedNodeID(super))}
}

// builtinTypes are the namespace 0 types instance declarations refer to.
func builtinTypes() []*descriptor.Descriptor {
	return []*descriptor.Descriptor{
		{
			NodeClass:  ua.NodeClassObjectType,
			NodeID:     addressspace.BaseObjectType,
			BrowseName: ua.NewQualifiedName(0, "BaseObjectType"),
		},
		{
			NodeClass:  ua.NodeClassObjectType,
			NodeID:     addressspace.FolderType,
			BrowseName: ua.NewQualifiedName(0, "FolderType"),
			References: subtypeOf(addressspace.BaseObjectType),
		},
		{
			NodeClass:  ua.NodeClassVariableType,
			NodeID:     addressspace.BaseVariableType,
			BrowseName: ua.NewQualifiedName(0, "BaseVariableType"),
			IsAbstract: true,
			DataType:   ua.DataTypeIDBaseDataType,
			ValueRank:  ua.ValueRankAny,
		},
		{
			NodeClass:  ua.NodeClassVariableType,
			NodeID:     addressspace.BaseDataVariableType,
			BrowseName: ua.NewQualifiedName(0, "BaseDataVariableType"),
			DataType:   ua.DataTypeIDBaseDataType,
			ValueRank:  ua.ValueRankAny,
			References: subtypeOf(addressspace.BaseVariableType),
		},
		{
			NodeClass:  ua.NodeClassVariableType,
			NodeID:     addressspace.PropertyType,
			BrowseName: ua.NewQualifiedName(0, "PropertyType"),
			DataType:   ua.DataTypeIDBaseDataType,
			ValueRank:  ua.ValueRankAny,
			References: subtypeOf(addressspace.BaseVariableType),
		},
	}
}

func (r *Registry) registerBuiltins() {
	for _, d := range builtinTypes() {
		blob, err := descriptor.Encode(d, descriptor.Namespaces{NamespaceUA})
		if err == nil {
			_, err = r.register(d, blob)
		}
		if err != nil {
			panic(errors.Wrapf(err, "built-in type %s", d.BrowseName.Name))
		}
	}
}
