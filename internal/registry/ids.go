package registry

import (
	"fmt"
	"strings"

	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
)

// IDGenerator makes the NodeID of a new instance in namespace ns.
type IDGenerator interface {
	NewNodeID(parent *addressspace.Node, browseName ua.QualifiedName, ns uint16) ua.NodeID
}

// PathIDs derives string ids from the parent id and the browse name,
// e.g. "Mill01.Spindle.Temperature".
type PathIDs struct{}

func (PathIDs) NewNodeID(parent *addressspace.Node, browseName ua.QualifiedName, ns uint16) ua.NodeID {
	if parent == nil {
		return ua.NewNodeIDString(ns, browseName.Name)
	}
	switch id := parent.NodeID().(type) {
	case ua.NodeIDString:
		return ua.NewNodeIDString(ns, id.ID+"."+browseName.Name)
	case ua.NodeIDNumeric:
		return ua.NewNodeIDString(ns, fmt.Sprintf("%d.%s", id.ID, browseName.Name))
	case nil:
		return ua.NewNodeIDString(ns, browseName.Name)
	default:
		return ua.NewNodeIDString(ns, fmt.Sprintf("%s.%s", id, browseName.Name))
	}
}

// NanoIDs gives every instance a random string id.
type NanoIDs struct{}

func (NanoIDs) NewNodeID(parent *addressspace.Node, browseName ua.QualifiedName, ns uint16) ua.NodeID {
	id, err := nanoid.New()
	if err != nil {
		return PathIDs{}.NewNodeID(parent, browseName, ns)
	}
	return ua.NewNodeIDString(ns, id)
}

// GUIDs gives every instance a random GUID id.
type GUIDs struct{}

func (GUIDs) NewNodeID(_ *addressspace.Node, _ ua.QualifiedName, ns uint16) ua.NodeID {
	return ua.NewNodeIDGUID(ns, uuid.New())
}

// IDGeneratorFor returns the generator configured by name: "path", "nanoid" or "guid".
func IDGeneratorFor(scheme string) (IDGenerator, error) {
	switch strings.ToLower(scheme) {
	case "", "path":
		return PathIDs{}, nil
	case "nanoid":
		return NanoIDs{}, nil
	case "guid", "uuid":
		return GUIDs{}, nil
	}
	return nil, errors.Errorf("unknown id scheme %q", scheme)
}
