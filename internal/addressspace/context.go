package addressspace

import (
	"sync"

	"github.com/awcullen/opcua/ua"
	"go.uber.org/zap"
)

// Factory creates the default instance for a slot that has no child yet. The returned
// node must not be attached to a parent.
type Factory interface {
	NewSlotInstance(ctx *Context, parent *Node, slot *Slot) (*Node, error)
}

// DataTypeResolver returns the supertype of a data type, or nil when it has none or is unknown.
type DataTypeResolver interface {
	SuperType(dataType ua.NodeID) ua.NodeID
}

// Context is shared by every tree built from one registry. Tree operations never lock;
// callers hold the embedded mutex while they read or modify nodes.
type Context struct {
	sync.Mutex

	Namespaces []string
	Factory    Factory
	Observer   Observer
	DataTypes  DataTypeResolver
	Logger     *zap.SugaredLogger
}

// NamespaceURIs implements ua.EncodingContext.
func (c *Context) NamespaceURIs() []string {
	if c == nil || len(c.Namespaces) == 0 {
		return []string{"http://opcfoundation.org/UA/"}
	}
	return c.Namespaces
}

// NamespaceIndex returns the index of uri in the namespace table.
func (c *Context) NamespaceIndex(uri string) (uint16, bool) {
	for i, u := range c.NamespaceURIs() {
		if u == uri {
			return uint16(i), true
		}
	}
	return 0, false
}

func (c *Context) logger() *zap.SugaredLogger {
	if c == nil || c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

func (c *Context) resolver() DataTypeResolver {
	if c == nil {
		return nil
	}
	return c.DataTypes
}
