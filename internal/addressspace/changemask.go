package addressspace

import (
	"strings"
)

// ChangeMask records which parts of a node changed since the last notification.
type ChangeMask uint8

const ChangeMaskNone ChangeMask = 0

const (
	ChangeMaskChildren ChangeMask = 1 << iota
	ChangeMaskReferences
	ChangeMaskNonValue
	ChangeMaskValue
	ChangeMaskDeleted
)

var changeMaskNames = []struct {
	mask ChangeMask
	name string
}{
	{ChangeMaskChildren, "Children"},
	{ChangeMaskReferences, "References"},
	{ChangeMaskNonValue, "NonValue"},
	{ChangeMaskValue, "Value"},
	{ChangeMaskDeleted, "Deleted"},
}

func (m ChangeMask) String() string {
	if m == ChangeMaskNone {
		return "None"
	}
	var parts []string
	for _, n := range changeMaskNames {
		if m&n.mask != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether every bit of other is set in m.
func (m ChangeMask) Has(other ChangeMask) bool {
	return m&other == other
}

// Observer receives the change masks of nodes when they are cleared.
type Observer interface {
	OnNodeChanged(ctx *Context, node *Node, mask ChangeMask)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx *Context, node *Node, mask ChangeMask)

func (f ObserverFunc) OnNodeChanged(ctx *Context, node *Node, mask ChangeMask) {
	f(ctx, node, mask)
}

// MultiObserver fans a notification out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnNodeChanged(ctx *Context, node *Node, mask ChangeMask) {
	for _, o := range m {
		o.OnNodeChanged(ctx, node, mask)
	}
}

// markChanged is the single entry point through which every mutation is recorded.
func (n *Node) markChanged(mask ChangeMask) {
	n.changeMasks |= mask
	n.markDirtyAncestors()
}

func (n *Node) markDirtyAncestors() {
	for p := n.parent; p != nil && !p.dirtyBelow; p = p.parent {
		p.dirtyBelow = true
	}
}

// ChangeMasks returns the pending change mask of the node.
func (n *Node) ChangeMasks() ChangeMask {
	return n.changeMasks
}

// HasDirtyDescendant reports whether a node below n has a pending change mask.
func (n *Node) HasDirtyDescendant() bool {
	return n.dirtyBelow
}

// ClearChangeMasks reports the pending change mask of n, and with includeChildren of
// every dirty node below it, to ctx.Observer and resets them. Clean subtrees are not
// visited. Children are reported before their parent.
func (n *Node) ClearChangeMasks(ctx *Context, includeChildren bool) {
	if includeChildren {
		removed := n.removed
		n.removed = nil
		for _, r := range removed {
			if r.parent == nil {
				r.ClearChangeMasks(ctx, true)
			}
		}
		if n.dirtyBelow {
			n.dirtyBelow = false
			for _, c := range n.children {
				if c.changeMasks != ChangeMaskNone || c.dirtyBelow {
					c.ClearChangeMasks(ctx, true)
				}
			}
		}
	}
	if n.changeMasks == ChangeMaskNone {
		return
	}
	mask := n.changeMasks
	n.changeMasks = ChangeMaskNone
	if ctx != nil && ctx.Observer != nil {
		ctx.Observer.OnNodeChanged(ctx, n, mask)
	}
}
