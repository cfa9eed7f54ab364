package addressspace

import (
	"github.com/awcullen/opcua/ua"
)

// FindChild resolves a child by browse name. The kind chain is searched from the most
// derived type to the base: a slot declared at a level returns its existing child, or
// with createOrReplace adopts replacement (or a default instance built by ctx.Factory)
// into the slot. Names no type declares fall back to the plain child list. FindChild
// returns nil when nothing matches and never creates undeclared children.
func (n *Node) FindChild(ctx *Context, name ua.QualifiedName, createOrReplace bool, replacement *Node) *Node {
	if n == nil || name.Name == "" {
		return nil
	}
	for k := n.kind; k != nil; k = k.Parent {
		slot := k.Declared(name)
		if slot == nil {
			continue
		}
		if child := n.Child(name); child != nil {
			return child
		}
		if !createOrReplace {
			continue
		}
		return n.fillSlot(ctx, slot, replacement)
	}
	return n.Child(name)
}

func (n *Node) fillSlot(ctx *Context, slot *Slot, replacement *Node) *Node {
	log := ctx.logger()
	child := replacement
	if child == nil {
		if ctx == nil || ctx.Factory == nil {
			log.Warnw("no factory to create slot instance", "parent", n.BrowsePath(), "slot", slot.BrowseName.Name)
			return nil
		}
		c, err := ctx.Factory.NewSlotInstance(ctx, n, slot)
		if err != nil {
			log.Warnw("slot instance not created", "parent", n.BrowsePath(), "slot", slot.BrowseName.Name, "error", err)
			return nil
		}
		child = c
	}
	if child.parent != nil {
		log.Warnw("replacement already has a parent", "parent", n.BrowsePath(), "slot", slot.BrowseName.Name)
		return nil
	}
	// the replacement takes the slot's identity only once it is attached
	name, ref := child.browseName, child.referenceTypeID
	child.browseName = slot.BrowseName
	if slot.ReferenceTypeID != nil {
		child.referenceTypeID = slot.ReferenceTypeID
	}
	if err := n.AddChild(child); err != nil {
		child.browseName, child.referenceTypeID = name, ref
		log.Warnw("slot instance not attached", "parent", n.BrowsePath(), "slot", slot.BrowseName.Name, "error", err)
		return nil
	}
	return child
}

// Browse follows a path of browse names from n, resolving each step with FindChild
// without creating anything.
func (n *Node) Browse(ctx *Context, path ...ua.QualifiedName) *Node {
	cur := n
	for _, name := range path {
		if cur = cur.FindChild(ctx, name, false, nil); cur == nil {
			return nil
		}
	}
	return cur
}
