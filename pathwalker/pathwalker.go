// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package pathwalker navigates a storage plan, turning a sequence of
// field/set-entry steps into a concrete physical KV key. A Walker is
// immutable: each step returns a new Walker holding its own copy of
// the accumulated key, and the parent is never modified. The key
// prefix is copied on every step, not shared between walkers.
package pathwalker

import (
	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/storageplan"
)

const elemSlot = "$elem"

// Walker is a persistent cursor into a StoragePlan. Its zero value is
// not meaningful; construct one with FromExport.
type Walker struct {
	plan   *storageplan.StoragePlan
	key    []byte
	node   *storageplan.StorageNode
	parent *Walker
}

// FromExport starts a walker at the root of the named export.
func FromExport(plan *storageplan.StoragePlan, export string) (*Walker, error) {
	root, ok := plan.Exports[export]
	if !ok {
		return nil, newError(ExportNotFoundErr, "no export named %q", export)
	}
	return enterNode(plan, &Walker{plan: plan}, root)
}

// enterNode transitions from into node, appending node's own key
// segment (if any) to the accumulated key. A subspace_reference node
// appends nothing and instead climbs the parent chain to find the
// node that actually owns the shared subspace, switching to it while
// keeping the key unchanged.
func enterNode(plan *storageplan.StoragePlan, from *Walker, node *storageplan.StorageNode) (*Walker, error) {
	if node.SubspaceReference {
		owner, err := climb(from, node)
		if err != nil {
			return nil, err
		}
		return &Walker{plan: plan, key: from.key, node: owner, parent: from}, nil
	}
	key := from.key
	if node.Key != nil && !node.Key.Set {
		key = append(append([]byte{}, from.key...), node.Key.Const[:]...)
	}
	return &Walker{plan: plan, key: key, node: node, parent: from}, nil
}

// climb walks the parent chain starting at w looking for the node
// that owns the subspace ref refers to (same Key, not itself a
// reference). This resolves recursive cycles the planner broke by
// inserting subspace_reference leaves.
func climb(w *Walker, ref *storageplan.StorageNode) (*storageplan.StorageNode, error) {
	for cur := w; cur != nil; cur = cur.parent {
		n := cur.node
		if n != nil && n.Key != nil && !n.Key.Set && !n.SubspaceReference && ref.Key != nil && *n.Key == *ref.Key {
			return n, nil
		}
	}
	return nil, newError(DanglingSubspaceReferenceErr, "no ancestor owns the referenced subspace")
}

// EnterField descends into a named (non-set) child field.
func (w *Walker) EnterField(name string) (*Walker, error) {
	if w.node.Key != nil && w.node.Key.Set {
		return nil, newError(EnterFieldOnSetErr, "cannot enter field %q of a set directly; call EnterSet first", name)
	}
	child, ok := w.node.Child(name)
	if !ok {
		return nil, newError(FieldNotFoundErr, "no field named %q", name)
	}
	return enterNode(w.plan, w, child)
}

// EnterSet selects one element of a set by its primary-key value,
// appending the value's order-preserving encoding as a dynamic key
// segment, then descends into the element's node.
func (w *Walker) EnterSet(primary keyenc.Value) (*Walker, error) {
	if w.node.Key == nil || !w.node.Key.Set {
		return nil, newError(EnterSetOnNonSetErr, "walker is not positioned on a set")
	}
	elem, ok := w.node.Child(elemSlot)
	if !ok {
		return nil, newError(FieldNotFoundErr, "set has no element node")
	}
	dynamic := keyenc.Encode(primary)
	positioned := &Walker{
		plan:   w.plan,
		key:    append(append([]byte{}, w.key...), dynamic...),
		node:   w.node,
		parent: w.parent,
	}
	return enterNode(w.plan, positioned, elem)
}

// GenerateKey returns the physical KV key accumulated so far.
func (w *Walker) GenerateKey() []byte {
	return append([]byte(nil), w.key...)
}

// Node exposes the underlying plan node the walker is positioned on,
// for callers (migration, executor) that need its type/children shape
// without re-deriving it.
func (w *Walker) Node() *storageplan.StorageNode { return w.node }
