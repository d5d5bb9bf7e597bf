// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package storageplan assigns physical key layout to a compiled
// schema: a StoragePlan maps every export to a tree of StorageNode
// that a path walker can later descend to produce concrete KV keys.
package storageplan

// NodeKey is the physical key fragment a StorageNode owns. Exactly one
// of the two shapes applies: a fixed 16-byte constant key shared by
// every instance of the field, or a marker meaning the key is formed
// dynamically from a set element's primary-key bytes at walk time.
type NodeKey struct {
	Set   bool
	Const [16]byte
}

// StorageNode is one node of a storage plan tree.
type StorageNode struct {
	// TypeName is the field type this node serves, in the same stable
	// textual form schema.FieldType.String() produces (e.g.
	// "Item<Duration<int64>>", "set<Item>", "int64?"). It is not a
	// live reference to a schema.SpecializedType so that a plan
	// serializes independently of any particular compiled schema
	// instance.
	TypeName string

	// Key is nil for a node that contributes no key segment of its
	// own (the Optional wrapper layer folds into its inner node).
	Key *NodeKey

	// SubspaceReference marks a leaf that points back at an
	// already-materialized node elsewhere in the plan (a recursive
	// cycle). Its Key is a copy of the owning node's key; its
	// Children are always empty — descend through the owning node to
	// reach them.
	SubspaceReference bool

	ChildOrder []string
	Children   map[string]*StorageNode
}

func newStorageNode(typeName string) *StorageNode {
	return &StorageNode{TypeName: typeName, Children: make(map[string]*StorageNode)}
}

func (n *StorageNode) addChild(name string, child *StorageNode) {
	n.ChildOrder = append(n.ChildOrder, name)
	n.Children[name] = child
}

func (n *StorageNode) Child(name string) (*StorageNode, bool) {
	c, ok := n.Children[name]
	return c, ok
}

// StoragePlan is an ordered map from export name to its StorageNode
// tree.
type StoragePlan struct {
	Exports     map[string]*StorageNode
	ExportOrder []string
}

func NewStoragePlan() *StoragePlan {
	return &StoragePlan{Exports: make(map[string]*StorageNode)}
}

// Equal reports whether two plans are structurally and byte-exactly
// identical, used to assert the plan-stability invariant.
func (p *StoragePlan) Equal(o *StoragePlan) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.ExportOrder) != len(o.ExportOrder) {
		return false
	}
	for i, name := range p.ExportOrder {
		if o.ExportOrder[i] != name {
			return false
		}
	}
	if len(p.Exports) != len(o.Exports) {
		return false
	}
	for name, node := range p.Exports {
		other, ok := o.Exports[name]
		if !ok || !nodesEqual(node, other) {
			return false
		}
	}
	return true
}

func nodesEqual(a, b *StorageNode) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.TypeName != b.TypeName || a.SubspaceReference != b.SubspaceReference {
		return false
	}
	if (a.Key == nil) != (b.Key == nil) {
		return false
	}
	if a.Key != nil && *a.Key != *b.Key {
		return false
	}
	if len(a.ChildOrder) != len(b.ChildOrder) {
		return false
	}
	for i, name := range a.ChildOrder {
		if b.ChildOrder[i] != name {
			return false
		}
	}
	for name, ac := range a.Children {
		bc, ok := b.Children[name]
		if !ok || !nodesEqual(ac, bc) {
			return false
		}
	}
	return true
}
