// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storageplan

import (
	"crypto/rand"

	"github.com/rdbcore/rdb/logging"
	"github.com/rdbcore/rdb/schema"
)

// Option configures a GeneratePlan call.
type Option func(*planOptions)

type planOptions struct {
	logger logging.Logger
}

// WithLogger attaches a logger GeneratePlan uses to report which
// fields carried their key over from prevPlan versus minted a fresh
// one. The default is a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(o *planOptions) { o.logger = l }
}

// GeneratePlan derives a StoragePlan for newSchema. When prevSchema and
// prevPlan are both non-nil, subspace keys already assigned to fields
// whose logical identity survives — same field name, or reached via
// that field's @rename_from — are carried over bit-identical; every
// other field mints a fresh random 16-byte key. Passing nil for both
// produces the first plan for a schema.
//
// Recursive cycles (a type reachable from one of its own fields) share
// a single owning node; every other occurrence in the same generation
// becomes a subspace_reference leaf pointing back at it. Sharing is
// keyed on the *schema.SpecializedType instance, mirroring the
// field-type-instance identity the algorithm this is grounded on uses
// pointer identity for.
func GeneratePlan(newSchema *schema.CompiledSchema, prevSchema *schema.CompiledSchema, prevPlan *StoragePlan, opts ...Option) (*StoragePlan, error) {
	o := &planOptions{logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(o)
	}
	if prevPlan == nil {
		o.logger.Info("generating fresh storage plan for %d exports", len(newSchema.ExportOrder))
	} else {
		o.logger.Info("regenerating storage plan for %d exports against a previous plan", len(newSchema.ExportOrder))
	}

	p := &planner{seen: make(map[*schema.SpecializedType]*StorageNode)}
	plan := NewStoragePlan()
	for _, name := range newSchema.ExportOrder {
		ft := newSchema.Exports[name]
		var prevNode *StorageNode
		if prevPlan != nil {
			prevNode = prevPlan.Exports[name]
		}
		node, err := p.generate(ft, prevNode)
		if err != nil {
			return nil, err
		}
		plan.Exports[name] = node
		plan.ExportOrder = append(plan.ExportOrder, name)
	}
	return plan, nil
}

type planner struct {
	seen map[*schema.SpecializedType]*StorageNode
}

const elemSlot = "$elem"

func (p *planner) generate(ft schema.FieldType, prevNode *StorageNode) (*StorageNode, error) {
	switch v := ft.(type) {
	case schema.PrimitiveField:
		key, err := keyFor(prevNode)
		if err != nil {
			return nil, err
		}
		node := newStorageNode(ft.String())
		node.Key = &NodeKey{Const: key}
		return node, nil

	case schema.OptionalField:
		// The optional wrapper contributes no key segment of its own;
		// presence is tested by the inner node's key being absent from
		// the KV. Carry the wrapper's type name so path-walker error
		// messages can distinguish "a?" from "a".
		inner, err := p.generate(v.Inner, prevNode)
		if err != nil {
			return nil, err
		}
		wrapped := *inner
		wrapped.TypeName = ft.String()
		return &wrapped, nil

	case schema.SetField:
		var prevElem *StorageNode
		if prevNode != nil {
			prevElem, _ = prevNode.Child(elemSlot)
		}
		elem, err := p.generate(v.Elem, prevElem)
		if err != nil {
			return nil, err
		}
		node := newStorageNode(ft.String())
		node.Key = &NodeKey{Set: true}
		node.addChild(elemSlot, elem)
		return node, nil

	case schema.NamedField:
		st := v.Type
		if existing, ok := p.seen[st]; ok {
			return &StorageNode{TypeName: ft.String(), SubspaceReference: true, Key: existing.Key}, nil
		}
		node := newStorageNode(ft.String())
		key, err := keyForNamed(prevNode)
		if err != nil {
			return nil, err
		}
		node.Key = &NodeKey{Const: key}
		p.seen[st] = node // before recursing into fields: breaks cycles
		for _, fname := range st.FieldOrder {
			f, _ := st.Field(fname)
			child, err := p.generate(f.Type, prevChild(prevNode, f))
			if err != nil {
				return nil, err
			}
			node.addChild(fname, child)
		}
		return node, nil

	default:
		return nil, newError(MissingTypeErr, "unhandled field type %T", ft)
	}
}

// prevChild locates the previous plan's node for field f inside
// prevNode, preferring the field's current name and falling back to
// its @rename_from source name.
func prevChild(prevNode *StorageNode, f *schema.Field) *StorageNode {
	if prevNode == nil {
		return nil
	}
	if c, ok := prevNode.Child(f.Name); ok {
		return c
	}
	if old, ok := f.RenameFrom(); ok {
		if c, ok := prevNode.Child(old); ok {
			return c
		}
	}
	return nil
}

func keyFor(prevNode *StorageNode) ([16]byte, error) {
	if prevNode != nil && prevNode.Key != nil && !prevNode.Key.Set {
		return prevNode.Key.Const, nil
	}
	return randomKey()
}

// keyForNamed resolves the owning key for a named-type node: reuse the
// previous generation's key for the same field position when present,
// otherwise (including the very first plan, or a node reached for the
// first time through recursion) mint a new one.
func keyForNamed(prevNode *StorageNode) ([16]byte, error) {
	return keyFor(prevNode)
}

func randomKey() ([16]byte, error) {
	var k [16]byte
	if _, err := rand.Read(k[:]); err != nil {
		return k, newError(RandomSourceErr, "%v", err)
	}
	return k, nil
}
