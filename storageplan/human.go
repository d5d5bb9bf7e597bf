// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storageplan

import "encoding/base64"

// HumanNode is the human-readable rendering of a StorageNode: every
// 16-byte constant key is base64-encoded text instead of raw bytes.
type HumanNode struct {
	TypeName          string                `json:"type"`
	Key               *HumanKey             `json:"key,omitempty"`
	SubspaceReference bool                  `json:"subspace_reference,omitempty"`
	ChildOrder        []string              `json:"child_order,omitempty"`
	Children          map[string]*HumanNode `json:"children,omitempty"`
}

type HumanKey struct {
	Set   bool   `json:"set,omitempty"`
	Const string `json:"const,omitempty"`
}

// HumanPlan is the human-readable rendering of a StoragePlan.
type HumanPlan struct {
	ExportOrder []string              `json:"export_order"`
	Exports     map[string]*HumanNode `json:"exports"`
}

// ToHuman converts a binary-shape plan to its human-readable form.
func ToHuman(p *StoragePlan) *HumanPlan {
	hp := &HumanPlan{ExportOrder: append([]string(nil), p.ExportOrder...), Exports: make(map[string]*HumanNode, len(p.Exports))}
	for name, n := range p.Exports {
		hp.Exports[name] = toHumanNode(n)
	}
	return hp
}

func toHumanNode(n *StorageNode) *HumanNode {
	hn := &HumanNode{
		TypeName:          n.TypeName,
		SubspaceReference: n.SubspaceReference,
		ChildOrder:        append([]string(nil), n.ChildOrder...),
	}
	if n.Key != nil {
		hk := &HumanKey{Set: n.Key.Set}
		if !n.Key.Set {
			hk.Const = base64.StdEncoding.EncodeToString(n.Key.Const[:])
		}
		hn.Key = hk
	}
	if len(n.Children) > 0 {
		hn.Children = make(map[string]*HumanNode, len(n.Children))
		for name, c := range n.Children {
			hn.Children[name] = toHumanNode(c)
		}
	}
	return hn
}

// FromHuman converts a human-readable plan back to its binary shape.
// ToHuman then FromHuman then Marshal must reproduce the originating
// plan's Marshal output byte-for-byte.
func FromHuman(hp *HumanPlan) (*StoragePlan, error) {
	p := NewStoragePlan()
	p.ExportOrder = append([]string(nil), hp.ExportOrder...)
	for name, hn := range hp.Exports {
		n, err := fromHumanNode(hn)
		if err != nil {
			return nil, err
		}
		p.Exports[name] = n
	}
	return p, nil
}

func fromHumanNode(hn *HumanNode) (*StorageNode, error) {
	n := newStorageNode(hn.TypeName)
	n.SubspaceReference = hn.SubspaceReference
	n.ChildOrder = append([]string(nil), hn.ChildOrder...)
	if hn.Key != nil {
		k := &NodeKey{Set: hn.Key.Set}
		if !hn.Key.Set {
			raw, err := base64.StdEncoding.DecodeString(hn.Key.Const)
			if err != nil {
				return nil, newError(CorruptWireFormatErr, "invalid base64 key: %v", err)
			}
			if len(raw) != 16 {
				return nil, newError(CorruptWireFormatErr, "decoded key has length %d, want 16", len(raw))
			}
			copy(k.Const[:], raw)
		}
		n.Key = k
	}
	for name, hc := range hn.Children {
		c, err := fromHumanNode(hc)
		if err != nil {
			return nil, err
		}
		n.Children[name] = c
	}
	return n, nil
}
