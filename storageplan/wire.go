// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storageplan

import (
	"bytes"
	"encoding/binary"
)

// WireFormatVersion is the single leading byte every Marshal output
// starts with, so a future incompatible framing change fails closed
// (CorruptWireFormatErr) on Unmarshal instead of silently misparsing.
const WireFormatVersion = 1

// Marshal encodes p into the compact self-describing binary form
// suitable for persistence.
func Marshal(p *StoragePlan) []byte {
	var buf bytes.Buffer
	buf.WriteByte(WireFormatVersion)
	writeUvarint(&buf, uint64(len(p.ExportOrder)))
	for _, name := range p.ExportOrder {
		writeString(&buf, name)
		writeNode(&buf, p.Exports[name])
	}
	return buf.Bytes()
}

func writeNode(buf *bytes.Buffer, n *StorageNode) {
	var flags byte
	if n.Key != nil {
		flags |= 1
		if n.Key.Set {
			flags |= 2
		}
	}
	if n.SubspaceReference {
		flags |= 4
	}
	buf.WriteByte(flags)
	writeString(buf, n.TypeName)
	if n.Key != nil && !n.Key.Set {
		buf.Write(n.Key.Const[:])
	}
	if n.SubspaceReference {
		return
	}
	writeUvarint(buf, uint64(len(n.ChildOrder)))
	for _, name := range n.ChildOrder {
		writeString(buf, name)
		writeNode(buf, n.Children[name])
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// Unmarshal decodes a plan previously produced by Marshal.
func Unmarshal(data []byte) (*StoragePlan, error) {
	if len(data) == 0 {
		return nil, newError(CorruptWireFormatErr, "empty plan data")
	}
	if data[0] != WireFormatVersion {
		return nil, newError(CorruptWireFormatErr, "unsupported wire format version %d", data[0])
	}
	r := &reader{buf: data, pos: 1}
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	plan := NewStoragePlan()
	for i := uint64(0); i < count; i++ {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		node, err := r.node()
		if err != nil {
			return nil, err
		}
		plan.Exports[name] = node
		plan.ExportOrder = append(plan.ExportOrder, name)
	}
	if r.pos != len(r.buf) {
		return nil, newError(CorruptWireFormatErr, "trailing %d bytes after plan", len(r.buf)-r.pos)
	}
	return plan, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, newError(CorruptWireFormatErr, "truncated varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *reader) string() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", newError(CorruptWireFormatErr, "truncated string at offset %d", r.pos)
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, newError(CorruptWireFormatErr, "truncated flags byte at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) node() (*StorageNode, error) {
	flags, err := r.byte()
	if err != nil {
		return nil, err
	}
	typeName, err := r.string()
	if err != nil {
		return nil, err
	}
	n := newStorageNode(typeName)
	hasKey := flags&1 != 0
	isSet := flags&2 != 0
	n.SubspaceReference = flags&4 != 0
	if hasKey {
		if isSet {
			n.Key = &NodeKey{Set: true}
		} else {
			if r.pos+16 > len(r.buf) {
				return nil, newError(CorruptWireFormatErr, "truncated const key at offset %d", r.pos)
			}
			var k [16]byte
			copy(k[:], r.buf[r.pos:r.pos+16])
			r.pos += 16
			n.Key = &NodeKey{Const: k}
		}
	}
	if n.SubspaceReference {
		return n, nil
	}
	childCount, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < childCount; i++ {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		child, err := r.node()
		if err != nil {
			return nil, err
		}
		n.addChild(name, child)
	}
	return n, nil
}
