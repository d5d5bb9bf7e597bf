// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package bytecode

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/vmvalue"
)

// WireFormatVersion is the single leading byte every Marshal output
// starts with, so a future incompatible framing change fails closed
// (CorruptWireFormatErr) on Unmarshal instead of silently misparsing.
const WireFormatVersion = 1

// Marshal encodes s into a compact binary form suitable for
// persistence alongside its storage plan. Only the const kinds a
// compiled script can actually produce (Null, Bool, Primitive) are
// supported; LoadConst never carries anything else.
func Marshal(s *Script) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(WireFormatVersion)
	writeUvarint(&buf, uint64(s.Entry))

	writeUvarint(&buf, uint64(len(s.Idents)))
	for _, id := range s.Idents {
		writeString(&buf, id)
	}

	writeUvarint(&buf, uint64(len(s.Consts)))
	for _, c := range s.Consts {
		if err := writeConst(&buf, c); err != nil {
			return nil, err
		}
	}

	writeUvarint(&buf, uint64(len(s.Types)))
	for _, ty := range s.Types {
		writeTypeDesc(&buf, ty)
	}

	writeUvarint(&buf, uint64(len(s.Graphs)))
	for _, g := range s.Graphs {
		writeGraph(&buf, g)
	}
	return buf.Bytes(), nil
}

func writeConst(buf *bytes.Buffer, v vmvalue.Value) error {
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case vmvalue.Null:
	case vmvalue.Bool:
		writeBool(buf, v.Bool)
	case vmvalue.Primitive:
		buf.WriteByte(byte(v.Prim.Type))
		switch v.Prim.Type {
		case keyenc.Int64:
			writeUvarint(buf, uint64(v.Prim.Int64))
		case keyenc.Double:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.Prim.Double))
			buf.Write(tmp[:])
		case keyenc.String:
			writeString(buf, v.Prim.String)
		case keyenc.Bytes:
			writeBytes(buf, v.Prim.Bytes)
		default:
			return newError(UnsupportedConstKindErr, "", "unknown primitive type %v", v.Prim.Type)
		}
	default:
		return newError(UnsupportedConstKindErr, "", "const of kind %v cannot be serialized", v.Kind)
	}
	return nil
}

func writeTypeDesc(buf *bytes.Buffer, t TypeDesc) {
	buf.WriteByte(byte(t.Kind))
	writeString(buf, t.Prim)
	writeString(buf, t.TableName)
	writeUvarint(buf, uint64(int64(t.Elem)+1)) // -1 -> 0
	writeUvarint(buf, uint64(len(t.MapFieldOrder)))
	for _, name := range t.MapFieldOrder {
		writeString(buf, name)
		writeUvarint(buf, uint64(t.MapFields[name]))
	}
	writeUvarint(buf, uint64(len(t.OneOf)))
	for _, idx := range t.OneOf {
		writeUvarint(buf, uint64(idx))
	}
}

func writeGraph(buf *bytes.Buffer, g Graph) {
	writeString(buf, g.Name)
	writeBool(buf, g.Exported)
	writeUvarint(buf, uint64(len(g.ParamTypes)))
	for _, t := range g.ParamTypes {
		writeUvarint(buf, uint64(t))
	}
	writeUvarint(buf, uint64(int64(g.Output)+1))
	writeUvarint(buf, uint64(int64(g.OutputType)+1))
	writeUvarint(buf, uint64(len(g.Nodes)))
	for _, n := range g.Nodes {
		writeNode(buf, n)
	}
}

func writeNode(buf *bytes.Buffer, n Node) {
	buf.WriteByte(byte(n.Op))
	writeUvarint(buf, uint64(int64(n.Ident)+1))
	writeUvarint(buf, uint64(int64(n.ConstIndex)+1))
	writeUvarint(buf, uint64(int64(n.ParamIndex)+1))
	writeUvarint(buf, uint64(int64(n.Subgraph)+1))
	writeBool(buf, n.HasRange)
	writeUvarint(buf, uint64(len(n.InEdges)))
	for _, e := range n.InEdges {
		writeUvarint(buf, uint64(e))
	}
	writeUvarint(buf, uint64(int64(n.Precondition)+1))
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// Unmarshal decodes a Script previously produced by Marshal.
func Unmarshal(data []byte) (*Script, error) {
	if len(data) == 0 {
		return nil, newError(CorruptWireFormatErr, "", "empty script data")
	}
	if data[0] != WireFormatVersion {
		return nil, newError(CorruptWireFormatErr, "", "unsupported wire format version %d", data[0])
	}
	r := &wireReader{buf: data, pos: 1}

	entry, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	s := &Script{Entry: int(entry)}

	identCount, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < identCount; i++ {
		str, err := r.string()
		if err != nil {
			return nil, err
		}
		s.Idents = append(s.Idents, str)
	}

	constCount, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < constCount; i++ {
		v, err := r.constVal()
		if err != nil {
			return nil, err
		}
		s.Consts = append(s.Consts, v)
	}

	typeCount, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < typeCount; i++ {
		td, err := r.typeDesc()
		if err != nil {
			return nil, err
		}
		s.Types = append(s.Types, td)
	}

	graphCount, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < graphCount; i++ {
		g, err := r.graph()
		if err != nil {
			return nil, err
		}
		s.Graphs = append(s.Graphs, g)
	}

	if r.pos != len(r.buf) {
		return nil, newError(CorruptWireFormatErr, "", "trailing %d bytes after script", len(r.buf)-r.pos)
	}
	return s, nil
}

type wireReader struct {
	buf []byte
	pos int
}

func (r *wireReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, newError(CorruptWireFormatErr, "", "truncated varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

// signedIdx decodes a value written as int64+1 back to its original
// (possibly -1) index.
func (r *wireReader) signedIdx() (int, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	return int(v) - 1, nil
}

func (r *wireReader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, newError(CorruptWireFormatErr, "", "truncated byte at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *wireReader) bool() (bool, error) {
	b, err := r.byte()
	return b != 0, err
}

func (r *wireReader) string() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", newError(CorruptWireFormatErr, "", "truncated string at offset %d", r.pos)
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *wireReader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, newError(CorruptWireFormatErr, "", "truncated bytes at offset %d", r.pos)
	}
	b := append([]byte(nil), r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return b, nil
}

func (r *wireReader) constVal() (vmvalue.Value, error) {
	kindByte, err := r.byte()
	if err != nil {
		return vmvalue.Value{}, err
	}
	switch vmvalue.Kind(kindByte) {
	case vmvalue.Null:
		return vmvalue.NullValue(), nil
	case vmvalue.Bool:
		b, err := r.bool()
		if err != nil {
			return vmvalue.Value{}, err
		}
		return vmvalue.BoolValue(b), nil
	case vmvalue.Primitive:
		primType, err := r.byte()
		if err != nil {
			return vmvalue.Value{}, err
		}
		switch keyenc.Type(primType) {
		case keyenc.Int64:
			v, err := r.uvarint()
			if err != nil {
				return vmvalue.Value{}, err
			}
			return vmvalue.PrimValue(keyenc.Int(int64(v))), nil
		case keyenc.Double:
			if r.pos+8 > len(r.buf) {
				return vmvalue.Value{}, newError(CorruptWireFormatErr, "", "truncated double at offset %d", r.pos)
			}
			bits := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
			r.pos += 8
			return vmvalue.PrimValue(keyenc.Dbl(math.Float64frombits(bits))), nil
		case keyenc.String:
			s, err := r.string()
			if err != nil {
				return vmvalue.Value{}, err
			}
			return vmvalue.PrimValue(keyenc.Str(s)), nil
		case keyenc.Bytes:
			b, err := r.bytes()
			if err != nil {
				return vmvalue.Value{}, err
			}
			return vmvalue.PrimValue(keyenc.Byt(b)), nil
		default:
			return vmvalue.Value{}, newError(CorruptWireFormatErr, "", "unknown primitive type byte %d", primType)
		}
	default:
		return vmvalue.Value{}, newError(CorruptWireFormatErr, "", "unknown const kind byte %d", kindByte)
	}
}

func (r *wireReader) typeDesc() (TypeDesc, error) {
	kindByte, err := r.byte()
	if err != nil {
		return TypeDesc{}, err
	}
	prim, err := r.string()
	if err != nil {
		return TypeDesc{}, err
	}
	tableName, err := r.string()
	if err != nil {
		return TypeDesc{}, err
	}
	elem, err := r.signedIdx()
	if err != nil {
		return TypeDesc{}, err
	}
	fieldCount, err := r.uvarint()
	if err != nil {
		return TypeDesc{}, err
	}
	td := TypeDesc{Kind: TypeDescKind(kindByte), Prim: prim, TableName: tableName, Elem: elem}
	if fieldCount > 0 {
		td.MapFields = make(map[string]int, fieldCount)
	}
	for i := uint64(0); i < fieldCount; i++ {
		name, err := r.string()
		if err != nil {
			return TypeDesc{}, err
		}
		idx, err := r.uvarint()
		if err != nil {
			return TypeDesc{}, err
		}
		td.MapFieldOrder = append(td.MapFieldOrder, name)
		td.MapFields[name] = int(idx)
	}
	oneOfCount, err := r.uvarint()
	if err != nil {
		return TypeDesc{}, err
	}
	for i := uint64(0); i < oneOfCount; i++ {
		idx, err := r.uvarint()
		if err != nil {
			return TypeDesc{}, err
		}
		td.OneOf = append(td.OneOf, int(idx))
	}
	return td, nil
}

func (r *wireReader) graph() (Graph, error) {
	name, err := r.string()
	if err != nil {
		return Graph{}, err
	}
	exported, err := r.bool()
	if err != nil {
		return Graph{}, err
	}
	paramCount, err := r.uvarint()
	if err != nil {
		return Graph{}, err
	}
	g := Graph{Name: name, Exported: exported}
	for i := uint64(0); i < paramCount; i++ {
		v, err := r.uvarint()
		if err != nil {
			return Graph{}, err
		}
		g.ParamTypes = append(g.ParamTypes, int(v))
	}
	output, err := r.signedIdx()
	if err != nil {
		return Graph{}, err
	}
	g.Output = output
	outputType, err := r.signedIdx()
	if err != nil {
		return Graph{}, err
	}
	g.OutputType = outputType
	nodeCount, err := r.uvarint()
	if err != nil {
		return Graph{}, err
	}
	for i := uint64(0); i < nodeCount; i++ {
		n, err := r.node()
		if err != nil {
			return Graph{}, err
		}
		g.Nodes = append(g.Nodes, n)
	}
	return g, nil
}

func (r *wireReader) node() (Node, error) {
	opByte, err := r.byte()
	if err != nil {
		return Node{}, err
	}
	n := Node{Op: Opcode(opByte)}
	if n.Ident, err = r.signedIdx(); err != nil {
		return Node{}, err
	}
	if n.ConstIndex, err = r.signedIdx(); err != nil {
		return Node{}, err
	}
	if n.ParamIndex, err = r.signedIdx(); err != nil {
		return Node{}, err
	}
	if n.Subgraph, err = r.signedIdx(); err != nil {
		return Node{}, err
	}
	if n.HasRange, err = r.bool(); err != nil {
		return Node{}, err
	}
	edgeCount, err := r.uvarint()
	if err != nil {
		return Node{}, err
	}
	for i := uint64(0); i < edgeCount; i++ {
		v, err := r.uvarint()
		if err != nil {
			return Node{}, err
		}
		n.InEdges = append(n.InEdges, int(v))
	}
	if n.Precondition, err = r.signedIdx(); err != nil {
		return Node{}, err
	}
	return n, nil
}
