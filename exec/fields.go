// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package exec

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/pathwalker"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/vmvalue"
)

// readField loads the value positioned at w, whose logical type is ft:
// a primitive reads and decodes its one KV cell; a named or set field
// wraps w in a resident table/set value without itself touching the
// KV (GetField/GetSetElement on the result do that lazily); an
// optional wrapper tests presence first and reports null when absent.
func (e *Executor) readField(ctx context.Context, w *pathwalker.Walker, ft schema.FieldType) (vmvalue.Value, error) {
	inner, optional := schema.OptionalUnwrapped(ft)
	switch v := inner.(type) {
	case schema.PrimitiveField:
		raw, err := e.tx.Get(ctx, w.GenerateKey())
		if err != nil {
			return vmvalue.Value{}, newError(KVErr, err, "get primitive field")
		}
		if raw == nil {
			if optional {
				return vmvalue.NullValue(), nil
			}
			return vmvalue.Value{}, newError(MissingRequiredFieldErr, nil, "required primitive field has no value")
		}
		return decodePrimitive(v.Prim, raw)

	case schema.NamedField:
		if optional {
			raw, err := e.tx.Get(ctx, w.GenerateKey())
			if err != nil {
				return vmvalue.Value{}, newError(KVErr, err, "get table presence")
			}
			if raw == nil {
				return vmvalue.NullValue(), nil
			}
		}
		return vmvalue.NewResidentTable(v.Type.Name, w), nil

	case schema.SetField:
		if optional {
			raw, err := e.tx.Get(ctx, w.GenerateKey())
			if err != nil {
				return vmvalue.Value{}, newError(KVErr, err, "get set presence")
			}
			if raw == nil {
				return vmvalue.NullValue(), nil
			}
		}
		elemType, ok := v.Elem.(schema.NamedField)
		if !ok {
			return vmvalue.Value{}, newError(UnknownFieldErr, nil, "set element type must be a table")
		}
		return vmvalue.NewResidentSet(elemType.Type.Name, w), nil

	default:
		return vmvalue.Value{}, newError(UnknownFieldErr, nil, "unhandled field type %T", inner)
	}
}

// writeNamedValue materializes v — fresh (built in memory) or resident
// (already stored elsewhere) — as the table rooted at w.
func (e *Executor) writeNamedValue(ctx context.Context, w *pathwalker.Walker, sp *schema.SpecializedType, v vmvalue.Value) error {
	switch v.Kind {
	case vmvalue.FreshTable:
		return e.writeFreshTable(ctx, w, sp, v)
	case vmvalue.ResidentTable:
		return e.copySubtree(ctx, v.Walker.GenerateKey(), w.GenerateKey())
	default:
		return newError(RequiresResidentOrFreshErr, nil, "cannot write value of kind %s as table %q", v.Kind, sp.Name)
	}
}

// writeFreshTable writes an in-memory-built table's own presence
// placeholder plus every field it carries, recursing for nested named
// values. A field absent from v.Fields is left absent in the KV,
// matching its required-ness having already been checked by the type
// checker (an optional field legitimately has no value; a required
// field missing here is a bug upstream, reported rather than assumed).
func (e *Executor) writeFreshTable(ctx context.Context, w *pathwalker.Walker, sp *schema.SpecializedType, v vmvalue.Value) error {
	if err := e.tx.Put(ctx, w.GenerateKey(), []byte{}); err != nil {
		return newError(KVErr, err, "put table placeholder")
	}
	for _, fname := range sp.FieldOrder {
		f, _ := sp.Field(fname)
		fv, present := v.Fields[fname]
		inner, optional := schema.OptionalUnwrapped(f.Type)
		if !present {
			if optional {
				continue
			}
			return newError(MissingRequiredFieldErr, nil, "missing required field %q of table %q", fname, sp.Name)
		}
		child, err := w.EnterField(fname)
		if err != nil {
			return newError(KVErr, err, "enter field %q", fname)
		}
		if err := e.writeFieldValue(ctx, child, inner, fv); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) writeFieldValue(ctx context.Context, w *pathwalker.Walker, ft schema.FieldType, v vmvalue.Value) error {
	switch t := ft.(type) {
	case schema.PrimitiveField:
		enc, err := encodePrimitive(t.Prim, v.Prim)
		if err != nil {
			return err
		}
		if err := e.tx.Put(ctx, w.GenerateKey(), enc); err != nil {
			return newError(KVErr, err, "put primitive field")
		}
		return nil

	case schema.NamedField:
		return e.writeNamedValue(ctx, w, t.Type, v)

	case schema.SetField:
		switch v.Kind {
		case vmvalue.FreshSet:
			if err := e.tx.Put(ctx, w.GenerateKey(), []byte{}); err != nil {
				return newError(KVErr, err, "put set placeholder")
			}
			elemType, ok := t.Elem.(schema.NamedField)
			if !ok {
				return newError(UnknownFieldErr, nil, "set element type must be a table")
			}
			for _, el := range v.Elems {
				pk, ok := elemType.Type.PrimaryField()
				if !ok {
					return newError(MissingPrimaryKeyErr, nil, "table %q has no primary key", elemType.Type.Name)
				}
				pv, err := e.primaryKeyOf(ctx, elemType.Type, pk, el)
				if err != nil {
					return err
				}
				ew, err := w.EnterSet(pv)
				if err != nil {
					return newError(KVErr, err, "enter set element")
				}
				if err := e.writeNamedValue(ctx, ew, elemType.Type, el); err != nil {
					return err
				}
			}
			return nil
		case vmvalue.ResidentSet:
			return e.copySubtree(ctx, v.Walker.GenerateKey(), w.GenerateKey())
		default:
			return newError(RequiresResidentOrFreshErr, nil, "cannot write value of kind %s as set", v.Kind)
		}

	default:
		return newError(UnknownFieldErr, nil, "unhandled field type %T", ft)
	}
}

// primaryKeyOf extracts el's primary-key primitive, reading through KV
// for a resident element whose key field hasn't been loaded yet.
func (e *Executor) primaryKeyOf(ctx context.Context, sp *schema.SpecializedType, pk *schema.Field, el vmvalue.Value) (keyenc.Value, error) {
	switch el.Kind {
	case vmvalue.FreshTable:
		fv, ok := el.Fields[pk.Name]
		if !ok {
			return keyenc.Value{}, newError(MissingPrimaryKeyErr, nil, "table %q missing its primary key value", sp.Name)
		}
		return fv.Prim, nil
	case vmvalue.ResidentTable:
		child, err := el.Walker.EnterField(pk.Name)
		if err != nil {
			return keyenc.Value{}, newError(KVErr, err, "enter primary key field")
		}
		fv, err := e.readField(ctx, child, pk.Type)
		if err != nil {
			return keyenc.Value{}, err
		}
		return fv.Prim, nil
	default:
		return keyenc.Value{}, newError(RequiresResidentOrFreshErr, nil, "cannot take primary key of value of kind %s", el.Kind)
	}
}

// copySubtree copies srcPrefix's whole physical range to dstPrefix. Two walkers over the same specialized type carry
// identical relative key suffixes below their respective roots (the
// planner mints one random key per field position, shared by every
// value of that type), so the raw key bytes can be copied verbatim
// rather than re-decoded field by field.
func (e *Executor) copySubtree(ctx context.Context, srcPrefix, dstPrefix []byte) error {
	cur, err := e.tx.ScanKeys(ctx, srcPrefix, prefixEnd(srcPrefix))
	if err != nil {
		return newError(KVErr, err, "scan subtree")
	}
	defer cur.Close()
	for cur.Next(ctx) {
		kv := cur.KeyValue()
		suffix := kv.Key[len(srcPrefix):]
		dstKey := append(append([]byte(nil), dstPrefix...), suffix...)
		if err := e.tx.Put(ctx, dstKey, kv.Value); err != nil {
			return newError(KVErr, err, "put copied key")
		}
	}
	if err := cur.Err(); err != nil {
		return newError(KVErr, err, "scan subtree")
	}
	return nil
}

// prefixEnd returns the exclusive upper bound of the key range owned
// by prefix: the smallest key that is not itself prefix or any
// extension of it.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	// Every byte was 0xff (astronomically unlikely with random 16-byte
	// subspace keys); widen rather than return an unbounded range.
	return append(end, 0xff)
}

func encodePrimitive(prim schema.Primitive, v keyenc.Value) ([]byte, error) {
	var native interface{}
	switch prim {
	case schema.Int64:
		native = v.Int64
	case schema.Double:
		native = v.Double
	case schema.String:
		native = v.String
	case schema.Bytes:
		native = v.Bytes
	default:
		return nil, newError(EncodeErr, nil, "unknown primitive %v", prim)
	}
	enc, err := msgpack.Marshal(native)
	if err != nil {
		return nil, newError(EncodeErr, err, "marshal %v", prim)
	}
	return enc, nil
}

func decodePrimitive(prim schema.Primitive, raw []byte) (vmvalue.Value, error) {
	switch prim {
	case schema.Int64:
		var n int64
		if err := msgpack.Unmarshal(raw, &n); err != nil {
			return vmvalue.Value{}, newError(DecodeErr, err, "unmarshal int64")
		}
		return vmvalue.PrimValue(keyenc.Int(n)), nil
	case schema.Double:
		var f float64
		if err := msgpack.Unmarshal(raw, &f); err != nil {
			return vmvalue.Value{}, newError(DecodeErr, err, "unmarshal double")
		}
		return vmvalue.PrimValue(keyenc.Dbl(f)), nil
	case schema.String:
		var s string
		if err := msgpack.Unmarshal(raw, &s); err != nil {
			return vmvalue.Value{}, newError(DecodeErr, err, "unmarshal string")
		}
		return vmvalue.PrimValue(keyenc.Str(s)), nil
	case schema.Bytes:
		var b []byte
		if err := msgpack.Unmarshal(raw, &b); err != nil {
			return vmvalue.Value{}, newError(DecodeErr, err, "unmarshal bytes")
		}
		return vmvalue.PrimValue(keyenc.Byt(b)), nil
	default:
		return vmvalue.Value{}, newError(DecodeErr, nil, "unknown primitive %v", prim)
	}
}
