// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package serialize converts between vmvalue.Value, the executor's
// runtime representation, and a JSON-friendly external form suitable
// for a request/response body: primitives round-trip as strings
// (int64 and double as decimal text, bytes as base64, string as
// itself) so a 64-bit integer never loses precision passing through a
// JSON number, maps become JSON objects, and null is explicit.
//
// Decode is type-directed: it walks a bytecode.TypeDesc (resolved
// against its owning script's type pool) alongside the JSON value to
// know which primitive kind a string represents and which map shape
// to expect.
package serialize

import (
	"encoding/base64"
	"strconv"

	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/util"
	"github.com/rdbcore/rdb/vmvalue"
)

// Encode converts a runtime value into a JSON-marshalable tree.
// Tables, sets, lists, and the schema-root sentinel have no external
// representation and are rejected as Unserializable, matching that
// only null/bool/primitive/map values ever cross the external
// boundary.
func Encode(v vmvalue.Value) (interface{}, error) {
	switch v.Kind {
	case vmvalue.Null:
		return nil, nil
	case vmvalue.Bool:
		return v.Bool, nil
	case vmvalue.Primitive:
		return encodePrimitive(v.Prim), nil
	case vmvalue.Map:
		out := make(map[string]interface{}, len(v.MapKeys))
		for _, k := range v.MapKeys {
			enc, err := Encode(v.MapValues[k])
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	default:
		return nil, newError(UnserializableErr, nil, "value of kind %v has no external representation", v.Kind)
	}
}

func encodePrimitive(p keyenc.Value) string {
	switch p.Type {
	case keyenc.Bytes:
		return base64.StdEncoding.EncodeToString(p.Bytes)
	case keyenc.Double:
		return strconv.FormatFloat(p.Double, 'g', -1, 64)
	case keyenc.Int64:
		return strconv.FormatInt(p.Int64, 10)
	case keyenc.String:
		return p.String
	default:
		return ""
	}
}

// Decode parses data as JSON and converts it to a runtime value typed
// per types[typeIdx], recursing through the type pool for composite
// shapes (TDMap, TDOneOf).
func Decode(data []byte, types []bytecode.TypeDesc, typeIdx int) (vmvalue.Value, error) {
	var raw interface{}
	if err := util.UnmarshalJSON(data, &raw); err != nil {
		return vmvalue.Value{}, newError(MalformedJSONErr, err, "invalid JSON")
	}
	return decodeValue(raw, types, typeIdx)
}

func decodeValue(raw interface{}, types []bytecode.TypeDesc, typeIdx int) (vmvalue.Value, error) {
	if typeIdx < 0 || typeIdx >= len(types) {
		return vmvalue.Value{}, newError(UnknownTypeIndexErr, nil, "type index %d out of range", typeIdx)
	}
	ty := types[typeIdx]

	if raw == nil {
		return vmvalue.NullValue(), nil
	}

	switch ty.Kind {
	case bytecode.TDNull:
		return vmvalue.NullValue(), nil

	case bytecode.TDBool:
		b, ok := raw.(bool)
		if !ok {
			return vmvalue.Value{}, newError(TypeMismatchErr, nil, "expected bool, got %T", raw)
		}
		return vmvalue.BoolValue(b), nil

	case bytecode.TDPrimitive:
		s, ok := raw.(string)
		if !ok {
			return vmvalue.Value{}, newError(TypeMismatchErr, nil, "expected string-encoded %s, got %T", ty.Prim, raw)
		}
		return decodePrimitive(s, ty.Prim)

	case bytecode.TDMap:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return vmvalue.Value{}, newError(TypeMismatchErr, nil, "expected object, got %T", raw)
		}
		out := vmvalue.NewMap()
		for _, field := range ty.MapFieldOrder {
			fieldTypeIdx := ty.MapFields[field]
			if fv, present := m[field]; present {
				decoded, err := decodeValue(fv, types, fieldTypeIdx)
				if err != nil {
					return vmvalue.Value{}, err
				}
				out = out.WithField(field, decoded)
			} else {
				out = out.WithField(field, vmvalue.NullValue())
			}
		}
		return out, nil

	case bytecode.TDOneOf:
		// Try each branch in declaration order; the first one whose
		// shape accepts raw wins. Not present in the grounding
		// source's VmType, since it has no union type — this is this
		// package's own extension to decode a bytecode.TDOneOf.
		var lastErr error
		for _, branch := range ty.OneOf {
			v, err := decodeValue(raw, types, branch)
			if err == nil {
				return v, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = newError(TypeMismatchErr, nil, "no branches in union type")
		}
		return vmvalue.Value{}, lastErr

	default:
		return vmvalue.Value{}, newError(TypeMismatchErr, nil, "type kind %v has no external representation", ty.Kind)
	}
}

func decodePrimitive(s string, prim string) (vmvalue.Value, error) {
	switch prim {
	case "string":
		return vmvalue.PrimValue(keyenc.Str(s)), nil
	case "int64":
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return vmvalue.Value{}, newError(TypeMismatchErr, err, "invalid int64 %q", s)
		}
		return vmvalue.PrimValue(keyenc.Int(n)), nil
	case "double":
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return vmvalue.Value{}, newError(TypeMismatchErr, err, "invalid double %q", s)
		}
		return vmvalue.PrimValue(keyenc.Dbl(n)), nil
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return vmvalue.Value{}, newError(TypeMismatchErr, err, "invalid base64 %q", s)
		}
		return vmvalue.PrimValue(keyenc.Byt(b)), nil
	default:
		return vmvalue.Value{}, newError(TypeMismatchErr, nil, "unknown primitive kind %q", prim)
	}
}
