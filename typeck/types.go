// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package typeck statically checks a compiled bytecode.Script against
// a schema.CompiledSchema before it is handed to the executor: every
// node's operand types are validated bottom-up, parameter types left
// Unknown by the assembler are inferred from call-site argument types
// (processing subgraphs in topological, caller-before-callee order so
// inference has something to work from), and the whole program is
// rejected at the first ill-typed node rather than partway through
// execution.
package typeck

import (
	"fmt"
	"strings"

	"github.com/rdbcore/rdb/schema"
)

// Kind enumerates the type shapes the checker reasons about. It is the
// richer, non-interned counterpart to bytecode.TypeDescKind: values of
// this type are built fresh for each typeck run (including ones with
// no pool entry at all, like a constant's inferred type), rather than
// referencing a shared pool by index.
type Kind int

const (
	KUnknown Kind = iota
	KPrimitive
	KTable
	KSet
	KList
	KMap
	KNull
	KBool
	KOneOf
	KSchema
)

// Type is a fully resolved static type.
type Type struct {
	Kind Kind

	Prim      string // KPrimitive: "int64"|"double"|"string"|"bytes"
	TableName string // KTable

	Elem *Type // KSet, KList

	MapFieldOrder []string
	MapFields     map[string]*Type // KMap

	OneOf []*Type // KOneOf
}

func Unknown() *Type { return &Type{Kind: KUnknown} }
func NullT() *Type   { return &Type{Kind: KNull} }
func BoolT() *Type   { return &Type{Kind: KBool} }
func SchemaT() *Type { return &Type{Kind: KSchema} }
func Primitive(prim string) *Type {
	return &Type{Kind: KPrimitive, Prim: prim}
}
func Table(name string) *Type {
	return &Type{Kind: KTable, TableName: name}
}
func SetT(elem *Type) *Type {
	return &Type{Kind: KSet, Elem: elem}
}
func ListT(elem *Type) *Type {
	return &Type{Kind: KList, Elem: elem}
}
func MapT(order []string, fields map[string]*Type) *Type {
	return &Type{Kind: KMap, MapFieldOrder: order, MapFields: fields}
}
func OneOfT(branches ...*Type) *Type {
	return &Type{Kind: KOneOf, OneOf: branches}
}

func (t *Type) IsNull() bool { return t != nil && t.Kind == KNull }

// String renders t for error messages. It is not meant to round-trip.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KUnknown:
		return "unknown"
	case KPrimitive:
		return t.Prim
	case KTable:
		return "table<" + t.TableName + ">"
	case KSet:
		return "set<" + t.Elem.String() + ">"
	case KList:
		return "list<" + t.Elem.String() + ">"
	case KMap:
		parts := make([]string, 0, len(t.MapFieldOrder))
		for _, name := range t.MapFieldOrder {
			parts = append(parts, name+": "+t.MapFields[name].String())
		}
		return "map{" + strings.Join(parts, ", ") + "}"
	case KNull:
		return "null"
	case KBool:
		return "bool"
	case KOneOf:
		parts := make([]string, len(t.OneOf))
		for i, b := range t.OneOf {
			parts[i] = b.String()
		}
		return "(" + strings.Join(parts, " | ") + ")"
	case KSchema:
		return "schema"
	default:
		return fmt.Sprintf("Type(%d)", int(t.Kind))
	}
}

// fieldTypeToType converts a schema.FieldType (the post-monomorphization
// shape the schema compiler produces) into the checker's Type.
func fieldTypeToType(ft schema.FieldType) *Type {
	switch f := ft.(type) {
	case schema.PrimitiveField:
		return Primitive(f.Prim.String())
	case schema.NamedField:
		return Table(f.Type.Name)
	case schema.SetField:
		return SetT(fieldTypeToType(f.Elem))
	case schema.OptionalField:
		return OneOfT(fieldTypeToType(f.Inner), NullT())
	default:
		panic(fmt.Sprintf("typeck: unhandled field type %T", ft))
	}
}

// schemaRootType is the type of a "schema"-typed graph parameter: a map
// whose fields are the schema's exports, so `root.someExport` type-checks
// as an ordinary GetField on a map.
func schemaRootType(cs *schema.CompiledSchema) *Type {
	fields := make(map[string]*Type, len(cs.Exports))
	for name, ft := range cs.Exports {
		fields[name] = fieldTypeToType(ft)
	}
	return MapT(append([]string(nil), cs.ExportOrder...), fields)
}

// isCovariant reports whether a value of type src may flow into a
// destination expecting dst — e.g. a bare value into an optional
// (OneOf-with-Null) field, or any branch of a union into that union.
// Unknown is the bottom type: a src of Unknown flows into any dst.
func isCovariant(dst, src *Type) bool {
	if typeEqual(dst, src) {
		return true
	}
	if isBottom(src) {
		return true
	}
	if dst.Kind == KOneOf {
		for _, b := range dst.OneOf {
			if isCovariant(b, src) {
				return true
			}
		}
		return false
	}
	if src.Kind == KOneOf {
		if len(src.OneOf) == 0 {
			return false
		}
		for _, b := range src.OneOf {
			if !isCovariant(dst, b) {
				return false
			}
		}
		return true
	}
	return false
}

// typeEqual is structural equality, used both directly and as the base
// case of isCovariant.
func typeEqual(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KPrimitive:
		return a.Prim == b.Prim
	case KTable:
		return a.TableName == b.TableName
	case KSet, KList:
		return typeEqual(a.Elem, b.Elem)
	case KMap:
		if len(a.MapFields) != len(b.MapFields) {
			return false
		}
		for name, at := range a.MapFields {
			bt, ok := b.MapFields[name]
			if !ok || !typeEqual(at, bt) {
				return false
			}
		}
		return true
	case KOneOf:
		if len(a.OneOf) != len(b.OneOf) {
			return false
		}
		used := make([]bool, len(b.OneOf))
		for _, at := range a.OneOf {
			found := false
			for i, bt := range b.OneOf {
				if !used[i] && typeEqual(at, bt) {
					used[i] = true
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		// KUnknown, KNull, KBool, KSchema carry no payload.
		return true
	}
}

// unwrapOptional strips Null from a OneOf type, erroring if x isn't an
// optional (a OneOf containing Null) to begin with.
func unwrapOptional(x *Type) (*Type, error) {
	if x.Kind != KOneOf {
		return nil, newError(CannotUnwrapNonOptionalErr, fmt.Sprintf("cannot unwrap non-optional type `%s`", x))
	}
	hasNull := false
	branches := make([]*Type, 0, len(x.OneOf))
	for _, b := range x.OneOf {
		if b.IsNull() {
			hasNull = true
			continue
		}
		branches = append(branches, b)
	}
	if !hasNull {
		return nil, newError(CannotUnwrapNonOptionalErr, fmt.Sprintf("cannot unwrap non-optional type `%s`", x))
	}
	return flattenOneOf(OneOfT(branches...)), nil
}

func flattenOneOf(x *Type) *Type {
	if x.Kind == KOneOf && len(x.OneOf) == 1 {
		return x.OneOf[0]
	}
	return x
}
