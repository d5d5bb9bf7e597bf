// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package vmvalue is the executor's runtime value model: the things
// that flow along a graph's edges. A table or set value is either
// "fresh" (built in memory by the program, e.g. from CreateMap/
// BuildTable) or "resident" (backed by a path walker positioned in the
// KV transaction) — GetField on a resident table performs a KV read
// lazily; GetField on a fresh table reads the in-memory map.
package vmvalue

import (
	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/pathwalker"
)

type Kind int

const (
	Null Kind = iota
	Bool
	Primitive
	Map
	List
	FreshTable
	ResidentTable
	FreshSet
	ResidentSet
	// SchemaRoot is the sentinel value bound to a "schema"-typed graph
	// parameter: GetField on it walks into the named export via a
	// fresh path-walker rather than reading an in-memory map entry.
	SchemaRoot
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Primitive:
		return "primitive"
	case Map:
		return "map"
	case List:
		return "list"
	case FreshTable:
		return "fresh_table"
	case ResidentTable:
		return "resident_table"
	case FreshSet:
		return "fresh_set"
	case ResidentSet:
		return "resident_set"
	case SchemaRoot:
		return "schema_root"
	default:
		return "unknown"
	}
}

// Value is the tagged union of runtime values. Exactly the fields
// relevant to Kind are meaningful.
type Value struct {
	Kind Kind

	Bool bool
	Prim keyenc.Value

	// Map: an ordered string-keyed map (CreateMap/InsertIntoMap).
	MapKeys   []string
	MapValues map[string]Value

	// List: an ordered homogeneous sequence (CreateList).
	List []Value

	// {Fresh,Resident}Table / {Fresh,Resident}Set: TypeName is the
	// specialized record type name (table element type for sets).
	TypeName string

	// FreshTable: field values already assigned.
	Fields map[string]Value

	// FreshSet: elements inserted so far, keyed by their encoded
	// primary-key bytes for InsertIntoSet/DeleteFromSet/GetSetElement.
	Elems map[string]Value

	// Resident{Table,Set}: the walker positioned at this value.
	Walker *pathwalker.Walker
}

func NullValue() Value   { return Value{Kind: Null} }
func BoolValue(b bool) Value { return Value{Kind: Bool, Bool: b} }
func PrimValue(v keyenc.Value) Value { return Value{Kind: Primitive, Prim: v} }

func NewMap() Value {
	return Value{Kind: Map, MapValues: make(map[string]Value)}
}

// WithField returns a copy of a Map value with key set to v (map
// insert is a non-effect: it returns a new map rather than mutating).
func (v Value) WithField(key string, val Value) Value {
	out := Value{Kind: Map, MapValues: make(map[string]Value, len(v.MapValues)+1)}
	out.MapKeys = append(out.MapKeys, v.MapKeys...)
	for k, mv := range v.MapValues {
		out.MapValues[k] = mv
	}
	if _, exists := out.MapValues[key]; !exists {
		out.MapKeys = append(out.MapKeys, key)
	}
	out.MapValues[key] = val
	return out
}

// WithoutField returns a copy of a Map value with key removed.
func (v Value) WithoutField(key string) Value {
	out := Value{Kind: Map, MapValues: make(map[string]Value, len(v.MapValues))}
	for _, k := range v.MapKeys {
		if k == key {
			continue
		}
		out.MapKeys = append(out.MapKeys, k)
		out.MapValues[k] = v.MapValues[k]
	}
	return out
}

func (v Value) IsNull() bool { return v.Kind == Null }

func NewFreshTable(typeName string) Value {
	return Value{Kind: FreshTable, TypeName: typeName, Fields: make(map[string]Value)}
}

func NewResidentTable(typeName string, w *pathwalker.Walker) Value {
	return Value{Kind: ResidentTable, TypeName: typeName, Walker: w}
}

func NewResidentSet(typeName string, w *pathwalker.Walker) Value {
	return Value{Kind: ResidentSet, TypeName: typeName, Walker: w}
}

func NewFreshSet(typeName string) Value {
	return Value{Kind: FreshSet, TypeName: typeName, Elems: make(map[string]Value)}
}

// SchemaRootValue is the value bound to every "schema"-typed graph
// parameter.
func SchemaRootValue() Value { return Value{Kind: SchemaRoot} }
