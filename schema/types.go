// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import (
	"fmt"
	"strings"
)

// Primitive enumerates the four primitive field types.
type Primitive int

const (
	Int64 Primitive = iota
	Double
	String
	Bytes
)

func (p Primitive) String() string {
	switch p {
	case Int64:
		return "int64"
	case Double:
		return "double"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	default:
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
}

func primitiveFromName(name string) (Primitive, bool) {
	switch name {
	case "int64":
		return Int64, true
	case "double":
		return Double, true
	case "string":
		return String, true
	case "bytes":
		return Bytes, true
	default:
		return 0, false
	}
}

// FieldType is the resolved (post-monomorphization) sum of field type
// shapes: primitive, named (specialized type reference), set-of,
// optional-of. It is the concrete analogue of the AST's TypeExpr.
type FieldType interface {
	String() string
	ftMarker()
}

type PrimitiveField struct{ Prim Primitive }

type NamedField struct{ Type *SpecializedType }

type SetField struct{ Elem FieldType }

type OptionalField struct{ Inner FieldType }

func (f PrimitiveField) ftMarker() {}
func (f NamedField) ftMarker()     {}
func (f SetField) ftMarker()       {}
func (f OptionalField) ftMarker()  {}

func (f PrimitiveField) String() string { return f.Prim.String() }
func (f NamedField) String() string     { return f.Type.Name }
func (f SetField) String() string       { return "set<" + f.Elem.String() + ">" }
func (f OptionalField) String() string  { return f.Inner.String() + "?" }

// OptionalUnwrapped returns the inner field type with any Optional
// wrapper stripped, and whether a wrapper was present.
func OptionalUnwrapped(ft FieldType) (FieldType, bool) {
	if o, ok := ft.(OptionalField); ok {
		return o.Inner, true
	}
	return ft, false
}

// AnnotationKind enumerates the recognized field annotations.
type AnnotationKind int

const (
	AnnPrimary AnnotationKind = iota
	AnnUnique
	AnnIndex
	AnnPacked
	AnnDefault
	AnnRenameFrom
)

// FieldAnnotation is one resolved annotation attached to a field,
// carrying its literal argument where applicable.
type FieldAnnotation struct {
	Kind        AnnotationKind
	DefaultLit  Literal // meaningful when Kind == AnnDefault
	RenameOld   string  // meaningful when Kind == AnnRenameFrom
}

// Field is one member of a SpecializedType, in declaration order.
type Field struct {
	Name        string
	Type        FieldType
	Annotations []FieldAnnotation
}

func (f *Field) HasAnnotation(k AnnotationKind) bool {
	for _, a := range f.Annotations {
		if a.Kind == k {
			return true
		}
	}
	return false
}

func (f *Field) Default() (Literal, bool) {
	for _, a := range f.Annotations {
		if a.Kind == AnnDefault {
			return a.DefaultLit, true
		}
	}
	return Literal{}, false
}

func (f *Field) RenameFrom() (string, bool) {
	for _, a := range f.Annotations {
		if a.Kind == AnnRenameFrom {
			return a.RenameOld, true
		}
	}
	return "", false
}

// SpecializedType is the result of monomorphizing a generic type
// declaration with concrete type arguments. Name is the stable
// content-addressing textual name (e.g. "BinaryTree<int64>") used as
// the interning key and as the identity compared across schema
// versions by the storage planner.
type SpecializedType struct {
	Name        string
	FieldOrder  []string
	fieldByName map[string]*Field
}

func newSpecializedType(name string) *SpecializedType {
	return &SpecializedType{Name: name, fieldByName: make(map[string]*Field)}
}

func (t *SpecializedType) addField(f *Field) {
	t.FieldOrder = append(t.FieldOrder, f.Name)
	t.fieldByName[f.Name] = f
}

func (t *SpecializedType) Field(name string) (*Field, bool) {
	f, ok := t.fieldByName[name]
	return f, ok
}

func (t *SpecializedType) Fields() []*Field {
	out := make([]*Field, len(t.FieldOrder))
	for i, n := range t.FieldOrder {
		out[i] = t.fieldByName[n]
	}
	return out
}

// PrimaryField returns the field carrying @primary, if any.
func (t *SpecializedType) PrimaryField() (*Field, bool) {
	for _, f := range t.Fields() {
		if f.HasAnnotation(AnnPrimary) {
			return f, true
		}
	}
	return nil, false
}

// CompiledSchema is the output of Compile: every specialized type
// instance reached from an export, keyed by its stable name, plus the
// export table.
type CompiledSchema struct {
	Types   map[string]*SpecializedType
	Exports map[string]FieldType
	// ExportOrder preserves source declaration order for stable
	// pretty-printing and plan generation.
	ExportOrder []string
}

// String pretty-prints the schema back to its surface syntax form,
// grouping specialized types by name in a stable order followed by
// export declarations. The text is for display: @default annotations
// and specialized generic type names (e.g. "Item<Duration<int64>>")
// are printed in forms that Compile does not accept.
func (s *CompiledSchema) String() string {
	var sb strings.Builder
	names := make([]string, 0, len(s.Types))
	for n := range s.Types {
		names = append(names, n)
	}
	sortStrings(names)
	for _, n := range names {
		t := s.Types[n]
		fmt.Fprintf(&sb, "type %s {\n", t.Name)
		for _, f := range t.Fields() {
			for _, a := range f.Annotations {
				sb.WriteString("  " + annotationString(a) + "\n  ")
			}
			fmt.Fprintf(&sb, "%s: %s,\n", f.Name, f.Type.String())
		}
		sb.WriteString("}\n")
	}
	for _, n := range s.ExportOrder {
		fmt.Fprintf(&sb, "export %s %s;\n", s.Exports[n].String(), n)
	}
	return sb.String()
}

func annotationString(a FieldAnnotation) string {
	switch a.Kind {
	case AnnPrimary:
		return "@primary"
	case AnnUnique:
		return "@unique"
	case AnnIndex:
		return "@index"
	case AnnPacked:
		return "@packed"
	case AnnDefault:
		return "@default(...)"
	case AnnRenameFrom:
		return fmt.Sprintf("@rename_from(%q)", a.RenameOld)
	default:
		return "@?"
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
