// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

// Location pinpoints a byte offset and line number in the source text
// an AST node was parsed from, for error reporting.
type Location struct {
	Pos  int
	Line int
}

// File is a parsed schema source: a sequence of type declarations and
// export items, in source order.
type File struct {
	Types   []*TypeDecl
	Exports []*ExportDecl
}

// TypeDecl declares a (possibly generic) record type.
type TypeDecl struct {
	Loc      Location
	Name     string
	Generics []string
	Fields   []*FieldDecl
}

// FieldDecl is one field of a type declaration.
type FieldDecl struct {
	Loc         Location
	Annotations []*Annotation
	Name        string
	Type        TypeExpr
	Optional    bool
}

// Annotation is an `@name` or `@name(args)` field decoration.
type Annotation struct {
	Loc  Location
	Name string
	Args []Literal
}

// Literal is a constant argument to an annotation, e.g. @default("x").
type Literal struct {
	Kind LiteralKind
	Str  string
	Int  int64
	Byt  []byte
}

type LiteralKind int

const (
	LitString LiteralKind = iota
	LitInt
	LitBytes
)

// ExportDecl is an `export TYPE name;` item.
type ExportDecl struct {
	Loc       Location
	Type      TypeExpr
	TableName string
}

// TypeExpr is the sum of type-expression shapes that can appear in a
// field type or an export's type position.
type TypeExpr interface {
	exprMarker()
}

// PrimitiveExpr references one of the four primitive types by name.
type PrimitiveExpr struct {
	Loc  Location
	Name string // "int64", "double", "string", "bytes"
}

// SetExpr is `set<Elem>`.
type SetExpr struct {
	Loc  Location
	Elem TypeExpr
}

// NamedExpr references a declared type (or a generic parameter, when
// it resolves to one in the enclosing TypeDecl's generics list), with
// zero or more type-argument specializations.
type NamedExpr struct {
	Loc  Location
	Name string
	Args []TypeExpr
}

func (*PrimitiveExpr) exprMarker() {}
func (*SetExpr) exprMarker()       {}
func (*NamedExpr) exprMarker()     {}

var primitiveNames = map[string]bool{
	"int64": true, "double": true, "string": true, "bytes": true,
}
