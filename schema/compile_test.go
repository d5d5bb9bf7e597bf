// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileSimpleExport(t *testing.T) {
	src := `
type Item {
  @primary a: int64,
  b: set<Item>,
  c: bytes,
}
export Item data;
`
	s, err := Compile(src)
	require.NoError(t, err)
	ft, ok := s.Exports["data"]
	require.True(t, ok)
	named, ok := ft.(NamedField)
	require.True(t, ok)
	require.Equal(t, "Item", named.Type.Name)

	a, ok := named.Type.Field("a")
	require.True(t, ok)
	require.True(t, a.HasAnnotation(AnnPrimary))

	b, ok := named.Type.Field("b")
	require.True(t, ok)
	setField, ok := b.Type.(SetField)
	require.True(t, ok)
	elemNamed, ok := setField.Elem.(NamedField)
	require.True(t, ok)
	require.Same(t, named.Type, elemNamed.Type) // recursive field shares the same instance
}

func TestCompileGenericsMonomorphize(t *testing.T) {
	src := `
type Duration<T> {
  start: T,
  end: T,
}
type Item<T> {
  @primary id: string,
  value: T,
}
export set<Item<Duration<int64>>> items;
`
	s, err := Compile(src)
	require.NoError(t, err)
	ft := s.Exports["items"]
	set, ok := ft.(SetField)
	require.True(t, ok)
	named, ok := set.Elem.(NamedField)
	require.True(t, ok)
	require.Equal(t, "Item<Duration<int64>>", named.Type.Name)

	_, ok = s.Types["Item<Duration<int64>>"]
	require.True(t, ok)
	_, ok = s.Types["Duration<int64>"]
	require.True(t, ok)
}

func TestCompileOptionalField(t *testing.T) {
	src := `
type Item {
  @primary id: string,
  name: string?,
}
export Item data;
`
	s, err := Compile(src)
	require.NoError(t, err)
	named := s.Exports["data"].(NamedField)
	f, _ := named.Type.Field("name")
	_, optional := OptionalUnwrapped(f.Type)
	require.True(t, optional)
}

func TestCompileDefaultAnnotation(t *testing.T) {
	src := `
type Item {
  @primary id: string,
  name: string,
  @default("hello") altname: string,
}
export Item some_item;
`
	s, err := Compile(src)
	require.NoError(t, err)
	named := s.Exports["some_item"].(NamedField)
	f, ok := named.Type.Field("altname")
	require.True(t, ok)
	lit, ok := f.Default()
	require.True(t, ok)
	require.Equal(t, "hello", lit.Str)
}

func TestCompileRenameFrom(t *testing.T) {
	src := `
type Item {
  @primary a: int64,
  @rename_from("old_name") b: string,
}
export Item data;
`
	s, err := Compile(src)
	require.NoError(t, err)
	named := s.Exports["data"].(NamedField)
	f, ok := named.Type.Field("b")
	require.True(t, ok)
	old, ok := f.RenameFrom()
	require.True(t, ok)
	require.Equal(t, "old_name", old)
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		code ErrCode
	}{
		{
			name: "duplicate type",
			src:  "type A { x: int64 } type A { y: int64 } export A a;",
			code: DuplicateTypeErr,
		},
		{
			name: "duplicate export",
			src:  "type A { x: int64 } export A a; export A a;",
			code: DuplicateExportErr,
		},
		{
			name: "unknown type",
			src:  "export Nope n;",
			code: UnknownTypeErr,
		},
		{
			name: "arity mismatch",
			src:  "type A<T,U> { x: T } export A<int64> a;",
			code: ArityMismatchErr,
		},
		{
			name: "unknown annotation",
			src:  "type A { @bogus x: int64 } export A a;",
			code: UnknownAnnotationErr,
		},
		{
			name: "multiple primary",
			src:  "type A { @primary x: int64, @primary y: int64 } export A a;",
			code: MultiplePrimaryErr,
		},
		{
			name: "index on non-primitive",
			src:  "type B { @primary id: int64 } type A { @primary k: int64, @index b: B } export A a;",
			code: IndexOnNonPrimitiveErr,
		},
		{
			name: "set element missing primary",
			src:  "type A { x: int64, s: set<A> } export A a;",
			code: MissingPrimaryOnSetElementErr,
		},
		{
			name: "rename collision",
			src:  "type A { @primary id: int64, @rename_from(\"id2\") x: string, id2: string } export A a;",
			code: RenameFromCollisionErr,
		},
		{
			name: "default type mismatch",
			src:  "type A { @primary id: int64, @default(\"x\") y: int64 } export A a;",
			code: DefaultTypeMismatchErr,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src)
			require.Error(t, err)
			require.True(t, IsCode(err, tc.code), "got %v", err)
		})
	}
}
