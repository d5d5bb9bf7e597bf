// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package serialize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/vmvalue"
)

func TestEncodeNull(t *testing.T) {
	v, err := Encode(vmvalue.NullValue())
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestEncodeBool(t *testing.T) {
	v, err := Encode(vmvalue.BoolValue(true))
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestEncodePrimitives(t *testing.T) {
	cases := []struct {
		in   keyenc.Value
		want string
	}{
		{keyenc.Int(-42), "-42"},
		{keyenc.Dbl(3.5), "3.5"},
		{keyenc.Str("hello"), "hello"},
		{keyenc.Byt([]byte{1, 2, 3}), "AQID"},
	}
	for _, c := range cases {
		v, err := Encode(vmvalue.PrimValue(c.in))
		require.NoError(t, err)
		require.Equal(t, c.want, v)
	}
}

func TestEncodeMap(t *testing.T) {
	m := vmvalue.NewMap().WithField("name", vmvalue.PrimValue(keyenc.Str("bob"))).
		WithField("age", vmvalue.PrimValue(keyenc.Int(30)))
	v, err := Encode(m)
	require.NoError(t, err)
	got := v.(map[string]interface{})
	require.Equal(t, "bob", got["name"])
	require.Equal(t, "30", got["age"])
}

func TestEncodeTableIsUnserializable(t *testing.T) {
	_, err := Encode(vmvalue.NewFreshTable("Item"))
	require.Error(t, err)
	require.True(t, IsCode(err, UnserializableErr))
}

func TestDecodeRoundTripsPrimitivesAndMap(t *testing.T) {
	types := []bytecode.TypeDesc{
		{Kind: bytecode.TDPrimitive, Prim: "string"}, // 0
		{Kind: bytecode.TDPrimitive, Prim: "int64"},  // 1
		{Kind: bytecode.TDMap, // 2
			MapFieldOrder: []string{"name", "age"},
			MapFields:     map[string]int{"name": 0, "age": 1},
		},
	}
	got, err := Decode([]byte(`{"name":"bob","age":"30"}`), types, 2)
	require.NoError(t, err)
	require.Equal(t, vmvalue.Map, got.Kind)
	require.Equal(t, "bob", got.MapValues["name"].Prim.String)
	require.Equal(t, int64(30), got.MapValues["age"].Prim.Int64)
}

func TestDecodeMissingFieldDefaultsToNull(t *testing.T) {
	types := []bytecode.TypeDesc{
		{Kind: bytecode.TDPrimitive, Prim: "string"}, // 0
		{Kind: bytecode.TDMap, // 1
			MapFieldOrder: []string{"name"},
			MapFields:     map[string]int{"name": 0},
		},
	}
	got, err := Decode([]byte(`{}`), types, 1)
	require.NoError(t, err)
	require.True(t, got.MapValues["name"].IsNull())
}

func TestDecodeBytesRoundTrip(t *testing.T) {
	types := []bytecode.TypeDesc{{Kind: bytecode.TDPrimitive, Prim: "bytes"}}
	got, err := Decode([]byte(`"AQID"`), types, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got.Prim.Bytes)
}

func TestDecodeTypeMismatch(t *testing.T) {
	types := []bytecode.TypeDesc{{Kind: bytecode.TDBool}}
	_, err := Decode([]byte(`"not a bool"`), types, 0)
	require.Error(t, err)
	require.True(t, IsCode(err, TypeMismatchErr))
}

func TestDecodeOneOfTriesEachBranch(t *testing.T) {
	types := []bytecode.TypeDesc{
		{Kind: bytecode.TDBool},                       // 0
		{Kind: bytecode.TDPrimitive, Prim: "string"},   // 1
		{Kind: bytecode.TDOneOf, OneOf: []int{0, 1}},   // 2
	}
	got, err := Decode([]byte(`"hello"`), types, 2)
	require.NoError(t, err)
	require.Equal(t, vmvalue.Primitive, got.Kind)
	require.Equal(t, "hello", got.Prim.String)
}

func TestDecodeMalformedJSON(t *testing.T) {
	types := []bytecode.TypeDesc{{Kind: bytecode.TDBool}}
	_, err := Decode([]byte(`{not json`), types, 0)
	require.Error(t, err)
	require.True(t, IsCode(err, MalformedJSONErr))
}
