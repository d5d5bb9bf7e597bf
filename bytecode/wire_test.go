// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/vmvalue"
)

func TestWireRoundTripsSimpleScript(t *testing.T) {
	s := simpleScript()
	bin, err := Marshal(&s)
	require.NoError(t, err)
	decoded, err := Unmarshal(bin)
	require.NoError(t, err)
	require.Equal(t, s, *decoded)
}

func TestWireRoundTripsEveryConstKind(t *testing.T) {
	s := simpleScript()
	s.Consts = []vmvalue.Value{
		vmvalue.NullValue(),
		vmvalue.BoolValue(true),
		vmvalue.PrimValue(keyenc.Int(-7)),
		vmvalue.PrimValue(keyenc.Dbl(3.5)),
		vmvalue.PrimValue(keyenc.Str("hi")),
		vmvalue.PrimValue(keyenc.Byt([]byte{1, 2, 3})),
	}
	s.Graphs[0].Nodes[1].ConstIndex = 0

	bin, err := Marshal(&s)
	require.NoError(t, err)
	decoded, err := Unmarshal(bin)
	require.NoError(t, err)
	require.Equal(t, s.Consts, decoded.Consts)
}

func TestWireRejectsUnsupportedConstKind(t *testing.T) {
	s := simpleScript()
	s.Consts = []vmvalue.Value{vmvalue.NewMap()}
	_, err := Marshal(&s)
	require.Error(t, err)
	require.Equal(t, UnsupportedConstKindErr, err.(*Error).Code)
}

func TestWireRejectsBadVersionByte(t *testing.T) {
	s := simpleScript()
	bin, err := Marshal(&s)
	require.NoError(t, err)
	bin[0] = 0xff
	_, err = Unmarshal(bin)
	require.Error(t, err)
	require.Equal(t, CorruptWireFormatErr, err.(*Error).Code)
}

func TestWireRejectsEmptyData(t *testing.T) {
	_, err := Unmarshal(nil)
	require.Error(t, err)
	require.Equal(t, CorruptWireFormatErr, err.(*Error).Code)
}

func TestWireRejectsTrailingGarbage(t *testing.T) {
	s := simpleScript()
	bin, err := Marshal(&s)
	require.NoError(t, err)
	bin = append(bin, 0xaa, 0xbb)
	_, err = Unmarshal(bin)
	require.Error(t, err)
	require.Equal(t, CorruptWireFormatErr, err.(*Error).Code)
}
