// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package typeck

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/asm"
	"github.com/rdbcore/rdb/schema"
)

const itemSchema = `
type Item {
  @primary id: int64,
  name: string,
}
export Item some_item;
export set<Item> many_items;
`

func compileBoth(t *testing.T, src string) (*GlobalContext, error) {
	t.Helper()
	cs, err := schema.Compile(itemSchema)
	require.NoError(t, err)
	s, err := asm.Compile(src)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	c := NewGlobalContext(s, cs)
	return c, c.Typeck()
}

func TestTypeckFieldAccessAccepted(t *testing.T) {
	src := `
	graph main(root: schema): string {
		some_item = root.some_item;
		return some_item.name;
	}
	`
	_, err := compileBoth(t, src)
	require.NoError(t, err)
}

func TestTypeckOutputTypeMismatch(t *testing.T) {
	src := `
	graph main(root: schema): int64 {
		some_item = root.some_item;
		return some_item.name;
	}
	`
	_, err := compileBoth(t, src)
	require.Error(t, err)
	require.True(t, IsCode(err, OutputTypeMismatchErr))
}

func TestTypeckUnknownField(t *testing.T) {
	src := `
	graph main(root: schema): string {
		some_item = root.some_item;
		return some_item.bogus;
	}
	`
	_, err := compileBoth(t, src)
	require.Error(t, err)
	require.True(t, IsCode(err, FieldNotPresentInTableErr))
}

func TestTypeckSetInsertAndPointGet(t *testing.T) {
	src := `
	graph main(root: schema) {
		s = root.many_items;
		elem = (point_get s 1).name;
		s_insert root.many_items $ build_table(Item) $
			m_insert(id) 1 $
			m_insert(name) "xxx" $
			create_map;
	}
	`
	_, err := compileBoth(t, src)
	require.NoError(t, err)
}

func TestTypeckBuildTableWrongFieldType(t *testing.T) {
	src := `
	graph main(root: schema) {
		s_insert root.many_items $ build_table(Item) $
			m_insert(id) "not-an-int" $
			m_insert(name) "xxx" $
			create_map;
	}
	`
	_, err := compileBoth(t, src)
	require.Error(t, err)
	require.True(t, IsCode(err, NonCovariantTypesErr))
}

func TestTypeckCallGraphInfersUnknownParam(t *testing.T) {
	src := `
	graph helper(x) {
		return x;
	}
	graph main(root: schema): string {
		v = root.some_item.name;
		return call(helper) v;
	}
	`
	c, err := compileBoth(t, src)
	require.NoError(t, err)
	require.Equal(t, "string", c.graphOutputType[c.script.Entry].Prim)
}

func TestTypeckCallArityMismatch(t *testing.T) {
	src := `
	graph helper(x: string, y: string): string {
		return x;
	}
	graph main(root: schema): string {
		v = root.some_item.name;
		return call(helper) v;
	}
	`
	_, err := compileBoth(t, src)
	require.Error(t, err)
	require.True(t, IsCode(err, ParamCountMismatchErr))
}
