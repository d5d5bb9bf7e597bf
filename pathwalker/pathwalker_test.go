// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pathwalker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
)

func compilePlan(t *testing.T, src string) (*schema.CompiledSchema, *storageplan.StoragePlan) {
	t.Helper()
	s, err := schema.Compile(src)
	require.NoError(t, err)
	p, err := storageplan.GeneratePlan(s, nil, nil)
	require.NoError(t, err)
	return s, p
}

func TestWalkerFieldNavigation(t *testing.T) {
	_, plan := compilePlan(t, `
type Item {
  @primary a: int64,
  b: set<Item>,
  c: bytes,
}
export Item data;
`)
	w, err := FromExport(plan, "data")
	require.NoError(t, err)
	rootKey := w.GenerateKey()
	require.Len(t, rootKey, 16)

	wa, err := w.EnterField("a")
	require.NoError(t, err)
	require.Len(t, wa.GenerateKey(), 32)
	require.NotEqual(t, rootKey, wa.GenerateKey()[:16])

	_, err = w.EnterField("nope")
	require.Error(t, err)
	require.True(t, IsCode(err, FieldNotFoundErr))
}

func TestWalkerEnterSetAndRecursiveShare(t *testing.T) {
	_, plan := compilePlan(t, `
type Item {
  @primary a: int64,
  b: set<Item>,
  c: bytes,
}
export Item data;
`)
	w, err := FromExport(plan, "data")
	require.NoError(t, err)

	wb, err := w.EnterField("b")
	require.NoError(t, err)

	_, err = wb.EnterField("a")
	require.Error(t, err, "entering a field directly on a set must fail")
	require.True(t, IsCode(err, EnterFieldOnSetErr))

	welem, err := wb.EnterSet(keyenc.Int(42))
	require.NoError(t, err)
	// the recursive element shares Item's own subspace key
	welemA, err := welem.EnterField("a")
	require.NoError(t, err)
	waKey, err := w.EnterField("a")
	require.NoError(t, err)
	require.Equal(t, waKey.GenerateKey()[16:], welemA.GenerateKey()[len(welemA.GenerateKey())-16:])
}

func TestWalkerEnterSetOnNonSet(t *testing.T) {
	_, plan := compilePlan(t, `
type Item { @primary a: int64, c: bytes }
export Item data;
`)
	w, err := FromExport(plan, "data")
	require.NoError(t, err)
	wc, err := w.EnterField("c")
	require.NoError(t, err)
	_, err = wc.EnterSet(keyenc.Int(1))
	require.Error(t, err)
	require.True(t, IsCode(err, EnterSetOnNonSetErr))
}
