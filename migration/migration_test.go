// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rdbcore/rdb/kv/memkv"
	"github.com/rdbcore/rdb/pathwalker"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
)

func TestMigrateAddFieldBackfillsDefault(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()

	oldSrc := `
type Item { @primary a: int64, b: set<Item>, c: bytes }
export Item data;
`
	oldSchema, err := schema.Compile(oldSrc)
	require.NoError(t, err)
	oldPlan, err := storageplan.GeneratePlan(oldSchema, nil, nil)
	require.NoError(t, err)

	tx1, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, tx1, oldSchema, oldPlan))
	require.NoError(t, tx1.Commit(ctx))

	newSrc := `
type Item { @primary a: int64, b: set<Item>, c: bytes, d: string }
export Item data;
`
	newSchema, err := schema.Compile(newSrc)
	require.NoError(t, err)
	newPlan, err := storageplan.GeneratePlan(newSchema, oldSchema, oldPlan)
	require.NoError(t, err)

	tx2, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, tx2, newSchema, newPlan))
	require.NoError(t, tx2.Commit(ctx))

	tx3, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	w, err := pathwalker.FromExport(newPlan, "data")
	require.NoError(t, err)
	wd, err := w.EnterField("d")
	require.NoError(t, err)
	val, err := tx3.Get(ctx, wd.GenerateKey())
	require.NoError(t, err)
	var s string
	require.NoError(t, msgpack.Unmarshal(val, &s))
	require.Equal(t, "", s)
}

func TestMigrateIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()

	src := `type Item { @primary a: int64, c: bytes } export Item data;`
	s, err := schema.Compile(src)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(s, nil, nil)
	require.NoError(t, err)

	tx1, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, tx1, s, plan))
	require.NoError(t, tx1.Commit(ctx))

	w, err := pathwalker.FromExport(plan, "data")
	require.NoError(t, err)
	wc, err := w.EnterField("c")
	require.NoError(t, err)

	tx2, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	before, err := tx2.Get(ctx, wc.GenerateKey())
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	tx3, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, tx3, s, plan))
	require.NoError(t, tx3.Commit(ctx))

	tx4, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	after, err := tx4.Get(ctx, wc.GenerateKey())
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMigrateDefaultAnnotation(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	src := `
type Item { @primary id: string, name: string, @default("hello") altname: string }
export Item some_item;
`
	s, err := schema.Compile(src)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(s, nil, nil)
	require.NoError(t, err)

	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, tx, s, plan))
	require.NoError(t, tx.Commit(ctx))

	w, err := pathwalker.FromExport(plan, "some_item")
	require.NoError(t, err)
	wAlt, err := w.EnterField("altname")
	require.NoError(t, err)

	tx2, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	val, err := tx2.Get(ctx, wAlt.GenerateKey())
	require.NoError(t, err)
	var got string
	require.NoError(t, msgpack.Unmarshal(val, &got))
	require.Equal(t, "hello", got)
}
