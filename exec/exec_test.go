// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rdbcore/rdb/asm"
	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/kv"
	"github.com/rdbcore/rdb/kv/memkv"
	"github.com/rdbcore/rdb/migration"
	"github.com/rdbcore/rdb/pathwalker"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
	"github.com/rdbcore/rdb/vmvalue"
)

const execSchema = `
type Item {
  @primary id: int64,
  name: string,
}
export Item some_item;
export set<Item> many_items;
export string name;
`

// setup compiles execSchema, generates its storage plan, migrates an
// empty store to it, and compiles src, returning everything needed to
// run a graph.
func setup(t *testing.T, src string) (*bytecode.Script, *schema.CompiledSchema, *storageplan.StoragePlan, kv.Store) {
	t.Helper()
	cs, err := schema.Compile(execSchema)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(cs, nil, nil)
	require.NoError(t, err)
	store := memkv.New()

	ctx := context.Background()
	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(ctx, tx, cs, plan))
	require.NoError(t, tx.Commit(ctx))

	s, err := asm.Compile(src)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return s, cs, plan, store
}

// Scenario: a precondition gates which of two branches produces the
// value select ultimately returns, and the losing branch's node never
// contributes a value (it short-circuits to null via its own unmet
// precondition, not via evaluating and being discarded).
func TestExecPreconditionGating(t *testing.T) {
	src := `
	graph main(root: schema): string {
		n = root.name;
		if n == "test" {
			k1 = "start";
		} else {
			k2 = "end";
		}
		return select k1 k2;
	}
	`
	s, cs, plan, store := setup(t, src)
	ctx := context.Background()

	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	ex := New(s, cs, plan, tx, 0)
	got, err := ex.RunEntry(ctx, []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)
	require.Equal(t, vmvalue.Primitive, got.Kind)
	require.Equal(t, "end", got.Prim.String)
	require.NoError(t, tx.Commit(ctx))
}

func TestExecPreconditionGatingTrueBranch(t *testing.T) {
	src := `
	graph main(root: schema): string {
		n = root.name;
		if n == "test" {
			k1 = "start";
		} else {
			k2 = "end";
		}
		return select k1 k2;
	}
	`
	s, cs, plan, store := setup(t, src)
	ctx := context.Background()

	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	w, err := pathwalker.FromExport(plan, "name")
	require.NoError(t, err)
	enc, err := msgpack.Marshal("test")
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, w.GenerateKey(), enc))

	ex := New(s, cs, plan, tx, 0)
	got, err := ex.RunEntry(ctx, []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)
	require.Equal(t, "start", got.Prim.String)
	require.NoError(t, tx.Commit(ctx))
}

// Scenario: a writer graph inserts a table into a resident export,
// then a separate reader graph, run against a later transaction on the
// same store, observes the written field.
func TestExecWriteThenRead(t *testing.T) {
	src := `
	graph writer(root: schema) {
		t_insert(some_item) root $
			build_table(Item) $
			m_insert(id) 1 $
			m_insert(name) "test_name" $
			create_map;
	}
	graph reader(root: schema): string {
		item = root.some_item;
		return item.name;
	}
	`
	s, cs, plan, store := setup(t, src)
	ctx := context.Background()

	tx1, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	ex1 := New(s, cs, plan, tx1, 0)
	_, err = ex1.Run(ctx, "writer", []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	ex2 := New(s, cs, plan, tx2, 0)
	got, err := ex2.Run(ctx, "reader", []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)
	require.Equal(t, "test_name", got.Prim.String)
	require.NoError(t, tx2.Commit(ctx))
}

// Reading an export that was never written observes the zero-value
// table: a present placeholder (migration seeded it) but required
// fields holding their type's default.
func TestExecReadBeforeWriteSeesDefault(t *testing.T) {
	src := `
	graph reader(root: schema): string {
		item = root.some_item;
		return item.name;
	}
	`
	s, cs, plan, store := setup(t, src)
	ctx := context.Background()

	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	ex := New(s, cs, plan, tx, 0)
	got, err := ex.Run(ctx, "reader", []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)
	require.Equal(t, "", got.Prim.String)
	require.NoError(t, tx.Commit(ctx))
}

// Scenario: inserting into a set and then point-getting the same
// primary key back out within the same transaction observes the
// just-written element.
func TestExecSetInsertThenPointGet(t *testing.T) {
	src := `
	graph writer(root: schema) {
		s_insert root.many_items $ build_table(Item) $
			m_insert(id) 7 $
			m_insert(name) "seven" $
			create_map;
	}
	graph reader(root: schema): string {
		s = root.many_items;
		elem = point_get s 7;
		return elem.name;
	}
	`
	s, cs, plan, store := setup(t, src)
	ctx := context.Background()

	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	ex := New(s, cs, plan, tx, 0)
	_, err = ex.Run(ctx, "writer", []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)

	got, err := ex.Run(ctx, "reader", []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)
	require.Equal(t, "seven", got.Prim.String)
	require.NoError(t, tx.Commit(ctx))
}

// A point_get for a key never inserted observes null, and field access
// on it short-circuits to null rather than erroring (GetField is
// optional-chained).
func TestExecPointGetMissingIsNull(t *testing.T) {
	src := `
	graph reader(root: schema): string {
		s = root.many_items;
		elem = point_get s 99;
		return elem.name;
	}
	`
	s, cs, plan, store := setup(t, src)
	ctx := context.Background()

	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	ex := New(s, cs, plan, tx, 0)
	got, err := ex.Run(ctx, "reader", []vmvalue.Value{vmvalue.SchemaRootValue()})
	require.NoError(t, err)
	require.True(t, got.IsNull())
	require.NoError(t, tx.Commit(ctx))
}
