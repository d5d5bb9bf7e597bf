// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/asm"
	"github.com/rdbcore/rdb/kv/memkv"
	"github.com/rdbcore/rdb/migration"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
)

const vmSchema = `
type Item {
  @primary id: int64,
  name: string,
}
export Item some_item;
export string name;
`

func TestVMNewValidatesAndTypechecks(t *testing.T) {
	cs, err := schema.Compile(vmSchema)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(cs, nil, nil)
	require.NoError(t, err)

	src := `
	graph main(root: schema): string {
		item = root.some_item;
		return item.name;
	}
	`
	s, err := asm.Compile(src)
	require.NoError(t, err)

	v, err := New(s, cs, plan)
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestVMNewRejectsTypeMismatch(t *testing.T) {
	cs, err := schema.Compile(vmSchema)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(cs, nil, nil)
	require.NoError(t, err)

	src := `
	graph main(root: schema): int64 {
		item = root.some_item;
		return item.name;
	}
	`
	s, err := asm.Compile(src)
	require.NoError(t, err)

	_, err = New(s, cs, plan)
	require.Error(t, err)
	require.True(t, IsCode(err, TypeckErr))
}

func TestVMLookupExportedGraphMissing(t *testing.T) {
	cs, err := schema.Compile(vmSchema)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(cs, nil, nil)
	require.NoError(t, err)

	src := `
	graph main(root: schema): string {
		item = root.some_item;
		return item.name;
	}
	`
	s, err := asm.Compile(src)
	require.NoError(t, err)

	v, err := New(s, cs, plan)
	require.NoError(t, err)

	_, err = v.LookupExportedGraph("nonexistent")
	require.Error(t, err)
	require.True(t, IsCode(err, ExportedGraphNotFoundErr))
}

// Scenario: Invoke against an exported graph whose only parameter is
// schema-typed does not require the caller to pass any args; the VM
// supplies the schema-root sentinel itself.
func TestVMInvokeAutoBindsSchemaParam(t *testing.T) {
	cs, err := schema.Compile(vmSchema)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(cs, nil, nil)
	require.NoError(t, err)

	store := memkv.New()
	ctx := context.Background()
	mtx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(ctx, mtx, cs, plan))
	require.NoError(t, mtx.Commit(ctx))

	src := `
	graph writer(root: schema) {
		t_insert(some_item) root $
			build_table(Item) $
			m_insert(id) 1 $
			m_insert(name) "hello" $
			create_map;
	}
	graph reader(root: schema): string {
		item = root.some_item;
		return item.name;
	}
	`
	s, err := asm.Compile(src)
	require.NoError(t, err)

	v, err := New(s, cs, plan)
	require.NoError(t, err)

	tx1, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = v.Invoke(ctx, tx1, "writer", nil)
	require.NoError(t, err)
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	got, err := v.Invoke(ctx, tx2, "reader", nil)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Prim.String)
	require.NoError(t, tx2.Commit(ctx))
}

func TestVMInvokeUnknownGraph(t *testing.T) {
	cs, err := schema.Compile(vmSchema)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(cs, nil, nil)
	require.NoError(t, err)

	src := `
	graph main(root: schema): string {
		item = root.some_item;
		return item.name;
	}
	`
	s, err := asm.Compile(src)
	require.NoError(t, err)

	v, err := New(s, cs, plan)
	require.NoError(t, err)

	store := memkv.New()
	ctx := context.Background()
	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = v.Invoke(ctx, tx, "nope", nil)
	require.Error(t, err)
	require.True(t, IsCode(err, ExportedGraphNotFoundErr))
}
