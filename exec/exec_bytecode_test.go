// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/kv/memkv"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
	"github.com/rdbcore/rdb/vmvalue"
)

// build_set, reduce, create_list and the list opcodes have no surface
// syntax in the asm grammar (confirmed by grep: none of those builtin
// names appear in asm/parser.go) — they can only be reached by
// hand-assembling a bytecode.Script directly, as done here. This is
// the only coverage exercising evalBuildSet/evalReduce/CreateList.
func TestExecHandBuiltBuildSetAndReduce(t *testing.T) {
	item := func(id int64, name string) vmvalue.Value {
		return vmvalue.Value{
			Kind:     vmvalue.FreshTable,
			TypeName: "Item",
			Fields: map[string]vmvalue.Value{
				"id":   vmvalue.PrimValue(keyenc.Int(id)),
				"name": vmvalue.PrimValue(keyenc.Str(name)),
			},
		}
	}

	script := &bytecode.Script{
		Entry:  0,
		Consts: []vmvalue.Value{item(1, "one"), item(2, "two"), vmvalue.PrimValue(keyenc.Int(0))},
		Idents: []string{"Item", "id"},
		Types:  []bytecode.TypeDesc{{Kind: bytecode.TDUnknown}},
		Graphs: []bytecode.Graph{
			{
				Name:       "sumIds",
				ParamTypes: []int{0},
				Output:     5,
				OutputType: -1,
				Nodes: []bytecode.Node{
					{Op: bytecode.LoadConst, ConstIndex: 0, Ident: -1, ParamIndex: -1, Subgraph: -1, Precondition: -1},
					{Op: bytecode.LoadConst, ConstIndex: 1, Ident: -1, ParamIndex: -1, Subgraph: -1, Precondition: -1},
					{Op: bytecode.CreateList, ConstIndex: -1, Ident: -1, ParamIndex: -1, Subgraph: -1, Precondition: -1, InEdges: []int{0, 1}},
					{Op: bytecode.BuildSet, ConstIndex: -1, Ident: 0, ParamIndex: -1, Subgraph: -1, Precondition: -1, InEdges: []int{2}},
					{Op: bytecode.LoadConst, ConstIndex: 2, Ident: -1, ParamIndex: -1, Subgraph: -1, Precondition: -1},
					{Op: bytecode.Reduce, ConstIndex: -1, Ident: -1, ParamIndex: -1, Subgraph: 1, Precondition: -1, InEdges: []int{4, 3}},
				},
			},
			{
				Name:       "adder",
				ParamTypes: []int{0, 0},
				Output:     3,
				OutputType: -1,
				Nodes: []bytecode.Node{
					{Op: bytecode.LoadParam, ConstIndex: -1, Ident: -1, ParamIndex: 0, Subgraph: -1, Precondition: -1},
					{Op: bytecode.LoadParam, ConstIndex: -1, Ident: -1, ParamIndex: 1, Subgraph: -1, Precondition: -1},
					{Op: bytecode.GetField, ConstIndex: -1, Ident: 1, ParamIndex: -1, Subgraph: -1, Precondition: -1, InEdges: []int{1}},
					{Op: bytecode.Add, ConstIndex: -1, Ident: -1, ParamIndex: -1, Subgraph: -1, Precondition: -1, InEdges: []int{0, 2}},
				},
			},
		},
	}
	require.NoError(t, script.Validate())

	cs, err := schema.Compile(`type Item { @primary id: int64, name: string } export Item some_item;`)
	require.NoError(t, err)
	plan, err := storageplan.GeneratePlan(cs, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	store := memkv.New()
	tx, err := store.BeginTransaction(ctx)
	require.NoError(t, err)
	defer tx.Commit(ctx)

	ex := New(script, cs, plan, tx, 0)
	got, err := ex.RunEntry(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, vmvalue.Primitive, got.Kind)
	require.Equal(t, int64(3), got.Prim.Int64)
}
