// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package asm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/bytecode"
)

func TestCompileFieldAccessAndReturn(t *testing.T) {
	src := `
	graph main(root: schema): string {
		some_item = root.some_item;
		return some_item.name;
	}
	`
	s, err := Compile(src)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	g := s.Graphs[0]
	require.NotEqual(t, -1, g.Output)
	require.Equal(t, bytecode.GetField, g.Nodes[g.Output].Op)
}

func TestCompilePreconditionGating(t *testing.T) {
	src := `
	graph main(root: schema): string {
		name = root.name;
		if name == "test" {
			k1 = "start";
		} else {
			k2 = "end";
		}
		return select k1 k2;
	}
	`
	s, err := Compile(src)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	g := s.Graphs[0]

	var k1Node, k2Node, selectNode bytecode.Node
	found := 0
	for _, n := range g.Nodes {
		if n.Op == bytecode.LoadConst {
			found++
		}
		if n.Op == bytecode.Select {
			selectNode = n
		}
	}
	require.Equal(t, bytecode.Select, selectNode.Op)
	require.Len(t, selectNode.InEdges, 2)

	k1Idx, k2Idx := selectNode.InEdges[0], selectNode.InEdges[1]
	k1Node = g.Nodes[k1Idx]
	k2Node = g.Nodes[k2Idx]
	require.NotEqual(t, -1, k1Node.Precondition)
	require.NotEqual(t, -1, k2Node.Precondition)
	require.NotEqual(t, k1Node.Precondition, k2Node.Precondition)

	notFound := false
	for _, n := range g.Nodes {
		if n.Op == bytecode.Not {
			notFound = true
		}
	}
	require.True(t, notFound, "else branch must lower to a Not node inverting the precondition")
}

func TestCompilePipeAndBuiltins(t *testing.T) {
	src := `
	graph main(root: schema) {
		some_item = root.some_item;
		t_insert(duration) some_item $
			build_table(Duration<int64>) $
			m_insert(start) 1 $
			m_insert(end) 2 $
			create_map;
	}
	`
	s, err := Compile(src)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	g := s.Graphs[0]

	var sawCreateMap, sawBuildTable, sawTableInsert, sawMapInsert int
	for _, n := range g.Nodes {
		switch n.Op {
		case bytecode.CreateMap:
			sawCreateMap++
		case bytecode.BuildTable:
			sawBuildTable++
		case bytecode.InsertIntoTable:
			sawTableInsert++
			require.True(t, n.Op.IsEffect())
		case bytecode.InsertIntoMap:
			sawMapInsert++
		}
	}
	require.Equal(t, 1, sawCreateMap)
	require.Equal(t, 1, sawBuildTable)
	require.Equal(t, 1, sawTableInsert)
	require.Equal(t, 2, sawMapInsert)
}

func TestCompileSetInsertAndPointGet(t *testing.T) {
	src := `
	graph main(root: schema) {
		s = root.many_items;
		elem = (point_get s "xxx").name;
		s_insert root.many_items $ build_table(Item) $
			m_insert(id) "xxx" $
			create_map;
	}
	`
	s, err := Compile(src)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	g := s.Graphs[0]

	var sawGetSetElement, sawSetInsert int
	for _, n := range g.Nodes {
		switch n.Op {
		case bytecode.GetSetElement:
			sawGetSetElement++
		case bytecode.InsertIntoSet:
			sawSetInsert++
			require.True(t, n.Op.IsEffect())
		}
	}
	require.Equal(t, 1, sawGetSetElement)
	require.Equal(t, 1, sawSetInsert)
}

func TestCompileDuplicateParamError(t *testing.T) {
	_, err := Compile(`graph main(a: string, a: string) { return a; }`)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, DuplicateParamErr, e.Code)
}

func TestCompileDuplicateReturnError(t *testing.T) {
	_, err := Compile(`graph main(a: string) { return a; return a; }`)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, DuplicateReturnErr, e.Code)
}

func TestCompileUndefinedReferenceError(t *testing.T) {
	_, err := Compile(`graph main(a: string) { return b; }`)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, NodeNotFoundErr, e.Code)
}

func TestCompileCallGraph(t *testing.T) {
	src := `
	graph helper(x: string): string {
		return x;
	}
	graph main(root: schema): string {
		v = root.name;
		return call(helper) v;
	}
	`
	s, err := Compile(src)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	main := s.Graphs[1]
	require.Equal(t, bytecode.Call, main.Nodes[main.Output].Op)
	require.Equal(t, 0, main.Nodes[main.Output].Subgraph)
}
