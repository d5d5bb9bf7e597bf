// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package asm compiles the textual treewalker-graph surface syntax
// into a bytecode.Script: one hand-written lexer/parser (no grammar
// generator survived into the retrieved source) plus a codegen pass
// that lowers the AST into per-graph node lists with interned
// const/ident/type pools, mirroring the original Builder/GraphContext
// split.
package asm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/vmvalue"
)

// Compile parses and lowers src into a bytecode.Script. The script's
// entry graph is the first declared graph.
func Compile(src string) (*bytecode.Script, error) {
	prog, err := parseProgram(src)
	if err != nil {
		return nil, err
	}
	if len(prog.Graphs) == 0 {
		return nil, newError(SyntaxErr, 0, "no graphs declared")
	}

	b := &builder{
		identPool:  make(map[string]int),
		typePool:   make(map[string]int),
		constPool:  make(map[string]int),
		graphIndex: make(map[string]int),
	}
	for i, g := range prog.Graphs {
		if _, exists := b.graphIndex[g.Name]; exists {
			return nil, newError(DuplicateGraphErr, g.Line, "graph %q declared twice", g.Name)
		}
		b.graphIndex[g.Name] = i
	}
	b.script.Graphs = make([]bytecode.Graph, len(prog.Graphs))
	b.script.Entry = b.graphIndex[prog.Graphs[0].Name]

	for i, g := range prog.Graphs {
		compiled, err := b.compileGraph(g)
		if err != nil {
			return nil, err
		}
		b.script.Graphs[i] = *compiled
	}
	b.emitPools()
	return &b.script, nil
}

type builder struct {
	script     bytecode.Script
	identPool  map[string]int
	typePool   map[string]int
	constPool  map[string]int
	constVals  []vmvalue.Value
	graphIndex map[string]int
}

type graphCtx struct {
	b          *builder
	decl       *GraphDecl
	target     *bytecode.Graph
	names      map[string]int
	paramIndex map[string]int
	paramNode  map[string]int
	condStack  []int
}

func (b *builder) compileGraph(g *GraphDecl) (*bytecode.Graph, error) {
	target := &bytecode.Graph{Name: g.Name, Exported: g.Exported, Output: -1, OutputType: -1}
	ctx := &graphCtx{
		b:          b,
		decl:       g,
		target:     target,
		names:      make(map[string]int),
		paramIndex: make(map[string]int),
		paramNode:  make(map[string]int),
	}
	for i, p := range g.Params {
		if _, dup := ctx.paramIndex[p.Name]; dup {
			return nil, newError(DuplicateParamErr, g.Line, "duplicate parameter %q", p.Name)
		}
		ctx.paramIndex[p.Name] = i
		tyIdx := b.internType(bytecode.TypeDesc{Kind: bytecode.TDUnknown}, "unknown")
		if p.Type != nil {
			idx, err := b.allocTypeExpr(p.Type)
			if err != nil {
				return nil, err
			}
			tyIdx = idx
		}
		target.ParamTypes = append(target.ParamTypes, tyIdx)
	}
	if g.ReturnType != nil {
		idx, err := b.allocTypeExpr(g.ReturnType)
		if err != nil {
			return nil, err
		}
		target.OutputType = idx
	}
	for _, s := range g.Stmts {
		if err := ctx.genStmt(s); err != nil {
			return nil, err
		}
	}
	return target, nil
}

func (ctx *graphCtx) precondition() int {
	if len(ctx.condStack) == 0 {
		return -1
	}
	return ctx.condStack[len(ctx.condStack)-1]
}

func (ctx *graphCtx) push(n bytecode.Node, name string) int {
	n.Precondition = ctx.precondition()
	idx := len(ctx.target.Nodes)
	ctx.target.Nodes = append(ctx.target.Nodes, n)
	if name != "" {
		ctx.names[name] = idx
	}
	return idx
}

func (ctx *graphCtx) genStmt(s Stmt) error {
	switch st := s.(type) {
	case *ReturnStmt:
		idx, err := ctx.genExpr("", st.Value)
		if err != nil {
			return err
		}
		if ctx.target.Output != -1 {
			return newError(DuplicateReturnErr, st.Line, "graph %q returns twice", ctx.decl.Name)
		}
		ctx.target.Output = idx
		return nil
	case *NodeStmt:
		_, err := ctx.genExpr(st.Name, st.Value)
		return err
	case *IfStmt:
		return ctx.genIf(st)
	default:
		return fmt.Errorf("asm: unhandled statement %T", s)
	}
}

func (ctx *graphCtx) genIf(st *IfStmt) error {
	pre, err := ctx.genExpr("", st.Precondition)
	if err != nil {
		return err
	}
	condTrue := pre
	if len(ctx.condStack) > 0 {
		last := ctx.condStack[len(ctx.condStack)-1]
		n := bytecode.NewNode(bytecode.And)
		n.InEdges = []int{pre, last}
		condTrue = ctx.push(n, "")
	}
	ctx.condStack = append(ctx.condStack, condTrue)
	for _, s := range st.Then {
		if err := ctx.genStmt(s); err != nil {
			return err
		}
	}
	ctx.condStack = ctx.condStack[:len(ctx.condStack)-1]

	if st.Else != nil {
		notN := bytecode.NewNode(bytecode.Not)
		notN.InEdges = []int{pre}
		notPre := ctx.push(notN, "")
		condFalse := notPre
		if len(ctx.condStack) > 0 {
			last := ctx.condStack[len(ctx.condStack)-1]
			n := bytecode.NewNode(bytecode.And)
			n.InEdges = []int{notPre, last}
			condFalse = ctx.push(n, "")
		}
		ctx.condStack = append(ctx.condStack, condFalse)
		for _, s := range st.Else {
			if err := ctx.genStmt(s); err != nil {
				return err
			}
		}
		ctx.condStack = ctx.condStack[:len(ctx.condStack)-1]
	}
	return nil
}

func (ctx *graphCtx) genExpr(name string, e Expr) (int, error) {
	switch v := e.(type) {
	case *RefExpr:
		if idx, ok := ctx.names[v.Name]; ok {
			return idx, nil
		}
		if pidx, ok := ctx.paramIndex[v.Name]; ok {
			if idx, ok := ctx.paramNode[v.Name]; ok {
				return idx, nil
			}
			n := bytecode.NewNode(bytecode.LoadParam)
			n.ParamIndex = pidx
			idx := ctx.push(n, "")
			ctx.paramNode[v.Name] = idx
			return idx, nil
		}
		return 0, newError(NodeNotFoundErr, v.Line, "undefined reference %q", v.Name)

	case *LiteralExpr:
		c := literalToConst(v)
		n := bytecode.NewNode(bytecode.LoadConst)
		n.ConstIndex = ctx.b.allocConst(c)
		return ctx.push(n, name), nil

	case *FieldExpr:
		recv, err := ctx.genExpr("", v.Recv)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.GetField)
		n.Ident = ctx.b.allocIdent(v.Field)
		n.InEdges = []int{recv}
		return ctx.push(n, name), nil

	case *BinaryExpr:
		l, err := ctx.genExpr("", v.L)
		if err != nil {
			return 0, err
		}
		r, err := ctx.genExpr("", v.R)
		if err != nil {
			return 0, err
		}
		op := map[BinOp]bytecode.Opcode{OpEq: bytecode.Eq, OpNe: bytecode.Ne, OpAnd: bytecode.And, OpOr: bytecode.Or}[v.Op]
		n := bytecode.NewNode(op)
		n.InEdges = []int{l, r}
		return ctx.push(n, name), nil

	case *UnaryExpr:
		x, err := ctx.genExpr("", v.X)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.Not)
		n.InEdges = []int{x}
		return ctx.push(n, name), nil

	case *CreateMapExpr:
		return ctx.push(bytecode.NewNode(bytecode.CreateMap), name), nil

	case *MapInsertExpr:
		if v.Value == nil || v.Map == nil {
			return 0, newError(ArityErr, v.Line, "m_insert(%s) is missing an operand", v.Field)
		}
		val, err := ctx.genExpr("", v.Value)
		if err != nil {
			return 0, err
		}
		m, err := ctx.genExpr("", v.Map)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.InsertIntoMap)
		n.Ident = ctx.b.allocIdent(v.Field)
		n.InEdges = []int{val, m}
		return ctx.push(n, name), nil

	case *MapDeleteExpr:
		if v.Map == nil {
			return 0, newError(ArityErr, v.Line, "delete_from_map(%s) is missing its map operand", v.Field)
		}
		m, err := ctx.genExpr("", v.Map)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.DeleteFromMap)
		n.Ident = ctx.b.allocIdent(v.Field)
		n.InEdges = []int{m}
		return ctx.push(n, name), nil

	case *BuildTableExpr:
		if v.Map == nil {
			return 0, newError(ArityErr, v.Line, "build_table is missing its map operand")
		}
		tableName, err := formatTypeForTable(v.Type)
		if err != nil {
			return 0, err
		}
		m, err := ctx.genExpr("", v.Map)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.BuildTable)
		n.Ident = ctx.b.allocIdent(tableName)
		n.InEdges = []int{m}
		return ctx.push(n, name), nil

	case *TableInsertExpr:
		if v.Table == nil || v.Value == nil {
			return 0, newError(ArityErr, v.Line, "t_insert(%s) is missing an operand", v.Field)
		}
		val, err := ctx.genExpr("", v.Value)
		if err != nil {
			return 0, err
		}
		tbl, err := ctx.genExpr("", v.Table)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.InsertIntoTable)
		n.Ident = ctx.b.allocIdent(v.Field)
		n.InEdges = []int{val, tbl}
		return ctx.push(n, name), nil

	case *TableDeleteExpr:
		if v.Table == nil {
			return 0, newError(ArityErr, v.Line, "delete_from_table(%s) is missing its table operand", v.Field)
		}
		tbl, err := ctx.genExpr("", v.Table)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.DeleteFromTable)
		n.Ident = ctx.b.allocIdent(v.Field)
		n.InEdges = []int{tbl}
		return ctx.push(n, name), nil

	case *SetInsertExpr:
		if v.Set == nil || v.Value == nil {
			return 0, newError(ArityErr, v.Line, "s_insert is missing an operand")
		}
		val, err := ctx.genExpr("", v.Value)
		if err != nil {
			return 0, err
		}
		s, err := ctx.genExpr("", v.Set)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.InsertIntoSet)
		n.InEdges = []int{val, s}
		return ctx.push(n, name), nil

	case *SetDeleteExpr:
		if v.Selector == nil || v.Set == nil {
			return 0, newError(ArityErr, v.Line, "delete_from_set is missing an operand")
		}
		sel, err := ctx.genExpr("", v.Selector)
		if err != nil {
			return 0, err
		}
		s, err := ctx.genExpr("", v.Set)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.DeleteFromSet)
		n.InEdges = []int{sel, s}
		return ctx.push(n, name), nil

	case *PointGetExpr:
		if v.Set == nil || v.Selector == nil {
			return 0, newError(ArityErr, v.Line, "point_get is missing an operand")
		}
		sel, err := ctx.genExpr("", v.Selector)
		if err != nil {
			return 0, err
		}
		s, err := ctx.genExpr("", v.Set)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.GetSetElement)
		n.InEdges = []int{sel, s}
		return ctx.push(n, name), nil

	case *SelectExpr:
		if v.L == nil || v.R == nil {
			return 0, newError(ArityErr, v.Line, "select is missing an operand")
		}
		l, err := ctx.genExpr("", v.L)
		if err != nil {
			return 0, err
		}
		r, err := ctx.genExpr("", v.R)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.Select)
		n.InEdges = []int{l, r}
		return ctx.push(n, name), nil

	case *UnwrapOptionalExpr:
		x, err := ctx.genExpr("", v.X)
		if err != nil {
			return 0, err
		}
		n := bytecode.NewNode(bytecode.UnwrapOptional)
		n.InEdges = []int{x}
		return ctx.push(n, name), nil

	case *CallExpr:
		gidx, ok := ctx.b.graphIndex[v.Graph]
		if !ok {
			return 0, newError(GraphNotFoundErr, v.Line, "call to undefined graph %q", v.Graph)
		}
		args := make([]int, len(v.Args))
		for i, a := range v.Args {
			idx, err := ctx.genExpr("", a)
			if err != nil {
				return 0, err
			}
			args[i] = idx
		}
		n := bytecode.NewNode(bytecode.Call)
		n.Subgraph = gidx
		n.InEdges = args
		return ctx.push(n, name), nil

	default:
		return 0, fmt.Errorf("asm: unhandled expression %T", e)
	}
}

func literalToConst(lit *LiteralExpr) vmvalue.Value {
	switch lit.Kind {
	case LitNull:
		return vmvalue.NullValue()
	case LitBool:
		return vmvalue.BoolValue(lit.Int != 0)
	case LitInt:
		return vmvalue.PrimValue(keyenc.Int(lit.Int))
	case LitString:
		return vmvalue.PrimValue(keyenc.Str(lit.Str))
	case LitBytes:
		return vmvalue.PrimValue(keyenc.Byt(lit.Byt))
	default:
		return vmvalue.NullValue()
	}
}

func (b *builder) allocIdent(name string) int {
	if idx, ok := b.identPool[name]; ok {
		return idx
	}
	idx := len(b.identPool)
	b.identPool[name] = idx
	return idx
}

func constKey(v vmvalue.Value) string {
	switch v.Kind {
	case vmvalue.Null:
		return "null"
	case vmvalue.Bool:
		return fmt.Sprintf("bool:%v", v.Bool)
	case vmvalue.Primitive:
		return fmt.Sprintf("prim:%d:%v:%v:%s:%x", v.Prim.Type, v.Prim.Int64, v.Prim.Double, v.Prim.String, v.Prim.Bytes)
	default:
		return fmt.Sprintf("other:%v", v)
	}
}

func (b *builder) allocConst(v vmvalue.Value) int {
	key := constKey(v)
	if idx, ok := b.constPool[key]; ok {
		return idx
	}
	idx := len(b.constVals)
	b.constPool[key] = idx
	b.constVals = append(b.constVals, v)
	return idx
}

func (b *builder) internType(td bytecode.TypeDesc, key string) int {
	if idx, ok := b.typePool[key]; ok {
		return idx
	}
	idx := len(b.script.Types)
	b.typePool[key] = idx
	b.script.Types = append(b.script.Types, td)
	return idx
}

func (b *builder) allocTypeExpr(t *TypeExpr) (int, error) {
	switch {
	case t.Schema:
		return b.internType(bytecode.TypeDesc{Kind: bytecode.TDSchema}, "schema"), nil
	case t.Primitive != "":
		return b.internType(bytecode.TypeDesc{Kind: bytecode.TDPrimitive, Prim: t.Primitive}, "prim:"+t.Primitive), nil
	case t.SetElem != nil:
		elem, err := b.allocTypeExpr(t.SetElem)
		if err != nil {
			return 0, err
		}
		return b.internType(bytecode.TypeDesc{Kind: bytecode.TDSet, Elem: elem}, fmt.Sprintf("set:%d", elem)), nil
	case t.MapFields != nil:
		td := bytecode.TypeDesc{Kind: bytecode.TDMap, MapFields: make(map[string]int, len(t.MapFields))}
		var keyParts []string
		for _, f := range t.MapFields {
			idx, err := b.allocTypeExpr(f.Type)
			if err != nil {
				return 0, err
			}
			td.MapFieldOrder = append(td.MapFieldOrder, f.Name)
			td.MapFields[f.Name] = idx
			keyParts = append(keyParts, fmt.Sprintf("%s=%d", f.Name, idx))
		}
		sort.Strings(keyParts)
		return b.internType(td, "map:"+strings.Join(keyParts, ",")), nil
	case t.Named != "":
		name, err := formatTypeForTable(t)
		if err != nil {
			return 0, err
		}
		return b.internType(bytecode.TypeDesc{Kind: bytecode.TDTable, TableName: name}, "table:"+name), nil
	default:
		return b.internType(bytecode.TypeDesc{Kind: bytecode.TDUnknown}, "unknown"), nil
	}
}

// formatTypeForTable renders t the way the storage schema names
// specialized types, for use as a BuildTable/ident-pool table name.
// Map and schema types have no table representation.
func formatTypeForTable(t *TypeExpr) (string, error) {
	switch {
	case t.Primitive != "":
		return t.Primitive, nil
	case t.SetElem != nil:
		inner, err := formatTypeForTable(t.SetElem)
		if err != nil {
			return "", err
		}
		return "set<" + inner + ">", nil
	case t.Named != "":
		if len(t.Args) == 0 {
			return t.Named, nil
		}
		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			s, err := formatTypeForTable(a)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return t.Named + "<" + strings.Join(parts, ", ") + ">", nil
	default:
		return "", newError(TypeUnsupportedInTableErr, 0, "type is not representable as a table type")
	}
}

func (b *builder) emitPools() {
	b.script.Idents = make([]string, len(b.identPool))
	for name, idx := range b.identPool {
		b.script.Idents[idx] = name
	}
	b.script.Consts = b.constVals
}
