// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package exec runs a type-checked bytecode.Script's graphs against a
// KV transaction. Nodes fire as soon as their dependencies (in-edges
// plus an optional precondition) are available, not in a fixed linear
// order: independent subtrees of a graph evaluate concurrently, the
// same shape as the dependency-driven dataflow model this is grounded
// on. Most opcodes short-circuit to null the instant any
// non-precondition input is null (bytecode.Opcode.IsOptionalChained);
// the handful that need to observe null themselves (IsNull, Nop,
// map edits, Reduce, Select, Throw) opt out of that and see it as an
// ordinary value.
package exec

import (
	"bytes"
	"context"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/keyenc"
	"github.com/rdbcore/rdb/kv"
	"github.com/rdbcore/rdb/logging"
	"github.com/rdbcore/rdb/pathwalker"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
	"github.com/rdbcore/rdb/vmvalue"
)

// DefaultConcurrency bounds how many nodes (across the whole call
// tree, including nested subgraph invocations) may be mid-evaluation
// at once.
const DefaultConcurrency = 8

// Executor runs graphs of one compiled script against one
// transaction. It is not safe to share a single Executor's tx across
// concurrent top-level Run calls; the transaction interface itself
// only promises to tolerate the interleaving one Run call's own
// internal fan-out produces.
type Executor struct {
	script *bytecode.Script
	schema *schema.CompiledSchema
	plan   *storageplan.StoragePlan
	tx     kv.Transaction
	sem    *semaphore.Weighted
	logger logging.Logger

	byName map[string]int
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithLogger attaches a logger an Executor uses to report graph runs
// and failures. The default is a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New builds an Executor. concurrency <= 0 uses DefaultConcurrency.
func New(script *bytecode.Script, sch *schema.CompiledSchema, plan *storageplan.StoragePlan, tx kv.Transaction, concurrency int64, opts ...Option) *Executor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	byName := make(map[string]int, len(script.Graphs))
	for i, g := range script.Graphs {
		byName[g.Name] = i
	}
	e := &Executor{script: script, schema: sch, plan: plan, tx: tx, sem: semaphore.NewWeighted(concurrency), byName: byName, logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates the named graph with args bound to its parameters in
// declaration order; a "schema"-typed parameter's corresponding slot
// is ignored (it is always rebound to the schema-root sentinel).
func (e *Executor) Run(ctx context.Context, graphName string, args []vmvalue.Value) (vmvalue.Value, error) {
	gi, ok := e.byName[graphName]
	if !ok {
		return vmvalue.Value{}, newError(GraphIndexOobErr, nil, "no graph named %q", graphName)
	}
	return e.runGraph(ctx, gi, args)
}

// RunEntry evaluates the script's designated entry graph.
func (e *Executor) RunEntry(ctx context.Context, args []vmvalue.Value) (vmvalue.Value, error) {
	return e.runGraph(ctx, e.script.Entry, args)
}

type nodeResult struct {
	idx int
	val vmvalue.Value
	err error
}

// runGraph is the fire-rule scheduler: every node with no unmet
// dependency is dispatched at once; as each completes, its consumers'
// pending-dependency counts drop, and newly-zero consumers dispatch in
// turn. This is the dependency-driven analogue of typeck's simpler
// linear topological walk, needed here because effect nodes must run
// even when they aren't on the path to the graph's declared output.
func (e *Executor) runGraph(ctx context.Context, gi int, args []vmvalue.Value) (vmvalue.Value, error) {
	if gi < 0 || gi >= len(e.script.Graphs) {
		return vmvalue.Value{}, newError(GraphIndexOobErr, nil, "graph index %d out of range", gi)
	}
	g := &e.script.Graphs[gi]
	total := len(g.Nodes)
	e.logger.Debug("running graph %q (%d nodes)", g.Name, total)

	deps := make([][]int, total)
	for i := range g.Nodes {
		node := &g.Nodes[i]
		seen := make(map[int]bool, len(node.InEdges)+1)
		for _, d := range node.InEdges {
			if d >= 0 && !seen[d] {
				seen[d] = true
				deps[i] = append(deps[i], d)
			}
		}
		if node.Precondition >= 0 && !seen[node.Precondition] {
			deps[i] = append(deps[i], node.Precondition)
		}
	}
	pending := make([]int, total)
	consumers := make([][]int, total)
	for i := range g.Nodes {
		pending[i] = len(deps[i])
		for _, d := range deps[i] {
			consumers[d] = append(consumers[d], i)
		}
	}

	values := make([]vmvalue.Value, total)
	dispatched := make([]bool, total)
	resultCh := make(chan nodeResult, total)

	dispatch := func(idx int) {
		dispatched[idx] = true
		go func() {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				resultCh <- nodeResult{idx, vmvalue.Value{}, newError(KVErr, err, "acquire concurrency slot")}
				return
			}
			defer e.sem.Release(1)
			val, err := e.evalNode(ctx, g, idx, values, args)
			resultCh <- nodeResult{idx, val, err}
		}()
	}

	for i := range g.Nodes {
		if pending[i] == 0 {
			dispatch(i)
		}
	}

	finished := 0
	var firstErr error
	for finished < total {
		select {
		case <-ctx.Done():
			return vmvalue.Value{}, newError(KVErr, ctx.Err(), "graph %q canceled", g.Name)
		case r := <-resultCh:
			finished++
			if r.err != nil {
				if firstErr == nil {
					firstErr = locate(r.err, g.Name, r.idx)
				}
				values[r.idx] = vmvalue.NullValue()
			} else {
				values[r.idx] = r.val
			}
			for _, c := range consumers[r.idx] {
				pending[c]--
				if pending[c] == 0 && !dispatched[c] {
					dispatch(c)
				}
			}
		}
	}
	if firstErr != nil {
		e.logger.Error("graph %q failed: %v", g.Name, firstErr)
		return vmvalue.Value{}, firstErr
	}
	if g.Output < 0 {
		return vmvalue.NullValue(), nil
	}
	return values[g.Output], nil
}

// evalNode enforces the two generic dispatch-time rules — precondition
// short-circuit and optional-chained null short-circuit — before
// handing off to eval for the opcode's actual behavior.
func (e *Executor) evalNode(ctx context.Context, g *bytecode.Graph, idx int, values []vmvalue.Value, args []vmvalue.Value) (vmvalue.Value, error) {
	n := &g.Nodes[idx]
	if n.Precondition >= 0 {
		if n.Precondition >= len(values) {
			return vmvalue.Value{}, newError(InvalidInEdgeErr, nil, "precondition index %d out of range", n.Precondition)
		}
		pv := values[n.Precondition]
		if pv.IsNull() || (pv.Kind == vmvalue.Bool && !pv.Bool) {
			return vmvalue.NullValue(), nil
		}
	}
	inputs := make([]vmvalue.Value, len(n.InEdges))
	for i, d := range n.InEdges {
		if d < 0 || d >= len(values) {
			return vmvalue.Value{}, newError(InvalidInEdgeErr, nil, "in-edge %d out of range", d)
		}
		inputs[i] = values[d]
	}
	if n.Op.IsOptionalChained() {
		for _, v := range inputs {
			if v.IsNull() {
				return vmvalue.NullValue(), nil
			}
		}
	}
	return e.eval(ctx, g, n, args, inputs)
}

func (e *Executor) ident(idx int) (string, error) {
	if idx < 0 || idx >= len(e.script.Idents) {
		return "", newError(IdentIndexOobErr, nil, "ident index %d out of range", idx)
	}
	return e.script.Idents[idx], nil
}

// eval performs the opcode's own semantics, given already-resolved
// precondition/short-circuit handling and already-gathered inputs.
func (e *Executor) eval(ctx context.Context, g *bytecode.Graph, n *bytecode.Node, args []vmvalue.Value, inputs []vmvalue.Value) (vmvalue.Value, error) {
	switch n.Op {
	case bytecode.LoadParam:
		if n.ParamIndex < 0 || n.ParamIndex >= len(g.ParamTypes) {
			return vmvalue.Value{}, newError(ParamIndexOobErr, nil, "param index %d out of range", n.ParamIndex)
		}
		if td := g.ParamTypes[n.ParamIndex]; td >= 0 && td < len(e.script.Types) && e.script.Types[td].Kind == bytecode.TDSchema {
			return vmvalue.SchemaRootValue(), nil
		}
		if n.ParamIndex >= len(args) {
			return vmvalue.Value{}, newError(ParamIndexOobErr, nil, "no argument supplied for param %d", n.ParamIndex)
		}
		return args[n.ParamIndex], nil

	case bytecode.LoadConst:
		if n.ConstIndex < 0 || n.ConstIndex >= len(e.script.Consts) {
			return vmvalue.Value{}, newError(ConstIndexOobErr, nil, "const index %d out of range", n.ConstIndex)
		}
		return e.script.Consts[n.ConstIndex], nil

	case bytecode.CreateMap:
		return vmvalue.NewMap(), nil

	case bytecode.InsertIntoMap:
		// InEdges = [value, map] (the assembler generates the value
		// operand before the receiver it's inserted into).
		name, err := e.ident(n.Ident)
		if err != nil {
			return vmvalue.Value{}, err
		}
		return inputs[1].WithField(name, inputs[0]), nil

	case bytecode.DeleteFromMap:
		name, err := e.ident(n.Ident)
		if err != nil {
			return vmvalue.Value{}, err
		}
		return inputs[0].WithoutField(name), nil

	case bytecode.CreateList:
		return vmvalue.Value{Kind: vmvalue.List, List: append([]vmvalue.Value(nil), inputs...)}, nil

	case bytecode.BuildTable:
		return e.evalBuildTable(n, inputs[0])

	case bytecode.BuildSet:
		return e.evalBuildSet(ctx, n, inputs[0])

	case bytecode.InsertIntoTable:
		return e.evalInsertIntoTable(ctx, n, inputs)

	case bytecode.DeleteFromTable:
		return e.evalDeleteFromTable(ctx, n, inputs[0])

	case bytecode.InsertIntoSet:
		return e.evalInsertIntoSet(ctx, inputs)

	case bytecode.DeleteFromSet:
		return e.evalDeleteFromSet(ctx, inputs)

	case bytecode.GetField:
		return e.evalGetField(ctx, n, inputs[0])

	case bytecode.GetSetElement:
		return e.evalGetSetElement(ctx, inputs)

	case bytecode.FilterSet:
		return e.evalFilterSet(ctx, n, inputs[0])

	case bytecode.Reduce:
		return e.evalReduce(ctx, n, inputs)

	case bytecode.Eq:
		return vmvalue.BoolValue(valueEqual(inputs[0], inputs[1])), nil

	case bytecode.Ne:
		return vmvalue.BoolValue(!valueEqual(inputs[0], inputs[1])), nil

	case bytecode.And:
		a, b, err := twoBools(inputs)
		if err != nil {
			return vmvalue.Value{}, err
		}
		return vmvalue.BoolValue(a && b), nil

	case bytecode.Or:
		a, b, err := twoBools(inputs)
		if err != nil {
			return vmvalue.Value{}, err
		}
		return vmvalue.BoolValue(a || b), nil

	case bytecode.Not:
		if inputs[0].Kind != vmvalue.Bool {
			return vmvalue.Value{}, newError(NotBoolErr, nil, "not: operand is not bool")
		}
		return vmvalue.BoolValue(!inputs[0].Bool), nil

	case bytecode.Select:
		if !inputs[0].IsNull() {
			return inputs[0], nil
		}
		return inputs[1], nil

	case bytecode.UnwrapOptional:
		if inputs[0].IsNull() {
			return vmvalue.Value{}, newError(UnwrapNullErr, nil, "unwrap_optional on null value")
		}
		return inputs[0], nil

	case bytecode.IsPresent:
		return vmvalue.BoolValue(!inputs[0].IsNull()), nil

	case bytecode.IsNull:
		return vmvalue.BoolValue(inputs[0].IsNull()), nil

	case bytecode.Nop:
		return inputs[0], nil

	case bytecode.Add, bytecode.Sub:
		if inputs[0].Kind != vmvalue.Primitive || inputs[1].Kind != vmvalue.Primitive {
			return vmvalue.Value{}, newError(NotArithmeticErr, nil, "operands are not primitive")
		}
		return arith(n.Op, inputs[0].Prim, inputs[1].Prim)

	case bytecode.Throw:
		return vmvalue.Value{}, newError(ThrownErr, nil, "explicit throw")

	case bytecode.Call:
		return e.callGraph(ctx, n.Subgraph, inputs)

	case bytecode.PrependToList:
		return vmvalue.Value{Kind: vmvalue.List, List: append([]vmvalue.Value{inputs[1]}, inputs[0].List...)}, nil

	case bytecode.PopFromList:
		if len(inputs[0].List) == 0 {
			return vmvalue.Value{Kind: vmvalue.List}, nil
		}
		return vmvalue.Value{Kind: vmvalue.List, List: append([]vmvalue.Value(nil), inputs[0].List[1:]...)}, nil

	case bytecode.ListHead:
		if len(inputs[0].List) == 0 {
			return vmvalue.NullValue(), nil
		}
		return inputs[0].List[0], nil

	default:
		return vmvalue.Value{}, newError(InvalidInEdgeErr, nil, "unhandled opcode %s", n.Op)
	}
}

func twoBools(inputs []vmvalue.Value) (bool, bool, error) {
	if inputs[0].Kind != vmvalue.Bool || inputs[1].Kind != vmvalue.Bool {
		return false, false, newError(NotBoolErr, nil, "operands are not bool")
	}
	return inputs[0].Bool, inputs[1].Bool, nil
}

func arith(op bytecode.Opcode, a, b keyenc.Value) (vmvalue.Value, error) {
	if a.Type != b.Type {
		return vmvalue.Value{}, newError(NotArithmeticErr, nil, "mismatched operand types %v/%v", a.Type, b.Type)
	}
	switch a.Type {
	case keyenc.Int64:
		if op == bytecode.Add {
			return vmvalue.PrimValue(keyenc.Int(a.Int64 + b.Int64)), nil
		}
		return vmvalue.PrimValue(keyenc.Int(a.Int64 - b.Int64)), nil
	case keyenc.Double:
		if op == bytecode.Add {
			return vmvalue.PrimValue(keyenc.Dbl(a.Double + b.Double)), nil
		}
		return vmvalue.PrimValue(keyenc.Dbl(a.Double - b.Double)), nil
	default:
		return vmvalue.Value{}, newError(NotArithmeticErr, nil, "operand type %v is not arithmetic", a.Type)
	}
}

func valueEqual(a, b vmvalue.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case vmvalue.Null:
		return true
	case vmvalue.Bool:
		return a.Bool == b.Bool
	case vmvalue.Primitive:
		return primEqual(a.Prim, b.Prim)
	case vmvalue.List:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !valueEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case vmvalue.Map:
		if len(a.MapValues) != len(b.MapValues) {
			return false
		}
		for k, av := range a.MapValues {
			bv, ok := b.MapValues[k]
			if !ok || !valueEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		// Tables and sets carry no portable value identity to compare.
		return false
	}
}

func primEqual(a, b keyenc.Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case keyenc.Int64:
		return a.Int64 == b.Int64
	case keyenc.Double:
		return a.Double == b.Double
	case keyenc.String:
		return a.String == b.String
	case keyenc.Bytes:
		return bytes.Equal(a.Bytes, b.Bytes)
	default:
		return false
	}
}

// callGraph invokes callee with passedArgs filling its non-schema
// parameters in order; schema-typed parameters are always rebound to
// the schema-root sentinel regardless of what the caller passed.
func (e *Executor) callGraph(ctx context.Context, calleeIdx int, passedArgs []vmvalue.Value) (vmvalue.Value, error) {
	if calleeIdx < 0 || calleeIdx >= len(e.script.Graphs) {
		return vmvalue.Value{}, newError(SubgraphIndexOobErr, nil, "subgraph %d out of range", calleeIdx)
	}
	callee := &e.script.Graphs[calleeIdx]
	args := make([]vmvalue.Value, len(callee.ParamTypes))
	pi := 0
	for i, td := range callee.ParamTypes {
		if td >= 0 && td < len(e.script.Types) && e.script.Types[td].Kind == bytecode.TDSchema {
			args[i] = vmvalue.SchemaRootValue()
			continue
		}
		if pi >= len(passedArgs) {
			return vmvalue.Value{}, newError(ParamCountMismatchErr, nil, "callee %q expects more arguments than provided", callee.Name)
		}
		args[i] = passedArgs[pi]
		pi++
	}
	return e.runGraph(ctx, calleeIdx, args)
}

func (e *Executor) evalBuildTable(n *bytecode.Node, mapVal vmvalue.Value) (vmvalue.Value, error) {
	name, err := e.ident(n.Ident)
	if err != nil {
		return vmvalue.Value{}, err
	}
	sp, ok := e.schema.Types[name]
	if !ok {
		return vmvalue.Value{}, newError(UnknownExportErr, nil, "unknown table type %q", name)
	}
	out := vmvalue.NewFreshTable(name)
	for _, f := range sp.Fields() {
		if v, ok := mapVal.MapValues[f.Name]; ok {
			out.Fields[f.Name] = v
		}
	}
	return out, nil
}

func (e *Executor) evalBuildSet(ctx context.Context, n *bytecode.Node, listVal vmvalue.Value) (vmvalue.Value, error) {
	name, err := e.ident(n.Ident)
	if err != nil {
		return vmvalue.Value{}, err
	}
	sp, ok := e.schema.Types[name]
	if !ok {
		return vmvalue.Value{}, newError(UnknownExportErr, nil, "unknown table type %q", name)
	}
	pk, ok := sp.PrimaryField()
	if !ok {
		return vmvalue.Value{}, newError(MissingPrimaryKeyErr, nil, "table %q has no primary key", name)
	}
	out := vmvalue.NewFreshSet(name)
	for _, el := range listVal.List {
		pv, err := e.primaryKeyOf(ctx, sp, pk, el)
		if err != nil {
			return vmvalue.Value{}, err
		}
		out.Elems[string(keyenc.Encode(pv))] = el
	}
	return out, nil
}

func (e *Executor) evalGetField(ctx context.Context, n *bytecode.Node, src vmvalue.Value) (vmvalue.Value, error) {
	name, err := e.ident(n.Ident)
	if err != nil {
		return vmvalue.Value{}, err
	}
	switch src.Kind {
	case vmvalue.SchemaRoot:
		ft, ok := e.schema.Exports[name]
		if !ok {
			return vmvalue.Value{}, newError(UnknownExportErr, nil, "no export named %q", name)
		}
		w, err := pathwalker.FromExport(e.plan, name)
		if err != nil {
			return vmvalue.Value{}, newError(KVErr, err, "from export %q", name)
		}
		return e.readField(ctx, w, ft)

	case vmvalue.ResidentTable:
		sp, ok := e.schema.Types[src.TypeName]
		if !ok {
			return vmvalue.Value{}, newError(UnknownExportErr, nil, "unknown table type %q", src.TypeName)
		}
		f, ok := sp.Field(name)
		if !ok {
			return vmvalue.Value{}, newError(UnknownFieldErr, nil, "table %q has no field %q", src.TypeName, name)
		}
		w, err := src.Walker.EnterField(name)
		if err != nil {
			return vmvalue.Value{}, newError(KVErr, err, "enter field %q", name)
		}
		return e.readField(ctx, w, f.Type)

	case vmvalue.FreshTable:
		if v, ok := src.Fields[name]; ok {
			return v, nil
		}
		return vmvalue.NullValue(), nil

	case vmvalue.Map:
		if v, ok := src.MapValues[name]; ok {
			return v, nil
		}
		return vmvalue.NullValue(), nil

	default:
		return vmvalue.Value{}, newError(UnknownFieldErr, nil, "get_field on value of kind %s", src.Kind)
	}
}

func (e *Executor) evalGetSetElement(ctx context.Context, inputs []vmvalue.Value) (vmvalue.Value, error) {
	// InEdges = [selector, set] (point_get's argument order).
	keyVal, setVal := inputs[0], inputs[1]
	switch setVal.Kind {
	case vmvalue.ResidentSet:
		w, err := setVal.Walker.EnterSet(keyVal.Prim)
		if err != nil {
			return vmvalue.Value{}, newError(KVErr, err, "enter set element")
		}
		raw, err := e.tx.Get(ctx, w.GenerateKey())
		if err != nil {
			return vmvalue.Value{}, newError(KVErr, err, "get set element presence")
		}
		if raw == nil {
			return vmvalue.NullValue(), nil
		}
		return vmvalue.NewResidentTable(setVal.TypeName, w), nil

	case vmvalue.FreshSet:
		if el, ok := setVal.Elems[string(keyenc.Encode(keyVal.Prim))]; ok {
			return el, nil
		}
		return vmvalue.NullValue(), nil

	default:
		return vmvalue.Value{}, newError(NotSetErr, nil, "get_set_element on value of kind %s", setVal.Kind)
	}
}

func (e *Executor) evalInsertIntoTable(ctx context.Context, n *bytecode.Node, inputs []vmvalue.Value) (vmvalue.Value, error) {
	// InEdges = [value, table].
	val, tbl := inputs[0], inputs[1]
	if tbl.Kind == vmvalue.SchemaRoot {
		name, err := e.ident(n.Ident)
		ft, ok := e.schema.Exports[name]
		if err != nil || !ok {
			return vmvalue.Value{}, newError(UnknownExportErr, err, "no export named %q", name)
		}
		w, err := pathwalker.FromExport(e.plan, name)
		if err != nil {
			return vmvalue.Value{}, newError(KVErr, err, "from export %q", name)
		}
		inner, _ := schema.OptionalUnwrapped(ft)
		if err := e.writeFieldValue(ctx, w, inner, val); err != nil {
			return vmvalue.Value{}, err
		}
		return vmvalue.NullValue(), nil
	}
	if tbl.Kind != vmvalue.ResidentTable {
		return vmvalue.Value{}, newError(RequiresResidentErr, nil, "insert_into_table on non-resident table (kind %s)", tbl.Kind)
	}
	name, err := e.ident(n.Ident)
	if err != nil {
		return vmvalue.Value{}, err
	}
	sp, ok := e.schema.Types[tbl.TypeName]
	if !ok {
		return vmvalue.Value{}, newError(UnknownExportErr, nil, "unknown table type %q", tbl.TypeName)
	}
	f, ok := sp.Field(name)
	if !ok {
		return vmvalue.Value{}, newError(UnknownFieldErr, nil, "table %q has no field %q", tbl.TypeName, name)
	}
	child, err := tbl.Walker.EnterField(name)
	if err != nil {
		return vmvalue.Value{}, newError(KVErr, err, "enter field %q", name)
	}
	inner, _ := schema.OptionalUnwrapped(f.Type)
	if err := e.writeFieldValue(ctx, child, inner, val); err != nil {
		return vmvalue.Value{}, err
	}
	return vmvalue.NullValue(), nil
}

func (e *Executor) evalDeleteFromTable(ctx context.Context, n *bytecode.Node, tbl vmvalue.Value) (vmvalue.Value, error) {
	if tbl.Kind != vmvalue.ResidentTable {
		return vmvalue.Value{}, newError(RequiresResidentErr, nil, "delete_from_table on non-resident table (kind %s)", tbl.Kind)
	}
	name, err := e.ident(n.Ident)
	if err != nil {
		return vmvalue.Value{}, err
	}
	w, err := tbl.Walker.EnterField(name)
	if err != nil {
		return vmvalue.Value{}, newError(KVErr, err, "enter field %q", name)
	}
	prefix := w.GenerateKey()
	if err := e.tx.DeleteRange(ctx, prefix, prefixEnd(prefix)); err != nil {
		return vmvalue.Value{}, newError(KVErr, err, "delete field subtree")
	}
	return vmvalue.NullValue(), nil
}

func (e *Executor) evalInsertIntoSet(ctx context.Context, inputs []vmvalue.Value) (vmvalue.Value, error) {
	// InEdges = [value, set].
	elemVal, setVal := inputs[0], inputs[1]
	if setVal.Kind != vmvalue.ResidentSet {
		return vmvalue.Value{}, newError(RequiresResidentErr, nil, "insert_into_set on non-resident set (kind %s)", setVal.Kind)
	}
	sp, ok := e.schema.Types[setVal.TypeName]
	if !ok {
		return vmvalue.Value{}, newError(UnknownExportErr, nil, "unknown table type %q", setVal.TypeName)
	}
	pk, ok := sp.PrimaryField()
	if !ok {
		return vmvalue.Value{}, newError(MissingPrimaryKeyErr, nil, "table %q has no primary key", setVal.TypeName)
	}
	pv, err := e.primaryKeyOf(ctx, sp, pk, elemVal)
	if err != nil {
		return vmvalue.Value{}, err
	}
	w, err := setVal.Walker.EnterSet(pv)
	if err != nil {
		return vmvalue.Value{}, newError(KVErr, err, "enter set element")
	}
	if err := e.writeNamedValue(ctx, w, sp, elemVal); err != nil {
		return vmvalue.Value{}, err
	}
	return vmvalue.NullValue(), nil
}

func (e *Executor) evalDeleteFromSet(ctx context.Context, inputs []vmvalue.Value) (vmvalue.Value, error) {
	// InEdges = [selector, set].
	keyVal, setVal := inputs[0], inputs[1]
	if setVal.Kind != vmvalue.ResidentSet {
		return vmvalue.Value{}, newError(RequiresResidentErr, nil, "delete_from_set on non-resident set (kind %s)", setVal.Kind)
	}
	w, err := setVal.Walker.EnterSet(keyVal.Prim)
	if err != nil {
		return vmvalue.Value{}, newError(KVErr, err, "enter set element")
	}
	prefix := w.GenerateKey()
	if err := e.tx.DeleteRange(ctx, prefix, prefixEnd(prefix)); err != nil {
		return vmvalue.Value{}, newError(KVErr, err, "delete set element subtree")
	}
	return vmvalue.NullValue(), nil
}

func (e *Executor) evalFilterSet(ctx context.Context, n *bytecode.Node, setVal vmvalue.Value) (vmvalue.Value, error) {
	switch setVal.Kind {
	case vmvalue.FreshSet:
		out := vmvalue.NewFreshSet(setVal.TypeName)
		for k, el := range setVal.Elems {
			keep, err := e.callGraph(ctx, n.Subgraph, []vmvalue.Value{el})
			if err != nil {
				return vmvalue.Value{}, err
			}
			if keep.Kind == vmvalue.Bool && keep.Bool {
				out.Elems[k] = el
			}
		}
		return out, nil
	case vmvalue.ResidentSet:
		// Unindexed full scans are out of scope; filter_set only runs
		// over a set already materialized in memory (e.g. the result
		// of a primary-key-range reduce).
		return vmvalue.Value{}, newError(RequiresResidentOrFreshErr, nil, "filter_set over a resident set requires a full scan, which is unsupported; narrow it first")
	default:
		return vmvalue.Value{}, newError(NotSetErr, nil, "filter_set on value of kind %s", setVal.Kind)
	}
}

func (e *Executor) evalReduce(ctx context.Context, n *bytecode.Node, inputs []vmvalue.Value) (vmvalue.Value, error) {
	acc, setVal := inputs[0], inputs[1]
	var elems []vmvalue.Value
	switch setVal.Kind {
	case vmvalue.FreshSet:
		keys := make([]string, 0, len(setVal.Elems))
		for k := range setVal.Elems {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			elems = append(elems, setVal.Elems[k])
		}
	case vmvalue.ResidentSet:
		if !n.HasRange {
			return vmvalue.Value{}, newError(RequiresResidentOrFreshErr, nil, "reduce over a resident set without has_range requires a full scan, which is unsupported")
		}
		if len(inputs) < 3 {
			return vmvalue.Value{}, newError(InvalidInEdgeErr, nil, "reduce with has_range requires a range in-edge")
		}
		lo, hi, hasLo, hasHi, err := decodeRange(inputs[2])
		if err != nil {
			return vmvalue.Value{}, err
		}
		elems, err = e.scanSetRange(ctx, setVal, lo, hi, hasLo, hasHi)
		if err != nil {
			return vmvalue.Value{}, err
		}
	default:
		return vmvalue.Value{}, newError(NotSetErr, nil, "reduce on value of kind %s", setVal.Kind)
	}
	for _, el := range elems {
		next, err := e.callGraph(ctx, n.Subgraph, []vmvalue.Value{acc, el})
		if err != nil {
			return vmvalue.Value{}, err
		}
		acc = next
	}
	return acc, nil
}

// decodeRange interprets a Reduce range argument as a 2-element list
// of optional primitive bounds [lo, hi]; no pool-level "range" type
// was ever defined for it, so this shape is this package's own
// convention for representing an optionally-open interval.
func decodeRange(v vmvalue.Value) (lo, hi keyenc.Value, hasLo, hasHi bool, err error) {
	if v.Kind != vmvalue.List || len(v.List) != 2 {
		return keyenc.Value{}, keyenc.Value{}, false, false, newError(InvalidInEdgeErr, nil, "range argument must be a 2-element [lo, hi] list")
	}
	if !v.List[0].IsNull() {
		lo, hasLo = v.List[0].Prim, true
	}
	if !v.List[1].IsNull() {
		hi, hasHi = v.List[1].Prim, true
	}
	return lo, hi, hasLo, hasHi, nil
}

// scanSetRange enumerates the distinct elements of a resident set
// whose primary key falls in [lo, hi) (either bound optional),
// dispatching one EnterSet per distinct key so the result reuses the
// same resident-table representation a point get produces.
func (e *Executor) scanSetRange(ctx context.Context, setVal vmvalue.Value, lo, hi keyenc.Value, hasLo, hasHi bool) ([]vmvalue.Value, error) {
	prefix := setVal.Walker.GenerateKey()
	start, end := prefix, prefixEnd(prefix)
	if hasLo {
		start = append(append([]byte(nil), prefix...), keyenc.Encode(lo)...)
	}
	if hasHi {
		end = append(append([]byte(nil), prefix...), keyenc.Encode(hi)...)
	}
	cur, err := e.tx.ScanKeys(ctx, start, end)
	if err != nil {
		return nil, newError(KVErr, err, "scan set range")
	}
	defer cur.Close()
	seen := make(map[string]bool)
	var out []vmvalue.Value
	for cur.Next(ctx) {
		key := cur.KeyValue().Key
		rest := key[len(prefix):]
		pv, n, err := keyenc.Decode(rest)
		if err != nil {
			return nil, newError(DecodeErr, err, "decode set element key")
		}
		dyn := string(rest[:n])
		if seen[dyn] {
			continue
		}
		seen[dyn] = true
		w, err := setVal.Walker.EnterSet(pv)
		if err != nil {
			return nil, newError(KVErr, err, "enter set element")
		}
		out = append(out, vmvalue.NewResidentTable(setVal.TypeName, w))
	}
	if err := cur.Err(); err != nil {
		return nil, newError(KVErr, err, "scan set range")
	}
	return out, nil
}
