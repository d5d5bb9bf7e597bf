// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package vm ties the compiler/planner stack together: it validates
// and type-checks a compiled bytecode.Script against a schema once at
// construction, then exposes running any of its exported graphs
// against a caller-supplied transaction. This is the Go analogue of
// the original treewalker's TwVm: that type eagerly converts consts
// and types for its own in-memory VmValue representation; here the
// bytecode pools already use this module's runtime vmvalue.Value
// directly, so construction only needs to validate, type-check, and
// index exported graphs by name.
package vm

import (
	"context"

	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/exec"
	"github.com/rdbcore/rdb/kv"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
	"github.com/rdbcore/rdb/typeck"
	"github.com/rdbcore/rdb/vmvalue"
)

// VM binds one compiled script to one schema/plan pair. It is
// immutable and safe to share across concurrently running
// transactions: each Invoke call builds its own exec.Executor scoped
// to the transaction passed in.
type VM struct {
	Schema *schema.CompiledSchema
	Plan   *storageplan.StoragePlan
	Script *bytecode.Script

	// Concurrency bounds how many nodes of one graph run
	// simultaneously; 0 uses exec.DefaultConcurrency.
	Concurrency int64

	exportedGraph map[string]int
}

// New validates script, type-checks it against sch, and indexes its
// exported graphs. The returned VM is ready to Invoke.
func New(script *bytecode.Script, sch *schema.CompiledSchema, plan *storageplan.StoragePlan) (*VM, error) {
	if err := script.Validate(); err != nil {
		return nil, newError(ValidateErr, err, "script failed load-time validation")
	}
	gc := typeck.NewGlobalContext(script, sch)
	if err := gc.Typeck(); err != nil {
		return nil, newError(TypeckErr, err, "script failed type checking")
	}

	exported := make(map[string]int)
	for i, g := range script.Graphs {
		if g.Exported {
			exported[g.Name] = i
		}
	}
	return &VM{Schema: sch, Plan: plan, Script: script, exportedGraph: exported}, nil
}

// LookupExportedGraph returns the graph index of an exported graph by
// name.
func (v *VM) LookupExportedGraph(name string) (int, error) {
	gi, ok := v.exportedGraph[name]
	if !ok {
		return 0, newError(ExportedGraphNotFoundErr, nil, "exported graph %q not found", name)
	}
	return gi, nil
}

// Invoke runs the exported graph named graphName against tx, filling
// its non-schema parameters from args in declaration order. A
// "schema"-typed parameter consumes no entry from args; the executor
// always rebinds it to the schema-root sentinel.
func (v *VM) Invoke(ctx context.Context, tx kv.Transaction, graphName string, args []vmvalue.Value) (vmvalue.Value, error) {
	gi, err := v.LookupExportedGraph(graphName)
	if err != nil {
		return vmvalue.Value{}, err
	}
	return v.invokeGraph(ctx, tx, gi, args)
}

func (v *VM) invokeGraph(ctx context.Context, tx kv.Transaction, gi int, args []vmvalue.Value) (vmvalue.Value, error) {
	g := &v.Script.Graphs[gi]
	full := make([]vmvalue.Value, 0, len(g.ParamTypes))
	ai := 0
	for _, td := range g.ParamTypes {
		if td >= 0 && td < len(v.Script.Types) && v.Script.Types[td].Kind == bytecode.TDSchema {
			full = append(full, vmvalue.SchemaRootValue())
			continue
		}
		if ai >= len(args) {
			full = append(full, vmvalue.NullValue())
			continue
		}
		full = append(full, args[ai])
		ai++
	}
	ex := exec.New(v.Script, v.Schema, v.Plan, tx, v.Concurrency)
	return ex.Run(ctx, g.Name, full)
}
