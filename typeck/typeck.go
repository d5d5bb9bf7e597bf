// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package typeck

import (
	"github.com/rdbcore/rdb/bytecode"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/util"
	"github.com/rdbcore/rdb/vmvalue"
)

// GlobalContext holds everything a whole-program type check needs:
// the script and schema being checked, a memoized type-pool resolver,
// the call graph's strongly connected components in caller-before-
// callee processing order, and the per-graph, per-parameter candidate
// types accumulated from call sites for parameters the assembler left
// Unknown.
type GlobalContext struct {
	script *bytecode.Script
	schema *schema.CompiledSchema

	typeCache map[int]*Type

	// sccOrder is processed from its last element to its first, so
	// sccOrder[i+1] is processed before sccOrder[i]; within one SCC
	// graphs may call each other (mutual recursion), so inference of an
	// Unknown parameter can only rely on call sites from SCCs processed
	// earlier.
	sccOrder [][]int

	// paramCandidates[g][p] maps a candidate type's String() to itself,
	// accumulated from every call site targeting graph g's parameter p
	// whose own pool type resolves to Unknown.
	paramCandidates []map[int]map[string]*Type

	// resolvedParamTypes[g][p] is filled in once graph g is processed.
	resolvedParamTypes [][]*Type
	// graphOutputType[g] is filled in once graph g is processed.
	graphOutputType []*Type
}

// NewGlobalContext builds the call graph and its SCC processing order
// for script, to be checked against schema.
func NewGlobalContext(script *bytecode.Script, sch *schema.CompiledSchema) *GlobalContext {
	c := &GlobalContext{
		script:    script,
		schema:    sch,
		typeCache: make(map[int]*Type),
	}
	edges := func(i int) []int {
		var out []int
		for _, n := range script.Graphs[i].Nodes {
			out = append(out, n.SubgraphReferences()...)
		}
		return out
	}
	c.sccOrder = util.SCC(len(script.Graphs), edges)

	c.paramCandidates = make([]map[int]map[string]*Type, len(script.Graphs))
	c.resolvedParamTypes = make([][]*Type, len(script.Graphs))
	c.graphOutputType = make([]*Type, len(script.Graphs))
	for i, g := range script.Graphs {
		c.paramCandidates[i] = make(map[int]map[string]*Type, len(g.ParamTypes))
		for p := range g.ParamTypes {
			c.paramCandidates[i][p] = make(map[string]*Type)
		}
	}
	return c
}

// Typeck checks every graph in the script, processing SCCs in
// caller-before-callee order so that call-site argument types are
// available when a callee's Unknown parameters are resolved.
func (c *GlobalContext) Typeck() error {
	for i := len(c.sccOrder) - 1; i >= 0; i-- {
		scc := c.sccOrder[i]
		sink := make(map[int]map[int]map[string]*Type)
		for _, gi := range scc {
			if _, err := c.typeckGraph(gi, sink); err != nil {
				return err
			}
		}
		for gi, byParam := range sink {
			for pi, candidates := range byParam {
				for key, ty := range candidates {
					c.paramCandidates[gi][pi][key] = ty
				}
			}
		}
	}
	return nil
}

func (c *GlobalContext) resolveTypeDesc(idx int) (*Type, error) {
	if t, ok := c.typeCache[idx]; ok {
		return t, nil
	}
	if idx < 0 || idx >= len(c.script.Types) {
		return nil, newError(ParamTypeIndexOobErr, "type pool index %d out of range", idx)
	}
	td := c.script.Types[idx]
	var t *Type
	switch td.Kind {
	case bytecode.TDUnknown:
		t = Unknown()
	case bytecode.TDPrimitive:
		t = Primitive(td.Prim)
	case bytecode.TDTable:
		t = Table(td.TableName)
	case bytecode.TDNull:
		t = NullT()
	case bytecode.TDBool:
		t = BoolT()
	case bytecode.TDSchema:
		t = SchemaT()
	case bytecode.TDSet:
		elem, err := c.resolveTypeDesc(td.Elem)
		if err != nil {
			return nil, err
		}
		t = SetT(elem)
	case bytecode.TDList:
		elem, err := c.resolveTypeDesc(td.Elem)
		if err != nil {
			return nil, err
		}
		t = ListT(elem)
	case bytecode.TDMap:
		fields := make(map[string]*Type, len(td.MapFields))
		for name, fidx := range td.MapFields {
			ft, err := c.resolveTypeDesc(fidx)
			if err != nil {
				return nil, err
			}
			fields[name] = ft
		}
		t = MapT(append([]string(nil), td.MapFieldOrder...), fields)
	case bytecode.TDOneOf:
		branches := make([]*Type, len(td.OneOf))
		for i, bidx := range td.OneOf {
			bt, err := c.resolveTypeDesc(bidx)
			if err != nil {
				return nil, err
			}
			branches[i] = bt
		}
		t = OneOfT(branches...)
	default:
		return nil, newError(ParamTypeIndexOobErr, "unrecognized type descriptor kind %d", int(td.Kind))
	}
	c.typeCache[idx] = t
	return t, nil
}

// valueType infers the static type of a constant runtime value.
func valueType(v vmvalue.Value) (*Type, error) {
	switch v.Kind {
	case vmvalue.Null:
		return NullT(), nil
	case vmvalue.Bool:
		return BoolT(), nil
	case vmvalue.Primitive:
		return Primitive(v.Prim.Type.String()), nil
	case vmvalue.Map:
		fields := make(map[string]*Type, len(v.MapValues))
		for k, mv := range v.MapValues {
			ft, err := valueType(mv)
			if err != nil {
				return nil, err
			}
			fields[k] = ft
		}
		return MapT(append([]string(nil), v.MapKeys...), fields), nil
	case vmvalue.List:
		if len(v.List) == 0 {
			return ListT(Unknown()), nil
		}
		elem, err := valueType(v.List[0])
		if err != nil {
			return nil, err
		}
		return ListT(elem), nil
	default:
		return nil, newError(ExpectingTypedNodeErr, "constant of kind %s has no static type", v.Kind)
	}
}

// typeckGraph type-checks graph gi, returning the resolved type of
// every node. Call sites within gi targeting Unknown parameters of
// other graphs accumulate their argument types into sink rather than
// c.paramCandidates directly, so mutually recursive graphs in the same
// SCC see a consistent snapshot.
func (c *GlobalContext) typeckGraph(gi int, sink map[int]map[int]map[string]*Type) ([]*Type, error) {
	g := &c.script.Graphs[gi]

	paramTypes := make([]*Type, len(g.ParamTypes))
	for pi, tidx := range g.ParamTypes {
		resolved, err := c.resolveTypeDesc(tidx)
		if err != nil {
			return nil, locate(err, g.Name, -1)
		}
		switch {
		case resolved.Kind == KSchema:
			paramTypes[pi] = schemaRootType(c.schema)
		case resolved.Kind == KUnknown:
			candidates := c.paramCandidates[gi][pi]
			if len(candidates) == 0 {
				return nil, locate(newError(UnknownParamTypeNotResolvedErr,
					"parameter %d of %q has no call site to infer its type from", pi, g.Name), g.Name, -1)
			}
			if len(candidates) > 1 {
				return nil, locate(newError(MultipleParamTypeCandidatesErr,
					"parameter %d of %q has conflicting candidate types from its call sites", pi, g.Name), g.Name, -1)
			}
			for _, ty := range candidates {
				paramTypes[pi] = ty
			}
		default:
			paramTypes[pi] = resolved
		}
	}
	c.resolvedParamTypes[gi] = paramTypes

	nodeTypes := make([]*Type, len(g.Nodes))
	in := func(ni, argPos int) (*Type, error) {
		if argPos >= len(g.Nodes[ni].InEdges) {
			return nil, locate(newError(InEdgeCountMismatchErr, "node %d: missing in-edge %d", ni, argPos), g.Name, ni)
		}
		edge := g.Nodes[ni].InEdges[argPos]
		if edge < 0 || edge >= ni {
			return nil, locate(newError(InvalidInEdgeErr, "node %d: in-edge %d references node %d", ni, argPos, edge), g.Name, ni)
		}
		return nodeTypes[edge], nil
	}

	for ni := range g.Nodes {
		n := &g.Nodes[ni]
		if n.Precondition >= 0 {
			if n.Precondition >= ni {
				return nil, locate(newError(InvalidInEdgeErr, "node %d: precondition references node %d", ni, n.Precondition), g.Name, ni)
			}
			if nodeTypes[n.Precondition].Kind != KBool {
				return nil, locate(newError(NotBooleanErr, "node %d: precondition has type `%s`, expected bool", ni, nodeTypes[n.Precondition]), g.Name, ni)
			}
		}

		t, err := c.typeckNode(gi, ni, in, sink)
		if err != nil {
			return nil, locate(err, g.Name, ni)
		}
		nodeTypes[ni] = t
	}

	if g.Output >= 0 {
		if g.Output >= len(g.Nodes) {
			return nil, locate(newError(GraphOutputIndexOobErr, "output node %d out of range", g.Output), g.Name, -1)
		}
		if g.OutputType < 0 {
			// No declared output type: the output node's type is the graph's.
			c.graphOutputType[gi] = nodeTypes[g.Output]
			return nodeTypes, nil
		}
		outType, err := c.resolveTypeDesc(g.OutputType)
		if err != nil {
			return nil, locate(err, g.Name, -1)
		}
		actual := nodeTypes[g.Output]
		if !isCovariant(outType, actual) {
			return nil, locate(newError(OutputTypeMismatchErr,
				"graph output has type `%s`, declared `%s`", actual, outType), g.Name, -1)
		}
		c.graphOutputType[gi] = outType
	} else {
		c.graphOutputType[gi] = NullT()
	}

	return nodeTypes, nil
}

func isBottom(t *Type) bool { return t.Kind == KUnknown }

func (c *GlobalContext) typeckNode(gi, ni int, in func(int, int) (*Type, error), sink map[int]map[int]map[string]*Type) (*Type, error) {
	g := &c.script.Graphs[gi]
	n := &g.Nodes[ni]

	switch n.Op {
	case bytecode.LoadParam:
		if n.ParamIndex < 0 || n.ParamIndex >= len(c.resolvedParamTypes[gi]) {
			return nil, newError(ParamIndexOobErr, "param index %d out of range", n.ParamIndex)
		}
		return c.resolvedParamTypes[gi][n.ParamIndex], nil

	case bytecode.LoadConst:
		if n.ConstIndex < 0 || n.ConstIndex >= len(c.script.Consts) {
			return nil, newError(ConstIndexOobErr, "const index %d out of range", n.ConstIndex)
		}
		return valueType(c.script.Consts[n.ConstIndex])

	case bytecode.CreateMap:
		return MapT(nil, map[string]*Type{}), nil

	case bytecode.InsertIntoMap:
		mapTy, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if mapTy.Kind != KMap {
			return nil, newError(NotMapErr, "insert into non-map type `%s`", mapTy)
		}
		valTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		key := c.ident(n.Ident)
		order := append([]string(nil), mapTy.MapFieldOrder...)
		fields := make(map[string]*Type, len(mapTy.MapFields)+1)
		for k, v := range mapTy.MapFields {
			fields[k] = v
		}
		if _, exists := fields[key]; !exists {
			order = append(order, key)
		}
		fields[key] = valTy
		return MapT(order, fields), nil

	case bytecode.DeleteFromMap:
		mapTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if mapTy.Kind != KMap {
			return nil, newError(NotMapErr, "delete from non-map type `%s`", mapTy)
		}
		key := c.ident(n.Ident)
		order := make([]string, 0, len(mapTy.MapFieldOrder))
		fields := make(map[string]*Type, len(mapTy.MapFields))
		for _, k := range mapTy.MapFieldOrder {
			if k == key {
				continue
			}
			order = append(order, k)
			fields[k] = mapTy.MapFields[k]
		}
		return MapT(order, fields), nil

	case bytecode.CreateList:
		if len(n.InEdges) == 0 {
			return ListT(Unknown()), nil
		}
		elem, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(n.InEdges); i++ {
			et, err := in(ni, i)
			if err != nil {
				return nil, err
			}
			if !typeEqual(elem, et) {
				return nil, newError(NonCovariantTypesErr, "list element %d has type `%s`, expected `%s`", i, et, elem)
			}
		}
		return ListT(elem), nil

	case bytecode.BuildTable:
		name := c.ident(n.Ident)
		sp, ok := c.schema.Types[name]
		if !ok {
			return nil, newError(TableTypeNotFoundErr, "unknown table type %q", name)
		}
		mapTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if mapTy.Kind != KMap {
			return nil, newError(NotMapErr, "building table %q from non-map type `%s`", name, mapTy)
		}
		for _, f := range sp.Fields() {
			expected := fieldTypeToType(f.Type)
			actual, present := mapTy.MapFields[f.Name]
			if !present {
				if expected.Kind == KOneOf {
					continue
				}
				return nil, newError(TableFieldNotPresentInMapErr, "table %q field %q missing from map", name, f.Name)
			}
			if !isCovariant(expected, actual) {
				return nil, newError(NonCovariantTypesErr, "table %q field %q has type `%s`, expected `%s`", name, f.Name, actual, expected)
			}
		}
		for _, k := range mapTy.MapFieldOrder {
			if _, ok := sp.Field(k); !ok {
				return nil, newError(MapFieldNotPresentInTableErr, "map field %q not present in table %q", k, name)
			}
		}
		return Table(name), nil

	case bytecode.BuildSet:
		listTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if listTy.Kind != KList {
			return nil, newError(ExpectingListErr, "building set from non-list type `%s`", listTy)
		}
		if listTy.Elem.Kind != KTable {
			return nil, newError(NotTableErr, "set elements must be tables, got `%s`", listTy.Elem)
		}
		return SetT(listTy.Elem), nil

	case bytecode.InsertIntoSet:
		setTy, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if setTy.Kind != KSet {
			return nil, newError(NotSetErr, "insert into non-set type `%s`", setTy)
		}
		elTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if !typeEqual(setTy.Elem, elTy) {
			return nil, newError(NonCovariantTypesErr, "inserting `%s` into set of `%s`", elTy, setTy.Elem)
		}
		return setTy, nil

	case bytecode.DeleteFromSet:
		setTy, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if setTy.Kind != KSet {
			return nil, newError(NotSetErr, "delete from non-set type `%s`", setTy)
		}
		pk, err := c.primaryKeyField(setTy.Elem)
		if err != nil {
			return nil, err
		}
		keyTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		expected := fieldTypeToType(pk.Type)
		if !isCovariant(expected, keyTy) {
			return nil, newError(NonCovariantTypesErr, "delete key has type `%s`, expected `%s`", keyTy, expected)
		}
		return setTy, nil

	case bytecode.GetField:
		srcTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		name := c.ident(n.Ident)
		switch srcTy.Kind {
		case KTable:
			sp, ok := c.schema.Types[srcTy.TableName]
			if !ok {
				return nil, newError(TableTypeNotFoundErr, "unknown table type %q", srcTy.TableName)
			}
			f, ok := sp.Field(name)
			if !ok {
				return nil, newError(FieldNotPresentInTableErr, "table %q has no field %q", srcTy.TableName, name)
			}
			return fieldTypeToType(f.Type), nil
		case KMap:
			if ft, ok := srcTy.MapFields[name]; ok {
				return ft, nil
			}
			return NullT(), nil
		case KOneOf:
			// GetField is optional-chained: a possibly-null table yields a
			// possibly-null field.
			inner, uerr := unwrapOptional(srcTy)
			if uerr != nil || inner.Kind != KTable {
				return nil, newError(NotMapOrTableErr, "field access on non-map/table type `%s`", srcTy)
			}
			if sp, ok := c.schema.Types[inner.TableName]; ok {
				if f, ok := sp.Field(name); ok {
					return OneOfT(fieldTypeToType(f.Type), NullT()), nil
				}
			}
			return nil, newError(FieldNotPresentInTableErr, "table %q has no field %q", inner.TableName, name)
		default:
			return nil, newError(NotMapOrTableErr, "field access on non-map/table type `%s`", srcTy)
		}

	case bytecode.GetSetElement:
		setTy, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if setTy.Kind != KSet {
			return nil, newError(NotSetErr, "indexing non-set type `%s`", setTy)
		}
		pk, err := c.primaryKeyField(setTy.Elem)
		if err != nil {
			return nil, err
		}
		keyTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		expected := fieldTypeToType(pk.Type)
		if !isCovariant(expected, keyTy) {
			return nil, newError(NonCovariantTypesErr, "lookup key has type `%s`, expected `%s`", keyTy, expected)
		}
		return OneOfT(setTy.Elem, NullT()), nil

	case bytecode.FilterSet:
		setTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if setTy.Kind != KSet {
			return nil, newError(NotSetErr, "filtering non-set type `%s`", setTy)
		}
		outTy, err := c.validateSubgraphCall("FilterSet", n.Subgraph, []*Type{setTy.Elem}, sink)
		if err != nil {
			return nil, err
		}
		if outTy.Kind != KBool {
			return nil, newError(ExpectingBoolOutputForFilterSubgraphsErr, "filter predicate returns `%s`, expected bool", outTy)
		}
		return setTy, nil

	case bytecode.Reduce:
		setTy, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if setTy.Kind != KSet {
			return nil, newError(NotSetErr, "reducing non-set type `%s`", setTy)
		}
		accTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if n.HasRange {
			rangeTy, err := in(ni, 2)
			if err != nil {
				return nil, err
			}
			pk, err := c.primaryKeyField(setTy.Elem)
			if err != nil {
				return nil, err
			}
			expected := fieldTypeToType(pk.Type)
			if !isCovariant(expected, rangeTy) {
				return nil, newError(NonCovariantTypesErr, "reduce range has type `%s`, expected `%s`", rangeTy, expected)
			}
		}
		outTy, err := c.validateSubgraphCall("Reduce", n.Subgraph, []*Type{accTy, setTy.Elem}, sink)
		if err != nil {
			return nil, err
		}
		if !isCovariant(accTy, outTy) {
			return nil, newError(OutputTypeMismatchErr, "reduce step returns `%s`, accumulator is `%s`", outTy, accTy)
		}
		return outTy, nil

	case bytecode.Eq, bytecode.Ne:
		a, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		b, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if !isCovariant(a, b) && !isCovariant(b, a) {
			return nil, newError(NonCovariantTypesErr, "comparing `%s` with `%s`", a, b)
		}
		return BoolT(), nil

	case bytecode.And, bytecode.Or:
		a, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if a.Kind != KBool {
			return nil, newError(NotBooleanErr, "operand has type `%s`, expected bool", a)
		}
		b, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if b.Kind != KBool {
			return nil, newError(NotBooleanErr, "operand has type `%s`, expected bool", b)
		}
		return BoolT(), nil

	case bytecode.Not:
		a, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if a.Kind != KBool {
			return nil, newError(NotBooleanErr, "operand has type `%s`, expected bool", a)
		}
		return BoolT(), nil

	case bytecode.Select:
		a, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		b, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		primary := a
		if a.Kind == KOneOf {
			branches := make([]*Type, 0, len(a.OneOf))
			for _, br := range a.OneOf {
				if !br.IsNull() {
					branches = append(branches, br)
				}
			}
			primary = flattenOneOf(OneOfT(branches...))
		}
		if !isCovariant(primary, b) && !isCovariant(b, primary) {
			return nil, newError(NonCovariantTypesErr, "select branches have types `%s` and `%s`", primary, b)
		}
		return primary, nil

	case bytecode.UnwrapOptional:
		a, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		return unwrapOptional(a)

	case bytecode.IsPresent, bytecode.IsNull:
		if _, err := in(ni, 0); err != nil {
			return nil, err
		}
		return BoolT(), nil

	case bytecode.Nop:
		return in(ni, 0)

	case bytecode.Add, bytecode.Sub:
		a, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		b, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if a.Kind != KPrimitive || (a.Prim != "int64" && a.Prim != "double") {
			return nil, newError(NotArithmeticErr, "operand has type `%s`, expected int64 or double", a)
		}
		if !typeEqual(a, b) {
			return nil, newError(NonCovariantTypesErr, "arithmetic operands have types `%s` and `%s`", a, b)
		}
		return a, nil

	case bytecode.Throw:
		return Unknown(), nil

	case bytecode.Call:
		argTypes := make([]*Type, len(n.InEdges))
		for i := range n.InEdges {
			t, err := in(ni, i)
			if err != nil {
				return nil, err
			}
			argTypes[i] = t
		}
		return c.validateSubgraphCall("Call", n.Subgraph, argTypes, sink)

	case bytecode.PrependToList:
		elemTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		listTy, err := in(ni, 1)
		if err != nil {
			return nil, err
		}
		if listTy.Kind != KList {
			return nil, newError(ExpectingListErr, "prepend onto non-list type `%s`", listTy)
		}
		if listTy.Elem.Kind == KUnknown {
			return ListT(elemTy), nil
		}
		if !typeEqual(listTy.Elem, elemTy) {
			return nil, newError(NonCovariantTypesErr, "prepending `%s` onto list of `%s`", elemTy, listTy.Elem)
		}
		return listTy, nil

	case bytecode.PopFromList:
		listTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if listTy.Kind != KList {
			return nil, newError(ExpectingListErr, "popping non-list type `%s`", listTy)
		}
		return listTy, nil

	case bytecode.ListHead:
		listTy, err := in(ni, 0)
		if err != nil {
			return nil, err
		}
		if listTy.Kind != KList {
			return nil, newError(ExpectingListErr, "head of non-list type `%s`", listTy)
		}
		return OneOfT(listTy.Elem, NullT()), nil

	default:
		return nil, newError(ExpectingTypedNodeErr, "unrecognized opcode %s", n.Op)
	}
}

func (c *GlobalContext) ident(idx int) string {
	if idx < 0 || idx >= len(c.script.Idents) {
		return ""
	}
	return c.script.Idents[idx]
}

func (c *GlobalContext) primaryKeyField(elem *Type) (*schema.Field, error) {
	if elem.Kind != KTable {
		return nil, newError(NotTableErr, "set element type `%s` is not a table", elem)
	}
	sp, ok := c.schema.Types[elem.TableName]
	if !ok {
		return nil, newError(TableTypeNotFoundErr, "unknown table type %q", elem.TableName)
	}
	f, ok := sp.PrimaryField()
	if !ok {
		return nil, newError(NotPrimaryKeyErr, "table %q declares no primary key", elem.TableName)
	}
	return f, nil
}

// validateSubgraphCall checks a call site's argument types against
// calleeIdx's declared parameters (inferring Unknown ones via sink)
// and returns the callee's resolved output type.
func (c *GlobalContext) validateSubgraphCall(opName string, calleeIdx int, argTypes []*Type, sink map[int]map[int]map[string]*Type) (*Type, error) {
	if calleeIdx < 0 || calleeIdx >= len(c.script.Graphs) {
		return nil, newError(SubgraphIndexOobErr, "%s: subgraph index %d out of range", opName, calleeIdx)
	}
	callee := &c.script.Graphs[calleeIdx]
	if len(callee.ParamTypes) != len(argTypes) {
		return nil, newError(ParamCountMismatchErr, "%s: %q expects %d arguments, got %d", opName, callee.Name, len(callee.ParamTypes), len(argTypes))
	}
	for pi, tidx := range callee.ParamTypes {
		resolved, err := c.resolveTypeDesc(tidx)
		if err != nil {
			return nil, err
		}
		arg := argTypes[pi]
		switch {
		case resolved.Kind == KSchema:
			if !typeEqual(schemaRootType(c.schema), arg) {
				return nil, newError(NonCovariantTypesErr, "%s: argument %d does not match schema root", opName, pi)
			}
		case resolved.Kind == KUnknown:
			if sink[calleeIdx] == nil {
				sink[calleeIdx] = make(map[int]map[string]*Type)
			}
			if sink[calleeIdx][pi] == nil {
				sink[calleeIdx][pi] = make(map[string]*Type)
			}
			sink[calleeIdx][pi][arg.String()] = arg
		default:
			if !isCovariant(resolved, arg) && !isBottom(arg) {
				return nil, newError(NonCovariantTypesErr, "%s: argument %d has type `%s`, expected `%s`", opName, pi, arg, resolved)
			}
		}
	}
	if callee.OutputType < 0 {
		// No declared output type to check the call result against.
		return Unknown(), nil
	}
	outTy, err := c.resolveTypeDesc(callee.OutputType)
	if err != nil {
		return nil, err
	}
	return outTy, nil
}
