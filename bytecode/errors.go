// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package bytecode

import "fmt"

type ErrCode int

const (
	ConstIndexErr ErrCode = iota
	IdentIndexErr
	TypeIndexErr
	ParamIndexErr
	SubgraphIndexErr
	InEdgeIndexErr
	OutputIndexErr
	CorruptWireFormatErr
	UnsupportedConstKindErr
)

func (c ErrCode) String() string {
	switch c {
	case ConstIndexErr:
		return "const_index"
	case IdentIndexErr:
		return "ident_index"
	case TypeIndexErr:
		return "type_index"
	case ParamIndexErr:
		return "param_index"
	case SubgraphIndexErr:
		return "subgraph_index"
	case InEdgeIndexErr:
		return "in_edge_index"
	case OutputIndexErr:
		return "output_index"
	case CorruptWireFormatErr:
		return "corrupt_wire_format"
	case UnsupportedConstKindErr:
		return "unsupported_const_kind"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(c))
	}
}

// Error is a VM load error: reported at construction of a VM from a
// Script, before any execution.
type Error struct {
	Code    ErrCode
	Graph   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bytecode: %s in graph %q: %s", e.Code, e.Graph, e.Message)
}

func newError(code ErrCode, graph, format string, args ...interface{}) *Error {
	return &Error{Code: code, Graph: graph, Message: fmt.Sprintf(format, args...)}
}

// Validate checks every index operand in s against its pool/graph
// bounds.
func (s *Script) Validate() error {
	if s.Entry < 0 || s.Entry >= len(s.Graphs) {
		return newError(SubgraphIndexErr, "", "entry index %d out of range", s.Entry)
	}
	for _, g := range s.Graphs {
		for _, t := range g.ParamTypes {
			if t < 0 || t >= len(s.Types) {
				return newError(TypeIndexErr, g.Name, "param type index %d out of range", t)
			}
		}
		if g.OutputType >= len(s.Types) {
			return newError(TypeIndexErr, g.Name, "output type index %d out of range", g.OutputType)
		}
		if g.Output >= len(g.Nodes) {
			return newError(OutputIndexErr, g.Name, "output node index %d out of range", g.Output)
		}
		for i, n := range g.Nodes {
			if n.ConstIndex >= len(s.Consts) {
				return newError(ConstIndexErr, g.Name, "node %d: const index %d out of range", i, n.ConstIndex)
			}
			if n.Ident >= len(s.Idents) {
				return newError(IdentIndexErr, g.Name, "node %d: ident index %d out of range", i, n.Ident)
			}
			if n.ParamIndex >= len(g.ParamTypes) {
				return newError(ParamIndexErr, g.Name, "node %d: param index %d out of range", i, n.ParamIndex)
			}
			if n.Subgraph >= len(s.Graphs) {
				return newError(SubgraphIndexErr, g.Name, "node %d: subgraph index %d out of range", i, n.Subgraph)
			}
			for _, e := range n.InEdges {
				if e < 0 || e >= len(g.Nodes) {
					return newError(InEdgeIndexErr, g.Name, "node %d: in-edge %d out of range", i, e)
				}
			}
			if n.Precondition >= len(g.Nodes) {
				return newError(InEdgeIndexErr, g.Name, "node %d: precondition %d out of range", i, n.Precondition)
			}
		}
	}
	return nil
}
