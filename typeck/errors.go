// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package typeck

import "fmt"

// ErrCode enumerates the ways a script can fail static checking.
type ErrCode int

const (
	InvalidInEdgeErr ErrCode = iota
	ConstIndexOobErr
	IdentIndexOobErr
	ParamIndexOobErr
	SubgraphIndexOobErr
	InEdgeCountMismatchErr
	ExpectingTypedNodeErr
	ExpectingListErr
	ExpectingSetErr
	NonCovariantTypesErr
	NotMapErr
	NotTableErr
	NotMapOrTableErr
	NotSetErr
	TableTypeNotFoundErr
	MapFieldNotPresentInTableErr
	TableFieldNotPresentInMapErr
	GraphOutputIndexOobErr
	GraphEffectIndexOobErr
	ParamTypeIndexOobErr
	OutputTypeIndexOobErr
	OutputNodeIndexOobErr
	OutputTypeMismatchErr
	ExpectingBoolOutputForFilterSubgraphsErr
	FieldNotPresentInTableErr
	CannotUnwrapNonOptionalErr
	NotPrimaryKeyErr
	DeletingNonOptionalTableFieldErr
	UnknownParamTypeNotResolvedErr
	MultipleParamTypeCandidatesErr
	ParamCountMismatchErr
	NotBooleanErr
	NotArithmeticErr
)

func (c ErrCode) String() string {
	names := [...]string{
		"invalid_in_edge", "const_index_oob", "ident_index_oob", "param_index_oob",
		"subgraph_index_oob", "in_edge_count_mismatch", "expecting_typed_node",
		"expecting_list", "expecting_set", "non_covariant_types", "not_map",
		"not_table", "not_map_or_table", "not_set", "table_type_not_found",
		"map_field_not_present_in_table", "table_field_not_present_in_map",
		"graph_output_index_oob", "graph_effect_index_oob", "param_type_index_oob",
		"output_type_index_oob", "output_node_index_oob", "output_type_mismatch",
		"expecting_bool_output_for_filter_subgraphs", "field_not_present_in_table",
		"cannot_unwrap_non_optional", "not_primary_key", "deleting_non_optional_table_field",
		"unknown_param_type_not_resolved", "multiple_param_type_candidates",
		"param_count_mismatch", "not_boolean", "not_arithmetic",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("ErrCode(%d)", int(c))
}

// Error is a static type error, optionally located at a graph and node.
type Error struct {
	Code    ErrCode
	Graph   string
	Node    int
	Message string
}

func (e *Error) Error() string {
	if e.Graph == "" {
		return fmt.Sprintf("typeck: %s: %s", e.Code, e.Message)
	}
	if e.Node < 0 {
		return fmt.Sprintf("typeck: %s in graph %q: %s", e.Code, e.Graph, e.Message)
	}
	return fmt.Sprintf("typeck: %s in graph %q node %d: %s", e.Code, e.Graph, e.Node, e.Message)
}

func newError(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Node: -1, Message: fmt.Sprintf(format, args...)}
}

func locate(err error, graph string, node int) error {
	if e, ok := err.(*Error); ok && e.Graph == "" {
		e.Graph = graph
		e.Node = node
	}
	return err
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
