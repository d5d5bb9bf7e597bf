// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package asm

import "fmt"

type ErrCode int

const (
	SyntaxErr ErrCode = iota
	DuplicateParamErr
	DuplicateReturnErr
	DuplicateGraphErr
	NodeNotFoundErr
	ParamNotFoundErr
	GraphNotFoundErr
	TypeUnsupportedInTableErr
	ArityErr
)

func (c ErrCode) String() string {
	switch c {
	case SyntaxErr:
		return "syntax"
	case DuplicateParamErr:
		return "duplicate_param"
	case DuplicateReturnErr:
		return "duplicate_return"
	case DuplicateGraphErr:
		return "duplicate_graph"
	case NodeNotFoundErr:
		return "node_not_found"
	case ParamNotFoundErr:
		return "param_not_found"
	case GraphNotFoundErr:
		return "graph_not_found"
	case TypeUnsupportedInTableErr:
		return "type_unsupported_in_table"
	case ArityErr:
		return "arity"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(c))
	}
}

type Error struct {
	Code    ErrCode
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("asm: %s at line %d: %s", e.Code, e.Line, e.Message)
}

func newError(code ErrCode, line int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Line: line, Message: fmt.Sprintf(format, args...)}
}

func IsCode(err error, code ErrCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
