// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pathwalker

import "fmt"

// ErrCode classifies a path-walker error. Every one of these is fatal
// only to the calling query step, not to the whole executor.
type ErrCode int

const (
	ExportNotFoundErr ErrCode = iota
	FieldNotFoundErr
	EnterFieldOnSetErr
	EnterSetOnNonSetErr
	DanglingSubspaceReferenceErr
)

func (c ErrCode) String() string {
	switch c {
	case ExportNotFoundErr:
		return "export_not_found"
	case FieldNotFoundErr:
		return "field_not_found"
	case EnterFieldOnSetErr:
		return "enter_field_on_set"
	case EnterSetOnNonSetErr:
		return "enter_set_on_non_set"
	case DanglingSubspaceReferenceErr:
		return "dangling_subspace_reference"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(c))
	}
}

type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pathwalker: %s: %s", e.Code, e.Message)
}

func newError(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsCode(err error, code ErrCode) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
