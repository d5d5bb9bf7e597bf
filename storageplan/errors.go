// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storageplan

import "fmt"

// ErrCode classifies a planner error.
type ErrCode int

const (
	MissingTypeErr ErrCode = iota
	RandomSourceErr
	CorruptWireFormatErr
)

func (c ErrCode) String() string {
	switch c {
	case MissingTypeErr:
		return "missing_type"
	case RandomSourceErr:
		return "random_source"
	case CorruptWireFormatErr:
		return "corrupt_wire_format"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(c))
	}
}

// Error is a planner error. The planner treats every failure as
// fatal to the plan operation: a missing type reference or an
// exhausted randomness source indicates a schema/environment
// inconsistency, not a recoverable condition.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("storageplan: %s: %s", e.Code, e.Message)
}

func newError(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsCode(err error, code ErrCode) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
