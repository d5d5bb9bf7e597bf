// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import (
	"fmt"
	"strings"
)

// ErrCode classifies a schema compilation error.
type ErrCode int

const (
	ParseErr ErrCode = iota
	DuplicateTypeErr
	DuplicateExportErr
	DuplicateFieldErr
	UnknownTypeErr
	ArityMismatchErr
	BadSetArityErr
	UnknownAnnotationErr
	BadAnnotationArgsErr
	MultiplePrimaryErr
	MissingPrimaryOnSetElementErr
	IndexOnNonPrimitiveErr
	DuplicateRenameFromErr
	RenameFromCollisionErr
	DefaultTypeMismatchErr
)

func (c ErrCode) String() string {
	switch c {
	case ParseErr:
		return "parse_error"
	case DuplicateTypeErr:
		return "duplicate_type"
	case DuplicateExportErr:
		return "duplicate_export"
	case DuplicateFieldErr:
		return "duplicate_field"
	case UnknownTypeErr:
		return "unknown_type"
	case ArityMismatchErr:
		return "arity_mismatch"
	case BadSetArityErr:
		return "bad_set_arity"
	case UnknownAnnotationErr:
		return "unknown_annotation"
	case BadAnnotationArgsErr:
		return "bad_annotation_args"
	case MultiplePrimaryErr:
		return "multiple_primary"
	case MissingPrimaryOnSetElementErr:
		return "missing_primary_on_set_element"
	case IndexOnNonPrimitiveErr:
		return "index_on_non_primitive"
	case DuplicateRenameFromErr:
		return "duplicate_rename_from"
	case RenameFromCollisionErr:
		return "rename_from_collision"
	case DefaultTypeMismatchErr:
		return "default_type_mismatch"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(c))
	}
}

// Error is a single schema compilation error, located in the source
// text that produced it.
type Error struct {
	Code    ErrCode
	Loc     Location
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema: %s at line %d: %s", e.Code, e.Loc.Line, e.Message)
}

func newError(code ErrCode, loc Location, format string, args ...interface{}) *Error {
	return &Error{Code: code, Loc: loc, Message: fmt.Sprintf(format, args...)}
}

// Errors is a non-empty collection of compilation errors, reported
// together so a caller can see every problem a pass found at once.
type Errors []*Error

func (e Errors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "schema: %d errors occurred:\n", len(e))
	for _, err := range e {
		fmt.Fprintf(&sb, "\t%s\n", err)
	}
	return sb.String()
}

// IsCode reports whether err is a *Error (possibly wrapped in Errors)
// carrying the given code.
func IsCode(err error, code ErrCode) bool {
	switch e := err.(type) {
	case *Error:
		return e.Code == code
	case Errors:
		for _, sub := range e {
			if sub.Code == code {
				return true
			}
		}
	}
	return false
}
