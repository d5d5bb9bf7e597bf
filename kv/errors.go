// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package kv

import "fmt"

// ErrCode classifies a KV substrate error.
type ErrCode int

const (
	// Conflict means the transaction lost a write race; the caller may
	// retry with a fresh transaction.
	Conflict ErrCode = iota
	// CommitStateUnknown means the commit's outcome could not be
	// determined; the caller must treat the write as possibly-applied
	// and must not blindly retry.
	CommitStateUnknown
	NotFoundErr
	ClosedErr
)

func (c ErrCode) String() string {
	switch c {
	case Conflict:
		return "conflict"
	case CommitStateUnknown:
		return "commit_state_unknown"
	case NotFoundErr:
		return "not_found"
	case ClosedErr:
		return "closed"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(c))
	}
}

type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("kv: %s: %s", e.Code, e.Message)
}

func newError(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsConflict(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == Conflict
}

func IsCommitStateUnknown(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == CommitStateUnknown
}
