// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package kv defines the external transactional ordered key-value
// interface the core depends on. It specifies a contract only; the
// concrete backends (in-memory, SQL, distributed) are out of scope for
// this module and are expected to be supplied by a caller. Package
// kv/memkv provides an in-memory MVCC implementation used by this
// module's own tests.
package kv

import "context"

// KeyValue is one key/value pair returned by a range scan.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Cursor lazily produces the key/value pairs of a scan, in ascending
// key order.
type Cursor interface {
	// Next advances the cursor and reports whether a pair is
	// available. Once it returns false the cursor is exhausted; call
	// Err to distinguish end-of-range from a failure.
	Next(ctx context.Context) bool
	KeyValue() KeyValue
	Err() error
	Close() error
}

// Transaction is scoped to one caller; its methods are called
// sequentially from that caller's point of view (an implementation
// may use internal concurrency, but must preserve the illusion of a
// single sequential session).
type Transaction interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// ScanKeys returns a lazy cursor over the half-open range
	// [start, end) in ascending key order.
	ScanKeys(ctx context.Context, start, end []byte) (Cursor, error)
	DeleteRange(ctx context.Context, start, end []byte) error

	// Commit consumes the transaction. A *Error with Code Conflict
	// means the caller may retry with a fresh transaction; Code
	// CommitStateUnknown means the caller must treat the write as
	// possibly-applied.
	Commit(ctx context.Context) error
}

// Store begins transactions against the underlying substrate.
type Store interface {
	BeginTransaction(ctx context.Context) (Transaction, error)
}

// ReservedPrefix is the only key byte reserved by the core itself;
// caller-allocated subspaces must not collide with it.
var ReservedPrefix = byte(0xff)
