// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package memkv is an in-memory MVCC implementation of kv.Store, used
// by this module's own tests in place of a real storage backend (in
// line with the interface-only boundary of the core: concrete
// backends are a caller concern). It is grounded on the reference
// mock KV's optimistic-concurrency design: readers see an immutable
// snapshot taken at BeginTransaction, and Commit rejects a
// transaction whose read set was touched by another transaction that
// committed in the meantime.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/rdbcore/rdb/kv"
)

type writeOp struct {
	value   []byte // ignored when deleted is set
	deleted bool
}

type commitRecord struct {
	version       uint64
	writtenKeys   map[string]bool
	deletedRanges [][2][]byte
}

// Store is a single in-memory keyspace shared by every transaction
// begun against it.
type Store struct {
	mu      sync.Mutex
	version uint64
	values  map[string][]byte // immutable once published; replaced wholesale on commit
	history []commitRecord
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) BeginTransaction(ctx context.Context) (kv.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &tx{
		store:     s,
		snapshot:  s.values,
		snapVer:   s.version,
		writes:    make(map[string]writeOp),
		readKeys:  make(map[string]bool),
	}, nil
}

type tx struct {
	store    *Store
	snapshot map[string][]byte
	snapVer  uint64

	mu            sync.Mutex
	writes        map[string]writeOp
	deletedRanges [][2][]byte
	readKeys      map[string]bool
	readRanges    [][2][]byte
	committed     bool
}

func (t *tx) Get(ctx context.Context, key []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	t.readKeys[k] = true
	if op, ok := t.writes[k]; ok {
		if op.deleted {
			return nil, nil
		}
		return op.value, nil
	}
	return t.snapshot[k], nil
}

func (t *tx) Put(ctx context.Context, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes[string(key)] = writeOp{value: append([]byte{}, value...)}
	return nil
}

func (t *tx) Delete(ctx context.Context, key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes[string(key)] = writeOp{deleted: true}
	return nil
}

func (t *tx) DeleteRange(ctx context.Context, start, end []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletedRanges = append(t.deletedRanges, [2][]byte{append([]byte(nil), start...), append([]byte(nil), end...)})
	for k := range t.snapshot {
		if inRange([]byte(k), start, end) {
			t.writes[k] = writeOp{deleted: true}
		}
	}
	for k := range t.writes {
		if inRange([]byte(k), start, end) {
			t.writes[k] = writeOp{deleted: true}
		}
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	writes := t.writes
	deletedRanges := t.deletedRanges
	readKeys := t.readKeys
	readRanges := t.readRanges
	t.mu.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, rec := range t.store.history {
		if rec.version <= t.snapVer {
			continue
		}
		for k := range readKeys {
			if rec.writtenKeys[k] {
				return &kv.Error{Code: kv.Conflict, Message: "read key modified by a concurrent transaction"}
			}
		}
		for _, rr := range readRanges {
			for k := range rec.writtenKeys {
				if inRange([]byte(k), rr[0], rr[1]) {
					return &kv.Error{Code: kv.Conflict, Message: "scanned range modified by a concurrent transaction"}
				}
			}
			for _, dr := range rec.deletedRanges {
				if rangesOverlap(rr, dr) {
					return &kv.Error{Code: kv.Conflict, Message: "scanned range modified by a concurrent transaction"}
				}
			}
		}
	}

	newValues := make(map[string][]byte, len(t.store.values)+len(writes))
	for k, v := range t.store.values {
		newValues[k] = v
	}
	writtenKeys := make(map[string]bool, len(writes))
	for k, op := range writes {
		writtenKeys[k] = true
		if op.deleted {
			delete(newValues, k)
		} else {
			newValues[k] = op.value
		}
	}

	t.store.version++
	t.store.values = newValues
	t.store.history = append(t.store.history, commitRecord{
		version:       t.store.version,
		writtenKeys:   writtenKeys,
		deletedRanges: deletedRanges,
	})
	return nil
}

func (t *tx) ScanKeys(ctx context.Context, start, end []byte) (kv.Cursor, error) {
	t.mu.Lock()
	t.readRanges = append(t.readRanges, [2][]byte{append([]byte(nil), start...), append([]byte(nil), end...)})
	t.mu.Unlock()

	seen := make(map[string]bool)
	var kvs []kv.KeyValue
	for k, op := range t.writes {
		seen[k] = true
		if op.deleted {
			continue
		}
		if inRange([]byte(k), start, end) {
			kvs = append(kvs, kv.KeyValue{Key: []byte(k), Value: op.value})
		}
	}
	for k, v := range t.snapshot {
		if seen[k] {
			continue
		}
		if inRange([]byte(k), start, end) {
			kvs = append(kvs, kv.KeyValue{Key: []byte(k), Value: v})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return bytes.Compare(kvs[i].Key, kvs[j].Key) < 0 })
	return &sliceCursor{items: kvs, pos: -1}, nil
}

func inRange(key, start, end []byte) bool {
	return bytes.Compare(key, start) >= 0 && bytes.Compare(key, end) < 0
}

func rangesOverlap(a, b [2][]byte) bool {
	return bytes.Compare(a[0], b[1]) < 0 && bytes.Compare(b[0], a[1]) < 0
}

type sliceCursor struct {
	items []kv.KeyValue
	pos   int
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos < len(c.items)
}

func (c *sliceCursor) KeyValue() kv.KeyValue { return c.items[c.pos] }
func (c *sliceCursor) Err() error            { return nil }
func (c *sliceCursor) Close() error          { return nil }
