// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/kv"
)

func TestPutGetCommit(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx1, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx1.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	v, err := tx2.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestScanHalfOpenRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx1, _ := s.BeginTransaction(ctx)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tx1.Put(ctx, []byte(k), []byte(k)))
	}
	require.NoError(t, tx1.Commit(ctx))

	tx2, _ := s.BeginTransaction(ctx)
	cur, err := tx2.ScanKeys(ctx, []byte("b"), []byte("d"))
	require.NoError(t, err)
	var got []string
	for cur.Next(ctx) {
		got = append(got, string(cur.KeyValue().Key))
	}
	require.Equal(t, []string{"b", "c"}, got)
}

func TestConflictOnReadWriteRace(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed, _ := s.BeginTransaction(ctx)
	require.NoError(t, seed.Put(ctx, []byte("x"), []byte("0")))
	require.NoError(t, seed.Commit(ctx))

	tx1, _ := s.BeginTransaction(ctx)
	tx2, _ := s.BeginTransaction(ctx)

	_, err := tx1.Get(ctx, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, tx2.Put(ctx, []byte("x"), []byte("2")))
	require.NoError(t, tx2.Commit(ctx))

	require.NoError(t, tx1.Put(ctx, []byte("x"), []byte("1")))
	err = tx1.Commit(ctx)
	require.Error(t, err)
	require.True(t, kv.IsConflict(err))
}

func TestDeleteRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx1, _ := s.BeginTransaction(ctx)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, tx1.Put(ctx, []byte(k), []byte(k)))
	}
	require.NoError(t, tx1.Commit(ctx))

	tx2, _ := s.BeginTransaction(ctx)
	require.NoError(t, tx2.DeleteRange(ctx, []byte("a"), []byte("c")))
	require.NoError(t, tx2.Commit(ctx))

	tx3, _ := s.BeginTransaction(ctx)
	v, err := tx3.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.Nil(t, v)
	v, err = tx3.Get(ctx, []byte("c"))
	require.NoError(t, err)
	require.Equal(t, []byte("c"), v)
}
