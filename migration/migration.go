// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package migration implements the transactional fixup walk that
// backfills default values for newly non-optional fields after a
// schema/plan change, honoring @rename_from key carry-over (handled
// upstream by the planner — migration only ever sees the new plan's
// keys) and bounding work by never descending into sets.
package migration

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/rdbcore/rdb/kv"
	"github.com/rdbcore/rdb/logging"
	"github.com/rdbcore/rdb/pathwalker"
	"github.com/rdbcore/rdb/schema"
	"github.com/rdbcore/rdb/storageplan"
)

// Option configures a Migrate call.
type Option func(*config)

type config struct {
	logger logging.Logger
}

// WithLogger attaches a logger Migrate uses to report fixup progress
// and failures. The default is a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Migrate walks every export of s against plan within tx, writing
// default values for any missing non-optional field. It is idempotent:
// running it twice against the same (schema, plan) over the same KV
// state leaves the snapshot byte-identical. Each export is fixed up
// concurrently; the transaction interface permits interleaved calls
// from multiple goroutines.
func Migrate(ctx context.Context, tx kv.Transaction, s *schema.CompiledSchema, plan *storageplan.StoragePlan, opts ...Option) error {
	c := &config{logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info("migrating %d exports", len(s.ExportOrder))

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.ExportOrder {
		name := name
		ft := s.Exports[name]
		g.Go(func() error {
			w, err := pathwalker.FromExport(plan, name)
			if err != nil {
				return newError(WalkErr, err, "export %q", name)
			}
			if err := migrateNode(ctx, tx, w, ft, nil); err != nil {
				c.logger.Warn("export %q fixup failed: %v", name, err)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Debug("migration complete")
	return nil
}

// migrateNode fixes up the field ft is positioned on. defAnn is the
// field's own @default annotation (nil unless the field is primitive
// and annotated), needed only if the field turns out missing.
func migrateNode(ctx context.Context, tx kv.Transaction, w *pathwalker.Walker, ft schema.FieldType, defAnn *schema.FieldAnnotation) error {
	inner, isOptional := schema.OptionalUnwrapped(ft)
	key := w.GenerateKey()
	val, err := tx.Get(ctx, key)
	if err != nil {
		return newError(KVErr, err, "get %x", key)
	}
	if val == nil {
		if isOptional {
			return nil
		}
		return materialize(ctx, tx, w, inner, defAnn)
	}
	// Present already: primitives and sets need no further work (sets
	// are never traversed by migration); named types still get
	// recursed into so newly non-optional fields nested inside get
	// backfilled too.
	if named, ok := inner.(schema.NamedField); ok {
		return descendNamed(ctx, tx, w, named)
	}
	return nil
}

// materialize writes the value for a field found missing: for a
// primitive, its @default literal (or the type's zero value) msgpack-
// encoded; for anything else, a zero-length placeholder so the
// presence test above sees it as set, then (for a named type) recurse
// to fix up its own fields.
func materialize(ctx context.Context, tx kv.Transaction, w *pathwalker.Walker, inner schema.FieldType, defaultAnn *schema.FieldAnnotation) error {
	switch v := inner.(type) {
	case schema.PrimitiveField:
		enc, err := encodeDefault(v.Prim, defaultAnn)
		if err != nil {
			return err
		}
		if err := tx.Put(ctx, w.GenerateKey(), enc); err != nil {
			return newError(KVErr, err, "put default")
		}
		return nil
	case schema.SetField:
		if err := tx.Put(ctx, w.GenerateKey(), []byte{}); err != nil {
			return newError(KVErr, err, "put set placeholder")
		}
		return nil
	case schema.NamedField:
		if err := tx.Put(ctx, w.GenerateKey(), []byte{}); err != nil {
			return newError(KVErr, err, "put table placeholder")
		}
		return descendNamed(ctx, tx, w, v)
	default:
		return newError(WalkErr, nil, "unhandled field type %T", inner)
	}
}

func descendNamed(ctx context.Context, tx kv.Transaction, w *pathwalker.Walker, named schema.NamedField) error {
	for _, fname := range named.Type.FieldOrder {
		f, _ := named.Type.Field(fname)
		child, err := w.EnterField(fname)
		if err != nil {
			return newError(WalkErr, err, "enter field %q", fname)
		}
		var defAnn *schema.FieldAnnotation
		if lit, ok := f.Default(); ok {
			defAnn = &schema.FieldAnnotation{Kind: schema.AnnDefault, DefaultLit: lit}
		}
		if err := migrateNode(ctx, tx, child, f.Type, defAnn); err != nil {
			return err
		}
	}
	return nil
}

func encodeDefault(prim schema.Primitive, ann *schema.FieldAnnotation) ([]byte, error) {
	var native interface{}
	if ann != nil {
		lit := ann.DefaultLit
		switch prim {
		case schema.String:
			native = lit.Str
		case schema.Int64:
			native = lit.Int
		case schema.Bytes:
			native = lit.Byt
		case schema.Double:
			native = float64(lit.Int)
		}
	} else {
		switch prim {
		case schema.String:
			native = ""
		case schema.Int64:
			native = int64(0)
		case schema.Bytes:
			native = []byte{}
		case schema.Double:
			native = float64(0)
		}
	}
	enc, err := msgpack.Marshal(native)
	if err != nil {
		return nil, newError(EncodeErr, err, "encoding default for %v", prim)
	}
	return enc, nil
}
