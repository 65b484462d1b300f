// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"context"

	"github.com/canonical/sqlchain/internal/builder"
	"github.com/canonical/sqlchain/internal/materialize"
	"github.com/canonical/sqlchain/internal/token"
)

// UpdateQuery is an update operation under construction. Without an
// explicit filter the row is addressed by the value's declared key
// properties (or the table's primary key).
type UpdateQuery struct {
	ds    *DataSource
	sess  session
	table string
	value any
	mods  []func(builder.Update) builder.Update
}

// Update starts an update of the row(s) addressed by value.
func (ds *DataSource) Update(table string, value any) *UpdateQuery {
	return &UpdateQuery{ds: ds, sess: ds.plainSession(), table: table, value: value}
}

func (q *UpdateQuery) with(mod func(builder.Update) builder.Update) *UpdateQuery {
	next := *q
	next.mods = make([]func(builder.Update) builder.Update, len(q.mods), len(q.mods)+1)
	copy(next.mods, q.mods)
	next.mods = append(next.mods, mod)
	return &next
}

// WithFilterValue replaces the declared-key addressing with a structured
// filter, clearing any raw predicate.
func (q *UpdateQuery) WithFilterValue(v any) *UpdateQuery {
	return q.with(func(u builder.Update) builder.Update { return u.WithFilterValue(v) })
}

// WithRawFilter sets raw predicate text, clearing any structured filter.
func (q *UpdateQuery) WithRawFilter(pred string, args ...any) *UpdateQuery {
	return q.with(func(u builder.Update) builder.Update { return u.WithRawFilter(pred, args...) })
}

// WithRawSet overrides the structured SET clause with raw expression text.
func (q *UpdateQuery) WithRawSet(expr string, args ...any) *UpdateQuery {
	return q.with(func(u builder.Update) builder.Update { return u.WithRawSet(expr, args...) })
}

// WithExpectedRows fails the operation with a RowCountMismatchError when
// the update affects a different number of rows. The statement is not
// rolled back by this layer.
func (q *UpdateQuery) WithExpectedRows(n int64) *UpdateQuery {
	return q.with(func(u builder.Update) builder.Update { return u.WithExpectedRows(n) })
}

// Lenient disables strict validation.
func (q *UpdateQuery) Lenient() *UpdateQuery {
	return q.with(func(u builder.Update) builder.Update { return u.WithStrict(false) })
}

func (q *UpdateQuery) prepare(ctx context.Context, rb builder.ReadBack, m token.Materializer) (*token.Token, error) {
	t, err := q.ds.table(ctx, q.table)
	if err != nil {
		return nil, err
	}
	u := builder.NewUpdate(q.ds.dialect, t, q.ds.registry, q.value).WithReadBack(rb)
	for _, mod := range q.mods {
		u = mod(u)
	}
	return u.Prepare(m)
}

// Run executes the update without reading anything back.
func (q *UpdateQuery) Run(ctx context.Context) error {
	chain, err := q.prepare(ctx, builder.ReadBackNone, materialize.NoColumns{})
	if err != nil {
		return err
	}
	return q.ds.run(ctx, q.sess, chain, nil)
}

// IntoNew executes the update and decodes the row values after the write
// into dest. The read runs after the write, or collapses into it on
// dialects with RETURNING/OUTPUT.
func (q *UpdateQuery) IntoNew(ctx context.Context, dest any) error {
	return q.into(ctx, builder.ReadBackNew, dest)
}

// IntoOld executes the update and decodes the row values before the write
// into dest. The read token runs before the write token.
func (q *UpdateQuery) IntoOld(ctx context.Context, dest any) error {
	return q.into(ctx, builder.ReadBackOld, dest)
}

func (q *UpdateQuery) into(ctx context.Context, rb builder.ReadBack, dest any) error {
	binder, err := q.ds.binderFor(dest, false)
	if err != nil {
		return err
	}
	chain, err := q.prepare(ctx, rb, binder)
	if err != nil {
		return err
	}
	var found bool
	err = q.ds.run(ctx, q.sess, chain, q.ds.bindConsumer(binder, rowsSQL(chain), dest, true, &found))
	if err == nil && !found {
		return ErrNoRows
	}
	return err
}

// UpsertQuery is an insert-or-update operation under construction.
type UpsertQuery struct {
	ds    *DataSource
	sess  session
	table string
	value any
	mods  []func(builder.Upsert) builder.Upsert
}

// Upsert starts an insert-or-update of value. Existing rows are matched on
// the table's primary key unless match columns are supplied.
func (ds *DataSource) Upsert(table string, value any) *UpsertQuery {
	return &UpsertQuery{ds: ds, sess: ds.plainSession(), table: table, value: value}
}

func (q *UpsertQuery) with(mod func(builder.Upsert) builder.Upsert) *UpsertQuery {
	next := *q
	next.mods = make([]func(builder.Upsert) builder.Upsert, len(q.mods), len(q.mods)+1)
	copy(next.mods, q.mods)
	next.mods = append(next.mods, mod)
	return &next
}

// WithMatchColumns overrides the key columns used to detect an existing
// row.
func (q *UpsertQuery) WithMatchColumns(columns ...string) *UpsertQuery {
	return q.with(func(u builder.Upsert) builder.Upsert { return u.WithMatchColumns(columns...) })
}

// Lenient disables strict validation.
func (q *UpsertQuery) Lenient() *UpsertQuery {
	return q.with(func(u builder.Upsert) builder.Upsert { return u.WithStrict(false) })
}

func (q *UpsertQuery) prepare(ctx context.Context, m token.Materializer) (*token.Token, error) {
	t, err := q.ds.table(ctx, q.table)
	if err != nil {
		return nil, err
	}
	u := builder.NewUpsert(q.ds.dialect, t, q.ds.registry, q.value)
	for _, mod := range q.mods {
		u = mod(u)
	}
	return u.Prepare(m)
}

// Run executes the upsert without reading anything back.
func (q *UpsertQuery) Run(ctx context.Context) error {
	chain, err := q.prepare(ctx, materialize.NoColumns{})
	if err != nil {
		return err
	}
	return q.ds.run(ctx, q.sess, chain, nil)
}

// Into executes the upsert and decodes the resulting row into dest.
func (q *UpsertQuery) Into(ctx context.Context, dest any) error {
	binder, err := q.ds.binderFor(dest, false)
	if err != nil {
		return err
	}
	chain, err := q.prepare(ctx, binder)
	if err != nil {
		return err
	}
	var found bool
	err = q.ds.run(ctx, q.sess, chain, q.ds.bindConsumer(binder, rowsSQL(chain), dest, true, &found))
	if err == nil && !found {
		return ErrNoRows
	}
	return err
}

// DeleteQuery is a delete operation under construction. A filter is
// required unless All opts in to deleting every row.
type DeleteQuery struct {
	ds    *DataSource
	sess  session
	table string
	mods  []func(builder.Delete) builder.Delete
}

// DeleteFrom starts a delete against the named table.
func (ds *DataSource) DeleteFrom(table string) *DeleteQuery {
	return &DeleteQuery{ds: ds, sess: ds.plainSession(), table: table}
}

func (q *DeleteQuery) with(mod func(builder.Delete) builder.Delete) *DeleteQuery {
	next := *q
	next.mods = make([]func(builder.Delete) builder.Delete, len(q.mods), len(q.mods)+1)
	copy(next.mods, q.mods)
	next.mods = append(next.mods, mod)
	return &next
}

// WithFilterValue sets a structured filter, clearing any raw predicate.
func (q *DeleteQuery) WithFilterValue(v any) *DeleteQuery {
	return q.with(func(d builder.Delete) builder.Delete { return d.WithFilterValue(v) })
}

// WithRawFilter sets raw predicate text, clearing any structured filter.
func (q *DeleteQuery) WithRawFilter(pred string, args ...any) *DeleteQuery {
	return q.with(func(d builder.Delete) builder.Delete { return d.WithRawFilter(pred, args...) })
}

// All opts in to a filterless delete of every row.
func (q *DeleteQuery) All() *DeleteQuery {
	return q.with(func(d builder.Delete) builder.Delete { return d.All() })
}

// WithExpectedRows fails the operation with a RowCountMismatchError when
// the delete affects a different number of rows.
func (q *DeleteQuery) WithExpectedRows(n int64) *DeleteQuery {
	return q.with(func(d builder.Delete) builder.Delete { return d.WithExpectedRows(n) })
}

func (q *DeleteQuery) prepare(ctx context.Context, m token.Materializer) (*token.Token, error) {
	t, err := q.ds.table(ctx, q.table)
	if err != nil {
		return nil, err
	}
	d := builder.NewDelete(q.ds.dialect, t, q.ds.registry)
	for _, mod := range q.mods {
		d = mod(d)
	}
	return d.Prepare(m)
}

// Run executes the delete without reading anything back.
func (q *DeleteQuery) Run(ctx context.Context) error {
	chain, err := q.prepare(ctx, materialize.NoColumns{})
	if err != nil {
		return err
	}
	return q.ds.run(ctx, q.sess, chain, nil)
}

// Into executes the delete and appends the deleted rows to the slice
// pointed to by dest. On dialects without RETURNING the rows are read
// before the delete runs.
func (q *DeleteQuery) Into(ctx context.Context, dest any) error {
	binder, err := q.ds.binderFor(dest, true)
	if err != nil {
		return err
	}
	chain, err := q.prepare(ctx, binder)
	if err != nil {
		return err
	}
	return q.ds.run(ctx, q.sess, chain, q.ds.bindConsumer(binder, rowsSQL(chain), dest, false, nil))
}
