// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"context"

	"github.com/canonical/sqlchain/internal/builder"
	"github.com/canonical/sqlchain/internal/materialize"
	"github.com/canonical/sqlchain/internal/token"
)

// SelectQuery is a read operation under construction. Its With methods
// return new values; a query can be branched and reused concurrently.
type SelectQuery struct {
	ds    *DataSource
	sess  session
	table string
	mods  []func(builder.Select) builder.Select
}

// From starts a read operation against the named table or view.
func (ds *DataSource) From(table string) *SelectQuery {
	return &SelectQuery{ds: ds, sess: ds.plainSession(), table: table}
}

func (q *SelectQuery) with(mod func(builder.Select) builder.Select) *SelectQuery {
	next := *q
	next.mods = make([]func(builder.Select) builder.Select, len(q.mods), len(q.mods)+1)
	copy(next.mods, q.mods)
	next.mods = append(next.mods, mod)
	return &next
}

// WithFilterValue filters by equality against the properties of a struct or
// the entries of a map[string]any. Nil values match NULL. It replaces any
// raw filter.
func (q *SelectQuery) WithFilterValue(v any) *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithFilterValue(v) })
}

// WithRawFilter filters with raw predicate text and bound arguments,
// replacing any structured filter. The text is interpolated verbatim; it is
// an explicit escape hatch, never the default.
func (q *SelectQuery) WithRawFilter(pred string, args ...any) *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithRawFilter(pred, args...) })
}

// WithSort appends a sort expression.
func (q *SelectQuery) WithSort(column string, descending bool) *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithSort(column, descending) })
}

// WithSkip skips the first n rows.
func (q *SelectQuery) WithSkip(n int64) *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithSkip(n) })
}

// WithTake returns at most n rows.
func (q *SelectQuery) WithTake(n int64) *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithTake(n) })
}

// WithLimitStrategy selects the paging syntax family.
func (q *SelectQuery) WithLimitStrategy(strategy LimitStrategy) *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithLimitStrategy(strategy) })
}

// WithSeed selects seeded random sampling. Two executions with the same
// seed return the same rows in the same order, on dialects that support it.
func (q *SelectQuery) WithSeed(seed int64) *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithSeed(seed) })
}

// Lenient disables strict validation: unknown desired or filter columns are
// skipped instead of raising mapping errors.
func (q *SelectQuery) Lenient() *SelectQuery {
	return q.with(func(s builder.Select) builder.Select { return s.WithStrict(false) })
}

// All runs the query and appends every row to the slice pointed to by dest.
func (q *SelectQuery) All(ctx context.Context, dest any) error {
	binder, err := q.ds.binderFor(dest, true)
	if err != nil {
		return err
	}
	t, err := q.ds.table(ctx, q.table)
	if err != nil {
		return err
	}
	chain, err := q.selectBuilder(t).Prepare(binder)
	if err != nil {
		return err
	}
	return q.ds.run(ctx, q.sess, chain, q.ds.bindConsumer(binder, rowsSQL(chain), dest, false, nil))
}

// One runs the query and decodes the first row into the struct pointed to
// by dest. It returns ErrNoRows when no row matches.
func (q *SelectQuery) One(ctx context.Context, dest any) error {
	binder, err := q.ds.binderFor(dest, false)
	if err != nil {
		return err
	}
	t, err := q.ds.table(ctx, q.table)
	if err != nil {
		return err
	}
	chain, err := q.selectBuilder(t).Prepare(binder)
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

// LimitStrategy selects the paging syntax family of a select.
type LimitStrategy = builder.LimitStrategy

const (
	LimitNone               = builder.LimitNone
	LimitOffset             = builder.LimitOffset
	LimitTopN               = builder.LimitTopN
	LimitRandomSample       = builder.LimitRandomSample
	LimitRandomSampleSeeded = builder.LimitRandomSampleSeeded
)

// InsertQuery is an insert operation under construction.
type InsertQuery struct {
	ds     *DataSource
	sess   session
	table  string
	value  any
	strict bool
}

// Insert starts an insert of value into the named table.
func (ds *DataSource) Insert(table string, value any) *InsertQuery {
	return &InsertQuery{ds: ds, sess: ds.plainSession(), table: table, value: value, strict: true}
}

// Lenient disables strict validation.
func (q *InsertQuery) Lenient() *InsertQuery {
	next := *q
	next.strict = false
	return &next
}

func (q *InsertQuery) prepare(ctx context.Context, m token.Materializer) (*token.Token, error) {
	t, err := q.ds.table(ctx, q.table)
	if err != nil {
		return nil, err
	}
	ins := builder.NewInsert(q.ds.dialect, t, q.ds.registry, q.value).WithStrict(q.strict)
	return ins.Prepare(m)
}

// Run executes the insert without reading anything back.
func (q *InsertQuery) Run(ctx context.Context) error {
	chain, err := q.prepare(ctx, materialize.NoColumns{})
	if err != nil {
		return err
	}
	return q.ds.run(ctx, q.sess, chain, nil)
}

// Into executes the insert and decodes the inserted row, identity and
// computed columns included, into the struct pointed to by dest.
func (q *InsertQuery) Into(ctx context.Context, dest any) error {
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
