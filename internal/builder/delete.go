// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package builder

import (
	"strings"

	"github.com/canonical/sqlchain/internal/dialect"
	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
	"github.com/canonical/sqlchain/internal/typeinfo"
)

// Delete describes a delete. A filter is required unless the caller opts in
// to deleting every row with All.
type Delete struct {
	d            dialect.Dialect
	table        *metadata.TableOrViewMetadata
	reg          *typeinfo.Registry
	filter       filterSpec
	all          bool
	expectedRows *int64
	strict       bool
}

// NewDelete returns a delete descriptor for the given table.
func NewDelete(d dialect.Dialect, t *metadata.TableOrViewMetadata, reg *typeinfo.Registry) Delete {
	return Delete{d: d, table: t, reg: reg, strict: true}
}

// WithFilterValue sets a structured filter, clearing any raw predicate.
func (del Delete) WithFilterValue(v any) Delete {
	del.filter = structuredFilter(v)
	return del
}

// WithRawFilter sets raw predicate text, clearing any structured filter.
func (del Delete) WithRawFilter(pred string, args ...any) Delete {
	del.filter = rawFilter(pred, args)
	return del
}

// All opts in to a filterless delete of every row.
func (del Delete) All() Delete {
	del.all = true
	return del
}

// WithExpectedRows sets the affected-row post-condition.
func (del Delete) WithExpectedRows(n int64) Delete {
	del.expectedRows = &n
	return del
}

// WithStrict sets the validation mode.
func (del Delete) WithStrict(strict bool) Delete {
	del.strict = strict
	return del
}

// Prepare produces the delete chain. When the materializer desires columns
// the deleted values are read back: in the delete statement itself on
// dialects with RETURNING/OUTPUT, and with a read token ordered before the
// write elsewhere, since the rows are gone afterwards.
func (del Delete) Prepare(m token.Materializer) (*token.Token, error) {
	if !del.filter.set && !del.all {
		return nil, metadata.Mappingf("cannot delete from %s without a filter; use All to delete every row", del.table.Name)
	}

	p := &paramList{d: del.d}
	where, err := whereClause(del.table, del.reg, del.filter, p)
	if err != nil {
		return nil, err
	}

	desired, wantRows := m.DesiredColumns()
	var returning []string
	if wantRows {
		returning, err = resolveDesiredColumns(del.table, desired, del.strict)
		if err != nil {
			return nil, err
		}
	}

	style := del.d.ReadBackStyle()
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(del.table.QuotedName)
	if wantRows && style == dialect.ReadBackOutput {
		b.WriteString(" ")
		b.WriteString(del.d.ReturningClause("Deleted", returning))
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if wantRows && style == dialect.ReadBackReturning {
		b.WriteString(" ")
		b.WriteString(del.d.ReturningClause("Deleted", returning))
	}

	write := &token.Token{
		SQL:          b.String(),
		Command:      token.Text,
		Params:       p.list,
		Lock:         token.LockWrite,
		ExpectedRows: del.expectedRows,
		HasRows:      wantRows && style != dialect.ReadBackQuery,
	}
	if !wantRows || style != dialect.ReadBackQuery {
		return write, nil
	}

	// Read the doomed rows before deleting them.
	rp := &paramList{d: del.d}
	rwhere, err := whereClause(del.table, del.reg, del.filter, rp)
	if err != nil {
		return nil, err
	}
	sql := "SELECT " + strings.Join(returning, ", ") + " FROM " + del.table.QuotedName
	if rwhere != "" {
		sql += " WHERE " + rwhere
	}
	read := &token.Token{
		SQL:     sql,
		Command: token.Text,
		Params:  rp.list,
		Lock:    token.LockRead,
		HasRows: true,
	}
	return read.Then(write), nil
}
