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

// ReadBack selects which row values an update or delete returns.
type ReadBack int

const (
	// ReadBackNone returns nothing.
	ReadBackNone ReadBack = iota
	// ReadBackNew returns the row values after the write.
	ReadBackNew
	// ReadBackOld returns the row values before the write.
	ReadBackOld
)

// Update describes an update of one argument value. Without an explicit
// filter the row is addressed by the value's declared key properties.
type Update struct {
	d            dialect.Dialect
	table        *metadata.TableOrViewMetadata
	reg          *typeinfo.Registry
	value        any
	filter       filterSpec
	rawSet       string
	rawSetArgs   []any
	expectedRows *int64
	readBack     ReadBack
	strict       bool
}

// NewUpdate returns an update descriptor for the given table and value.
func NewUpdate(d dialect.Dialect, t *metadata.TableOrViewMetadata, reg *typeinfo.Registry, value any) Update {
	return Update{d: d, table: t, reg: reg, value: value, strict: true}
}

// WithFilterValue sets a structured filter, replacing the declared-key
// addressing and clearing any raw predicate.
func (u Update) WithFilterValue(v any) Update {
	u.filter = structuredFilter(v)
	return u
}

// WithRawFilter sets raw predicate text, clearing any structured filter.
func (u Update) WithRawFilter(pred string, args ...any) Update {
	u.filter = rawFilter(pred, args)
	return u
}

// WithRawSet overrides the structured SET clause with raw expression text.
func (u Update) WithRawSet(expr string, args ...any) Update {
	u.rawSet = expr
	u.rawSetArgs = args
	return u
}

// WithExpectedRows sets the affected-row post-condition checked after the
// update executes.
func (u Update) WithExpectedRows(n int64) Update {
	u.expectedRows = &n
	return u
}

// WithReadBack selects whether the chain returns old or new row values.
func (u Update) WithReadBack(rb ReadBack) Update {
	u.readBack = rb
	return u
}

// WithStrict sets the validation mode.
func (u Update) WithStrict(strict bool) Update {
	u.strict = strict
	return u
}

// Prepare produces the update chain. When old values are requested the read
// token runs before the write; new values run after (or collapse into the
// write statement on dialects with RETURNING/OUTPUT). The write token is the
// primary: it alone carries the affected-row check.
func (u Update) Prepare(m token.Materializer) (*token.Token, error) {
	info, err := u.reg.LookupValue(u.value)
	if err != nil {
		return nil, err
	}
	if u.strict {
		if err := checkWriteMapping(u.table, info); err != nil {
			return nil, err
		}
	}

	p := &paramList{d: u.d}
	sv, err := derefValue(u.value)
	if err != nil {
		return nil, err
	}

	// SET clause.
	var set string
	if u.rawSet != "" {
		for _, arg := range u.rawSetArgs {
			p.addRaw(arg)
		}
		set = u.rawSet
	} else {
		ps, err := u.table.PropertiesFor(info, metadata.MaskUpdatable)
		if err != nil {
			return nil, err
		}
		var terms []string
		for _, pair := range ps.Pairs {
			terms = append(terms, pair.Column.QuotedName+" = "+p.add(sv.Field(pair.Property.Index).Interface()))
		}
		if len(terms) == 0 {
			return nil, metadata.Mappingf("no updatable properties of %s match columns of %s", info.Type.Name(), u.table.Name)
		}
		set = strings.Join(terms, ", ")
	}

	// WHERE clause: explicit filter, or the value's declared keys.
	where, whereParams, err := u.whereFromFilterOrKeys(p)
	if err != nil {
		return nil, err
	}

	desired, wantRows := m.DesiredColumns()
	var returning []string
	if wantRows {
		returning, err = resolveDesiredColumns(u.table, desired, u.strict)
		if err != nil {
			return nil, err
		}
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(u.table.QuotedName)
	b.WriteString(" SET ")
	b.WriteString(set)
	sameStatement := wantRows && u.readBack == ReadBackNew && u.d.ReadBackStyle() != dialect.ReadBackQuery
	if sameStatement && u.d.ReadBackStyle() == dialect.ReadBackOutput {
		b.WriteString(" ")
		b.WriteString(u.d.ReturningClause("Inserted", returning))
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if sameStatement && u.d.ReadBackStyle() == dialect.ReadBackReturning {
		b.WriteString(" ")
		b.WriteString(u.d.ReturningClause("Inserted", returning))
	}

	write := &token.Token{
		SQL:          b.String(),
		Command:      token.Text,
		Params:       p.list,
		Lock:         token.LockWrite,
		ExpectedRows: u.expectedRows,
		HasRows:      sameStatement,
	}

	if !wantRows || sameStatement {
		return write, nil
	}

	read, err := u.rowSelect(returning, whereParams)
	if err != nil {
		return nil, err
	}
	if u.readBack == ReadBackOld {
		return read.Then(write), nil
	}
	return write.Then(read), nil
}

// whereFromFilterOrKeys renders the WHERE body and also returns the raw
// (column, value) pairs so a chained read token can re-bind them.
func (u Update) whereFromFilterOrKeys(p *paramList) (string, []keyValue, error) {
	if u.filter.set {
		where, err := whereClause(u.table, u.reg, u.filter, p)
		return where, nil, err
	}
	keys, kv, err := keyPairs(u.table, u.reg, u.value)
	if err != nil {
		return "", nil, err
	}
	var preds []string
	var pairs []keyValue
	for _, pair := range keys.Pairs {
		v := kv.Field(pair.Property.Index).Interface()
		preds = append(preds, predicate(pair.Column, v, p))
		pairs = append(pairs, keyValue{col: pair.Column, value: v})
	}
	return strings.Join(preds, " AND "), pairs, nil
}

type keyValue struct {
	col   *metadata.ColumnMetadata
	value any
}

// rowSelect builds the read token of an update chain, addressing the same
// row as the write.
func (u Update) rowSelect(returning []string, keys []keyValue) (*token.Token, error) {
	p := &paramList{d: u.d}
	var where string
	if keys != nil {
		var preds []string
		for _, k := range keys {
			preds = append(preds, predicate(k.col, k.value, p))
		}
		where = strings.Join(preds, " AND ")
	} else {
		w, err := whereClause(u.table, u.reg, u.filter, p)
		if err != nil {
			return nil, err
		}
		where = w
	}
	sql := "SELECT " + strings.Join(returning, ", ") + " FROM " + u.table.QuotedName
	if where != "" {
		sql += " WHERE " + where
	}
	return &token.Token{
		SQL:     sql,
		Command: token.Text,
		Params:  p.list,
		Lock:    token.LockRead,
		HasRows: true,
	}, nil
}
