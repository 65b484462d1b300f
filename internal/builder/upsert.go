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

// Upsert describes an insert-or-update of one argument value. Match columns
// default to the table's primary key.
type Upsert struct {
	d            dialect.Dialect
	table        *metadata.TableOrViewMetadata
	reg          *typeinfo.Registry
	value        any
	matchColumns []string
	strict       bool
}

// NewUpsert returns an upsert descriptor for the given table and value.
func NewUpsert(d dialect.Dialect, t *metadata.TableOrViewMetadata, reg *typeinfo.Registry, value any) Upsert {
	return Upsert{d: d, table: t, reg: reg, value: value, strict: true}
}

// WithMatchColumns overrides the key columns used to detect an existing row.
func (up Upsert) WithMatchColumns(columns ...string) Upsert {
	up.matchColumns = columns
	return up
}

// WithStrict sets the validation mode.
func (up Upsert) WithStrict(strict bool) Upsert {
	up.strict = strict
	return up
}

// Prepare produces the upsert chain in the dialect's syntax, reading the
// resulting row back when the materializer desires columns.
func (up Upsert) Prepare(m token.Materializer) (*token.Token, error) {
	info, err := up.reg.LookupValue(up.value)
	if err != nil {
		return nil, err
	}
	if up.strict {
		if err := checkWriteMapping(up.table, info); err != nil {
			return nil, err
		}
	}
	ps, err := up.table.PropertiesFor(info, metadata.MaskInsertable)
	if err != nil {
		return nil, err
	}
	if len(ps.Pairs) == 0 {
		return nil, metadata.Mappingf("no insertable properties of %s match columns of %s", info.Type.Name(), up.table.Name)
	}

	keyCols, err := up.resolveMatchColumns(info)
	if err != nil {
		return nil, err
	}
	isKey := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		isKey[k] = true
	}

	p := &paramList{d: up.d}
	sv, err := derefValue(up.value)
	if err != nil {
		return nil, err
	}
	parts := dialect.UpsertParts{Table: up.table.QuotedName, KeyColumns: keyCols}
	for _, pair := range ps.Pairs {
		parts.InsertColumns = append(parts.InsertColumns, pair.Column.QuotedName)
		parts.Placeholders = append(parts.Placeholders, p.add(sv.Field(pair.Property.Index).Interface()))
		if !isKey[pair.Column.QuotedName] {
			parts.UpdateColumns = append(parts.UpdateColumns, pair.Column.QuotedName)
		}
	}

	desired, wantRows := m.DesiredColumns()
	var returning []string
	if wantRows {
		returning, err = resolveDesiredColumns(up.table, desired, up.strict)
		if err != nil {
			return nil, err
		}
		if up.d.ReadBackStyle() != dialect.ReadBackQuery {
			parts.Returning = returning
		}
	}

	sql, err := up.d.Upsert(parts)
	if err != nil {
		return nil, err
	}
	tok := &token.Token{
		SQL:     sql,
		Command: token.Text,
		Params:  p.list,
		Lock:    token.LockWrite,
		HasRows: wantRows && up.d.ReadBackStyle() != dialect.ReadBackQuery,
	}
	if !wantRows || up.d.ReadBackStyle() != dialect.ReadBackQuery {
		return tok, nil
	}

	// Chain a select by the match keys for dialects without RETURNING.
	rp := &paramList{d: up.d}
	var preds []string
	for _, pair := range ps.Pairs {
		if !isKey[pair.Column.QuotedName] {
			continue
		}
		preds = append(preds, predicate(pair.Column, sv.Field(pair.Property.Index).Interface(), rp))
	}
	if len(preds) == 0 {
		return nil, metadata.Mappingf("cannot read back upsert on %s: match columns carry no values", up.table.Name)
	}
	read := &token.Token{
		SQL:     "SELECT " + strings.Join(returning, ", ") + " FROM " + up.table.QuotedName + " WHERE " + strings.Join(preds, " AND "),
		Command: token.Text,
		Params:  rp.list,
		Lock:    token.LockRead,
		HasRows: true,
	}
	return tok.Then(read), nil
}

// resolveMatchColumns returns the quoted key columns: the caller's explicit
// match columns when supplied, otherwise the declared key of the value type.
func (up Upsert) resolveMatchColumns(info *typeinfo.Info) ([]string, error) {
	if len(up.matchColumns) > 0 {
		quoted := make([]string, len(up.matchColumns))
		for i, name := range up.matchColumns {
			col, ok := up.table.TryGetColumn(name)
			if !ok {
				return nil, metadata.Mappingf("match column %q not found on %s", name, up.table.Name)
			}
			quoted[i] = col.QuotedName
		}
		return quoted, nil
	}
	keys, err := up.table.PropertiesFor(info, metadata.MaskDeclaredKey)
	if err != nil {
		return nil, err
	}
	quoted := make([]string, len(keys.Pairs))
	for i, pair := range keys.Pairs {
		quoted[i] = pair.Column.QuotedName
	}
	return quoted, nil
}
