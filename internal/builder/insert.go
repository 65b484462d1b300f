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

// Insert describes an insert of one argument value. Identity and computed
// columns are never written; properties tagged omitempty are skipped when
// zero so column defaults apply.
type Insert struct {
	d      dialect.Dialect
	table  *metadata.TableOrViewMetadata
	reg    *typeinfo.Registry
	value  any
	strict bool
}

// NewInsert returns an insert descriptor for the given table and value.
func NewInsert(d dialect.Dialect, t *metadata.TableOrViewMetadata, reg *typeinfo.Registry, value any) Insert {
	return Insert{d: d, table: t, reg: reg, value: value, strict: true}
}

// WithStrict sets the validation mode.
func (ins Insert) WithStrict(strict bool) Insert {
	ins.strict = strict
	return ins
}

// Prepare produces the insert token, with a read-back clause or chained
// select when the materializer desires columns.
func (ins Insert) Prepare(m token.Materializer) (*token.Token, error) {
	info, err := ins.reg.LookupValue(ins.value)
	if err != nil {
		return nil, err
	}
	if ins.strict {
		if err := checkWriteMapping(ins.table, info); err != nil {
			return nil, err
		}
	}
	ps, err := ins.table.PropertiesFor(info, metadata.MaskInsertable)
	if err != nil {
		return nil, err
	}
	if len(ps.Pairs) == 0 {
		return nil, metadata.Mappingf("no insertable properties of %s match columns of %s", info.Type.Name(), ins.table.Name)
	}

	p := &paramList{d: ins.d}
	sv, err := derefValue(ins.value)
	if err != nil {
		return nil, err
	}
	var columns, markers []string
	for _, pair := range ps.Pairs {
		fv := sv.Field(pair.Property.Index)
		if pair.Property.OmitEmpty && fv.IsZero() {
			continue
		}
		columns = append(columns, pair.Column.QuotedName)
		markers = append(markers, p.add(fv.Interface()))
	}
	if len(columns) == 0 {
		return nil, metadata.Mappingf("all insertable properties of %s are empty", info.Type.Name())
	}

	desired, wantRows := m.DesiredColumns()
	var returning []string
	if wantRows {
		returning, err = resolveDesiredColumns(ins.table, desired, ins.strict)
		if err != nil {
			return nil, err
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ins.table.QuotedName)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(")")
	if wantRows && ins.d.ReadBackStyle() == dialect.ReadBackOutput {
		b.WriteString(" ")
		b.WriteString(ins.d.ReturningClause("Inserted", returning))
	}
	b.WriteString(" VALUES (")
	b.WriteString(strings.Join(markers, ", "))
	b.WriteString(")")

	tok := &token.Token{
		Command: token.Text,
		Params:  p.list,
		Lock:    token.LockWrite,
	}

	if !wantRows {
		tok.SQL = b.String()
		return tok, nil
	}

	switch ins.d.ReadBackStyle() {
	case dialect.ReadBackReturning:
		b.WriteString(" ")
		b.WriteString(ins.d.ReturningClause("Inserted", returning))
		tok.SQL = b.String()
		tok.HasRows = true
		return tok, nil
	case dialect.ReadBackOutput:
		tok.SQL = b.String()
		tok.HasRows = true
		return tok, nil
	default:
		tok.SQL = b.String()
		readBack, err := ins.readBackSelect(returning)
		if err != nil {
			return nil, err
		}
		return tok.Then(readBack), nil
	}
}

// readBackSelect builds the chained select that ReadBackQuery dialects use
// to return the inserted row: by the identity column when the table has one,
// otherwise by the declared key values.
func (ins Insert) readBackSelect(returning []string) (*token.Token, error) {
	p := &paramList{d: ins.d}
	var where string
	identity := ""
	for i := range ins.table.Columns {
		if ins.table.Columns[i].IsIdentity {
			identity = ins.table.Columns[i].QuotedName
			break
		}
	}
	if identity != "" && ins.d.IdentityQueryExpr() != "" {
		where = identity + " = " + ins.d.IdentityQueryExpr()
	} else {
		keys, kv, err := keyPairs(ins.table, ins.reg, ins.value)
		if err != nil {
			return nil, err
		}
		var preds []string
		for _, pair := range keys.Pairs {
			preds = append(preds, predicate(pair.Column, kv.Field(pair.Property.Index).Interface(), p))
		}
		where = strings.Join(preds, " AND ")
	}
	return &token.Token{
		SQL:     "SELECT " + strings.Join(returning, ", ") + " FROM " + ins.table.QuotedName + " WHERE " + where,
		Command: token.Text,
		Params:  p.list,
		Lock:    token.LockRead,
		HasRows: true,
	}, nil
}
