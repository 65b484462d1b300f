// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
)

// sqlite implements the SQLite dialect: double-quote quoting, positional ?
// parameters, LIMIT/OFFSET paging, ON CONFLICT upserts and RETURNING
// read-back. SQLite's random() is not reseedable, so seeded sampling is a
// capability error.
type sqlite struct{}

func (*sqlite) Name() string { return SQLite }

func (*sqlite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (*sqlite) Placeholder(n int) (string, string) {
	return "?", ""
}

func (*sqlite) SupportsTopN() bool { return false }

func (*sqlite) TopClause(take int64) string { return "" }

func (*sqlite) LimitClause(skip, take *int64, hasOrder bool) (string, error) {
	var clause string
	if take != nil {
		clause = " LIMIT " + strconv.FormatInt(*take, 10)
	} else if skip != nil {
		// SQLite has no OFFSET without LIMIT.
		clause = " LIMIT -1"
	}
	if skip != nil {
		clause += " OFFSET " + strconv.FormatInt(*skip, 10)
	}
	return clause, nil
}

func (*sqlite) SupportsSeededSampling() bool { return false }

func (*sqlite) RandomOrder(seed *int64) (string, *token.Token, error) {
	if seed != nil {
		return "", nil, fmt.Errorf("sqlite3 does not support seeded random sampling")
	}
	return "random()", nil, nil
}

func (*sqlite) ReadBackStyle() ReadBackStyle { return ReadBackReturning }

func (*sqlite) ReturningClause(prefix string, columns []string) string {
	return "RETURNING " + strings.Join(columns, ", ")
}

func (*sqlite) IdentityQueryExpr() string { return "last_insert_rowid()" }

func (*sqlite) Upsert(p UpsertParts) (string, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(p.InsertColumns, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(p.Placeholders, ", "))
	b.WriteString(") ON CONFLICT (")
	b.WriteString(strings.Join(p.KeyColumns, ", "))
	b.WriteString(")")
	if len(p.UpdateColumns) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		for i, c := range p.UpdateColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c + " = excluded." + c)
		}
	}
	if len(p.Returning) > 0 {
		b.WriteString(" RETURNING " + strings.Join(p.Returning, ", "))
	}
	return b.String(), nil
}

func (d *sqlite) Introspector(db *sql.DB) metadata.Introspector {
	return &sqliteIntrospector{db: db, dialect: d}
}

type sqliteIntrospector struct {
	db      *sql.DB
	dialect *sqlite
}

func (in *sqliteIntrospector) Introspect(ctx context.Context, name string) (*metadata.TableOrViewMetadata, bool, error) {
	if !ValidIdentifier(name) {
		return nil, false, fmt.Errorf("invalid object name %q", name)
	}
	var objType string
	err := in.db.QueryRowContext(ctx,
		"SELECT type FROM sqlite_master WHERE name = ? AND type IN ('table', 'view')", name,
	).Scan(&objType)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cannot introspect %q: %s", name, err)
	}

	// PRAGMA does not take bound parameters; the name was validated and is
	// quoted before interpolation.
	rows, err := in.db.QueryContext(ctx, "PRAGMA table_info("+in.dialect.QuoteIdentifier(name)+")")
	if err != nil {
		return nil, false, fmt.Errorf("cannot introspect %q: %s", name, err)
	}
	defer rows.Close()

	var cols []metadata.ColumnMetadata
	for rows.Next() {
		var (
			cid     int
			notNull int
			dflt    sql.NullString
			pk      int
			c       metadata.ColumnMetadata
		)
		if err := rows.Scan(&cid, &c.Name, &c.TypeTag, &notNull, &dflt, &pk); err != nil {
			return nil, false, err
		}
		c.QuotedName = in.dialect.QuoteIdentifier(c.Name)
		c.IsNullable = notNull == 0
		c.IsPrimaryKey = pk > 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	// A lone INTEGER primary key aliases the rowid and autogenerates
	// values. Composite keys do not.
	var pkCount, pkIndex int
	for i, c := range cols {
		if c.IsPrimaryKey {
			pkCount++
			pkIndex = i
		}
	}
	if pkCount == 1 && strings.EqualFold(cols[pkIndex].TypeTag, "INTEGER") {
		cols[pkIndex].IsIdentity = true
	}
	if len(cols) == 0 {
		return nil, false, nil
	}
	t, err := metadata.NewTableOrView(name, in.dialect.QuoteIdentifier(name), objType == "table", cols)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}
