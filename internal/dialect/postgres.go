// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
)

// postgres implements the PostgreSQL dialect: double-quote quoting via
// lib/pq, $n parameters, LIMIT/OFFSET paging, ON CONFLICT upserts and
// RETURNING read-back.
type postgres struct{}

func (*postgres) Name() string { return Postgres }

func (*postgres) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (*postgres) Placeholder(n int) (string, string) {
	return "$" + strconv.Itoa(n), ""
}

func (*postgres) SupportsTopN() bool { return false }

func (*postgres) TopClause(take int64) string { return "" }

func (*postgres) LimitClause(skip, take *int64, hasOrder bool) (string, error) {
	var clause string
	if take != nil {
		clause += " LIMIT " + strconv.FormatInt(*take, 10)
	}
	if skip != nil {
		clause += " OFFSET " + strconv.FormatInt(*skip, 10)
	}
	return clause, nil
}

func (*postgres) SupportsSeededSampling() bool { return true }

// RandomOrder orders by random(). With a seed it chains a setseed() prelude
// so two executions with the same seed return the same ordering. setseed
// takes a value in [-1, 1]; the integer seed is folded into that range.
func (*postgres) RandomOrder(seed *int64) (string, *token.Token, error) {
	if seed == nil {
		return "random()", nil, nil
	}
	folded := float64(*seed%1000000) / 1000000
	prelude := &token.Token{
		SQL:     "SELECT setseed($1)",
		Command: token.Text,
		Params:  []token.Parameter{{Value: folded}},
		Lock:    token.LockRead,
		HasRows: false,
	}
	return "random()", prelude, nil
}

func (*postgres) ReadBackStyle() ReadBackStyle { return ReadBackReturning }

func (*postgres) ReturningClause(prefix string, columns []string) string {
	return "RETURNING " + strings.Join(columns, ", ")
}

func (*postgres) IdentityQueryExpr() string { return "lastval()" }

func (*postgres) Upsert(p UpsertParts) (string, error) {
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

func (d *postgres) Introspector(db *sql.DB) metadata.Introspector {
	return &postgresIntrospector{db: db, dialect: d}
}

type postgresIntrospector struct {
	db      *sql.DB
	dialect *postgres
}

const postgresColumnQuery = `
SELECT c.column_name, c.data_type,
       c.is_nullable = 'YES',
       c.is_identity = 'YES' OR COALESCE(c.column_default LIKE 'nextval(%', false),
       c.is_generated <> 'NEVER',
       EXISTS (
           SELECT 1 FROM information_schema.table_constraints tc
           JOIN information_schema.key_column_usage kcu
             ON kcu.constraint_name = tc.constraint_name
            AND kcu.table_schema = tc.table_schema
           WHERE tc.constraint_type = 'PRIMARY KEY'
             AND tc.table_schema = c.table_schema
             AND tc.table_name = c.table_name
             AND kcu.column_name = c.column_name
       ),
       t.table_type
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

func (in *postgresIntrospector) Introspect(ctx context.Context, name string) (*metadata.TableOrViewMetadata, bool, error) {
	if !ValidIdentifier(name) {
		return nil, false, fmt.Errorf("invalid object name %q", name)
	}
	schema, table := "public", name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		schema, table = name[:i], name[i+1:]
	}
	rows, err := in.db.QueryContext(ctx, postgresColumnQuery, schema, table)
	if err != nil {
		return nil, false, fmt.Errorf("cannot introspect %q: %s", name, err)
	}
	defer rows.Close()

	var cols []metadata.ColumnMetadata
	isTable := true
	for rows.Next() {
		var c metadata.ColumnMetadata
		var tableType string
		if err := rows.Scan(&c.Name, &c.TypeTag, &c.IsNullable, &c.IsIdentity, &c.IsComputed, &c.IsPrimaryKey, &tableType); err != nil {
			return nil, false, err
		}
		c.QuotedName = in.dialect.QuoteIdentifier(c.Name)
		isTable = tableType == "BASE TABLE"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(cols) == 0 {
		return nil, false, nil
	}
	t, err := metadata.NewTableOrView(name, QuoteQualified(in.dialect, name), isTable, cols)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}
