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

// mysql implements the MySQL dialect: backtick quoting, positional ?
// parameters, LIMIT paging, ON DUPLICATE KEY upserts. MySQL has no RETURNING
// clause, so read-back chains a follow-up SELECT token.
type mysql struct{}

func (*mysql) Name() string { return MySQL }

func (*mysql) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (*mysql) Placeholder(n int) (string, string) {
	return "?", ""
}

func (*mysql) SupportsTopN() bool { return false }

func (*mysql) TopClause(take int64) string { return "" }

func (*mysql) LimitClause(skip, take *int64, hasOrder bool) (string, error) {
	var clause string
	if take != nil {
		clause = " LIMIT " + strconv.FormatInt(*take, 10)
	} else if skip != nil {
		// MySQL has no OFFSET without LIMIT.
		clause = " LIMIT 18446744073709551615"
	}
	if skip != nil {
		clause += " OFFSET " + strconv.FormatInt(*skip, 10)
	}
	return clause, nil
}

func (*mysql) SupportsSeededSampling() bool { return true }

// RandomOrder orders by RAND(), which MySQL reseeds per row from the given
// seed, making seeded sampling natively deterministic.
func (*mysql) RandomOrder(seed *int64) (string, *token.Token, error) {
	if seed == nil {
		return "RAND()", nil, nil
	}
	return fmt.Sprintf("RAND(%d)", *seed), nil, nil
}

func (*mysql) ReadBackStyle() ReadBackStyle { return ReadBackQuery }

func (*mysql) ReturningClause(prefix string, columns []string) string { return "" }

func (*mysql) IdentityQueryExpr() string { return "LAST_INSERT_ID()" }

func (*mysql) Upsert(p UpsertParts) (string, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(p.InsertColumns, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(p.Placeholders, ", "))
	b.WriteString(")")
	if len(p.UpdateColumns) == 0 {
		// Touch a key column so duplicate keys do not error.
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		b.WriteString(p.KeyColumns[0] + " = " + p.Table + "." + p.KeyColumns[0])
	} else {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, c := range p.UpdateColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c + " = VALUES(" + c + ")")
		}
	}
	return b.String(), nil
}

func (d *mysql) Introspector(db *sql.DB) metadata.Introspector {
	return &mysqlIntrospector{db: db, dialect: d}
}

type mysqlIntrospector struct {
	db      *sql.DB
	dialect *mysql
}

const mysqlColumnQuery = `
SELECT c.COLUMN_NAME, c.DATA_TYPE,
       c.IS_NULLABLE = 'YES',
       c.EXTRA LIKE '%auto_increment%',
       c.EXTRA LIKE '%GENERATED%',
       c.COLUMN_KEY = 'PRI',
       t.TABLE_TYPE
FROM information_schema.COLUMNS c
JOIN information_schema.TABLES t
  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE c.TABLE_SCHEMA = DATABASE() AND c.TABLE_NAME = ?
ORDER BY c.ORDINAL_POSITION`

func (in *mysqlIntrospector) Introspect(ctx context.Context, name string) (*metadata.TableOrViewMetadata, bool, error) {
	if !ValidIdentifier(name) {
		return nil, false, fmt.Errorf("invalid object name %q", name)
	}
	rows, err := in.db.QueryContext(ctx, mysqlColumnQuery, name)
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
