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

// sqlserver implements the T-SQL dialect: bracket quoting, named @p
// parameters, TOP and OFFSET/FETCH paging, MERGE upserts and OUTPUT
// read-back.
type sqlserver struct{}

func (*sqlserver) Name() string { return SQLServer }

func (*sqlserver) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (*sqlserver) Placeholder(n int) (string, string) {
	name := "p" + strconv.Itoa(n)
	return "@" + name, name
}

func (*sqlserver) SupportsTopN() bool { return true }

func (*sqlserver) TopClause(take int64) string {
	return "TOP " + strconv.FormatInt(take, 10) + " "
}

// LimitClause renders OFFSET/FETCH. T-SQL mandates an ORDER BY for it.
func (*sqlserver) LimitClause(skip, take *int64, hasOrder bool) (string, error) {
	if !hasOrder {
		return "", fmt.Errorf("sqlserver OFFSET/FETCH paging requires sort expressions")
	}
	var n int64
	if skip != nil {
		n = *skip
	}
	clause := " OFFSET " + strconv.FormatInt(n, 10) + " ROWS"
	if take != nil {
		clause += " FETCH NEXT " + strconv.FormatInt(*take, 10) + " ROWS ONLY"
	}
	return clause, nil
}

func (*sqlserver) SupportsSeededSampling() bool { return true }

// RandomOrder orders by NEWID() for non-reseedable sampling. With a seed it
// orders by a checksum of the seed and the row, which is deterministic for a
// given seed and row set.
func (*sqlserver) RandomOrder(seed *int64) (string, *token.Token, error) {
	if seed == nil {
		return "NEWID()", nil, nil
	}
	return fmt.Sprintf("BINARY_CHECKSUM(%d, *)", *seed), nil, nil
}

func (*sqlserver) ReadBackStyle() ReadBackStyle { return ReadBackOutput }

func (*sqlserver) ReturningClause(prefix string, columns []string) string {
	qualified := make([]string, len(columns))
	for i, c := range columns {
		qualified[i] = prefix + "." + c
	}
	return "OUTPUT " + strings.Join(qualified, ", ")
}

func (*sqlserver) IdentityQueryExpr() string { return "SCOPE_IDENTITY()" }

// Upsert renders a MERGE statement. MERGE must be terminated with a
// semicolon.
func (*sqlserver) Upsert(p UpsertParts) (string, error) {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(p.Table)
	b.WriteString(" AS target USING (VALUES (")
	b.WriteString(strings.Join(p.Placeholders, ", "))
	b.WriteString(")) AS source (")
	b.WriteString(strings.Join(p.InsertColumns, ", "))
	b.WriteString(") ON ")
	for i, k := range p.KeyColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("target." + k + " = source." + k)
	}
	if len(p.UpdateColumns) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i, c := range p.UpdateColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("target." + c + " = source." + c)
		}
	}
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(strings.Join(p.InsertColumns, ", "))
	b.WriteString(") VALUES (")
	for i, c := range p.InsertColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("source." + c)
	}
	b.WriteString(")")
	if len(p.Returning) > 0 {
		qualified := make([]string, len(p.Returning))
		for i, c := range p.Returning {
			qualified[i] = "Inserted." + c
		}
		b.WriteString(" OUTPUT " + strings.Join(qualified, ", "))
	}
	b.WriteString(";")
	return b.String(), nil
}

func (d *sqlserver) Introspector(db *sql.DB) metadata.Introspector {
	return &sqlserverIntrospector{db: db, dialect: d}
}

type sqlserverIntrospector struct {
	db      *sql.DB
	dialect *sqlserver
}

const sqlserverColumnQuery = `
SELECT c.name, t.name, c.is_nullable, c.is_identity, c.is_computed,
       CASE WHEN ic.column_id IS NULL THEN 0 ELSE 1 END,
       o.type
FROM sys.columns c
JOIN sys.objects o ON o.object_id = c.object_id
JOIN sys.types t ON t.user_type_id = c.user_type_id
LEFT JOIN sys.indexes i ON i.object_id = o.object_id AND i.is_primary_key = 1
LEFT JOIN sys.index_columns ic ON ic.object_id = o.object_id
     AND ic.index_id = i.index_id AND ic.column_id = c.column_id
WHERE o.object_id = OBJECT_ID(@p1) AND o.type IN ('U', 'V')
ORDER BY c.column_id`

func (in *sqlserverIntrospector) Introspect(ctx context.Context, name string) (*metadata.TableOrViewMetadata, bool, error) {
	if !ValidIdentifier(name) {
		return nil, false, fmt.Errorf("invalid object name %q", name)
	}
	rows, err := in.db.QueryContext(ctx, sqlserverColumnQuery, sql.Named("p1", name))
	if err != nil {
		return nil, false, fmt.Errorf("cannot introspect %q: %s", name, err)
	}
	defer rows.Close()

	var cols []metadata.ColumnMetadata
	isTable := true
	for rows.Next() {
		var c metadata.ColumnMetadata
		var objType string
		if err := rows.Scan(&c.Name, &c.TypeTag, &c.IsNullable, &c.IsIdentity, &c.IsComputed, &c.IsPrimaryKey, &objType); err != nil {
			return nil, false, err
		}
		c.QuotedName = in.dialect.QuoteIdentifier(c.Name)
		isTable = strings.TrimSpace(objType) == "U"
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
