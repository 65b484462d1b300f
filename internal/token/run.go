// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package token

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Querier is the native command surface the chain runs on. It is satisfied
// by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Cursor is the row cursor handed to materializers. *sql.Rows satisfies it.
type Cursor interface {
	Next() bool
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
	Scan(dest ...any) error
	Err() error
}

// Materializer declares which columns an operation wants back. The second
// return is false for the "no columns" sentinel used by pure mutations: no
// SELECT or output clause is generated and no row cursor is expected.
// A nil column list with ok=true means "no preference"; the builder then
// requests all mapped columns for the target type.
type Materializer interface {
	DesiredColumns() (columns []string, ok bool)
}

// Options controls chain execution.
type Options struct {
	// Timeout, when non-zero, bounds the execution of the whole chain.
	Timeout time.Duration
}

// Run executes the chain in order. Each token that produces rows hands its
// cursor to onRows, which must fully consume it before Run advances to the
// next token; tokens without rows are executed and checked against their
// expected affected-row count. Tokens with empty SQL are skipped.
func Run(ctx context.Context, q Querier, chain *Token, opts Options, onRows func(Cursor) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	for t := chain; t != nil; t = t.Next {
		if t.SQL == "" {
			continue
		}
		if err := runOne(ctx, q, t, onRows); err != nil {
			return err
		}
	}
	return nil
}

// countingCursor counts the rows a consumer advances over, standing in for
// the affected-row count on statements that return a cursor.
type countingCursor struct {
	Cursor
	count int64
}

func (c *countingCursor) Next() bool {
	ok := c.Cursor.Next()
	if ok {
		c.count++
	}
	return ok
}

func runOne(ctx context.Context, q Querier, t *Token, onRows func(Cursor) error) error {
	args := make([]any, len(t.Params))
	for i, p := range t.Params {
		if p.Name != "" {
			args[i] = sql.Named(p.Name, p.Value)
		} else {
			args[i] = p.Value
		}
	}

	if t.HasRows {
		rows, err := q.QueryContext(ctx, t.SQL, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if onRows == nil {
			return fmt.Errorf("internal error: token produces rows but no consumer was supplied")
		}
		// RETURNING-style statements report their affected rows through the
		// cursor, not through a native count, so the rows are counted as the
		// consumer advances over them. Consumers drain the cursor.
		counted := &countingCursor{Cursor: rows}
		if err := onRows(counted); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}
		return CheckAffectedRowCount(t, counted.count)
	}

	res, err := q.ExecContext(ctx, t.SQL, args...)
	if err != nil {
		return err
	}
	if t.ExpectedRows != nil {
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("cannot check affected rows: %s", err)
		}
		if err := CheckAffectedRowCount(t, affected); err != nil {
			return err
		}
	}
	return nil
}
