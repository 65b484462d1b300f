// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqlchain is a cross-dialect data access layer on top of
// database/sql. It discovers table metadata from the live database, builds
// single-table statements in the connected engine's dialect, and
// materializes result rows into caller-defined struct types mapped with
// "db" struct tags.
//
// A DataSource wraps one *sql.DB and owns every cache: type reflection,
// table metadata, and binding plans. Operations are built fluently and run
// against the data source directly or inside a TransactionContext:
//
//	ds, err := sqlchain.Open("sqlite3", ":memory:")
//	...
//	var emp Employee
//	err = ds.From("employee").
//		WithFilterValue(map[string]any{"last_name": "Grubb"}).
//		One(ctx, &emp)
//
// Writes can read the affected row back in one round trip on engines with
// RETURNING or OUTPUT support, and fall back to chained statements on the
// rest:
//
//	err = ds.Insert("employee", emp).Into(ctx, &emp)
//
// Supported dialects are SQL Server, PostgreSQL, SQLite and MySQL, selected
// by driver name.
package sqlchain
