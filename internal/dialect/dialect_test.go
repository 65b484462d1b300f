// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForPrefixMatch(t *testing.T) {
	var tests = []struct {
		driver string
		name   string
	}{
		{driver: "sqlserver", name: "sqlserver"},
		{driver: "mssql", name: "sqlserver"},
		{driver: "postgres", name: "postgres"},
		{driver: "pgx/v5", name: "postgres"},
		{driver: "sqlite3", name: "sqlite3"},
		{driver: "sqlite3_extended", name: "sqlite3"},
		{driver: "mysql", name: "mysql"},
	}
	for _, tc := range tests {
		d, err := For(tc.driver)
		assert.Nil(t, err, tc.driver)
		assert.Equal(t, tc.name, d.Name(), tc.driver)
	}

	_, err := For("oracle")
	assert.EqualError(t, err, `unsupported dialect "oracle"`)
}

func TestQuoteIdentifier(t *testing.T) {
	ss, _ := For("sqlserver")
	assert.Equal(t, "[weird]]name]", ss.QuoteIdentifier("weird]name"))

	lite, _ := For("sqlite3")
	assert.Equal(t, `"weird""name"`, lite.QuoteIdentifier(`weird"name`))

	my, _ := For("mysql")
	assert.Equal(t, "`weird``name`", my.QuoteIdentifier("weird`name"))
}

func TestQuoteQualified(t *testing.T) {
	pg, _ := For("postgres")
	assert.Equal(t, `"sales"."orders"`, QuoteQualified(pg, "sales.orders"))
	assert.Equal(t, `"orders"`, QuoteQualified(pg, "orders"))
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("employee"))
	assert.True(t, ValidIdentifier("sales.orders"))
	assert.True(t, ValidIdentifier("_hidden2"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("2fast"))
	assert.False(t, ValidIdentifier("drop table;--"))
	assert.False(t, ValidIdentifier("name with spaces"))
}

func TestPlaceholders(t *testing.T) {
	ss, _ := For("sqlserver")
	text, name := ss.Placeholder(2)
	assert.Equal(t, "@p2", text)
	assert.Equal(t, "p2", name)

	pg, _ := For("postgres")
	text, name = pg.Placeholder(2)
	assert.Equal(t, "$2", text)
	assert.Equal(t, "", name)

	my, _ := For("mysql")
	text, _ = my.Placeholder(9)
	assert.Equal(t, "?", text)
}
