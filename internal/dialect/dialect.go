// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
)

// Dialect names. For returns the dialect for a driver name by prefix, so
// wrapped driver registrations such as "sqlite3_extended" still resolve.
const (
	SQLServer = "sqlserver"
	Postgres  = "postgres"
	SQLite    = "sqlite3"
	MySQL     = "mysql"
)

// ReadBackStyle describes how a dialect returns rows from a mutation.
type ReadBackStyle int

const (
	// ReadBackReturning appends a RETURNING clause at the end of the
	// statement.
	ReadBackReturning ReadBackStyle = iota
	// ReadBackOutput places an OUTPUT clause inside the statement, before
	// the VALUES/WHERE section.
	ReadBackOutput
	// ReadBackQuery chains a follow-up SELECT token after the mutation.
	ReadBackQuery
)

// UpsertParts carries the pre-quoted pieces of an upsert statement. All
// identifier fields are already quoted for the dialect; placeholder fields
// are rendered parameter markers, one per insert column.
type UpsertParts struct {
	Table         string
	InsertColumns []string
	KeyColumns    []string
	UpdateColumns []string
	Placeholders  []string
	// Returning lists the quoted columns of an output clause, empty when
	// the materializer wants nothing back.
	Returning []string
}

// Dialect is one target engine's SQL syntax and capability set: quoting,
// placeholders, paging style, upsert syntax, random ordering and catalog
// introspection.
type Dialect interface {
	Name() string

	// QuoteIdentifier quotes a single identifier.
	QuoteIdentifier(name string) string

	// Placeholder renders the n-th parameter marker (1-based) and returns
	// the parameter name for dialects with named parameters, or "" for
	// positional ones.
	Placeholder(n int) (text string, name string)

	// SupportsTopN reports whether the dialect has a TOP-style prefix
	// limit with no offset support.
	SupportsTopN() bool

	// TopClause renders the TOP prefix, including a trailing space.
	TopClause(take int64) string

	// LimitClause renders the trailing paging clause for offset-style
	// paging. hasOrder reports whether the statement carries an ORDER BY;
	// dialects whose paging syntax mandates ordering return an error
	// without it.
	LimitClause(skip, take *int64, hasOrder bool) (string, error)

	// SupportsSeededSampling reports whether RandomOrder accepts a seed.
	SupportsSeededSampling() bool

	// RandomOrder renders the ORDER BY expression for random sampling.
	// A non-nil prelude token must be run before the select on the same
	// session; Postgres uses it to seed the generator.
	RandomOrder(seed *int64) (orderExpr string, prelude *token.Token, err error)

	// ReadBackStyle reports how mutations return rows.
	ReadBackStyle() ReadBackStyle

	// ReturningClause renders the read-back clause over the given quoted
	// columns. prefix is the OUTPUT row source ("Inserted" or "Deleted")
	// and is ignored by RETURNING dialects.
	ReturningClause(prefix string, columns []string) string

	// IdentityQueryExpr is the expression selecting the last generated
	// identity value, used by ReadBackQuery dialects, or "" when the
	// dialect has no such expression.
	IdentityQueryExpr() string

	// Upsert renders the dialect's insert-or-update statement.
	Upsert(p UpsertParts) (string, error)

	// Introspector returns the catalog discovery implementation bound to
	// the given database handle.
	Introspector(db *sql.DB) metadata.Introspector
}

// For returns the dialect registered for the given driver name.
func For(driverName string) (Dialect, error) {
	for _, reg := range dialects {
		if strings.HasPrefix(driverName, reg.prefix) {
			return reg.dialect, nil
		}
	}
	return nil, fmt.Errorf("unsupported dialect %q", driverName)
}

var dialects = []struct {
	prefix  string
	dialect Dialect
}{
	{SQLServer, &sqlserver{}},
	{"mssql", &sqlserver{}},
	{Postgres, &postgres{}},
	{"pgx", &postgres{}},
	{SQLite, &sqlite{}},
	{"sqlite", &sqlite{}},
	{MySQL, &mysql{}},
}

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores,
// dots for schema.name).
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidIdentifier checks that the string is a plausible SQL identifier.
// Identifiers are quoted before interpolation, but names arriving from
// callers are rejected up front rather than relying on quoting alone.
func ValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// QuoteQualified quotes a possibly schema-qualified name part by part using
// the dialect's identifier quoting.
func QuoteQualified(d Dialect, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
