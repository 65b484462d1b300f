// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlchain/internal/token"
)

type SessionSuite struct{}

var _ = Suite(&SessionSuite{})

// Every connection to a sqlite ":memory:" database sees its own database,
// and an idle limit of zero closes a connection as soon as it is released,
// so the insert below can only find the table if the whole chain ran on one
// pinned connection.
func (s *SessionSuite) TestRunPinsConnectionAcrossChain(c *C) {
	db, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	defer db.Close()
	db.SetMaxIdleConns(0)

	ds, err := New(db, "sqlite3")
	c.Assert(err, IsNil)

	chain := (&token.Token{SQL: "CREATE TABLE pinned (n INTEGER)", Lock: token.LockWrite}).
		Then(&token.Token{SQL: "INSERT INTO pinned (n) VALUES (1)", Lock: token.LockWrite})
	err = ds.run(context.Background(), ds.plainSession(), chain, nil)
	c.Assert(err, IsNil)
}

func (s *SessionSuite) TestMultiStatement(c *C) {
	one := &token.Token{SQL: "SELECT 1"}
	c.Assert(multiStatement(one), Equals, false)
	c.Assert(multiStatement(one.Then(&token.Token{SQL: "SELECT 2"})), Equals, true)

	// Empty placeholder tokens are skipped by the runner and do not count.
	c.Assert(multiStatement((&token.Token{}).Then(&token.Token{SQL: "SELECT 1"})), Equals, false)
}
