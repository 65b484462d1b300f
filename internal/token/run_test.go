// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package token_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/canonical/sqlchain/internal/token"
)

func int64p(n int64) *int64 { return &n }

func TestRunSingleExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.Nil(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE people SET name = ?").
		WithArgs("Fred").
		WillReturnResult(sqlmock.NewResult(0, 1))

	chain := &token.Token{
		SQL:    "UPDATE people SET name = ?",
		Params: []token.Parameter{{Value: "Fred"}},
	}
	err = token.Run(context.Background(), db, chain, token.Options{}, nil)
	assert.Nil(t, err)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestRunNamedParameters(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.Nil(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE people SET name = @p1").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	chain := &token.Token{
		SQL:    "UPDATE people SET name = @p1",
		Params: []token.Parameter{{Name: "p1", Value: "Fred"}},
	}
	err = token.Run(context.Background(), db, chain, token.Options{}, nil)
	assert.Nil(t, err)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestRunRowCountMismatch(t *testing.T) {
	var tests = []struct {
		affected int64
		expected int64
		ok       bool
	}{
		{affected: 1, expected: 1, ok: true},
		{affected: 0, expected: 1},
		{affected: 2, expected: 1},
	}

	for _, tc := range tests {
		db, mock, err := sqlmock.New()
		assert.Nil(t, err)

		mock.ExpectExec("DELETE FROM people").
			WillReturnResult(sqlmock.NewResult(0, tc.affected))

		chain := &token.Token{SQL: "DELETE FROM people", ExpectedRows: int64p(tc.expected)}
		err = token.Run(context.Background(), db, chain, token.Options{}, nil)
		if tc.ok {
			assert.Nil(t, err)
		} else {
			var mismatch *token.RowCountMismatchError
			assert.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tc.expected, mismatch.Expected)
			assert.Equal(t, tc.affected, mismatch.Actual)
		}
		db.Close()
	}
}

func TestRunRowCountMismatchWithCursor(t *testing.T) {
	// A RETURNING-style statement carries both a cursor and the expected-row
	// check; the rows themselves are the affected-row count.
	var tests = []struct {
		rows     int64
		expected int64
		ok       bool
	}{
		{rows: 1, expected: 1, ok: true},
		{rows: 0, expected: 1},
		{rows: 2, expected: 1},
	}

	for _, tc := range tests {
		db, mock, err := sqlmock.New()
		assert.Nil(t, err)

		returned := sqlmock.NewRows([]string{"id"})
		for i := int64(0); i < tc.rows; i++ {
			returned.AddRow(i + 1)
		}
		mock.ExpectQuery("UPDATE people").WillReturnRows(returned)

		chain := &token.Token{
			SQL:          "UPDATE people SET name = ? RETURNING id",
			Params:       []token.Parameter{{Value: "Fred"}},
			ExpectedRows: int64p(tc.expected),
			HasRows:      true,
		}
		err = token.Run(context.Background(), db, chain, token.Options{}, func(rows token.Cursor) error {
			for rows.Next() {
			}
			return rows.Err()
		})
		if tc.ok {
			assert.Nil(t, err)
		} else {
			var mismatch *token.RowCountMismatchError
			assert.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tc.expected, mismatch.Expected)
			assert.Equal(t, tc.rows, mismatch.Actual)
		}
		db.Close()
	}
}

func TestRunChainOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.Nil(t, err)
	defer db.Close()

	// Expectations are ordered: the write must run before the read.
	mock.ExpectExec("INSERT INTO people").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectQuery("SELECT id, name FROM people").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "Fred"))

	write := &token.Token{SQL: "INSERT INTO people (name) VALUES (?)", Params: []token.Parameter{{Value: "Fred"}}}
	read := &token.Token{SQL: "SELECT id, name FROM people WHERE id = 3", HasRows: true}

	var sawRows bool
	err = token.Run(context.Background(), db, write.Then(read), token.Options{}, func(rows token.Cursor) error {
		sawRows = true
		for rows.Next() {
		}
		return rows.Err()
	})
	assert.Nil(t, err)
	assert.True(t, sawRows)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestRunSkipsEmptyTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.Nil(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM people").
		WillReturnResult(sqlmock.NewResult(0, 0))

	empty := &token.Token{}
	err = token.Run(context.Background(), db, empty.Then(&token.Token{SQL: "DELETE FROM people"}), token.Options{}, nil)
	assert.Nil(t, err)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestRunCanceledContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.Nil(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM people").
		WillReturnError(context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := &token.Token{SQL: "DELETE FROM people"}
	err = token.Run(ctx, db, chain, token.Options{}, nil)
	assert.NotNil(t, err)
}

func TestThenDoesNotMutateReceiver(t *testing.T) {
	a := &token.Token{SQL: "a"}
	b := &token.Token{SQL: "b"}
	c := &token.Token{SQL: "c"}

	ab := a.Then(b)
	assert.Nil(t, a.Next)
	assert.Equal(t, "b", ab.Next.SQL)

	// Extending a chain copies the spine; the original chain is unchanged.
	abc := ab.Then(c)
	assert.Nil(t, ab.Next.Next)
	assert.Equal(t, "c", abc.Next.Next.SQL)
}

func TestMaxLock(t *testing.T) {
	read := &token.Token{SQL: "r", Lock: token.LockRead}
	write := &token.Token{SQL: "w", Lock: token.LockWrite}

	assert.Equal(t, token.LockRead, read.MaxLock())
	assert.Equal(t, token.LockWrite, read.Then(write).MaxLock())
	assert.Equal(t, token.LockWrite, write.Then(read).MaxLock())
}
