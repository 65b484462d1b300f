// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package token

// CommandType distinguishes plain statement text from stored procedure
// invocation.
type CommandType int

const (
	Text CommandType = iota
	StoredProcedure
)

// LockMode tags a token with the access it needs on a transactional
// execution context. Write tokens take the context's lock exclusively, Read
// tokens take it shared, and None bypasses locking for transports that
// serialize internally already.
type LockMode int

const (
	LockNone LockMode = iota
	LockRead
	LockWrite
)

// Parameter is one bound statement parameter. Name is empty for dialects
// with positional placeholders.
type Parameter struct {
	Name  string
	Value any
}

// Token is an immutable, ready-to-run unit of work: statement text,
// parameters and post-conditions, possibly chained to a follow-up token.
// A token is created once by Prepare and consumed exactly once by Run.
type Token struct {
	// SQL is the statement text. It may be empty for the no-columns
	// sentinel case, in which case the token is a no-op placeholder.
	SQL     string
	Command CommandType
	Params  []Parameter

	// ExpectedRows, when non-nil, is checked against the affected-row
	// count reported by the native command. A mismatch fails the chain
	// with a RowCountMismatchError. Only one token in a chain, the
	// primary, carries the check.
	ExpectedRows *int64

	// Lock is the lock mode for transactional execution contexts.
	Lock LockMode

	// HasRows is true when the statement produces a row cursor to be
	// handed to the materializer. At most one token per chain has rows.
	HasRows bool

	// Next is the follow-up token, run after this one completes.
	Next *Token
}

// Then returns a copy of t with next appended at the end of the chain.
func (t *Token) Then(next *Token) *Token {
	head := *t
	cur := &head
	for cur.Next != nil {
		copied := *cur.Next
		cur.Next = &copied
		cur = cur.Next
	}
	cur.Next = next
	return &head
}

// MaxLock returns the strongest lock mode in the chain.
func (t *Token) MaxLock() LockMode {
	max := LockNone
	for cur := t; cur != nil; cur = cur.Next {
		if cur.Lock > max {
			max = cur.Lock
		}
	}
	return max
}
