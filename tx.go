// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
)

// TXOptions holds the options for a transaction context.
type TXOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (o *TXOptions) plainTXOptions() *sql.TxOptions {
	if o == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: o.Isolation, ReadOnly: o.ReadOnly}
}

// TransactionContext groups operations into one database transaction.
// Operations on the same context are serialized: writes take an exclusive
// lock, reads a shared one, so concurrent goroutines never interleave
// statements on the underlying transaction. A finished context rejects
// further operations with ErrContextDone.
type TransactionContext struct {
	ds    *DataSource
	sqltx *sql.Tx

	// mutex serializes operations per the lock mode of their chains.
	mutex sync.RWMutex
	// done is set once the context commits or rolls back.
	done int32
}

// Begin starts a transaction context. A nil opts uses the driver defaults.
func (ds *DataSource) Begin(ctx context.Context, opts *TXOptions) (*TransactionContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := ds.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TransactionContext{ds: ds, sqltx: sqltx}, nil
}

func (tx *TransactionContext) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

// setDone flags the transaction context as finished. It returns an error if
// it already was.
func (tx *TransactionContext) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrContextDone
	}
	return nil
}

// Commit commits the transaction.
func (tx *TransactionContext) Commit() error {
	if err := tx.setDone(); err != nil {
		return err
	}
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	return tx.sqltx.Commit()
}

// Rollback aborts the transaction.
func (tx *TransactionContext) Rollback() error {
	if err := tx.setDone(); err != nil {
		return err
	}
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	return tx.sqltx.Rollback()
}

func (tx *TransactionContext) session() session {
	return session{q: tx.sqltx, lock: &tx.mutex, done: tx.isDone}
}

// From starts a read operation on the transaction.
func (tx *TransactionContext) From(table string) *SelectQuery {
	return &SelectQuery{ds: tx.ds, sess: tx.session(), table: table}
}

// Insert starts an insert on the transaction.
func (tx *TransactionContext) Insert(table string, value any) *InsertQuery {
	return &InsertQuery{ds: tx.ds, sess: tx.session(), table: table, value: value, strict: true}
}

// Update starts an update on the transaction.
func (tx *TransactionContext) Update(table string, value any) *UpdateQuery {
	return &UpdateQuery{ds: tx.ds, sess: tx.session(), table: table, value: value}
}

// Upsert starts an insert-or-update on the transaction.
func (tx *TransactionContext) Upsert(table string, value any) *UpsertQuery {
	return &UpsertQuery{ds: tx.ds, sess: tx.session(), table: table, value: value}
}

// DeleteFrom starts a delete on the transaction.
func (tx *TransactionContext) DeleteFrom(table string) *DeleteQuery {
	return &DeleteQuery{ds: tx.ds, sess: tx.session(), table: table}
}
