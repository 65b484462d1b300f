// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/canonical/sqlchain/internal/builder"
	"github.com/canonical/sqlchain/internal/dialect"
	"github.com/canonical/sqlchain/internal/materialize"
	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
	"github.com/canonical/sqlchain/internal/typeinfo"
)

// ColumnMetadata describes one column of a discovered table or view.
type ColumnMetadata = metadata.ColumnMetadata

// TableOrViewMetadata describes a discovered table or view.
type TableOrViewMetadata = metadata.TableOrViewMetadata

// DataSource is the entry point of the library: one database handle, one
// dialect, and the caches that make repeated operations cheap. All caches
// are owned by the DataSource and live exactly as long as it does; they are
// append-only and never invalidated, which trades memory growth for
// predictable performance. A DataSource is safe for concurrent use.
type DataSource struct {
	sqldb    *sql.DB
	dialect  dialect.Dialect
	registry *typeinfo.Registry
	catalog  *metadata.Catalog
	plans    *planCache

	// CommandTimeout, when non-zero, bounds the native execution of every
	// operation. Set it before the DataSource is shared.
	CommandTimeout time.Duration
}

// New wraps an open database handle. The driver name selects the dialect,
// matching by prefix so wrapped registrations like "sqlite3_extended" still
// resolve.
func New(db *sql.DB, driverName string) (*DataSource, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot create data source: nil database")
	}
	d, err := dialect.For(driverName)
	if err != nil {
		return nil, err
	}
	return &DataSource{
		sqldb:    db,
		dialect:  d,
		registry: typeinfo.NewRegistry(),
		catalog:  metadata.NewCatalog(d.Introspector(db)),
		plans:    newPlanCache(),
	}, nil
}

// Open opens a database handle with sql.Open and wraps it.
func Open(driverName, dataSourceName string) (*DataSource, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	return New(db, driverName)
}

// PlainDB returns the underlying database object.
func (ds *DataSource) PlainDB() *sql.DB {
	return ds.sqldb
}

// Dialect returns the dialect name the data source speaks.
func (ds *DataSource) Dialect() string {
	return ds.dialect.Name()
}

// SupportsSeededSampling reports whether the dialect can reproduce a random
// sample from a seed, so callers can feature-detect instead of handling a
// capability error.
func (ds *DataSource) SupportsSeededSampling() bool {
	return ds.dialect.SupportsSeededSampling()
}

// SupportsTopN reports whether the dialect has TOP-style prefix paging.
func (ds *DataSource) SupportsTopN() bool {
	return ds.dialect.SupportsTopN()
}

// GetTableOrView returns the cached metadata for the named table or view,
// discovering it on first request. Unknown names return found=false.
func (ds *DataSource) GetTableOrView(ctx context.Context, name string) (*TableOrViewMetadata, bool, error) {
	return ds.catalog.GetTableOrView(ctx, name)
}

// TryGetColumn resolves a column by table and column name,
// case-insensitively.
func (ds *DataSource) TryGetColumn(ctx context.Context, table, column string) (*ColumnMetadata, bool, error) {
	return ds.catalog.TryGetColumn(ctx, table, column)
}

// session is the execution target of a query: a plain database handle or a
// transaction context with its lock discipline.
type session struct {
	q token.Querier
	// lock serializes operations on a transaction context; nil outside of
	// one, where database/sql serializes internally already.
	lock *sync.RWMutex
	// done reports a finalized transaction context.
	done func() bool
}

func (ds *DataSource) plainSession() session {
	return session{q: ds.sqldb}
}

// run executes a prepared chain on the session, honoring the chain's lock
// mode and converting native failures into a distinguished cancellation
// error when the caller's context was canceled.
func (ds *DataSource) run(ctx context.Context, sess session, chain *token.Token, onRows func(token.Cursor) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if sess.done != nil && sess.done() {
		return ErrContextDone
	}
	if sess.lock != nil {
		switch chain.MaxLock() {
		case token.LockWrite:
			sess.lock.Lock()
			defer sess.lock.Unlock()
		case token.LockRead:
			sess.lock.RLock()
			defer sess.lock.RUnlock()
		}
	}
	q := sess.q
	// A chain of several statements must share one connection: session
	// state set by an early token (a random seed, a last-insert id) is
	// per-connection, and the pool behind *sql.DB may otherwise hand each
	// statement a different one. Transactions are pinned already.
	if db, ok := q.(*sql.DB); ok && multiStatement(chain) {
		conn, err := db.Conn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("operation canceled: %w", ctx.Err())
			}
			return err
		}
		defer conn.Close()
		q = conn
	}
	err := token.Run(ctx, q, chain, token.Options{Timeout: ds.CommandTimeout}, onRows)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("operation canceled: %w", ctx.Err())
	}
	return err
}

// multiStatement reports whether the chain executes more than one statement.
func multiStatement(chain *token.Token) bool {
	n := 0
	for t := chain; t != nil; t = t.Next {
		if t.SQL != "" {
			n++
		}
	}
	return n > 1
}

// bindConsumer returns the onRows consumer for a chain's row cursor,
// materializing into dest through the cached binding plan for (statement,
// target type). first selects single-row binding; found reports whether a
// row was seen.
func (ds *DataSource) bindConsumer(binder *materialize.Binder, stmtSQL string, dest any, first bool, found *bool) func(token.Cursor) error {
	return func(rows token.Cursor) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		plan, err := ds.plans.lookup(stmtSQL, binder, cols)
		if err != nil {
			return err
		}
		if first {
			ok, err := binder.BindFirst(rows, plan, dest)
			if found != nil {
				*found = ok
			}
			return err
		}
		return binder.BindAll(rows, plan, dest)
	}
}

// binderFor returns the binder for a destination: a pointer to struct, or a
// pointer to slice of (pointers to) structs.
func (ds *DataSource) binderFor(dest any, wantSlice bool) (*materialize.Binder, error) {
	t := reflect.TypeOf(dest)
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("need pointer destination, got %T", dest)
	}
	elem := t.Elem()
	if wantSlice {
		if elem.Kind() != reflect.Slice {
			return nil, fmt.Errorf("need pointer to slice, got pointer to %s", elem.Kind())
		}
		elem = elem.Elem()
	}
	return materialize.NewBinderForType(ds.registry, elem)
}

// table resolves table metadata, surfacing unknown names as mapping errors.
func (ds *DataSource) table(ctx context.Context, name string) (*metadata.TableOrViewMetadata, error) {
	t, found, err := ds.catalog.GetTableOrView(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, metadata.Mappingf("table or view %q not found", name)
	}
	return t, nil
}

// rowsSQL returns the statement text of the row-producing token of a chain,
// used as the binding-plan cache key.
func rowsSQL(chain *token.Token) string {
	for t := chain; t != nil; t = t.Next {
		if t.HasRows {
			return t.SQL
		}
	}
	return chain.SQL
}

// selectBuilder assembles the descriptor for a SelectQuery at run time,
// once the table metadata is known.
func (q *SelectQuery) selectBuilder(t *metadata.TableOrViewMetadata) builder.Select {
	s := builder.NewSelect(q.ds.dialect, t, q.ds.registry)
	for _, mod := range q.mods {
		s = mod(s)
	}
	return s
}
