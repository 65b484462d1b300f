// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package metadata

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Introspector performs the dialect-specific catalog discovery for one object
// name. Unknown names return found=false with a nil error: every dialect in
// this module uses soft introspection, and callers surface the absence as a
// mapping error at statement-build time.
type Introspector interface {
	Introspect(ctx context.Context, name string) (table *TableOrViewMetadata, found bool, err error)
}

// Catalog discovers and caches table and view metadata. The first request for
// a given name runs the introspector; the result is memoized for the life of
// the Catalog. Concurrent first requests for the same name share a single
// discovery: the introspector runs at most once per name regardless of
// contention, and every caller observes the same fully-built value.
//
// A Catalog is owned by its data source and torn down with it.
type Catalog struct {
	intro Introspector

	group  singleflight.Group
	mutex  sync.RWMutex
	tables map[string]*TableOrViewMetadata
}

// NewCatalog returns an empty Catalog backed by the given introspector.
func NewCatalog(intro Introspector) *Catalog {
	return &Catalog{
		intro:  intro,
		tables: make(map[string]*TableOrViewMetadata),
	}
}

// GetTableOrView returns the metadata for the named table or view,
// discovering it on first request. Unknown names return found=false with a
// nil error; absence is not cached, so a later request retries discovery.
func (c *Catalog) GetTableOrView(ctx context.Context, name string) (*TableOrViewMetadata, bool, error) {
	key := strings.ToLower(name)

	c.mutex.RLock()
	t, ok := c.tables[key]
	c.mutex.RUnlock()
	if ok {
		return t, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a previous flight may have
		// completed between the cache miss and Do.
		c.mutex.RLock()
		t, ok := c.tables[key]
		c.mutex.RUnlock()
		if ok {
			return t, nil
		}
		t, found, err := c.intro.Introspect(ctx, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return (*TableOrViewMetadata)(nil), nil
		}
		c.mutex.Lock()
		c.tables[key] = t
		c.mutex.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, false, err
	}
	t = v.(*TableOrViewMetadata)
	if t == nil {
		return nil, false, nil
	}
	return t, true, nil
}

// TryGetColumn resolves a column by table and column name. It returns
// found=false when either the table or the column is unknown. The table must
// already have been discovered or be discoverable.
func (c *Catalog) TryGetColumn(ctx context.Context, table, column string) (*ColumnMetadata, bool, error) {
	t, found, err := c.GetTableOrView(ctx, table)
	if err != nil || !found {
		return nil, false, err
	}
	col, ok := t.TryGetColumn(column)
	return col, ok, nil
}
