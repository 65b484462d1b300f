// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package metadata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canonical/sqlchain/internal/typeinfo"
)

func peopleTable(t *testing.T) *TableOrViewMetadata {
	t.Helper()
	table, err := NewTableOrView("people", `"people"`, true, []ColumnMetadata{
		{Name: "id", QuotedName: `"id"`, IsPrimaryKey: true, IsIdentity: true},
		{Name: "name", QuotedName: `"name"`},
		{Name: "age", QuotedName: `"age"`},
		{Name: "full_name", QuotedName: `"full_name"`, IsComputed: true},
	})
	assert.Nil(t, err)
	return table
}

type person struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Age  int    `db:"age"`
}

func TestNewTableOrViewDuplicateColumn(t *testing.T) {
	_, err := NewTableOrView("p", `"p"`, true, []ColumnMetadata{
		{Name: "id"}, {Name: "ID"},
	})
	assert.EqualError(t, err, `duplicate column "ID" on p`)
}

func TestTryGetColumn(t *testing.T) {
	table := peopleTable(t)

	col, ok := table.TryGetColumn("NAME")
	assert.True(t, ok)
	assert.Equal(t, "name", col.Name)

	_, ok = table.TryGetColumn("missing")
	assert.False(t, ok)
}

func TestPropertiesForMasks(t *testing.T) {
	table := peopleTable(t)
	reg := typeinfo.NewRegistry()
	info, err := reg.LookupValue(person{})
	assert.Nil(t, err)

	all, err := table.PropertiesFor(info, MaskAll)
	assert.Nil(t, err)
	assert.Equal(t, []string{"id", "name", "age"}, all.Columns())

	pk, err := table.PropertiesFor(info, MaskPrimaryKey)
	assert.Nil(t, err)
	assert.Equal(t, []string{"id"}, pk.Columns())

	nonPK, err := table.PropertiesFor(info, MaskNonPrimaryKey)
	assert.Nil(t, err)
	assert.Equal(t, []string{"name", "age"}, nonPK.Columns())

	// Identity and computed columns are not writable.
	ins, err := table.PropertiesFor(info, MaskInsertable)
	assert.Nil(t, err)
	assert.Equal(t, []string{"name", "age"}, ins.Columns())

	upd, err := table.PropertiesFor(info, MaskUpdatable)
	assert.Nil(t, err)
	assert.Equal(t, []string{"name", "age"}, upd.Columns())
}

func TestPropertiesForDeclaredKeyFallback(t *testing.T) {
	table := peopleTable(t)
	reg := typeinfo.NewRegistry()

	// No declared keys: fall back to the primary key column.
	info, err := reg.LookupValue(person{})
	assert.Nil(t, err)
	keys, err := table.PropertiesFor(info, MaskDeclaredKey)
	assert.Nil(t, err)
	assert.Equal(t, []string{"id"}, keys.Columns())

	// Declared keys win over the primary key.
	type keyedPerson struct {
		ID   int64  `db:"id"`
		Name string `db:"name,key"`
	}
	keyedInfo, err := reg.LookupValue(keyedPerson{})
	assert.Nil(t, err)
	keys, err = table.PropertiesFor(keyedInfo, MaskDeclaredKey)
	assert.Nil(t, err)
	assert.Equal(t, []string{"name"}, keys.Columns())
}

func TestPropertiesForRequiresMatch(t *testing.T) {
	table, err := NewTableOrView("log", `"log"`, true, []ColumnMetadata{
		{Name: "message", QuotedName: `"message"`},
	})
	assert.Nil(t, err)
	reg := typeinfo.NewRegistry()
	type entry struct {
		Message string `db:"message"`
	}
	info, err := reg.LookupValue(entry{})
	assert.Nil(t, err)

	_, err = table.PropertiesFor(info, MaskPrimaryKey)
	assert.EqualError(t, err, "no primary key properties of entry match columns of log")

	_, err = table.PropertiesFor(info, MaskDeclaredKey)
	assert.EqualError(t, err, "no declared key properties of entry match columns of log")
}

func TestPropertiesForComputedOnce(t *testing.T) {
	table := peopleTable(t)
	reg := typeinfo.NewRegistry()
	info, err := reg.LookupValue(person{})
	assert.Nil(t, err)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := table.PropertiesFor(info, MaskAll)
				assert.Nil(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, table.propertyComputations())

	// A different mask is a different cache entry.
	_, err = table.PropertiesFor(info, MaskInsertable)
	assert.Nil(t, err)
	assert.Equal(t, 2, table.propertyComputations())
}

// countingIntrospector counts discoveries per object name.
type countingIntrospector struct {
	calls  int64
	tables map[string]*TableOrViewMetadata
}

func (in *countingIntrospector) Introspect(ctx context.Context, name string) (*TableOrViewMetadata, bool, error) {
	atomic.AddInt64(&in.calls, 1)
	t, ok := in.tables[name]
	return t, ok, nil
}

func TestCatalogSingleDiscovery(t *testing.T) {
	table := peopleTable(t)
	intro := &countingIntrospector{tables: map[string]*TableOrViewMetadata{"people": table}}
	catalog := NewCatalog(intro)

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, found, err := catalog.GetTableOrView(context.Background(), "people")
			assert.Nil(t, err)
			assert.True(t, found)
			assert.Same(t, table, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&intro.calls))

	// Cached lookups are case-insensitive and free.
	_, found, err := catalog.GetTableOrView(context.Background(), "PEOPLE")
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), atomic.LoadInt64(&intro.calls))
}

func TestCatalogAbsenceNotCached(t *testing.T) {
	intro := &countingIntrospector{tables: map[string]*TableOrViewMetadata{}}
	catalog := NewCatalog(intro)

	_, found, err := catalog.GetTableOrView(context.Background(), "ghost")
	assert.Nil(t, err)
	assert.False(t, found)

	// The table appears later; discovery retries because absence was not
	// memoized.
	intro.tables["ghost"] = peopleTable(t)
	_, found, err = catalog.GetTableOrView(context.Background(), "ghost")
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), atomic.LoadInt64(&intro.calls))
}

func TestCatalogTryGetColumn(t *testing.T) {
	table := peopleTable(t)
	intro := &countingIntrospector{tables: map[string]*TableOrViewMetadata{"people": table}}
	catalog := NewCatalog(intro)

	col, found, err := catalog.TryGetColumn(context.Background(), "people", "Age")
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, "age", col.Name)

	_, found, err = catalog.TryGetColumn(context.Background(), "people", "shoe_size")
	assert.Nil(t, err)
	assert.False(t, found)

	_, found, err = catalog.TryGetColumn(context.Background(), "ghost", "age")
	assert.Nil(t, err)
	assert.False(t, found)
}
