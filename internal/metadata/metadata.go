// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/canonical/sqlchain/internal/typeinfo"
)

// ColumnMetadata describes a single column of a table or view. Values are
// immutable once constructed.
type ColumnMetadata struct {
	// Name is the raw column name as reported by the catalog.
	Name string

	// QuotedName is the name quoted for the owning dialect.
	QuotedName string

	// TypeTag is the native type name reported by the catalog, e.g.
	// "INTEGER" or "character varying". It is informational; binding
	// decisions are made from driver-reported scan types.
	TypeTag string

	IsPrimaryKey bool
	IsIdentity   bool
	IsComputed   bool
	IsNullable   bool
}

// TableOrViewMetadata describes a table or view and its columns. Column order
// is catalog discovery order; lookups are case-insensitive. A value is
// created once per distinct object name by the Catalog and cached for the
// life of the Catalog.
type TableOrViewMetadata struct {
	// Name is the dialect-qualified object name, e.g. "public.people".
	Name string

	// QuotedName is the object name quoted for the owning dialect.
	QuotedName string

	// IsTable is false for views.
	IsTable bool

	Columns []ColumnMetadata

	byName map[string]int

	mutex     sync.Mutex
	propCache map[propKey]*PropertySet
	computed  int
}

type propKey struct {
	typ  reflect.Type
	mask Mask
}

// NewTableOrView constructs table metadata from discovered columns. Column
// names must be unique within the table (case-insensitive).
func NewTableOrView(name, quotedName string, isTable bool, columns []ColumnMetadata) (*TableOrViewMetadata, error) {
	t := &TableOrViewMetadata{
		Name:       name,
		QuotedName: quotedName,
		IsTable:    isTable,
		Columns:    columns,
		byName:     make(map[string]int, len(columns)),
		propCache:  make(map[propKey]*PropertySet),
	}
	for i, c := range columns {
		lower := strings.ToLower(c.Name)
		if _, ok := t.byName[lower]; ok {
			return nil, fmt.Errorf("duplicate column %q on %s", c.Name, name)
		}
		t.byName[lower] = i
	}
	return t, nil
}

// TryGetColumn returns the column with the given name. The match is
// case-insensitive.
func (t *TableOrViewMetadata) TryGetColumn(name string) (*ColumnMetadata, bool) {
	i, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &t.Columns[i], true
}

// PrimaryKeyColumns returns the primary key columns in discovery order.
func (t *TableOrViewMetadata) PrimaryKeyColumns() []ColumnMetadata {
	var keys []ColumnMetadata
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			keys = append(keys, c)
		}
	}
	return keys
}

// ColumnProperty pairs one column with the struct property it binds to.
type ColumnProperty struct {
	Column   *ColumnMetadata
	Property *typeinfo.Property
}

// PropertySet is the cached result of joining a type's properties with a
// table's columns under a filter mask.
type PropertySet struct {
	Pairs []ColumnProperty
}

// Columns returns the column names of the set in column discovery order.
func (ps *PropertySet) Columns() []string {
	names := make([]string, len(ps.Pairs))
	for i, p := range ps.Pairs {
		names[i] = p.Column.Name
	}
	return names
}

// PropertiesFor joins the columns of the table with the mapped properties of
// the given type and filters the join by mask. The result is computed at most
// once per (type, mask) pair and cached for the life of the table metadata;
// concurrent first callers observe the same fully-built value.
//
// Masks that require a match (MaskPrimaryKey, MaskDeclaredKey) return a
// MappingError when the filtered set is empty.
func (t *TableOrViewMetadata) PropertiesFor(info *typeinfo.Info, mask Mask) (*PropertySet, error) {
	key := propKey{typ: info.Type, mask: mask}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	if ps, ok := t.propCache[key]; ok {
		return ps, nil
	}

	t.computed++
	ps := t.computeSet(info, mask)
	if len(ps.Pairs) == 0 && mask.requiresMatch() {
		return nil, Mappingf("no %s of %s match columns of %s", mask, info.Type.Name(), t.Name)
	}
	t.propCache[key] = ps
	return ps, nil
}

func (t *TableOrViewMetadata) computeSet(info *typeinfo.Info, mask Mask) *PropertySet {
	ps := &PropertySet{}
	for i := range t.Columns {
		col := &t.Columns[i]
		prop, ok := info.Property(col.Name)
		if !ok || prop.Decompose {
			continue
		}
		if !mask.admits(col, prop) {
			continue
		}
		ps.Pairs = append(ps.Pairs, ColumnProperty{Column: col, Property: prop})
	}
	// A type with no declared keys falls back to the table's primary key.
	if mask == MaskDeclaredKey && len(ps.Pairs) == 0 {
		return t.computeSet(info, MaskPrimaryKey)
	}
	return ps
}

// propertyComputations reports how many times PropertiesFor has computed a
// set rather than serving it from cache. Used by tests to verify idempotence.
func (t *TableOrViewMetadata) propertyComputations() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.computed
}
