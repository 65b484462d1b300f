// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package materialize

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/sqlchain/internal/token"
	"github.com/canonical/sqlchain/internal/typeinfo"
)

// ChangeTracker is implemented by target types that track modification
// state. After a binder populates an object it calls AcceptChanges so the
// freshly-loaded object starts out "unchanged", not "modified".
type ChangeTracker interface {
	AcceptChanges()
}

// Binder materializes rows of one struct type. It implements
// token.Materializer: its desired columns are the mapped columns of the
// type, including the prefixed columns of decomposed properties.
type Binder struct {
	reg  *typeinfo.Registry
	info *typeinfo.Info
	typ  reflect.Type
}

// NewBinder returns a binder for the struct type of sample.
func NewBinder(reg *typeinfo.Registry, sample any) (*Binder, error) {
	info, err := reg.LookupValue(sample)
	if err != nil {
		return nil, err
	}
	return &Binder{reg: reg, info: info, typ: info.Type}, nil
}

// NewBinderForType returns a binder for the given struct type. Pointer types
// are dereferenced.
func NewBinderForType(reg *typeinfo.Registry, t reflect.Type) (*Binder, error) {
	info, err := reg.Lookup(t)
	if err != nil {
		return nil, err
	}
	return &Binder{reg: reg, info: info, typ: info.Type}, nil
}

// Type returns the target struct type.
func (b *Binder) Type() reflect.Type {
	return b.typ
}

// DesiredColumns lists the mapped columns of the target type. Decomposed
// properties contribute one column per mapped property of the nested type,
// prefixed with the property's column name.
func (b *Binder) DesiredColumns() ([]string, bool) {
	cols, err := b.columnNames(b.info, "")
	if err != nil || len(cols) == 0 {
		// Fall back to "no preference": the builder selects everything
		// and binding skips what it cannot match.
		return nil, true
	}
	return cols, true
}

func (b *Binder) columnNames(info *typeinfo.Info, prefix string) ([]string, error) {
	var cols []string
	for _, p := range info.Properties {
		if !p.Decompose {
			cols = append(cols, prefix+p.Column)
			continue
		}
		nested, err := b.reg.Lookup(typeinfo.DerefType(p.Type))
		if err != nil {
			return nil, err
		}
		nestedCols, err := b.columnNames(nested, prefix+p.Column)
		if err != nil {
			return nil, err
		}
		cols = append(cols, nestedCols...)
	}
	return cols, nil
}

// BindAll reads every row of the cursor into new values of the target type,
// appending them to the slice pointed to by dest. The plan, when non-nil, is
// the cached fast path; a nil plan falls back to the interpreted tier. Both
// tiers produce identical output for the same rows.
func (b *Binder) BindAll(rows token.Cursor, plan *Plan, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("need pointer to slice, got %s", dv.Kind())
	}
	slice := dv.Elem()
	elemType := slice.Type().Elem()
	ptrElems := elemType.Kind() == reflect.Pointer
	if typeinfo.DerefType(elemType) != b.typ {
		return fmt.Errorf("cannot bind %s rows into slice of %s", b.typ, elemType)
	}

	for rows.Next() {
		obj := reflect.New(b.typ)
		if err := b.bindRow(rows, plan, obj.Elem()); err != nil {
			return err
		}
		finalize(obj)
		if ptrElems {
			slice = reflect.Append(slice, obj)
		} else {
			slice = reflect.Append(slice, obj.Elem())
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	dv.Elem().Set(slice)
	return nil
}

// BindFirst reads the first row of the cursor into the struct pointed to by
// dest and reports whether a row was found. Remaining rows are drained so
// chained tokens can proceed.
func (b *Binder) BindFirst(rows token.Cursor, plan *Plan, dest any) (bool, error) {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() || typeinfo.DerefType(dv.Type()) != b.typ {
		return false, fmt.Errorf("need pointer to %s, got %T", b.typ, dest)
	}
	if !rows.Next() {
		return false, rows.Err()
	}
	if err := b.bindRow(rows, plan, dv.Elem()); err != nil {
		return false, err
	}
	finalize(dv)
	for rows.Next() {
	}
	return true, rows.Err()
}

func (b *Binder) bindRow(rows token.Cursor, plan *Plan, target reflect.Value) error {
	if plan != nil {
		return plan.bind(rows, target)
	}
	return b.bindInterpreted(rows, target)
}

// bindInterpreted is the reflection-per-row tier: it matches each cursor
// column to a writable property by name, case-insensitively, skipping
// columns with no property and properties with no column. Strictness about
// missing mappings belongs to the builder, not here. Every column is scanned
// into an untyped holder and coerced into its field afterwards, so the
// same coercion table serves both tiers.
func (b *Binder) bindInterpreted(rows token.Cursor, target reflect.Value) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	holders := make([]any, len(cols))
	for i := range holders {
		holders[i] = new(any)
	}
	if err := rows.Scan(holders...); err != nil {
		return err
	}
	for i, col := range cols {
		field, ok, err := b.fieldForColumn(target, b.info, col)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		src := *holders[i].(*any)
		if err := coerceAssign(src, field); err != nil {
			return fmt.Errorf("cannot bind column %q: %s", col, err)
		}
	}
	return nil
}

// fieldForColumn resolves a column name to the field it binds, recursing
// into decomposed properties by prefix and allocating nil nested pointers on
// the way.
func (b *Binder) fieldForColumn(target reflect.Value, info *typeinfo.Info, column string) (reflect.Value, bool, error) {
	if prop, ok := info.Property(column); ok && !prop.Decompose {
		return target.Field(prop.Index), true, nil
	}
	// Try decomposed prefixes.
	for _, prop := range info.Properties {
		if !prop.Decompose || !strings.HasPrefix(strings.ToLower(column), strings.ToLower(prop.Column)) {
			continue
		}
		nestedType := typeinfo.DerefType(prop.Type)
		nestedInfo, err := b.reg.Lookup(nestedType)
		if err != nil {
			return reflect.Value{}, false, err
		}
		nested := target.Field(prop.Index)
		if prop.Type.Kind() == reflect.Pointer {
			if nested.IsNil() {
				nested.Set(reflect.New(nestedType))
			}
			nested = nested.Elem()
		}
		rest := column[len(prop.Column):]
		return b.fieldForColumn(nested, nestedInfo, rest)
	}
	return reflect.Value{}, false, nil
}

// finalize accepts changes on freshly-bound objects that track modification
// state.
func finalize(obj reflect.Value) {
	if ct, ok := obj.Interface().(ChangeTracker); ok {
		ct.AcceptChanges()
	}
}
