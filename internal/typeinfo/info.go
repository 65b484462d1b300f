// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"strings"
)

// Property represents a single database-mapped field of a struct type.
type Property struct {
	// Name is the name of the struct field.
	Name string

	// Column is the column name from the field's "db" tag.
	Column string

	// Index is the field index for reflect.Value.Field.
	Index int

	// Type is the declared type of the field.
	Type reflect.Type

	// IsKey is true when the field carries the "key" tag option. Key
	// properties stand in for primary-key columns on tables that do not
	// declare one.
	IsKey bool

	// Decompose is true when the field is a nested struct bound from
	// columns sharing the field's column name as a prefix.
	Decompose bool

	// OmitEmpty is true when "omitempty" is a property of the field's
	// "db" tag.
	OmitEmpty bool
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Properties holds the mapped fields in field declaration order.
	Properties []Property

	byColumn map[string]int
}

// Property returns the property mapped to the given column name. The match is
// case-insensitive.
func (info *Info) Property(column string) (*Property, bool) {
	i, ok := info.byColumn[strings.ToLower(column)]
	if !ok {
		return nil, false
	}
	return &info.Properties[i], true
}

// KeyProperties returns the properties carrying the "key" tag option.
func (info *Info) KeyProperties() []Property {
	var keys []Property
	for _, p := range info.Properties {
		if p.IsKey {
			keys = append(keys, p)
		}
	}
	return keys
}

// DerefType returns the element type of t if t is a pointer type, and t
// itself otherwise.
func DerefType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}
