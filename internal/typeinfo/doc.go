// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typeinfo extracts the database mapping of struct types from their
// "db" field tags. The mapping is generated once per type and cached in a
// Registry owned by the data source.
//
// The tag grammar is:
//
//	db:"column"            map the field to column
//	db:"column,key"        the field identifies the row (declared key)
//	db:"prefix_,decompose" bind a nested struct from prefixed columns
//	db:"column,omitempty"  skip the field on insert when it is zero
//	db:"-"                 never map the field
package typeinfo
