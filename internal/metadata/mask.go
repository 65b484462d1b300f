// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package metadata

import "github.com/canonical/sqlchain/internal/typeinfo"

// Mask selects a subset of the column/property join of a table and a type.
type Mask int

const (
	// MaskAll admits every mapped pair.
	MaskAll Mask = iota
	// MaskPrimaryKey admits pairs whose column is part of the primary key.
	// The filtered set must not be empty.
	MaskPrimaryKey
	// MaskNonPrimaryKey admits pairs whose column is not part of the
	// primary key.
	MaskNonPrimaryKey
	// MaskDeclaredKey admits pairs whose property carries the "key" tag
	// option, falling back to the primary key columns when the type
	// declares no keys. The filtered set must not be empty.
	MaskDeclaredKey
	// MaskUpdatable admits pairs that an UPDATE may set: not key, not
	// identity, not computed.
	MaskUpdatable
	// MaskInsertable admits pairs that an INSERT may provide: not
	// identity, not computed.
	MaskInsertable
)

func (m Mask) String() string {
	switch m {
	case MaskAll:
		return "properties"
	case MaskPrimaryKey:
		return "primary key properties"
	case MaskNonPrimaryKey:
		return "non-key properties"
	case MaskDeclaredKey:
		return "declared key properties"
	case MaskUpdatable:
		return "updatable properties"
	case MaskInsertable:
		return "insertable properties"
	}
	return "unknown mask"
}

// requiresMatch reports whether an empty filtered set is a mapping error.
func (m Mask) requiresMatch() bool {
	return m == MaskPrimaryKey || m == MaskDeclaredKey
}

func (m Mask) admits(col *ColumnMetadata, prop *typeinfo.Property) bool {
	switch m {
	case MaskAll:
		return true
	case MaskPrimaryKey:
		return col.IsPrimaryKey
	case MaskNonPrimaryKey:
		return !col.IsPrimaryKey
	case MaskDeclaredKey:
		return prop.IsKey
	case MaskUpdatable:
		return !col.IsPrimaryKey && !col.IsIdentity && !col.IsComputed && !prop.IsKey
	case MaskInsertable:
		return !col.IsIdentity && !col.IsComputed
	}
	return false
}
