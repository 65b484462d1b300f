// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package metadata

import "fmt"

// MappingError reports that a requested column, property or filter shape
// could not be resolved against the available metadata. Mapping errors are
// always surfaced to the caller and never retried.
type MappingError struct {
	msg string
}

func (e *MappingError) Error() string {
	return e.msg
}

// Mappingf returns a new MappingError with a formatted message. It is shared
// with sibling packages that raise mapping errors against this taxonomy.
func Mappingf(format string, args ...any) *MappingError {
	return &MappingError{msg: fmt.Sprintf(format, args...)}
}
