// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package materialize

// NoColumns is the sentinel materializer used by pure mutations with no
// read-back: it short-circuits SELECT and output generation entirely, and
// no row cursor is produced.
type NoColumns struct{}

// DesiredColumns returns the no-columns sentinel.
func (NoColumns) DesiredColumns() ([]string, bool) {
	return nil, false
}
