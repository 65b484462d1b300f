// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package token

import "fmt"

// RowCountMismatchError reports that a statement affected a different number
// of rows than the caller expected. The statement has already executed when
// the error is raised; this layer does not roll it back.
type RowCountMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *RowCountMismatchError) Error() string {
	return fmt.Sprintf("expected %d affected rows, got %d", e.Expected, e.Actual)
}

// CheckAffectedRowCount compares the reported affected-row count against the
// token's expectation, if it has one.
func CheckAffectedRowCount(t *Token, actual int64) error {
	if t.ExpectedRows == nil {
		return nil
	}
	if *t.ExpectedRows != actual {
		return &RowCountMismatchError{Expected: *t.ExpectedRows, Actual: actual}
	}
	return nil
}
