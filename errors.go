// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"database/sql"
	"errors"

	"github.com/canonical/sqlchain/internal/materialize"
	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
)

// ErrNoRows is returned by One and the read-back Into variants when no row
// matched.
var ErrNoRows = sql.ErrNoRows

// ErrContextDone is returned when an operation is attempted on a
// transaction context that has already been committed or rolled back.
var ErrContextDone = errors.New("transaction context already finished")

// MappingError reports a failure to map between object properties and
// database columns: an unknown table, a filter matching nothing, or a
// strict-mode violation.
type MappingError = metadata.MappingError

// RowCountMismatchError reports an operation that affected a different
// number of rows than the caller declared with WithExpectedRows.
type RowCountMismatchError = token.RowCountMismatchError

// ChangeTracker is implemented by target types that track modification
// state; materialized objects have AcceptChanges called after loading.
type ChangeTracker = materialize.ChangeTracker
