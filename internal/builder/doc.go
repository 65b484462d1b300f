// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package builder turns declarative operation descriptors into dialect-correct,
// parameterized statement text wrapped in execution tokens.
//
// Descriptors are immutable values: every With method returns an updated
// copy, so a descriptor can be branched and reused concurrently. Filter
// values are always bound as parameters; only identifiers (validated and
// quoted) and explicitly supplied raw predicate or set text are ever
// interpolated into the statement.
package builder
