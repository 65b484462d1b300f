// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package materialize reads row cursors into caller-defined struct shapes.
//
// Two tiers produce identical results: an interpreted tier that matches
// columns to properties by name on every row, and a planned tier that
// resolves the matching once per (statement, target type) pair and replays
// it. The planned tier is purely a performance optimization.
package materialize
