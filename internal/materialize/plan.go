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

// Plan is the cached fast path for one (statement, target type) pair: the
// column-to-field resolution is done once, at plan build time, instead of
// per row. Plans are immutable and safe for concurrent reuse; the owning
// cache never invalidates them, so cache keys include the full statement
// text and the target type identity.
type Plan struct {
	steps []planStep
}

// planStep binds one cursor column. An empty path means the column has no
// matching property and its value is discarded.
type planStep struct {
	path []pathSeg
}

// pathSeg is one hop of a field traversal. deref marks pointer fields that
// must be allocated before descending.
type pathSeg struct {
	index int
	deref bool
}

// BuildPlan resolves the cursor's columns against the binder's target type.
// The cursor is not advanced; only its column metadata is read.
func BuildPlan(b *Binder, columns []string) (*Plan, error) {
	plan := &Plan{steps: make([]planStep, len(columns))}
	for i, col := range columns {
		path, _, err := b.resolvePath(b.info, col, nil)
		if err != nil {
			return nil, err
		}
		plan.steps[i] = planStep{path: path}
	}
	return plan, nil
}

// resolvePath maps a column name to a field traversal, recursing into
// decomposed properties by prefix.
func (b *Binder) resolvePath(info *typeinfo.Info, column string, prefix []pathSeg) ([]pathSeg, bool, error) {
	if prop, ok := info.Property(column); ok && !prop.Decompose {
		return append(append([]pathSeg(nil), prefix...), pathSeg{index: prop.Index}), true, nil
	}
	for _, prop := range info.Properties {
		if !prop.Decompose || !strings.HasPrefix(strings.ToLower(column), strings.ToLower(prop.Column)) {
			continue
		}
		nestedInfo, err := b.reg.Lookup(typeinfo.DerefType(prop.Type))
		if err != nil {
			return nil, false, err
		}
		seg := pathSeg{index: prop.Index, deref: prop.Type.Kind() == reflect.Pointer}
		return b.resolvePath(nestedInfo, column[len(prop.Column):], append(append([]pathSeg(nil), prefix...), seg))
	}
	return nil, false, nil
}

// bind scans the current row and assigns each column along its precomputed
// path.
func (p *Plan) bind(rows token.Cursor, target reflect.Value) error {
	holders := make([]any, len(p.steps))
	for i := range holders {
		holders[i] = new(any)
	}
	if err := rows.Scan(holders...); err != nil {
		return err
	}
	for i, step := range p.steps {
		if len(step.path) == 0 {
			continue
		}
		field := target
		for _, seg := range step.path {
			field = field.Field(seg.index)
			if seg.deref {
				if field.IsNil() {
					field.Set(reflect.New(field.Type().Elem()))
				}
				field = field.Elem()
			}
		}
		src := *holders[i].(*any)
		if err := coerceAssign(src, field); err != nil {
			return fmt.Errorf("cannot bind column %d: %s", i, err)
		}
	}
	return nil
}
