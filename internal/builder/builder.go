// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package builder

import (
	"reflect"
	"strings"

	"github.com/canonical/sqlchain/internal/dialect"
	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
	"github.com/canonical/sqlchain/internal/typeinfo"
)

// SortExpression is one ORDER BY term.
type SortExpression struct {
	Column     string
	Descending bool
}

// LimitStrategy selects the paging syntax family for a select.
type LimitStrategy int

const (
	// LimitNone applies no paging.
	LimitNone LimitStrategy = iota
	// LimitOffset pages with the dialect's skip/take syntax.
	LimitOffset
	// LimitTopN takes the first N rows with a TOP-style prefix. No skip.
	LimitTopN
	// LimitRandomSample orders rows randomly before applying take.
	LimitRandomSample
	// LimitRandomSampleSeeded is LimitRandomSample with a deterministic,
	// reseedable ordering.
	LimitRandomSampleSeeded
)

// filterSpec holds at most one filter representation: a structured value
// matched by equality against available columns, or raw predicate text with
// bound arguments. Setting one representation clears the other.
type filterSpec struct {
	value   any
	raw     string
	rawArgs []any
	set     bool
}

func structuredFilter(v any) filterSpec {
	return filterSpec{value: v, set: true}
}

func rawFilter(pred string, args []any) filterSpec {
	return filterSpec{raw: pred, rawArgs: args, set: true}
}

// paramList accumulates bound parameters and renders their dialect markers.
type paramList struct {
	d    dialect.Dialect
	list []token.Parameter
}

// add binds a value and returns its rendered placeholder.
func (p *paramList) add(value any) string {
	text, name := p.d.Placeholder(len(p.list) + 1)
	p.list = append(p.list, token.Parameter{Name: name, Value: value})
	return text
}

// addRaw binds an argument of a raw predicate or expression. The marker in
// the raw text is the caller's; for named-parameter dialects the assigned
// names follow the same numbering, so raw text can reference them in order.
func (p *paramList) addRaw(value any) {
	_, name := p.d.Placeholder(len(p.list) + 1)
	p.list = append(p.list, token.Parameter{Name: name, Value: value})
}

// resolveDesiredColumns resolves the materializer's desired columns against
// the table. In strict mode an unknown desired column is a mapping error; in
// lenient mode it is silently ignored. A nil desired list means "no
// preference" and resolves to every column.
func resolveDesiredColumns(t *metadata.TableOrViewMetadata, desired []string, strict bool) ([]string, error) {
	if desired == nil {
		quoted := make([]string, len(t.Columns))
		for i := range t.Columns {
			quoted[i] = t.Columns[i].QuotedName
		}
		return quoted, nil
	}
	var quoted []string
	for _, name := range desired {
		col, ok := t.TryGetColumn(name)
		if !ok {
			if strict {
				return nil, metadata.Mappingf("column %q not found on %s", name, t.Name)
			}
			continue
		}
		quoted = append(quoted, col.QuotedName)
	}
	if len(quoted) == 0 {
		return nil, metadata.Mappingf("no desired columns found on %s", t.Name)
	}
	return quoted, nil
}

// checkWriteMapping enforces the strict write rule: every mapped property of
// the type must have a column on the table.
func checkWriteMapping(t *metadata.TableOrViewMetadata, info *typeinfo.Info) error {
	for _, prop := range info.Properties {
		if prop.Decompose {
			continue
		}
		if _, ok := t.TryGetColumn(prop.Column); !ok {
			return metadata.Mappingf("no column on %s for property %q of %s", t.Name, prop.Name, info.Type.Name())
		}
	}
	return nil
}

// derefValue returns the addressed struct value. A typed nil pointer has a
// type the registry accepts but no fields to read, so it is rejected here
// rather than left to panic on field access.
func derefValue(value any) (reflect.Value, error) {
	v := reflect.Indirect(reflect.ValueOf(value))
	if !v.IsValid() {
		return reflect.Value{}, metadata.Mappingf("cannot use nil %T value", value)
	}
	return v, nil
}

// whereClause renders the filter as a WHERE clause body and binds its
// parameters. Structured filters emit one predicate per matched property,
// ANDed, with nil values rendered as IS NULL and everything else bound as a
// parameter. Raw predicate text is interpolated verbatim; it is the caller's
// explicit opt-in escape hatch.
func whereClause(t *metadata.TableOrViewMetadata, reg *typeinfo.Registry, f filterSpec, p *paramList) (string, error) {
	if !f.set {
		return "", nil
	}
	if f.raw != "" {
		for _, arg := range f.rawArgs {
			p.addRaw(arg)
		}
		return f.raw, nil
	}
	preds, err := equalityPredicates(t, reg, f.value, p)
	if err != nil {
		return "", err
	}
	return strings.Join(preds, " AND "), nil
}

// equalityPredicates renders one equality (or IS NULL) predicate per
// property of the filter value that matches an available column. Matching
// zero columns is a mapping error, not a match-everything filter.
func equalityPredicates(t *metadata.TableOrViewMetadata, reg *typeinfo.Registry, value any, p *paramList) ([]string, error) {
	var preds []string
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Map:
		// Iterate table columns so predicate order is deterministic.
		keys := make(map[string]reflect.Value, v.Len())
		for _, k := range v.MapKeys() {
			if k.Kind() != reflect.String {
				return nil, metadata.Mappingf("cannot filter with map keyed by %s, need string keys", k.Kind())
			}
			keys[strings.ToLower(k.String())] = v.MapIndex(k)
		}
		for i := range t.Columns {
			col := &t.Columns[i]
			mv, ok := keys[strings.ToLower(col.Name)]
			if !ok {
				continue
			}
			preds = append(preds, predicate(col, mv.Interface(), p))
		}
	case reflect.Struct, reflect.Pointer:
		info, err := reg.LookupValue(value)
		if err != nil {
			return nil, err
		}
		sv, err := derefValue(value)
		if err != nil {
			return nil, err
		}
		for _, prop := range info.Properties {
			if prop.Decompose {
				continue
			}
			col, ok := t.TryGetColumn(prop.Column)
			if !ok {
				continue
			}
			preds = append(preds, predicate(col, sv.Field(prop.Index).Interface(), p))
		}
	default:
		return nil, metadata.Mappingf("cannot filter with %s, need struct or map", reflect.ValueOf(value).Kind())
	}
	if len(preds) == 0 {
		return nil, metadata.Mappingf("no properties of the filter match columns of %s", t.Name)
	}
	return preds, nil
}

// predicate renders one column predicate. A nil value becomes IS NULL and
// binds no parameter; anything else is bound.
func predicate(col *metadata.ColumnMetadata, value any, p *paramList) string {
	if isNilValue(value) {
		return col.QuotedName + " IS NULL"
	}
	return col.QuotedName + " = " + p.add(value)
}

func isNilValue(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// orderByClause validates the sort columns and renders the ORDER BY body.
func orderByClause(t *metadata.TableOrViewMetadata, sorts []SortExpression) (string, error) {
	if len(sorts) == 0 {
		return "", nil
	}
	terms := make([]string, len(sorts))
	for i, s := range sorts {
		col, ok := t.TryGetColumn(s.Column)
		if !ok {
			return "", metadata.Mappingf("sort column %q not found on %s", s.Column, t.Name)
		}
		terms[i] = col.QuotedName
		if s.Descending {
			terms[i] += " DESC"
		}
	}
	return strings.Join(terms, ", "), nil
}

// keyPairs returns the declared-key column/property pairs used to address
// the row represented by value.
func keyPairs(t *metadata.TableOrViewMetadata, reg *typeinfo.Registry, value any) (*metadata.PropertySet, reflect.Value, error) {
	info, err := reg.LookupValue(value)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	ps, err := t.PropertiesFor(info, metadata.MaskDeclaredKey)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	sv, err := derefValue(value)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return ps, sv, nil
}
