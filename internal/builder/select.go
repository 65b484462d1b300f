// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package builder

import (
	"strings"

	"github.com/canonical/sqlchain/internal/dialect"
	"github.com/canonical/sqlchain/internal/metadata"
	"github.com/canonical/sqlchain/internal/token"
	"github.com/canonical/sqlchain/internal/typeinfo"
)

// Select describes a read operation. The zero-suffixed With methods return
// updated copies; a Select value is never mutated in place, so descriptors
// can be shared and reused across goroutines.
type Select struct {
	d      dialect.Dialect
	table  *metadata.TableOrViewMetadata
	reg    *typeinfo.Registry
	filter filterSpec
	sorts  []SortExpression
	skip   *int64
	take   *int64
	seed   *int64
	limit  LimitStrategy
	strict bool
}

// NewSelect returns a select descriptor for the given table. Descriptors are
// strict by default: unknown desired or filter columns are mapping errors.
func NewSelect(d dialect.Dialect, t *metadata.TableOrViewMetadata, reg *typeinfo.Registry) Select {
	return Select{d: d, table: t, reg: reg, strict: true}
}

// WithFilterValue sets a structured filter matched by equality against
// available columns. It clears any raw predicate.
func (s Select) WithFilterValue(v any) Select {
	s.filter = structuredFilter(v)
	return s
}

// WithRawFilter sets raw predicate text with bound arguments. It clears any
// structured filter. The text is interpolated verbatim.
func (s Select) WithRawFilter(pred string, args ...any) Select {
	s.filter = rawFilter(pred, args)
	return s
}

// WithSort appends a sort expression.
func (s Select) WithSort(column string, descending bool) Select {
	sorts := make([]SortExpression, len(s.sorts), len(s.sorts)+1)
	copy(sorts, s.sorts)
	s.sorts = append(sorts, SortExpression{Column: column, Descending: descending})
	return s
}

// WithSkip sets the number of rows to skip.
func (s Select) WithSkip(n int64) Select {
	s.skip = &n
	if s.limit == LimitNone {
		s.limit = LimitOffset
	}
	return s
}

// WithTake sets the number of rows to return.
func (s Select) WithTake(n int64) Select {
	s.take = &n
	if s.limit == LimitNone {
		s.limit = LimitOffset
	}
	return s
}

// WithLimitStrategy selects the paging syntax family.
func (s Select) WithLimitStrategy(strategy LimitStrategy) Select {
	s.limit = strategy
	return s
}

// WithSeed sets the sampling seed and selects seeded random sampling.
func (s Select) WithSeed(seed int64) Select {
	s.seed = &seed
	s.limit = LimitRandomSampleSeeded
	return s
}

// WithStrict sets the validation mode.
func (s Select) WithStrict(strict bool) Select {
	s.strict = strict
	return s
}

// Prepare resolves the descriptor against the metadata and produces an
// execution token. The materializer's desired columns prune the select list;
// a materializer with no preference selects every column.
func (s Select) Prepare(m token.Materializer) (*token.Token, error) {
	desired, ok := m.DesiredColumns()
	if !ok {
		return nil, metadata.Mappingf("cannot select into a materializer that requests no columns")
	}
	columns, err := resolveDesiredColumns(s.table, desired, s.strict)
	if err != nil {
		return nil, err
	}

	p := &paramList{d: s.d}
	where, err := whereClause(s.table, s.reg, s.filter, p)
	if err != nil {
		return nil, err
	}
	orderBy, err := orderByClause(s.table, s.sorts)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")

	var prelude *token.Token
	var limitClause string
	switch s.limit {
	case LimitNone:
	case LimitTopN:
		if !s.d.SupportsTopN() {
			return nil, metadata.Mappingf("%s does not support TOP-style paging", s.d.Name())
		}
		if s.take == nil {
			return nil, metadata.Mappingf("TOP-style paging requires a take count")
		}
		if s.skip != nil {
			return nil, metadata.Mappingf("TOP-style paging does not support skip")
		}
		b.WriteString(s.d.TopClause(*s.take))
	case LimitOffset:
		limitClause, err = s.d.LimitClause(s.skip, s.take, orderBy != "")
		if err != nil {
			return nil, err
		}
	case LimitRandomSample, LimitRandomSampleSeeded:
		if orderBy != "" {
			return nil, metadata.Mappingf("cannot combine sort expressions with random sampling")
		}
		var seed *int64
		if s.limit == LimitRandomSampleSeeded {
			if s.seed == nil {
				return nil, metadata.Mappingf("seeded random sampling requires a seed")
			}
			seed = s.seed
		}
		orderBy, prelude, err = s.d.RandomOrder(seed)
		if err != nil {
			return nil, err
		}
		limitClause, err = s.d.LimitClause(s.skip, s.take, true)
		if err != nil {
			return nil, err
		}
	}

	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.table.QuotedName)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	b.WriteString(limitClause)

	tok := &token.Token{
		SQL:     b.String(),
		Command: token.Text,
		Params:  p.list,
		Lock:    token.LockRead,
		HasRows: true,
	}
	if prelude != nil {
		return prelude.Then(tok), nil
	}
	return tok, nil
}
