// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"reflect"
	"sync"

	"github.com/canonical/sqlchain/internal/materialize"
)

// planKey identifies one cached binding plan. The full statement text is
// part of the key because plans are never invalidated; a different column
// list always means a different statement.
type planKey struct {
	sql string
	typ reflect.Type
}

// planCache holds the binding plans of a DataSource. It is append-only and
// safe for concurrent use.
type planCache struct {
	mutex sync.RWMutex
	plans map[planKey]*materialize.Plan
}

func newPlanCache() *planCache {
	return &planCache{plans: map[planKey]*materialize.Plan{}}
}

// lookup returns the binding plan for the statement and the binder's target
// type, building and caching it on first use. Concurrent builders of the
// same key race harmlessly; the loser's plan is discarded.
func (c *planCache) lookup(stmtSQL string, binder *materialize.Binder, columns []string) (*materialize.Plan, error) {
	key := planKey{sql: stmtSQL, typ: binder.Type()}
	c.mutex.RLock()
	plan, found := c.plans[key]
	c.mutex.RUnlock()
	if found {
		return plan, nil
	}

	plan, err := materialize.BuildPlan(binder, columns)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if winner, found := c.plans[key]; found {
		return winner, nil
	}
	c.plans[key] = plan
	return plan, nil
}
