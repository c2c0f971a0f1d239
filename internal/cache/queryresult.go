package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rhema-dev/rhema/internal/query"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// QueryResultCache adapts Manager to internal/query's ResultCache
// interface, so the query executor never needs to know this package
// exists. It lives here rather than in internal/query to keep that
// package's only cache dependency a two-method interface it defines
// itself.
type QueryResultCache struct {
	mgr *Manager
	ctx context.Context
}

func NewQueryResultCache(mgr *Manager) *QueryResultCache {
	return &QueryResultCache{mgr: mgr, ctx: context.Background()}
}

type wireRow struct {
	Scope string      `json:"scope"`
	File  string      `json:"file"`
	Path  string       `json:"path"`
	Data  interface{} `json:"data"`
}

type wireResult struct {
	Single bool        `json:"single"`
	Value  interface{} `json:"value,omitempty"`
	Rows   []wireRow   `json:"rows,omitempty"`
}

func (c *QueryResultCache) Get(key string) (*query.Result, bool) {
	raw, ok := c.mgr.Get(c.ctx, NamespaceQueryResult, key)
	if !ok {
		return nil, false
	}
	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, false
	}
	result := &query.Result{Single: wire.Single}
	if wire.Single {
		result.Value = rhema.FromInterface(wire.Value)
	}
	for _, r := range wire.Rows {
		result.Rows = append(result.Rows, query.Row{
			Scope: r.Scope, File: r.File, Path: r.Path,
			Data: rhema.FromInterface(r.Data),
		})
	}
	return result, true
}

func (c *QueryResultCache) Set(key string, result *query.Result, ttl time.Duration) {
	wire := wireResult{Single: result.Single}
	if result.Single {
		wire.Value = result.Value.ToInterface()
	}
	for _, row := range result.Rows {
		wire.Rows = append(wire.Rows, wireRow{
			Scope: row.Scope, File: row.File, Path: row.Path,
			Data: row.Data.ToInterface(),
		})
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return
	}
	_ = c.mgr.Set(c.ctx, NamespaceQueryResult, key, data, ttl)
}
