// Package executor runs compiled spatial plans against the store and applies
// the resolution-tier fallback policy.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/model"
	"github.com/mohammed-shakir/geoquery/internal/core/observability"
	mylog "github.com/mohammed-shakir/geoquery/internal/logger"
	"github.com/mohammed-shakir/geoquery/internal/query"
)

// FeatureSource executes one statement and returns its rows.
type FeatureSource interface {
	Features(ctx context.Context, stmt query.Statement) ([]model.RawFeature, error)
}

type Interface interface {
	Execute(ctx context.Context, p query.Plan) (model.RawFeatureSet, error)
}

type Executor struct {
	logger   *slog.Logger
	src      FeatureSource
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, src FeatureSource) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger:   logger,
		src:      src,
		startNow: time.Now,
	}
}

// Execute runs the plan's primary statement and, at most once, its fallback.
// The fallback runs when the primary fails, or when it returns nothing and
// the plan escalates on empty results.
func (e *Executor) Execute(ctx context.Context, p query.Plan) (model.RawFeatureSet, error) {
	ctx = mylog.WithLayer(mylog.WithOperation(ctx, string(p.Op)), p.Target.Name)

	rows, err := e.attempt(ctx, p, p.Tiers.Primary)
	stmt := p.Tiers.Primary

	switch {
	case err != nil && p.Tiers.Fallback != nil:
		e.logger.WarnContext(ctx, "primary tier failed, retrying authoritative table",
			"table", stmt.Table, "fallback", p.Tiers.Fallback.Table, "err", err)
		primaryErr := err
		stmt = *p.Tiers.Fallback
		rows, err = e.attempt(ctx, p, stmt)
		if err != nil {
			err = errors.Join(primaryErr, err)
		}
	case err == nil && len(rows) == 0 && p.EscalateOnEmpty && p.Tiers.Fallback != nil:
		e.logger.InfoContext(ctx, "primary tier empty, escalating",
			"table", stmt.Table, "fallback", p.Tiers.Fallback.Table)
		stmt = *p.Tiers.Fallback
		rows, err = e.attempt(ctx, p, stmt)
	}

	if err != nil {
		return model.RawFeatureSet{}, geoerr.SpatialQuery(string(p.Op), p.Params, err)
	}
	if len(rows) == 0 && p.EscalateOnEmpty {
		return model.RawFeatureSet{}, geoerr.LayerNotFound(p.Target.Name, stmt.Table)
	}

	return model.RawFeatureSet{
		Op:       string(p.Op),
		Layer:    p.Target.Name,
		Table:    stmt.Table,
		Tier:     string(stmt.Tier),
		IDColumn: p.Target.IDColumn,
		Features: rows,
	}, nil
}

func (e *Executor) attempt(ctx context.Context, p query.Plan, stmt query.Statement) ([]model.RawFeature, error) {
	start := e.startNow()
	rows, err := e.src.Features(ctx, stmt)
	dur := e.startNow().Sub(start)

	observability.IncQueryAttempt(string(p.Op), string(stmt.Tier), err, len(rows) == 0)
	observability.ObserveUpstreamLatency("postgis", err, dur.Seconds())
	e.logger.DebugContext(ctx, "spatial query attempt",
		"table", stmt.Table,
		"tier", string(stmt.Tier),
		"rows", len(rows),
		"duration", dur.String(),
		"ok", err == nil)
	return rows, err
}
