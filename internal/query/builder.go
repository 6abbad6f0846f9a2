package query

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/mohammed-shakir/geoquery/internal/layers"
)

type Tier string

const (
	TierLow  Tier = "low"
	TierFull Tier = "full"
)

// Statement is one executable attempt against a single table.
type Statement struct {
	Tier  Tier
	Table string
	SQL   string
	Args  []any
}

// Tiers is the bounded fallback policy: Primary first, then Fallback at most
// once. Fallback is nil when the layer has no companion table.
type Tiers struct {
	Primary  Statement
	Fallback *Statement
}

type Plan struct {
	Op        Op
	Target    layers.Descriptor
	Reference *layers.Descriptor
	Params    map[string]any
	Tiers     Tiers
	// EscalateOnEmpty runs Fallback when Primary succeeds with no rows.
	EscalateOnEmpty bool
}

type Resolver interface {
	Resolve(name string) (layers.Descriptor, error)
}

type Builder struct {
	layers Resolver
	target string
}

// NewBuilder returns a builder whose criteria operations run against
// targetLayer unless the criteria name a target themselves.
func NewBuilder(r Resolver, targetLayer string) *Builder {
	if strings.TrimSpace(targetLayer) == "" {
		targetLayer = "parcels"
	}
	return &Builder{layers: r, target: targetLayer}
}

func (b *Builder) Build(c Criteria) (Plan, error) {
	if c == nil {
		return Plan{}, fmt.Errorf("build plan: nil criteria")
	}
	if err := c.validate(); err != nil {
		return Plan{}, err
	}

	targetName := b.target
	switch v := c.(type) {
	case FullLayer:
		targetName = v.Layer
	case WithoutIntersection:
		if v.Target != "" {
			targetName = v.Target
		}
	}
	target, err := b.layers.Resolve(targetName)
	if err != nil {
		return Plan{}, err
	}

	p := Plan{Op: c.Op(), Target: target, Params: c.Params()}

	var (
		predicate string
		order     bool
		limit     bool
		args      []any
	)
	switch v := c.(type) {
	case LargestN:
		order, limit = true, true
		args = []any{v.N}
	case AboveArea:
		predicate = fmt.Sprintf("ST_Area(t.%s) > $1", pq.QuoteIdentifier(target.GeomColumn))
		order = true
		args = []any{v.MinArea}
	case NearLayer:
		ref, err := b.layers.Resolve(v.Layer)
		if err != nil {
			return Plan{}, err
		}
		p.Reference = &ref
		predicate = fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS r WHERE ST_DWithin(t.%s, r.%s, $1))",
			pq.QuoteIdentifier(ref.Table),
			pq.QuoteIdentifier(target.GeomColumn),
			pq.QuoteIdentifier(ref.GeomColumn))
		args = []any{v.RadiusMeters}
	case WithoutIntersection:
		obs, err := b.layers.Resolve(v.Obstacle)
		if err != nil {
			return Plan{}, err
		}
		p.Reference = &obs
		predicate = fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s AS o WHERE ST_Intersects(t.%s, o.%s))",
			pq.QuoteIdentifier(obs.Table),
			pq.QuoteIdentifier(target.GeomColumn),
			pq.QuoteIdentifier(obs.GeomColumn))
	case FullLayer:
		p.EscalateOnEmpty = true
	default:
		return Plan{}, fmt.Errorf("build plan: unsupported criteria %T", c)
	}

	stmt := func(tier Tier, table string) Statement {
		return Statement{
			Tier:  tier,
			Table: table,
			SQL:   selectSQL(target, table, predicate, order, limit),
			Args:  args,
		}
	}

	skipLow := false
	if fl, ok := c.(FullLayer); ok {
		skipLow = fl.SkipCompanion
	}
	if low := target.LowTable(); low != "" && !skipLow {
		full := stmt(TierFull, target.Table)
		p.Tiers = Tiers{Primary: stmt(TierLow, low), Fallback: &full}
	} else {
		p.Tiers = Tiers{Primary: stmt(TierFull, target.Table)}
	}
	return p, nil
}

// selectSQL renders the shared projection. Identifiers come from the
// registry and are quoted; every value is a $n placeholder.
func selectSQL(d layers.Descriptor, table, predicate string, order, limit bool) string {
	geom := "t." + pq.QuoteIdentifier(d.GeomColumn)

	var sb strings.Builder
	sb.WriteString("SELECT ST_AsEWKB(")
	sb.WriteString(geom)
	sb.WriteString(") AS geom_wkb, t.")
	sb.WriteString(pq.QuoteIdentifier(d.IDColumn))
	sb.WriteString("::text AS feature_id, ST_Area(")
	sb.WriteString(geom)
	sb.WriteString(") AS area_sqm, to_jsonb(t) - ")
	sb.WriteString(pq.QuoteLiteral(d.GeomColumn))
	sb.WriteString(" AS attrs FROM ")
	sb.WriteString(pq.QuoteIdentifier(table))
	sb.WriteString(" AS t")
	if predicate != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(predicate)
	}
	if order {
		sb.WriteString(" ORDER BY area_sqm DESC, feature_id")
	}
	if limit {
		sb.WriteString(" LIMIT $1")
	}
	return sb.String()
}
