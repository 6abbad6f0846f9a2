package query

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/layers"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	r, err := layers.New(layers.Defaults())
	if err != nil {
		t.Fatalf("layers.New: %v", err)
	}
	return NewBuilder(r, "parcels")
}

func mustContain(t *testing.T, sql string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(sql, p) {
			t.Fatalf("sql missing %q:\n%s", p, sql)
		}
	}
}

func TestBuild_LargestN(t *testing.T) {
	b := newBuilder(t)
	c, err := NewLargestN(10)
	if err != nil {
		t.Fatalf("NewLargestN: %v", err)
	}
	p, err := b.Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if p.Tiers.Primary.Table != "parcels_low" || p.Tiers.Primary.Tier != TierLow {
		t.Fatalf("primary=%+v want parcels_low/low", p.Tiers.Primary)
	}
	if p.Tiers.Fallback == nil || p.Tiers.Fallback.Table != "parcels" {
		t.Fatalf("fallback=%+v want parcels", p.Tiers.Fallback)
	}
	if p.EscalateOnEmpty {
		t.Fatalf("criteria ops must not escalate on empty")
	}
	sql := p.Tiers.Primary.SQL
	mustContain(t, sql,
		`FROM "parcels_low" AS t`,
		`ST_Area(t."geometry") AS area_sqm`,
		`t."ID_DZIALKI"::text AS feature_id`,
		`ORDER BY area_sqm DESC`,
		`LIMIT $1`,
		`to_jsonb(t) - 'geometry'`,
	)
	if diff := cmp.Diff([]any{10}, p.Tiers.Primary.Args); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}
	if strings.Contains(sql, "10") {
		t.Fatalf("n interpolated into sql: %s", sql)
	}
}

func TestBuild_AboveArea_BoundExclusive(t *testing.T) {
	b := newBuilder(t)
	p, err := b.Build(AboveArea{MinArea: 1500.5})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sql := p.Tiers.Primary.SQL
	mustContain(t, sql, `WHERE ST_Area(t."geometry") > $1`, `ORDER BY area_sqm DESC`)
	if strings.Contains(sql, "LIMIT") || strings.Contains(sql, ">=") {
		t.Fatalf("unexpected limit or inclusive bound: %s", sql)
	}
	if diff := cmp.Diff([]any{1500.5}, p.Tiers.Primary.Args); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}
}

func TestBuild_NearLayer_UsesAuthoritativeReference(t *testing.T) {
	b := newBuilder(t)
	p, err := b.Build(NearLayer{Layer: "gpz", RadiusMeters: 250})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Reference == nil || p.Reference.Name != "gpz_POLSKA" {
		t.Fatalf("reference=%+v", p.Reference)
	}
	mustContain(t, p.Tiers.Primary.SQL,
		`EXISTS (SELECT 1 FROM "gpz_110kv" AS r WHERE ST_DWithin(t."geometry", r."geom", $1))`)
	mustContain(t, p.Tiers.Fallback.SQL, `FROM "parcels" AS t`, `"gpz_110kv"`)
	if strings.Contains(p.Tiers.Primary.SQL, "ORDER BY") {
		t.Fatalf("near layer must not impose ordering")
	}
}

func TestBuild_WithoutIntersection(t *testing.T) {
	b := newBuilder(t)
	p, err := b.Build(WithoutIntersection{Obstacle: "budynki"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	mustContain(t, p.Tiers.Primary.SQL,
		`NOT EXISTS (SELECT 1 FROM "buildings" AS o WHERE ST_Intersects(t."geometry", o."geometry"))`)
	if len(p.Tiers.Primary.Args) != 0 {
		t.Fatalf("args=%v want none", p.Tiers.Primary.Args)
	}
	if p.Target.Name != "parcels" {
		t.Fatalf("target=%s want default parcels", p.Target.Name)
	}
}

func TestBuild_FullLayer(t *testing.T) {
	b := newBuilder(t)

	p, err := b.Build(FullLayer{Layer: "natura 2000"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !p.EscalateOnEmpty {
		t.Fatalf("full layer must escalate on empty")
	}
	if p.Tiers.Fallback != nil {
		t.Fatalf("natura has no companion; fallback=%+v", p.Tiers.Fallback)
	}
	mustContain(t, p.Tiers.Primary.SQL, `FROM "natura 2000" AS t`)
	if strings.Contains(p.Tiers.Primary.SQL, "WHERE") || strings.Contains(p.Tiers.Primary.SQL, "ORDER") {
		t.Fatalf("full layer must be an unfiltered scan: %s", p.Tiers.Primary.SQL)
	}

	p, err = b.Build(FullLayer{Layer: "parcels", SkipCompanion: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Tiers.Primary.Table != "parcels" || p.Tiers.Fallback != nil {
		t.Fatalf("skip companion should use only the authoritative table: %+v", p.Tiers)
	}
}

func TestBuild_QuotesHostileIdentifiers(t *testing.T) {
	r, err := layers.New([]layers.Descriptor{{
		Name: "odd", Table: `we"ird`, GeomColumn: `g'eom`, IDColumn: "id",
	}})
	if err != nil {
		t.Fatalf("layers.New: %v", err)
	}
	p, err := NewBuilder(r, "odd").Build(FullLayer{Layer: "odd"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	mustContain(t, p.Tiers.Primary.SQL, `FROM "we""ird" AS t`, `to_jsonb(t) - 'g''eom'`)
}

func TestBuild_UnknownLayer(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Build(NearLayer{Layer: "xyz", RadiusMeters: 10})
	if !geoerr.Is(err, geoerr.KindInvalidLayerName) {
		t.Fatalf("err=%v want InvalidLayerName", err)
	}
}

func TestConstructors_Validate(t *testing.T) {
	if _, err := NewLargestN(0); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("n=0 err=%v", err)
	}
	if _, err := NewAboveArea(-1); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("min_area<0 err=%v", err)
	}
	if _, err := NewAboveArea(0); err != nil {
		t.Fatalf("min_area=0 must be accepted: %v", err)
	}
	if _, err := NewNearLayer("gpz", 0); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("radius=0 err=%v", err)
	}
	if _, err := NewWithoutIntersection("", " "); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("blank obstacle err=%v", err)
	}
	if _, err := NewFullLayer("", false); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("blank layer err=%v", err)
	}

	// literals bypassing constructors are still rejected
	if _, err := newBuilder(t).Build(LargestN{N: -3}); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("Build(LargestN{-3}) err=%v", err)
	}
}
