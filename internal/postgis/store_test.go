package postgis

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/geoquery/internal/core/model"
	"github.com/mohammed-shakir/geoquery/internal/layers"
)

var parcels = layers.Descriptor{
	Name: "parcels", Table: "parcels", GeomColumn: "geometry", IDColumn: "ID_DZIALKI",
}

func TestFeatureRow_ToFeature(t *testing.T) {
	r := featureRow{
		GeomWKB:   []byte{1, 2, 3},
		FeatureID: sql.NullString{String: "142301_1.0001.12", Valid: true},
		AreaSqm:   sql.NullFloat64{Float64: 1234.5, Valid: true},
		Attrs:     []byte(`{"ID_DZIALKI":"142301_1.0001.12","gmina":"Kampinos"}`),
	}
	f, err := r.toFeature()
	if err != nil {
		t.Fatalf("toFeature: %v", err)
	}
	if f.ID != "142301_1.0001.12" || f.Area != 1234.5 {
		t.Fatalf("got %+v", f)
	}
	if f.Attributes["gmina"] != "Kampinos" {
		t.Fatalf("attrs=%v", f.Attributes)
	}
}

func TestFeatureRow_NullsAndBadAttrs(t *testing.T) {
	f, err := featureRow{}.toFeature()
	if err != nil {
		t.Fatalf("empty row: %v", err)
	}
	if f.ID != "" || f.Area != 0 || f.Attributes != nil {
		t.Fatalf("null columns should map to zero values: %+v", f)
	}
	if _, err := (featureRow{Attrs: []byte("{")}).toFeature(); err == nil {
		t.Fatalf("expected error on malformed attrs")
	}
}

func TestStatsSQL(t *testing.T) {
	sql := statsSQL(parcels, "parcels_low")
	for _, want := range []string{
		`FROM "parcels_low" AS t`,
		`count(t."geometry") AS with_geometry`,
		`percentile_cont(0.5) WITHIN GROUP (ORDER BY ST_Area(t."geometry"))`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("missing %q in\n%s", want, sql)
		}
	}
}

func TestValidateSQL_QuotesIDColumn(t *testing.T) {
	sql := validateSQL(parcels, "parcels")
	if !strings.Contains(sql, `count(t."ID_DZIALKI") - count(DISTINCT t."ID_DZIALKI")`) {
		t.Fatalf("duplicate id expression missing:\n%s", sql)
	}
	if !strings.Contains(sql, `NOT ST_IsValid(t."geometry")`) {
		t.Fatalf("validity check missing:\n%s", sql)
	}
}

func TestBoundsAndDistributionSQL(t *testing.T) {
	d := layers.Descriptor{Table: `x"y`, GeomColumn: "geom", IDColumn: "id"}
	if s := boundsSQL(d, d.Table); !strings.Contains(s, `ST_Extent(t."geom")`) || !strings.Contains(s, `FROM "x""y" AS t`) {
		t.Fatalf("bounds sql:\n%s", s)
	}
	if s := distributionSQL(d, d.Table); !strings.Contains(s, `FROM unnest($1::float8[]) AS th WHERE ST_Area(t."geom") > th`) {
		t.Fatalf("distribution sql:\n%s", s)
	}
}

func TestBuckets(t *testing.T) {
	got := Buckets([]float64{100, 500, 1000})
	want := []model.AreaBucket{
		{Min: 0, Max: 100},
		{Min: 100, Max: 500},
		{Min: 500, Max: 1000},
		{Min: 1000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("buckets (-want +got):\n%s", diff)
	}
	if n := len(Buckets(nil)); n != 1 {
		t.Fatalf("no thresholds should give one open bucket, got %d", n)
	}
}

func TestCatalogName(t *testing.T) {
	var src layers.Source = Catalog{}
	if src.Name() != "db" {
		t.Fatalf("name=%q", src.Name())
	}
}
