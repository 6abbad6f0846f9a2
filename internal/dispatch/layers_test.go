package dispatch

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/geoquery/internal/core/executor"
	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/model"
	"github.com/mohammed-shakir/geoquery/internal/layers"
	h3mapper "github.com/mohammed-shakir/geoquery/internal/mapper/h3"
	"github.com/mohammed-shakir/geoquery/internal/query"
	"github.com/mohammed-shakir/geoquery/internal/shaper"
)

// central Poland in EPSG:2180
var warsawBox = &model.BBox{X1: 630000, Y1: 480000, X2: 645000, Y2: 495000, SRID: 2180}

type fakeStore struct {
	stats      model.AreaStats
	bbox       *model.BBox
	boundsErr  map[string]error
	counts     model.ValidationCounts
	buckets    []int64
	err        error
	calls      atomic.Int32
	thresholds []float64
}

func (f *fakeStore) AreaStats(_ context.Context, _ layers.Descriptor, _ string) (model.AreaStats, error) {
	f.calls.Add(1)
	return f.stats, f.err
}

func (f *fakeStore) Bounds(_ context.Context, d layers.Descriptor, _ string) (*model.BBox, error) {
	f.calls.Add(1)
	if err := f.boundsErr[d.Name]; err != nil {
		return nil, err
	}
	return f.bbox, nil
}

func (f *fakeStore) ValidationCounts(_ context.Context, _ layers.Descriptor, _ string) (model.ValidationCounts, error) {
	f.calls.Add(1)
	return f.counts, f.err
}

func (f *fakeStore) AreaDistribution(_ context.Context, _ layers.Descriptor, _ string, th []float64) ([]model.AreaBucket, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.thresholds = th
	out := make([]model.AreaBucket, len(th)+1)
	lo := 0.0
	for i, t := range th {
		out[i] = model.AreaBucket{Min: lo, Max: t}
		lo = t
	}
	out[len(th)] = model.AreaBucket{Min: lo}
	for i := range out {
		if i < len(f.buckets) {
			out[i].Count = f.buckets[i]
		}
	}
	return out, nil
}

func newLayerService(t *testing.T, st LayerStore, src *fakeSource) *LayerService {
	t.Helper()
	reg := registry(t)
	if src == nil {
		src = &fakeSource{}
	}
	sh := shaper.New(shaper.Config{NativeSRID: 2180, H3Res: 9}, h3mapper.New())
	return NewLayerService(reg, st, query.NewBuilder(reg, "parcels"), executor.New(nil, src), sh,
		h3mapper.New(), LayerConfig{CoverageRes: 5}, nil)
}

func TestListLayers_BoundsAndWarnings(t *testing.T) {
	st := &fakeStore{bbox: warsawBox, boundsErr: map[string]error{"natura2000": errors.New("relation does not exist")}}
	s := newLayerService(t, st, nil)

	got, err := s.ListLayers(context.Background())
	if err != nil {
		t.Fatalf("ListLayers: %v", err)
	}
	if len(got) != len(layers.Defaults()) {
		t.Fatalf("layers=%d", len(got))
	}
	for i, li := range got {
		if li.Name != layers.Defaults()[i].Name {
			t.Fatalf("order changed at %d: %s", i, li.Name)
		}
		if li.Name == "natura2000" {
			if li.Bounds != nil || li.Warning == "" {
				t.Fatalf("failing layer=%+v want warning and no bounds", li)
			}
			continue
		}
		b := li.Bounds
		if b == nil || li.Warning != "" {
			t.Fatalf("%s: bounds=%v warning=%q", li.Name, b, li.Warning)
		}
		if b.MinLon < 20.5 || b.MaxLon > 21.5 || b.MinLat < 52 || b.MaxLat > 52.5 || b.MinLon >= b.MaxLon {
			t.Fatalf("%s: bounds %+v not around Warsaw", li.Name, b)
		}
	}
}

func TestGetLayer_LowResChoosesTier(t *testing.T) {
	src := &fakeSource{rows: 3}
	s := newLayerService(t, &fakeStore{}, src)

	res, err := s.GetLayer(context.Background(), "działki", false)
	if err != nil {
		t.Fatalf("GetLayer: %v", err)
	}
	if res.Table != "parcels" || res.Mode != shaper.ModeMap || res.Count != 3 {
		t.Fatalf("res=%+v", res)
	}

	res, err = s.GetLayer(context.Background(), "parcels", true)
	if err != nil {
		t.Fatalf("GetLayer low: %v", err)
	}
	if res.Table != "parcels_low" || res.Tier != "low" {
		t.Fatalf("low res served from %s/%s", res.Table, res.Tier)
	}

	if _, err := s.GetLayer(context.Background(), "xyz", true); !geoerr.Is(err, geoerr.KindInvalidLayerName) {
		t.Fatalf("err=%v want InvalidLayerName", err)
	}
}

func TestGetLayer_EmptyIsNotFound(t *testing.T) {
	s := newLayerService(t, &fakeStore{}, &fakeSource{})
	_, err := s.GetLayer(context.Background(), "gpz", false)
	if !geoerr.Is(err, geoerr.KindLayerNotFound) {
		t.Fatalf("err=%v want LayerNotFound", err)
	}
}

func TestGetLayerStatistics(t *testing.T) {
	st := &fakeStore{
		bbox: warsawBox,
		stats: model.AreaStats{
			Count: 120, WithGeometry: 118, TotalArea: 1234567.891,
			AvgArea: 10462.4397, MinArea: 12.345, MaxArea: 99999.999, MedianArea: 8000.004,
		},
	}
	s := newLayerService(t, st, nil)

	got, err := s.GetLayerStatistics(context.Background(), "dzialki")
	if err != nil {
		t.Fatalf("GetLayerStatistics: %v", err)
	}
	if got.Layer != "parcels" || got.FeatureCount != 120 || got.WithGeometry != 118 {
		t.Fatalf("stats=%+v", got)
	}
	if got.TotalAreaSqm != 1234567.89 || got.TotalAreaHa != 123.4568 || got.AvgAreaSqm != 10462.44 {
		t.Fatalf("rounding: %+v", got)
	}
	if got.Bounds == nil || len(got.H3Cells) == 0 || got.H3Res != 5 {
		t.Fatalf("coverage: bounds=%v cells=%v res=%d", got.Bounds, got.H3Cells, got.H3Res)
	}
}

func TestGetLayerStatistics_EmptyLayerAndErrors(t *testing.T) {
	s := newLayerService(t, &fakeStore{}, nil)
	got, err := s.GetLayerStatistics(context.Background(), "parcels")
	if err != nil {
		t.Fatalf("GetLayerStatistics: %v", err)
	}
	if got.Bounds != nil || got.H3Cells == nil || len(got.H3Cells) != 0 {
		t.Fatalf("empty layer stats=%+v", got)
	}

	s = newLayerService(t, &fakeStore{err: errors.New("boom")}, nil)
	if _, err := s.GetLayerStatistics(context.Background(), "parcels"); !geoerr.Is(err, geoerr.KindSpatialQuery) {
		t.Fatalf("err=%v want SpatialQueryError", err)
	}

	s = newLayerService(t, &fakeStore{err: geoerr.DatabaseConnection(errors.New("refused"))}, nil)
	if _, err := s.GetLayerStatistics(context.Background(), "parcels"); !geoerr.Is(err, geoerr.KindDatabaseConnection) {
		t.Fatalf("typed error was rewrapped: %v", err)
	}
}

func TestValidateLayerData(t *testing.T) {
	cases := []struct {
		name     string
		counts   model.ValidationCounts
		valid    bool
		issues   int
		warnings []string
	}{
		{
			name:   "clean",
			counts: model.ValidationCounts{Total: 10, SRID: 2180, DistinctSRIDs: 1},
			valid:  true,
		},
		{
			name:   "empty",
			counts: model.ValidationCounts{},
			valid:  false, issues: 1,
		},
		{
			name:     "broken",
			counts:   model.ValidationCounts{Total: 10, NullGeometries: 2, DuplicateIDs: 3, InvalidGeometries: 1, SRID: 2180, DistinctSRIDs: 1},
			valid:    false,
			issues:   2,
			warnings: []string{"not valid"},
		},
		{
			name:     "srid zero",
			counts:   model.ValidationCounts{Total: 4, SRID: 0, DistinctSRIDs: 1},
			valid:    true,
			warnings: []string{"SRID is 0"},
		},
		{
			name:     "unsupported and mixed",
			counts:   model.ValidationCounts{Total: 4, SRID: 31370, DistinctSRIDs: 2, MissingIDs: 1},
			valid:    true,
			warnings: []string{"no ID_DZIALKI", "mixed SRIDs", "EPSG:31370"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newLayerService(t, &fakeStore{counts: c.counts, bbox: warsawBox}, nil)
			rep, err := s.ValidateLayerData(context.Background(), "parcels")
			if err != nil {
				t.Fatalf("ValidateLayerData: %v", err)
			}
			if rep.IsValid != c.valid || len(rep.Issues) != c.issues {
				t.Fatalf("valid=%v issues=%q", rep.IsValid, rep.Issues)
			}
			if len(rep.Warnings) != len(c.warnings) {
				t.Fatalf("warnings=%q want %d", rep.Warnings, len(c.warnings))
			}
			for i, w := range c.warnings {
				if !strings.Contains(rep.Warnings[i], w) {
					t.Fatalf("warning %d=%q want %q", i, rep.Warnings[i], w)
				}
			}
			if (c.counts.Total > 0) != (rep.Bounds != nil) {
				t.Fatalf("bounds=%v for total %d", rep.Bounds, c.counts.Total)
			}
		})
	}
}

func TestAnalyzeParcelDistribution(t *testing.T) {
	st := &fakeStore{buckets: []int64{1, 2, 3, 4, 0, 2}}
	s := newLayerService(t, st, nil)

	got, err := s.AnalyzeParcelDistribution(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("AnalyzeParcelDistribution: %v", err)
	}
	if diff := cmp.Diff(DefaultThresholds, st.thresholds); diff != "" {
		t.Fatalf("thresholds (-want +got):\n%s", diff)
	}
	if got.Layer != "parcels" || got.Total != 12 || len(got.Buckets) != 6 {
		t.Fatalf("dist=%+v", got)
	}
	var sum float64
	for _, b := range got.Buckets {
		sum += b.Percent
	}
	if math.Abs(sum-100) > 0.05 {
		t.Fatalf("percent sum=%v", sum)
	}
	first, last := got.Buckets[0], got.Buckets[5]
	if first.Label != "0-100 m²" || first.MaxSqm == nil || *first.MaxSqm != 100 || first.Percent != 8.33 {
		t.Fatalf("first=%+v", first)
	}
	if last.Label != "> 10000 m²" || last.MaxSqm != nil || last.Percent != 16.67 {
		t.Fatalf("last=%+v", last)
	}
}

func TestAnalyzeParcelDistribution_BadThresholds(t *testing.T) {
	for _, th := range [][]float64{{}, {100, 100}, {500, 100}, {-1, 10}, {0, 10}, {math.Inf(1)}} {
		st := &fakeStore{}
		s := newLayerService(t, st, nil)
		if _, err := s.AnalyzeParcelDistribution(context.Background(), "", th); !geoerr.Is(err, geoerr.KindValidation) {
			t.Fatalf("thresholds %v: err=%v want ValidationError", th, err)
		}
		if st.calls.Load() != 0 {
			t.Fatalf("thresholds %v reached the store", th)
		}
	}
}

func TestAnalyzeParcelDistribution_EmptyLayer(t *testing.T) {
	s := newLayerService(t, &fakeStore{}, nil)
	got, err := s.AnalyzeParcelDistribution(context.Background(), "parcels", []float64{1000})
	if err != nil {
		t.Fatalf("AnalyzeParcelDistribution: %v", err)
	}
	if got.Total != 0 || len(got.Buckets) != 2 || got.Buckets[0].Percent != 0 {
		t.Fatalf("dist=%+v", got)
	}
}
