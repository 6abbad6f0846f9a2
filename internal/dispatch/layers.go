package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/geoquery/internal/core/executor"
	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/model"
	"github.com/mohammed-shakir/geoquery/internal/layers"
	mylog "github.com/mohammed-shakir/geoquery/internal/logger"
	"github.com/mohammed-shakir/geoquery/internal/mapper"
	"github.com/mohammed-shakir/geoquery/internal/proj"
	"github.com/mohammed-shakir/geoquery/internal/query"
	"github.com/mohammed-shakir/geoquery/internal/shaper"
)

// LayerStore answers the aggregate queries behind the layer API.
type LayerStore interface {
	AreaStats(ctx context.Context, d layers.Descriptor, table string) (model.AreaStats, error)
	Bounds(ctx context.Context, d layers.Descriptor, table string) (*model.BBox, error)
	ValidationCounts(ctx context.Context, d layers.Descriptor, table string) (model.ValidationCounts, error)
	AreaDistribution(ctx context.Context, d layers.Descriptor, table string, thresholds []float64) ([]model.AreaBucket, error)
}

type Catalog interface {
	Resolve(name string) (layers.Descriptor, error)
	ListAll() []layers.Descriptor
}

// DefaultThresholds are the parcel-distribution bucket edges in square metres.
var DefaultThresholds = []float64{100, 500, 1000, 5000, 10000}

type LayerConfig struct {
	// NativeSRID is assumed when a table reports SRID 0.
	NativeSRID int
	// CoverageRes is the H3 resolution used for statistics coverage.
	CoverageRes int
	// BoundsConcurrency caps parallel bounds queries in ListLayers.
	BoundsConcurrency int
	// DistributionLayer is analysed when no layer is named.
	DistributionLayer string
}

type LayerService struct {
	catalog Catalog
	store   LayerStore
	planner Planner
	exec    executor.Interface
	shaper  Shaper
	cells   mapper.Interface
	cfg     LayerConfig
	log     *slog.Logger
}

func NewLayerService(c Catalog, st LayerStore, p Planner, ex executor.Interface, sh Shaper, cells mapper.Interface, cfg LayerConfig, log *slog.Logger) *LayerService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.NativeSRID == 0 {
		cfg.NativeSRID = proj.PUWG1992
	}
	if cfg.CoverageRes == 0 {
		cfg.CoverageRes = 4
	}
	if cfg.BoundsConcurrency <= 0 {
		cfg.BoundsConcurrency = 4
	}
	if cfg.DistributionLayer == "" {
		cfg.DistributionLayer = "parcels"
	}
	return &LayerService{catalog: c, store: st, planner: p, exec: ex, shaper: sh, cells: cells, cfg: cfg, log: log}
}

// Bounds is an extent in EPSG:4326.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

type LayerInfo struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"display_name,omitempty"`
	Description      string   `json:"description,omitempty"`
	Table            string   `json:"table"`
	Synonyms         []string `json:"synonyms"`
	HasLowResolution bool     `json:"has_low_resolution"`
	Bounds           *Bounds  `json:"bounds,omitempty"`
	Warning          string   `json:"warning,omitempty"`
}

// ListLayers returns the catalogue with bounds. A layer whose bounds cannot
// be read is still listed, with a warning.
func (s *LayerService) ListLayers(ctx context.Context) ([]LayerInfo, error) {
	ctx = mylog.WithOperation(ctx, "list_layers")
	descs := s.catalog.ListAll()
	out := make([]LayerInfo, len(descs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BoundsConcurrency)
	for i, d := range descs {
		out[i] = LayerInfo{
			Name:             d.Name,
			DisplayName:      d.DisplayName,
			Description:      d.Description,
			Table:            d.Table,
			Synonyms:         d.Synonyms,
			HasLowResolution: d.HasLowResolution,
		}
		g.Go(func() error {
			b, err := s.bounds(gctx, d)
			if err != nil {
				s.log.WarnContext(gctx, "layer bounds unavailable", "layer", d.Name, "err", err)
				out[i].Warning = "bounds unavailable"
				return nil
			}
			out[i].Bounds = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLayer returns every feature of a layer shaped for the map. lowRes lets
// the companion table answer first.
func (s *LayerService) GetLayer(ctx context.Context, name string, lowRes bool) (shaper.DisplayResult, error) {
	c, err := query.NewFullLayer(name, !lowRes)
	if err != nil {
		return shaper.DisplayResult{}, err
	}
	plan, err := s.planner.Build(c)
	if err != nil {
		return shaper.DisplayResult{}, err
	}
	raw, err := s.exec.Execute(ctx, plan)
	if err != nil {
		return shaper.DisplayResult{}, err
	}
	return s.shaper.Shape(raw, shaper.ModeMap, shaper.KindID)
}

type LayerStatistics struct {
	Layer         string      `json:"layer"`
	Table         string      `json:"table"`
	FeatureCount  int64       `json:"feature_count"`
	WithGeometry  int64       `json:"with_geometry"`
	TotalAreaSqm  float64     `json:"total_area_sqm"`
	TotalAreaHa   float64     `json:"total_area_ha"`
	AvgAreaSqm    float64     `json:"avg_area_sqm"`
	MinAreaSqm    float64     `json:"min_area_sqm"`
	MaxAreaSqm    float64     `json:"max_area_sqm"`
	MedianAreaSqm float64     `json:"median_area_sqm"`
	Bounds        *Bounds     `json:"bounds,omitempty"`
	H3Res         int         `json:"h3_res"`
	H3Cells       model.Cells `json:"h3_cells"`
}

func (s *LayerService) GetLayerStatistics(ctx context.Context, name string) (LayerStatistics, error) {
	d, err := s.catalog.Resolve(name)
	if err != nil {
		return LayerStatistics{}, err
	}
	ctx = mylog.WithLayer(mylog.WithOperation(ctx, "layer_statistics"), d.Name)

	st, err := s.store.AreaStats(ctx, d, d.Table)
	if err != nil {
		return LayerStatistics{}, spatial("layer_statistics", d, err)
	}
	out := LayerStatistics{
		Layer:         d.Name,
		Table:         d.Table,
		FeatureCount:  st.Count,
		WithGeometry:  st.WithGeometry,
		TotalAreaSqm:  round(st.TotalArea, 2),
		TotalAreaHa:   round(st.TotalArea/10000, 4),
		AvgAreaSqm:    round(st.AvgArea, 2),
		MinAreaSqm:    round(st.MinArea, 2),
		MaxAreaSqm:    round(st.MaxArea, 2),
		MedianAreaSqm: round(st.MedianArea, 2),
		H3Res:         s.cfg.CoverageRes,
		H3Cells:       model.Cells{},
	}

	b, err := s.bounds(ctx, d)
	if err != nil {
		return LayerStatistics{}, spatial("layer_statistics", d, err)
	}
	out.Bounds = b
	if b != nil && s.cells != nil {
		cells, err := s.cells.CellsForBBox(model.BBox{
			X1: b.MinLon, Y1: b.MinLat, X2: b.MaxLon, Y2: b.MaxLat, SRID: proj.WGS84,
		}, s.cfg.CoverageRes)
		if err != nil {
			return LayerStatistics{}, geoerr.GISDataProcessing("h3 coverage", err)
		}
		out.H3Cells = cells
	}
	return out, nil
}

type ValidationReport struct {
	Layer             string   `json:"layer"`
	Table             string   `json:"table"`
	IsValid           bool     `json:"is_valid"`
	TotalFeatures     int64    `json:"total_features"`
	NullGeometries    int64    `json:"null_geometries"`
	InvalidGeometries int64    `json:"invalid_geometries"`
	DuplicateIDs      int64    `json:"duplicate_ids"`
	SRID              int      `json:"srid"`
	Bounds            *Bounds  `json:"bounds,omitempty"`
	Issues            []string `json:"issues"`
	Warnings          []string `json:"warnings"`
}

// ValidateLayerData checks a layer's table. Issues make the layer invalid;
// warnings do not.
func (s *LayerService) ValidateLayerData(ctx context.Context, name string) (ValidationReport, error) {
	d, err := s.catalog.Resolve(name)
	if err != nil {
		return ValidationReport{}, err
	}
	ctx = mylog.WithLayer(mylog.WithOperation(ctx, "validate_layer"), d.Name)

	vc, err := s.store.ValidationCounts(ctx, d, d.Table)
	if err != nil {
		return ValidationReport{}, spatial("validate_layer", d, err)
	}
	rep := ValidationReport{
		Layer:             d.Name,
		Table:             d.Table,
		TotalFeatures:     vc.Total,
		NullGeometries:    vc.NullGeometries,
		InvalidGeometries: vc.InvalidGeometries,
		DuplicateIDs:      vc.DuplicateIDs,
		SRID:              vc.SRID,
		Issues:            []string{},
		Warnings:          []string{},
	}

	if vc.Total == 0 {
		rep.Issues = append(rep.Issues, "layer is empty")
	}
	if vc.NullGeometries > 0 {
		rep.Issues = append(rep.Issues, fmt.Sprintf("%d features have no geometry", vc.NullGeometries))
	}
	if vc.DuplicateIDs > 0 {
		rep.Issues = append(rep.Issues, fmt.Sprintf("%d duplicate values in %s", vc.DuplicateIDs, d.IDColumn))
	}
	if vc.MissingIDs > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d features have no %s", vc.MissingIDs, d.IDColumn))
	}
	if vc.InvalidGeometries > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d geometries are not valid", vc.InvalidGeometries))
	}
	if vc.DistinctSRIDs > 1 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("mixed SRIDs (%d distinct)", vc.DistinctSRIDs))
	}
	switch {
	case vc.Total > 0 && vc.SRID == 0:
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("SRID is 0; EPSG:%d assumed", s.cfg.NativeSRID))
	case vc.SRID != 0 && !proj.Supported(vc.SRID):
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("EPSG:%d cannot be reprojected to WGS84", vc.SRID))
	}

	if vc.Total > 0 {
		b, err := s.bounds(ctx, d)
		if err != nil {
			rep.Warnings = append(rep.Warnings, "bounds unavailable")
		} else {
			rep.Bounds = b
		}
	}
	rep.IsValid = len(rep.Issues) == 0
	return rep, nil
}

type DistributionBucket struct {
	Label   string   `json:"label"`
	MinSqm  float64  `json:"min_sqm"`
	MaxSqm  *float64 `json:"max_sqm"`
	Count   int64    `json:"count"`
	Percent float64  `json:"percent"`
}

type Distribution struct {
	Layer   string               `json:"layer"`
	Table   string               `json:"table"`
	Total   int64                `json:"total"`
	Buckets []DistributionBucket `json:"buckets"`
}

// AnalyzeParcelDistribution histograms feature areas. Nil thresholds use
// DefaultThresholds; an empty layer name uses the configured parcels layer.
func (s *LayerService) AnalyzeParcelDistribution(ctx context.Context, name string, thresholds []float64) (Distribution, error) {
	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	if err := checkThresholds(thresholds); err != nil {
		return Distribution{}, err
	}
	if name == "" {
		name = s.cfg.DistributionLayer
	}
	d, err := s.catalog.Resolve(name)
	if err != nil {
		return Distribution{}, err
	}
	ctx = mylog.WithLayer(mylog.WithOperation(ctx, "parcel_distribution"), d.Name)

	buckets, err := s.store.AreaDistribution(ctx, d, d.Table, thresholds)
	if err != nil {
		return Distribution{}, spatial("parcel_distribution", d, err)
	}
	out := Distribution{Layer: d.Name, Table: d.Table, Buckets: make([]DistributionBucket, len(buckets))}
	for _, b := range buckets {
		out.Total += b.Count
	}
	for i, b := range buckets {
		db := DistributionBucket{Label: label(b, i == len(buckets)-1), MinSqm: b.Min, Count: b.Count}
		if i < len(buckets)-1 {
			hi := b.Max
			db.MaxSqm = &hi
		}
		if out.Total > 0 {
			db.Percent = round(float64(b.Count)*100/float64(out.Total), 2)
		}
		out.Buckets[i] = db
	}
	return out, nil
}

func checkThresholds(th []float64) error {
	if len(th) == 0 {
		return geoerr.Validation("at least one threshold is required", nil)
	}
	for i, t := range th {
		if !(t > 0) || math.IsInf(t, 0) {
			return geoerr.Validation("thresholds must be positive", map[string]any{"thresholds": th})
		}
		if i > 0 && t <= th[i-1] {
			return geoerr.Validation("thresholds must be strictly ascending", map[string]any{"thresholds": th})
		}
	}
	return nil
}

func label(b model.AreaBucket, open bool) string {
	if open {
		return fmt.Sprintf("> %g m²", b.Min)
	}
	return fmt.Sprintf("%g-%g m²", b.Min, b.Max)
}

// bounds reads the native extent and reprojects its corners to WGS84.
func (s *LayerService) bounds(ctx context.Context, d layers.Descriptor) (*Bounds, error) {
	bb, err := s.store.Bounds(ctx, d, d.Table)
	if err != nil || bb == nil {
		return nil, err
	}
	srid := bb.SRID
	if srid == 0 {
		srid = s.cfg.NativeSRID
	}
	xs := make([]float64, 0, 4)
	ys := make([]float64, 0, 4)
	for _, c := range [][2]float64{{bb.X1, bb.Y1}, {bb.X1, bb.Y2}, {bb.X2, bb.Y1}, {bb.X2, bb.Y2}} {
		lon, lat, err := proj.ToWGS84(srid, c[0], c[1])
		if err != nil {
			return nil, err
		}
		xs = append(xs, lon)
		ys = append(ys, lat)
	}
	sort.Float64s(xs)
	sort.Float64s(ys)
	return &Bounds{MinLon: xs[0], MinLat: ys[0], MaxLon: xs[3], MaxLat: ys[3]}, nil
}

// spatial keeps typed errors and wraps anything else as a spatial query
// failure on d.
func spatial(op string, d layers.Descriptor, err error) error {
	if geoerr.KindOf(err) != geoerr.KindUnknown {
		return err
	}
	return geoerr.SpatialQuery(op, map[string]any{"layer": d.Name, "table": d.Table}, err)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
