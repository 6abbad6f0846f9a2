// Package postgis is the spatial store: a pooled sqlx connection to
// PostgreSQL/PostGIS and the statements that read layer tables.
package postgis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mohammed-shakir/geoquery/internal/core/config"
	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/model"
	"github.com/mohammed-shakir/geoquery/internal/layers"
	"github.com/mohammed-shakir/geoquery/internal/query"
)

type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// Open connects and pings the database. Failures are reported as
// DatabaseConnection errors.
func Open(ctx context.Context, cfg config.DatabaseCfg, log *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, geoerr.DatabaseConnection(fmt.Errorf("connect: %w", err))
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(2 * time.Minute)
	return New(db, log), nil
}

func New(db *sqlx.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return geoerr.DatabaseConnection(err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

type featureRow struct {
	GeomWKB   []byte          `db:"geom_wkb"`
	FeatureID sql.NullString  `db:"feature_id"`
	AreaSqm   sql.NullFloat64 `db:"area_sqm"`
	Attrs     []byte          `db:"attrs"`
}

func (r featureRow) toFeature() (model.RawFeature, error) {
	f := model.RawFeature{
		Geometry: r.GeomWKB,
		ID:       r.FeatureID.String,
		Area:     r.AreaSqm.Float64,
	}
	if len(r.Attrs) > 0 {
		if err := json.Unmarshal(r.Attrs, &f.Attributes); err != nil {
			return f, fmt.Errorf("decode attrs: %w", err)
		}
	}
	return f, nil
}

// Features runs a compiled statement and returns its rows in query order.
func (s *Store) Features(ctx context.Context, stmt query.Statement) ([]model.RawFeature, error) {
	rows, err := s.db.QueryxContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", stmt.Table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RawFeature
	for rows.Next() {
		var r featureRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan %s: %w", stmt.Table, err)
		}
		f, err := r.toFeature()
		if err != nil {
			return nil, fmt.Errorf("row %s/%s: %w", stmt.Table, r.FeatureID.String, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", stmt.Table, err)
	}
	return out, nil
}

func geom(d layers.Descriptor) string { return "t." + pq.QuoteIdentifier(d.GeomColumn) }

func statsSQL(d layers.Descriptor, table string) string {
	g := geom(d)
	return fmt.Sprintf(`SELECT count(*) AS feature_count,
  count(%[1]s) AS with_geometry,
  COALESCE(sum(ST_Area(%[1]s)), 0) AS total_area,
  COALESCE(avg(ST_Area(%[1]s)), 0) AS avg_area,
  COALESCE(min(ST_Area(%[1]s)), 0) AS min_area,
  COALESCE(max(ST_Area(%[1]s)), 0) AS max_area,
  COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY ST_Area(%[1]s)), 0) AS median_area
FROM %[2]s AS t`, g, pq.QuoteIdentifier(table))
}

func boundsSQL(d layers.Descriptor, table string) string {
	return fmt.Sprintf(`SELECT ST_XMin(e) AS min_x, ST_YMin(e) AS min_y, ST_XMax(e) AS max_x, ST_YMax(e) AS max_y, srid
FROM (SELECT ST_Extent(%[1]s) AS e, COALESCE(max(ST_SRID(%[1]s)), 0) AS srid FROM %[2]s AS t) s`,
		geom(d), pq.QuoteIdentifier(table))
}

func validateSQL(d layers.Descriptor, table string) string {
	g := geom(d)
	id := "t." + pq.QuoteIdentifier(d.IDColumn)
	return fmt.Sprintf(`SELECT count(*) AS total,
  count(*) FILTER (WHERE %[1]s IS NULL) AS null_geometries,
  count(*) FILTER (WHERE %[1]s IS NOT NULL AND NOT ST_IsValid(%[1]s)) AS invalid_geometries,
  count(%[2]s) - count(DISTINCT %[2]s) AS duplicate_ids,
  count(*) - count(%[2]s) AS missing_ids,
  COALESCE(max(ST_SRID(%[1]s)), 0) AS srid,
  count(DISTINCT ST_SRID(%[1]s)) AS distinct_srids
FROM %[3]s AS t`, g, id, pq.QuoteIdentifier(table))
}

// distributionSQL assigns each feature the number of thresholds strictly
// below its area, so bucket i holds t[i-1] < area <= t[i].
func distributionSQL(d layers.Descriptor, table string) string {
	g := geom(d)
	return fmt.Sprintf(`SELECT (SELECT count(*) FROM unnest($1::float8[]) AS th WHERE ST_Area(%[1]s) > th)::int AS bucket,
  count(*) AS n
FROM %[2]s AS t WHERE %[1]s IS NOT NULL
GROUP BY 1 ORDER BY 1`, g, pq.QuoteIdentifier(table))
}

func (s *Store) AreaStats(ctx context.Context, d layers.Descriptor, table string) (model.AreaStats, error) {
	var row struct {
		Count        int64   `db:"feature_count"`
		WithGeometry int64   `db:"with_geometry"`
		Total        float64 `db:"total_area"`
		Avg          float64 `db:"avg_area"`
		Min          float64 `db:"min_area"`
		Max          float64 `db:"max_area"`
		Median       float64 `db:"median_area"`
	}
	if err := s.db.GetContext(ctx, &row, statsSQL(d, table)); err != nil {
		return model.AreaStats{}, fmt.Errorf("area stats %s: %w", table, err)
	}
	return model.AreaStats{
		Count:        row.Count,
		WithGeometry: row.WithGeometry,
		TotalArea:    row.Total,
		AvgArea:      row.Avg,
		MinArea:      row.Min,
		MaxArea:      row.Max,
		MedianArea:   row.Median,
	}, nil
}

// Bounds returns the native-frame extent, or nil for an empty table.
func (s *Store) Bounds(ctx context.Context, d layers.Descriptor, table string) (*model.BBox, error) {
	var row struct {
		MinX sql.NullFloat64 `db:"min_x"`
		MinY sql.NullFloat64 `db:"min_y"`
		MaxX sql.NullFloat64 `db:"max_x"`
		MaxY sql.NullFloat64 `db:"max_y"`
		SRID int             `db:"srid"`
	}
	if err := s.db.GetContext(ctx, &row, boundsSQL(d, table)); err != nil {
		return nil, fmt.Errorf("bounds %s: %w", table, err)
	}
	if !row.MinX.Valid {
		return nil, nil
	}
	return &model.BBox{
		X1: row.MinX.Float64, Y1: row.MinY.Float64,
		X2: row.MaxX.Float64, Y2: row.MaxY.Float64,
		SRID: row.SRID,
	}, nil
}

func (s *Store) ValidationCounts(ctx context.Context, d layers.Descriptor, table string) (model.ValidationCounts, error) {
	var row struct {
		Total    int64 `db:"total"`
		Null     int64 `db:"null_geometries"`
		Invalid  int64 `db:"invalid_geometries"`
		Dups     int64 `db:"duplicate_ids"`
		Missing  int64 `db:"missing_ids"`
		SRID     int   `db:"srid"`
		Distinct int   `db:"distinct_srids"`
	}
	if err := s.db.GetContext(ctx, &row, validateSQL(d, table)); err != nil {
		return model.ValidationCounts{}, fmt.Errorf("validate %s: %w", table, err)
	}
	return model.ValidationCounts{
		Total:             row.Total,
		NullGeometries:    row.Null,
		InvalidGeometries: row.Invalid,
		DuplicateIDs:      row.Dups,
		MissingIDs:        row.Missing,
		SRID:              row.SRID,
		DistinctSRIDs:     row.Distinct,
	}, nil
}

// AreaDistribution buckets features by area. thresholds must be strictly
// ascending; the result has len(thresholds)+1 buckets.
func (s *Store) AreaDistribution(ctx context.Context, d layers.Descriptor, table string, thresholds []float64) ([]model.AreaBucket, error) {
	var rows []struct {
		Bucket int   `db:"bucket"`
		N      int64 `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, distributionSQL(d, table), pq.Array(thresholds)); err != nil {
		return nil, fmt.Errorf("distribution %s: %w", table, err)
	}
	out := Buckets(thresholds)
	for _, r := range rows {
		if r.Bucket >= 0 && r.Bucket < len(out) {
			out[r.Bucket].Count = r.N
		}
	}
	return out, nil
}

// Buckets returns empty buckets bounded by thresholds; the first starts at 0
// and the last is open.
func Buckets(thresholds []float64) []model.AreaBucket {
	out := make([]model.AreaBucket, len(thresholds)+1)
	lo := 0.0
	for i, t := range thresholds {
		out[i] = model.AreaBucket{Min: lo, Max: t}
		lo = t
	}
	out[len(thresholds)] = model.AreaBucket{Min: lo}
	return out
}

// Catalog reads layer descriptors from the layer_config table.
type Catalog struct {
	Store *Store
}

func (Catalog) Name() string { return "db" }

const catalogSQL = `SELECT name, synonyms, table_name, geometry_column, id_column,
  COALESCE(display_name, '') AS display_name, COALESCE(description, '') AS description,
  has_low_resolution
FROM layer_config WHERE enabled ORDER BY sort_order, name`

func (c Catalog) Load(ctx context.Context) ([]layers.Descriptor, error) {
	var rows []struct {
		Name        string         `db:"name"`
		Synonyms    pq.StringArray `db:"synonyms"`
		Table       string         `db:"table_name"`
		GeomColumn  string         `db:"geometry_column"`
		IDColumn    string         `db:"id_column"`
		DisplayName string         `db:"display_name"`
		Description string         `db:"description"`
		HasLow      bool           `db:"has_low_resolution"`
	}
	if err := c.Store.db.SelectContext(ctx, &rows, catalogSQL); err != nil {
		return nil, fmt.Errorf("load layer_config: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("layer_config has no enabled layers")
	}
	out := make([]layers.Descriptor, 0, len(rows))
	for _, r := range rows {
		out = append(out, layers.Descriptor{
			Name:             r.Name,
			Synonyms:         []string(r.Synonyms),
			Table:            r.Table,
			GeomColumn:       r.GeomColumn,
			IDColumn:         r.IDColumn,
			DisplayName:      r.DisplayName,
			Description:      r.Description,
			HasLowResolution: r.HasLow,
		})
	}
	return out, nil
}
