// Package shaper turns raw query rows into display results: WGS84 GeoJSON for
// the map and a capped list of human-readable messages for chat.
package shaper

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/model"
	"github.com/mohammed-shakir/geoquery/internal/core/observability"
	"github.com/mohammed-shakir/geoquery/internal/mapper"
	"github.com/mohammed-shakir/geoquery/internal/proj"
)

type Mode string

const (
	ModeMap  Mode = "map"
	ModeChat Mode = "chat"
)

// ChatCap is the number of features that get a chat message.
const ChatCap = 5

type Config struct {
	// NativeSRID is assumed for geometries stored without an SRID.
	NativeSRID int
	H3Res      int
}

type Shaper struct {
	native int
	res    int
	cells  mapper.Interface
}

func New(cfg Config, cells mapper.Interface) *Shaper {
	if cfg.NativeSRID == 0 {
		cfg.NativeSRID = proj.PUWG1992
	}
	return &Shaper{native: cfg.NativeSRID, res: cfg.H3Res, cells: cells}
}

// DisplayResult always carries every geometry; only Messages is capped in
// chat mode. len(Messages) == Count.
type DisplayResult struct {
	Layer    string          `json:"layer"`
	Table    string          `json:"table"`
	Tier     string          `json:"tier"`
	Mode     Mode            `json:"mode"`
	Count    int             `json:"count"`
	Messages []string        `json:"messages"`
	GeoJSON  json.RawMessage `json:"geojson"`
}

type featureCollection struct {
	Type     string     `json:"type"`
	Features []*feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

func (s *Shaper) Shape(raw model.RawFeatureSet, mode Mode, kind Kind) (DisplayResult, error) {
	n := raw.Len()
	out := DisplayResult{
		Layer:    raw.Layer,
		Table:    raw.Table,
		Tier:     raw.Tier,
		Mode:     mode,
		Count:    n,
		Messages: messages(raw.Features, mode, kind),
	}

	fc := featureCollection{Type: "FeatureCollection", Features: make([]*feature, 0, n)}
	for i, f := range raw.Features {
		props := make(map[string]any, len(f.Attributes)+5)
		for k, v := range f.Attributes {
			props[k] = v
		}
		props["id"] = f.ID
		props["area_sqm"] = f.Area
		props["area_ha"] = hectares(f.Area)
		props["message"] = out.Messages[i]

		gj, cell, err := s.geometry(f.Geometry)
		if err != nil {
			return DisplayResult{}, geoerr.GISDataProcessing(fmt.Sprintf("feature %q", f.ID), err)
		}
		if cell != "" {
			props["h3_cell"] = cell
		}
		fc.Features = append(fc.Features, &feature{Type: "Feature", Geometry: gj, Properties: props})
	}

	b, err := json.Marshal(fc)
	if err != nil {
		return DisplayResult{}, geoerr.GISDataProcessing("encode geojson", err)
	}
	out.GeoJSON = b
	observability.ObserveShaped(string(mode), n)
	return out, nil
}

// geometry decodes EWKB, reprojects once to WGS84 and encodes GeoJSON. A NULL
// geometry yields a nil geometry and no cell.
func (s *Shaper) geometry(b []byte) (*geojson.Geometry, string, error) {
	if len(b) == 0 {
		return nil, "", nil
	}
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return nil, "", fmt.Errorf("decode ewkb: %w", err)
	}
	srid := g.SRID()
	if srid == 0 {
		srid = s.native
	}
	if err := reproject(g, srid); err != nil {
		return nil, "", err
	}
	gj, err := geojson.Encode(g)
	if err != nil {
		return nil, "", fmt.Errorf("encode geometry: %w", err)
	}

	var cell string
	if s.cells != nil {
		if x, y, ok := center(g); ok {
			if cell, err = s.cells.CellForPoint(x, y, s.res); err != nil {
				return nil, "", err
			}
		}
	}
	return gj, cell, nil
}

func reproject(g geom.T, srid int) error {
	if gc, ok := g.(*geom.GeometryCollection); ok {
		for _, child := range gc.Geoms() {
			if err := reproject(child, srid); err != nil {
				return err
			}
		}
		return nil
	}
	if err := proj.TransformFlat(srid, g.FlatCoords(), g.Stride()); err != nil {
		return fmt.Errorf("reproject: %w", err)
	}
	return nil
}

func center(g geom.T) (x, y float64, ok bool) {
	b := g.Bounds()
	if b == nil || b.Min(0) > b.Max(0) || b.Min(1) > b.Max(1) {
		return 0, 0, false
	}
	x, y = (b.Min(0)+b.Max(0))/2, (b.Min(1)+b.Max(1))/2
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}
	return x, y, true
}
