// Package mapper converts WGS84 coordinates to H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/geoquery/internal/core/model"
)

type Interface interface {
	CellForPoint(lon, lat float64, res int) (string, error)
	CellsForBBox(bb model.BBox, res int) (model.Cells, error)
}
