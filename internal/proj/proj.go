// Package proj converts projected coordinates of the frames the layer tables
// are stored in to WGS84 longitude/latitude.
package proj

import (
	"fmt"

	"github.com/wroge/wgs84"
)

const (
	WGS84       = 4326
	WebMercator = 3857
	PUWG1992    = 2180
)

// zone is a transverse Mercator frame on the ETRS89 datum.
type zone struct {
	lon0   float64 // degrees
	k0     float64
	falseE float64
	falseN float64
}

func (z zone) crs() wgs84.CoordinateReferenceSystem {
	return wgs84.ETRS89().TransverseMercator(z.lon0, 0, z.k0, z.falseE, z.falseN)
}

var zones = map[int]zone{
	PUWG1992: {lon0: 19, k0: 0.9993, falseE: 500000, falseN: -5300000},
	// PUWG 2000 zones 5..8
	2176: {lon0: 15, k0: 0.999923, falseE: 5500000},
	2177: {lon0: 18, k0: 0.999923, falseE: 6500000},
	2178: {lon0: 21, k0: 0.999923, falseE: 7500000},
	2179: {lon0: 24, k0: 0.999923, falseE: 8500000},
}

// ETRS89 has no Helmert shift to WGS84 here; the two agree well below the
// precision of the source data.
var transforms = func() map[int]wgs84.Func {
	m := map[int]wgs84.Func{
		WebMercator: wgs84.Transform(wgs84.WebMercator(), wgs84.LonLat()),
	}
	for srid, z := range zones {
		m[srid] = wgs84.Transform(z.crs(), wgs84.LonLat())
	}
	return m
}()

type UnsupportedSRIDError struct{ SRID int }

func (e UnsupportedSRIDError) Error() string {
	return fmt.Sprintf("unsupported srid %d", e.SRID)
}

func Supported(srid int) bool {
	if srid == WGS84 {
		return true
	}
	_, ok := transforms[srid]
	return ok
}

// ToWGS84 returns lon, lat in degrees.
func ToWGS84(srid int, x, y float64) (lon, lat float64, err error) {
	if srid == WGS84 {
		return x, y, nil
	}
	f, ok := transforms[srid]
	if !ok {
		return 0, 0, UnsupportedSRIDError{SRID: srid}
	}
	lon, lat, _ = f(x, y, 0)
	return lon, lat, nil
}

// TransformFlat rewrites the XY pairs of a flat coordinate slice in place.
// Ordinates beyond the second (Z, M) are left untouched.
func TransformFlat(srid int, flat []float64, stride int) error {
	if srid == WGS84 || len(flat) == 0 {
		return nil
	}
	f, ok := transforms[srid]
	if !ok {
		return UnsupportedSRIDError{SRID: srid}
	}
	if stride < 2 {
		return fmt.Errorf("stride %d < 2", stride)
	}
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1], _ = f(flat[i], flat[i+1], 0)
	}
	return nil
}
