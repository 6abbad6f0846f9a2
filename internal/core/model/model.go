// Package model defines core domain types shared across the service.
package model

import "fmt"

// BBox is an axis-aligned extent in the frame named by SRID.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   int
}

// String representation matching the OGC bbox parameter format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,EPSG:%d", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

// Center returns the midpoint of the box.
func (b BBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Cells is a sorted, de-duplicated set of H3 cell ids.
type Cells []string

// RawFeature is one row produced by a spatial query, geometry still in the
// table's native frame.
type RawFeature struct {
	Geometry   []byte // EWKB
	ID         string
	Area       float64 // square metres in the native frame
	Attributes map[string]any
}

// RawFeatureSet is what the executor hands to the shaper. Table may differ
// from the requested layer's table when a companion tier answered.
type RawFeatureSet struct {
	Op       string
	Layer    string
	Table    string
	Tier     string
	IDColumn string
	Features []RawFeature
}

func (s RawFeatureSet) Len() int { return len(s.Features) }

type AreaStats struct {
	Count        int64
	WithGeometry int64
	TotalArea    float64
	AvgArea      float64
	MinArea      float64
	MaxArea      float64
	MedianArea   float64
}

type ValidationCounts struct {
	Total             int64
	NullGeometries    int64
	InvalidGeometries int64
	DuplicateIDs      int64
	MissingIDs        int64
	SRID              int
	DistinctSRIDs     int
}

// AreaBucket counts features with Min < area <= Max (the first bucket also
// includes area 0). Max is 0 for the open top bucket.
type AreaBucket struct {
	Min   float64
	Max   float64
	Count int64
}
