// Package query compiles validated criteria into parameter-bound PostGIS
// statements.
package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
)

type Op string

const (
	OpLargestN            Op = "largest_n"
	OpAboveArea           Op = "above_area"
	OpNearLayer           Op = "near_layer"
	OpWithoutIntersection Op = "without_intersection"
	OpFullLayer           Op = "full_layer"
)

// Criteria is one of LargestN, AboveArea, NearLayer, WithoutIntersection or
// FullLayer. The set is closed: the unexported method keeps other packages
// from adding cases.
type Criteria interface {
	Op() Op
	Params() map[string]any
	validate() error
}

type LargestN struct {
	N int
}

type AboveArea struct {
	MinArea float64 // square metres, boundary excluded
}

type NearLayer struct {
	Layer        string
	RadiusMeters float64
}

type WithoutIntersection struct {
	Target   string // empty means the builder's default target layer
	Obstacle string
}

type FullLayer struct {
	Layer         string
	SkipCompanion bool
}

func NewLargestN(n int) (LargestN, error) {
	c := LargestN{N: n}
	return c, c.validate()
}

func NewAboveArea(minArea float64) (AboveArea, error) {
	c := AboveArea{MinArea: minArea}
	return c, c.validate()
}

func NewNearLayer(layer string, radius float64) (NearLayer, error) {
	c := NearLayer{Layer: strings.TrimSpace(layer), RadiusMeters: radius}
	return c, c.validate()
}

func NewWithoutIntersection(target, obstacle string) (WithoutIntersection, error) {
	c := WithoutIntersection{Target: strings.TrimSpace(target), Obstacle: strings.TrimSpace(obstacle)}
	return c, c.validate()
}

func NewFullLayer(layer string, skipCompanion bool) (FullLayer, error) {
	c := FullLayer{Layer: strings.TrimSpace(layer), SkipCompanion: skipCompanion}
	return c, c.validate()
}

func (LargestN) Op() Op            { return OpLargestN }
func (AboveArea) Op() Op           { return OpAboveArea }
func (NearLayer) Op() Op           { return OpNearLayer }
func (WithoutIntersection) Op() Op { return OpWithoutIntersection }
func (FullLayer) Op() Op           { return OpFullLayer }

func (c LargestN) Params() map[string]any  { return map[string]any{"n": c.N} }
func (c AboveArea) Params() map[string]any { return map[string]any{"min_area": c.MinArea} }
func (c NearLayer) Params() map[string]any {
	return map[string]any{"layer": c.Layer, "radius_meters": c.RadiusMeters}
}
func (c WithoutIntersection) Params() map[string]any {
	return map[string]any{"target": c.Target, "obstacle": c.Obstacle}
}
func (c FullLayer) Params() map[string]any {
	return map[string]any{"layer": c.Layer, "skip_companion": c.SkipCompanion}
}

func (c LargestN) validate() error {
	if c.N <= 0 {
		return geoerr.Validation(fmt.Sprintf("n must be a positive integer, got %d", c.N), c.Params())
	}
	return nil
}

func (c AboveArea) validate() error {
	if math.IsNaN(c.MinArea) || math.IsInf(c.MinArea, 0) || c.MinArea < 0 {
		return geoerr.Validation(fmt.Sprintf("min_area must be a non-negative number, got %v", c.MinArea), c.Params())
	}
	return nil
}

func (c NearLayer) validate() error {
	if c.Layer == "" {
		return geoerr.Validation("reference layer is required", c.Params())
	}
	if math.IsNaN(c.RadiusMeters) || math.IsInf(c.RadiusMeters, 0) || c.RadiusMeters <= 0 {
		return geoerr.Validation(fmt.Sprintf("radius_meters must be positive, got %v", c.RadiusMeters), c.Params())
	}
	return nil
}

func (c WithoutIntersection) validate() error {
	if c.Obstacle == "" {
		return geoerr.Validation("obstacle layer is required", c.Params())
	}
	return nil
}

func (c FullLayer) validate() error {
	if c.Layer == "" {
		return geoerr.Validation("layer_name is required", c.Params())
	}
	return nil
}
