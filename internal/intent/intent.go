package intent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
)

// ClassifiedIntent is the classifier's output. Params holds the raw
// operation arguments; use the typed getters to read them.
type ClassifiedIntent struct {
	Operation Operation      `json:"intent"`
	Params    map[string]any `json:"params,omitempty"`
	Query     string         `json:"query"`
	Cached    bool           `json:"-"`
}

func (c ClassifiedIntent) Has(key string) bool {
	v, ok := c.Params[key]
	return ok && v != nil
}

func (c ClassifiedIntent) String(key string) (string, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return "", missing(key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", invalid(key, v, "a non-empty string")
	}
	return strings.TrimSpace(s), nil
}

func (c ClassifiedIntent) Float(key string) (float64, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return 0, missing(key)
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, invalid(key, v, "a number")
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, invalid(key, v, "a number")
		}
		f = n
	default:
		return 0, invalid(key, v, "a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(key, v, "a finite number")
	}
	return f, nil
}

// Int accepts integral floats since JSON numbers decode as float64.
func (c ClassifiedIntent) Int(key string) (int, error) {
	f, err := c.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, invalid(key, c.Params[key], "an integer")
	}
	return int(f), nil
}

func missing(key string) error {
	return geoerr.Validation(fmt.Sprintf("parameter %q is required", key),
		map[string]any{"parameter": key})
}

func invalid(key string, v any, want string) error {
	return geoerr.Validation(fmt.Sprintf("parameter %q must be %s, got %v", key, want, v),
		map[string]any{"parameter": key, "value": v})
}
