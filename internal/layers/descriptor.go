// Package layers resolves logical layer names to physical PostGIS tables.
package layers

import (
	"errors"
	"fmt"
	"strings"
)

// LowSuffix names the simplified companion table of a layer.
const LowSuffix = "_low"

type Descriptor struct {
	Name             string   `yaml:"name" json:"name"`
	Synonyms         []string `yaml:"synonyms" json:"synonyms"`
	Table            string   `yaml:"table" json:"table"`
	GeomColumn       string   `yaml:"geometry_column" json:"geometry_column"`
	IDColumn         string   `yaml:"id_column" json:"id_column"`
	DisplayName      string   `yaml:"display_name" json:"display_name"`
	Description      string   `yaml:"description" json:"description,omitempty"`
	HasLowResolution bool     `yaml:"has_low_resolution" json:"has_low_resolution"`
}

// LowTable returns the companion table name, or "" when the layer has none.
func (d Descriptor) LowTable() string {
	if !d.HasLowResolution {
		return ""
	}
	return d.Table + LowSuffix
}

// normalized checks the descriptor invariants and normalizes the synonym set so
// that it always contains the logical name.
func (d Descriptor) normalized() (Descriptor, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return d, errors.New("layer name is empty")
	}
	if strings.TrimSpace(d.Table) == "" {
		return d, fmt.Errorf("layer %s: table is empty", d.Name)
	}
	if strings.TrimSpace(d.GeomColumn) == "" {
		return d, fmt.Errorf("layer %s: geometry column is empty", d.Name)
	}
	if strings.TrimSpace(d.IDColumn) == "" {
		return d, fmt.Errorf("layer %s: id column is empty", d.Name)
	}
	if d.DisplayName == "" {
		d.DisplayName = d.Name
	}

	seen := map[string]struct{}{}
	syn := make([]string, 0, len(d.Synonyms)+1)
	for _, s := range append([]string{d.Name}, d.Synonyms...) {
		n := Normalize(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		syn = append(syn, n)
	}
	d.Synonyms = syn
	return d, nil
}

// Normalize lowercases, trims and collapses inner whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
