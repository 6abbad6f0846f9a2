package layers

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults is the built-in catalogue used when no external source is set.
func Defaults() []Descriptor {
	return []Descriptor{
		{
			Name:             "parcels",
			Synonyms:         []string{"parcel", "działki", "działka", "dzialki", "dzialka", "działki_przykładowe", "dzialki_przykladowe", "przykladowe_dzialki", "plots"},
			Table:            "parcels",
			GeomColumn:       "geometry",
			IDColumn:         "ID_DZIALKI",
			DisplayName:      "Działki przykładowe",
			Description:      "Land parcels with ownership information",
			HasLowResolution: true,
		},
		{
			Name:             "buildings",
			Synonyms:         []string{"building", "budynki", "budynek"},
			Table:            "buildings",
			GeomColumn:       "geometry",
			IDColumn:         "ID_BUDYNKU",
			DisplayName:      "Budynki przykładowe",
			Description:      "Building footprints",
			HasLowResolution: true,
		},
		{
			Name:        "gpz_POLSKA",
			Synonyms:    []string{"gpz", "gpz_110kv", "gpz_polska", "substations", "substation"},
			Table:       "gpz_110kv",
			GeomColumn:  "geom",
			IDColumn:    "id",
			DisplayName: "GPZ 110kV",
			Description: "Electrical substations 110kV",
		},
		{
			Name:        "GPZ_WIELKOPOLSKIE",
			Synonyms:    []string{"gpz_wielkopolskie", "gpz wielkopolskie"},
			Table:       "GPZ_WIELKOPOLSKIE",
			GeomColumn:  "geom",
			IDColumn:    "id",
			DisplayName: "GPZ Wielkopolskie",
			Description: "Electrical substations in Wielkopolska region",
		},
		{
			Name:        "wojewodztwa",
			Synonyms:    []string{"województwa", "voivodeships", "voivodeship"},
			Table:       "Wojewodztwa",
			GeomColumn:  "geom",
			IDColumn:    "JPT_NAZWA_",
			DisplayName: "Województwa",
			Description: "Voivodeship boundaries",
		},
		{
			Name:        "natura2000",
			Synonyms:    []string{"natura_2000", "natura 2000", "natura"},
			Table:       "natura 2000",
			GeomColumn:  "geom",
			IDColumn:    "id",
			DisplayName: "Natura 2000",
			Description: "Natura 2000 protected areas",
		},
	}
}

type StaticSource []Descriptor

func (StaticSource) Name() string { return "static" }

func (s StaticSource) Load(context.Context) ([]Descriptor, error) {
	return append([]Descriptor(nil), s...), nil
}

// FileSource reads a YAML catalogue of the form
//
//	layers:
//	  - name: parcels
//	    table: parcels
//	    ...
type FileSource struct {
	Path string
}

func (FileSource) Name() string { return "file" }

type catalogFile struct {
	Layers []Descriptor `yaml:"layers"`
}

func (f FileSource) Load(context.Context) ([]Descriptor, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	return ParseYAML(b)
}

func ParseYAML(b []byte) ([]Descriptor, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return nil, fmt.Errorf("decode catalogue yaml: %w", err)
	}
	if len(cf.Layers) == 0 {
		return nil, fmt.Errorf("catalogue yaml has no layers")
	}
	return cf.Layers, nil
}
