package dispatch

import (
	"github.com/mohammed-shakir/geoquery/internal/intent"
	"github.com/mohammed-shakir/geoquery/internal/query"
	"github.com/mohammed-shakir/geoquery/internal/shaper"
)

// Layer names the spatial operations refer to implicitly. They go through
// the registry like any user-supplied name.
const (
	gpzLayer       = "gpz"
	buildingsLayer = "buildings"
)

// crit widens a concrete constructor result to the Criteria interface.
func crit(c query.Criteria, err error) (query.Criteria, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

type route struct {
	criteria func(intent.ClassifiedIntent) (query.Criteria, error)
	mode     shaper.Mode
	kind     shaper.Kind
}

// routes covers every operation except intent.Chat.
var routes = map[intent.Operation]route{
	intent.GetGISData: {
		criteria: func(ci intent.ClassifiedIntent) (query.Criteria, error) {
			name, err := ci.String("layer_name")
			if err != nil {
				return nil, err
			}
			return crit(query.NewFullLayer(name, false))
		},
		mode: shaper.ModeMap,
		kind: shaper.KindID,
	},
	intent.FindLargestParcel: {
		criteria: func(intent.ClassifiedIntent) (query.Criteria, error) {
			return crit(query.NewLargestN(1))
		},
		mode: shaper.ModeChat,
		kind: shaper.KindLargest,
	},
	intent.FindNLargestParcels: {
		criteria: func(ci intent.ClassifiedIntent) (query.Criteria, error) {
			n, err := ci.Int("n")
			if err != nil {
				return nil, err
			}
			return crit(query.NewLargestN(n))
		},
		mode: shaper.ModeChat,
		kind: shaper.KindNumbered,
	},
	intent.FindParcelsAboveArea: {
		criteria: func(ci intent.ClassifiedIntent) (query.Criteria, error) {
			a, err := ci.Float("min_area")
			if err != nil {
				return nil, err
			}
			return crit(query.NewAboveArea(a))
		},
		mode: shaper.ModeChat,
		kind: shaper.KindStandard,
	},
	intent.FindParcelsNearGPZ: {
		criteria: func(ci intent.ClassifiedIntent) (query.Criteria, error) {
			r, err := ci.Float("radius_meters")
			if err != nil {
				return nil, err
			}
			return crit(query.NewNearLayer(gpzLayer, r))
		},
		mode: shaper.ModeChat,
		kind: shaper.KindStandard,
	},
	intent.FindParcelsNearLayer: {
		criteria: func(ci intent.ClassifiedIntent) (query.Criteria, error) {
			name, err := ci.String("layer_name")
			if err != nil {
				return nil, err
			}
			r, err := ci.Float("radius_meters")
			if err != nil {
				return nil, err
			}
			return crit(query.NewNearLayer(name, r))
		},
		mode: shaper.ModeChat,
		kind: shaper.KindStandard,
	},
	intent.FindParcelsWithoutBuildings: {
		criteria: func(intent.ClassifiedIntent) (query.Criteria, error) {
			return crit(query.NewWithoutIntersection("", buildingsLayer))
		},
		mode: shaper.ModeChat,
		kind: shaper.KindUnbuilt,
	},
}
