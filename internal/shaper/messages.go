package shaper

import (
	"fmt"
	"math"

	"github.com/mohammed-shakir/geoquery/internal/core/model"
)

type Kind string

const (
	KindStandard Kind = "standard"
	KindLargest  Kind = "largest"
	KindNumbered Kind = "numbered"
	KindUnbuilt  Kind = "unbuilt"
	KindID       Kind = "id"
)

const missingID = "n/a"

// Message renders one feature line. position is 1-based in shaped order.
func Message(kind Kind, position int, id string, areaSqm float64) string {
	if id == "" {
		id = missingID
	}
	ha := hectares(areaSqm)
	switch kind {
	case KindLargest:
		return fmt.Sprintf("Largest parcel. ID: %s, Area: %.4f ha", id, ha)
	case KindNumbered:
		return fmt.Sprintf("Parcel %d. ID: %s, Area: %.4f ha", position, id, ha)
	case KindUnbuilt:
		return fmt.Sprintf("Unbuilt parcel. ID: %s, Area: %.4f ha", id, ha)
	case KindID:
		return "ID: " + id
	default:
		return fmt.Sprintf("ID: %s, Area: %.4f ha", id, ha)
	}
}

// Summary is appended to the last chat message when features were left out.
func Summary(shown, total int) string {
	return fmt.Sprintf("Shown %d of %d; the remaining %d are available via export.", shown, total, total-shown)
}

func hectares(sqm float64) float64 {
	return math.Round(sqm/10000*1e4) / 1e4
}

func messages(fs []model.RawFeature, mode Mode, kind Kind) []string {
	out := make([]string, len(fs))
	if mode == ModeMap {
		for i, f := range fs {
			out[i] = Message(KindID, i+1, f.ID, f.Area)
		}
		return out
	}

	shown := min(len(fs), ChatCap)
	for i := 0; i < shown; i++ {
		out[i] = Message(kind, i+1, fs[i].ID, fs[i].Area)
	}
	if len(fs) > shown {
		out[shown-1] += "\n\n" + Summary(shown, len(fs))
	}
	return out
}
