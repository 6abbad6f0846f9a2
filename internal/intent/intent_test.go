package intent

import (
	"encoding/json"
	"testing"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
)

func TestOperations_Closed(t *testing.T) {
	ops := Operations()
	if len(ops) != 8 {
		t.Fatalf("ops=%v", ops)
	}
	seen := map[Operation]bool{}
	for _, op := range ops {
		if seen[op] || !op.Valid() || op.Description() == "" {
			t.Fatalf("bad op %q", op)
		}
		seen[op] = true
	}
	if Operation("chatter").Valid() {
		t.Fatalf("unknown op reported valid")
	}
}

func TestParamGetters(t *testing.T) {
	ci := ClassifiedIntent{Params: map[string]any{
		"n":         float64(7),
		"frac":      2.5,
		"str_num":   "120.5",
		"number":    json.Number("42"),
		"name":      "  gpz ",
		"blank":     " ",
		"not_a_num": []any{1},
	}}

	if n, err := ci.Int("n"); err != nil || n != 7 {
		t.Fatalf("Int(n)=%d %v", n, err)
	}
	if _, err := ci.Int("frac"); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("Int(frac) err=%v", err)
	}
	if f, err := ci.Float("str_num"); err != nil || f != 120.5 {
		t.Fatalf("Float(str_num)=%v %v", f, err)
	}
	if n, err := ci.Int("number"); err != nil || n != 42 {
		t.Fatalf("Int(number)=%d %v", n, err)
	}
	if s, err := ci.String("name"); err != nil || s != "gpz" {
		t.Fatalf("String(name)=%q %v", s, err)
	}
	if _, err := ci.String("blank"); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("String(blank) err=%v", err)
	}
	if _, err := ci.Float("not_a_num"); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("Float(not_a_num) err=%v", err)
	}
	if _, err := ci.Float("absent"); !geoerr.Is(err, geoerr.KindValidation) {
		t.Fatalf("Float(absent) err=%v", err)
	}
	if ci.Has("absent") || !ci.Has("n") {
		t.Fatalf("Has mismatch")
	}
}

func TestParseResponse_KeepsRawOnFailure(t *testing.T) {
	_, err := parseResponse(`{"route":{"intent":"nope"}}`, "q")
	if !geoerr.Is(err, geoerr.KindIntentClassification) {
		t.Fatalf("err=%v", err)
	}
	ge := err.(*geoerr.Error)
	if ge.Details["response"] != `{"route":{"intent":"nope"}}` {
		t.Fatalf("details=%v", ge.Details)
	}
}

func TestBalancedObject_IgnoresBracesInStrings(t *testing.T) {
	got := balancedObject(`{"a":"}{","b":{"c":1}} trailing }`)
	if got != `{"a":"}{","b":{"c":1}}` {
		t.Fatalf("got %q", got)
	}
}
