package geoerr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := LayerNotFound("parcels", "parcels_low")
	wrapped := fmt.Errorf("dispatch: %w", base)

	if got := KindOf(wrapped); got != KindLayerNotFound {
		t.Fatalf("kind=%v want %v", got, KindLayerNotFound)
	}
	if !Is(wrapped, KindLayerNotFound) {
		t.Fatalf("Is should match wrapped kind")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain error should be unknown kind")
	}
	if Is(nil, KindUnknown) {
		t.Fatalf("nil error must not match any kind")
	}
}

func TestInvalidLayerName_CarriesCatalogue(t *testing.T) {
	syn := []string{"parcels", "działki"}
	err := InvalidLayerName("xyz", syn)
	syn[0] = "mutated"

	got, ok := err.Details["synonyms"].([]string)
	if !ok || len(got) != 2 || got[0] != "parcels" {
		t.Fatalf("synonyms=%v want copy of catalogue", err.Details["synonyms"])
	}
	if err.UserMessage == "" || err.UserMessage == err.Message {
		t.Fatalf("user message must be distinct and non-empty: %q", err.UserMessage)
	}
}

func TestLLMTimeout_CarriesTimeout(t *testing.T) {
	err := LLMTimeout(30 * time.Second)
	if v, _ := err.Details["timeout_seconds"].(float64); v != 30 {
		t.Fatalf("timeout_seconds=%v want 30", err.Details["timeout_seconds"])
	}
	if err.Kind.Code() != "LLM_TIMEOUT_ERROR" {
		t.Fatalf("code=%s", err.Kind.Code())
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := SpatialQuery("largest_n", map[string]any{"n": 3}, cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
}
