package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Intent("llama3-8b-8192", 1, 7, "Pokaż 10 największych działek")
	k2 := Intent("llama3-8b-8192", 1, 7, "Pokaż 10 największych działek")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestNormalization_CaseAndSpacingShareKey(t *testing.T) {
	k1 := Intent(" llama3-8b-8192 ", 1, 7, "  show   the LARGEST parcel ")
	k2 := Intent("llama3-8b-8192", 1, 7, "show the largest parcel")
	if k1 != k2 {
		t.Fatalf("normalized keys differ:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestDifference(t *testing.T) {
	base := Intent("m", 1, 7, "parcels near gpz")
	if base == Intent("m", 1, 7, "parcels near gpz 200m") {
		t.Fatalf("different queries must differ")
	}
	if base == Intent("m", 2, 7, "parcels near gpz") {
		t.Fatalf("prompt revision must be part of the key")
	}
	if base == Intent("other", 1, 7, "parcels near gpz") {
		t.Fatalf("model must be part of the key")
	}
	if base == Intent("m", 1, 8, "parcels near gpz") {
		t.Fatalf("catalogue fingerprint must be part of the key")
	}
}

func TestKeyShape_ASCIIOnly(t *testing.T) {
	k := Intent("models/gemini:2.5 ✨", 3, 7, "działki bez budynków")
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !regexp.MustCompile(`^intent:[A-Za-z0-9._\-]+:p3:c=0{15}7:q=[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("unexpected key shape: %s", k)
	}
	if strings.Count(k, ":") != 4 {
		t.Fatalf("model separators must be sanitized: %s", k)
	}
	if !strings.HasPrefix(Intent("", 1, 7, "x"), "intent:default:") {
		t.Fatalf("empty model should map to default")
	}
}
