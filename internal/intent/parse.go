package intent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
)

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// parseResponse reads {"route": {"intent": ..., <params>}} or the flat
// {"intent": ..., <params>} form, tolerating markdown fences and chatter
// around the object.
func parseResponse(raw, query string) (ClassifiedIntent, error) {
	var doc map[string]any
	if err := decodeLoose(raw, &doc); err != nil {
		return ClassifiedIntent{}, geoerr.IntentClassification(err.Error(), raw)
	}

	route := doc
	if r, ok := doc["route"].(map[string]any); ok {
		route = r
	}
	name, _ := route["intent"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return ClassifiedIntent{}, geoerr.IntentClassification("no intent found in response", raw)
	}
	op := Operation(name)
	if !op.Valid() {
		return ClassifiedIntent{}, geoerr.IntentClassification(fmt.Sprintf("unknown intent %q", name), raw)
	}

	params := make(map[string]any, len(route))
	for k, v := range route {
		if k == "intent" {
			continue
		}
		params[k] = v
	}
	return ClassifiedIntent{Operation: op, Params: params, Query: query}, nil
}

func decodeLoose(input string, target any) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(input), target); err == nil {
		return nil
	}
	if m := fenced.FindStringSubmatch(input); len(m) > 1 {
		if err := json.Unmarshal([]byte(m[1]), target); err == nil {
			return nil
		}
	}
	if start := strings.Index(input, "{"); start >= 0 {
		if obj := balancedObject(input[start:]); obj != "" {
			if err := json.Unmarshal([]byte(obj), target); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("response is not a JSON object: %s", truncate(input, 100))
}

// balancedObject returns the first brace-balanced object, ignoring braces
// inside strings.
func balancedObject(s string) string {
	depth := 0
	inString, escape := false, false
	for i, ch := range s {
		switch {
		case escape:
			escape = false
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
