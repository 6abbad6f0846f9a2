// Package catalogsync defines the layer-catalogue change notification that
// producers publish when layer_config is edited.
package catalogsync

import (
	"fmt"
	"strings"
	"time"
)

const (
	OpReload = "reload"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// DefaultSource keys revisions when an event does not name its producer.
const DefaultSource = "layer_config"

// Event announces a new catalogue revision. Every op triggers a full reload;
// Layer is informational.
type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	Layer    string    `json:"layer,omitempty"`
	Revision uint64    `json:"revision"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpReload:
	case OpUpsert, OpDelete:
		if strings.TrimSpace(e.Layer) == "" {
			return fmt.Errorf("layer is required for %s", e.Op)
		}
	default:
		return fmt.Errorf("op must be reload|upsert|delete")
	}
	if e.Revision == 0 {
		return fmt.Errorf("revision must be positive")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Key is the dedupe key revisions are compared under.
func (e Event) Key() string {
	if s := strings.TrimSpace(e.Source); s != "" {
		return s
	}
	return DefaultSource
}
