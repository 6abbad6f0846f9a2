package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessReporter is implemented by the catalogue-sync consumer.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

const pingTimeout = 2 * time.Second

// Readiness reports ready when the database answers a ping and, if sync is
// non-nil, the catalogue consumer holds its partitions.
func Readiness(db Pinger, sync ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status      string  `json:"status"`
			Database    string  `json:"database"`
			CatalogSync string  `json:"catalog_sync,omitempty"`
			Partitions  []int32 `json:"partitions,omitempty"`
		}
		out := resp{Status: "ready", Database: "ok"}
		ready := true

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			err := db.Ping(ctx)
			cancel()
			if err != nil {
				ready = false
				out.Database = "unavailable"
			}
		}
		if sync != nil {
			ok, parts := sync.Readiness()
			out.CatalogSync = "ready"
			out.Partitions = parts
			if !ok {
				ready = false
				out.CatalogSync = "not_ready"
				out.Partitions = nil
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
