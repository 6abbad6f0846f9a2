// Package router exposes the dispatcher and the layer API over HTTP and maps
// typed errors to status codes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/observability"
	"github.com/mohammed-shakir/geoquery/internal/dispatch"
	"github.com/mohammed-shakir/geoquery/internal/shaper"
)

// maxQueryLen bounds the chat input handed to the classifier.
const maxQueryLen = 2000

type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (dispatch.Response, error)
}

type LayerAPI interface {
	ListLayers(ctx context.Context) ([]dispatch.LayerInfo, error)
	GetLayer(ctx context.Context, name string, lowRes bool) (shaper.DisplayResult, error)
	GetLayerStatistics(ctx context.Context, name string) (dispatch.LayerStatistics, error)
	ValidateLayerData(ctx context.Context, name string) (dispatch.ValidationReport, error)
	AnalyzeParcelDistribution(ctx context.Context, name string, thresholds []float64) (dispatch.Distribution, error)
}

// Mount registers the /api/v1 routes on r.
func Mount(r chi.Router, logger *slog.Logger, d Dispatcher, l LayerAPI) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", HandleChat(logger, d))
		r.Get("/layers", HandleListLayers(logger, l))
		r.Get("/layers/{name}", HandleGetLayer(logger, l))
		r.Get("/layers/{name}/statistics", HandleLayerStatistics(logger, l))
		r.Get("/layers/{name}/validate", HandleValidateLayer(logger, l))
		r.Get("/analysis/parcel-distribution", HandleParcelDistribution(logger, l))
	})
}

type chatRequest struct {
	Query string `json:"query"`
}

func HandleChat(logger *slog.Logger, d Dispatcher) http.HandlerFunc {
	return observed(logger, "/api/v1/chat", func(w http.ResponseWriter, r *http.Request) error {
		var req chatRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
		if err := dec.Decode(&req); err != nil {
			return geoerr.Validation("request body must be JSON with a query field", map[string]any{"error": err.Error()})
		}
		q := strings.TrimSpace(req.Query)
		if q == "" {
			return geoerr.Validation("query is required", nil)
		}
		if n := utf8.RuneCountInString(q); n > maxQueryLen {
			return geoerr.Validation(fmt.Sprintf("query exceeds %d characters", maxQueryLen), map[string]any{"length": n})
		}

		resp, err := d.Dispatch(r.Context(), q)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, resp)
		return nil
	})
}

func HandleListLayers(logger *slog.Logger, l LayerAPI) http.HandlerFunc {
	return observed(logger, "/api/v1/layers", func(w http.ResponseWriter, r *http.Request) error {
		out, err := l.ListLayers(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"layers": out, "count": len(out)})
		return nil
	})
}

func HandleGetLayer(logger *slog.Logger, l LayerAPI) http.HandlerFunc {
	return observed(logger, "/api/v1/layers/{name}", func(w http.ResponseWriter, r *http.Request) error {
		lowRes, err := parseBool(r, "low_res", true)
		if err != nil {
			return err
		}
		res, err := l.GetLayer(r.Context(), chi.URLParam(r, "name"), lowRes)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, res)
		return nil
	})
}

func HandleLayerStatistics(logger *slog.Logger, l LayerAPI) http.HandlerFunc {
	return observed(logger, "/api/v1/layers/{name}/statistics", func(w http.ResponseWriter, r *http.Request) error {
		st, err := l.GetLayerStatistics(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, st)
		return nil
	})
}

func HandleValidateLayer(logger *slog.Logger, l LayerAPI) http.HandlerFunc {
	return observed(logger, "/api/v1/layers/{name}/validate", func(w http.ResponseWriter, r *http.Request) error {
		rep, err := l.ValidateLayerData(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rep)
		return nil
	})
}

func HandleParcelDistribution(logger *slog.Logger, l LayerAPI) http.HandlerFunc {
	return observed(logger, "/api/v1/analysis/parcel-distribution", func(w http.ResponseWriter, r *http.Request) error {
		th, err := ParseThresholds(r.URL.Query()["thresholds"])
		if err != nil {
			return err
		}
		dist, err := l.AnalyzeParcelDistribution(r.Context(), strings.TrimSpace(r.URL.Query().Get("layer")), th)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, dist)
		return nil
	})
}

// ParseThresholds accepts repeated values and comma-separated lists. No
// values gives nil so the service applies its defaults.
func ParseThresholds(raw []string) ([]float64, error) {
	var out []float64
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, geoerr.Validation(fmt.Sprintf("threshold %q is not a number", part), map[string]any{"threshold": part})
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func parseBool(r *http.Request, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, geoerr.Validation(fmt.Sprintf("%s must be a boolean", key), map[string]any{key: raw})
	}
	return b, nil
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// observed runs h, writes its error as the JSON envelope and records the
// request under route.
func observed(logger *slog.Logger, route string, h func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		if err := h(sw, r); err != nil {
			WriteError(r.Context(), logger, sw, err)
		}
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

// StatusFor maps an error kind to its HTTP status. Untyped errors are 500.
func StatusFor(err error) int {
	switch geoerr.KindOf(err) {
	case geoerr.KindValidation, geoerr.KindInvalidLayerName, geoerr.KindIntentClassification:
		return http.StatusBadRequest
	case geoerr.KindLayerNotFound:
		return http.StatusNotFound
	case geoerr.KindDatabaseConnection, geoerr.KindLLMAPIKey:
		return http.StatusServiceUnavailable
	case geoerr.KindLLMTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError writes the error envelope. Clients see the user message; the
// technical message is only logged.
func WriteError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := errorBody{Error: errorPayload{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred. Please try again later.",
	}}
	var ge *geoerr.Error
	if errors.As(err, &ge) {
		body.Error.Code = ge.Kind.Code()
		body.Error.Message = ge.UserMessage
		body.Error.Details = ge.Details
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(ctx, level, "request failed", "status", status, "code", body.Error.Code, "err", err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
