// Package geoerr defines the error kinds raised by the query engine.
//
// Every error carries a technical message for logs and a separate user-facing
// message fixed at construction. Callers branch on Kind, never on text.
package geoerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInvalidLayerName
	KindLayerNotFound
	KindSpatialQuery
	KindGISDataProcessing
	KindDatabaseConnection
	KindIntentClassification
	KindLLMTimeout
	KindLLMService
	KindLLMAPIKey
)

var kindCodes = map[Kind]string{
	KindUnknown:              "INTERNAL_ERROR",
	KindValidation:           "VALIDATION_ERROR",
	KindInvalidLayerName:     "INVALID_LAYER_NAME",
	KindLayerNotFound:        "LAYER_NOT_FOUND",
	KindSpatialQuery:         "SPATIAL_QUERY_ERROR",
	KindGISDataProcessing:    "GIS_DATA_PROCESSING_ERROR",
	KindDatabaseConnection:   "DATABASE_CONNECTION_ERROR",
	KindIntentClassification: "INTENT_CLASSIFICATION_ERROR",
	KindLLMTimeout:           "LLM_TIMEOUT_ERROR",
	KindLLMService:           "LLM_SERVICE_ERROR",
	KindLLMAPIKey:            "LLM_API_KEY_ERROR",
}

// Code is the stable wire identifier of the kind.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

func (k Kind) String() string { return k.Code() }

type Error struct {
	Kind        Kind
	Message     string
	UserMessage string
	Details     map[string]any
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return e.Kind.Code() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func Validation(msg string, details map[string]any) *Error {
	return &Error{
		Kind:        KindValidation,
		Message:     msg,
		UserMessage: "The request parameters are invalid: " + msg + ".",
		Details:     details,
	}
}

// InvalidLayerName carries the attempted name and the whole synonym catalogue
// so the caller can tell the user what is available.
func InvalidLayerName(name string, synonyms []string) *Error {
	cp := append([]string(nil), synonyms...)
	return &Error{
		Kind:    KindInvalidLayerName,
		Message: fmt.Sprintf("unknown layer %q", name),
		UserMessage: fmt.Sprintf("Layer %q is not recognised. Available layers: %s.",
			name, strings.Join(cp, ", ")),
		Details: map[string]any{"layer": name, "synonyms": cp},
	}
}

func LayerNotFound(layer, table string) *Error {
	return &Error{
		Kind:        KindLayerNotFound,
		Message:     fmt.Sprintf("layer %q has no data (table %s)", layer, table),
		UserMessage: fmt.Sprintf("No data was found for layer %q.", layer),
		Details:     map[string]any{"layer": layer, "table": table},
	}
}

func SpatialQuery(op string, params map[string]any, err error) *Error {
	return &Error{
		Kind:        KindSpatialQuery,
		Message:     fmt.Sprintf("spatial query %s failed", op),
		UserMessage: "The spatial query could not be completed. Please try again later.",
		Details:     map[string]any{"operation": op, "params": params},
		Err:         err,
	}
}

func GISDataProcessing(stage string, err error) *Error {
	return &Error{
		Kind:        KindGISDataProcessing,
		Message:     "gis data processing failed at " + stage,
		UserMessage: "The map data could not be prepared for display.",
		Details:     map[string]any{"stage": stage},
		Err:         err,
	}
}

func DatabaseConnection(err error) *Error {
	return &Error{
		Kind:        KindDatabaseConnection,
		Message:     "database connection failed",
		UserMessage: "The spatial database is currently unavailable.",
		Err:         err,
	}
}

func IntentClassification(msg string, raw string) *Error {
	return &Error{
		Kind:        KindIntentClassification,
		Message:     msg,
		UserMessage: "The question could not be understood. Try rephrasing it.",
		Details:     map[string]any{"response": raw},
	}
}

func LLMTimeout(timeout time.Duration) *Error {
	return &Error{
		Kind:        KindLLMTimeout,
		Message:     fmt.Sprintf("language model did not answer within %s", timeout),
		UserMessage: "The assistant took too long to answer. Please try again.",
		Details:     map[string]any{"timeout_seconds": timeout.Seconds()},
	}
}

func LLMService(err error) *Error {
	return &Error{
		Kind:        KindLLMService,
		Message:     "language model call failed",
		UserMessage: "The assistant service is temporarily unavailable.",
		Err:         err,
	}
}

func LLMAPIKey(err error) *Error {
	return &Error{
		Kind:        KindLLMAPIKey,
		Message:     "language model rejected the api key",
		UserMessage: "The assistant service is misconfigured. Contact the administrator.",
		Err:         err,
	}
}
