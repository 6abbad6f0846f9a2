// Package dispatch routes classified intents to the spatial pipeline or to
// free-text generation, and serves the direct layer API.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/geoquery/internal/core/executor"
	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/model"
	"github.com/mohammed-shakir/geoquery/internal/intent"
	mylog "github.com/mohammed-shakir/geoquery/internal/logger"
	"github.com/mohammed-shakir/geoquery/internal/query"
	"github.com/mohammed-shakir/geoquery/internal/shaper"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (intent.ClassifiedIntent, error)
}

// Generator answers free-text chat.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Planner interface {
	Build(c query.Criteria) (query.Plan, error)
}

type Shaper interface {
	Shape(raw model.RawFeatureSet, mode shaper.Mode, kind shaper.Kind) (shaper.DisplayResult, error)
}

type ResponseKind string

const (
	KindGeometry ResponseKind = "geometry"
	KindText     ResponseKind = "text"
)

type Response struct {
	Kind   ResponseKind          `json:"kind"`
	Intent intent.Operation      `json:"intent"`
	Result *shaper.DisplayResult `json:"result,omitempty"`
	Text   string                `json:"text,omitempty"`
}

type Config struct {
	// ChatTimeout bounds text generation for the chat operation.
	ChatTimeout time.Duration
}

type Dispatcher struct {
	classifier Classifier
	generator  Generator
	planner    Planner
	exec       executor.Interface
	shaper     Shaper
	cfg        Config
	log        *slog.Logger
}

func New(cl Classifier, gen Generator, p Planner, ex executor.Interface, sh Shaper, cfg Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 30 * time.Second
	}
	return &Dispatcher{classifier: cl, generator: gen, planner: p, exec: ex, shaper: sh, cfg: cfg, log: log}
}

// Dispatch classifies text and runs the matching operation.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (Response, error) {
	ci, err := d.classifier.Classify(ctx, text)
	if err != nil {
		return Response{}, err
	}
	return d.Route(ctx, ci)
}

// Route runs an already classified intent. Errors from the builder, executor
// and shaper are returned unchanged.
func (d *Dispatcher) Route(ctx context.Context, ci intent.ClassifiedIntent) (Response, error) {
	ctx = mylog.WithOperation(ctx, string(ci.Operation))

	if ci.Operation == intent.Chat {
		return d.chat(ctx, ci)
	}
	r, ok := routes[ci.Operation]
	if !ok {
		return Response{}, geoerr.Validation(fmt.Sprintf("unsupported operation %q", ci.Operation),
			map[string]any{"operation": string(ci.Operation)})
	}

	c, err := r.criteria(ci)
	if err != nil {
		return Response{}, err
	}
	plan, err := d.planner.Build(c)
	if err != nil {
		return Response{}, err
	}
	raw, err := d.exec.Execute(ctx, plan)
	if err != nil {
		return Response{}, err
	}
	res, err := d.shaper.Shape(raw, r.mode, r.kind)
	if err != nil {
		return Response{}, err
	}
	d.log.InfoContext(ctx, "operation served", "features", res.Count, "table", res.Table)
	return Response{Kind: KindGeometry, Intent: ci.Operation, Result: &res}, nil
}

const chatPreamble = `You are an assistant for a GIS map of Polish land parcels, buildings, GPZ substations, voivodeships and Natura 2000 areas.
Answer briefly in the language of the question. If the user seems to want map data, suggest how to ask for it.

Question: `

func (d *Dispatcher) chat(ctx context.Context, ci intent.ClassifiedIntent) (Response, error) {
	if d.generator == nil {
		return Response{}, geoerr.LLMService(errors.New("no text generator configured"))
	}
	cctx, cancel := context.WithTimeout(ctx, d.cfg.ChatTimeout)
	defer cancel()

	text, err := d.generator.Generate(cctx, chatPreamble+ci.Query)
	switch {
	case err == nil:
		return Response{Kind: KindText, Intent: intent.Chat, Text: text}, nil
	case errors.Is(err, intent.ErrUnauthorized):
		return Response{}, geoerr.LLMAPIKey(err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return Response{}, geoerr.LLMTimeout(d.cfg.ChatTimeout)
	default:
		return Response{}, geoerr.LLMService(err)
	}
}
