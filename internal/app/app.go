// Package app constructs the query engine from configuration. Both binaries
// build through here; nothing in the tree holds package-level singletons.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/geoquery/internal/cache/redisstore"
	"github.com/mohammed-shakir/geoquery/internal/core/config"
	"github.com/mohammed-shakir/geoquery/internal/core/executor"
	"github.com/mohammed-shakir/geoquery/internal/core/httpclient"
	"github.com/mohammed-shakir/geoquery/internal/core/observability"
	"github.com/mohammed-shakir/geoquery/internal/core/server"
	"github.com/mohammed-shakir/geoquery/internal/dispatch"
	"github.com/mohammed-shakir/geoquery/internal/intent"
	"github.com/mohammed-shakir/geoquery/internal/layers"
	"github.com/mohammed-shakir/geoquery/internal/llm/gemini"
	"github.com/mohammed-shakir/geoquery/internal/llm/openai"
	h3mapper "github.com/mohammed-shakir/geoquery/internal/mapper/h3"
	"github.com/mohammed-shakir/geoquery/internal/metrics"
	"github.com/mohammed-shakir/geoquery/internal/postgis"
	"github.com/mohammed-shakir/geoquery/internal/query"
	"github.com/mohammed-shakir/geoquery/internal/shaper"
	catalogkafka "github.com/mohammed-shakir/geoquery/pkg/catalogsync/kafka"
)

type App struct {
	Cfg        config.Config
	Log        *slog.Logger
	Registry   *layers.Registry
	Store      *postgis.Store
	Dispatcher *dispatch.Dispatcher
	Layers     *dispatch.LayerService

	catalog layers.Source
	redis   *redisstore.Client
	newSync func(catalogkafka.Config, catalogkafka.Reloader, catalogkafka.Options) syncRunner // for tests
}

type syncRunner interface {
	Start(ctx context.Context) error
	Stop()
	Readiness() (ready bool, partitions []int32)
}

func newKafkaSync(cfg catalogkafka.Config, rl catalogkafka.Reloader, opts catalogkafka.Options) syncRunner {
	return catalogkafka.New(cfg, rl, opts)
}

// LLM is what a provider client offers: JSON completion for the classifier
// and free text for chat.
type LLM interface {
	intent.Backend
	dispatch.Generator
}

// Build opens the database, loads the layer catalogue and wires the pipeline.
// Callers must Close the result.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	store, err := postgis.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &App{Cfg: cfg, Log: log, Store: store}

	a.catalog, err = CatalogSource(cfg.Catalog, store)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	descs, err := a.catalog.Load(ctx)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load layer catalogue: %w", err)
	}
	if a.Registry, err = layers.New(descs); err != nil {
		_ = a.Close()
		return nil, err
	}
	log.Info("layer catalogue loaded", "source", a.catalog.Name(), "layers", len(descs))

	llm, err := NewLLM(ctx, cfg.LLM, httpclient.NewOutbound(cfg.LLM.Timeout+5*time.Second))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []intent.Option{intent.WithLogger(log)}
	if cfg.IntentCache {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("intent cache unavailable; continuing without it", "addr", cfg.RedisAddr, "err", err)
		} else {
			a.redis = rc
			opts = append(opts, intent.WithCache(intent.NewCache(rc, cfg.IntentCacheTTL)))
		}
	}
	classifier := intent.NewClassifier(llm, a.Registry, intent.Config{
		Timeout:  cfg.LLM.Timeout,
		Model:    cfg.LLM.Model,
		MemoSize: 512,
	}, opts...)

	cells := h3mapper.New()
	planner := query.NewBuilder(a.Registry, cfg.TargetLayer)
	exec := executor.New(log, store)
	sh := shaper.New(shaper.Config{NativeSRID: cfg.NativeSRID, H3Res: cfg.H3Res}, cells)

	a.Dispatcher = dispatch.New(classifier, llm, planner, exec, sh, dispatch.Config{ChatTimeout: cfg.LLM.Timeout}, log)
	a.Layers = dispatch.NewLayerService(a.Registry, store, planner, exec, sh, cells, dispatch.LayerConfig{
		NativeSRID:        cfg.NativeSRID,
		BoundsConcurrency: cfg.LayerBoundsLimit,
		DistributionLayer: cfg.TargetLayer,
	}, log)
	return a, nil
}

// CatalogSource picks where layer descriptors come from.
func CatalogSource(cfg config.CatalogCfg, store *postgis.Store) (layers.Source, error) {
	switch cfg.Source {
	case "", "static":
		return layers.StaticSource(layers.Defaults()), nil
	case "file":
		return layers.FileSource{Path: cfg.File}, nil
	case "db":
		if store == nil {
			return nil, errors.New("db catalogue source needs a database")
		}
		return postgis.Catalog{Store: store}, nil
	default:
		return nil, fmt.Errorf("unknown LAYER_CATALOG_SOURCE %q (want static, file or db)", cfg.Source)
	}
}

// NewLLM returns the configured provider client.
func NewLLM(ctx context.Context, cfg config.LLMCfg, hc *http.Client) (LLM, error) {
	switch cfg.Provider {
	case "", "openai", "groq":
		return openai.New(openai.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, hc), nil
	case "gemini":
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, hc)
		if errors.Is(err, intent.ErrUnauthorized) {
			return missingKey{}, nil
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (want openai or gemini)", cfg.Provider)
	}
}

// missingKey stands in for a provider without credentials so the server
// still starts and each LLM call reports LLM_API_KEY_ERROR.
type missingKey struct{}

func (missingKey) Complete(context.Context, string) (string, error) {
	return "", intent.ErrUnauthorized
}

func (missingKey) Generate(context.Context, string) (string, error) {
	return "", intent.ErrUnauthorized
}

// Serve runs the HTTP server plus the optional metrics listener, catalogue
// watcher and catalogue sync until ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context, version string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if a.Cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    a.Cfg.MetricsAddr,
			Path:    a.Cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:   version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer(), true)
		reg = p.Registerer()
		g.Go(func() error { return p.Serve(gctx, a.Log) })
	}
	observability.ExposeBuildInfo(version)

	if fs, ok := a.catalog.(layers.FileSource); ok && a.Cfg.Catalog.Watch {
		g.Go(func() error { return layers.Watch(gctx, a.Registry, fs, a.Log) })
	}

	deps := server.Deps{Dispatcher: a.Dispatcher, Layers: a.Layers, DB: a.Store}
	if a.Cfg.CatalogSync.Enabled {
		newSync := a.newSync
		if newSync == nil {
			newSync = newKafkaSync
		}
		runner := newSync(catalogkafka.NewConfig(a.Cfg.CatalogSync), a.reloader(), catalogkafka.Options{
			Logger:   a.Log,
			Register: reg,
		})
		if err := runner.Start(gctx); err != nil {
			// stop the listeners already started above
			cancel()
			_ = g.Wait()
			return fmt.Errorf("catalogue sync: %w", err)
		}
		deps.Sync = runner
		g.Go(func() error {
			<-gctx.Done()
			runner.Stop()
			return nil
		})
	}

	g.Go(func() error { return server.Run(gctx, a.Cfg, a.Log, deps) })
	return g.Wait()
}

// reloader refreshes the registry from the configured catalogue source.
func (a *App) reloader() catalogkafka.ReloadFunc {
	return func(ctx context.Context) error {
		return a.Registry.Reload(ctx, a.catalog)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
