package intent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/observability"
	"github.com/mohammed-shakir/geoquery/internal/layers"
	mylog "github.com/mohammed-shakir/geoquery/internal/logger"
)

// ErrUnauthorized is returned (wrapped) by backends when the provider
// rejects the API key.
var ErrUnauthorized = errors.New("llm: unauthorized")

// Backend completes a prompt. Implementations must honour ctx cancellation.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	Timeout  time.Duration
	Model    string
	MemoSize int
}

type Classifier struct {
	backend Backend
	layers  LayerLister
	cfg     Config
	cache   *Cache
	memo    *lru.Cache[string, ClassifiedIntent]
	log     *slog.Logger

	startNow func() time.Time // for tests
}

type Option func(*Classifier)

// WithCache consults c before calling the backend.
func WithCache(c *Cache) Option {
	return func(cl *Classifier) { cl.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Classifier) { cl.log = l }
}

func NewClassifier(b Backend, ll LayerLister, cfg Config, opts ...Option) *Classifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cl := &Classifier{
		backend:  b,
		layers:   ll,
		cfg:      cfg,
		log:      slog.Default(),
		startNow: time.Now,
	}
	if cfg.MemoSize > 0 {
		// only errors on size <= 0
		cl.memo, _ = lru.New[string, ClassifiedIntent](cfg.MemoSize)
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

type completion struct {
	text string
	err  error
}

// Classify maps query to one operation. The backend gets at most one call,
// bounded by the configured timeout.
func (c *Classifier) Classify(ctx context.Context, query string) (ClassifiedIntent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ClassifiedIntent{}, geoerr.Validation("query is empty", nil)
	}
	ctx = mylog.WithComponent(ctx, "intent")

	// one catalogue read so the cache key matches the prompt
	var descs []layers.Descriptor
	if c.layers != nil {
		descs = c.layers.ListAll()
	}
	fp := fingerprint(descs)

	if ci, ok := c.lookup(ctx, fp, query); ok {
		observability.IncIntent("cached")
		return ci, nil
	}

	prompt, err := renderPrompt(descs, query)
	if err != nil {
		return ClassifiedIntent{}, geoerr.LLMService(err)
	}

	text, err := c.complete(ctx, prompt)
	if err != nil {
		observability.IncIntent(geoerr.KindOf(err).Code())
		return ClassifiedIntent{}, err
	}

	ci, err := parseResponse(text, query)
	if err != nil {
		c.log.WarnContext(ctx, "unusable classification", "err", err)
		observability.IncIntent(geoerr.KindOf(err).Code())
		return ClassifiedIntent{}, err
	}
	c.log.InfoContext(ctx, "intent classified", "intent", string(ci.Operation))
	observability.IncIntent(string(ci.Operation))
	c.store(ctx, fp, ci)
	return ci, nil
}

func (c *Classifier) complete(ctx context.Context, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := c.startNow()
	done := make(chan completion, 1)
	go func() {
		text, err := c.backend.Complete(cctx, prompt)
		done <- completion{text: text, err: err}
	}()

	var res completion
	select {
	case res = <-done:
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", geoerr.LLMTimeout(c.cfg.Timeout)
		}
		return "", geoerr.LLMService(ctx.Err())
	}

	elapsed := c.startNow().Sub(start)
	observability.ObserveUpstreamLatency("llm", res.err, elapsed.Seconds())
	if elapsed >= c.cfg.Timeout {
		return "", geoerr.LLMTimeout(c.cfg.Timeout)
	}
	switch {
	case res.err == nil:
		return res.text, nil
	case errors.Is(res.err, ErrUnauthorized):
		return "", geoerr.LLMAPIKey(res.err)
	case errors.Is(res.err, context.DeadlineExceeded):
		return "", geoerr.LLMTimeout(c.cfg.Timeout)
	default:
		return "", geoerr.LLMService(res.err)
	}
}

func (c *Classifier) lookup(ctx context.Context, fp uint64, query string) (ClassifiedIntent, bool) {
	key := memoKey(fp, query)
	if c.memo != nil {
		if ci, ok := c.memo.Get(key); ok {
			ci.Query, ci.Cached = query, true
			return ci, true
		}
	}
	if c.cache == nil {
		return ClassifiedIntent{}, false
	}
	ci, ok, err := c.cache.Get(ctx, c.cfg.Model, fp, query)
	if err != nil {
		c.log.WarnContext(ctx, "intent cache read failed", "err", err)
		return ClassifiedIntent{}, false
	}
	if ok && c.memo != nil {
		c.memo.Add(key, ci)
	}
	return ci, ok
}

func (c *Classifier) store(ctx context.Context, fp uint64, ci ClassifiedIntent) {
	if c.memo != nil {
		c.memo.Add(memoKey(fp, ci.Query), ci)
	}
	if c.cache != nil {
		if err := c.cache.Put(ctx, c.cfg.Model, fp, ci); err != nil {
			c.log.WarnContext(ctx, "intent cache write failed", "err", err)
		}
	}
}
