package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/geoquery/internal/cache"
	"github.com/mohammed-shakir/geoquery/internal/cache/keys"
	"github.com/mohammed-shakir/geoquery/internal/layers"
)

// Cache stores classifications in Redis keyed by model, prompt revision,
// catalogue fingerprint and normalized query text.
type Cache struct {
	store cache.Interface
	ttl   time.Duration
}

func NewCache(store cache.Interface, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{store: store, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, model string, catalog uint64, query string) (ClassifiedIntent, bool, error) {
	b, ok, err := c.store.Get(ctx, keys.Intent(model, PromptRev, catalog, query))
	if err != nil || !ok {
		return ClassifiedIntent{}, false, err
	}
	var ci ClassifiedIntent
	if err := json.Unmarshal(b, &ci); err != nil {
		return ClassifiedIntent{}, false, fmt.Errorf("decode cached intent: %w", err)
	}
	if !ci.Operation.Valid() {
		return ClassifiedIntent{}, false, nil
	}
	ci.Query, ci.Cached = query, true
	return ci, true, nil
}

func (c *Cache) Put(ctx context.Context, model string, catalog uint64, ci ClassifiedIntent) error {
	b, err := json.Marshal(ci)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	return c.store.Set(ctx, keys.Intent(model, PromptRev, catalog, ci.Query), b, c.ttl)
}

func memoKey(catalog uint64, query string) string {
	return fmt.Sprintf("%016x|%s", catalog, keys.NormalizeQuery(query))
}

// fingerprint hashes the parts of the catalogue the prompt shows, so a
// reload that renames a layer or changes its synonyms misses old entries.
func fingerprint(descs []layers.Descriptor) uint64 {
	h := xxhash.New()
	for _, d := range descs {
		_, _ = h.WriteString(d.Name)
		_, _ = h.WriteString("\x00")
		for _, syn := range d.Synonyms {
			_, _ = h.WriteString(syn)
			_, _ = h.WriteString("\x01")
		}
		_, _ = h.WriteString("\x02")
	}
	return h.Sum64()
}
