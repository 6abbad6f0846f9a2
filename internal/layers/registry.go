package layers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/mohammed-shakir/geoquery/internal/core/geoerr"
	"github.com/mohammed-shakir/geoquery/internal/core/observability"
)

// Source yields a complete layer catalogue.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Descriptor, error)
}

type snapshot struct {
	descs    []Descriptor
	byName   map[string]int
	synonyms []string
	version  uint64
}

// Registry holds an immutable catalogue snapshot. Refreshing swaps the whole
// snapshot so concurrent readers always see one consistent catalogue.
type Registry struct {
	snap atomic.Pointer[snapshot]
	// serialises writers so versions are strictly increasing
	mu sync.Mutex
}

func New(descs []Descriptor) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(descs); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace validates descs and installs them as the new snapshot. On error the
// previous snapshot stays active.
func (r *Registry) Replace(descs []Descriptor) error {
	if len(descs) == 0 {
		return errors.New("layer catalogue is empty")
	}
	s := &snapshot{
		descs:  make([]Descriptor, 0, len(descs)),
		byName: make(map[string]int, len(descs)),
	}
	owner := map[string]string{}
	for _, d := range descs {
		nd, err := d.normalized()
		if err != nil {
			return err
		}
		key := Normalize(nd.Name)
		if _, dup := s.byName[key]; dup {
			return fmt.Errorf("duplicate layer %q", nd.Name)
		}
		for _, syn := range nd.Synonyms {
			if prev, taken := owner[syn]; taken {
				return fmt.Errorf("synonym %q registered for both %s and %s", syn, prev, nd.Name)
			}
			owner[syn] = nd.Name
			s.synonyms = append(s.synonyms, syn)
		}
		s.byName[key] = len(s.descs)
		s.descs = append(s.descs, nd)
	}
	r.mu.Lock()
	if prev := r.snap.Load(); prev != nil {
		s.version = prev.version + 1
	}
	r.snap.Store(s)
	r.mu.Unlock()
	observability.SetCatalogSize(len(s.descs))
	return nil
}

// Reload loads a catalogue from src and swaps it in.
func (r *Registry) Reload(ctx context.Context, src Source) error {
	descs, err := src.Load(ctx)
	if err == nil {
		err = r.Replace(descs)
	}
	observability.IncCatalogReload(src.Name(), err)
	if err != nil {
		return fmt.Errorf("reload catalogue from %s: %w", src.Name(), err)
	}
	return nil
}

// Resolve maps a loose layer reference to its descriptor.
//
// An exact match on a logical name or synonym wins. Otherwise every synonym
// contained in the input is a candidate and the longest one wins; equal
// lengths go to the layer registered first.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	s := r.snap.Load()
	in := Normalize(name)
	if in == "" {
		return Descriptor{}, geoerr.InvalidLayerName(name, s.synonyms)
	}
	if i, ok := s.byName[in]; ok {
		return s.descs[i].clone(), nil
	}

	best, bestLen := -1, 0
	for i, d := range s.descs {
		for _, syn := range d.Synonyms {
			if syn == in {
				return d.clone(), nil
			}
			if n := utf8.RuneCountInString(syn); n > bestLen && strings.Contains(in, syn) {
				best, bestLen = i, n
			}
		}
	}
	if best < 0 {
		return Descriptor{}, geoerr.InvalidLayerName(name, s.synonyms)
	}
	return s.descs[best].clone(), nil
}

// Lookup finds a layer by exact logical name (case-insensitive).
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	s := r.snap.Load()
	i, ok := s.byName[Normalize(name)]
	if !ok {
		return Descriptor{}, false
	}
	return s.descs[i].clone(), true
}

// ListAll returns the catalogue in registration order.
func (r *Registry) ListAll() []Descriptor {
	s := r.snap.Load()
	out := make([]Descriptor, len(s.descs))
	for i, d := range s.descs {
		out[i] = d.clone()
	}
	return out
}

func (r *Registry) Synonyms() []string {
	return append([]string(nil), r.snap.Load().synonyms...)
}

// Version increases by one on every successful Replace.
func (r *Registry) Version() uint64 { return r.snap.Load().version }

func (d Descriptor) clone() Descriptor {
	d.Synonyms = append([]string(nil), d.Synonyms...)
	return d
}
