package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 256
	}
	c, _ := lru.New[string, uint64](size)
	return &versionDedupe{lru: c}
}

// fresh reports whether v is newer than the last committed revision for key.
func (d *versionDedupe) fresh(key string, v uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return !ok || v > last
}

// commit records v once it has been applied. Older revisions never replace a
// newer one.
func (d *versionDedupe) commit(key string, v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return
	}
	d.lru.Add(key, v)
}
