package storage

import (
	"maps"
	"time"

	"github.com/layerkv/layerkv/internal/storage/memory"
	"github.com/layerkv/layerkv/internal/storage/overlay"
)

// Heap compaction thresholds: rebuild once stale entries outnumber live
// keys two to one.
const (
	compactMinEntries = 64
	compactRatio      = 2
)

// layer is one level of the snapshot stack.
type layer struct {
	// cache is the memory tier; its byte count is the layer's usage.
	cache *memory.Cache

	// cold indexes the keys held by the overlay.
	cold map[string]struct{}

	// heap holds TTL entries, possibly stale.
	heap ttlHeap

	// expiry is the current expiry of every live key.
	expiry map[string]time.Time

	overlay overlay.Store
}

func newLayer(ov overlay.Store) *layer {
	return &layer{
		cache:   memory.New(),
		cold:    map[string]struct{}{},
		expiry:  map[string]time.Time{},
		overlay: ov,
	}
}

// clone deep-copies the in-memory state; the overlay is attached by the caller.
func (l *layer) clone(ov overlay.Store) *layer {
	return &layer{
		cache:   l.cache.Clone(),
		cold:    maps.Clone(l.cold),
		heap:    l.heap.clone(),
		expiry:  maps.Clone(l.expiry),
		overlay: ov,
	}
}

func (l *layer) isCold(key string) bool {
	_, ok := l.cold[key]
	return ok
}

// track records a new lifetime for key.
func (l *layer) track(key string, expiry time.Time) {
	l.expiry[key] = expiry
	l.heap.push(Entry{Key: key, Expiry: expiry})
	if len(l.heap) >= compactMinEntries && len(l.heap) > compactRatio*len(l.expiry) {
		l.heap.rebuild(l.expiry)
	}
}

// current reports whether e still describes key's lifetime.
func (l *layer) current(e Entry) bool {
	t, ok := l.expiry[e.Key]
	return ok && t.Equal(e.Expiry)
}
