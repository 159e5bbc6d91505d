package storage

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spaolacci/murmur3"

	"github.com/layerkv/layerkv/internal/core/domain"
	"github.com/layerkv/layerkv/internal/storage/memory"
	"github.com/layerkv/layerkv/internal/storage/overlay"
)

// Config configures the storage engine.
type Config struct {
	// CapacityBytes is the memory-tier budget of the active layer.
	// Zero sends every entry to the overlay.
	CapacityBytes int64

	// Overlay creates the per-layer overlay objects.
	Overlay *overlay.Factory

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Stats holds cumulative engine counters.
type Stats struct {
	OverlayWrites atomic.Uint64
	Promotions    atomic.Uint64
	Expired       atomic.Uint64
}

// Engine is the layered store. See the package documentation.
type Engine struct {
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
	id      string
	layers  []*layer
	stats   Stats
	stopped bool
}

// New creates an engine with a single empty base layer.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Overlay == nil {
		return nil, fmt.Errorf("storage: overlay factory is required")
	}
	if cfg.CapacityBytes < 0 {
		return nil, fmt.Errorf("storage: negative capacity %d", cfg.CapacityBytes)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Engine{
		cfg:    cfg,
		now:    cfg.Now,
		logger: cfg.Logger,
		id:     ulid.MustNew(ulid.Timestamp(cfg.Now()), ulid.DefaultEntropy()).String(),
	}

	ov, err := e.createOverlay(ctx, 1, nil)
	if err != nil {
		return nil, err
	}
	e.layers = []*layer{newLayer(ov)}

	e.logger.Info("storage engine created",
		"instance", e.id,
		"capacity_bytes", cfg.CapacityBytes,
		"overlay_engine", cfg.Overlay.Engine(),
		"overlay_dir", cfg.Overlay.Dir())
	return e, nil
}

// InstanceID returns the identifier embedded in overlay object names.
func (e *Engine) InstanceID() string {
	return e.id
}

// Stats returns the engine counters.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// Capacity returns the memory-tier budget.
func (e *Engine) Capacity() int64 {
	return e.cfg.CapacityBytes
}

// Depth returns the number of layers, including the base.
func (e *Engine) Depth() int {
	return len(e.layers)
}

// Bytes returns the memory-tier usage of the active layer.
func (e *Engine) Bytes() int64 {
	return e.top().cache.Bytes()
}

// Len returns the number of live keys in the active layer.
func (e *Engine) Len() int {
	return len(e.top().expiry)
}

func (e *Engine) top() *layer {
	return e.layers[len(e.layers)-1]
}

func (e *Engine) createOverlay(ctx context.Context, depth int, seed map[string]string) (overlay.Store, error) {
	name := strconv.Itoa(depth) + "-" + e.id
	// A failed DeleteSaves can leave a surviving layer holding this name.
	for n := 1; e.overlayInUse(name); n++ {
		name = strconv.Itoa(depth) + "-" + e.id + "-" + strconv.Itoa(n)
	}
	ov, err := e.cfg.Overlay.Create(ctx, name, seed)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("create overlay " + name).WithCause(err)
	}
	return ov, nil
}

func (e *Engine) overlayInUse(name string) bool {
	for _, l := range e.layers {
		if l.overlay.Name() == name {
			return true
		}
	}
	return false
}

// Set stores key=value in the active layer with a lifetime of ttl seconds.
//
// The value goes to the memory tier when it fits the budget, otherwise to
// the overlay. Either way any copy in the other tier is removed.
func (e *Engine) Set(ctx context.Context, key, value string, ttl int64) (string, error) {
	if ttl <= 0 || ttl > domain.MaxTTL {
		return "", domain.ErrInvalidTTL.WithDetails(strconv.FormatInt(ttl, 10))
	}
	l := e.top()

	var current int64
	if old, ok := l.cache.Get(key); ok {
		current = memory.Size(key, old)
	}

	if l.cache.Bytes()-current+memory.Size(key, value) > e.cfg.CapacityBytes {
		if err := l.overlay.Put(ctx, key, value); err != nil {
			return "", domain.ErrStorage.WithDetails("put " + key).WithCause(err)
		}
		e.stats.OverlayWrites.Add(1)
		l.cache.Delete(key)
		l.cold[key] = struct{}{}
	} else {
		if l.isCold(key) {
			if _, err := l.overlay.Delete(ctx, key); err != nil {
				return "", domain.ErrStorage.WithDetails("delete " + key).WithCause(err)
			}
			delete(l.cold, key)
		}
		l.cache.Set(key, value)
	}

	l.track(key, e.now().Add(time.Duration(ttl)*time.Second))
	return `"` + key + `" = "` + value + `"`, nil
}

// Get returns the quoted value of key in the active layer.
//
// A key found in the overlay is promoted to the memory tier when it fits.
func (e *Engine) Get(ctx context.Context, key string) (string, error) {
	l := e.top()
	if v, ok := l.cache.Get(key); ok {
		return `"` + v + `"`, nil
	}
	if !l.isCold(key) {
		return "", domain.ErrKeyNotFound.WithDetails(key)
	}

	v, ok, err := l.overlay.Get(ctx, key)
	if err != nil {
		return "", domain.ErrStorage.WithDetails("get " + key).WithCause(err)
	}
	if !ok {
		// Index and overlay disagree; trust the overlay.
		delete(l.cold, key)
		delete(l.expiry, key)
		return "", domain.ErrKeyNotFound.WithDetails(key)
	}

	if l.cache.Bytes()+memory.Size(key, v) <= e.cfg.CapacityBytes {
		if _, err := l.overlay.Delete(ctx, key); err != nil {
			return "", domain.ErrStorage.WithDetails("promote " + key).WithCause(err)
		}
		delete(l.cold, key)
		l.cache.Set(key, v)
		e.stats.Promotions.Add(1)
	}
	return `"` + v + `"`, nil
}

// Delete removes key from the active layer.
func (e *Engine) Delete(ctx context.Context, key string) (string, error) {
	if err := e.remove(ctx, e.top(), key); err != nil {
		return "", err
	}
	return `Key "` + key + `" deleted`, nil
}

func (e *Engine) remove(ctx context.Context, l *layer, key string) error {
	if _, ok := l.cache.Delete(key); !ok {
		if !l.isCold(key) {
			return domain.ErrKeyNotFound.WithDetails(key)
		}
		if _, err := l.overlay.Delete(ctx, key); err != nil {
			return domain.ErrStorage.WithDetails("delete " + key).WithCause(err)
		}
		delete(l.cold, key)
	}
	delete(l.expiry, key)
	return nil
}

// Size reports memory-tier usage against the budget.
func (e *Engine) Size() string {
	return strconv.FormatInt(e.Bytes(), 10) + " / " + strconv.FormatInt(e.cfg.CapacityBytes, 10) + " bytes"
}

// PrintAll renders both tiers of the active layer, in key order.
func (e *Engine) PrintAll(ctx context.Context) (string, error) {
	l := e.top()
	var b strings.Builder

	if l.cache.Len() == 0 {
		b.WriteString("Cache is empty\n")
	} else {
		b.WriteString("Cache contents:\n")
		l.cache.Ascend(func(k, v string) bool {
			b.WriteString(` - "` + k + `" = "` + v + "\"\n")
			return true
		})
	}

	cold, err := l.overlay.All(ctx)
	if err != nil {
		return "", domain.ErrStorage.WithDetails("load overlay").WithCause(err)
	}
	if len(cold) == 0 {
		b.WriteString("Persistent storage is empty")
	} else {
		b.WriteString("Persistent storage:")
		for _, k := range slices.Sorted(maps.Keys(cold)) {
			b.WriteString("\n - \"" + k + `" = "` + cold[k] + `"`)
		}
	}
	return b.String(), nil
}

// Push saves the active layer and makes a copy of it the new active layer.
func (e *Engine) Push(ctx context.Context) (string, error) {
	l := e.top()
	seed, err := l.overlay.All(ctx)
	if err != nil {
		return "", domain.ErrStorage.WithDetails("load overlay").WithCause(err)
	}
	ov, err := e.createOverlay(ctx, len(e.layers)+1, seed)
	if err != nil {
		return "", err
	}
	e.layers = append(e.layers, l.clone(ov))

	e.logger.Debug("layer pushed", "depth", len(e.layers), "overlay", ov.Name())
	return "Cache state saved", nil
}

// Pop discards the active layer, restoring the previous one.
func (e *Engine) Pop(_ context.Context) (string, error) {
	if len(e.layers) < 2 {
		return "", domain.ErrNoSavedState
	}
	l := e.top()
	e.layers = e.layers[:len(e.layers)-1]
	if err := l.overlay.Remove(); err != nil {
		e.logger.Warn("remove overlay failed", "overlay", l.overlay.Name(), "error", err)
	}

	e.logger.Debug("layer popped", "depth", len(e.layers))
	return "Cache reversed to last saved state", nil
}

// DeleteSaves drops every saved layer, keeping the active one as the new base.
//
// The saved layers' overlays are removed and the active layer's overlay is
// rewritten under the base name. If the rewrite fails the active layer keeps
// its current overlay and is still the only layer.
func (e *Engine) DeleteSaves(ctx context.Context) (string, error) {
	l := e.top()
	if len(e.layers) == 1 {
		return "Cache saves deleted", nil
	}
	seed, err := l.overlay.All(ctx)
	if err != nil {
		return "", domain.ErrStorage.WithDetails("load overlay").WithCause(err)
	}
	for _, old := range e.layers[:len(e.layers)-1] {
		if err := old.overlay.Remove(); err != nil {
			e.logger.Warn("remove overlay failed", "overlay", old.overlay.Name(), "error", err)
		}
	}
	e.layers = []*layer{l}

	ov, err := e.createOverlay(ctx, 1, seed)
	if err != nil {
		return "", err
	}
	if err := l.overlay.Remove(); err != nil {
		e.logger.Warn("remove overlay failed", "overlay", l.overlay.Name(), "error", err)
	}
	l.overlay = ov

	e.logger.Debug("saves deleted", "overlay", ov.Name())
	return "Cache saves deleted", nil
}

// Clear empties the active layer: both tiers, the heap and the index.
func (e *Engine) Clear(ctx context.Context) error {
	l := e.top()
	name := l.overlay.Name()
	if err := l.overlay.Remove(); err != nil {
		e.logger.Warn("remove overlay failed", "overlay", name, "error", err)
	}
	ov, err := e.createOverlay(ctx, len(e.layers), nil)
	if err != nil {
		return err
	}
	e.layers[len(e.layers)-1] = newLayer(ov)
	return nil
}

// NextExpiry returns the earliest pending expiry of the active layer.
// The entry behind it may be stale.
func (e *Engine) NextExpiry() (time.Time, bool) {
	l := e.top()
	if len(l.heap) == 0 {
		return time.Time{}, false
	}
	return l.heap.peek().Expiry, true
}

// ExpireNext processes the earliest TTL entry if it is due at now.
//
// due is false when nothing was due. Otherwise the entry is popped and
// removed reports whether it deleted a live key: a stale entry (superseded
// by a later Set, or for a deleted key) is dropped without touching the
// store.
func (e *Engine) ExpireNext(ctx context.Context, now time.Time) (key string, removed, due bool, err error) {
	l := e.top()
	if len(l.heap) == 0 || l.heap.peek().Expiry.After(now) {
		return "", false, false, nil
	}
	ent := l.heap.peek()
	if l.current(ent) {
		if err := e.remove(ctx, l, ent.Key); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
			return ent.Key, false, true, err
		}
		removed = true
		e.stats.Expired.Add(1)
	}
	l.heap.pop()
	return ent.Key, removed, true, nil
}

// PendingTTLs returns the number of heap entries in the active layer,
// stale ones included.
func (e *Engine) PendingTTLs() int {
	return len(e.top().heap)
}

// Replay returns the commands that rebuild the whole stack on an empty
// store, base layer first.
//
// Each layer contributes a SET per live key, ordered by expiry then key,
// with the remaining lifetime rounded up to whole seconds. Keys with no
// lifetime left are skipped. Layers are separated by PUSH.
func (e *Engine) Replay(ctx context.Context) ([]domain.Command, error) {
	now := e.now()
	var cmds []domain.Command

	for i, l := range e.layers {
		var cold map[string]string
		if len(l.cold) > 0 {
			var err error
			if cold, err = l.overlay.All(ctx); err != nil {
				return nil, domain.ErrStorage.WithDetails("load overlay").WithCause(err)
			}
		}

		live := make([]Entry, 0, len(l.expiry))
		for k, t := range l.expiry {
			live = append(live, Entry{Key: k, Expiry: t})
		}
		slices.SortFunc(live, func(a, b Entry) int {
			if c := a.Expiry.Compare(b.Expiry); c != 0 {
				return c
			}
			return cmp.Compare(a.Key, b.Key)
		})

		for _, ent := range live {
			ttl := remainingSeconds(ent.Expiry.Sub(now))
			if ttl <= 0 {
				continue
			}
			v, ok := l.cache.Get(ent.Key)
			if !ok {
				if v, ok = cold[ent.Key]; !ok {
					continue
				}
			}
			cmds = append(cmds, domain.Command{Verb: domain.VerbSet, Key: ent.Key, Value: v, TTL: ttl})
		}

		if i < len(e.layers)-1 {
			cmds = append(cmds, domain.Command{Verb: domain.VerbPush})
		}
	}
	return cmds, nil
}

// remainingSeconds rounds d up to whole seconds.
func remainingSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// Fingerprints returns one hash per layer, base first, over the layer's
// key/value pairs regardless of tier. Two engines holding the same data
// produce the same fingerprints.
func (e *Engine) Fingerprints(ctx context.Context) ([]uint64, error) {
	out := make([]uint64, 0, len(e.layers))
	for _, l := range e.layers {
		all := map[string]string{}
		if len(l.cold) > 0 {
			cold, err := l.overlay.All(ctx)
			if err != nil {
				return nil, domain.ErrStorage.WithDetails("load overlay").WithCause(err)
			}
			all = cold
		}
		l.cache.Ascend(func(k, v string) bool {
			all[k] = v
			return true
		})

		h := murmur3.New64()
		var n [binary.MaxVarintLen64]byte
		for _, k := range slices.Sorted(maps.Keys(all)) {
			v := all[k]
			h.Write(n[:binary.PutUvarint(n[:], uint64(len(k)))])
			h.Write([]byte(k))
			h.Write(n[:binary.PutUvarint(n[:], uint64(len(v)))])
			h.Write([]byte(v))
		}
		out = append(out, h.Sum64())
	}
	return out, nil
}

// Close removes every overlay object. The engine is unusable afterwards.
func (e *Engine) Close() error {
	if e.stopped {
		return nil
	}
	e.stopped = true

	var errs []error
	for _, l := range e.layers {
		if err := l.overlay.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	e.logger.Info("storage engine closed", "instance", e.id, "layers", len(e.layers))
	return errors.Join(errs...)
}
