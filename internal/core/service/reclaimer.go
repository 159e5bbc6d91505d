package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the default reclaimer poll interval.
const DefaultPollInterval = time.Second

// ExpireFunc runs one expiry step. It reports the key of the processed
// entry, whether a live key was removed, and whether anything was due.
type ExpireFunc func(ctx context.Context) (key string, removed, due bool, err error)

// Reclaimer is the background TTL loop.
//
// The loop drains every due entry, then sleeps one poll interval. A key is
// therefore removed within [expiry, expiry+interval). Stop and Pause join
// the loop before returning.
type Reclaimer struct {
	step     ExpireFunc
	interval time.Duration
	notify   func(key string)
	logger   *slog.Logger

	mu      sync.Mutex
	enabled bool
	paused  int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewReclaimer creates a stopped reclaimer. notify may be nil.
func NewReclaimer(step ExpireFunc, interval time.Duration, notify func(key string), logger *slog.Logger) *Reclaimer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reclaimer{
		step:     step,
		interval: interval,
		notify:   notify,
		logger:   logger,
	}
}

// Start starts the loop. It is a no-op when already running.
func (r *Reclaimer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
	r.launchLocked()
}

// Stop stops the loop and waits for it to exit.
func (r *Reclaimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
	r.haltLocked()
}

// Pause stops the loop until the matching Resume. Pauses nest.
func (r *Reclaimer) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused++
	if r.paused == 1 {
		r.haltLocked()
	}
}

// Resume undoes one Pause, restarting the loop if it was started.
func (r *Reclaimer) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused == 0 {
		return
	}
	r.paused--
	if r.paused == 0 && r.enabled {
		r.launchLocked()
	}
}

// Running reports whether the loop goroutine is active.
func (r *Reclaimer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Reclaimer) launchLocked() {
	if r.cancel != nil || r.paused > 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

func (r *Reclaimer) haltLocked() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}

func (r *Reclaimer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		r.drain(ctx)
		timer.Reset(r.interval)
	}
}

// drain processes entries until nothing is due or ctx is cancelled.
func (r *Reclaimer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		key, removed, due, err := r.step(ctx)
		if err != nil {
			r.logger.Error("expire key failed", "key", key, "error", err)
			return
		}
		if !due {
			return
		}
		if removed {
			r.logger.Debug("key expired", "key", key)
			if r.notify != nil {
				r.notify(key)
			}
		}
	}
}
