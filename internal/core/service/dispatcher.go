package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/layerkv/layerkv/internal/core/domain"
	"github.com/layerkv/layerkv/internal/telemetry/metric"
)

// Store is the storage engine surface driven by the dispatcher.
//
// Implementations need not be safe for concurrent use; the dispatcher
// serializes every call.
type Store interface {
	Set(ctx context.Context, key, value string, ttl int64) (string, error)
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) (string, error)
	Size() string
	PrintAll(ctx context.Context) (string, error)

	Push(ctx context.Context) (string, error)
	Pop(ctx context.Context) (string, error)
	DeleteSaves(ctx context.Context) (string, error)
	Clear(ctx context.Context) error

	ExpireNext(ctx context.Context, now time.Time) (key string, removed, due bool, err error)
	Replay(ctx context.Context) ([]domain.Command, error)
	Fingerprints(ctx context.Context) ([]uint64, error)

	Bytes() int64
	Capacity() int64
	Depth() int
	Close() error
}

// Propagator forwards applied mutating commands to peers.
type Propagator interface {
	Propagate(ctx context.Context, cmd domain.Command) error
}

// Config configures a Dispatcher.
type Config struct {
	// Store is the storage engine.
	Store Store

	// PollInterval is the reclaimer poll interval.
	PollInterval time.Duration

	// Notify receives a line for every key removed by the reclaimer.
	// Optional.
	Notify io.Writer

	// SyncRateBytes limits SendState throughput in bytes per second.
	// Zero disables the limit.
	SyncRateBytes int

	// Metrics is optional.
	Metrics *metric.Registry

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Dispatcher is the single entry point for store commands.
type Dispatcher struct {
	mu    sync.Mutex
	store Store

	propMu     sync.RWMutex
	propagator Propagator

	reclaimer *Reclaimer
	notifyMu  sync.Mutex
	notify    io.Writer

	syncRate int
	metrics  *metric.Registry
	now      func() time.Time
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. The reclaimer is not started; call
// Start.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("service: store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		store:    cfg.Store,
		notify:   cfg.Notify,
		syncRate: cfg.SyncRateBytes,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	d.reclaimer = NewReclaimer(d.expireStep, cfg.PollInterval, d.notifyExpired, cfg.Logger)

	d.mu.Lock()
	d.observeStoreLocked()
	d.mu.Unlock()
	return d, nil
}

// SetPropagator installs the propagation transport. nil disables
// propagation.
func (d *Dispatcher) SetPropagator(p Propagator) {
	d.propMu.Lock()
	defer d.propMu.Unlock()
	d.propagator = p
}

// Start starts the reclaimer.
func (d *Dispatcher) Start() {
	d.reclaimer.Start()
}

// Reclaimer returns the TTL reclaimer.
func (d *Dispatcher) Reclaimer() *Reclaimer {
	return d.reclaimer
}

// Close stops the reclaimer and closes the store.
func (d *Dispatcher) Close() error {
	d.reclaimer.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Close()
}

// StoreStatus is a point-in-time view of the store.
type StoreStatus struct {
	MemoryBytes   int64 `json:"memory_bytes"`
	CapacityBytes int64 `json:"capacity_bytes"`
	Depth         int   `json:"stack_depth"`
}

// Status returns the current store status.
func (d *Dispatcher) Status() StoreStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return StoreStatus{
		MemoryBytes:   d.store.Bytes(),
		CapacityBytes: d.store.Capacity(),
		Depth:         d.store.Depth(),
	}
}

// ============================================================================
// Command Dispatch
// ============================================================================

// Dispatch executes cmd and returns its response.
//
// Successful mutating commands are forwarded to the propagator when
// propagate is set. Propagation failures are logged and never fail the
// response.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.Command, propagate bool) domain.Response {
	if err := cmd.Validate(); err != nil {
		d.metrics.ObserveCommand(string(cmd.Verb), false, 0)
		return domain.Fail(FailureMessage(cmd, err), err)
	}

	if cmd.Verb == domain.VerbDeleteSaves {
		d.reclaimer.Pause()
		defer d.reclaimer.Resume()
	}

	d.mu.Lock()
	resp := d.executeLocked(ctx, cmd)
	d.mu.Unlock()

	if propagate && resp.Success && cmd.Verb.Mutating() {
		d.propagate(ctx, cmd)
	}
	return resp
}

// DispatchLine parses and dispatches one command line.
func (d *Dispatcher) DispatchLine(ctx context.Context, line string, propagate bool) domain.Response {
	cmd, err := domain.Parse(line)
	if err != nil {
		return domain.Fail(FailureMessage(cmd, err), err)
	}
	return d.Dispatch(ctx, cmd, propagate)
}

func (d *Dispatcher) executeLocked(ctx context.Context, cmd domain.Command) domain.Response {
	start := time.Now()

	var (
		value string
		err   error
	)
	switch cmd.Verb {
	case domain.VerbSet:
		value, err = d.store.Set(ctx, cmd.Key, cmd.Value, cmd.TTL)
	case domain.VerbGet:
		value, err = d.store.Get(ctx, cmd.Key)
	case domain.VerbDelete:
		value, err = d.store.Delete(ctx, cmd.Key)
	case domain.VerbSize:
		value = d.store.Size()
	case domain.VerbPrintAll:
		value, err = d.store.PrintAll(ctx)
	case domain.VerbPush:
		value, err = d.store.Push(ctx)
	case domain.VerbPop:
		value, err = d.store.Pop(ctx)
	case domain.VerbDeleteSaves:
		value, err = d.store.DeleteSaves(ctx)
	default:
		err = domain.ErrInvalidCommand.WithDetails("unknown verb " + string(cmd.Verb))
	}

	d.metrics.ObserveCommand(string(cmd.Verb), err == nil, time.Since(start).Seconds())
	d.observeStoreLocked()

	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			d.logger.Error("command failed", "command", cmd.String(), "error", err)
		} else {
			d.logger.Debug("command rejected", "command", cmd.String(), "error", err)
		}
		return domain.Fail(FailureMessage(cmd, err), err)
	}
	return domain.OK(value)
}

func (d *Dispatcher) propagate(ctx context.Context, cmd domain.Command) {
	d.propMu.RLock()
	p := d.propagator
	d.propMu.RUnlock()
	if p == nil {
		return
	}

	err := p.Propagate(ctx, cmd)
	d.metrics.ObservePropagation(err == nil)
	if err != nil {
		d.logger.Warn("propagate command failed", "command", cmd.String(), "error", err)
	}
}

func (d *Dispatcher) observeStoreLocked() {
	d.metrics.ObserveStore(d.store.Bytes(), d.store.Capacity(), d.store.Depth())
}

// FailureMessage renders the display line for a failed command.
func FailureMessage(cmd domain.Command, err error) string {
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		return `Key "` + cmd.Key + `" not found`
	case errors.Is(err, domain.ErrNoSavedState):
		return "No saved state to reverse to"
	case errors.Is(err, domain.ErrInvalidTTL):
		return "Invalid TTL"
	case errors.Is(err, domain.ErrInvalidCommand):
		return "Invalid command. Type 'HELP' to get a list of all valid commands"
	default:
		return "Storage error: " + err.Error()
	}
}

// ============================================================================
// Expiry
// ============================================================================

// expireStep runs one reclaimer step under the lock.
func (d *Dispatcher) expireStep(ctx context.Context) (string, bool, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, removed, due, err := d.store.ExpireNext(ctx, d.now())
	if removed {
		d.metrics.ObserveExpired(1)
		d.observeStoreLocked()
	}
	return key, removed, due, err
}

// notifyExpired runs after the lock is released.
func (d *Dispatcher) notifyExpired(key string) {
	if d.notify == nil {
		return
	}
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	if _, err := io.WriteString(d.notify, `Key "`+key+`" deleted`+"\n"); err != nil {
		d.logger.Warn("write expiry notification failed", "key", key, "error", err)
	}
}
