package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/layerkv/layerkv/internal/core/domain"
	"github.com/layerkv/layerkv/internal/telemetry/metric"
	"github.com/layerkv/layerkv/pkg/frame"
)

// ============================================================================
// Full-State Synchronization
// ============================================================================

// SendState writes the whole layered state to w and returns the number of
// commands sent.
//
// The state is captured under the lock as a base-first sequence of SET and
// PUSH commands; frames are written after the lock is released, followed
// by the sentinel frame. The reclaimer stays paused until the sentinel has
// been written, so no key expires between capture and transmission.
func (d *Dispatcher) SendState(ctx context.Context, w io.Writer) (int, error) {
	d.reclaimer.Pause()
	defer d.reclaimer.Resume()

	start := time.Now()

	d.mu.Lock()
	cmds, err := d.store.Replay(ctx)
	fps, fpErr := d.store.Fingerprints(ctx)
	depth := d.store.Depth()
	d.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("sync: capture state: %w", err)
	}

	var limiter *rate.Limiter
	if d.syncRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.syncRate), max(d.syncRate, frame.HeaderSize+frame.MaxPayload))
	}

	fw := frame.NewWriter(w)
	sent := 0
	for _, cmd := range cmds {
		payload := []byte(cmd.String())
		if limiter != nil {
			if err := limiter.WaitN(ctx, frame.HeaderSize+len(payload)); err != nil {
				return sent, fmt.Errorf("sync: rate limit: %w", err)
			}
		}
		if _, err := fw.WriteFrame(payload); err != nil {
			return sent, fmt.Errorf("sync: write frame: %w", err)
		}
		sent++
	}
	if err := fw.WriteSentinel(); err != nil {
		return sent, fmt.Errorf("sync: write sentinel: %w", err)
	}

	d.metrics.ObserveSync(metric.DirectionSent, sent)
	attrs := []any{"commands", sent, "layers", depth, "elapsed", time.Since(start)}
	if fpErr == nil {
		attrs = append(attrs, "fingerprints", fmt.Sprintf("%016x", fps))
	}
	d.logger.Info("state sent", attrs...)
	return sent, nil
}

// ApplyState replaces the local state with the stream read from r and
// returns the number of commands applied.
//
// The store is first reduced to a single empty layer. Frames are then
// replayed without propagation until the sentinel; after each PUSH the new
// top is cleared so that it holds exactly the sender's next layer. Frames
// that do not parse or fail to apply are logged and skipped. The lock is
// held for the whole transfer.
func (d *Dispatcher) ApplyState(ctx context.Context, r io.Reader) (int, error) {
	d.reclaimer.Pause()
	defer d.reclaimer.Resume()

	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if resp := d.executeLocked(ctx, domain.Command{Verb: domain.VerbDeleteSaves}); !resp.Success {
		return 0, fmt.Errorf("sync: reset: %w", resp.Err)
	}
	if err := d.store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("sync: reset: %w", err)
	}

	fr := frame.NewReader(r)
	applied := 0
	for {
		payload, err := fr.ReadFrame()
		if err != nil {
			d.observeStoreLocked()
			return applied, fmt.Errorf("sync: read frame: %w", err)
		}
		if frame.IsSentinel(payload) {
			break
		}

		cmd, err := domain.Parse(string(payload))
		if err != nil {
			d.logger.Warn("skip invalid sync frame", "frame", string(payload), "error", err)
			continue
		}
		if resp := d.executeLocked(ctx, cmd); !resp.Success {
			d.logger.Warn("skip failed sync command", "command", cmd.String(), "error", resp.Err)
			continue
		}
		applied++

		if cmd.Verb == domain.VerbPush {
			if err := d.store.Clear(ctx); err != nil {
				return applied, fmt.Errorf("sync: clear layer: %w", err)
			}
		}
	}
	d.observeStoreLocked()
	d.metrics.ObserveSync(metric.DirectionReceived, applied)

	attrs := []any{"commands", applied, "layers", d.store.Depth(), "elapsed", time.Since(start)}
	if fps, err := d.store.Fingerprints(ctx); err == nil {
		attrs = append(attrs, "fingerprints", fmt.Sprintf("%016x", fps))
	}
	d.logger.Info("state applied", attrs...)
	return applied, nil
}
