// Package storage implements the layered store engine.
//
// An Engine is a stack of layers. Only the top layer is active; the layers
// below it are frozen snapshots taken by Push and restored by Pop. Each
// layer holds:
//
//   - a memory tier (an ordered map with a byte budget),
//   - an overlay tier (a persistent key/value object for overflow),
//   - a TTL heap with a per-key expiry index.
//
// A key lives in at most one tier of a layer. A write that would push the
// memory tier past its budget goes to the overlay instead; a read that
// finds the key in the overlay promotes it back when it fits.
//
// The Engine is not safe for concurrent use. Callers serialize access with
// a single lock (see the service package).
package storage
