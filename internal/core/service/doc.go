// Package service provides the store services for LayerKV.
//
// Services orchestrate the storage engine. They define interfaces for their
// dependencies, allowing for dependency injection and testability.
//
// This package contains:
//
//   - Dispatcher: the single entry point for commands. One mutex
//     serializes every operation against the store, reads included.
//   - Reclaimer: the background loop that expires keys by TTL.
//   - SendState/ApplyState: full-state synchronization over frames.
//
// The reclaimer takes the dispatcher lock for each expiry step. Operations
// that replace the layer structure (DELETESAVES, synchronization) pause and
// join the reclaimer before taking the lock and resume it afterwards.
package service
