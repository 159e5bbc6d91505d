// Package main provides the entry point for layerkv.
//
// layerkv is a process-local key-value store with TTL expiry, a memory
// tier backed by an on-disk overlay, a PUSH/POP snapshot stack and
// full-state sync between processes attached to a shared relay.
//
// Usage:
//
//	layerkv [--config layerkv.yaml] run [--capacity 1000] [--engine badger]
//	layerkv relay --listen 127.0.0.1:7070 --linger
//	layerkv status --addr 127.0.0.1:9090 -o yaml
//	layerkv version
//
// Without a subcommand, layerkv runs a store.
package main
