// Package connection is the CLI client of a running process's ops
// endpoint (GET /health, /status and /metrics).
package connection
