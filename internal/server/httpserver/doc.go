// Package httpserver serves the layerkv operations endpoint.
//
// Routes:
//
//	GET /health   liveness
//	GET /status   store and relay status as JSON
//	GET /metrics  Prometheus exposition
//
// Every route runs behind RequestID, AccessLog and Recover.
package httpserver
