// Package domain defines the core domain models for LayerKV.
//
// Domain models are pure values without any IO dependencies. This package
// contains:
//
//   - Command: the line-oriented command language (parse and serialize)
//   - Response: the success flag plus message every operation returns
//   - Errors: typed validation, not-found, structural and storage errors
//
// Arity is fixed per verb. PUSH, POP, DELETESAVES, SIZE and PRINTALL take no
// arguments, GET and DELETE take a key, SET takes a key, a value and a
// positive TTL in seconds.
package domain
