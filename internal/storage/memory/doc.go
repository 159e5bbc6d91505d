// Package memory provides the in-memory hot tier of a store layer.
//
// A Cache is an ordered key→value map that tracks the number of bytes its
// entries occupy (len(key)+len(value) per entry). The byte count is updated
// incrementally on every mutation and never recomputed during normal
// operation.
//
// Thread Safety:
//
// Cache is not safe for concurrent use. The store serializes every access
// behind its dispatcher lock.
package memory
