// Package peer connects a local store to the relay.
//
// A Session owns the relay connection. It forwards mutating commands as
// text lines (it implements service.Propagator), applies lines received
// from other peers without propagating them again, answers SYNC requests
// by streaming the local state, and runs local SYNC requests.
package peer
