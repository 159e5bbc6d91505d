// Package relayserver provides the relay that connects LayerKV peers.
//
// The relay is a line-oriented fan-out hub:
//
//   - every line received from one peer is forwarded to all other peers;
//   - the line SYNC asks for a full-state copy. The relay answers "SYNC 0"
//     when no other peer is connected; otherwise it forwards SYNC to one
//     other peer (the donor). The donor answers with the line SYNCDATA
//     followed by length-prefixed frames ending with the sentinel frame.
//     The relay then writes "SYNC 1" to the requester and pipes the frames
//     to it verbatim.
//
// While frames are piped, the requester's connection is reserved: lines
// from other peers wait until the sentinel has been forwarded. If the donor
// disconnects mid-transfer the requester receives a sentinel; if it
// disconnects before starting, the requester receives "SYNC 0".
//
// By default the relay shuts down when its last peer disconnects.
package relayserver
