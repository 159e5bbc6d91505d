// Package frame implements the length-prefixed framing used on the
// replication channel.
//
// Every frame is a 4-byte big-endian payload length followed by exactly that
// many payload bytes. Because the receiver always knows how many bytes
// belong to the current frame, payloads may contain any byte value,
// including newlines and the end-of-transmission byte.
//
// A stream of frames is terminated by the sentinel frame: a frame whose
// payload is the single byte 0x04.
//
// Usage:
//
//	w := frame.NewWriter(conn)
//	_ = w.WriteFrame([]byte("SET k v 10"))
//	_ = w.WriteSentinel()
//
//	r := frame.NewReader(conn)
//	for {
//		payload, err := r.ReadFrame()
//		if err != nil || frame.IsSentinel(payload) {
//			break
//		}
//	}
package frame
