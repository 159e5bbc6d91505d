package repl

import (
	"io"
	"sync"
)

// Console serializes writes to an output stream. Responses typed by the
// user, commands applied from peers and expiry notifications all share
// one Console so their lines never interleave.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole wraps w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Write writes p in one locked call.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

// Println writes s followed by a newline.
func (c *Console) Println(s string) {
	_, _ = c.Write([]byte(s + "\n"))
}
