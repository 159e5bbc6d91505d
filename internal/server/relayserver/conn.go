package relayserver

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// peerConn is one connected peer.
type peerConn struct {
	id           uint64
	netConn      net.Conn
	br           *bufio.Reader
	writeTimeout time.Duration

	// wmu serializes writes; a sync transfer holds it for its duration.
	wmu sync.Mutex

	// pending lists requesters waiting on this peer as donor.
	// Guarded by Server.mu.
	pending []*peerConn

	closed atomic.Bool
}

func newPeerConn(id uint64, c net.Conn, writeTimeout time.Duration) *peerConn {
	return &peerConn{
		id:           id,
		netConn:      c,
		br:           bufio.NewReader(c),
		writeTimeout: writeTimeout,
	}
}

func (p *peerConn) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.netConn.Close()
}

func (p *peerConn) writeLine(line string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.writeLineLocked(line)
}

func (p *peerConn) writeLineLocked(line string) error {
	_, err := p.deadlineWriter().Write([]byte(line + "\n"))
	return err
}

func (p *peerConn) takePending() []*peerConn {
	out := p.pending
	p.pending = nil
	return out
}

// deadlineWriter refreshes the write deadline before every write.
func (p *peerConn) deadlineWriter() *deadlineWriter {
	return &deadlineWriter{c: p.netConn, timeout: p.writeTimeout}
}

type deadlineWriter struct {
	c       net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(b []byte) (int, error) {
	if err := w.c.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.c.Write(b)
}
