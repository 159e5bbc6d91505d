package relayserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layerkv/layerkv/internal/core/domain"
	"github.com/layerkv/layerkv/pkg/frame"
)

// Protocol lines.
const (
	LineSyncData = "SYNCDATA"
	LineSyncNone = domain.TokenSync + " 0"
	LineSyncOK   = domain.TokenSync + " 1"
)

// Config holds the relay configuration.
type Config struct {
	// Address is the listen address, host:port.
	Address string

	// Linger keeps the relay running after the last peer disconnects.
	Linger bool

	// WriteTimeout bounds a single write to a peer (default: 30s).
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:7070",
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the relay.
type Server struct {
	cfg    *Config
	logger *slog.Logger
	ln     net.Listener

	running atomic.Bool
	wg      sync.WaitGroup

	mu     sync.Mutex
	peers  map[uint64]*peerConn
	nextID uint64
	seen   bool

	doneOnce sync.Once
	done     chan struct{}
}

// New creates a relay server.
func New(cfg *Config, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		peers:  make(map[uint64]*peerConn),
		done:   make(chan struct{}),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// SetListener uses an already bound listener instead of calling Listen.
func (s *Server) SetListener(ln net.Listener) {
	s.ln = ln
}

// Addr returns the listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Done is closed when the relay has shut down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Serve accepts peers until Shutdown, ctx cancellation, or (without
// Linger) the departure of the last peer.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.running.Store(true)
	s.logger.Info("relay started", "address", s.ln.Addr().String(), "linger", s.cfg.Linger)

	stop := context.AfterFunc(ctx, func() { s.stop() })
	defer stop()

	err := s.acceptLoop(ctx)
	s.stop()
	s.wg.Wait()
	s.logger.Info("relay stopped")
	return err
}

// Shutdown stops accepting, disconnects every peer and waits for the
// connection goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) stop() {
	s.doneOnce.Do(func() {
		s.running.Store(false)
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.mu.Lock()
		for _, p := range s.peers {
			_ = p.Close()
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		p := s.register(c)
		if p == nil {
			_ = c.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.servePeer(p)
		}()
	}
}

func (s *Server) register(c net.Conn) *peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return nil
	}
	s.nextID++
	p := newPeerConn(s.nextID, c, s.cfg.WriteTimeout)
	s.peers[p.id] = p
	s.seen = true
	s.logger.Info("peer connected", "peer", p.id, "remote", c.RemoteAddr().String(), "peers", len(s.peers))
	return p
}

func (s *Server) unregister(p *peerConn) {
	s.mu.Lock()
	delete(s.peers, p.id)
	remaining := len(s.peers)
	pending := p.takePending()
	s.mu.Unlock()

	_ = p.Close()
	s.logger.Info("peer disconnected", "peer", p.id, "peers", remaining)

	// Requesters still waiting on this donor get a negative answer.
	for _, r := range pending {
		if err := r.writeLine(LineSyncNone); err != nil {
			s.logger.Debug("notify requester failed", "peer", r.id, "error", err)
		}
	}

	if remaining == 0 && !s.cfg.Linger {
		s.logger.Info("last peer left, shutting down")
		s.stop()
	}
}

func (s *Server) servePeer(p *peerConn) {
	defer s.unregister(p)

	for {
		line, err := p.br.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("peer read error", "peer", p.id, "error", err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch line {
		case "":
			continue
		case domain.TokenSync:
			s.requestSync(p)
		case LineSyncData:
			if !s.relaySync(p) {
				return
			}
		default:
			s.broadcast(p, line)
		}
	}
}

// broadcast forwards line to every peer except from.
func (s *Server) broadcast(from *peerConn, line string) {
	s.mu.Lock()
	targets := make([]*peerConn, 0, len(s.peers))
	for id, p := range s.peers {
		if id != from.id {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	s.logger.Debug("broadcast", "from", from.id, "line", line, "targets", len(targets))
	for _, p := range targets {
		if err := p.writeLine(line); err != nil {
			s.logger.Warn("forward to peer failed", "peer", p.id, "error", err)
		}
	}
}

// requestSync picks a donor for requester r.
func (s *Server) requestSync(r *peerConn) {
	s.mu.Lock()
	var donor *peerConn
	for id, p := range s.peers {
		if id != r.id && (donor == nil || id < donor.id) {
			donor = p
		}
	}
	if donor != nil {
		donor.pending = append(donor.pending, r)
	}
	s.mu.Unlock()

	if donor == nil {
		s.logger.Info("sync requested with no donor", "peer", r.id)
		if err := r.writeLine(LineSyncNone); err != nil {
			s.logger.Debug("answer sync failed", "peer", r.id, "error", err)
		}
		return
	}

	s.logger.Info("sync requested", "peer", r.id, "donor", donor.id)
	if err := donor.writeLine(domain.TokenSync); err != nil {
		s.logger.Warn("forward sync to donor failed", "donor", donor.id, "error", err)
	}
}

// relaySync pipes the donor's frames to the oldest waiting requester. It
// returns false when the donor connection is no longer usable.
func (s *Server) relaySync(donor *peerConn) bool {
	s.mu.Lock()
	var r *peerConn
	if len(donor.pending) > 0 {
		r = donor.pending[0]
		donor.pending = donor.pending[1:]
	}
	if r != nil {
		if _, ok := s.peers[r.id]; !ok {
			r = nil
		}
	}
	s.mu.Unlock()

	src := frame.NewReader(donor.br)
	if r == nil {
		// Nobody is waiting any more; consume the transfer.
		_, err := frame.Copy(frame.NewWriter(io.Discard), src)
		return err == nil
	}

	r.wmu.Lock()
	defer r.wmu.Unlock()

	start := time.Now()
	if err := r.writeLineLocked(LineSyncOK); err != nil {
		s.logger.Warn("answer sync failed", "peer", r.id, "error", err)
		_, err := frame.Copy(frame.NewWriter(io.Discard), src)
		return err == nil
	}

	n, err := frame.Copy(frame.NewWriter(r.deadlineWriter()), src)
	if err != nil {
		s.logger.Warn("sync transfer interrupted", "peer", r.id, "donor", donor.id, "frames", n, "error", err)
		if werr := frame.NewWriter(r.deadlineWriter()).WriteSentinel(); werr != nil {
			s.logger.Debug("send sentinel failed", "peer", r.id, "error", werr)
		}
		return false
	}
	s.logger.Info("sync relayed", "peer", r.id, "donor", donor.id, "frames", n, "elapsed", time.Since(start))
	return true
}
