package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layerkv/layerkv/internal/core/domain"
	"github.com/layerkv/layerkv/internal/core/service"
	"github.com/layerkv/layerkv/internal/server/relayserver"
)

var (
	// ErrNoPeer is returned by Sync when no other peer can donate state.
	ErrNoPeer = errors.New("peer: no other client to sync with")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("peer: session closed")

	// ErrSyncInProgress is returned when a second Sync is started.
	ErrSyncInProgress = errors.New("peer: sync already in progress")
)

// Dispatcher is the subset of service.Dispatcher used by a session.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd domain.Command, propagate bool) domain.Response
	SendState(ctx context.Context, w io.Writer) (int, error)
	ApplyState(ctx context.Context, r io.Reader) (int, error)
}

// Config configures a Session.
type Config struct {
	// Output receives the responses to commands applied from other peers.
	// Optional.
	Output io.Writer

	// OnSyncStart is called when a donor starts streaming state for a
	// pending Sync. Optional.
	OnSyncStart func()

	// WriteTimeout bounds a single write to the relay (default: 30s).
	WriteTimeout time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

type syncResult struct {
	applied int
	err     error
}

// Session is a connection to the relay.
type Session struct {
	conn   net.Conn
	br     *bufio.Reader
	d      Dispatcher
	cfg    Config
	logger *slog.Logger

	// wmu serializes writes to the relay; SendState holds it.
	wmu sync.Mutex

	outMu sync.Mutex

	syncing atomic.Bool
	syncCh  chan syncResult

	closed atomic.Bool
	done   chan struct{}
}

var _ service.Propagator = (*Session)(nil)

// Dial connects to the relay at addr.
func Dial(ctx context.Context, addr string, d Dispatcher, cfg Config) (*Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: connect %s: %w", addr, err)
	}
	return New(conn, d, cfg), nil
}

// New creates a session over an established relay connection.
func New(conn net.Conn, d Dispatcher, cfg Config) *Session {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		conn:   conn,
		br:     bufio.NewReader(conn),
		d:      d,
		cfg:    cfg,
		logger: cfg.Logger,
		syncCh: make(chan syncResult, 1),
		done:   make(chan struct{}),
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close closes the relay connection.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

// Propagate sends cmd to the relay as one line.
func (s *Session) Propagate(_ context.Context, cmd domain.Command) error {
	return s.writeLine(cmd.String())
}

// Sync replaces the local state with a copy from another peer and returns
// the number of commands applied.
func (s *Session) Sync(ctx context.Context) (int, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return 0, ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	if err := s.writeLine(domain.TokenSync); err != nil {
		return 0, err
	}

	select {
	case res := <-s.syncCh:
		return res.applied, res.err
	case <-s.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Run reads from the relay until the connection closes or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		line, err := s.br.ReadString('\n')
		if err != nil {
			if s.closed.Load() || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("peer: read: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch line {
		case "":
		case domain.TokenSync:
			s.donate(ctx)
		case relayserver.LineSyncNone:
			s.deliver(syncResult{err: ErrNoPeer})
		case relayserver.LineSyncOK:
			if s.cfg.OnSyncStart != nil && s.syncing.Load() {
				s.cfg.OnSyncStart()
			}
			n, err := s.d.ApplyState(ctx, s.br)
			s.deliver(syncResult{applied: n, err: err})
			if err != nil {
				return fmt.Errorf("peer: sync: %w", err)
			}
		default:
			s.apply(ctx, line)
		}
	}
}

// donate streams the local state to the relay.
func (s *Session) donate(ctx context.Context) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.logger.Info("sync requested by peer, sending state")
	w := &deadlineWriter{c: s.conn, timeout: s.cfg.WriteTimeout}
	if _, err := w.Write([]byte(relayserver.LineSyncData + "\n")); err != nil {
		s.logger.Warn("send state failed", "error", err)
		return
	}
	if _, err := s.d.SendState(ctx, w); err != nil {
		s.logger.Warn("send state failed", "error", err)
	}
}

// apply dispatches a command received from another peer.
func (s *Session) apply(ctx context.Context, line string) {
	cmd, err := domain.Parse(line)
	if err != nil {
		s.logger.Debug("ignore invalid line from relay", "line", line, "error", err)
		return
	}
	resp := s.d.Dispatch(ctx, cmd, false)
	s.print(resp.Value)
}

func (s *Session) deliver(res syncResult) {
	if !s.syncing.Load() {
		s.logger.Debug("unsolicited sync answer", "applied", res.applied, "error", res.err)
		return
	}
	select {
	case s.syncCh <- res:
	default:
	}
}

func (s *Session) print(line string) {
	if s.cfg.Output == nil {
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.cfg.Output, line)
}

func (s *Session) writeLine(line string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	w := &deadlineWriter{c: s.conn, timeout: s.cfg.WriteTimeout}
	if _, err := w.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("peer: write: %w", err)
	}
	return nil
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
