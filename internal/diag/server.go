// Package diag implements the diagnostic TCP service: one operator session
// at a time, either resetting the device or streaming bus frames.
package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"candiag/internal/bridge"
	"candiag/internal/device"
)

const (
	// DefaultPort is the TCP port of the diagnostic service.
	DefaultPort = 8080
	// ResetTrigger as the only byte of the first read requests a reset.
	ResetTrigger byte = 0xFA
	// CommandBufferSize bounds the first read of a session.
	CommandBufferSize = 1024

	DefaultIdleTimeout = 10 * time.Second
	DefaultCloseDelay  = time.Second
)

// ErrRestarted is returned by Serve when the device restart returned
// without error.
var ErrRestarted = errors.New("diag: device restart returned")

// SessionState is the state of the operator session.
type SessionState int32

const (
	Idle SessionState = iota
	AwaitingCommand
	Streaming
	Closing
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCommand:
		return "awaiting-command"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// FrameSource yields frames to stream, blocking until one is available.
type FrameSource interface {
	Receive(ctx context.Context) (bridge.CanFrame, error)
}

// Resetter clears the persistent state before a restart.
type Resetter interface {
	Erase() error
}

type Config struct {
	// IdleTimeout bounds accept and every socket read and write.
	IdleTimeout time.Duration
	// CloseDelay is waited before and after the graceful close.
	CloseDelay time.Duration
	Format     Format
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout: DefaultIdleTimeout,
		CloseDelay:  DefaultCloseDelay,
		Format:      FormatCandump,
	}
}

// Status is a snapshot of the server for the status page.
type Status struct {
	State     string `json:"state"`
	Peer      string `json:"peer,omitempty"`
	Sessions  uint64 `json:"sessions"`
	Forwarded uint64 `json:"forwarded"`
	Resets    uint64 `json:"resets"`
}

type Server struct {
	cfg       Config
	frames    FrameSource
	resetter  Resetter
	restarter device.Restarter
	log       zerolog.Logger

	mu    deadlock.Mutex
	state SessionState
	peer  string

	sessions  atomic.Uint64
	forwarded atomic.Uint64
	resets    atomic.Uint64
}

func NewServer(cfg Config, frames FrameSource, resetter Resetter, restarter device.Restarter, log zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		frames:    frames,
		resetter:  resetter,
		restarter: restarter,
		log:       log,
	}
}

// Serve accepts sessions on ln one at a time until ctx is cancelled. It
// closes ln on return. A non-nil error means the device restart returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.log.Info().Str("addr", ln.Addr().String()).Str("format", s.cfg.Format.String()).Msg("diagnostic server listening")
	for {
		if dl, ok := ln.(interface{ SetDeadline(t time.Time) error }); ok {
			_ = dl.SetDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Debug().Msg("accept timed out")
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("diag: listener closed: %w", err)
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		if err := s.handle(ctx, conn); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	peer := conn.RemoteAddr().String()
	log := s.log.With().Str("peer", peer).Logger()
	s.sessions.Add(1)
	s.setState(AwaitingCommand, peer)
	defer s.setState(Idle, "")
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	log.Info().Msg("session opened")

	buf := make([]byte, CommandBufferSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		log.Warn().Err(err).Msg("no command received")
		abort(conn)
		return nil
	}

	if n == 1 && buf[0] == ResetTrigger {
		return s.reset(ctx, conn, log)
	}

	log.Info().Hex("command", buf[:n]).Msg("command received, streaming")
	s.setState(Streaming, peer)
	if !s.stream(ctx, conn, log) {
		abort(conn)
		return nil
	}
	s.close(ctx, conn, peer, log)
	return nil
}

// stream writes one record per frame until a write fails. It returns false
// when ctx ended instead.
func (s *Server) stream(ctx context.Context, conn net.Conn, log zerolog.Logger) bool {
	for {
		f, err := s.frames.Receive(ctx)
		if err != nil {
			return false
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.IdleTimeout))
		if _, err := conn.Write(Record(s.cfg.Format, f)); err != nil {
			log.Warn().Err(err).Uint64("forwarded", s.forwarded.Load()).Msg("write failed")
			return true
		}
		s.forwarded.Add(1)
	}
}

func (s *Server) reset(ctx context.Context, conn net.Conn, log zerolog.Logger) error {
	log.Warn().Msg("reset requested")
	if err := s.resetter.Erase(); err != nil {
		log.Error().Err(err).Msg("reset aborted, device not restarted")
		s.close(ctx, conn, conn.RemoteAddr().String(), log)
		return nil
	}
	s.resets.Add(1)

	log.Warn().Msg("restarting device")
	err := s.restarter.Restart()
	abort(conn)
	if err != nil {
		return fmt.Errorf("diag: restart: %w", err)
	}
	return ErrRestarted
}

// close performs the delayed graceful close followed by an abort.
func (s *Server) close(ctx context.Context, conn net.Conn, peer string, log zerolog.Logger) {
	s.setState(Closing, peer)
	defer abort(conn)

	if !sleepCtx(ctx, s.cfg.CloseDelay) {
		return
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			log.Debug().Err(err).Msg("graceful close failed")
		}
	}
	sleepCtx(ctx, s.cfg.CloseDelay)
	log.Info().Msg("session closed")
}

func abort(conn net.Conn) {
	if l, ok := conn.(interface{ SetLinger(sec int) error }); ok {
		_ = l.SetLinger(0)
	}
	_ = conn.Close()
}

func (s *Server) setState(state SessionState, peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.peer = peer
}

// State returns the current session state.
func (s *Server) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) Status() Status {
	s.mu.Lock()
	state, peer := s.state, s.peer
	s.mu.Unlock()
	return Status{
		State:     state.String(),
		Peer:      peer,
		Sessions:  s.sessions.Load(),
		Forwarded: s.forwarded.Load(),
		Resets:    s.resets.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
