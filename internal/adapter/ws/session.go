// Package ws maintains the websocket session against the lightning feed.
//
// The session dials, sends the subscription handshake, and then pumps frames
// to the handler until the transport fails, at which point it reconnects
// with exponential backoff. Only the initial connection is ever bounded;
// once a session has been established the feed is retried forever.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/couchcryptid/blitz-stream-collector/internal/observability"
)

// handshake subscribes to the strike stream. The feed ignores clients that
// never send it.
const handshake = `{"a":111}`

// State is the session lifecycle phase, exposed for logging.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateReceiving
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReceiving:
		return "receiving"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the subset of *websocket.Conn the session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a connection to the feed.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DialGorilla is the production dialer.
func DialGorilla(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// FrameHandler consumes one raw frame. Errors are logged, never fatal: a bad
// frame must not take the session down.
type FrameHandler interface {
	HandleFrame(ctx context.Context, frame []byte) error
}

// Session owns the connect / handshake / receive / reconnect loop.
type Session struct {
	url             string
	handler         FrameHandler
	connectAttempts int
	logger          *slog.Logger
	metrics         *observability.Metrics

	dialer     Dialer
	newBackOff func() *backoff.ExponentialBackOff
	onState    func(State)
	state      atomic.Int32
}

// New creates a session for the given feed URL. connectAttempts bounds the
// initial connection only; zero means retry forever.
func New(url string, handler FrameHandler, connectAttempts int, logger *slog.Logger, metrics *observability.Metrics) *Session {
	return &Session{
		url:             url,
		handler:         handler,
		connectAttempts: connectAttempts,
		logger:          logger,
		metrics:         metrics,
		dialer:          DialGorilla,
		newBackOff:      defaultBackOff,
	}
}

// Run drives the session until the context is cancelled. It returns an error
// only when the initial connection bound is exhausted; everything after the
// first successful connection retries forever.
func (s *Session) Run(ctx context.Context) error {
	bo := s.newBackOff()
	connected := false
	failures := 0

	for {
		if ctx.Err() != nil {
			s.setState(StateClosing)
			return nil
		}

		s.setState(StateConnecting)
		conn, err := s.connect(ctx)
		if err != nil {
			s.metrics.ConnectFailures.Inc()
			s.setState(StateDisconnected)
			if ctx.Err() != nil {
				return nil
			}
			if !connected {
				failures++
				if s.connectAttempts > 0 && failures >= s.connectAttempts {
					return fmt.Errorf("connect to %s: giving up after %d attempts: %w", s.url, failures, err)
				}
			}
			s.logger.Warn("feed connect failed", "url", s.url, "error", err)
			if !sleepWithContext(ctx, bo.NextBackOff()) {
				return nil
			}
			continue
		}

		if connected {
			s.metrics.Reconnects.Inc()
		}
		connected = true
		bo.Reset()
		s.metrics.Connects.Inc()
		s.logger.Info("feed connected", "url", s.url)

		s.receive(ctx, conn)

		if ctx.Err() != nil {
			s.setState(StateClosing)
			return nil
		}
		s.logger.Warn("feed disconnected, reconnecting", "url", s.url)
		if !sleepWithContext(ctx, bo.NextBackOff()) {
			return nil
		}
	}
}

// connect dials and performs the subscription handshake.
func (s *Session) connect(ctx context.Context) (Conn, error) {
	conn, err := s.dialer(ctx, s.url)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(handshake)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	s.setState(StateAuthenticated)
	return conn, nil
}

// receive pumps frames to the handler until the connection dies or the
// context is cancelled. The watcher goroutine closes the connection on
// cancellation to unblock the read.
func (s *Session) receive(ctx context.Context, conn Conn) {
	s.setState(StateReceiving)
	s.metrics.SessionUp.Set(1)
	defer s.metrics.SessionUp.Set(0)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			s.setState(StateDisconnected)
			if ctx.Err() == nil {
				s.logger.Warn("feed read failed", "error", err)
			}
			return
		}
		s.metrics.FramesReceived.Inc()
		s.metrics.FrameBytes.Observe(float64(len(frame)))
		if err := s.handler.HandleFrame(ctx, frame); err != nil {
			s.logger.Error("frame handler failed", "error", err)
		}
	}
}

// State reports the current lifecycle phase. Safe to call from other
// goroutines; the HTTP surface exposes it on /feedz.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	s.logger.Debug("session state", "state", state)
	if s.onState != nil {
		s.onState(state)
	}
}

// defaultBackOff starts at 500ms and caps at 30s, matching the pace the feed
// operators tolerate.
func defaultBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	return bo
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
