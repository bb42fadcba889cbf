package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ErrNotConnected is returned by Send when no socket is established.
// Callers treat it as transport-unavailable: drop, log, do not queue.
var ErrNotConnected = errors.New("transport: not connected")

// Handler receives decoded inbound events. It must not block; the engine's
// handler posts onto its loop and returns.
type Handler func(Event)

// StateHandler receives connection-state transitions.
type StateHandler func(connected bool)

// Options configures the socket client.
type Options struct {
	URL                string
	Token              string
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

func (o *Options) defaults() {
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxDelay == 0 {
		o.ReconnectMaxDelay = 30 * time.Second
	}
}

// Socket maintains the persistent bidirectional channel to the service:
// it dials, reads and decodes inbound frames, reconnects with exponential
// backoff, and exposes the send/receive/connected-state surface the engine
// consumes. Connection mechanics stay here, outside the engine proper.
type Socket struct {
	opts    Options
	logger  *zap.Logger
	handler Handler
	onState StateHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	closed bool

	attempt     int
	connectedAt time.Time
}

// NewSocket creates a socket client. The handlers are fixed at
// construction so there is no registration race with the run loop.
func NewSocket(opts Options, handler Handler, onState StateHandler, logger *zap.Logger) *Socket {
	opts.defaults()
	return &Socket{
		opts:    opts,
		logger:  logger,
		handler: handler,
		onState: onState,
	}
}

// Run dials and keeps the connection alive until ctx is cancelled or Close
// is called. Intended to run on its own goroutine.
func (s *Socket) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	// Both a failed dial and a dropped established connection wait out
	// the backoff before the next attempt, so a server that accepts and
	// promptly closes cannot induce a hot redial loop.
	for {
		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}
		delay := s.nextDelay()
		s.logger.Warn("socket down, retrying",
			zap.Error(err), zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Socket) connectOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.Dial(dialCtx, s.opts.URL+"?token="+s.opts.Token, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closing")
		return nil
	}
	s.conn = conn
	s.connectedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("socket connected", zap.String("url", s.opts.URL))
	s.onState(true)

	err = s.readLoop(ctx, conn)

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	s.logger.Warn("socket disconnected", zap.Error(err))
	s.onState(false)
	return fmt.Errorf("connection dropped: %w", err)
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		evt, err := Decode(data)
		if err != nil {
			// Unknown or malformed frames are dropped, never fatal.
			s.logger.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		s.handler(evt)
	}
}

// Connected reports whether a socket is currently established.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Emit writes a JSON frame to the socket. Returns ErrNotConnected when the
// transport is down; nothing is queued.
func (s *Socket) Emit(ctx context.Context, frame any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, frame); err != nil {
		return fmt.Errorf("socket write: %w", err)
	}
	return nil
}

// Close tears the connection down and stops the run loop.
func (s *Socket) Close() {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}

// nextDelay computes the reconnect backoff. A connection that survived
// over a minute resets the attempt counter.
func (s *Socket) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connectedAt.IsZero() && time.Since(s.connectedAt) > time.Minute {
		s.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(s.opts.ReconnectBaseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(s.opts.ReconnectBaseDelay)*math.Pow(2, float64(s.attempt))+float64(jitter),
		float64(s.opts.ReconnectMaxDelay),
	))
	s.attempt++
	return delay
}
