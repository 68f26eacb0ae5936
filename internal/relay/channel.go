package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"botrelay/internal/model"
)

const (
	DefaultReconnectDelay   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second

	maxFrameSize int64 = 1 << 20
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Config struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PongWait is how long the link may stay silent before it is treated
	// as lost. The worker pings well inside the default.
	PongWait time.Duration
	// OnConnected runs in its own goroutine after every successful dial.
	OnConnected func(ctx context.Context)
}

// Channel is the control plane's end of the worker link. It owns the
// transport: Run dials, reads and redials until its context is cancelled.
type Channel struct {
	cfg    Config
	dialer websocket.Dialer

	state atomic.Int32

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   func(Event)
}

func NewChannel(cfg Config) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = pongWait
	}
	return &Channel{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

func (c *Channel) Status() State {
	return State(c.state.Load())
}

func (c *Channel) setState(s State) {
	c.state.Store(int32(s))
}

// OnFrame installs the single consumer of inbound events, replacing any
// previous one.
func (c *Channel) OnFrame(handler func(Event)) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// Send writes cmd immediately. Nothing is queued: when the link is not
// connected, or the write fails, the error wraps model.ErrLinkDown.
func (c *Channel) Send(cmd Command) error {
	data, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.Status() != StateConnected {
		return model.ErrLinkDown
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = conn.Close()
		return errors.Wrap(model.ErrLinkDown, err.Error())
	}
	log.Debug().
		Str("component", "relay").
		Str("type", CommandType(cmd)).
		Str("session_id", cmd.Session()).
		Msg("command sent")
	return nil
}

// Run keeps the link up until ctx is cancelled. It always returns nil once
// shutdown has released the transport.
func (c *Channel) Run(ctx context.Context) error {
	logger := log.With().Str("component", "relay").Str("url", c.cfg.URL).Logger()
	for {
		c.setState(StateConnecting)
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("worker dial failed")
		} else {
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Dur("retry_in", c.cfg.ReconnectDelay).Msg("worker link lost")
		}

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)
	log.Info().Str("component", "relay").Str("url", c.cfg.URL).Msg("worker link connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		case <-done:
		}
	}()

	if c.cfg.OnConnected != nil {
		go c.cfg.OnConnected(ctx)
	}

	c.readLoop(conn)

	c.setState(StateDisconnected)
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("component", "relay").Msg("read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		ev, err := DecodeEvent(data)
		if err != nil {
			log.Warn().Err(err).Str("component", "relay").Msg("dropping undecodable frame")
			continue
		}

		c.handlerMu.RLock()
		h := c.handler
		c.handlerMu.RUnlock()
		if h != nil {
			h(ev)
		}
	}
}
