package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"botrelay/internal/model"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is the worker's end of the link: an accepted websocket that decodes
// commands and emits events with serialized writes.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxFrameSize)
	return &Conn{ws: ws, writeTimeout: DefaultWriteTimeout, done: make(chan struct{})}
}

// Emit writes ev to the control plane.
func (c *Conn) Emit(ev Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	if c.closed.Load() {
		return model.ErrLinkDown
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return model.ErrLinkDown
	}
	return nil
}

// Serve reads commands until the connection fails or is closed, passing
// each to handle on the reading goroutine. Frames that do not decode are
// logged and skipped.
func (c *Conn) Serve(handle func(Command)) error {
	defer c.Close()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		cmd, err := DecodeCommand(data)
		if err != nil {
			log.Warn().Err(err).Str("component", "relay").Msg("dropping undecodable command")
			continue
		}
		handle(cmd)
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}
