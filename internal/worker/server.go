package worker

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"botrelay/internal/model"
	"botrelay/internal/platform"
	"botrelay/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts the control plane's link. Only the most recent connection
// is live; accepting a new one closes the previous one.
type Server struct {
	manager *Manager

	mu      sync.Mutex
	current *relay.Conn
}

func NewServer(client platform.Client) *Server {
	s := &Server{}
	s.manager = NewManager(client, s)
	return s
}

func (s *Server) Emit(ev relay.Event) error {
	s.mu.Lock()
	conn := s.current
	s.mu.Unlock()
	if conn == nil {
		return model.ErrLinkDown
	}
	return conn.Emit(ev)
}

func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", s.serveLink)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"controlPlane": s.Connected(),
			"bots":         s.manager.Running(),
		})
	})
	return r
}

func (s *Server) serveLink(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := relay.NewConn(ws)

	s.mu.Lock()
	prev := s.current
	s.current = conn
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
		log.Info().Str("component", "worker").Msg("replaced previous control plane link")
	}
	log.Info().Str("component", "worker").Str("remote", c.Request.RemoteAddr).Msg("control plane connected")

	ctx := context.WithoutCancel(c.Request.Context())
	err = conn.Serve(func(cmd relay.Command) {
		s.manager.Handle(ctx, cmd)
	})

	s.mu.Lock()
	if s.current == conn {
		s.current = nil
	}
	s.mu.Unlock()
	log.Info().Err(err).Str("component", "worker").Msg("control plane disconnected")
}

// Shutdown closes the live link and stops every bot.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conn := s.current
	s.current = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.manager.StopAll()
}
