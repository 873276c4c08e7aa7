package ws

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

type ServerOptions struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

type Server struct {
	router *Router
	pumps  pumpConfig
	buffer int
}

func NewServer(router *Router, opts ServerOptions) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.WriteDeadline <= 0 {
		opts.WriteDeadline = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 << 10
	}
	return &Server{
		router: router,
		pumps: pumpConfig{
			pingInterval:  opts.PingInterval,
			writeDeadline: opts.WriteDeadline,
			readLimit:     opts.MaxMessageSize,
		},
		buffer: opts.SendBuffer,
	}
}

// HandleWS runs one connection until the peer goes away. Identification
// happens in-band through user_connected or admin_connected.
func (s *Server) HandleWS() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		c := NewClient(conn, s.buffer)
		s.router.Connect(c)

		// the conn is recycled once this handler returns, so the writer must
		// be gone first
		written := make(chan struct{})
		go func() {
			c.writePump(s.pumps)
			close(written)
		}()
		c.readPump(s.pumps, func(raw []byte) { s.router.Handle(c, raw) })
		s.router.Disconnect(c)
		<-written
	}
}
