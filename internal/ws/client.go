package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type role int

const (
	roleUnidentified role = iota
	roleVisitor
	roleAdmin
)

// Client is one websocket connection and its session state. Session fields
// are only touched by the connection's read loop.
type Client struct {
	Handle string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	role      role
	visitorID string
}

func NewClient(conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		Handle: uuid.NewString(),
		ws:     conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues a frame without blocking. It reports false when the frame was
// dropped.
func (c *Client) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

type pumpConfig struct {
	pingInterval  time.Duration
	writeDeadline time.Duration
	readLimit     int64
}

// readPump hands every text frame to handle in receipt order.
func (c *Client) readPump(cfg pumpConfig, handle func([]byte)) {
	c.ws.SetReadLimit(cfg.readLimit)
	readWait := cfg.pingInterval * 2
	_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
		if mt != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

func (c *Client) writePump(cfg pumpConfig) {
	ticker := time.NewTicker(cfg.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(cfg.writeDeadline)); err != nil {
				return
			}
		}
	}
}
