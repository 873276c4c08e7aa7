package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/metrics"
)

// Hub manages connected clients, the admin group and one room per visitor.
// A visitor room addresses only the newest connection of that visitor.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client // handle -> client
	visitors map[string]*Client // visitorID -> current client
	admins   map[string]*Client // handle -> admin client
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

func NewHub(m *metrics.Metrics, log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		visitors: make(map[string]*Client),
		admins:   make(map[string]*Client),
		metrics:  m,
		log:      log,
	}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.Handle] = c
	h.metrics.SetConnections(len(h.clients))
}

// Remove drops c everywhere. The visitor room is only cleared when c is
// still its current member.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.Handle)
	delete(h.admins, c.Handle)
	for id, cur := range h.visitors {
		if cur == c {
			delete(h.visitors, id)
		}
	}
	h.metrics.SetConnections(len(h.clients))
	h.metrics.SetAdmins(len(h.admins))
}

// JoinVisitor makes c the addressable connection of visitorID.
func (h *Hub) JoinVisitor(visitorID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visitors[visitorID] = c
}

func (h *Hub) JoinAdmins(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.admins[c.Handle] = c
	h.metrics.SetAdmins(len(h.admins))
}

func (h *Hub) AdminCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.admins)
}

// ToAdmins sends to every member of the admin group.
func (h *Hub) ToAdmins(event string, payload any) {
	b, err := encode(event, "", payload)
	if err != nil {
		h.log.Errorw("encode admin event", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.admins {
		h.deliver(c, b)
	}
}

// ToVisitor sends to the current connection of visitorID, if any.
func (h *Hub) ToVisitor(visitorID, event string, payload any) {
	b, err := encode(event, "", payload)
	if err != nil {
		h.log.Errorw("encode visitor event", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.visitors[visitorID]; ok {
		h.deliver(c, b)
	}
}

func (h *Hub) deliver(c *Client, b []byte) {
	if !c.Send(b) {
		h.metrics.FrameDropped()
		h.log.Warnw("send buffer full, dropping frame", "handle", c.Handle)
	}
}
