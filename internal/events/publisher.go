package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

const (
	TypeMessageCreated = "message.created"
	TypeOrderConfirmed = "order.confirmed"
	TypeVisitorDeleted = "visitor.deleted"
)

// ChatEvent is what goes on the bus after a state change was persisted.
type ChatEvent struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	VisitorID string              `json:"visitor_id"`
	Message   *domain.ChatMessage `json:"message,omitempty"`
	At        time.Time           `json:"at"`
}

func NewChatEvent(typ, visitorID string, msg *domain.ChatMessage) ChatEvent {
	return ChatEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		VisitorID: visitorID,
		Message:   msg,
		At:        time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev ChatEvent) error
	Close() error
}

// Noop discards events. Used when events.driver=none.
type Noop struct{}

func (Noop) Publish(context.Context, ChatEvent) error { return nil }
func (Noop) Close() error                             { return nil }
