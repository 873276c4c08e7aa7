package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

// MemoryStore keeps messages and visitors in process memory. It backs tests
// and local runs with mongo.memory=true.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]*domain.ChatMessage // conversationID -> msgs
	visitors map[string]*domain.Visitor
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]*domain.ChatMessage),
		visitors: make(map[string]*domain.Visitor),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *MemoryStore) Insert(_ context.Context, m *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	cp := *m
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &cp)
	return nil
}

func (s *MemoryStore) ListByConversation(_ context.Context, conversationID string) ([]domain.ChatMessage, error) {
	return s.collect(conversationID, func(*domain.ChatMessage) bool { return true }), nil
}

func (s *MemoryStore) ListOrders(_ context.Context, conversationID string) ([]domain.ChatMessage, error) {
	return s.collect(conversationID, func(m *domain.ChatMessage) bool { return m.Kind == domain.KindOrder }), nil
}

func (s *MemoryStore) collect(conversationID string, keep func(*domain.ChatMessage) bool) []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.ChatMessage{}
	for _, m := range s.messages[conversationID] {
		if keep(m) {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

func (s *MemoryStore) DeleteByConversation(_ context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.messages[conversationID]))
	delete(s.messages, conversationID)
	return n, nil
}

func (s *MemoryStore) ConfirmOrder(_ context.Context, id string) (*domain.ChatMessage, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID != oid || m.Kind != domain.KindOrder {
				continue
			}
			if m.Status == domain.StatusPending {
				m.Status = domain.StatusConfirmed
			}
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Touch(_ context.Context, visitorID, lastMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v, ok := s.visitors[visitorID]
	if !ok {
		v = &domain.Visitor{VisitorID: visitorID, CreatedAt: now}
		s.visitors[visitorID] = v
	}
	v.LastMessage = lastMessage
	v.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visitors, visitorID)
	return nil
}
