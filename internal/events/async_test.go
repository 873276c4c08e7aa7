package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

type memPublisher struct {
	mu     sync.Mutex
	events []ChatEvent
	fail   bool
	closed bool
}

func (m *memPublisher) Publish(_ context.Context, ev ChatEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broker unavailable")
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memPublisher) Close() error {
	m.closed = true
	return nil
}

func TestAsyncPublishesInOrder(t *testing.T) {
	pub := &memPublisher{}
	a := NewAsync(pub, 16, zap.NewNop().Sugar(), nil)

	msg := &domain.ChatMessage{ConversationID: "v1", Body: "hi"}
	a.Emit(NewChatEvent(TypeMessageCreated, "v1", msg))
	a.Emit(NewChatEvent(TypeVisitorDeleted, "v1", nil))
	require.NoError(t, a.Close())

	require.Len(t, pub.events, 2)
	assert.Equal(t, TypeMessageCreated, pub.events[0].Type)
	assert.Equal(t, "hi", pub.events[0].Message.Body)
	assert.Equal(t, TypeVisitorDeleted, pub.events[1].Type)
	assert.NotEqual(t, pub.events[0].ID, pub.events[1].ID)
	assert.True(t, pub.closed)
}

func TestAsyncSwallowsPublishErrors(t *testing.T) {
	pub := &memPublisher{fail: true}
	a := NewAsync(pub, 4, zap.NewNop().Sugar(), nil)
	a.Emit(NewChatEvent(TypeOrderConfirmed, "v1", nil))
	assert.NoError(t, a.Close())
	assert.Empty(t, pub.events)
}
