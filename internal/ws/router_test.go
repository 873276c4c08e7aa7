package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/auth"
	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/events"
	"github.com/FAKUBA08/HaySquare-Back/internal/presence"
	"github.com/FAKUBA08/HaySquare-Back/internal/repository"
	"github.com/FAKUBA08/HaySquare-Back/internal/service"
)

type silentNotifier struct{}

func (silentNotifier) VisitorMessage(string, string) {}
func (silentNotifier) VisitorUpload(string, string)  {}

type discardEvents struct{}

func (discardEvents) Emit(events.ChatEvent) {}

type received struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref"`
	Data  json.RawMessage `json:"data"`
}

type fixture struct {
	hub      *Hub
	registry *presence.Registry
	store    *repository.MemoryStore
	router   *Router
}

func newFixture(t *testing.T, validator *auth.Validator) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	hub := NewHub(nil, log)
	reg := presence.NewRegistry(hub, time.Minute, log)
	store := repository.NewMemoryStore()
	svc := service.NewChatService(service.Deps{
		Messages: store,
		Visitors: store,
		Presence: reg,
		Emitter:  hub,
		Notifier: silentNotifier{},
		Events:   discardEvents{},
		Log:      log,
	})
	return &fixture{
		hub:      hub,
		registry: reg,
		store:    store,
		router:   NewRouter(hub, reg, svc, validator, log),
	}
}

func (f *fixture) connect() *Client {
	c := NewClient(nil, 64)
	f.router.Connect(c)
	return c
}

func (f *fixture) send(c *Client, event, ref string, data any) {
	raw, _ := json.Marshal(data)
	frame, _ := json.Marshal(Envelope{Event: event, Ref: ref, Data: raw})
	f.router.Handle(c, frame)
}

func drain(t *testing.T, c *Client) []received {
	t.Helper()
	var out []received
	for {
		select {
		case b := <-c.send:
			var r received
			require.NoError(t, json.Unmarshal(b, &r))
			out = append(out, r)
		default:
			return out
		}
	}
}

// without roster pushes
func chatFrames(frames []received) []received {
	var out []received
	for _, f := range frames {
		if f.Event != domain.EventUserList {
			out = append(out, f)
		}
	}
	return out
}

func (f *fixture) admin(t *testing.T) *Client {
	t.Helper()
	a := f.connect()
	f.send(a, domain.EventAdminConnected, "", nil)
	frames := drain(t, a)
	require.NotEmpty(t, frames)
	require.Equal(t, domain.EventUserList, frames[0].Event)
	return a
}

func (f *fixture) visitor(t *testing.T, id string) *Client {
	t.Helper()
	v := f.connect()
	f.send(v, domain.EventUserConnected, "", id)
	assert.Empty(t, drain(t, v))
	return v
}

func TestVisitorMessageReachesAdminsOnly(t *testing.T) {
	f := newFixture(t, nil)
	a := f.admin(t)
	v := f.visitor(t, "v1")
	drain(t, a)

	f.send(v, domain.EventUserMessage, "", map[string]string{"visitorId": "v1", "message": "hi"})

	frames := chatFrames(drain(t, a))
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventReceiveMessage, frames[0].Event)
	var m domain.ChatMessage
	require.NoError(t, json.Unmarshal(frames[0].Data, &m))
	assert.Equal(t, "hi", m.Body)
	assert.Equal(t, domain.SenderVisitor, m.Sender)
	assert.Equal(t, "v1", m.ConversationID)

	assert.Empty(t, drain(t, v), "sender gets no echo")

	e, ok := f.registry.Get("v1")
	require.True(t, ok)
	assert.Equal(t, "hi", e.LastMessage)
}

func TestAdminReplyReachesVisitorOnly(t *testing.T) {
	f := newFixture(t, nil)
	a := f.admin(t)
	v := f.visitor(t, "v1")
	drain(t, a)

	f.send(a, domain.EventAdminReply, "r1", map[string]string{"visitorId": "v1", "message": "hello"})

	vf := drain(t, v)
	require.Len(t, vf, 1)
	assert.Equal(t, domain.EventReceiveMessage, vf[0].Event)

	af := chatFrames(drain(t, a))
	require.Len(t, af, 1)
	assert.Equal(t, domain.EventAck, af[0].Event)
	assert.Equal(t, "r1", af[0].Ref)
	var ack ackData
	require.NoError(t, json.Unmarshal(af[0].Data, &ack))
	assert.NotEmpty(t, ack.ID)
}

func TestAdminSenderOnUserMessageEvent(t *testing.T) {
	f := newFixture(t, nil)
	a := f.admin(t)
	v := f.visitor(t, "v1")
	drain(t, a)

	f.send(a, domain.EventUserMessage, "", map[string]string{"visitorId": "v1", "message": "yo", "sender": "admin"})

	vf := drain(t, v)
	require.Len(t, vf, 1)
	var m domain.ChatMessage
	require.NoError(t, json.Unmarshal(vf[0].Data, &m))
	assert.Equal(t, domain.SenderAdmin, m.Sender)
}

func TestVisitorCannotSendAsAdmin(t *testing.T) {
	f := newFixture(t, nil)
	v := f.visitor(t, "v1")

	f.send(v, domain.EventUserMessage, "x", map[string]string{"visitorId": "v1", "message": "hi", "sender": "admin"})
	f.send(v, domain.EventAdminReply, "y", map[string]string{"visitorId": "v1", "message": "hi"})

	frames := drain(t, v)
	require.Len(t, frames, 2)
	assert.Equal(t, domain.EventError, frames[0].Event)
	assert.Equal(t, "x", frames[0].Ref)
	assert.Equal(t, domain.EventError, frames[1].Event)

	msgs, err := f.store.ListByConversation(context.Background(), "v1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestVisitorCannotSpeakForAnotherVisitor(t *testing.T) {
	f := newFixture(t, nil)
	v := f.visitor(t, "v1")

	f.send(v, domain.EventUserMessage, "", map[string]string{"visitorId": "v2", "message": "hi"})

	frames := drain(t, v)
	require.Len(t, frames, 1)
	var e errorData
	require.NoError(t, json.Unmarshal(frames[0].Data, &e))
	assert.Equal(t, domain.ErrForbiddenSender.Error(), e.Message)
}

func TestVisitorMessageRejectsNonTextKind(t *testing.T) {
	f := newFixture(t, nil)
	v := f.visitor(t, "v1")

	f.send(v, domain.EventUserMessage, "", map[string]string{"visitorId": "v1", "message": "x", "type": "offer"})

	frames := drain(t, v)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventError, frames[0].Event)
}

func TestInvalidVisitorID(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect()

	for _, data := range []any{42, "", "   ", map[string]any{"visitorId": 7}, nil} {
		f.send(c, domain.EventUserConnected, "", data)
	}

	frames := drain(t, c)
	require.Len(t, frames, 5)
	for _, fr := range frames {
		assert.Equal(t, domain.EventError, fr.Event)
	}
	assert.Empty(t, f.registry.Roster())
}

func TestVisitorIDAsObject(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect()

	f.send(c, domain.EventUserConnected, "r", map[string]string{"visitorId": "v9"})

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventAck, frames[0].Event)
	_, ok := f.registry.Get("v9")
	assert.True(t, ok)
}

func TestUnknownAndMalformedFrames(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect()

	f.send(c, "join_room", "q", nil)
	f.router.Handle(c, []byte("{not json"))

	frames := drain(t, c)
	require.Len(t, frames, 2)
	assert.Equal(t, domain.EventError, frames[0].Event)
	assert.Equal(t, "q", frames[0].Ref)
	var e errorData
	require.NoError(t, json.Unmarshal(frames[0].Data, &e))
	assert.Contains(t, e.Message, "unknown event")
	assert.Equal(t, domain.EventError, frames[1].Event)
}

func TestAdminTokenRequiredWhenSecretSet(t *testing.T) {
	v := auth.NewValidator("secret")
	f := newFixture(t, v)

	c := f.connect()
	f.send(c, domain.EventAdminConnected, "", nil)
	f.send(c, domain.EventAdminConnected, "", adminHello{Token: "garbage"})
	frames := drain(t, c)
	require.Len(t, frames, 2)
	assert.Equal(t, domain.EventError, frames[0].Event)
	assert.Equal(t, domain.EventError, frames[1].Event)
	assert.Equal(t, 0, f.hub.AdminCount())

	token, err := v.Issue("admin-1", time.Minute)
	require.NoError(t, err)
	f.send(c, domain.EventAdminConnected, "", adminHello{Token: token})
	frames = drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventUserList, frames[0].Event)
	assert.Equal(t, 1, f.hub.AdminCount())
}

func TestAdminHelloMustBeAnObject(t *testing.T) {
	f := newFixture(t, auth.NewValidator("secret"))
	c := f.connect()

	f.send(c, domain.EventAdminConnected, "a1", "just-a-string")
	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventError, frames[0].Event)
	assert.Equal(t, "a1", frames[0].Ref)
	var e errorData
	require.NoError(t, json.Unmarshal(frames[0].Data, &e))
	assert.Contains(t, e.Message, "malformed payload")
	assert.NotContains(t, e.Message, "unauthorized")
	assert.Equal(t, 0, f.hub.AdminCount())
}

func TestDisconnectMarksInactive(t *testing.T) {
	f := newFixture(t, nil)
	a := f.admin(t)
	v := f.visitor(t, "v1")

	f.router.Disconnect(v)

	e, ok := f.registry.Get("v1")
	require.True(t, ok)
	assert.False(t, e.Active)

	frames := drain(t, a)
	require.NotEmpty(t, frames)
	var roster []presence.Entry
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Data, &roster))
	require.Len(t, roster, 1)
	assert.False(t, roster[0].Active)
	assert.False(t, v.Send([]byte("late")))
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	f := newFixture(t, nil)
	a := f.admin(t)
	old := f.visitor(t, "v1")
	cur := f.visitor(t, "v1")

	f.router.Disconnect(old)
	e, _ := f.registry.Get("v1")
	assert.True(t, e.Active, "stale socket must not flip the new session")

	f.send(a, domain.EventAdminReply, "", map[string]string{"visitorId": "v1", "message": "hello"})
	assert.Len(t, drain(t, cur), 1)
}

func TestTypingEvents(t *testing.T) {
	f := newFixture(t, nil)
	a := f.admin(t)
	v := f.visitor(t, "v1")
	drain(t, a)

	f.send(v, domain.EventUserTyping, "", "v1")
	frames := drain(t, a)
	require.Len(t, frames, 1)
	var roster []presence.Entry
	require.NoError(t, json.Unmarshal(frames[0].Data, &roster))
	assert.True(t, roster[0].Typing)

	f.send(v, domain.EventUserTyping, "", map[string]any{"visitorId": "v1", "typing": false})
	frames = drain(t, a)
	require.Len(t, frames, 1)
	require.NoError(t, json.Unmarshal(frames[0].Data, &roster))
	assert.False(t, roster[0].Typing)

	f.send(a, domain.EventAdminTyping, "", map[string]any{"visitorId": "v1", "typing": true})
	vf := drain(t, v)
	require.Len(t, vf, 1)
	assert.Equal(t, domain.EventAdminTyping, vf[0].Event)

	f.send(v, domain.EventAdminTyping, "", "v1")
	vf = drain(t, v)
	require.Len(t, vf, 1)
	assert.Equal(t, domain.EventError, vf[0].Event)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil, zap.NewNop().Sugar())
	c := NewClient(nil, 1)
	hub.Add(c)
	hub.JoinVisitor("v1", c)

	hub.ToVisitor("v1", domain.EventAdminTyping, nil)
	hub.ToVisitor("v1", domain.EventAdminTyping, nil)

	assert.Len(t, c.send, 1)
	hub.Remove(c)
	hub.ToVisitor("v1", domain.EventAdminTyping, nil)
	assert.Len(t, c.send, 1)
}
