package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/auth"
	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/presence"
)

const internalError = "internal error"

var (
	errUnknownEvent     = errors.New("unknown event")
	errMalformedPayload = errors.New("malformed payload")
)

// ChatService is the part of the service layer the router drives.
type ChatService interface {
	SendVisitorMessage(ctx context.Context, visitorID, body string) (*domain.ChatMessage, error)
	AdminReply(ctx context.Context, visitorID, body string, kind domain.Kind, meta json.RawMessage) (*domain.ChatMessage, error)
}

type PresenceRegistry interface {
	Register(visitorID, handle string) []presence.Entry
	MarkInactive(handle string) ([]presence.Entry, bool)
	SetTyping(visitorID string, typing bool) bool
	Roster() []presence.Entry
}

// Router maps inbound socket events to chat operations. One Router serves
// every connection; per-connection state lives on the Client.
type Router struct {
	hub       *Hub
	presence  PresenceRegistry
	chat      ChatService
	validator *auth.Validator
	timeout   time.Duration
	log       *zap.SugaredLogger
}

func NewRouter(hub *Hub, reg PresenceRegistry, chat ChatService, validator *auth.Validator, log *zap.SugaredLogger) *Router {
	return &Router{
		hub:       hub,
		presence:  reg,
		chat:      chat,
		validator: validator,
		timeout:   10 * time.Second,
		log:       log,
	}
}

// Connect registers a new, unidentified connection.
func (r *Router) Connect(c *Client) {
	r.hub.Add(c)
}

// Disconnect ends the session. A visitor entry stays in the registry as
// inactive; an admin leaves the group.
func (r *Router) Disconnect(c *Client) {
	r.hub.Remove(c)
	if c.role == roleVisitor {
		r.presence.MarkInactive(c.Handle)
	}
	c.Close()
	r.log.Debugw("socket disconnected", "handle", c.Handle, "visitor", c.visitorID)
}

// Handle processes one inbound frame.
func (r *Router) Handle(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.reply(c, "", domain.EventError, errorData{Message: "malformed frame"})
		return
	}

	var (
		id  string
		err error
	)
	switch env.Event {
	case domain.EventUserConnected:
		err = r.identifyVisitor(c, env.Data)
	case domain.EventAdminConnected:
		err = r.identifyAdmin(c, env.Data)
	case domain.EventUserMessage:
		id, err = r.userMessage(c, env.Data)
	case domain.EventAdminReply:
		id, err = r.adminReply(c, env.Data)
	case domain.EventUserTyping:
		err = r.userTyping(c, env.Data)
	case domain.EventAdminTyping:
		err = r.adminTyping(c, env.Data)
	default:
		err = fmt.Errorf("%w %q", errUnknownEvent, env.Event)
	}

	if err != nil {
		msg := clientMessage(err)
		r.reply(c, env.Ref, domain.EventError, errorData{Message: msg})
		if msg == internalError {
			r.log.Warnw("socket event failed", "event", env.Event, "handle", c.Handle, "err", err)
		}
		return
	}
	if env.Ref != "" {
		r.reply(c, env.Ref, domain.EventAck, ackData{ID: id})
	}
}

func (r *Router) identifyVisitor(c *Client, data json.RawMessage) error {
	visitorID, err := visitorIDFrom(data)
	if err != nil {
		return err
	}
	if c.role == roleAdmin || (c.role == roleVisitor && c.visitorID != visitorID) {
		return domain.ErrForbiddenSender
	}
	c.role = roleVisitor
	c.visitorID = visitorID
	r.hub.JoinVisitor(visitorID, c)
	r.presence.Register(visitorID, c.Handle)
	return nil
}

func (r *Router) identifyAdmin(c *Client, data json.RawMessage) error {
	if c.role == roleVisitor {
		return domain.ErrForbiddenSender
	}
	var hello adminHello
	if len(data) > 0 {
		if err := json.Unmarshal(data, &hello); err != nil {
			return fmt.Errorf("%w for %s", errMalformedPayload, domain.EventAdminConnected)
		}
	}
	if r.validator != nil && r.validator.Enabled() {
		if hello.Token == "" {
			return domain.ErrUnauthorized
		}
		if _, err := r.validator.Validate(hello.Token); err != nil {
			return domain.ErrUnauthorized
		}
	}
	c.role = roleAdmin
	r.hub.JoinAdmins(c)
	r.reply(c, "", domain.EventUserList, r.presence.Roster())
	return nil
}

func (r *Router) userMessage(c *Client, data json.RawMessage) (string, error) {
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", domain.ErrEmptyMessage
	}
	visitorID, err := stringID(p.VisitorID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if domain.ParseSender(p.Sender) == domain.SenderAdmin {
		if c.role != roleAdmin {
			return "", domain.ErrForbiddenSender
		}
		m, err := r.chat.AdminReply(ctx, visitorID, p.Message, domain.Kind(p.Type), p.Meta)
		if err != nil {
			return "", err
		}
		return m.ID.Hex(), nil
	}

	if c.role == roleVisitor && c.visitorID != visitorID {
		return "", domain.ErrForbiddenSender
	}
	if p.Type != "" && domain.Kind(p.Type) != domain.KindText {
		return "", domain.ErrInvalidKind
	}
	if len(p.Meta) > 0 && string(p.Meta) != "null" {
		return "", domain.ErrInvalidMeta
	}
	m, err := r.chat.SendVisitorMessage(ctx, visitorID, p.Message)
	if err != nil {
		return "", err
	}
	return m.ID.Hex(), nil
}

func (r *Router) adminReply(c *Client, data json.RawMessage) (string, error) {
	if c.role != roleAdmin {
		return "", domain.ErrUnauthorized
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", domain.ErrEmptyMessage
	}
	visitorID, err := stringID(p.VisitorID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	m, err := r.chat.AdminReply(ctx, visitorID, p.Message, domain.Kind(p.Type), p.Meta)
	if err != nil {
		return "", err
	}
	return m.ID.Hex(), nil
}

func (r *Router) userTyping(c *Client, data json.RawMessage) error {
	visitorID, typing, err := typingFrom(data)
	if err != nil {
		return err
	}
	if c.role == roleVisitor && c.visitorID != visitorID {
		return domain.ErrForbiddenSender
	}
	r.presence.SetTyping(visitorID, typing)
	return nil
}

func (r *Router) adminTyping(c *Client, data json.RawMessage) error {
	if c.role != roleAdmin {
		return domain.ErrUnauthorized
	}
	visitorID, typing, err := typingFrom(data)
	if err != nil {
		return err
	}
	r.hub.ToVisitor(visitorID, domain.EventAdminTyping, struct {
		VisitorID string `json:"visitorId"`
		Typing    bool   `json:"typing"`
	}{visitorID, typing})
	return nil
}

func typingFrom(data json.RawMessage) (string, bool, error) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err == nil && len(p.VisitorID) > 0 {
		id, err := stringID(p.VisitorID)
		if err != nil {
			return "", false, err
		}
		return id, p.Typing == nil || *p.Typing, nil
	}
	id, err := visitorIDFrom(data)
	return id, true, err
}

func (r *Router) reply(c *Client, ref, event string, data any) {
	b, err := encode(event, ref, data)
	if err != nil {
		r.log.Errorw("encode reply", "event", event, "err", err)
		return
	}
	r.hub.deliver(c, b)
}

// clientMessage hides internal failures from the client.
func clientMessage(err error) string {
	if domain.IsValidation(err) || errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, errUnknownEvent) || errors.Is(err, errMalformedPayload) {
		return err.Error()
	}
	return internalError
}
