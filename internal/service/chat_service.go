package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/events"
	"github.com/FAKUBA08/HaySquare-Back/internal/media"
	"github.com/FAKUBA08/HaySquare-Back/internal/metrics"
)

type MessageStore interface {
	Insert(ctx context.Context, m *domain.ChatMessage) error
	ListByConversation(ctx context.Context, conversationID string) ([]domain.ChatMessage, error)
	ListOrders(ctx context.Context, conversationID string) ([]domain.ChatMessage, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
	ConfirmOrder(ctx context.Context, id string) (*domain.ChatMessage, error)
}

type VisitorStore interface {
	Touch(ctx context.Context, visitorID, lastMessage string) error
	Delete(ctx context.Context, visitorID string) error
}

// Presence is the slice of the presence registry the service drives.
type Presence interface {
	SetLastMessage(visitorID, text string) bool
	Remove(visitorID string) bool
}

// Emitter delivers socket events to the admin group or a visitor room.
type Emitter interface {
	ToAdmins(event string, payload any)
	ToVisitor(visitorID, event string, payload any)
}

type Notifier interface {
	VisitorMessage(visitorID, text string)
	VisitorUpload(visitorID, originalName string)
}

type EventSink interface {
	Emit(ev events.ChatEvent)
}

type Uploader interface {
	Validate(mimeType string, size int64) error
	Store(ctx context.Context, src io.Reader, originalName, mimeType string, size int64) (*media.Stored, error)
}

// adminKinds are the message kinds an admin may send as a reply.
var adminKinds = map[domain.Kind]bool{
	domain.KindText:     true,
	domain.KindZoom:     true,
	domain.KindOffer:    true,
	domain.KindDelivery: true,
	domain.KindOrder:    true,
}

type ChatService struct {
	messages MessageStore
	visitors VisitorStore
	presence Presence
	emit     Emitter
	uploads  Uploader
	notify   Notifier
	events   EventSink
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

type Deps struct {
	Messages MessageStore
	Visitors VisitorStore
	Presence Presence
	Emitter  Emitter
	Uploads  Uploader
	Notifier Notifier
	Events   EventSink
	Metrics  *metrics.Metrics
	Log      *zap.SugaredLogger
}

func NewChatService(d Deps) *ChatService {
	return &ChatService{
		messages: d.Messages,
		visitors: d.Visitors,
		presence: d.Presence,
		emit:     d.Emitter,
		uploads:  d.Uploads,
		notify:   d.Notifier,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Log,
	}
}

func normalizeVisitorID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrInvalidVisitorID
	}
	return id, nil
}

// SendVisitorMessage persists a visitor's text message and hands it to the
// admin group. The visitor does not get an echo.
func (s *ChatService) SendVisitorMessage(ctx context.Context, visitorID, body string) (*domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, domain.ErrEmptyMessage
	}

	m := &domain.ChatMessage{
		ConversationID: visitorID,
		Sender:         domain.SenderVisitor,
		Body:           body,
		Kind:           domain.KindText,
	}
	if err := s.persist(ctx, m, body); err != nil {
		return nil, err
	}
	s.route(m)
	s.notify.VisitorMessage(visitorID, body)
	return m, nil
}

// AdminReply persists an admin message into a visitor's conversation. meta
// is decoded against the schema of kind; kinds without a schema take none.
func (s *ChatService) AdminReply(ctx context.Context, visitorID, body string, kind domain.Kind, meta json.RawMessage) (*domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = domain.KindText
	}
	if kind.IsAttachment() {
		return nil, fmt.Errorf("%w: %s messages are sent through the upload route", domain.ErrInvalidKind, kind)
	}
	if !adminKinds[kind] {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidKind, kind)
	}

	m := &domain.ChatMessage{
		ConversationID: visitorID,
		Sender:         domain.SenderAdmin,
		Body:           body,
		Kind:           kind,
	}
	if err := domain.DecodeMeta(kind, meta, m); err != nil {
		return nil, err
	}
	return s.sendAdmin(ctx, m)
}

func (s *ChatService) PostOffer(ctx context.Context, visitorID string, offer domain.OfferMeta) (*domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return nil, err
	}
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	m := &domain.ChatMessage{ConversationID: visitorID, Sender: domain.SenderAdmin}
	offer.Apply(m)
	return s.sendAdmin(ctx, m)
}

func (s *ChatService) PostDelivery(ctx context.Context, visitorID string, delivery domain.DeliveryMeta) (*domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return nil, err
	}
	if err := delivery.Validate(); err != nil {
		return nil, err
	}
	m := &domain.ChatMessage{ConversationID: visitorID, Sender: domain.SenderAdmin}
	delivery.Apply(m)
	return s.sendAdmin(ctx, m)
}

func (s *ChatService) CreateOrder(ctx context.Context, visitorID, body string, order domain.OrderMeta) (*domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	m := &domain.ChatMessage{ConversationID: visitorID, Sender: domain.SenderAdmin, Body: body}
	order.Apply(m)
	return s.sendAdmin(ctx, m)
}

func (s *ChatService) sendAdmin(ctx context.Context, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	if strings.TrimSpace(m.Body) == "" {
		return nil, domain.ErrEmptyMessage
	}
	if err := s.persist(ctx, m, m.Body); err != nil {
		return nil, err
	}
	s.route(m)
	return m, nil
}

type UploadInput struct {
	VisitorID    string
	Sender       domain.Sender
	OriginalName string
	MimeType     string
	Size         int64
	File         io.Reader
}

// Upload runs the attachment pipeline and then records the attachment as a
// message. Nothing is persisted when the pipeline fails.
func (s *ChatService) Upload(ctx context.Context, in UploadInput) (*domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(in.VisitorID)
	if err != nil {
		return nil, err
	}
	if in.File == nil {
		return nil, domain.ErrMissingFile
	}
	if err := s.uploads.Validate(in.MimeType, in.Size); err != nil {
		s.metrics.Upload("rejected")
		return nil, err
	}

	stored, err := s.uploads.Store(ctx, in.File, in.OriginalName, in.MimeType, in.Size)
	if err != nil {
		s.metrics.Upload("failed")
		return nil, err
	}
	s.metrics.Upload("stored")

	m := &domain.ChatMessage{
		ConversationID: visitorID,
		Sender:         in.Sender,
		Body:           stored.URL,
		Kind:           stored.Category,
		Attachment: &domain.Attachment{
			OriginalName: stored.OriginalName,
			FileName:     stored.FileName,
			MimeType:     stored.MimeType,
			Size:         stored.Size,
		},
	}
	if err := s.persist(ctx, m, in.OriginalName); err != nil {
		return nil, err
	}
	s.route(m)
	if m.Sender == domain.SenderVisitor {
		s.notify.VisitorUpload(visitorID, in.OriginalName)
	}
	return m, nil
}

func (s *ChatService) History(ctx context.Context, visitorID string) ([]domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, visitorID)
}

func (s *ChatService) ListOrders(ctx context.Context, visitorID string) ([]domain.ChatMessage, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListOrders(ctx, visitorID)
}

// ConfirmOrder moves an order from pending to confirmed and tells both sides.
func (s *ChatService) ConfirmOrder(ctx context.Context, orderMessageID string) (*domain.ChatMessage, error) {
	m, err := s.messages.ConfirmOrder(ctx, orderMessageID)
	if err != nil {
		return nil, err
	}
	s.emit.ToVisitor(m.ConversationID, domain.EventOrderUpdated, m)
	s.emit.ToAdmins(domain.EventOrderUpdated, m)
	s.events.Emit(events.NewChatEvent(events.TypeOrderConfirmed, m.ConversationID, m))
	return m, nil
}

// DeleteVisitor removes every message and the visitor record, drops the
// presence entry and tells the visitor and the admins.
func (s *ChatService) DeleteVisitor(ctx context.Context, visitorID string) (int64, error) {
	visitorID, err := normalizeVisitorID(visitorID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.DeleteByConversation(ctx, visitorID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	if err := s.visitors.Delete(ctx, visitorID); err != nil {
		return 0, fmt.Errorf("delete visitor: %w", err)
	}

	if !s.presence.Remove(visitorID) {
		// not connected since the last restart; still close any open room
		s.emit.ToVisitor(visitorID, domain.EventUserRemoved, domain.VisitorRef{VisitorID: visitorID})
	}
	s.emit.ToAdmins(domain.EventMessagesCleared, domain.VisitorRef{VisitorID: visitorID})
	s.events.Emit(events.NewChatEvent(events.TypeVisitorDeleted, visitorID, nil))
	s.log.Infow("visitor deleted", "visitor", visitorID, "messages", n)
	return n, nil
}

// persist stores m, then updates the visitor record and the live preview.
// Failing to update the visitor record does not fail the message.
func (s *ChatService) persist(ctx context.Context, m *domain.ChatMessage, preview string) error {
	if err := s.messages.Insert(ctx, m); err != nil {
		return err
	}
	s.metrics.MessagePersisted(string(m.Sender), string(m.Kind))
	if err := s.visitors.Touch(ctx, m.ConversationID, preview); err != nil {
		s.log.Warnw("visitor touch failed", "visitor", m.ConversationID, "err", err)
	}
	s.presence.SetLastMessage(m.ConversationID, preview)
	s.events.Emit(events.NewChatEvent(events.TypeMessageCreated, m.ConversationID, m))
	return nil
}

// route sends visitor messages to the admin group and admin messages to the
// visitor room, never both.
func (s *ChatService) route(m *domain.ChatMessage) {
	if m.Sender == domain.SenderAdmin {
		s.emit.ToVisitor(m.ConversationID, domain.EventReceiveMessage, m)
		return
	}
	s.emit.ToAdmins(domain.EventReceiveMessage, m)
}
