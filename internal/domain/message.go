package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Sender string

const (
	SenderVisitor Sender = "visitor"
	SenderAdmin   Sender = "admin"
)

// ParseSender maps anything that is not explicitly "admin" to visitor.
func ParseSender(s string) Sender {
	if Sender(s) == SenderAdmin {
		return SenderAdmin
	}
	return SenderVisitor
}

type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindPDF      Kind = "pdf"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindZoom     Kind = "zoom"
	KindOffer    Kind = "offer"
	KindDelivery Kind = "delivery"
	KindOrder    Kind = "order"
)

func (k Kind) IsAttachment() bool {
	switch k {
	case KindImage, KindPDF, KindVideo, KindDocument:
		return true
	}
	return false
}

func (k Kind) IsOrderLike() bool {
	switch k {
	case KindOffer, KindDelivery, KindOrder:
		return true
	}
	return false
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
)

type Attachment struct {
	OriginalName string `bson:"original_name" json:"originalName"`
	FileName     string `bson:"file_name" json:"fileName"`
	MimeType     string `bson:"mime_type" json:"mimeType"`
	Size         int64  `bson:"size" json:"size"`
}

// ChatMessage is one persisted message of a conversation. The conversation id
// is the visitor id.
type ChatMessage struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID string             `bson:"conversation_id" json:"conversationId"`
	Sender         Sender             `bson:"sender" json:"sender"`
	Body           string             `bson:"body" json:"body"`
	Kind           Kind               `bson:"kind" json:"kind"`
	Attachment     *Attachment        `bson:"attachment,omitempty" json:"attachment,omitempty"`

	PackageType     string      `bson:"package_type,omitempty" json:"packageType,omitempty"`
	PriceMinorUnits int64       `bson:"price_minor_units,omitempty" json:"priceMinorUnits,omitempty"`
	Duration        string      `bson:"duration,omitempty" json:"duration,omitempty"`
	ShortContent    string      `bson:"short_content,omitempty" json:"shortContent,omitempty"`
	WorkDone        string      `bson:"work_done,omitempty" json:"workDone,omitempty"`
	OrderID         string      `bson:"order_id,omitempty" json:"orderId,omitempty"`
	Status          OrderStatus `bson:"status,omitempty" json:"status,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Visitor is the persistent record of a chat visitor.
type Visitor struct {
	VisitorID   string    `bson:"_id" json:"visitorId"`
	LastMessage string    `bson:"last_message" json:"lastMessage"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
}
