package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

// history order: created_at, then _id as the insertion tiebreaker
var historySort = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

type MessageRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMessageRepository(db *mongo.Database, timeout time.Duration) *MessageRepository {
	coll := db.Collection("messages")
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("conversation_created_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), ix)
	return &MessageRepository{coll: coll, timeout: timeout}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.ChatMessage) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	return r.find(ctx, bson.M{"conversation_id": conversationID})
}

func (r *MessageRepository) ListOrders(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	return r.find(ctx, bson.M{"conversation_id": conversationID, "kind": domain.KindOrder})
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M) ([]domain.ChatMessage, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(historySort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.ChatMessage{}
	for cur.Next(ctx) {
		var m domain.ChatMessage
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, cur.Err()
}

func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ConfirmOrder moves a pending order to confirmed. Confirming an already
// confirmed order returns it unchanged.
func (r *MessageRepository) ConfirmOrder(ctx context.Context, id string) (*domain.ChatMessage, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"_id": oid, "kind": domain.KindOrder}
	var m domain.ChatMessage
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "kind": domain.KindOrder, "status": domain.StatusPending},
		bson.M{"$set": bson.M{"status": domain.StatusConfirmed}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil {
		return &m, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}
	if err := r.coll.FindOne(ctx, filter).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
