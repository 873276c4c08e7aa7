package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type VisitorRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewVisitorRepository(db *mongo.Database, timeout time.Duration) *VisitorRepository {
	return &VisitorRepository{coll: db.Collection("visitors"), timeout: timeout}
}

// Touch upserts the visitor and records its latest message preview.
func (r *VisitorRepository) Touch(ctx context.Context, visitorID, lastMessage string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"last_message": lastMessage, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := r.coll.UpdateByID(ctx, visitorID, update, options.Update().SetUpsert(true))
	return err
}

func (r *VisitorRepository) Delete(ctx context.Context, visitorID string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": visitorID})
	return err
}
