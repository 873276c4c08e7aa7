package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/config"
	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

// ErrNotFound aliases the domain error so callers can match either.
var ErrNotFound = domain.ErrNotFound

// NewMongoClient connects and pings, retrying with exponential backoff while
// the server comes up. Only used at startup.
func NewMongoClient(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*mongo.Client, error) {
	var client *mongo.Client
	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, cfg.MongoConnect)
		defer cancel()
		c, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return err
		}
		if err := c.Ping(cctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	notify := func(err error, next time.Duration) {
		log.Warnw("mongo not ready, retrying", "err", err, "in", next)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return client, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
