package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type NATSPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects and makes sure the stream exists. Events go to
// <subject>.<type>.
func NewNATSPublisher(ctx context.Context, url, stream, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("haysquare-chat"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Chat message events",
		Subjects:    []string{subject + ".>"},
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %q: %w", stream, err)
	}
	return &NATSPublisher{nc: nc, js: js, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev ChatEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ctx, p.subject+"."+ev.Type, b, jetstream.WithMsgID(ev.ID))
	return err
}

func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}
