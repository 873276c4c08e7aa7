package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMirror copies presence entries into Redis so that out-of-process
// readers (dashboards, other tools) can see who is online. Keys:
//   - <prefix>:presence:<visitorId> -> json {active,lastMessage,last_seen}
//   - <prefix>:presence:index       -> set of visitor ids
//
// Writes are queued and applied by Run in order. A full queue drops the
// update; the in-memory registry stays authoritative.
type RedisMirror struct {
	client *redis.Client
	prefix string
	queue  chan mirrorOp
	log    *zap.SugaredLogger
}

type mirrorOp struct {
	visitorID string
	entry     *Entry
}

type mirrorDoc struct {
	Active      bool   `json:"active"`
	LastMessage string `json:"lastMessage"`
	LastSeen    int64  `json:"last_seen"`
}

func NewRedisMirror(client *redis.Client, prefix string, log *zap.SugaredLogger) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix, queue: make(chan mirrorOp, 1024), log: log}
}

func (m *RedisMirror) presenceKey(visitorID string) string {
	return fmt.Sprintf("%s:presence:%s", m.prefix, visitorID)
}

func (m *RedisMirror) indexKey() string { return m.prefix + ":presence:index" }

func (m *RedisMirror) Upsert(e Entry) {
	m.enqueue(mirrorOp{visitorID: e.VisitorID, entry: &e})
}

func (m *RedisMirror) Remove(visitorID string) {
	m.enqueue(mirrorOp{visitorID: visitorID})
}

func (m *RedisMirror) enqueue(op mirrorOp) {
	select {
	case m.queue <- op:
	default:
		m.log.Warnw("presence mirror queue full, dropping update", "visitor", op.visitorID)
	}
}

// Run applies queued writes until ctx is done.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-m.queue:
			if err := m.apply(ctx, op); err != nil {
				m.log.Warnw("presence mirror write failed", "visitor", op.visitorID, "err", err)
			}
		}
	}
}

func (m *RedisMirror) apply(ctx context.Context, op mirrorOp) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if op.entry == nil {
		pipe := m.client.TxPipeline()
		pipe.Del(ctx, m.presenceKey(op.visitorID))
		pipe.SRem(ctx, m.indexKey(), op.visitorID)
		_, err := pipe.Exec(ctx)
		return err
	}
	b, err := json.Marshal(mirrorDoc{
		Active:      op.entry.Active,
		LastMessage: op.entry.LastMessage,
		LastSeen:    time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.presenceKey(op.visitorID), b, 0)
	pipe.SAdd(ctx, m.indexKey(), op.visitorID)
	_, err = pipe.Exec(ctx)
	return err
}

// Reset clears mirrored state left by a previous process. The registry always
// starts empty, so stale keys would misreport presence.
func (m *RedisMirror) Reset(ctx context.Context) error {
	ids, err := m.client.SMembers(ctx, m.indexKey()).Result()
	if err != nil {
		return err
	}
	keys := []string{m.indexKey()}
	for _, id := range ids {
		keys = append(keys, m.presenceKey(id))
	}
	return m.client.Del(ctx, keys...).Err()
}
