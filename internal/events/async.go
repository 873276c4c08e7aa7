package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/metrics"
)

// Async publishes in the background so the chat path never waits on the bus.
// Events are published in enqueue order; a full queue drops the event.
type Async struct {
	pub     Publisher
	queue   chan ChatEvent
	timeout time.Duration
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

func NewAsync(pub Publisher, size int, log *zap.SugaredLogger, m *metrics.Metrics) *Async {
	a := &Async{
		pub:     pub,
		queue:   make(chan ChatEvent, size),
		timeout: 5 * time.Second,
		log:     log,
		metrics: m,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Emit(ev ChatEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.metrics.PublishFailed()
		a.log.Warnw("event queue full, dropping", "type", ev.Type, "visitor", ev.VisitorID)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.pub.Publish(ctx, ev); err != nil {
			a.metrics.PublishFailed()
			a.log.Warnw("event publish failed", "type", ev.Type, "visitor", ev.VisitorID, "err", err)
		}
		cancel()
	}
}

// Close drains the queue and closes the publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return a.pub.Close()
}
