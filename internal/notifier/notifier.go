package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FAKUBA08/HaySquare-Back/internal/metrics"
)

const previewLimit = 200

// Notification tells the site owner a visitor wrote in.
type Notification struct {
	VisitorID string
	Preview   string
	LoginURL  string
}

// Text is the plain-text body shared by every channel.
func (n Notification) Text() string {
	return fmt.Sprintf("New Chat Message\nFrom: %s\n%s\n\nAdmin login: %s", n.VisitorID, n.Preview, n.LoginURL)
}

// Preview shortens text to 200 characters, marking cuts with "...".
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLimit {
		return text
	}
	return string(r[:previewLimit-3]) + "..."
}

func UploadPreview(originalName string) string {
	return "Uploaded file: " + originalName
}

// Notifier is one delivery channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

type BridgeOptions struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	LoginURL      string
	// consecutive failures that open a channel's breaker
	MaxFailures uint32
	// how long an open breaker stays open
	OpenFor time.Duration
}

// Bridge fans a notification out to every channel in the background. It
// never reports failure to the caller.
type Bridge struct {
	channels []channel
	limiter  *rate.Limiter
	opts     BridgeOptions
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

type channel struct {
	n  Notifier
	cb *gobreaker.CircuitBreaker
}

func NewBridge(opts BridgeOptions, log *zap.SugaredLogger, m *metrics.Metrics, notifiers ...Notifier) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = time.Minute
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	b := &Bridge{
		limiter: rate.NewLimiter(limit, burst),
		opts:    opts,
		log:     log,
		metrics: m,
	}
	for _, n := range notifiers {
		st := gobreaker.Settings{
			Name:        n.Name(),
			MaxRequests: 1,
			Timeout:     opts.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.MaxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Infow("notifier circuit breaker state", "name", name, "from", from.String(), "to", to.String())
			},
		}
		b.channels = append(b.channels, channel{n: n, cb: gobreaker.NewCircuitBreaker(st)})
	}
	return b
}

// VisitorMessage schedules a notification for a new visitor message.
func (b *Bridge) VisitorMessage(visitorID, text string) {
	b.dispatch(Notification{VisitorID: visitorID, Preview: Preview(text), LoginURL: b.opts.LoginURL})
}

// VisitorUpload schedules a notification for a new visitor attachment.
func (b *Bridge) VisitorUpload(visitorID, originalName string) {
	b.dispatch(Notification{VisitorID: visitorID, Preview: UploadPreview(originalName), LoginURL: b.opts.LoginURL})
}

func (b *Bridge) dispatch(n Notification) {
	if len(b.channels) == 0 {
		return
	}
	if !b.limiter.Allow() {
		b.log.Warnw("notification dropped, rate limited", "visitor", n.VisitorID)
		b.metrics.NotifyFailed("rate_limited")
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		// detached from the request that triggered it
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
		defer cancel()
		for _, ch := range b.channels {
			b.send(ctx, ch, n)
		}
	}()
}

func (b *Bridge) send(ctx context.Context, ch channel, n Notification) {
	_, err := ch.cb.Execute(func() (interface{}, error) {
		return nil, ch.n.Notify(ctx, n)
	})
	if err == nil {
		return
	}
	b.metrics.NotifyFailed(ch.n.Name())
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.log.Debugw("notifier skipped, circuit open", "channel", ch.n.Name(), "visitor", n.VisitorID)
		return
	}
	b.log.Warnw("notification failed", "channel", ch.n.Name(), "visitor", n.VisitorID, "err", err)
}

// Wait blocks until in-flight notifications finish.
func (b *Bridge) Wait() {
	b.wg.Wait()
}
