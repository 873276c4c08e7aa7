package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WhatsAppNotifier builds a wa.me deep link addressed to the owner's number.
// wa.me cannot push a message by itself, so the link is logged for the
// operator and, when fetch is enabled, requested once to check delivery.
type WhatsAppNotifier struct {
	base   string
	number string
	fetch  bool
	client *http.Client
	log    *zap.SugaredLogger
}

func NewWhatsAppNotifier(base, number string, fetch bool, log *zap.SugaredLogger) *WhatsAppNotifier {
	return &WhatsAppNotifier{
		base:   strings.TrimRight(base, "/"),
		number: strings.TrimPrefix(number, "+"),
		fetch:  fetch,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

func (w *WhatsAppNotifier) Name() string { return "whatsapp" }

// Link returns the wa.me URL carrying the notification text.
func (w *WhatsAppNotifier) Link(n Notification) string {
	return fmt.Sprintf("%s/%s?text=%s", w.base, w.number, strings.ReplaceAll(url.QueryEscape(n.Text()), "+", "%20"))
}

func (w *WhatsAppNotifier) Notify(ctx context.Context, n Notification) error {
	link := w.Link(n)
	w.log.Infow("whatsapp notification link", "visitor", n.VisitorID, "url", link)
	if !w.fetch {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("wa.me responded status=%d", resp.StatusCode)
	}
	return nil
}
