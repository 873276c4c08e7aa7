package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var chatMessageTpl = template.Must(template.New("chat_message").Parse(
	`<p><strong>New chat message</strong> from <code>{{.VisitorID}}</code></p>
<blockquote>{{.Preview}}</blockquote>
<p><a href="{{.LoginURL}}">Open the admin dashboard</a></p>`))

// EmailNotifier sends transactional emails via Brevo (Sendinblue) HTTP API v3
type EmailNotifier struct {
	APIKey      string
	Endpoint    string
	SenderEmail string
	SenderName  string
	To          string
	client      *http.Client
	logger      *zap.SugaredLogger
}

func NewEmailNotifier(apiKey, endpoint, senderEmail, senderName, to string, logger *zap.SugaredLogger) *EmailNotifier {
	return &EmailNotifier{
		APIKey:      apiKey,
		Endpoint:    endpoint,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		To:          to,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	var buf bytes.Buffer
	if err := chatMessageTpl.Execute(&buf, n); err != nil {
		return err
	}
	payload := map[string]any{
		"sender":      map[string]string{"name": e.SenderName, "email": e.SenderEmail},
		"to":          []map[string]string{{"email": e.To}},
		"subject":     "New chat message from " + n.VisitorID,
		"htmlContent": buf.String(),
		"textContent": n.Text(),
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		e.logger.Infow("email sent", "to", e.To, "visitor", n.VisitorID)
		return nil
	}
	return fmt.Errorf("brevo send failed status=%d", resp.StatusCode)
}
