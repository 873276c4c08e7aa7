package ws

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

// Envelope is the JSON frame exchanged over the socket. Ref is chosen by the
// client and echoed on the matching ack or error.
type Envelope struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Ref   string `json:"ref,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func encode(event, ref string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Ref: ref, Data: data})
}

type ackData struct {
	ID string `json:"id,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

type messagePayload struct {
	VisitorID json.RawMessage `json:"visitorId"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Meta      json.RawMessage `json:"meta"`
}

type typingPayload struct {
	VisitorID json.RawMessage `json:"visitorId"`
	Typing    *bool           `json:"typing"`
}

type adminHello struct {
	Token string `json:"token"`
}

// visitorIDFrom accepts a bare JSON string or an object with a visitorId
// field. Anything that is not a non-empty string is rejected.
func visitorIDFrom(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", domain.ErrInvalidVisitorID
	}
	if raw[0] == '{' {
		var p struct {
			VisitorID json.RawMessage `json:"visitorId"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return "", domain.ErrInvalidVisitorID
		}
		return stringID(p.VisitorID)
	}
	return stringID(raw)
}

func stringID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", domain.ErrInvalidVisitorID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrInvalidVisitorID
	}
	return id, nil
}
