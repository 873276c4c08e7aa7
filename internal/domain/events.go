package domain

// Socket event names. Inbound names are sent by clients, the rest by the
// server.
const (
	EventUserConnected  = "user_connected"
	EventAdminConnected = "admin_connected"
	EventUserMessage    = "user_message"
	EventAdminReply     = "admin_reply"
	EventUserTyping     = "user_typing"
	EventAdminTyping    = "admin_typing"

	EventUserList        = "user_list"
	EventReceiveMessage  = "receive_message"
	EventMessagesCleared = "messages_cleared"
	EventUserRemoved     = "user_removed"
	EventOrderUpdated    = "order_updated"
	EventAck             = "ack"
	EventError           = "error"
)

// VisitorRef is the payload of events that only name a visitor.
type VisitorRef struct {
	VisitorID string `json:"visitorId"`
}
