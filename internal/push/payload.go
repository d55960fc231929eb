package push

import (
	"encoding/json"
	"time"
)

// Payload is the notification body delivered to a push endpoint. It is built
// per dispatch and never persisted. Data must carry enough context (group id,
// message id) for the client to deep-link on click.
type Payload struct {
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Icon      string         `json:"icon,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// NewMessagePayload builds the payload for a chat message notification.
func NewMessagePayload(groupID, messageID, senderID int64, body string) Payload {
	return Payload{
		Title: "New message",
		Body:  body,
		Data: map[string]any{
			"groupId":   groupID,
			"messageId": messageID,
			"senderId":  senderID,
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode marshals the payload for delivery.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}
