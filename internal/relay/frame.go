package relay

// Inbound and outbound frame types share one JSON envelope: {"type": ...}.
const (
	frameAuth    = "auth"
	frameJoin    = "join"
	frameLeave   = "leave"
	frameMessage = "message"
	frameTyping  = "typing"
	framePing    = "ping"

	frameConnection = "connection"
	frameAck        = "ack"
	frameError      = "error"
	framePong       = "pong"
)

// inboundFrame is the superset of all client-originated frames. The router
// switches on Type and reads only the fields that frame type defines.
type inboundFrame struct {
	Type     string  `json:"type"`
	UserID   int64   `json:"userId,omitempty"`
	GroupIDs []int64 `json:"groupIds,omitempty"`
	GroupID  int64   `json:"groupId,omitempty"`
	Message  string  `json:"message,omitempty"`
	IsTyping bool    `json:"isTyping,omitempty"`
}

// connectionFrame is sent once on accept and carries the connection id.
type connectionFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// messageFrame is the broadcast form of a persisted chat message.
type messageFrame struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	GroupID   int64  `json:"groupId"`
	Message   string `json:"message"`
	UserID    int64  `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// ackFrame echoes the persisted message id back to the sender only.
type ackFrame struct {
	Type      string `json:"type"`
	GroupID   int64  `json:"groupId"`
	MessageID int64  `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

type typingFrame struct {
	Type     string `json:"type"`
	GroupID  int64  `json:"groupId"`
	UserID   int64  `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type string `json:"type"`
}
