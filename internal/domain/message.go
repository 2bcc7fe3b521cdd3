package domain

import "time"

// Message direction relative to the linked device.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message delivery status lifecycle. PENDING is a locally originated entry
// waiting for server acknowledgement; FAILED is reachable only from PENDING.
const (
	MsgStatusPending   = "pending"
	MsgStatusSent      = "sent"
	MsgStatusDelivered = "delivered"
	MsgStatusRead      = "read"
	MsgStatusFailed    = "failed"
)

// Message is the canonical in-memory message record. Within a conversation a
// message is identified by ServerID when present, otherwise by LocalID.
type Message struct {
	LocalID        string    `json:"local_id"`
	ServerID       string    `json:"server_id"`
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	RichContent    string    `json:"rich_content,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

var statusRank = map[string]int{
	MsgStatusPending:   0,
	MsgStatusSent:      1,
	MsgStatusDelivered: 2,
	MsgStatusRead:      3,
}

// StatusRank maps a delivery status to its position in the total order
// pending < sent < delivered < read. Unknown statuses rank below pending so
// they can never overwrite anything.
func StatusRank(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return -1
}

// SendResult is the backend's acknowledgement of an outbound send.
type SendResult struct {
	Success  bool   `json:"success"`
	ServerID string `json:"server_id,omitempty"`
}

// ConversationSummary is derived from a flat history, one entry per
// conversation. It is never persisted.
type ConversationSummary struct {
	ConversationID  string    `json:"conversation_id"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	IsGroup         bool      `json:"is_group"`
}
