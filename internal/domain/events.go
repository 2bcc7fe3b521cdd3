package domain

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Named events carried by the socket stream.
const (
	EventQR            = "qr"
	EventConnected     = "connected"
	EventDisconnected  = "disconnected"
	EventQRExpired     = "qr_expired"
	EventNewMessage    = "newMessage"
	EventStatusUpdate  = "messageStatusUpdate"
	EventTypingUpdate  = "typingUpdate"
	EventSessionUpdate = "session_update"
)

// QREvent announces a new or re-delivered pairing QR code.
type QREvent struct {
	SessionID string    `mapstructure:"sessionId"`
	Payload   string    `mapstructure:"payload"`
	IssuedAt  time.Time `mapstructure:"-"`
}

// SessionEvent covers connected/disconnected/qr_expired.
type SessionEvent struct {
	SessionID string `mapstructure:"sessionId"`
	Reason    string `mapstructure:"reason"`
}

// MessageEvent is an inbound or echoed outbound message notification.
type MessageEvent struct {
	LocalID     string    `mapstructure:"localId"`
	ServerID    string    `mapstructure:"serverId"`
	Sender      string    `mapstructure:"sender"`
	Recipient   string    `mapstructure:"recipient"`
	Direction   string    `mapstructure:"direction"`
	Content     string    `mapstructure:"content"`
	RichContent string    `mapstructure:"richContent"`
	Status      string    `mapstructure:"status"`
	CreatedAt   time.Time `mapstructure:"-"`
}

// StatusEvent updates the delivery status of a server-confirmed message.
type StatusEvent struct {
	ServerID string `mapstructure:"serverId"`
	Status   string `mapstructure:"status"`
}

// TypingEvent signals a remote party typing state change.
type TypingEvent struct {
	ConversationID string `mapstructure:"conversationId"`
	IsTyping       bool   `mapstructure:"isTyping"`
}

func decodePayload(payload map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "build event decoder")
	}
	if err := dec.Decode(payload); err != nil {
		return errors.Wrap(err, "decode event payload")
	}
	return nil
}

// DecodeQREvent decodes a raw qr payload, failing closed on a missing
// session id. issuedAt accepts unix seconds, unix millis or a time string.
func DecodeQREvent(payload map[string]interface{}) (*QREvent, error) {
	var evt QREvent
	if err := decodePayload(payload, &evt); err != nil {
		return nil, err
	}
	if evt.SessionID == "" {
		return nil, errors.New("qr event missing sessionId")
	}
	evt.IssuedAt = parseEventTime(payload["issuedAt"])
	return &evt, nil
}

// DecodeSessionEvent decodes connected/disconnected/qr_expired payloads.
func DecodeSessionEvent(payload map[string]interface{}) (*SessionEvent, error) {
	var evt SessionEvent
	if err := decodePayload(payload, &evt); err != nil {
		return nil, err
	}
	if evt.SessionID == "" {
		return nil, errors.New("session event missing sessionId")
	}
	return &evt, nil
}

// DecodeMessageEvent decodes a newMessage payload. A missing serverId is not
// an error: older backends emit only localId and downstream matching falls
// back to it.
func DecodeMessageEvent(payload map[string]interface{}) (*MessageEvent, error) {
	var evt MessageEvent
	if err := decodePayload(payload, &evt); err != nil {
		return nil, err
	}
	if evt.ServerID == "" && evt.LocalID == "" {
		return nil, errors.New("message event missing both serverId and localId")
	}
	evt.CreatedAt = parseEventTime(payload["createdAt"])
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}
	if evt.Status == "" {
		evt.Status = MsgStatusSent
	}
	return &evt, nil
}

func DecodeStatusEvent(payload map[string]interface{}) (*StatusEvent, error) {
	var evt StatusEvent
	if err := decodePayload(payload, &evt); err != nil {
		return nil, err
	}
	if evt.ServerID == "" {
		return nil, errors.New("status event missing serverId")
	}
	if StatusRank(evt.Status) < 0 && evt.Status != MsgStatusFailed {
		return nil, errors.Errorf("status event carries unknown status %q", evt.Status)
	}
	return &evt, nil
}

func DecodeTypingEvent(payload map[string]interface{}) (*TypingEvent, error) {
	var evt TypingEvent
	if err := decodePayload(payload, &evt); err != nil {
		return nil, err
	}
	if evt.ConversationID == "" {
		return nil, errors.New("typing event missing conversationId")
	}
	return &evt, nil
}

// parseEventTime converts the loose timestamp shapes seen on the wire. Unix
// values above 1e12 are treated as milliseconds.
func parseEventTime(v interface{}) time.Time {
	switch tv := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return tv
	case float64, int, int64, uint64:
		n := cast.ToInt64(tv)
		if n <= 0 {
			return time.Time{}
		}
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	case string:
		return parseTimeString(tv)
	default:
		return time.Time{}
	}
}
