package domain

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rawMessage mirrors the wire shape of a history record. The backend is not
// strict about key naming, so common aliases are accepted.
type rawMessage struct {
	LocalID     string `json:"localId"`
	ServerID    string `json:"serverId"`
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	From        string `json:"from"`
	Recipient   string `json:"recipient"`
	To          string `json:"to"`
	Direction   string `json:"direction"`
	FromMe      *bool  `json:"fromMe"`
	Content     string `json:"content"`
	Body        string `json:"body"`
	RichContent string `json:"richContent"`
	Status      string `json:"status"`
	// timestamps arrive as RFC3339 strings or unix numbers depending on
	// backend version
	CreatedAt interface{} `json:"createdAt"`
	Timestamp interface{} `json:"timestamp"`
}

type rawSession struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	LastError string `json:"lastError"`
}

// unwrapArray tolerates both a bare JSON array and the common wrapped form
// {"data": [...]} / {"messages": [...]} / {"sessions": [...]}.
func unwrapArray(body []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		return body, nil
	}
	var wrapper map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, errors.Wrap(err, "unwrap response body")
	}
	for _, key := range []string{"data", "messages", "sessions", "result"} {
		if raw, ok := wrapper[key]; ok {
			inner := strings.TrimSpace(string(raw))
			if strings.HasPrefix(inner, "[") {
				return raw, nil
			}
		}
	}
	return nil, errors.New("response body contains no record array")
}

// ParseMessages decodes a history response into canonical Message records.
// Malformed records are dropped with a warn log rather than failing the
// batch; an entry must carry at least an id and a direction hint.
func ParseMessages(body []byte, normalize func(string) string) ([]Message, error) {
	arr, err := unwrapArray(body)
	if err != nil {
		return nil, err
	}
	var raws []rawMessage
	if err := json.Unmarshal(arr, &raws); err != nil {
		return nil, errors.Wrap(err, "decode history records")
	}

	out := make([]Message, 0, len(raws))
	for i, r := range raws {
		msg, err := r.canonical(normalize)
		if err != nil {
			zap.L().Warn("dropping malformed history record",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r rawMessage) canonical(normalize func(string) string) (Message, error) {
	serverID := r.ServerID
	if serverID == "" {
		serverID = r.ID
	}
	if serverID == "" && r.LocalID == "" {
		return Message{}, errors.New("record missing id")
	}

	direction := r.Direction
	if direction == "" && r.FromMe != nil {
		if *r.FromMe {
			direction = DirectionOut
		} else {
			direction = DirectionIn
		}
	}
	if direction != DirectionIn && direction != DirectionOut {
		return Message{}, errors.Errorf("record has unusable direction %q", r.Direction)
	}

	sender := r.Sender
	if sender == "" {
		sender = r.From
	}
	recipient := r.Recipient
	if recipient == "" {
		recipient = r.To
	}
	var conversation string
	if direction == DirectionIn {
		conversation = normalize(sender)
	} else {
		conversation = normalize(recipient)
	}
	if conversation == "" {
		return Message{}, errors.New("record resolves to empty conversation")
	}

	content := r.Content
	if content == "" {
		content = r.Body
	}

	status := r.Status
	if StatusRank(status) < 0 && status != MsgStatusFailed {
		status = MsgStatusSent
	}

	ts := r.CreatedAt
	if ts == nil {
		ts = r.Timestamp
	}
	createdAt := parseEventTime(ts)
	if createdAt.IsZero() {
		return Message{}, errors.Errorf("record has unparseable timestamp %v", ts)
	}

	return Message{
		LocalID:        r.LocalID,
		ServerID:       serverID,
		ConversationID: conversation,
		Direction:      direction,
		Content:        content,
		RichContent:    r.RichContent,
		Status:         status,
		CreatedAt:      createdAt,
	}, nil
}

// ParseSessions decodes a session list response, dropping entries without an
// id. Unknown statuses degrade to disconnected so the dashboard fails safe.
func ParseSessions(body []byte) ([]Session, error) {
	arr, err := unwrapArray(body)
	if err != nil {
		return nil, err
	}
	var raws []rawSession
	if err := json.Unmarshal(arr, &raws); err != nil {
		return nil, errors.Wrap(err, "decode session records")
	}
	out := make([]Session, 0, len(raws))
	for i, r := range raws {
		id := r.ID
		if id == "" {
			id = r.SessionID
		}
		if id == "" {
			zap.L().Warn("dropping session record without id", zap.Int("index", i))
			continue
		}
		status := r.Status
		switch status {
		case SessionIdle, SessionPending, SessionConnected, SessionDisconnected, SessionError:
		default:
			status = SessionDisconnected
		}
		out = append(out, Session{ID: id, Status: status, LastError: r.LastError})
	}
	return out, nil
}

// parseTimeString accepts RFC3339, unix seconds/millis and the looser
// formats dateparse understands.
func parseTimeString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := dateparse.ParseAny(s); err == nil {
		return t
	}
	return time.Time{}
}
