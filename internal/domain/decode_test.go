package domain

import (
	"strings"
	"testing"
	"time"
)

func passthrough(s string) string { return strings.TrimSpace(s) }

func TestParseMessagesWrappedAndBare(t *testing.T) {
	wrapped := []byte(`{"data":[{"id":"a","from":"111","fromMe":false,"body":"hi","timestamp":"2024-01-02T03:04:05Z"}]}`)
	bare := []byte(`[{"id":"a","from":"111","fromMe":false,"body":"hi","timestamp":"2024-01-02T03:04:05Z"}]`)

	for _, body := range [][]byte{wrapped, bare} {
		msgs, err := ParseMessages(body, passthrough)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
		if msgs[0].ServerID != "a" || msgs[0].ConversationID != "111" {
			t.Errorf("unexpected message %+v", msgs[0])
		}
	}
}

func TestParseMessagesDirectionDerivation(t *testing.T) {
	body := []byte(`[
		{"id":"in1","from":"111","to":"999","fromMe":false,"body":"x","timestamp":"2024-01-01T00:00:00Z"},
		{"id":"out1","from":"999","to":"222","fromMe":true,"body":"y","timestamp":"2024-01-01T00:00:00Z"}
	]`)
	msgs, err := ParseMessages(body, passthrough)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Direction != DirectionIn || msgs[0].ConversationID != "111" {
		t.Errorf("inbound keys on sender: %+v", msgs[0])
	}
	if msgs[1].Direction != DirectionOut || msgs[1].ConversationID != "222" {
		t.Errorf("outbound keys on recipient: %+v", msgs[1])
	}
}

func TestParseMessagesNumericTimestamps(t *testing.T) {
	body := []byte(`[
		{"id":"s","from":"111","fromMe":false,"body":"x","timestamp":1700000000},
		{"id":"ms","from":"111","fromMe":false,"body":"x","timestamp":1700000000000}
	]`)
	msgs, err := ParseMessages(body, passthrough)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	want := time.Unix(1700000000, 0)
	for i, m := range msgs {
		if !m.CreatedAt.Equal(want) {
			t.Errorf("message %d timestamp = %v, want %v", i, m.CreatedAt, want)
		}
	}
}

func TestParseMessagesDropsMalformed(t *testing.T) {
	body := []byte(`[
		{"id":"good","from":"111","fromMe":false,"body":"x","timestamp":"2024-01-01T00:00:00Z"},
		{"body":"no id at all"},
		{"id":"nodir","from":"111","body":"x","timestamp":"2024-01-01T00:00:00Z"},
		{"id":"badtime","from":"111","fromMe":false,"body":"x","timestamp":"not a time"}
	]`)
	msgs, err := ParseMessages(body, passthrough)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ServerID != "good" {
		t.Fatalf("expected only the good record, got %+v", msgs)
	}
}

func TestParseMessagesNoArray(t *testing.T) {
	if _, err := ParseMessages([]byte(`{"error":"nope"}`), passthrough); err == nil {
		t.Fatal("expected error for body without record array")
	}
}

func TestParseSessionsDegradesUnknownStatus(t *testing.T) {
	body := []byte(`{"sessions":[
		{"id":"628999","status":"connected"},
		{"id":"628111","status":"warp-speed"},
		{"status":"connected"}
	]}`)
	sessions, err := ParseSessions(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Status != SessionConnected {
		t.Errorf("status = %q", sessions[0].Status)
	}
	if sessions[1].Status != SessionDisconnected {
		t.Errorf("unknown status should degrade to disconnected, got %q", sessions[1].Status)
	}
}

func TestDecodeMessageEventLocalIDFallback(t *testing.T) {
	evt, err := DecodeMessageEvent(map[string]interface{}{
		"localId":   "l-1",
		"direction": DirectionOut,
		"content":   "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if evt.LocalID != "l-1" || evt.ServerID != "" {
		t.Errorf("unexpected event %+v", evt)
	}
	if evt.CreatedAt.IsZero() {
		t.Error("missing createdAt should default to now")
	}

	if _, err := DecodeMessageEvent(map[string]interface{}{"content": "x"}); err == nil {
		t.Error("expected error when both ids are missing")
	}
}

func TestDecodeStatusEventRejectsUnknownStatus(t *testing.T) {
	if _, err := DecodeStatusEvent(map[string]interface{}{
		"serverId": "s-1",
		"status":   "teleported",
	}); err == nil {
		t.Fatal("expected error for unknown status")
	}

	evt, err := DecodeStatusEvent(map[string]interface{}{
		"serverId": "s-1",
		"status":   MsgStatusRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if evt.Status != MsgStatusRead {
		t.Errorf("status = %q", evt.Status)
	}
}

func TestDecodeQREventTimeShapes(t *testing.T) {
	evt, err := DecodeQREvent(map[string]interface{}{
		"sessionId": "628999",
		"payload":   "qr-blob",
		"issuedAt":  float64(1700000000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !evt.IssuedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("issuedAt = %v", evt.IssuedAt)
	}

	if _, err := DecodeQREvent(map[string]interface{}{"payload": "x"}); err == nil {
		t.Error("expected error for missing sessionId")
	}
}
