package chatlist

import (
	"testing"
	"time"

	"github.com/coolnoor19/wadesk/internal/domain"
)

func msg(conv, content string, t time.Time) domain.Message {
	return domain.Message{
		ServerID:       content,
		ConversationID: conv,
		Direction:      domain.DirectionIn,
		Content:        content,
		Status:         domain.MsgStatusSent,
		CreatedAt:      t,
	}
}

func TestAggregateLatestWins(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	history := []domain.Message{
		msg("628111", "x-first", base.Add(1*time.Minute)),
		msg("628111", "x-latest", base.Add(5*time.Minute)),
		msg("628222", "y-only", base.Add(3*time.Minute)),
	}

	got := Aggregate(history)
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	// sorted newest first
	if got[0].ConversationID != "628111" || got[0].LastMessage != "x-latest" {
		t.Errorf("first summary wrong: %+v", got[0])
	}
	if got[1].ConversationID != "628222" || got[1].LastMessage != "y-only" {
		t.Errorf("second summary wrong: %+v", got[1])
	}
}

func TestAggregateNormalizesKeys(t *testing.T) {
	base := time.Now()
	history := []domain.Message{
		msg("+62 8111", "a", base),
		msg("628111", "b", base.Add(time.Minute)),
	}
	got := Aggregate(history)
	if len(got) != 1 {
		t.Fatalf("phone variants should fold into one conversation, got %d", len(got))
	}
	if got[0].LastMessage != "b" {
		t.Errorf("expected latest message, got %+v", got[0])
	}
}

func TestAggregateGroupFlag(t *testing.T) {
	got := Aggregate([]domain.Message{
		msg("teamchat@g.us", "hi all", time.Now()),
		msg("628111", "hi", time.Now()),
	})
	for _, s := range got {
		if s.ConversationID == "teamchat@g.us" && !s.IsGroup {
			t.Error("group conversation not flagged")
		}
		if s.ConversationID == "628111" && s.IsGroup {
			t.Error("user conversation flagged as group")
		}
	}
}

func TestAggregateEmptyAndMalformed(t *testing.T) {
	if got := Aggregate(nil); len(got) != 0 {
		t.Errorf("nil history should yield no summaries, got %v", got)
	}
	got := Aggregate([]domain.Message{msg("", "ghost", time.Now())})
	if len(got) != 0 {
		t.Errorf("messages without a conversation must be skipped, got %v", got)
	}
}
