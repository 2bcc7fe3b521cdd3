// Package chatlist derives the conversation list from a flat message
// history. Aggregate is a pure function of its input, which keeps it
// trivially testable and re-runnable whenever the history is refetched.
package chatlist

import (
	"sort"

	"github.com/coolnoor19/wadesk/internal/domain"
	"github.com/coolnoor19/wadesk/internal/identity"
)

// Aggregate folds an unordered history into one summary per conversation,
// latest message wins, sorted newest first for display.
func Aggregate(history []domain.Message) []domain.ConversationSummary {
	latest := make(map[string]domain.Message, len(history))
	for _, msg := range history {
		conv := identity.Normalize(msg.ConversationID)
		if conv == "" {
			continue
		}
		if cur, ok := latest[conv]; !ok || msg.CreatedAt.After(cur.CreatedAt) {
			msg.ConversationID = conv
			latest[conv] = msg
		}
	}

	out := make([]domain.ConversationSummary, 0, len(latest))
	for conv, msg := range latest {
		out = append(out, domain.ConversationSummary{
			ConversationID:  conv,
			LastMessage:     msg.Content,
			LastMessageTime: msg.CreatedAt,
			IsGroup:         identity.IsGroup(conv),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].ConversationID < out[j].ConversationID
		}
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}
