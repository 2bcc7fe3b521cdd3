package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/chatlist"
	"github.com/coolnoor19/wadesk/internal/webserver"
)

func registerChatRoutes() {
	webserver.ApiGET("/chat/conversations", listConversations)
	webserver.ApiPOST("/chat/conversations/open", postOpenConversation)
	webserver.ApiGET("/chat/messages", listMessages)
	webserver.ApiPOST("/chat/send", postSendMessage)
}

// listConversations aggregates the active session's history into the
// newest-first conversation list.
func listConversations(c echo.Context) error {
	active, found := machine.Active()
	if !found {
		return fail(c, http.StatusServiceUnavailable, "NO_SESSION", "No connected session", nil)
	}

	history, err := fetcher.ChatHistory(c.Request().Context(), active.ID)
	if err != nil {
		zap.L().Warn("adminapi: history fetch failed", zap.Error(err))
		return fail(c, http.StatusBadGateway, "HISTORY_FAILED", "Failed to fetch chat history", err.Error())
	}

	page, pageSize := parsePagination(c)
	summaries := chatlist.Aggregate(history)
	total := int64(len(summaries))

	start := (page - 1) * pageSize
	if start > len(summaries) {
		start = len(summaries)
	}
	end := start + pageSize
	if end > len(summaries) {
		end = len(summaries)
	}
	return paged(c, summaries[start:end], total, page, pageSize)
}

// postOpenConversation switches the open conversation and loads its history.
// Request JSON: { "conversation_id": "62812xxxx" }
func postOpenConversation(c echo.Context) error {
	var payload struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.ConversationID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "conversation_id is required", nil)
	}

	if err := recon.Open(c.Request().Context(), payload.ConversationID); err != nil {
		return fail(c, http.StatusInternalServerError, "OPEN_FAILED", "Failed to open conversation", err.Error())
	}
	return ok(c, map[string]interface{}{
		"opened":   true,
		"messages": recon.Messages(),
	})
}

// listMessages returns the open conversation's messages oldest-first.
func listMessages(c echo.Context) error {
	conv := recon.OpenConversation()
	if conv == "" {
		return fail(c, http.StatusBadRequest, "NO_CONVERSATION", "No conversation is open", nil)
	}
	return ok(c, map[string]interface{}{
		"conversation_id": conv,
		"messages":        recon.Messages(),
	})
}

// postSendMessage sends a message into the open conversation. The rich
// variant carries dashboard HTML markup and wins over plain text.
// Request JSON: { "text": "...", "rich_text": "<b>...</b>" }
func postSendMessage(c echo.Context) error {
	var payload struct {
		Text     string `json:"text"`
		RichText string `json:"rich_text"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}

	localID, err := recon.Send(c.Request().Context(), payload.Text, payload.RichText)
	if err != nil {
		return fail(c, http.StatusBadRequest, "SEND_REJECTED", "Message rejected", err.Error())
	}
	return ok(c, map[string]interface{}{"queued": true, "local_id": localID})
}
