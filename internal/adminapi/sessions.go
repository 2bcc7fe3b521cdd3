package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/identity"
	"github.com/coolnoor19/wadesk/internal/webserver"
)

func registerSessionRoutes() {
	webserver.ApiGET("/chat/sessions", listSessions)
	webserver.ApiPOST("/chat/sessions", postConnectSession)
	webserver.ApiGET("/chat/sessions/:id/qr", getSessionQR)
	webserver.ApiPOST("/chat/sessions/:id/disconnect", postDisconnectSession)
	webserver.ApiDELETE("/chat/sessions/:id", deleteSession)
}

// listSessions returns the live session table.
func listSessions(c echo.Context) error {
	sessions := machine.Snapshot()
	items := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, map[string]interface{}{
			"id":         s.ID,
			"status":     s.Status,
			"last_error": s.LastError,
			"has_qr":     s.QRPayload != "",
		})
	}
	return ok(c, map[string]interface{}{"sessions": items})
}

// postConnectSession begins pairing for a phone identity.
// Request JSON: { "phone": "62812xxxx" }
func postConnectSession(c echo.Context) error {
	var payload struct {
		Phone string `json:"phone"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.Phone == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "phone is required", nil)
	}
	if !identity.ValidPhone(payload.Phone) {
		return fail(c, http.StatusBadRequest, "INVALID_PHONE", "Phone must be a bare number", nil)
	}

	if err := machine.Connect(c.Request().Context(), payload.Phone); err != nil {
		return fail(c, http.StatusInternalServerError, "CONNECT_FAILED", "Failed to start pairing", err.Error())
	}
	zap.L().Info("adminapi: pairing started", zap.String("phone", payload.Phone))
	return ok(c, map[string]interface{}{"started": true, "id": identity.Normalize(payload.Phone)})
}

// getSessionQR returns the current QR payload and its remaining validity.
// The frontend renders the QR client-side from the string value.
func getSessionQR(c echo.Context) error {
	id := identity.Normalize(c.Param("id"))
	s, found := machine.Get(id)
	if !found {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	}
	remaining := machine.Remaining(id)
	return ok(c, map[string]interface{}{
		"code":              s.QRPayload,
		"has_qr":            s.QRPayload != "",
		"status":            s.Status,
		"remaining_seconds": int(remaining.Seconds()),
	})
}

// postDisconnectSession ends a pairing or connected session.
func postDisconnectSession(c echo.Context) error {
	id := identity.Normalize(c.Param("id"))
	if _, found := machine.Get(id); !found {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	}
	machine.Disconnect(c.Request().Context(), id)
	return ok(c, map[string]interface{}{"disconnected": true})
}

// deleteSession removes a session entirely.
func deleteSession(c echo.Context) error {
	id := identity.Normalize(c.Param("id"))
	machine.Delete(c.Request().Context(), id)
	return ok(c, map[string]interface{}{"removed": true})
}
